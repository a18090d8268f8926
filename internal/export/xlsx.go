package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

const (
	sheetSurvey   = "Survey"
	sheetMetadata = "Metadata"
	sheetReview   = "Review"
)

// XLSX returns a workbook with three sheets: Survey (one row per point),
// Metadata (field, value and source page) and Review (conflicts, issues and
// validation warnings).
func (s *Service) XLSX(well entity.WellRecord, warnings []entity.Warning) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetSurvey); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetMetadata, sheetReview} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	idx, _ := f.GetSheetIndex(sheetSurvey)
	f.SetActiveSheet(idx)

	writeSurvey(f, well)
	writeMetadata(f, well)
	reviewRows := writeReview(f, well, warnings)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", well.DocumentID,
		"points", len(well.Points),
		"review_rows", reviewRows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// cellFloat leaves unknown values as empty cells rather than zero.
func cellFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func writeSurvey(f *excelize.File, well entity.WellRecord) {
	header := make([]any, 0, len(constants.PointColumns)+3)
	for _, c := range constants.PointColumns {
		header = append(header, strings.ToUpper(c))
	}
	header = append(header, "Page", "Confidence", "Flags")
	setRow(f, sheetSurvey, 1, header...)

	for i, p := range well.Points {
		row := make([]any, 0, len(header))
		for _, v := range pointValues(p) {
			row = append(row, cellFloat(v))
		}
		flags := make([]string, 0, len(p.Flags))
		for _, fl := range p.Flags {
			flags = append(flags, fl.Field+": "+fl.Reason)
		}
		row = append(row, p.Page+1, p.Confidence, strings.Join(flags, "; "))
		setRow(f, sheetSurvey, i+2, row...)
	}

	_ = f.SetColWidth(sheetSurvey, "A", "F", 12)
	_ = f.SetColWidth(sheetSurvey, "G", "H", 11)
	_ = f.SetColWidth(sheetSurvey, "I", "I", 48)
}

func writeMetadata(f *excelize.File, well entity.WellRecord) {
	setRow(f, sheetMetadata, 1, "Field", "Value", "Page", "Confidence", "Description")
	row := 2
	for _, field := range constants.MetadataFields() {
		value, ok := well.Metadata[field.Name]
		if !ok {
			setRow(f, sheetMetadata, row, field.Name, "", "", "", field.Description)
			row++
			continue
		}
		src := well.Sources[field.Name]
		setRow(f, sheetMetadata, row, field.Name, value, src.Page+1, src.Confidence, field.Description)
		row++
	}

	_ = f.SetColWidth(sheetMetadata, "A", "A", 24)
	_ = f.SetColWidth(sheetMetadata, "B", "B", 36)
	_ = f.SetColWidth(sheetMetadata, "C", "D", 11)
	_ = f.SetColWidth(sheetMetadata, "E", "E", 60)
}

// writeReview returns the number of rows written below the header.
func writeReview(f *excelize.File, well entity.WellRecord, warnings []entity.Warning) int {
	setRow(f, sheetReview, 1, "Kind", "Field", "MD", "Pages", "Detail")
	row := 2
	for _, c := range well.Conflicts {
		values := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			values = append(values, fmt.Sprintf("%q (page %d, %.2f)", v.Value, v.Page+1, v.Confidence))
		}
		setRow(f, sheetReview, row, "conflict", c.Field, "", joinPages(c.Pages()),
			fmt.Sprintf("kept %q of %s", c.Kept, strings.Join(values, ", ")))
		row++
	}
	for _, is := range well.Issues {
		setRow(f, sheetReview, row, is.Kind, "md", is.MD, joinPages(is.Pages), is.Message)
		row++
	}
	for _, w := range warnings {
		detail := w.Reason
		if w.Detail != "" {
			detail += ": " + w.Detail
		}
		if w.Value != "" {
			detail += fmt.Sprintf(" (value %q)", w.Value)
		}
		if w.Demoted {
			detail += " [removed]"
		}
		setRow(f, sheetReview, row, "warning", w.Field, cellFloat(w.MD), joinPages([]int{w.Page}), detail)
		row++
	}

	_ = f.SetColWidth(sheetReview, "A", "B", 20)
	_ = f.SetColWidth(sheetReview, "C", "D", 12)
	_ = f.SetColWidth(sheetReview, "E", "E", 80)
	return row - 2
}
