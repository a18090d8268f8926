// Package export renders a reconciled well record for downstream consumers.
// Nothing here touches the filesystem; callers pass a writer or take bytes.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

const timeLayout = time.RFC3339

// Format names an export layout.
type Format string

const (
	FormatJSON        Format = "json"
	FormatCSV         Format = "csv"
	FormatXLSX        Format = "xlsx"
	FormatInterchange Format = "interchange"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")); f {
	case FormatJSON, FormatCSV, FormatXLSX, FormatInterchange:
		return f, nil
	case "pb.json", "pbjson":
		return FormatInterchange, nil
	}
	return "", common.NewAppError("EXPORT_FORMAT", fmt.Sprintf("unknown export format %q", s), common.ErrInvalidInput)
}

// Service produces export payloads for a run result.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Write renders well in format f to w. warnings feed the review sheet of the
// workbook and are ignored by the other layouts.
func (s *Service) Write(w io.Writer, f Format, well entity.WellRecord, warnings []entity.Warning) error {
	start := time.Now()
	var err error
	switch f {
	case FormatJSON:
		err = WriteMergedJSON(w, well)
	case FormatCSV:
		err = WriteCSV(w, well)
	case FormatXLSX:
		var b []byte
		if b, err = s.XLSX(well, warnings); err == nil {
			_, err = w.Write(b)
		}
	case FormatInterchange:
		var b []byte
		if b, err = MarshalInterchange(well); err == nil {
			_, err = w.Write(b)
		}
	default:
		_, err = ParseFormat(string(f))
	}
	if err != nil {
		s.logger.Error("export.failed", "format", f, "document_id", well.DocumentID, "error", err)
		return err
	}
	s.logger.Info("export.ok",
		"format", f,
		"document_id", well.DocumentID,
		"points", len(well.Points),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// MergedJSON is the flat layout: every catalogue field at the top level
// (null when unknown) plus survey_points.
func MergedJSON(well entity.WellRecord) map[string]any {
	out := make(map[string]any, len(well.Metadata)+1)
	for _, name := range constants.MetadataFieldNames() {
		if v, ok := well.Metadata[name]; ok {
			out[name] = v
		} else {
			out[name] = nil
		}
	}
	points := make([]map[string]*float64, 0, len(well.Points))
	for _, p := range well.Points {
		points = append(points, map[string]*float64{
			constants.PointMD:  p.MD,
			constants.PointINC: p.INC,
			constants.PointAZI: p.AZI,
			constants.PointTVD: p.TVD,
			constants.PointNS:  p.NS,
			constants.PointEW:  p.EW,
		})
	}
	out["survey_points"] = points
	return out
}

func WriteMergedJSON(w io.Writer, well entity.WellRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(MergedJSON(well))
}

func pointValues(p entity.SurveyPoint) []*float64 {
	return []*float64{p.MD, p.INC, p.AZI, p.TVD, p.NS, p.EW}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p + 1)
	}
	return strings.Join(parts, ",")
}
