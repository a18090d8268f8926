package export

import (
	"encoding/csv"
	"io"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// CSVHeader is the column layout of WriteCSV: the point columns followed by
// the metadata catalogue.
func CSVHeader() []string {
	return append(append([]string{}, constants.PointColumns...), constants.MetadataFieldNames()...)
}

// WriteCSV writes one row per survey point with the well metadata repeated on
// every row. A record without points still gets a single metadata row.
func WriteCSV(w io.Writer, well entity.WellRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader()); err != nil {
		return err
	}

	names := constants.MetadataFieldNames()
	meta := make([]string, len(names))
	for i, name := range names {
		meta[i] = well.Metadata[name]
	}

	points := well.Points
	if len(points) == 0 {
		points = []entity.SurveyPoint{{}}
	}
	for _, p := range points {
		row := make([]string, 0, len(constants.PointColumns)+len(meta))
		for _, v := range pointValues(p) {
			row = append(row, formatFloat(v))
		}
		row = append(row, meta...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
