package export

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// WellToStruct converts a well record into its language-neutral tree form. The
// field layout is the record's JSON layout: metadata, sources, survey_points,
// conflicts, issues and pages.
func WellToStruct(well entity.WellRecord) (*structpb.Struct, error) {
	return toStruct(well)
}

// WellFromStruct is the inverse of WellToStruct.
func WellFromStruct(s *structpb.Struct) (entity.WellRecord, error) {
	var well entity.WellRecord
	if s == nil {
		return well, fmt.Errorf("interchange: nil struct")
	}
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return well, fmt.Errorf("interchange: %w", err)
	}
	if err := json.Unmarshal(b, &well); err != nil {
		return well, fmt.Errorf("interchange: %w", err)
	}
	return well, nil
}

// MarshalInterchange renders a well record as protobuf JSON.
func MarshalInterchange(well entity.WellRecord) ([]byte, error) {
	s, err := WellToStruct(well)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
}

// UnmarshalInterchange parses what MarshalInterchange produced.
func UnmarshalInterchange(b []byte) (entity.WellRecord, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(b, &s); err != nil {
		return entity.WellRecord{}, fmt.Errorf("interchange: %w", err)
	}
	return WellFromStruct(&s)
}

type pageView struct {
	Page           int     `json:"page"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	Fragments      int     `json:"fragments"`
	MeanConfidence float64 `json:"mean_confidence"`
	Attempts       int     `json:"attempts"`
	Points         int     `json:"points"`
	Warnings       int     `json:"warnings"`
	DurationMS     int64   `json:"duration_ms"`
}

type reportView struct {
	RunID      string           `json:"run_id"`
	DocumentID string           `json:"document_id"`
	Status     string           `json:"status"`
	Pages      []pageView       `json:"pages"`
	Warnings   []entity.Warning `json:"warnings"`
	StartedAt  string           `json:"started_at"`
	FinishedAt string           `json:"finished_at,omitempty"`
}

// ReportToStruct flattens a run report into the tree form. Page records are
// summarised; the merged data travels in the well record.
func ReportToStruct(report entity.Report) (*structpb.Struct, error) {
	view := reportView{
		RunID:      report.RunID,
		DocumentID: report.DocumentID,
		Status:     string(report.Status),
		Pages:      make([]pageView, 0, len(report.Pages)),
		Warnings:   report.Warnings,
		StartedAt:  report.StartedAt.Format(timeLayout),
	}
	if view.Warnings == nil {
		view.Warnings = []entity.Warning{}
	}
	if !report.FinishedAt.IsZero() {
		view.FinishedAt = report.FinishedAt.Format(timeLayout)
	}
	for _, p := range report.Pages {
		pv := pageView{
			Page:           p.Page,
			Status:         string(p.Status),
			Error:          p.ErrorMessage,
			Fragments:      p.Fragments,
			MeanConfidence: p.MeanConfidence,
			Attempts:       p.Attempts,
			DurationMS:     p.Duration.Milliseconds(),
		}
		if p.Record != nil {
			pv.Points = len(p.Record.Points)
			pv.Warnings = len(p.Record.Warnings)
		}
		view.Pages = append(view.Pages, pv)
	}
	return toStruct(view)
}

// toStruct goes through JSON so struct tags decide the layout.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("interchange: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("interchange: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("interchange: %w", err)
	}
	return s, nil
}
