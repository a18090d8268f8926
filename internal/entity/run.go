package entity

import (
	"time"

	"github.com/joseph-ayodele/survey-extractor/constants"
)

// PageResult is the outcome of one page task.
type PageResult struct {
	Page           int                  `json:"page"`
	Status         constants.PageStatus `json:"status"`
	Err            error                `json:"-"`
	ErrorMessage   string               `json:"error,omitempty"`
	Fragments      int                  `json:"fragments"`
	MeanConfidence float64              `json:"mean_confidence"`
	Attempts       int                  `json:"attempts,omitempty"`
	Record         *ValidatedRecord     `json:"record,omitempty"`
	Duration       time.Duration        `json:"duration"`
}

// Report is the structured account of a run: every page outcome plus every
// field-level warning.
type Report struct {
	RunID      string              `json:"run_id"`
	DocumentID string              `json:"document_id"`
	Status     constants.RunStatus `json:"status"`
	Pages      []PageResult        `json:"pages"`
	Warnings   []Warning           `json:"warnings,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Records returns the validated records of successful pages, in page order.
func (r Report) Records() []ValidatedRecord {
	var out []ValidatedRecord
	for _, p := range r.Pages {
		if p.Record != nil {
			out = append(out, *p.Record)
		}
	}
	return out
}

// Count returns how many pages ended with status s.
func (r Report) Count(s constants.PageStatus) int {
	n := 0
	for _, p := range r.Pages {
		if p.Status == s {
			n++
		}
	}
	return n
}

// ExtractionRun is a ledger row for data transfer between layers.
type ExtractionRun struct {
	ID           string              `json:"id"`
	DocumentID   string              `json:"document_id"`
	Filename     string              `json:"filename,omitempty"`
	Status       constants.RunStatus `json:"status"`
	PagesTotal   int                 `json:"pages_total"`
	PagesOK      int                 `json:"pages_ok"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	NeedsReview  bool                `json:"needs_review"`
	ModelName    *string             `json:"model_name,omitempty"`
	WellJSON     []byte              `json:"well_json,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// PageOutcome is a ledger row for one page of a run.
type PageOutcome struct {
	RunID          string               `json:"run_id"`
	Page           int                  `json:"page"`
	Status         constants.PageStatus `json:"status"`
	ErrorMessage   *string              `json:"error_message,omitempty"`
	Fragments      int                  `json:"fragments"`
	MeanConfidence float64              `json:"mean_confidence"`
	Attempts       int                  `json:"attempts"`
	WarningsJSON   []byte               `json:"warnings_json,omitempty"`
	RecordJSON     []byte               `json:"record_json,omitempty"`
}
