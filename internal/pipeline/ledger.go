package pipeline

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

func runRow(doc entity.SourceDocument, report entity.Report, well *entity.WellRecord, runErr error) (entity.ExtractionRun, error) {
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	run := entity.ExtractionRun{
		ID:         report.RunID,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     report.Status,
		PagesTotal: len(report.Pages),
		PagesOK:    report.Count(constants.PageStatusOK),
		StartedAt:  report.StartedAt,
		FinishedAt: &finished,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg
	}
	if well != nil {
		b, err := json.Marshal(well)
		if err != nil {
			return run, err
		}
		run.WellJSON = b
		run.NeedsReview = well.NeedsReview() || len(report.Warnings) > 0 || run.Status != constants.RunStatusSucceeded
	}
	return run, nil
}

func pageRow(runID string, pr entity.PageResult) (entity.PageOutcome, error) {
	row := entity.PageOutcome{
		RunID:          runID,
		Page:           pr.Page,
		Status:         pr.Status,
		Fragments:      pr.Fragments,
		MeanConfidence: pr.MeanConfidence,
		Attempts:       pr.Attempts,
	}
	if pr.ErrorMessage != "" {
		msg := pr.ErrorMessage
		row.ErrorMessage = &msg
	}
	if pr.Record != nil {
		var err error
		if len(pr.Record.Warnings) > 0 {
			if row.WarningsJSON, err = json.Marshal(pr.Record.Warnings); err != nil {
				return row, err
			}
		}
		if row.RecordJSON, err = json.Marshal(pr.Record); err != nil {
			return row, err
		}
	}
	return row, nil
}
