// Package pipeline runs a document through the page stages on a bounded
// worker pool and reconciles the surviving pages into one well record.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/evidence"
	"github.com/joseph-ayodele/survey-extractor/internal/llm"
	"github.com/joseph-ayodele/survey-extractor/internal/observe"
	"github.com/joseph-ayodele/survey-extractor/internal/ocr"
	"github.com/joseph-ayodele/survey-extractor/internal/reconcile"
	"github.com/joseph-ayodele/survey-extractor/internal/validate"
)

// Config holds run-level knobs.
type Config struct {
	Workers int // pages processed concurrently, default 4
	DPI     int // 0 means the rasterizer default
}

// Stages are the components a page passes through.
type Stages struct {
	Rasterizer *ocr.Rasterizer
	Detector   *ocr.Detector
	Assembler  *evidence.Assembler
	Builder    *llm.PromptBuilder
	Extractor  *llm.Extractor
	Validator  *validate.SchemaValidator
	Reconciler *reconcile.Reconciler
}

// Recorder persists run and page outcomes. Calls for different pages of a
// run may arrive concurrently.
type Recorder interface {
	StartRun(ctx context.Context, run entity.ExtractionRun) error
	RecordPage(ctx context.Context, page entity.PageOutcome) error
	FinishRun(ctx context.Context, run entity.ExtractionRun) error
}

// Result is the outcome of one run. Well is nil when no page was usable or
// the run was cancelled.
type Result struct {
	Well   *entity.WellRecord
	Report entity.Report
}

// Processor coordinates rasterize, detect, assemble, extract and validate per
// page, then reconciles.
type Processor struct {
	cfg      Config
	stages   Stages
	recorder Recorder
	logger   *slog.Logger
}

// NewProcessor needs at least the OCR stages; Run also needs the extraction
// stages. recorder may be nil.
func NewProcessor(cfg Config, stages Stages, recorder Recorder, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if stages.Rasterizer == nil || stages.Detector == nil || stages.Assembler == nil {
		return nil, common.NewAppError("CONFIG_ERROR", "pipeline needs rasterizer, detector and assembler", common.ErrInvalidInput)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	return &Processor{cfg: cfg, stages: stages, recorder: recorder, logger: logger}, nil
}

// Run extracts the selected pages of doc. Page failures are reported in the
// result and never abort siblings. The error is non-nil when the document
// cannot be opened, a page index is invalid, no page yields usable data
// (common.ErrNoUsablePages) or ctx is cancelled; the report is filled in as
// far as the run got in every case.
func (p *Processor) Run(ctx context.Context, doc entity.SourceDocument) (Result, error) {
	runID := common.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = common.WithRunID(ctx, runID)
	}
	report := entity.Report{RunID: runID, DocumentID: doc.ID, Status: constants.RunStatusRunning, StartedAt: time.Now().UTC()}
	attrs := common.LogAttrs(ctx)

	if p.stages.Builder == nil || p.stages.Extractor == nil || p.stages.Validator == nil || p.stages.Reconciler == nil {
		return Result{Report: report}, common.NewAppError("CONFIG_ERROR", "pipeline has no extraction stages", common.ErrInvalidInput)
	}

	session, err := p.stages.Rasterizer.Open(ctx, doc)
	if err != nil {
		return p.fail(ctx, doc, report, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Warn("pipeline.cleanup_failed", append(attrs, "error", err)...)
		}
	}()

	indices, err := selectPages(session, doc)
	if err != nil {
		return p.fail(ctx, doc, report, err)
	}

	ctx, span := observe.StartRun(ctx, runID, doc.ID, len(indices))
	p.record(ctx, func(ctx context.Context) error {
		return p.recorder.StartRun(ctx, entity.ExtractionRun{
			ID: runID, DocumentID: doc.ID, Filename: doc.Filename, Status: constants.RunStatusRunning,
			PagesTotal: len(indices), ModelName: modelName(p.stages.Extractor), StartedAt: report.StartedAt,
		})
	})
	p.logger.Info("pipeline.run.start", append(attrs, "document_id", doc.ID, "pages", len(indices), "workers", p.cfg.Workers)...)

	report.Pages = p.processPages(ctx, session, indices)
	for _, pr := range report.Pages {
		if pr.Record != nil {
			report.Warnings = append(report.Warnings, pr.Record.Warnings...)
		}
	}

	res, err := p.finish(ctx, doc, report)
	observe.End(span, err)
	return res, err
}

// processPages runs one task per page. Slots are preallocated so tasks never
// share state; pages not started before cancellation are marked cancelled.
func (p *Processor) processPages(ctx context.Context, session *ocr.Session, indices []int) []entity.PageResult {
	results := make([]entity.PageResult, len(indices))
	for i, idx := range indices {
		results[i] = entity.PageResult{Page: idx, Status: constants.PageStatusPending}
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, idx := range indices {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = p.processPage(ctx, session, idx)
			p.recordPage(ctx, results[i])
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		if results[i].Status == constants.PageStatusPending {
			results[i].Status = constants.PageStatusCancelled
			results[i].Err = context.Cause(ctx)
			results[i].ErrorMessage = "not started: run cancelled"
			p.recordPage(ctx, results[i])
		}
	}
	return results
}

func (p *Processor) finish(ctx context.Context, doc entity.SourceDocument, report entity.Report) (Result, error) {
	attrs := common.LogAttrs(ctx)
	report.FinishedAt = time.Now().UTC()

	if err := ctx.Err(); err != nil {
		report.Status = constants.RunStatusCancelled
		p.logger.Warn("pipeline.run.cancelled", append(attrs,
			"completed", report.Count(constants.PageStatusOK), "pages", len(report.Pages))...)
		p.finishRun(ctx, doc, report, nil, err)
		return Result{Report: report}, err
	}

	well, err := p.stages.Reconciler.Reconcile(doc.ID, report.Records())
	if err != nil {
		report.Status = constants.RunStatusFailed
		p.logger.Error("pipeline.run.failed", append(attrs, "error", err, "pages", len(report.Pages))...)
		p.finishRun(ctx, doc, report, nil, err)
		return Result{Report: report}, err
	}

	report.Status = constants.RunStatusSucceeded
	if report.Count(constants.PageStatusOK) < len(report.Pages) {
		report.Status = constants.RunStatusPartial
	}
	p.logger.Info("pipeline.run.done", append(attrs,
		"status", report.Status,
		"pages_ok", report.Count(constants.PageStatusOK),
		"pages", len(report.Pages),
		"points", len(well.Points),
		"conflicts", len(well.Conflicts),
		"warnings", len(report.Warnings),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds())...)
	p.finishRun(ctx, doc, report, &well, nil)
	return Result{Well: &well, Report: report}, nil
}

// fail ends a run that never reached the page stage.
func (p *Processor) fail(ctx context.Context, doc entity.SourceDocument, report entity.Report, err error) (Result, error) {
	report.Status = constants.RunStatusFailed
	report.FinishedAt = time.Now().UTC()
	p.logger.Error("pipeline.run.rejected", append(common.LogAttrs(ctx), "document_id", doc.ID, "error", err)...)
	p.record(ctx, func(ctx context.Context) error {
		return p.recorder.StartRun(ctx, entity.ExtractionRun{
			ID: report.RunID, DocumentID: doc.ID, Filename: doc.Filename,
			Status: constants.RunStatusRunning, StartedAt: report.StartedAt,
		})
	})
	p.finishRun(ctx, doc, report, nil, err)
	return Result{Report: report}, err
}

func (p *Processor) finishRun(ctx context.Context, doc entity.SourceDocument, report entity.Report, well *entity.WellRecord, runErr error) {
	p.record(ctx, func(ctx context.Context) error {
		run, err := runRow(doc, report, well, runErr)
		if err != nil {
			return err
		}
		run.ModelName = modelName(p.stages.Extractor)
		return p.recorder.FinishRun(ctx, run)
	})
}

func (p *Processor) recordPage(ctx context.Context, pr entity.PageResult) {
	p.record(ctx, func(ctx context.Context) error {
		row, err := pageRow(common.RunIDFromContext(ctx), pr)
		if err != nil {
			return err
		}
		return p.recorder.RecordPage(ctx, row)
	})
}

// record writes to the ledger even after cancellation. Ledger failures are
// logged and never fail the run.
func (p *Processor) record(ctx context.Context, fn func(ctx context.Context) error) {
	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		p.logger.Error("pipeline.ledger.failed", append(common.LogAttrs(ctx), "error", err)...)
	}
}

// selectPages returns the selected page indices, or every page when none is
// selected.
func selectPages(session *ocr.Session, doc entity.SourceDocument) ([]int, error) {
	indices := doc.SelectedIndices()
	if len(indices) == 0 {
		for i := range session.Pages() {
			indices = append(indices, i)
		}
	}
	return indices, session.CheckIndices(indices)
}

func modelName(e *llm.Extractor) *string {
	if e == nil {
		return nil
	}
	name := e.Model()
	return &name
}

