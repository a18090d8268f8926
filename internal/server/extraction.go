package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/async"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/export"
	"github.com/joseph-ayodele/survey-extractor/internal/repository"
)

// ExtractionService implements ExtractionServer over a pipeline runner, the
// async queue and the run ledger. queue and ledger may be nil, which disables
// Submit and GetRun respectively.
type ExtractionService struct {
	runner   async.Runner
	queue    async.Queue
	ledger   repository.RunRepository
	maxBytes int
	logger   *slog.Logger
}

// Option configures an ExtractionService.
type Option func(*ExtractionService)

// WithQueue enables Submit.
func WithQueue(q async.Queue) Option {
	return func(s *ExtractionService) { s.queue = q }
}

// WithLedger enables GetRun and records queued runs.
func WithLedger(l repository.RunRepository) Option {
	return func(s *ExtractionService) { s.ledger = l }
}

// WithMaxDocumentBytes caps the decoded request size; 0 means unlimited.
func WithMaxDocumentBytes(n int) Option {
	return func(s *ExtractionService) { s.maxBytes = n }
}

func NewExtractionService(runner async.Runner, logger *slog.Logger, opts ...Option) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ExtractionService{runner: runner, logger: logger, maxBytes: 64 << 20}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ ExtractionServer = (*ExtractionService)(nil)

// Extract runs the document and answers with run_id, status, well and
// report. A run where no page yielded data still answers with its report and
// an error message; only bad input and cancellation are gRPC errors.
func (s *ExtractionService) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := documentFromRequest(req, s.maxBytes)
	if err != nil {
		s.logger.Warn("extract request rejected", "error", err)
		return nil, err
	}

	s.logger.Info("extract request", append(common.LogAttrs(ctx), "document_id", doc.ID, "filename", doc.Filename)...)
	res, runErr := s.runner.Run(ctx, doc)
	if runErr != nil && !errors.Is(runErr, common.ErrNoUsablePages) {
		s.logger.Error("extract failed", append(common.LogAttrs(ctx), "document_id", doc.ID, "error", runErr)...)
		return nil, common.GRPCError(runErr)
	}

	report, err := export.ReportToStruct(res.Report)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := map[string]any{
		"run_id": res.Report.RunID,
		"status": string(res.Report.Status),
		"well":   nil,
	}
	if runErr != nil {
		out["error"] = runErr.Error()
	}
	resp, err := structpb.NewStruct(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	resp.Fields["report"] = structpb.NewStructValue(report)
	if res.Well != nil {
		well, err := export.WellToStruct(*res.Well)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		resp.Fields["well"] = structpb.NewStructValue(well)
		resp.Fields["needs_review"] = structpb.NewBoolValue(res.Well.NeedsReview() || len(res.Report.Warnings) > 0)
	}
	return resp, nil
}

// Submit queues the document and answers with run_id and status QUEUED.
func (s *ExtractionService) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.queue == nil {
		return nil, status.Error(codes.Unimplemented, "async submission is not enabled")
	}
	doc, err := documentFromRequest(req, s.maxBytes)
	if err != nil {
		s.logger.Warn("submit request rejected", "error", err)
		return nil, err
	}

	runID, err := s.SubmitDocument(ctx, doc)
	switch {
	case err == nil:
	case errors.Is(err, async.ErrQueueClosed):
		return nil, status.Error(codes.Unavailable, err.Error())
	case ctx.Err() != nil:
		return nil, common.GRPCError(err)
	case errors.Is(err, common.ErrDatabase):
		return nil, status.Error(codes.Internal, err.Error())
	default:
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"run_id":      runID,
		"document_id": doc.ID,
		"status":      string(constants.RunStatusQueued),
	})
}

// SubmitDocument records doc as queued and hands it to the worker queue. It
// returns the run id the queued run will carry.
func (s *ExtractionService) SubmitDocument(ctx context.Context, doc entity.SourceDocument) (string, error) {
	if s.queue == nil {
		return "", common.NewAppError("CONFIG_ERROR", "async submission is not enabled", common.ErrInvalidInput)
	}
	job := async.Job{
		RunID:       uuid.NewString(),
		Document:    doc,
		SubmittedAt: time.Now().UTC(),
		RequestID:   common.RequestIDFromContext(ctx),
	}
	if s.ledger != nil {
		if err := s.ledger.StartRun(ctx, entity.ExtractionRun{
			ID: job.RunID, DocumentID: doc.ID, Filename: doc.Filename,
			Status: constants.RunStatusQueued, StartedAt: job.SubmittedAt,
		}); err != nil {
			return "", err
		}
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Warn("submit enqueue failed", "run_id", job.RunID, "error", err)
		s.abandon(job, err)
		return "", err
	}
	s.logger.Info("submit queued", "run_id", job.RunID, "document_id", doc.ID, "filename", doc.Filename)
	return job.RunID, nil
}

// abandon closes the ledger row of a job that never reached the queue.
func (s *ExtractionService) abandon(job async.Job, cause error) {
	if s.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := "not queued: " + cause.Error()
	now := time.Now().UTC()
	if err := s.ledger.FinishRun(ctx, entity.ExtractionRun{
		ID: job.RunID, Status: constants.RunStatusCancelled, ErrorMessage: &msg, FinishedAt: &now,
	}); err != nil {
		s.logger.Error("submit ledger cleanup failed", "run_id", job.RunID, "error", err)
	}
}

// GetRun answers with the ledger row under "run" and page outcomes under
// "pages". The merged well record, once present, is under "run.well".
func (s *ExtractionService) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ledger == nil {
		return nil, status.Error(codes.Unimplemented, "run ledger is not configured")
	}
	id, err := runIDFromRequest(req)
	if err != nil {
		return nil, err
	}
	run, pages, err := s.ledger.GetRun(ctx, id)
	if err != nil {
		if !repository.IsNotFound(err) {
			s.logger.Error("get run failed", "run_id", id, "error", err)
		}
		return nil, common.GRPCError(err)
	}

	runView, err := runToMap(*run)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	pageViews := make([]any, 0, len(pages))
	for _, p := range pages {
		v, err := pageToMap(p)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		pageViews = append(pageViews, v)
	}
	resp, err := structpb.NewStruct(map[string]any{"run": runView, "pages": pageViews})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func runToMap(run entity.ExtractionRun) (map[string]any, error) {
	m := map[string]any{
		"id":           run.ID,
		"document_id":  run.DocumentID,
		"filename":     run.Filename,
		"status":       string(run.Status),
		"pages_total":  run.PagesTotal,
		"pages_ok":     run.PagesOK,
		"needs_review": run.NeedsReview,
		"started_at":   run.StartedAt.UTC().Format(time.RFC3339),
	}
	if run.ErrorMessage != nil {
		m["error_message"] = *run.ErrorMessage
	}
	if run.ModelName != nil {
		m["model_name"] = *run.ModelName
	}
	if run.FinishedAt != nil {
		m["finished_at"] = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	if len(run.WellJSON) > 0 {
		var well map[string]any
		if err := json.Unmarshal(run.WellJSON, &well); err != nil {
			return nil, err
		}
		m["well"] = well
	}
	return m, nil
}

func pageToMap(p entity.PageOutcome) (map[string]any, error) {
	m := map[string]any{
		"page":            p.Page,
		"status":          string(p.Status),
		"fragments":       p.Fragments,
		"mean_confidence": p.MeanConfidence,
		"attempts":        p.Attempts,
	}
	if p.ErrorMessage != nil {
		m["error"] = *p.ErrorMessage
	}
	if len(p.WarningsJSON) > 0 {
		var warnings []any
		if err := json.Unmarshal(p.WarningsJSON, &warnings); err != nil {
			return nil, err
		}
		m["warnings"] = warnings
	}
	return m, nil
}
