package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Service loads survey documents from disk and submits them for async
// extraction.
type Service struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewService creates a new ingest service.
func NewService(s Submitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{submitter: s, logger: logger}
}

// IngestFile loads path, flags the selected zero-based pages and queues it.
func (s *Service) IngestFile(ctx context.Context, path string, pages []int) (FileResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return FileResult{}, errors.New("path is required")
	}
	doc, hexHash, err := LoadFile(path)
	if err != nil {
		s.logger.Warn("ingest load failed", "path", path, "error", err)
		return FileResult{Path: path}, err
	}
	res := FileResult{Path: path, DocumentID: doc.ID, HashHex: hexHash, Format: doc.Format}
	if err := SelectPages(&doc, pages); err != nil {
		return res, err
	}

	runID, err := s.submitter.SubmitDocument(ctx, doc)
	if err != nil {
		s.logger.Error("ingest submit failed", "path", path, "document_id", doc.ID, "error", err)
		return res, err
	}
	res.RunID = runID
	s.logger.Info("file ingest queued", "path", path, "document_id", doc.ID, "run_id", runID)
	return res, nil
}

// IngestDirectory queues every supported document under root.
func (s *Service) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	s.logger.Info("starting directory ingest", "root", root, "skip_hidden", skipHidden)
	results, stats, err := WalkDocuments(ctx, root, skipHidden, func(ctx context.Context, path string) (FileResult, error) {
		return s.IngestFile(ctx, path, nil)
	})
	if err != nil {
		return results, stats, err
	}
	s.logger.Info("directory ingest completed", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched, "succeeded", stats.Succeeded, "failed", stats.Failed)
	return results, stats, nil
}

// Watch queues documents as they appear under the configured roots until ctx
// is done.
func (s *Service) Watch(ctx context.Context, cfg WatchConfig) error {
	events, errs, err := StartWatcher(ctx, cfg, s.logger)
	if err != nil {
		return err
	}
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			if _, err := s.IngestFile(ctx, path, nil); err != nil && ctx.Err() == nil {
				s.logger.Warn("watched file not queued", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("watch error", "error", err)
		}
	}
}
