package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document run waiting for a worker.
type Job struct {
	RunID       string
	Document    entity.SourceDocument
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner executes one document run.
type Runner interface {
	Run(ctx context.Context, doc entity.SourceDocument) (pipeline.Result, error)
}
