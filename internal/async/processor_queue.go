package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
)

type ProcessorQueue struct {
	proc    Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	// base is cancelled when Shutdown gives up waiting
	base   context.Context
	cancel context.CancelFunc
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc Runner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 15 * time.Minute,
		ch:      make(chan Job, 32),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Info("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx := common.WithRunID(q.base, job.RunID)
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	res, err := q.proc.Run(ctx, job.Document)
	attrs := append(common.LogAttrs(ctx),
		"worker_id", workerID,
		"document_id", job.Document.ID,
		"status", res.Report.Status,
		"waited_ms", time.Since(job.SubmittedAt).Milliseconds())
	if err != nil {
		q.logger.Error("queue.run.failed", append(attrs, "error", err)...)
		return
	}
	q.logger.Info("queue.run.done", attrs...)
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "run_id", job.RunID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueued", "run_id", job.RunID, "document_id", job.Document.ID)
		return nil
	default:
	}

	q.logger.Warn("queue.full", "run_id", job.RunID, "capacity", cap(q.ch))
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued runs to drain. When ctx
// ends first, runs in flight are cancelled.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
		q.cancel()
		<-done
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
	q.cancel()
}
