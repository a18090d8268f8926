// Package limiter guards calls into the OCR and LLM services with a shared
// rate limit and concurrency cap.
package limiter

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
)

// Limiter is safe for concurrent use by all page workers of a process.
type Limiter struct {
	name     string
	rate     *rate.Limiter
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	logger   *slog.Logger
}

// New returns a limiter. A zero rate means unlimited calls per second and a
// zero concurrency means no cap on calls in flight.
func New(name string, cfg common.LimiterConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{name: name, logger: logger}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	l.rate = rate.NewLimiter(limit, burst)

	if cfg.Concurrency > 0 {
		l.sem = semaphore.NewWeighted(cfg.Concurrency)
	}
	return l
}

// Acquire blocks until a call may start. The returned release func must be
// called exactly once; it is safe to defer immediately. On error nothing is
// held.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return func() {}, err
		}
	}
	if err := l.rate.Wait(ctx); err != nil {
		if l.sem != nil {
			l.sem.Release(1)
		}
		l.logger.Debug("limiter.wait.aborted", append(common.LogAttrs(ctx), "limiter", l.name, "error", err)...)
		return func() {}, err
	}

	l.inFlight.Add(1)
	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		l.inFlight.Add(-1)
		if l.sem != nil {
			l.sem.Release(1)
		}
	}, nil
}

// Do runs fn while holding the limiter and releases it however fn ends.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx)
	defer release()
	if err != nil {
		return err
	}
	return fn(ctx)
}

// InFlight returns the number of calls currently holding the limiter.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

func (l *Limiter) Name() string { return l.name }
