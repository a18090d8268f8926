// Package retry runs calls into external services under a bounded
// exponential backoff policy.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
)

// Policy bounds retries of transient failures.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration

	// Retryable classifies errors; nil means common.IsRetryable.
	Retryable func(error) bool
}

// FromConfig builds a policy from configuration.
func FromConfig(c common.RetryConfig) Policy {
	return Policy{
		MaxRetries:      c.MaxRetries,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		MaxElapsed:      c.MaxElapsed,
	}
}

// None never retries.
func None() Policy { return Policy{} }

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// Do calls fn until it succeeds, fails permanently or the policy gives up.
// It returns the number of calls made and the last error.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) error) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = common.IsRetryable
	}

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		logger.Warn(op+".retry",
			append(common.LogAttrs(ctx),
				"attempt", attempts,
				"wait_ms", wait.Milliseconds(),
				"error", err)...)
	})
	return attempts, err
}
