// Package retry provides the backoff policy used for calls to external
// providers and the vector index.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential backoff schedule. The zero value is not
// usable; start from Default and override fields as needed.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// Default returns the schedule used throughout the engine:
// initial interval 500ms, max interval 10s, max elapsed 30s.
func Default() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// Backoff builds a context-aware backoff.BackOff from the policy.
func (p Policy) Backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithContext(b, ctx)
}

// Do runs op under the policy until it succeeds, returns a permanent
// error, or the schedule is exhausted. Wrap non-retryable errors with
// backoff.Permanent to fail fast.
func (p Policy) Do(ctx context.Context, op func() error) error {
	return backoff.Retry(op, p.Backoff(ctx))
}
