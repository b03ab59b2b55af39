// Package retry provides the bounded exponential-backoff policy shared by
// the transcription and grammar clients.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how an outbound call is retried. The zero value retries
// nothing; use DefaultPolicy for the usual three attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the bot's standard outbound-call behavior.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Do runs op until it succeeds, returns a permanent error, the attempt
// budget is exhausted, or ctx is cancelled. Delays grow exponentially with
// jitter starting from BaseDelay.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}

// Permanent marks err as non-retryable; Do stops immediately and returns
// the wrapped error.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
