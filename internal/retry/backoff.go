// Package retry implements the bounded exponential backoff used by the
// projector for transient read-model upsert failures and by the ingestion
// worker for concurrency-conflict retries. The document store adapters do
// not use it: their Throttled/Transient errors are returned unretried.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures a bounded exponential backoff. With a Multiplier above
// 1 each wait is jittered; with a Multiplier of 1 or less the delay is fixed.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultPolicy mirrors the "bounded number of attempts" language in the
// base design: a handful of retries, capped delay, each wait jittered to
// 50-100% of the current delay.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  5,
		Multiplier:   2.0,
	}
}

// Do runs fn until it returns a nil error, the policy's attempt budget is
// exhausted, ctx is cancelled, or fn reports a non-retryable error via
// shouldRetry returning false. It returns the last error seen.
func Do(ctx context.Context, p Policy, shouldRetry func(error) bool, fn func(ctx context.Context) error) error {
	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		wait := delay
		if p.Multiplier > 1 {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}
