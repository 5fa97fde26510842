package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retryer retries an operation with exponential backoff. The zero value is
// usable: 4 total attempts (one call plus three retries), backoff starting
// at 1 s and doubling to a 10 s cap, every error considered retryable.
//
// Retryer is safe for concurrent use; all fields must be set before the
// first Do call.
type Retryer struct {
	// MaxAttempts is the total number of attempts (first call included).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling backoff.
	MaxBackoff time.Duration

	// Classify reports whether an error is worth retrying. Nil means all
	// errors are retryable.
	Classify func(error) bool

	// Sleep waits for the given backoff. Nil means a context-aware timer
	// wait. Tests inject a recorder here.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op until it succeeds, exhausts the attempt budget, hits a
// non-retryable error, or ctx is cancelled. The last error is returned
// wrapped with the attempt count.
func (r *Retryer) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	backoff := r.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := r.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("resilience: %s cancelled after %d attempts: %w", name, attempt-1, err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if r.Classify != nil && !r.Classify(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		slog.Warn("operation failed, retrying",
			"operation", name,
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr)
		if err := sleep(ctx, backoff); err != nil {
			return fmt.Errorf("resilience: %s cancelled during backoff: %w", name, err)
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return fmt.Errorf("resilience: %s failed after %d attempts: %w", name, maxAttempts, lastErr)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
