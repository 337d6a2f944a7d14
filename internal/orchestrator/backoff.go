package orchestrator

import (
	"context"
	"math/rand"
	"time"
)

const maxBackoffShift = 20

// ComputeBackoff returns base × 2^attempt with up to 50% jitter, the
// transient-error retry schedule. attempt is the number of failed attempts
// so far (runItem passes 1 before the first retry); negative values count
// as 0.
func ComputeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}

	backoff := base << uint(attempt)
	halfJitter := int64(backoff) / 2
	if halfJitter <= 0 {
		return backoff
	}
	return backoff/2 + time.Duration(rand.Int63n(halfJitter+1))
}

// sleepWithContext blocks for d or until ctx is done, whichever comes
// first, satisfying the requirement that cancellation is observed at every
// backoff sleep.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
