package storage

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	retryBaseDelay = 2 * time.Millisecond
	retryMaxDelay  = 100 * time.Millisecond
)

// retryTransaction calls run until it succeeds, fails with an error that
// retryable rejects, ctx ends, or maxAttempts is used up. Attempts after the
// first wait a jittered, exponentially growing delay so that writers racing
// on one document spread out instead of colliding again.
func retryTransaction(ctx context.Context, maxAttempts int, retryable func(error) bool, run func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, retryDelay(attempt)); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := run()
		if err == nil || !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w after %d attempts: %w", port.ErrTxConflict, maxAttempts, lastErr)
}

// retryDelay returns a random delay in [d/2, d) where d doubles per attempt
// up to retryMaxDelay.
func retryDelay(attempt int) time.Duration {
	d := retryMaxDelay
	if attempt < 16 {
		if backoff := retryBaseDelay << attempt; backoff < retryMaxDelay {
			d = backoff
		}
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
