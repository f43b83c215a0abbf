package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-ledger/internal/port"
)

var errRetry = errors.New("retry me")

func isErrRetry(err error) bool { return errors.Is(err, errRetry) }

func TestRetryDelayBounds(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := retryDelay(attempt)
		ceiling := retryMaxDelay
		if attempt < 16 && retryBaseDelay<<attempt < retryMaxDelay {
			ceiling = retryBaseDelay << attempt
		}
		assert.GreaterOrEqual(t, d, ceiling/2, "attempt %d", attempt)
		assert.Less(t, d, ceiling, "attempt %d", attempt)
	}
}

func TestRetryTransaction(t *testing.T) {
	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := retryTransaction(context.Background(), 5, isErrRetry, func() error {
			calls++
			if calls < 3 {
				return errRetry
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are returned at once", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := retryTransaction(context.Background(), 5, isErrRetry, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted budget wraps the last error", func(t *testing.T) {
		calls := 0
		err := retryTransaction(context.Background(), 4, isErrRetry, func() error {
			calls++
			return errRetry
		})
		assert.ErrorIs(t, err, port.ErrTxConflict)
		assert.ErrorIs(t, err, errRetry)
		assert.Equal(t, 4, calls)
	})

	t.Run("canceled context stops the backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retryTransaction(ctx, 100, isErrRetry, func() error {
			calls++
			cancel()
			return errRetry
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("deadline during the wait", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := retryTransaction(ctx, 1000, isErrRetry, func() error { return errRetry })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
