package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

const shortReset = 30 * time.Millisecond

func newTestBreaker(maxFailures int, reset time.Duration) *Breaker {
	return New("test", Config{MaxFailures: maxFailures, ResetTimeout: reset}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

// waitHalfOpen waits out the reset timeout so the next call is the trial.
func waitHalfOpen(t *testing.T, b *Breaker) {
	t.Helper()
	require.Eventually(t, func() bool { return b.State() == HalfOpen }, time.Second, 5*time.Millisecond)
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
		assert.Equal(t, Closed, b.State())
	}
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))
	_ = b.Execute(ctx, fail)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	ctx := context.Background()

	t.Run("success closes", func(t *testing.T) {
		b := newTestBreaker(1, shortReset)
		_ = b.Execute(ctx, fail)
		require.Equal(t, Open, b.State())

		waitHalfOpen(t, b)
		require.NoError(t, b.Execute(ctx, succeed))
		assert.Equal(t, Closed, b.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		b := newTestBreaker(5, shortReset)
		for i := 0; i < 5; i++ {
			_ = b.Execute(ctx, fail)
		}
		waitHalfOpen(t, b)
		assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
		assert.Equal(t, Open, b.State())
		assert.ErrorIs(t, b.Execute(ctx, succeed), ErrOpen)
	})

	t.Run("only one trial", func(t *testing.T) {
		b := newTestBreaker(1, shortReset)
		_ = b.Execute(ctx, fail)
		waitHalfOpen(t, b)

		err := b.Execute(ctx, func(ctx context.Context) error {
			assert.ErrorIs(t, b.Execute(ctx, succeed), ErrOpen)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, Closed, b.State())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
}
