package resilience

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdhomie/internal/errors"
)

type tempErr struct{ temp bool }

func (e tempErr) Error() string   { return fmt.Sprintf("temporary=%v", e.temp) }
func (e tempErr) Temporary() bool { return e.temp }

func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		start := time.Now()
		calls := 0
		err := Retry(t.Context(), DefaultRetryConfig(), "test", func(context.Context) error {
			calls++
			if calls < 3 {
				return assert.AnError
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		// 1s + 2s of backoff
		assert.Equal(t, 3*time.Second, time.Since(start))
	})
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), DefaultRetryConfig(), "test", func(context.Context) error {
			calls++
			return fmt.Errorf("attempt %d", calls)
		})
		require.EqualError(t, err, "attempt 3")
		assert.Equal(t, 3, calls)
	})
}

func TestRetryStopsOnPermanentErrors(t *testing.T) {
	t.Parallel()

	validation := errors.Newf("bad input").Category(errors.CategoryValidation).Build()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permanent", Permanent(assert.AnError), assert.AnError},
		{"validation", validation, validation},
		{"client status", tempErr{temp: false}, tempErr{temp: false}},
		{"open circuit", fmt.Errorf("inat: %w", ErrCircuitOpen), ErrCircuitOpen},
		{"cancelled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			err := Retry(t.Context(), DefaultRetryConfig(), "test", func(context.Context) error {
				calls++
				return tt.err
			})
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(assert.AnError))
	assert.True(t, IsRetryable(tempErr{temp: true}))
	assert.True(t, IsRetryable(errors.Newf("timeout").Category(errors.CategoryNetwork).Build()))
	assert.False(t, IsRetryable(errors.Newf("gone").Category(errors.CategoryNotFound).Build()))
}

func TestRetryHonoursContext(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
		defer cancel()

		calls := 0
		err := Retry(ctx, DefaultRetryConfig(), "test", func(context.Context) error {
			calls++
			return assert.AnError
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
	})
}

func testBreaker(maxFailures int, timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker("test", BreakerConfig{
		MaxFailures:         maxFailures,
		Timeout:             timeout,
		HalfOpenMaxRequests: 1,
	})
}

func fail(context.Context) error    { return assert.AnError }
func succeed(context.Context) error { return nil }

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	cb := testBreaker(3, time.Minute)
	for range 2 {
		require.ErrorIs(t, cb.Call(t.Context(), fail), assert.AnError)
		assert.Equal(t, StateClosed, cb.State())
	}
	require.ErrorIs(t, cb.Call(t.Context(), fail), assert.AnError)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 3, cb.Failures())

	called := false
	err := cb.Call(t.Context(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	t.Parallel()

	cb := testBreaker(2, time.Minute)
	_ = cb.Call(t.Context(), fail)
	require.NoError(t, cb.Call(t.Context(), succeed))
	_ = cb.Call(t.Context(), fail)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Failures())
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	cb := testBreaker(1, time.Minute)
	err := cb.Call(t.Context(), func(context.Context) error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var mu sync.Mutex
		var transitions []string
		cb := testBreaker(2, 60*time.Second)
		cb.SetObserver(func(_ string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+">"+to.String())
		})

		for range 2 {
			_ = cb.Call(t.Context(), fail)
		}
		require.Equal(t, StateOpen, cb.State())

		time.Sleep(30 * time.Second)
		require.ErrorIs(t, cb.Call(t.Context(), succeed), ErrCircuitOpen)

		time.Sleep(31 * time.Second)
		require.ErrorIs(t, cb.Call(t.Context(), fail), assert.AnError)
		assert.Equal(t, StateOpen, cb.State(), "failed trial request reopens")

		time.Sleep(61 * time.Second)
		require.NoError(t, cb.Call(t.Context(), succeed))
		assert.Equal(t, StateClosed, cb.State())

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{
			"closed>open", "open>half-open", "half-open>open",
			"open>half-open", "half-open>closed",
		}, transitions)
	})
}

func TestCircuitBreakerHalfOpenLimit(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cb := testBreaker(1, time.Second)
		_ = cb.Call(t.Context(), fail)
		time.Sleep(2 * time.Second)

		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- cb.Call(t.Context(), func(context.Context) error {
				<-release
				return nil
			})
		}()
		synctest.Wait()

		require.ErrorIs(t, cb.Call(t.Context(), succeed), ErrTooManyRequests)
		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestNewCircuitBreakerInvalidConfig(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("bad", BreakerConfig{})
	assert.Equal(t, DefaultBreakerConfig(), cb.config)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
