// Package resilience provides retry with exponential backoff and a circuit
// breaker for calls to external services.
package resilience

import (
	"context"
	"time"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// RetryConfig controls Retry
type RetryConfig struct {
	// Attempts is the total number of calls, including the first
	Attempts int
	// Delay is the wait before the second attempt
	Delay time.Duration
	// Backoff multiplies the delay after each failed attempt
	Backoff float64
}

// DefaultRetryConfig returns 3 attempts starting at 1s and doubling
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 3,
		Delay:    time.Second,
		Backoff:  2,
	}
}

// permanentError stops Retry immediately
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped
// error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// temporary is implemented by errors that know whether a retry may help,
// e.g. httpclient.StatusError
type temporary interface {
	Temporary() bool
}

// IsRetryable reports whether Retry would try again after err
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation, errors.CategoryNotFound, errors.CategoryConfiguration:
		return false
	}
	return true
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts are used up or ctx ends. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) error) error {
	attempts := max(cfg.Attempts, 1)
	delay := cfg.Delay
	backoff := cfg.Backoff
	if backoff < 1 {
		backoff = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			var p *permanentError
			if errors.As(err, &p) {
				return p.err
			}
			return err
		}
		if attempt == attempts {
			break
		}

		GetLogger().Warn("operation failed, retrying",
			logger.String("operation", op),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", attempts),
			logger.Duration("delay", delay),
			logger.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * backoff)
	}
	return err
}
