package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rl1809/inventory-service/internal/core/domain"
)

// TransportError wraps connection, DNS and timeout failures of a single attempt.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a 5xx answer from the remote service.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string { return fmt.Sprintf("server error: status %d", e.StatusCode) }

// DefaultRetryable retries transport failures and 5xx answers only.
func DefaultRetryable(err error) bool {
	var te *TransportError
	var se *ServerError
	return errors.As(err, &te) || errors.As(err, &se)
}

// RetryPolicy is a bounded exponential backoff. Attempt n (1-based) that fails
// retryably is followed by a pause of BaseDelay * Multiplier^(n-1).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Retryable   func(error) bool

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		Retryable:   DefaultRetryable,
	}
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Exhaustion is reported as a
// *domain.RetryExhaustedError so callers can tell it apart from a first-attempt
// hard failure, which is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, onRetry func(attempt int, wait time.Duration, err error), fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return &domain.RetryExhaustedError{Attempts: attempt, Last: fmt.Errorf("%w: %w", serr, lastErr)}
		}
	}

	return &domain.RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
