package batch

import (
	"context"
	"errors"
	"time"

	"reelsmith/internal/services"
)

// Operation is a single attempt against an external service.
type Operation func(ctx context.Context) error

// WithTimeout bounds each attempt of op by ceiling. An expired attempt is
// reported as a retryable timeout. Timeouts are scoped per external call, not
// per stage.
func WithTimeout(op Operation, ceiling time.Duration) Operation {
	if ceiling <= 0 {
		return op
	}
	return func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, ceiling)
		defer cancel()
		err := op(attemptCtx)
		if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return services.Wrap(services.ErrTimeout, "", "", "call exceeded "+ceiling.String(), err)
		}
		return err
	}
}

// WithRetry retries op up to maxAttempts with exponential backoff starting at
// baseDelay. Non-retryable errors (validation, precondition) abort
// immediately, as does caller cancellation. sleep is overridable for tests;
// nil means time.Sleep behavior via the context-aware default.
func WithRetry(op Operation, maxAttempts int, baseDelay time.Duration, sleep func(context.Context, time.Duration) error) Operation {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return func(ctx context.Context) error {
		var lastErr error
		delay := baseDelay
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			lastErr = op(ctx)
			if lastErr == nil {
				return nil
			}
			if ctx.Err() != nil {
				return lastErr
			}
			if !services.Retryable(lastErr) {
				return lastErr
			}
			if attempt == maxAttempts {
				break
			}
			if err := sleep(ctx, delay); err != nil {
				return lastErr
			}
			delay *= 2
		}
		return lastErr
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
