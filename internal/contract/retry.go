package contract

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// permanentError marks a failure that a retry cannot fix (bad ABI data, reverted view).
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// retryPolicy retries read calls with exponential backoff.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) error {
	maxRetries := p.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) || attempt >= maxRetries || ctx.Err() != nil {
			return err
		}
		if p.logger != nil {
			p.logger.Warn("ledger read failed, retrying", zap.String("op", op), zap.Int("attempt", attempt+1), zap.Duration("backoff", delay), zap.Error(err))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
