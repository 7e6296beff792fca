package usecase

import (
	"context"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// DefaultStrategyTimeout bounds each provider call (summary and evaluation independently).
const DefaultStrategyTimeout = 60 * time.Second

type raceResult[T any] struct {
	value T
	err   error
}

// withTimeout races fn against a timer. Exactly one outcome is observed: the
// first to settle. The losing call has its context cancelled and its late
// result is dropped.
func withTimeout[T any](ctx context.Context, operation string, after time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if after <= 0 {
		after = DefaultStrategyTimeout
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan raceResult[T], 1)
	go func() {
		value, err := fn(callCtx)
		done <- raceResult[T]{value: value, err: err}
	}()

	timer := time.NewTimer(after)
	defer timer.Stop()

	var zero T
	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		return zero, &domain.TimeoutError{Operation: operation, After: after}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
