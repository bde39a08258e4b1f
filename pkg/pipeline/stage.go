// Package pipeline provides small generic building blocks for staged work.
package pipeline

import (
	"context"
)

// Stage represents a processing stage in the pipeline.
// Each stage takes an input and produces an output.
type Stage[In, Out any] interface {
	// Execute runs the stage with the given input and returns the output.
	Execute(ctx context.Context, input In) (Out, error)
}

// StageFunc is a function adapter for Stage interface.
type StageFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Execute implements Stage interface.
func (f StageFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}

// RetryFunc is called before each retry with the failed attempt number,
// starting at 1, and its error.
type RetryFunc func(attempt int, err error)

// Retry runs stage up to attempts times until it succeeds. The last error
// is returned. A cancelled context stops further attempts.
func Retry[In, Out any](stage Stage[In, Out], attempts int, onRetry RetryFunc) Stage[In, Out] {
	if attempts < 1 {
		attempts = 1
	}
	return StageFunc[In, Out](func(ctx context.Context, input In) (Out, error) {
		var out Out
		var err error
		for i := 1; i <= attempts; i++ {
			out, err = stage.Execute(ctx, input)
			if err == nil {
				return out, nil
			}
			if ctx.Err() != nil {
				return out, err
			}
			if i < attempts && onRetry != nil {
				onRetry(i, err)
			}
		}
		return out, err
	})
}
