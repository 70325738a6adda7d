// Package scheduler provides a small generic periodic-task runner,
// extracted from the pattern used to propagate data on a fixed interval:
// run the task immediately, then again on every tick, until the context is
// canceled or the task returns an error.
package scheduler

import (
	"context"
	"time"
)

// Run invokes fn immediately, then every interval, until ctx is
// canceled. It returns ctx.Err() on cancellation. The first non-nil error
// from fn stops the loop and is returned to the caller of Run; callers
// that want fire-and-forget semantics swallow/log fn's error themselves
// and always return nil from fn, as Repository does.
func Run(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}
