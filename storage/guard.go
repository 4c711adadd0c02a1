package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Guard races op against a timer. If the timer fires first it returns a
// TimeoutError tagged with label; op keeps running detached on its own
// cancelled context, and its eventual outcome is logged rather than
// applied. Callers must not rely on the underlying work being aborted;
// backends without native cancellation simply finish late.
func Guard(ctx context.Context, timeout time.Duration, label string, logger *zap.SugaredLogger, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)

	done := make(chan error, 1)
	started := time.Now()
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		cancel()
		return err
	case <-opCtx.Done():
		cancel()
		// Drain the detached operation in the background so its result is
		// visible in logs for diagnosis.
		go func() {
			err := <-done
			if logger != nil {
				logger.Warnw("Guarded operation completed after its deadline; result discarded",
					"label", label,
					"elapsed", time.Since(started),
					"error", err)
			}
		}()
		if ctx.Err() != nil && opCtx.Err() == ctx.Err() {
			// Parent cancellation, not our timer.
			return ctx.Err()
		}
		return &TimeoutError{Label: label, After: timeout}
	}
}
