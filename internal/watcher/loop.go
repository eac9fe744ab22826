package watcher

import (
	"context"
	"log/slog"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
)

// Source supplies event batches.
type Source interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Loop calls fn for each batch until ctx is done. Batches that arrive while
// fn runs are merged into a single follow-up call. fn errors are logged and
// do not stop the loop.
func Loop(ctx context.Context, src Source, fn func(context.Context, []FileEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-src.Errors():
			if err != nil {
				slog.Warn("watch_error", slog.String("error", err.Error()))
			}
		case batch := <-src.Events():
			batch = drain(src, batch)
			if len(batch) == 0 {
				continue
			}
			slog.Info("watch_changes_detected", slog.Int("files", len(batch)))
			if err := fn(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("watch_run_failed", doerrors.LogArgs(err)...)
			}
		}
	}
}

// drain appends any batches already queued.
func drain(src Source, batch []FileEvent) []FileEvent {
	for {
		select {
		case more := <-src.Events():
			batch = append(batch, more...)
		default:
			return batch
		}
	}
}
