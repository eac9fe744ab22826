// Package watcher watches the documents directory and reports debounced
// batches of changes to accepted document files.
//
// fsnotify is used when the platform supports it; otherwise, or when
// ForcePolling is set, the directory is polled. Both feed the same
// Debouncer, so callers see identical batches either way.
//
//	w := watcher.New(docsDir, watcher.DefaultOptions())
//	go func() { _ = w.Start(ctx) }()
//	defer w.Stop()
//
//	err := watcher.Loop(ctx, w, func(ctx context.Context, batch []watcher.FileEvent) error {
//	    _, err := reconciler.Run(ctx)
//	    return err
//	})
package watcher
