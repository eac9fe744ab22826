package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watching modes reported by Mode.
const (
	ModeFsnotify = "fsnotify"
	ModePolling  = "polling"
)

// DirWatcher watches one directory, non-recursively.
type DirWatcher struct {
	dir       string
	opts      Options
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error

	mode     atomic.Value
	dropped  atomic.Uint64
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher for dir. Nothing happens until Start.
func New(dir string, opts Options) *DirWatcher {
	opts = opts.WithDefaults()
	w := &DirWatcher{
		dir:       dir,
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	w.mode.Store("")
	return w
}

// Events returns debounced batches. The channel is never closed; select on
// your context as well.
func (w *DirWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watch errors.
func (w *DirWatcher) Errors() <-chan error {
	return w.errors
}

// Mode returns ModeFsnotify or ModePolling once Start has begun.
func (w *DirWatcher) Mode() string {
	return w.mode.Load().(string)
}

// Dropped returns the number of batches discarded because the consumer was slow.
func (w *DirWatcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Start watches until ctx is done or Stop is called.
func (w *DirWatcher) Start(ctx context.Context) error {
	abs, err := filepath.Abs(w.dir)
	if err != nil {
		return fmt.Errorf("resolve watch path: %w", err)
	}
	w.dir = abs

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	go w.forward(ctx)

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fsw.Add(w.dir); err == nil {
				w.mode.Store(ModeFsnotify)
				slog.Info("watch_started", slog.String("dir", w.dir), slog.String("mode", ModeFsnotify))
				return w.runFsnotify(ctx, fsw)
			}
			_ = fsw.Close()
		}
		slog.Warn("watch_fsnotify_unavailable", slog.String("dir", w.dir), slog.String("error", err.Error()))
	}

	w.mode.Store(ModePolling)
	slog.Info("watch_started", slog.String("dir", w.dir), slog.String("mode", ModePolling),
		slog.Duration("interval", w.opts.PollInterval))
	p := newPoller(w.dir, w.opts.PollInterval, w.opts.Accept)
	return p.run(ctx, w.debouncer.Add, w.emitError)
}

func (w *DirWatcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher) error {
	defer func() { _ = fsw.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *DirWatcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if filepath.Dir(ev.Name) != w.dir || !w.opts.Accept(name) {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	w.debouncer.Add(FileEvent{Name: name, Operation: op, Timestamp: time.Now()})
}

func (w *DirWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			select {
			case w.events <- batch:
			default:
				w.dropped.Add(1)
				slog.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
			}
		}
	}
}

func (w *DirWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Warn("watch_error_dropped", slog.String("error", err.Error()))
	}
}

// Stop ends Start and discards pending events. Safe to call twice.
func (w *DirWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
	})
	return nil
}
