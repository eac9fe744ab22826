package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer merges events that arrive within one quiet window. Events for
// the same name collapse by these rules:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE or RENAME cancels out
//   - DELETE then CREATE becomes MODIFY (file replaced)
//   - anything else keeps the latest operation
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if p, ok := d.pending[event.Name]; ok {
		merged, keep := merge(p.firstOp, p.event, event)
		if !keep {
			delete(d.pending, event.Name)
		} else {
			p.event = merged
		}
	} else {
		d.pending[event.Name] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func merge(first Operation, prev, next FileEvent) (FileEvent, bool) {
	switch {
	case first == OpCreate && next.Operation == OpModify:
		return prev, true
	case first == OpCreate && (next.Operation == OpDelete || next.Operation == OpRename):
		return FileEvent{}, false
	case first == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return next, true
	default:
		return next, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Name < batch[j].Name })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- batch:
	default:
		slog.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of batches. It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
