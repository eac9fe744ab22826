package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// poller detects changes by comparing directory snapshots.
type poller struct {
	dir      string
	interval time.Duration
	accept   func(string) bool
	state    map[string]fileState
}

type fileState struct {
	modTime time.Time
	size    int64
}

func newPoller(dir string, interval time.Duration, accept func(string) bool) *poller {
	return &poller{dir: dir, interval: interval, accept: accept}
}

// run emits changes until ctx is done. The first snapshot is the baseline
// and produces no events.
func (p *poller) run(ctx context.Context, emit func(FileEvent), fail func(error)) error {
	state, err := p.snapshot()
	if err != nil {
		return err
	}
	p.state = state

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := p.snapshot()
			if err != nil {
				fail(err)
				continue
			}
			for _, ev := range diffStates(p.state, next) {
				emit(ev)
			}
			p.state = next
		}
	}
}

func (p *poller) snapshot() (map[string]fileState, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]fileState{}, nil
		}
		return nil, err
	}
	out := make(map[string]fileState, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !p.accept(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out[e.Name()] = fileState{modTime: info.ModTime(), size: info.Size()}
	}
	return out, nil
}

func diffStates(prev, next map[string]fileState) []FileEvent {
	now := time.Now()
	var events []FileEvent
	for name, st := range next {
		old, ok := prev[name]
		switch {
		case !ok:
			events = append(events, FileEvent{Name: name, Operation: OpCreate, Timestamp: now})
		case !old.modTime.Equal(st.modTime) || old.size != st.size:
			events = append(events, FileEvent{Name: name, Operation: OpModify, Timestamp: now})
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			events = append(events, FileEvent{Name: name, Operation: OpDelete, Timestamp: now})
		}
	}
	return events
}
