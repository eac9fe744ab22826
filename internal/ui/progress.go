package ui

import (
	"fmt"
	"sync"
	"time"
)

// maxRecentFailures is how many failures the TUI lists under the bar.
const maxRecentFailures = 3

// Tracker accumulates reconciliation progress for the TUI. It is safe for
// concurrent use.
type Tracker struct {
	mu         sync.RWMutex
	now        func() time.Time
	stage      Stage
	done       int
	total      int
	file       string
	message    string
	stageStart time.Time
	elapsed    map[Stage]time.Duration
	errors     int
	warnings   int
	recent     []string
}

// Snapshot is a copy of a Tracker's state.
type Snapshot struct {
	Stage    Stage
	Done     int
	Total    int
	Fraction float64
	ETA      time.Duration
	File     string
	Message  string
	// Elapsed holds the duration of every finished stage.
	Elapsed  map[Stage]time.Duration
	Errors   int
	Warnings int
	// Recent lists the latest failures, oldest first.
	Recent   []string
}

// NewTracker starts tracking at StageScanning.
func NewTracker() *Tracker {
	return newTrackerWithClock(time.Now)
}

func newTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		now:        now,
		stage:      StageScanning,
		stageStart: now(),
		elapsed:    make(map[Stage]time.Duration),
	}
}

// Observe applies a progress event. A new stage closes the previous one.
func (t *Tracker) Observe(event ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Stage != t.stage {
		now := t.now()
		t.elapsed[t.stage] = now.Sub(t.stageStart)
		t.stage = event.Stage
		t.stageStart = now
		t.done, t.total, t.file = 0, 0, ""
	}
	t.done = event.Current
	if event.Total > 0 {
		t.total = event.Total
	}
	if event.CurrentFile != "" {
		t.file = event.CurrentFile
	}
	t.message = event.Message
}

// Fail records a per-file failure or warning.
func (t *Tracker) Fail(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.IsWarn {
		t.warnings++
	} else {
		t.errors++
	}
	line := fmt.Sprint(event.Err)
	if event.File != "" {
		line = event.File + ": " + line
	}
	t.recent = append(t.recent, line)
	if len(t.recent) > maxRecentFailures {
		t.recent = t.recent[len(t.recent)-maxRecentFailures:]
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fraction := 0.0
	if t.total > 0 {
		fraction = min(float64(t.done)/float64(t.total), 1.0)
	}
	elapsed := make(map[Stage]time.Duration, len(t.elapsed))
	for s, d := range t.elapsed {
		elapsed[s] = d
	}

	return Snapshot{
		Stage:    t.stage,
		Done:     t.done,
		Total:    t.total,
		Fraction: fraction,
		ETA:      t.eta(fraction),
		File:     t.file,
		Message:  t.message,
		Elapsed:  elapsed,
		Errors:   t.errors,
		Warnings: t.warnings,
		Recent:   append([]string(nil), t.recent...),
	}
}

// eta extrapolates the current stage (lock held).
func (t *Tracker) eta(fraction float64) time.Duration {
	if fraction <= 0 || fraction >= 1 {
		return 0
	}
	spent := t.now().Sub(t.stageStart)
	return max(time.Duration(float64(spent)/fraction)-spent, 0)
}
