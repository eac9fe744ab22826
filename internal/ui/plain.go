package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for CI logs and pipes.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	tracker *Tracker
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, tracker: NewTracker()}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Lines read "[STAGE] done/total - file"
// or "[STAGE] message".
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(event)
	if event.Stage == StageComplete {
		return
	}

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Fail(event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer. Stages that took at least 100ms are listed.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d new, %d enriched, %d skipped in %s",
		stats.New, stats.Enriched, stats.Skipped, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.SyncErrors > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d sync errors)", stats.Errors, stats.SyncErrors)
	}
	_, _ = fmt.Fprintln(r.out)
	if stats.Missing > 0 {
		_, _ = fmt.Fprintf(r.out, "%d records have no file\n", stats.Missing)
	}

	elapsed := r.tracker.Snapshot().Elapsed
	for _, s := range []Stage{StageScanning, StageDiffing, StageEnriching, StageSyncing} {
		if d := elapsed[s]; d >= 100*time.Millisecond {
			_, _ = fmt.Fprintf(r.out, "  %-10s %s\n", s.String()+":", d.Round(100*time.Millisecond))
		}
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
