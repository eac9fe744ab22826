// Package reconcile brings the record table in line with the documents on
// disk: it creates records for new files, fills missing titles and
// descriptions, and re-pushes every record to the full-text index.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/thedocs/internal/enrich"
	"github.com/Aman-CERP/thedocs/internal/search"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/ui"
)

// FileError is a per-file failure that did not stop the run.
type FileError struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Summary reports one run.
type Summary struct {
	RunID         string      `json:"run_id"`
	NewCount      int         `json:"new"`
	EnrichedCount int         `json:"enriched"`
	SkippedCount  int         `json:"skipped"`
	Errors        []FileError `json:"errors"`
	// Missing lists records whose file is gone. They are kept.
	Missing    []string      `json:"missing"`
	SyncErrors []FileError   `json:"sync_errors"`
	Duration   time.Duration `json:"duration"`
}

// Stats converts the summary for a ui.Renderer.
func (s Summary) Stats() ui.CompletionStats {
	return ui.CompletionStats{
		New:        s.NewCount,
		Enriched:   s.EnrichedCount,
		Skipped:    s.SkippedCount,
		Missing:    len(s.Missing),
		Errors:     len(s.Errors),
		SyncErrors: len(s.SyncErrors),
		Duration:   s.Duration,
	}
}

var errNoChange = errors.New("no blank fields to fill")

// Inventory lists and reads the documents on disk.
type Inventory interface {
	List(ctx context.Context) ([]string, error)
	Read(name string) (string, error)
}

// Generator produces metadata for one document.
type Generator interface {
	Generate(ctx context.Context, filename, content string) (enrich.Metadata, error)
}

// Reconciler runs reconciliation. Runs are serialized.
type Reconciler struct {
	store       store.Store
	inventory   Inventory
	generator   Generator
	indexer     search.Indexer
	concurrency int
	syncAll     bool
	now         func() time.Time
	reporter    ui.Reporter

	mu sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithGenerator enables enrichment.
func WithGenerator(g Generator) Option {
	return func(r *Reconciler) {
		r.generator = g
	}
}

// WithIndexer enables full-text sync.
func WithIndexer(idx search.Indexer) Option {
	return func(r *Reconciler) {
		r.indexer = idx
	}
}

// WithConcurrency bounds in-flight enrichment calls. 1 is sequential.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSyncAll re-indexes every on-disk record, not only the changed ones.
func WithSyncAll(on bool) Option {
	return func(r *Reconciler) {
		r.syncAll = on
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithReporter receives stage progress.
func WithReporter(rep ui.Reporter) Option {
	return func(r *Reconciler) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

// New creates a Reconciler.
func New(s store.Store, inv Inventory, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       s,
		inventory:   inv,
		concurrency: 1,
		syncAll:     true,
		now:         time.Now,
		reporter:    ui.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one reconciliation. Store and inventory failures abort the
// run; enrichment and index failures are recorded in the summary.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	sum := Summary{RunID: uuid.NewString(), Errors: []FileError{}, Missing: []string{}, SyncErrors: []FileError{}}
	log := slog.With(slog.String("run_id", sum.RunID))
	log.Info("reconcile_started")

	// Scanning
	r.reporter.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "listing documents"})
	files, err := r.inventory.List(ctx)
	if err != nil {
		return sum, fmt.Errorf("scan documents: %w", err)
	}
	recs, err := r.store.List(ctx)
	if err != nil {
		return sum, fmt.Errorf("read records: %w", err)
	}
	r.reporter.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: fmt.Sprintf("%d files, %d records", len(files), len(recs))})

	// Diffing
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f] = true
	}
	known := make(map[string]store.Record, len(recs))
	for _, rec := range recs {
		known[rec.Filename] = rec
		if !onDisk[rec.Filename] {
			sum.Missing = append(sum.Missing, rec.Filename)
		}
	}
	var newFiles []string
	for _, f := range files {
		if _, ok := known[f]; !ok {
			newFiles = append(newFiles, f)
		}
	}
	r.reporter.UpdateProgress(ui.ProgressEvent{Stage: ui.StageDiffing,
		Message: fmt.Sprintf("%d new, %d missing", len(newFiles), len(sum.Missing))})

	for _, f := range newFiles {
		rec := store.NewRecord(f, r.now())
		if err := r.store.Upsert(ctx, rec); err != nil {
			return sum, fmt.Errorf("create record for %s: %w", f, err)
		}
		known[f] = rec
		sum.NewCount++
	}

	// Enriching
	var candidates []string
	for _, f := range files {
		if known[f].NeedsEnrichment() {
			candidates = append(candidates, f)
		}
	}
	sum.SkippedCount = len(files) - len(candidates)
	sort.Strings(candidates)

	changed := make(map[string]bool)
	if r.generator != nil && len(candidates) > 0 {
		enriched, failures, err := r.enrichAll(ctx, candidates)
		if err != nil {
			return sum, err
		}
		sum.EnrichedCount = len(enriched)
		sum.Errors = failures
		for _, f := range enriched {
			changed[f] = true
		}
	}
	for _, f := range newFiles {
		changed[f] = true
	}

	// Syncing
	if r.indexer != nil {
		sum.SyncErrors = r.sync(ctx, files, changed)
	}

	sum.Duration = r.now().Sub(start)
	r.reporter.UpdateProgress(ui.ProgressEvent{Stage: ui.StageComplete, Message: "done"})
	log.Info("reconcile_completed",
		slog.Int("new", sum.NewCount),
		slog.Int("enriched", sum.EnrichedCount),
		slog.Int("skipped", sum.SkippedCount),
		slog.Int("errors", len(sum.Errors)),
		slog.Int("missing", len(sum.Missing)),
		slog.Int("sync_errors", len(sum.SyncErrors)),
		slog.Duration("duration", sum.Duration))
	return sum, nil
}

// enrichAll runs the generator over candidates with bounded concurrency and
// returns the filenames whose records changed, sorted.
func (r *Reconciler) enrichAll(ctx context.Context, candidates []string) ([]string, []FileError, error) {
	var (
		mu       sync.Mutex
		enriched []string
		failures []FileError
		done     int
	)
	fail := func(f string, reason string) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, FileError{Filename: f, Reason: reason})
	}
	progress := func(f string) {
		mu.Lock()
		done++
		n := done
		mu.Unlock()
		r.reporter.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEnriching, Current: n, Total: len(candidates), CurrentFile: f})
	}

	r.reporter.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEnriching, Total: len(candidates)})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, f := range candidates {
		g.Go(func() error {
			defer progress(f)

			content, err := r.inventory.Read(f)
			if err != nil {
				fail(f, "unreadable: "+enrich.Reason(err))
				r.reporter.AddError(ui.ErrorEvent{File: f, Err: err})
				return nil
			}

			m, err := r.generator.Generate(gctx, f, content)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fail(f, enrich.Reason(err))
				r.reporter.AddError(ui.ErrorEvent{File: f, Err: err})
				return nil
			}

			updated, err := r.fillBlanks(gctx, f, m)
			if err != nil {
				return err
			}
			if updated {
				mu.Lock()
				enriched = append(enriched, f)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Strings(enriched)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Filename < failures[j].Filename })
	if failures == nil {
		failures = []FileError{}
	}
	return enriched, failures, nil
}

// fillBlanks writes only the fields that are still blank, under the store
// lock, so concurrent manual edits win.
func (r *Reconciler) fillBlanks(ctx context.Context, filename string, m enrich.Metadata) (bool, error) {
	updated := false
	_, err := r.store.Update(ctx, filename, func(rec *store.Record) error {
		if strings.TrimSpace(rec.Title) == "" && m.Title != "" {
			rec.Title = m.Title
			updated = true
		}
		if strings.TrimSpace(rec.Description) == "" && m.Description != "" {
			rec.Description = m.Description
			updated = true
		}
		if !updated {
			return errNoChange
		}
		return nil
	})
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, errNoChange):
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		// Deleted while the model was running.
		return false, nil
	default:
		return false, fmt.Errorf("update record %s: %w", filename, err)
	}
}

// sync pushes records to the full-text index. Failures are collected.
func (r *Reconciler) sync(ctx context.Context, files []string, changed map[string]bool) []FileError {
	var targets []string
	for _, f := range files {
		if r.syncAll || changed[f] {
			targets = append(targets, f)
		}
	}

	failures := []FileError{}
	if len(targets) == 0 {
		return failures
	}

	recs, err := r.store.List(ctx)
	if err != nil {
		for _, f := range targets {
			failures = append(failures, FileError{Filename: f, Reason: "read records: " + err.Error()})
		}
		return failures
	}
	byName := make(map[string]store.Record, len(recs))
	for _, rec := range recs {
		byName[rec.Filename] = rec
	}

	for i, f := range targets {
		if ctx.Err() != nil {
			failures = append(failures, FileError{Filename: f, Reason: enrich.Reason(ctx.Err())})
			continue
		}
		r.reporter.UpdateProgress(ui.ProgressEvent{Stage: ui.StageSyncing, Current: i + 1, Total: len(targets), CurrentFile: f})

		rec, ok := byName[f]
		if !ok {
			continue
		}
		content, err := r.inventory.Read(f)
		if err != nil {
			failures = append(failures, FileError{Filename: f, Reason: "unreadable: " + enrich.Reason(err)})
			continue
		}
		if err := r.indexer.IndexDocument(ctx, rec, content); err != nil {
			failures = append(failures, FileError{Filename: f, Reason: enrich.Reason(err)})
			r.reporter.AddError(ui.ErrorEvent{File: f, Err: err, IsWarn: true})
		}
	}
	return failures
}
