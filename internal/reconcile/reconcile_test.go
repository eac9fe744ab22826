package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/thedocs/internal/enrich"
	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/inventory"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/ui"
)

var fixedNow = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	dir   string
	store *store.CSVStore
	inv   *inventory.Inventory
}

func newFixture(t *testing.T, docs map[string]string) fixture {
	t.Helper()
	root := t.TempDir()
	docsDir := filepath.Join(root, "markdown_files")
	require.NoError(t, os.MkdirAll(docsDir, 0o755))
	for name, body := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(docsDir, name), []byte(body), 0o644))
	}
	clock := func() time.Time { return fixedNow }
	return fixture{
		dir:   docsDir,
		store: store.NewCSVStore(filepath.Join(root, "database", "index.csv"), store.WithClock(clock)),
		inv:   inventory.New(docsDir),
	}
}

// scriptedGenerator returns canned metadata or errors per filename.
type scriptedGenerator struct {
	mu       sync.Mutex
	meta     map[string]enrich.Metadata
	errs     map[string]error
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (g *scriptedGenerator) Generate(ctx context.Context, filename, _ string) (enrich.Metadata, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return enrich.Metadata{}, ctx.Err()
		}
	}

	g.mu.Lock()
	g.calls = append(g.calls, filename)
	g.mu.Unlock()

	if err, ok := g.errs[filename]; ok {
		return enrich.Metadata{}, err
	}
	if m, ok := g.meta[filename]; ok {
		return m, nil
	}
	return enrich.Metadata{Title: "Title of " + filename, Description: "About " + filename}, nil
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed map[string]store.Record
	failOn  map[string]bool
}

func (r *recordingIndexer) IndexDocument(_ context.Context, rec store.Record, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[rec.Filename] {
		return doerrors.BackendUnavailable("fulltext", errors.New("connection refused"))
	}
	if r.indexed == nil {
		r.indexed = map[string]store.Record{}
	}
	r.indexed[rec.Filename] = rec
	return nil
}

func (r *recordingIndexer) RemoveDocument(_ context.Context, _ string) error { return nil }

type stageRecorder struct {
	mu     sync.Mutex
	stages []ui.Stage
	errs   []string
}

func (s *stageRecorder) UpdateProgress(e ui.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.stages); n == 0 || s.stages[n-1] != e.Stage {
		s.stages = append(s.stages, e.Stage)
	}
}

func (s *stageRecorder) AddError(e ui.ErrorEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, e.File)
}

func TestRun_EnrichmentTimeoutIsRecorded(t *testing.T) {
	// Given: one new file whose enrichment times out
	f := newFixture(t, map[string]string{"c.md": "# C\n"})
	gen := &scriptedGenerator{errs: map[string]error{
		"c.md": doerrors.BackendTimeout("enrichment", context.DeadlineExceeded),
	}}
	idx := &recordingIndexer{}
	r := New(f.store, f.inv, WithGenerator(gen), WithIndexer(idx), WithClock(func() time.Time { return fixedNow }))

	// When: reconciling
	sum, err := r.Run(context.Background())

	// Then: the summary reports the timeout and the record stays blank
	require.NoError(t, err)
	assert.Equal(t, 1, sum.NewCount)
	assert.Equal(t, 0, sum.EnrichedCount)
	assert.Equal(t, 0, sum.SkippedCount)
	assert.Equal(t, []FileError{{Filename: "c.md", Reason: "timeout"}}, sum.Errors)

	rec, ok, err := f.store.Get(context.Background(), "c.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, rec.Title)
	assert.Empty(t, rec.Description)
	assert.False(t, rec.IsPublic)
	assert.Equal(t, "2024-01-02", rec.DateUploaded.Format(store.DateLayout))

	// And: the file is still indexed
	assert.Contains(t, idx.indexed, "c.md")
}

func TestRun_FailureDoesNotHaltOtherFiles(t *testing.T) {
	// Given: three new files, the middle one fails
	f := newFixture(t, map[string]string{"a.md": "a", "b.md": "b", "c.md": "c"})
	gen := &scriptedGenerator{errs: map[string]error{
		"b.md": doerrors.BackendUnavailable("ollama", errors.New("connection refused")),
	}}
	r := New(f.store, f.inv, WithGenerator(gen))

	// When: reconciling
	sum, err := r.Run(context.Background())

	// Then: a and c are enriched, b is reported
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NewCount)
	assert.Equal(t, 2, sum.EnrichedCount)
	assert.Equal(t, []FileError{{Filename: "b.md", Reason: "unavailable"}}, sum.Errors)
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, gen.calls)

	recs, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Title of a.md", recs[0].Title)
	assert.Empty(t, recs[1].Title)
	assert.Equal(t, "About c.md", recs[2].Description)
}

func TestRun_Idempotent(t *testing.T) {
	// Given: a directory reconciled once
	f := newFixture(t, map[string]string{"a.md": "a", "b.md": "b"})
	gen := &scriptedGenerator{}
	r := New(f.store, f.inv, WithGenerator(gen))
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	before, err := f.store.List(context.Background())
	require.NoError(t, err)

	// When: reconciling again with nothing changed
	sum, err := r.Run(context.Background())

	// Then: nothing new, nothing enriched, records untouched
	require.NoError(t, err)
	assert.Equal(t, 0, sum.NewCount)
	assert.Equal(t, 0, sum.EnrichedCount)
	assert.Equal(t, 2, sum.SkippedCount)
	assert.Empty(t, sum.Errors)
	assert.Len(t, gen.calls, 2)

	after, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_OnlyBlankFieldsAreFilled(t *testing.T) {
	// Given: an existing record with a manual title but no description
	f := newFixture(t, map[string]string{"a.md": "a"})
	ctx := context.Background()
	require.NoError(t, f.store.Upsert(ctx, store.Record{Filename: "a.md", Title: "Manual title", IsPublic: true}))
	gen := &scriptedGenerator{meta: map[string]enrich.Metadata{
		"a.md": {Title: "Generated title", Description: "Generated description"},
	}}
	r := New(f.store, f.inv, WithGenerator(gen))

	// When: reconciling
	sum, err := r.Run(ctx)

	// Then: the title is kept and the description filled
	require.NoError(t, err)
	assert.Equal(t, 0, sum.NewCount)
	assert.Equal(t, 1, sum.EnrichedCount)

	rec, _, err := f.store.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "Manual title", rec.Title)
	assert.Equal(t, "Generated description", rec.Description)
	assert.True(t, rec.IsPublic)
}

func TestRun_MissingFilesAreReportedNotDeleted(t *testing.T) {
	// Given: a record whose file was removed
	f := newFixture(t, map[string]string{"a.md": "a"})
	ctx := context.Background()
	require.NoError(t, f.store.Upsert(ctx, store.Record{Filename: "gone.md", Title: "t", Description: "d"}))
	r := New(f.store, f.inv)

	// When: reconciling without a generator
	sum, err := r.Run(ctx)

	// Then: the record is listed as missing and kept
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.md"}, sum.Missing)
	assert.Equal(t, 1, sum.NewCount)
	assert.Equal(t, 0, sum.EnrichedCount)

	_, ok, err := f.store.Get(ctx, "gone.md")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_IgnoresUnsupportedFiles(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "a", "b.markdown": "b", "c.txt": "c", ".hidden.md": "h"})
	r := New(f.store, f.inv)

	sum, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sum.NewCount)
	recs, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a.md", recs[0].Filename)
	assert.Equal(t, "b.markdown", recs[1].Filename)
}

func TestRun_ConcurrencyIsBounded(t *testing.T) {
	// Given: six new files and a limit of two
	docs := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		docs[n+".md"] = n
	}
	f := newFixture(t, docs)
	gen := &scriptedGenerator{delay: 20 * time.Millisecond}
	r := New(f.store, f.inv, WithGenerator(gen), WithConcurrency(2))

	// When: reconciling
	sum, err := r.Run(context.Background())

	// Then: all are enriched with at most two calls in flight
	require.NoError(t, err)
	assert.Equal(t, 6, sum.EnrichedCount)
	assert.LessOrEqual(t, gen.peak.Load(), int32(2))
	assert.Empty(t, sum.Errors)
}

func TestRun_SyncErrorsAreCollected(t *testing.T) {
	// Given: an indexer that rejects one file
	f := newFixture(t, map[string]string{"a.md": "a", "b.md": "b"})
	idx := &recordingIndexer{failOn: map[string]bool{"b.md": true}}
	rep := &stageRecorder{}
	r := New(f.store, f.inv, WithIndexer(idx), WithReporter(rep))

	// When: reconciling
	sum, err := r.Run(context.Background())

	// Then: a is indexed, b is a sync error, the run still succeeds
	require.NoError(t, err)
	assert.Contains(t, idx.indexed, "a.md")
	assert.Equal(t, []FileError{{Filename: "b.md", Reason: "unavailable"}}, sum.SyncErrors)
	assert.Equal(t, []string{"b.md"}, rep.errs)
	assert.Equal(t, []ui.Stage{ui.StageScanning, ui.StageDiffing, ui.StageSyncing, ui.StageComplete}, rep.stages)
}

func TestRun_SyncChangedOnly(t *testing.T) {
	// Given: one complete record and one new file, with full sync disabled
	f := newFixture(t, map[string]string{"a.md": "a", "b.md": "b"})
	ctx := context.Background()
	require.NoError(t, f.store.Upsert(ctx, store.Record{Filename: "a.md", Title: "A", Description: "d"}))
	idx := &recordingIndexer{}
	r := New(f.store, f.inv, WithIndexer(idx), WithSyncAll(false))

	// When: reconciling
	_, err := r.Run(ctx)

	// Then: only the new file is pushed
	require.NoError(t, err)
	assert.Len(t, idx.indexed, 1)
	assert.Contains(t, idx.indexed, "b.md")
}

func TestRun_CancelledContextAborts(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.store, f.inv).Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummary_Stats(t *testing.T) {
	sum := Summary{
		NewCount:      2,
		EnrichedCount: 1,
		SkippedCount:  3,
		Errors:        []FileError{{Filename: "x.md", Reason: "timeout"}},
		Missing:       []string{"y.md", "z.md"},
		Duration:      time.Second,
	}

	stats := sum.Stats()

	assert.Equal(t, ui.CompletionStats{New: 2, Enriched: 1, Skipped: 3, Missing: 2, Errors: 1, Duration: time.Second}, stats)
}
