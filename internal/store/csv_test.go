package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
)

var fixedNow = time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *CSVStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database", "index.csv")
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewCSVStore(path, opts...)
}

func filenames(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Filename
	}
	return out
}

func TestCSVStore_ListMissingTableIsEmpty(t *testing.T) {
	s := newTestStore(t)

	recs, err := s.List(context.Background())

	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCSVStore_UpsertInsertsWithDefaults(t *testing.T) {
	// Given: an empty store
	s := newTestStore(t)
	ctx := context.Background()

	// When: upserting a record with only a filename
	require.NoError(t, s.Upsert(ctx, Record{Filename: "notes.md"}))

	// Then: it is private, dated today and stamped
	rec, ok, err := s.Get(ctx, "notes.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, rec.IsPublic)
	assert.Equal(t, "2024-03-09", rec.DateUploaded.Format(DateLayout))
	assert.Equal(t, "2024-03-09 14:30:05", rec.UpdatedAt.Format(TimestampLayout))
}

func TestCSVStore_UpsertReplacesInPlace(t *testing.T) {
	// Given: three records
	s := newTestStore(t)
	ctx := context.Background()
	for _, f := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, s.Upsert(ctx, Record{Filename: f}))
	}

	// When: replacing the middle one with a different upload date
	require.NoError(t, s.Upsert(ctx, Record{
		Filename:     "b.md",
		Title:        "Bee",
		IsPublic:     true,
		DateUploaded: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	// Then: position is preserved, fields replaced, upload date kept
	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, filenames(recs))
	assert.Equal(t, "Bee", recs[1].Title)
	assert.True(t, recs[1].IsPublic)
	assert.Equal(t, "2024-03-09", recs[1].DateUploaded.Format(DateLayout))
}

func TestCSVStore_UpsertReplaceStampsUpdatedAt(t *testing.T) {
	// Given: a stored record read back and edited by the caller
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "a.md"}))
	rec, ok, err := s.Get(ctx, "a.md")
	require.NoError(t, err)
	require.True(t, ok)
	rec.Title = "edited"

	later := fixedNow.Add(48 * time.Hour)
	s.now = func() time.Time { return later }

	// When: upserting it with its old timestamp still set
	require.NoError(t, s.Upsert(ctx, rec))

	// Then: the replaced row carries the current time
	got, _, err := s.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Title)
	assert.Equal(t, later.Truncate(time.Second), got.UpdatedAt)
	assert.Equal(t, "2024-03-09", got.DateUploaded.Format(DateLayout))
}

func TestCSVStore_UpsertRejectsBadFilename(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"", "  ", "../x.md", "dir/x.md", ".."} {
		err := s.Upsert(context.Background(), Record{Filename: name})
		require.Error(t, err, name)
		assert.Equal(t, doerrors.CategoryValidation, doerrors.GetCategory(err), name)
	}

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "rejected upserts must not create the table")
}

func TestCSVStore_Uniqueness(t *testing.T) {
	// Given: the same filename upserted repeatedly
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(ctx, Record{Filename: "dup.md", Title: fmt.Sprint(i)}))
	}

	// Then: exactly one row exists with the last value
	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "4", recs[0].Title)
}

func TestCSVStore_ConcurrentUpsertsAreAllKept(t *testing.T) {
	// Given: two store handles on the same table, as two processes would have
	path := filepath.Join(t.TempDir(), "index.csv")
	a := NewCSVStore(path)
	b := NewCSVStore(path)
	ctx := context.Background()

	// When: writing 20 distinct records concurrently through both
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := a
			if i%2 == 1 {
				s = b
			}
			assert.NoError(t, s.Upsert(ctx, Record{Filename: fmt.Sprintf("doc-%02d.md", i)}))
		}(i)
	}
	wg.Wait()

	// Then: no write was lost
	recs, err := a.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestCSVStore_CrashBeforeCommitLeavesTableIntact(t *testing.T) {
	// Given: a table with one record
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "keep.md", Title: "Keep"}))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	// When: a write dies between temp-file write and rename
	s.beforeCommit = func() error { return errors.New("simulated crash") }
	err = s.Upsert(ctx, Record{Filename: "lost.md"})

	// Then: the error surfaces as IO, the table is byte-identical and no temp file remains
	require.Error(t, err)
	assert.Equal(t, doerrors.ErrCodeStoreIO, doerrors.GetCode(err))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.Contains(t, []string{"index.csv", "index.csv.lock"}, e.Name())
	}

	// And: the lock was released so the next write succeeds
	s.beforeCommit = nil
	require.NoError(t, s.Upsert(ctx, Record{Filename: "next.md"}))
}

func TestCSVStore_ReadersNeverSeePartialFile(t *testing.T) {
	// Given: a writer replacing the table in a loop
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "seed.md"}))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			recs := []Record{{Filename: "seed.md"}}
			for j := 0; j < i%7; j++ {
				recs = append(recs, Record{Filename: fmt.Sprintf("x%d.md", j), Description: strings.Repeat("d", 200)})
			}
			_ = s.ReplaceAll(ctx, recs)
		}
	}()

	// Then: every read parses and always contains the seed row
	for i := 0; i < 200; i++ {
		recs, err := s.List(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, recs)
		assert.Equal(t, "seed.md", recs[0].Filename)
	}
	close(stop)
	<-done
}

func TestCSVStore_DeleteAbsentIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "a.md"}))

	require.NoError(t, s.Delete(ctx, "missing.md"))
	require.NoError(t, s.Delete(ctx, "a.md"))

	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCSVStore_ReplaceAllDropsDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "old.md"}))

	err := s.ReplaceAll(ctx, []Record{
		{Filename: "x.md", Title: "first"},
		{Filename: "y.md"},
		{Filename: "x.md", Title: "second"},
	})
	require.NoError(t, err)

	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.md", "y.md"}, filenames(recs))
	assert.Equal(t, "first", recs[0].Title)
}

func TestCSVStore_ReplaceAllStampsChangedRows(t *testing.T) {
	// Given: two stored records
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "keep.md", Title: "Same"}))
	require.NoError(t, s.Upsert(ctx, Record{Filename: "edit.md", Title: "Old"}))
	recs, err := s.List(ctx)
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	s.now = func() time.Time { return later }

	// When: replacing the table with one row edited and one row added
	recs[1].Title = "New"
	recs = append(recs, Record{Filename: "new.md"})
	require.NoError(t, s.ReplaceAll(ctx, recs))

	// Then: only the edited and added rows move forward
	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"keep.md", "edit.md", "new.md"}, filenames(got))
	assert.Equal(t, fixedNow, got[0].UpdatedAt)
	assert.Equal(t, later, got[1].UpdatedAt)
	assert.Equal(t, later, got[2].UpdatedAt)
}

func TestCSVStore_UpdateKeepsImmutableFields(t *testing.T) {
	// Given: an existing record
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "a.md"}))

	later := fixedNow.Add(48 * time.Hour)
	s.now = func() time.Time { return later }

	// When: a mutation tries to change the key and date
	rec, err := s.Update(ctx, "a.md", func(r *Record) error {
		r.Filename = "b.md"
		r.DateUploaded = time.Time{}
		r.Title = "Alpha"
		return nil
	})

	// Then: only the title changes, and UpdatedAt moves forward
	require.NoError(t, err)
	assert.Equal(t, "a.md", rec.Filename)
	assert.Equal(t, "Alpha", rec.Title)
	assert.Equal(t, "2024-03-09", rec.DateUploaded.Format(DateLayout))
	assert.Equal(t, later.Truncate(time.Second), rec.UpdatedAt)
}

func TestCSVStore_UpdateMissingRecord(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Update(context.Background(), "nope.md", func(*Record) error { return nil })

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCSVStore_UpdateCallbackErrorAborts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Record{Filename: "a.md", Title: "orig"}))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "a.md", func(r *Record) error {
		r.Title = "changed"
		return boom
	})

	assert.ErrorIs(t, err, boom)
	rec, _, _ := s.Get(ctx, "a.md")
	assert.Equal(t, "orig", rec.Title)
}

func TestCSVStore_CorruptRowsAreSkipped(t *testing.T) {
	// Given: a hand-edited table with bad rows
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	content := strings.Join([]string{
		"filename,title,description,is_public,date_uploaded,updated_at",
		"good.md,Good,desc,yes,2024-01-02,2024-01-02 03:04:05",
		"baddate.md,,,false,02/01/2024,",
		",no filename,,,,",
		"toomany.md,a,b,true,2024-01-02,2024-01-02 03:04:05,extra",
		"good.md,Duplicate,,,,",
		"short.md,Short",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	// When: listing
	recs, err := s.List(context.Background())

	// Then: only parseable, unique rows are returned
	require.NoError(t, err)
	assert.Equal(t, []string{"good.md", "short.md"}, filenames(recs))
	assert.True(t, recs[0].IsPublic)
	assert.Equal(t, "Short", recs[1].Title)
	assert.False(t, recs[1].IsPublic)
}

func TestCSVStore_WritesOriginalColumnFormat(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(context.Background(), Record{
		Filename:    "a.md",
		Title:       "Hello, world",
		Description: `says "hi"`,
		IsPublic:    true,
	}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t,
		"filename,title,description,is_public,date_uploaded,updated_at\n"+
			`a.md,"Hello, world","says ""hi""",true,2024-03-09,2024-03-09 14:30:05`+"\n",
		string(data))
}

func TestCSVStore_EnsureTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureTable(ctx))
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Header, ",")+"\n", string(data))

	// existing tables are left alone
	require.NoError(t, s.Upsert(ctx, Record{Filename: "a.md"}))
	require.NoError(t, s.EnsureTable(ctx))
	recs, _ := s.List(ctx)
	assert.Len(t, recs, 1)
	assert.NoError(t, s.Ready(ctx))
}

func TestCSVStore_LockTimeout(t *testing.T) {
	// Given: another holder of the table lock
	s := newTestStore(t, WithLockWait(100*time.Millisecond))
	other := NewFileLock(s.Path() + ".lock")
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()

	// When: writing
	err = s.Upsert(context.Background(), Record{Filename: "a.md"})

	// Then: the write fails with a lock error and nothing was written
	require.Error(t, err)
	assert.Equal(t, doerrors.ErrCodeStoreLock, doerrors.GetCode(err))
	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "Y", " y "} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "on"} {
		assert.False(t, ParseBool(v), v)
	}
}

func TestRecord_Helpers(t *testing.T) {
	rec := NewRecord("a.md", fixedNow)
	assert.True(t, rec.NeedsEnrichment())
	assert.False(t, rec.VisibleTo(false))
	assert.True(t, rec.VisibleTo(true))

	rec.Title, rec.Description, rec.IsPublic = "T", "D", true
	assert.False(t, rec.NeedsEnrichment())
	assert.True(t, rec.VisibleTo(false))
}
