package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/thedocs/internal/fulltext"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

type staticRecords []store.Record

func (s staticRecords) List(_ context.Context) ([]store.Record, error) {
	return s, nil
}

// fakeBackend is a fulltext.Backend with scripted failures.
type fakeBackend struct {
	pingErr   error
	searchErr error
	indexErrs []error
	searches  int
	eligible  []string
	indexed   []fulltext.Document
	removed   []string
	hits      []fulltext.Hit
}

func (f *fakeBackend) Name() string                      { return "fake" }
func (f *fakeBackend) Ping(context.Context) error        { return f.pingErr }
func (f *fakeBackend) EnsureIndex(context.Context) error { return nil }
func (f *fakeBackend) Close() error                      { return nil }
func (f *fakeBackend) Remove(_ context.Context, name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeBackend) Index(_ context.Context, doc fulltext.Document) error {
	if len(f.indexErrs) > 0 {
		err := f.indexErrs[0]
		f.indexErrs = f.indexErrs[1:]
		if err != nil {
			return err
		}
	}
	f.indexed = append(f.indexed, doc)
	return nil
}

func (f *fakeBackend) Search(_ context.Context, _ textmatch.Query, eligible []string, _ int) ([]fulltext.Hit, error) {
	f.searches++
	f.eligible = eligible
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

// writeDocs creates files under a temp dir and returns it.
func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func names(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Filename)
	}
	return out
}
