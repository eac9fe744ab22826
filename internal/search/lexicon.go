package search

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

// DefaultContentCacheSize is the number of document bodies kept in memory.
const DefaultContentCacheSize = 256

type cachedContent struct {
	modTime time.Time
	size    int64
	text    string
}

// LexiconEngine scans document files directly. It needs no index and is
// always available.
type LexiconEngine struct {
	docsDir string
	window  int
	cache   *lru.Cache[string, cachedContent]
}

// LexiconOption configures a LexiconEngine.
type LexiconOption func(*LexiconEngine)

// WithSnippetWindow sets the characters kept on each side of a match.
func WithSnippetWindow(n int) LexiconOption {
	return func(e *LexiconEngine) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithContentCache sets the content cache capacity. Zero disables caching.
func WithContentCache(size int) LexiconOption {
	return func(e *LexiconEngine) {
		if size <= 0 {
			e.cache = nil
			return
		}
		e.cache, _ = lru.New[string, cachedContent](size)
	}
}

// NewLexiconEngine creates an engine reading documents from docsDir.
func NewLexiconEngine(docsDir string, opts ...LexiconOption) *LexiconEngine {
	cache, _ := lru.New[string, cachedContent](DefaultContentCacheSize)
	e := &LexiconEngine{
		docsDir: docsDir,
		window:  textmatch.DefaultWindow,
		cache:   cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements Engine.
func (e *LexiconEngine) Name() string {
	return "lexicon"
}

// Search implements Engine. Results are ordered by filename.
func (e *LexiconEngine) Search(ctx context.Context, q textmatch.Query, eligible []store.Record) ([]Result, error) {
	if q.Empty() {
		return []Result{}, nil
	}

	recs := make([]store.Record, len(eligible))
	copy(recs, eligible)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Filename < recs[j].Filename })

	results := []Result{}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if snippet, ok := e.match(rec, q.Term); ok {
			results = append(results, Result{Filename: rec.Filename, Snippet: snippet})
		}
	}
	return results, nil
}

// match looks in content first, then in the record's own fields.
func (e *LexiconEngine) match(rec store.Record, term string) (string, bool) {
	content := e.content(rec.Filename)
	for _, field := range []string{content, rec.Title, rec.Description, rec.Filename} {
		if s, ok := textmatch.Excerpt(field, term, e.window); ok {
			return s, true
		}
	}
	return "", false
}

// content returns the document body, or "" when it cannot be read.
func (e *LexiconEngine) content(filename string) string {
	if err := store.ValidateFilename(filename); err != nil {
		return ""
	}
	path := filepath.Join(e.docsDir, filename)

	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("lexicon_stat_failed",
				slog.String("filename", filename),
				slog.String("error", err.Error()))
		}
		return ""
	}

	if e.cache != nil {
		if c, ok := e.cache.Get(filename); ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
			return c.text
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("lexicon_read_failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		return ""
	}

	text := string(data)
	if e.cache != nil {
		e.cache.Add(filename, cachedContent{modTime: info.ModTime(), size: info.Size(), text: text})
	}
	return text
}

// Forget drops filename from the content cache.
func (e *LexiconEngine) Forget(filename string) {
	if e.cache != nil {
		e.cache.Remove(filename)
	}
}
