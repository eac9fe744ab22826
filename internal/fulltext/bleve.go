package fulltext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

const (
	textAnalyzerName    = "doc_text"
	keywordAnalyzerName = "doc_keyword"

	// rawSuffix names the single-token lowercase copy of a text field.
	rawSuffix = "_raw"
)

var textFields = []string{"title", "description", "content"}

var errIndexClosed = errors.New("index is closed")

// Bleve is a Backend over an embedded bleve index.
type Bleve struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	window int
	closed bool
}

// NewBleve opens or creates the index at path. Empty path is in-memory.
// An index that fails to open is rebuilt empty; reconciliation refills it.
func NewBleve(path string, opts Options) (*Bleve, error) {
	im, err := newIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		idx, err = bleve.Open(path)
		switch {
		case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
			idx, err = bleve.New(path, im)
		case err == nil && !hasRawFields(idx.Mapping()):
			slog.Warn("fulltext_index_mapping_outdated", slog.String("path", path))
			_ = idx.Close()
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("index at %s outdated and cannot be removed: %w", path, rmErr)
			}
			idx, err = bleve.New(path, im)
		case err != nil:
			slog.Warn("fulltext_index_unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("index at %s unreadable and cannot be removed: %w", path, rmErr)
			}
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &Bleve{index: idx, path: path, window: opts.window()}, nil
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomAnalyzer(textAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}
	if err := im.AddCustomAnalyzer(keywordAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}

	textField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = textAnalyzerName
		fm.Store = true
		fm.IncludeTermVectors = true
		return fm
	}
	rawField := func(name string) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Name = name + rawSuffix
		fm.Analyzer = keywordAnalyzerName
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		fm.DocValues = false
		return fm
	}
	filenameField := bleve.NewTextFieldMapping()
	filenameField.Analyzer = keywordAnalyzerName
	filenameField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("filename", filenameField)
	for _, f := range textFields {
		doc.AddFieldMappingsAt(f, textField(), rawField(f))
	}
	doc.AddFieldMappingsAt("is_public", bleve.NewBooleanFieldMapping())

	dates := bleve.NewTextFieldMapping()
	dates.Index = false
	dates.Store = true
	doc.AddFieldMappingsAt("date_uploaded", dates)
	doc.AddFieldMappingsAt("updated_at", dates)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = textAnalyzerName
	return im, nil
}

// hasRawFields reports whether m was built with the single-token copies
// that unquoted substring queries run against.
func hasRawFields(m mapping.IndexMapping) bool {
	impl, ok := m.(*mapping.IndexMappingImpl)
	if !ok || impl.DefaultMapping == nil {
		return false
	}
	for _, f := range textFields {
		prop, ok := impl.DefaultMapping.Properties[f]
		if !ok {
			return false
		}
		found := false
		for _, fm := range prop.Fields {
			if fm.Name == f+rawSuffix {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Name implements Backend.
func (b *Bleve) Name() string {
	return "bleve"
}

// Ping implements Backend.
func (b *Bleve) Ping(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return doerrors.BackendUnavailable(b.Name(), errIndexClosed)
	}
	_, err := b.index.DocCount()
	return err
}

// EnsureIndex implements Backend. The mapping is applied at creation.
func (b *Bleve) EnsureIndex(ctx context.Context) error {
	return b.Ping(ctx)
}

// Index implements Backend.
func (b *Bleve) Index(_ context.Context, doc Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return doerrors.BackendUnavailable(b.Name(), errIndexClosed)
	}
	if err := b.index.Index(doc.Filename, doc); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.Filename, err)
	}
	return nil
}

// Remove implements Backend.
func (b *Bleve) Remove(_ context.Context, filename string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return doerrors.BackendUnavailable(b.Name(), errIndexClosed)
	}
	return b.index.Delete(filename)
}

// substringQuery matches term anywhere inside a single-token field.
// (?s) lets the match span newlines in document bodies.
func substringQuery(field, term string) query.Query {
	q := bleve.NewRegexpQuery("(?s).*" + regexp.QuoteMeta(strings.ToLower(term)) + ".*")
	q.SetField(field)
	return q
}

func phraseQuery(field, phrase string) query.Query {
	q := bleve.NewMatchPhraseQuery(phrase)
	q.SetField(field)
	return q
}

// bleveQuery matches the lexicon engine: an unquoted term is a substring of
// the whole field value, a quoted one is a phrase over analyzed tokens.
// The filename is always matched as a substring.
func bleveQuery(q textmatch.Query) query.Query {
	parts := []query.Query{substringQuery("filename", q.Term)}
	for _, f := range textFields {
		if q.Phrase {
			parts = append(parts, phraseQuery(f, q.Term))
		} else {
			parts = append(parts, substringQuery(f+rawSuffix, q.Term))
		}
	}
	return bleve.NewDisjunctionQuery(parts...)
}

// Search implements Backend.
func (b *Bleve) Search(ctx context.Context, q textmatch.Query, eligible []string, limit int) ([]Hit, error) {
	if q.Empty() || len(eligible) == 0 {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = len(eligible)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, doerrors.BackendUnavailable(b.Name(), errIndexClosed)
	}

	full := bleve.NewConjunctionQuery(bleveQuery(q), bleve.NewDocIDQuery(eligible))
	req := bleve.NewSearchRequestOptions(full, limit, 0, false)
	req.Fields = []string{"filename", "title", "description", "content"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		field := func(name string) string {
			s, _ := h.Fields[name].(string)
			return s
		}
		hits = append(hits, Hit{
			Filename: h.ID,
			Snippet:  localSnippet(q.Term, b.window, field("content"), field("title"), field("description"), h.ID),
		})
	}
	return hits, nil
}

// Close implements Backend.
func (b *Bleve) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
