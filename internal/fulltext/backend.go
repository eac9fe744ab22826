// Package fulltext provides the external inverted-index backends used by the
// full-text search engine: Elasticsearch over HTTP, a local bleve index and
// a local SQLite FTS5 database.
package fulltext

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

// Document is the indexed form of a record plus its file content.
type Document struct {
	Filename     string `json:"filename"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Content      string `json:"content"`
	IsPublic     bool   `json:"is_public"`
	DateUploaded string `json:"date_uploaded,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// FromRecord builds a Document for rec with the given file content.
func FromRecord(rec store.Record, content string) Document {
	doc := Document{
		Filename:    rec.Filename,
		Title:       rec.Title,
		Description: rec.Description,
		Content:     content,
		IsPublic:    rec.IsPublic,
	}
	if !rec.DateUploaded.IsZero() {
		doc.DateUploaded = rec.DateUploaded.Format(store.DateLayout)
	}
	if !rec.UpdatedAt.IsZero() {
		doc.UpdatedAt = rec.UpdatedAt.UTC().Format(store.TimestampLayout)
	}
	return doc
}

// Hit is one matching document.
type Hit struct {
	Filename string
	Snippet  string
}

// Backend is an inverted index keyed by filename.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// EnsureIndex creates the index with the expected mappings. Idempotent.
	EnsureIndex(ctx context.Context) error
	// Index upserts doc.
	Index(ctx context.Context, doc Document) error
	// Remove deletes the document. Missing documents are not an error.
	Remove(ctx context.Context, filename string) error
	// Search returns matches restricted to eligible, best first.
	Search(ctx context.Context, q textmatch.Query, eligible []string, limit int) ([]Hit, error)
	Close() error
}

// Options configures a backend.
type Options struct {
	// Index is the Elasticsearch index name.
	Index    string
	Username string
	Password string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	// SnippetWindow is the context kept around a match in locally built snippets.
	SnippetWindow int
	// BaseDir resolves relative bleve:// and sqlite:// paths.
	BaseDir string
	// HTTPClient overrides the Elasticsearch HTTP client.
	HTTPClient *http.Client
}

func (o Options) window() int {
	if o.SnippetWindow > 0 {
		return o.SnippetWindow
	}
	return textmatch.DefaultWindow
}

// Open selects a backend by endpoint scheme:
//
//	http://host:9200, https://...  Elasticsearch
//	bleve:///var/lib/thedocs/idx   local bleve index directory
//	sqlite://fulltext.db           local SQLite FTS5 database
func Open(endpoint string, opts Options) (Backend, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, doerrors.ConfigError("invalid full-text endpoint", err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewElastic(endpoint, opts), nil
	case "bleve":
		return NewBleve(localPath(u, opts.BaseDir), opts)
	case "sqlite":
		return NewSQLite(localPath(u, opts.BaseDir), opts)
	default:
		return nil, doerrors.ConfigError(fmt.Sprintf("unsupported full-text endpoint scheme %q", u.Scheme), nil)
	}
}

func localPath(u *url.URL, baseDir string) string {
	p := u.Opaque
	if p == "" {
		p = u.Host + u.Path
	}
	if p == "" || p == ":memory:" {
		return ""
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return p
}

// localSnippet builds a snippet from stored fields, content first.
func localSnippet(term string, window int, content, title, description, filename string) string {
	for _, field := range []string{content, title, description, filename} {
		if s, ok := textmatch.Excerpt(field, term, window); ok {
			return s
		}
	}
	return textmatch.Head(content, 2*window)
}
