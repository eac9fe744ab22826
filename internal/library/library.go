// Package library keeps document files, the record table and the full-text
// index in step for single-document operations: add, remove, visibility and
// metadata edits, and visibility-checked reads.
package library

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/thedocs/internal/enrich"
	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/inventory"
	"github.com/Aman-CERP/thedocs/internal/search"
	"github.com/Aman-CERP/thedocs/internal/store"
)

// Generator produces metadata for one document.
type Generator interface {
	Generate(ctx context.Context, filename, content string) (enrich.Metadata, error)
}

// Metadata is the caller-supplied part of a new record.
type Metadata struct {
	Title       string
	Description string
	IsPublic    bool
}

// Library is the single-document API over store, inventory and index.
type Library struct {
	store      store.Store
	inv        *inventory.Inventory
	generator  Generator
	indexer    search.Indexer
	promptsDir string
	now        func() time.Time
}

// Option configures a Library.
type Option func(*Library)

// WithGenerator fills blank metadata on Add.
func WithGenerator(g Generator) Option {
	return func(l *Library) {
		l.generator = g
	}
}

// WithIndexer mirrors every change into the full-text index.
func WithIndexer(idx search.Indexer) Option {
	return func(l *Library) {
		l.indexer = idx
	}
}

// WithPromptsDir is created by EnsureLayout.
func WithPromptsDir(dir string) Option {
	return func(l *Library) {
		l.promptsDir = dir
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Library) {
		l.now = now
	}
}

// New creates a Library.
func New(s store.Store, inv *inventory.Inventory, opts ...Option) *Library {
	l := &Library{store: s, inv: inv, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type tableInitializer interface {
	EnsureTable(ctx context.Context) error
}

// EnsureLayout creates the documents and prompts directories and an empty
// record table.
func (l *Library) EnsureLayout(ctx context.Context) error {
	if err := l.inv.EnsureDir(); err != nil {
		return err
	}
	if l.promptsDir != "" {
		if err := os.MkdirAll(l.promptsDir, 0o755); err != nil {
			return doerrors.IOError("create prompts directory", err).WithDetail("path", l.promptsDir)
		}
	}
	if t, ok := l.store.(tableInitializer); ok {
		return t.EnsureTable(ctx)
	}
	return nil
}

// Add stores content under a sanitized, unique name derived from original,
// creates its record, fills blank metadata when a generator is set, and
// indexes it. Enrichment and index failures are logged, not returned.
func (l *Library) Add(ctx context.Context, original string, content []byte, meta Metadata) (store.Record, error) {
	name, err := l.inv.Save(original, content)
	if err != nil {
		return store.Record{}, err
	}

	rec := store.NewRecord(name, l.now())
	rec.Title = strings.TrimSpace(meta.Title)
	rec.Description = strings.TrimSpace(meta.Description)
	rec.IsPublic = meta.IsPublic
	if err := l.store.Upsert(ctx, rec); err != nil {
		if rmErr := l.inv.Remove(name); rmErr != nil {
			slog.Warn("document_rollback_failed", slog.String("filename", name), slog.String("error", rmErr.Error()))
		}
		return store.Record{}, err
	}

	if l.generator != nil && rec.NeedsEnrichment() {
		rec = l.enrich(ctx, rec, string(content))
	}

	l.index(ctx, rec, string(content))
	slog.Info("document_added", slog.String("filename", name), slog.Bool("public", rec.IsPublic))
	return rec, nil
}

func (l *Library) enrich(ctx context.Context, rec store.Record, content string) store.Record {
	m, err := l.generator.Generate(ctx, rec.Filename, content)
	if err != nil {
		return rec
	}
	updated, err := l.store.Update(ctx, rec.Filename, func(r *store.Record) error {
		if strings.TrimSpace(r.Title) == "" {
			r.Title = m.Title
		}
		if strings.TrimSpace(r.Description) == "" {
			r.Description = m.Description
		}
		return nil
	})
	if err != nil {
		slog.Warn("enrichment_not_saved", append([]any{slog.String("filename", rec.Filename)}, doerrors.LogArgs(err)...)...)
		return rec
	}
	return updated
}

// Remove deletes the record, the file and the index entry, in that order.
// If the file cannot be deleted the record is put back, so a record never
// points at a missing file. Removing a document that has neither a file
// nor a record is an error.
func (l *Library) Remove(ctx context.Context, filename string) error {
	if err := store.ValidateFilename(filename); err != nil {
		return err
	}
	rec, known, err := l.store.Get(ctx, filename)
	if err != nil {
		return err
	}
	if !known && !l.inv.Exists(filename) {
		return notFound(filename)
	}

	if known {
		if err := l.store.Delete(ctx, filename); err != nil {
			return err
		}
	}
	if err := l.inv.Remove(filename); err != nil {
		if known {
			if rbErr := l.store.Upsert(ctx, rec); rbErr != nil {
				slog.Error("document_remove_rollback_failed",
					append([]any{slog.String("filename", filename)}, doerrors.LogArgs(rbErr)...)...)
			}
		}
		return err
	}
	if l.indexer != nil {
		if err := l.indexer.RemoveDocument(ctx, filename); err != nil {
			slog.Warn("index_remove_deferred", append([]any{slog.String("filename", filename)}, doerrors.LogArgs(err)...)...)
		}
	}
	slog.Info("document_removed", slog.String("filename", filename))
	return nil
}

// SetVisibility marks a document public or private.
func (l *Library) SetVisibility(ctx context.Context, filename string, public bool) (store.Record, error) {
	return l.update(ctx, filename, func(r *store.Record) error {
		r.IsPublic = public
		return nil
	})
}

// UpdateMetadata replaces title and description. Values are trimmed; blank
// values clear the field so the next reconciliation fills it again.
func (l *Library) UpdateMetadata(ctx context.Context, filename, title, description string) (store.Record, error) {
	return l.update(ctx, filename, func(r *store.Record) error {
		r.Title = strings.TrimSpace(title)
		r.Description = strings.TrimSpace(description)
		return nil
	})
}

func (l *Library) update(ctx context.Context, filename string, fn func(*store.Record) error) (store.Record, error) {
	if err := store.ValidateFilename(filename); err != nil {
		return store.Record{}, err
	}
	rec, err := l.store.Update(ctx, filename, fn)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Record{}, notFound(filename)
		}
		return store.Record{}, err
	}

	if l.indexer != nil {
		content, err := l.inv.Read(filename)
		if err != nil {
			slog.Warn("index_update_skipped", append([]any{slog.String("filename", filename)}, doerrors.LogArgs(err)...)...)
			return rec, nil
		}
		l.index(ctx, rec, content)
	}
	return rec, nil
}

func (l *Library) index(ctx context.Context, rec store.Record, content string) {
	if l.indexer == nil {
		return
	}
	// Failures are logged by the indexer; the next reconciliation repairs them.
	_ = l.indexer.IndexDocument(ctx, rec, content)
}

// Get returns the record for filename.
func (l *Library) Get(ctx context.Context, filename string) (store.Record, error) {
	rec, ok, err := l.store.Get(ctx, filename)
	if err != nil {
		return store.Record{}, err
	}
	if !ok {
		return store.Record{}, notFound(filename)
	}
	return rec, nil
}

// Browse lists the records a viewer may see, newest upload first, then by
// filename.
func (l *Library) Browse(ctx context.Context, authenticated bool) ([]store.Record, error) {
	all, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(all))
	for _, rec := range all {
		if rec.VisibleTo(authenticated) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DateUploaded.Equal(out[j].DateUploaded) {
			return out[i].DateUploaded.After(out[j].DateUploaded)
		}
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

// Document is a record with its body.
type Document struct {
	store.Record
	Content string
}

// ReadDocument returns a document for a viewer. Private documents are
// refused to unauthenticated viewers.
func (l *Library) ReadDocument(ctx context.Context, filename string, authenticated bool) (Document, error) {
	if err := store.ValidateFilename(filename); err != nil {
		return Document{}, err
	}
	rec, err := l.Get(ctx, filename)
	if err != nil {
		return Document{}, err
	}
	if !rec.VisibleTo(authenticated) {
		return Document{}, doerrors.New(doerrors.ErrCodePrivateDocument, "document is private", nil).
			WithDetail("filename", filename).
			WithSuggestion("Sign in to view private documents")
	}
	content, err := l.inv.Read(filename)
	if err != nil {
		return Document{}, err
	}
	return Document{Record: rec, Content: content}, nil
}

func notFound(filename string) error {
	return doerrors.New(doerrors.ErrCodeRecordMissing, "document not found: "+filename, nil).
		WithDetail("filename", filename)
}
