package search

import (
	"context"
	"log/slog"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/fulltext"
	"github.com/Aman-CERP/thedocs/internal/metrics"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

// FullTextEngine adapts a fulltext.Backend to Engine and Indexer.
type FullTextEngine struct {
	backend fulltext.Backend
	retry   doerrors.RetryConfig
}

// NewFullTextEngine wraps backend. Index writes are retried on transient
// backend errors.
func NewFullTextEngine(backend fulltext.Backend) *FullTextEngine {
	return &FullTextEngine{backend: backend, retry: doerrors.DefaultRetryConfig()}
}

// Name implements Engine.
func (e *FullTextEngine) Name() string {
	return "fulltext"
}

// Backend returns the wrapped backend.
func (e *FullTextEngine) Backend() fulltext.Backend {
	return e.backend
}

// Ready pings the backend and creates the index if needed.
func (e *FullTextEngine) Ready(ctx context.Context) error {
	if err := e.backend.Ping(ctx); err != nil {
		return err
	}
	return e.backend.EnsureIndex(ctx)
}

// Search implements Engine. Results keep the backend's relevance order.
func (e *FullTextEngine) Search(ctx context.Context, q textmatch.Query, eligible []store.Record) ([]Result, error) {
	if q.Empty() || len(eligible) == 0 {
		return []Result{}, nil
	}

	names := make([]string, len(eligible))
	for i, rec := range eligible {
		names[i] = rec.Filename
	}

	hits, err := e.backend.Search(ctx, q, names, len(names))
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.Filename] {
			continue
		}
		seen[h.Filename] = true
		results = append(results, Result{Filename: h.Filename, Snippet: h.Snippet})
	}
	return results, nil
}

// IndexDocument implements Indexer.
func (e *FullTextEngine) IndexDocument(ctx context.Context, rec store.Record, content string) error {
	err := doerrors.Retry(ctx, e.retry, func() error {
		return e.backend.Index(ctx, fulltext.FromRecord(rec, content))
	})
	e.observe("index", rec.Filename, err)
	return err
}

// RemoveDocument implements Indexer.
func (e *FullTextEngine) RemoveDocument(ctx context.Context, filename string) error {
	err := doerrors.Retry(ctx, e.retry, func() error {
		return e.backend.Remove(ctx, filename)
	})
	e.observe("remove", filename, err)
	return err
}

func (e *FullTextEngine) observe(op, filename string, err error) {
	if err == nil {
		metrics.FullTextSyncTotal.WithLabelValues(op, "ok").Inc()
		return
	}
	metrics.FullTextSyncTotal.WithLabelValues(op, "error").Inc()
	args := append([]any{
		slog.String("op", op),
		slog.String("backend", e.backend.Name()),
		slog.String("filename", filename),
	}, doerrors.LogArgs(err)...)
	slog.Warn("fulltext_sync_failed", args...)
}

// Close closes the backend.
func (e *FullTextEngine) Close() error {
	return e.backend.Close()
}
