// Package search answers keyword queries over the document collection.
//
// Two engines share one contract: the lexicon engine scans files on disk,
// the full-text engine delegates to an inverted index. The Facade picks one
// at startup, applies visibility, and falls back to the lexicon engine
// whenever the full-text backend fails a query.
package search

import (
	"context"

	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

// Result is one matching document.
type Result struct {
	Filename string `json:"filename"`
	Snippet  string `json:"snippet"`
}

// Response is the answer to one query.
type Response struct {
	Count   int      `json:"count"`
	Results []Result `json:"results"`
}

func newResponse(results []Result) Response {
	if results == nil {
		results = []Result{}
	}
	return Response{Count: len(results), Results: results}
}

// Engine searches a pre-filtered set of records.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string
	// Search returns at most one result per record in eligible.
	Search(ctx context.Context, q textmatch.Query, eligible []store.Record) ([]Result, error)
}

// Indexer keeps a derived index in step with the record table.
type Indexer interface {
	IndexDocument(ctx context.Context, rec store.Record, content string) error
	RemoveDocument(ctx context.Context, filename string) error
}

// RecordLister supplies the records a query may see.
type RecordLister interface {
	List(ctx context.Context) ([]store.Record, error)
}
