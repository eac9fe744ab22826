// Package metrics holds the Prometheus collectors and the ops HTTP listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchTotal counts queries by the engine that answered them.
	SearchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thedocs_search_total",
		Help: "Search queries answered, by engine.",
	}, []string{"engine"})

	// SearchFallbackTotal counts full-text failures answered by the lexicon engine.
	SearchFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thedocs_search_fallback_total",
		Help: "Queries re-run on the lexicon engine after a full-text failure.",
	})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "thedocs_search_duration_seconds",
		Help:    "Search latency including fallback.",
		Buckets: prometheus.DefBuckets,
	})

	// EnrichmentTotal counts enrichment attempts by outcome (ok, error, timeout).
	EnrichmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thedocs_enrichment_total",
		Help: "Metadata enrichment attempts, by outcome.",
	}, []string{"outcome"})

	// StoreWritesTotal counts committed record table writes by operation.
	StoreWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thedocs_store_writes_total",
		Help: "Committed record table writes, by operation.",
	}, []string{"op"})

	// CorruptRowsTotal counts rows skipped while reading the record table.
	CorruptRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thedocs_store_corrupt_rows_total",
		Help: "Record table rows skipped because they failed to parse.",
	})

	// FullTextSyncTotal counts index writes by operation and outcome.
	FullTextSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thedocs_fulltext_sync_total",
		Help: "Full-text index writes, by operation and outcome.",
	}, []string{"op", "outcome"})
)
