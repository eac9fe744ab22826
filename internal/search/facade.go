package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/metrics"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/textmatch"
)

// DefaultStartupTimeout bounds the full-text readiness check.
const DefaultStartupTimeout = 5 * time.Second

// Facade is the single search entry point.
type Facade struct {
	records    RecordLister
	lexicon    *LexiconEngine
	fullText   *FullTextEngine
	breaker    *doerrors.CircuitBreaker
	maxResults int
}

// FacadeOption configures a Facade.
type FacadeOption func(*Facade)

// WithMaxResults caps every response. Zero means no cap.
func WithMaxResults(n int) FacadeOption {
	return func(f *Facade) {
		if n >= 0 {
			f.maxResults = n
		}
	}
}

// WithBreaker overrides the circuit breaker guarding the full-text engine.
func WithBreaker(cb *doerrors.CircuitBreaker) FacadeOption {
	return func(f *Facade) {
		if cb != nil {
			f.breaker = cb
		}
	}
}

// NewFacade selects the strategy once. fullText may be nil; if it is not
// ready within DefaultStartupTimeout the lexicon engine serves every query.
func NewFacade(ctx context.Context, records RecordLister, lexicon *LexiconEngine, fullText *FullTextEngine, opts ...FacadeOption) *Facade {
	f := &Facade{
		records: records,
		lexicon: lexicon,
		breaker: doerrors.NewCircuitBreaker("fulltext"),
	}
	for _, opt := range opts {
		opt(f)
	}

	if fullText != nil {
		readyCtx, cancel := context.WithTimeout(ctx, DefaultStartupTimeout)
		err := fullText.Ready(readyCtx)
		cancel()
		if err != nil {
			args := append([]any{slog.String("backend", fullText.backend.Name())}, doerrors.LogArgs(err)...)
			slog.Warn("fulltext_unavailable_using_lexicon", args...)
		} else {
			f.fullText = fullText
		}
	}

	slog.Info("search_strategy_selected", slog.String("engine", f.Strategy()))
	return f
}

// Strategy names the primary engine.
func (f *Facade) Strategy() string {
	if f.fullText != nil {
		return f.fullText.Name()
	}
	return f.lexicon.Name()
}

// Indexer returns the active full-text engine, or nil when the lexicon
// engine is primary.
func (f *Facade) Indexer() Indexer {
	if f.fullText == nil {
		return nil
	}
	return f.fullText
}

// Search runs raw for a viewer. Unauthenticated viewers only see public
// documents. Full-text failures are answered by the lexicon engine.
func (f *Facade) Search(ctx context.Context, raw string, authenticated bool) (Response, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	q := textmatch.ParseQuery(raw)
	if q.Empty() {
		return newResponse(nil), nil
	}

	all, err := f.records.List(ctx)
	if err != nil {
		return Response{}, err
	}
	eligible := make([]store.Record, 0, len(all))
	for _, rec := range all {
		if rec.VisibleTo(authenticated) {
			eligible = append(eligible, rec)
		}
	}

	results, engine, err := f.run(ctx, q, eligible)
	if err != nil {
		return Response{}, doerrors.New(doerrors.ErrCodeSearchFailed, "search failed", err)
	}
	metrics.SearchTotal.WithLabelValues(engine).Inc()

	if f.maxResults > 0 && len(results) > f.maxResults {
		results = results[:f.maxResults]
	}
	return newResponse(results), nil
}

func (f *Facade) run(ctx context.Context, q textmatch.Query, eligible []store.Record) ([]Result, string, error) {
	if f.fullText == nil {
		results, err := f.lexicon.Search(ctx, q, eligible)
		return results, f.lexicon.Name(), err
	}

	results, err := doerrors.CircuitExecute(f.breaker, func() ([]Result, error) {
		return f.fullText.Search(ctx, q, eligible)
	})
	if err == nil {
		return results, f.fullText.Name(), nil
	}
	if ctx.Err() != nil {
		return nil, f.fullText.Name(), ctx.Err()
	}

	metrics.SearchFallbackTotal.Inc()
	if errors.Is(err, doerrors.ErrCircuitOpen) {
		slog.Debug("fulltext_circuit_open", slog.String("query", q.Term))
	} else {
		args := append([]any{slog.String("query", q.Term)}, doerrors.LogArgs(err)...)
		slog.Warn("fulltext_search_failed_falling_back", args...)
	}

	results, err = f.lexicon.Search(ctx, q, eligible)
	return results, f.lexicon.Name(), err
}
