package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/thedocs/internal/config"
	"github.com/Aman-CERP/thedocs/internal/enrich"
	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/fulltext"
	"github.com/Aman-CERP/thedocs/internal/inventory"
	"github.com/Aman-CERP/thedocs/internal/library"
	"github.com/Aman-CERP/thedocs/internal/reconcile"
	"github.com/Aman-CERP/thedocs/internal/search"
	"github.com/Aman-CERP/thedocs/internal/store"
	"github.com/Aman-CERP/thedocs/internal/ui"
)

// app holds the components one command invocation works with.
type app struct {
	cfg       *config.Config
	store     *store.CSVStore
	inventory *inventory.Inventory
	lexicon   *search.LexiconEngine
	fullText  *search.FullTextEngine
	facade    *search.Facade
	generator *enrich.Service
	library   *library.Library
}

// newApp wires the store, inventory, search facade and enrichment service
// from cfg. The full-text backend is opened only when an endpoint is set.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		store:     store.NewCSVStore(cfg.TablePath()),
		inventory: inventory.New(cfg.DocumentsDir()),
	}

	a.lexicon = search.NewLexiconEngine(cfg.DocumentsDir(),
		search.WithSnippetWindow(cfg.Search.SnippetWindow),
		search.WithContentCache(cfg.Search.CacheSize))

	if cfg.FullText.Endpoint != "" {
		backend, err := fulltext.Open(cfg.FullText.Endpoint, fulltext.Options{
			Index:         cfg.FullText.Index,
			Username:      cfg.FullText.Username,
			Password:      cfg.FullText.Password,
			Timeout:       config.Duration(cfg.FullText.Timeout, 5*time.Second),
			SnippetWindow: cfg.Search.SnippetWindow,
			BaseDir:       cfg.BaseDir(),
		})
		if err != nil {
			return nil, err
		}
		a.fullText = search.NewFullTextEngine(backend)
	}

	breaker := doerrors.NewCircuitBreaker("fulltext",
		doerrors.WithMaxFailures(cfg.FullText.BreakerFailures),
		doerrors.WithResetTimeout(config.Duration(cfg.FullText.BreakerCooldown, 30*time.Second)))
	a.facade = search.NewFacade(ctx, a.store, a.lexicon, a.fullText,
		search.WithMaxResults(cfg.Search.MaxResults),
		search.WithBreaker(breaker))

	enricher, err := enrich.New(enrich.Options{
		Provider: cfg.Enrichment.Provider,
		Endpoint: cfg.Enrichment.Endpoint,
		Model:    cfg.Enrichment.Model,
		APIKey:   cfg.Enrichment.APIKey,
		Timeout:  config.Duration(cfg.Enrichment.Timeout, enrich.DefaultTimeout),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if enricher != nil {
		a.generator = enrich.NewService(enricher, cfg.PromptPath(),
			config.Duration(cfg.Enrichment.Timeout, enrich.DefaultTimeout))
	}

	libOpts := []library.Option{library.WithPromptsDir(cfg.PromptsDir())}
	if a.generator != nil {
		libOpts = append(libOpts, library.WithGenerator(a.generator))
	}
	if idx := a.facade.Indexer(); idx != nil {
		libOpts = append(libOpts, library.WithIndexer(idx))
	}
	a.library = library.New(a.store, a.inventory, libOpts...)

	if err := a.library.EnsureLayout(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// reconciler builds a Reconciler reporting to rep.
func (a *app) reconciler(concurrency int, rep ui.Reporter) *reconcile.Reconciler {
	if concurrency <= 0 {
		concurrency = a.cfg.Reconcile.Concurrency
	}
	opts := []reconcile.Option{
		reconcile.WithConcurrency(concurrency),
		reconcile.WithSyncAll(a.cfg.Reconcile.SyncFullText),
		reconcile.WithReporter(rep),
	}
	if a.generator != nil {
		opts = append(opts, reconcile.WithGenerator(a.generator))
	}
	if idx := a.facade.Indexer(); idx != nil {
		opts = append(opts, reconcile.WithIndexer(idx))
	}
	return reconcile.New(a.store, a.inventory, opts...)
}

// Close releases the full-text backend.
func (a *app) Close() error {
	if a.fullText == nil {
		return nil
	}
	if err := a.fullText.Close(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("fulltext_close_failed", doerrors.LogArgs(err)...)
		return err
	}
	return nil
}
