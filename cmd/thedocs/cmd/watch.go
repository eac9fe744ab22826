package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/thedocs/internal/config"
	"github.com/Aman-CERP/thedocs/internal/output"
	"github.com/Aman-CERP/thedocs/internal/reconcile"
	"github.com/Aman-CERP/thedocs/internal/ui"
	"github.com/Aman-CERP/thedocs/internal/watcher"
)

type watchOptions struct {
	polling     bool
	concurrency int
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile whenever the documents directory changes",
		Long: `Run one reconciliation, then watch the documents directory and reconcile
again after each quiet period (watch.debounce) following a change.

Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			rec := a.reconciler(opts.concurrency, ui.Discard)
			report := func(s reconcile.Summary) {
				out.Statusf("↻", "%d new, %d enriched, %d errors, %d missing",
					s.NewCount, s.EnrichedCount, len(s.Errors), len(s.Missing))
			}

			summary, err := rec.Run(ctx)
			if err != nil {
				return err
			}
			report(summary)
			out.Statusf("👁", "Watching %s", a.cfg.DocumentsDir())

			err = a.watch(ctx, opts.polling, func(ctx context.Context, s reconcile.Summary) error {
				report(s)
				return nil
			}, rec)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.polling, "poll", false, "Poll the directory instead of using filesystem notifications")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Maximum in-flight enrichment calls (default from config)")
	return cmd
}

// watch reconciles with rec after every change batch and passes the summary
// to after. It returns when ctx is done.
func (a *app) watch(ctx context.Context, polling bool, after func(context.Context, reconcile.Summary) error, rec *reconcile.Reconciler) error {
	w := watcher.New(a.cfg.DocumentsDir(), watcher.Options{
		Debounce:     config.Duration(a.cfg.Watch.Debounce, 500*time.Millisecond),
		ForcePolling: polling,
	})
	defer func() { _ = w.Stop() }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(ctx)
	})
	g.Go(func() error {
		return watcher.Loop(ctx, w, func(ctx context.Context, batch []watcher.FileEvent) error {
			for _, ev := range batch {
				a.lexicon.Forget(ev.Name)
			}
			summary, err := rec.Run(ctx)
			if err != nil {
				return err
			}
			return after(ctx, summary)
		})
	})
	return g.Wait()
}
