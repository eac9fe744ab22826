package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/mcp"
	"github.com/Aman-CERP/thedocs/internal/metrics"
	"github.com/Aman-CERP/thedocs/internal/reconcile"
	"github.com/Aman-CERP/thedocs/internal/ui"
	"github.com/Aman-CERP/thedocs/pkg/version"
)

type serveOptions struct {
	private     bool
	metricsAddr string
	watch       bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the library to MCP clients over stdio",
		Long: `Start an MCP server on stdin/stdout exposing the search_documents,
list_documents and read_document tools and a doc:// resource per document.

Logs never go to stderr while serving. With --metrics-addr (or
server.metrics_addr) an HTTP listener serves /metrics, /healthz and /readyz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.private, "private", false, "Treat clients as authenticated (default from server.include_private)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Ops listener address (default from server.metrics_addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reconcile and refresh resources when documents change")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := root.cfg
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	private := cfg.Server.IncludePrivate
	if cmd.Flags().Changed("private") {
		private = opts.private
	}
	srv, err := mcp.NewServer(a.facade, a.library, mcp.WithPrivateDocuments(private))
	if err != nil {
		return err
	}
	if err := srv.RegisterResources(ctx); err != nil {
		slog.Warn("mcp_resources_unavailable", doerrors.LogArgs(err)...)
	}

	addr := cfg.Server.MetricsAddr
	if opts.metricsAddr != "" {
		addr = opts.metricsAddr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The client closing stdin ends the session and the other goroutines.
		defer stop()
		return srv.Serve(gctx)
	})
	if addr != "" {
		checks := map[string]metrics.ReadinessChecker{"store": a.store}
		if a.fullText != nil {
			checks["fulltext"] = a.fullText
		}
		ops := metrics.NewServer(addr, version.Version, checks)
		g.Go(func() error {
			return ops.Run(gctx)
		})
	}
	if opts.watch {
		rec := a.reconciler(0, ui.Discard)
		g.Go(func() error {
			return a.watch(gctx, false, func(ctx context.Context, _ reconcile.Summary) error {
				return srv.RegisterResources(ctx)
			}, rec)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
