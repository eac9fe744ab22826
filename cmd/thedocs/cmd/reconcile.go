package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/thedocs/internal/output"
	"github.com/Aman-CERP/thedocs/internal/ui"
)

type reconcileOptions struct {
	concurrency int
	plain       bool
	json        bool
}

func newReconcileCmd(root *rootOptions) *cobra.Command {
	opts := &reconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Bring the record table in line with the documents directory",
		Long: `Create records for new documents, generate missing titles and descriptions,
and push every document to the full-text index when one is configured.

Records whose file has been deleted are reported and kept. Per-file
enrichment failures are reported without stopping the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Maximum in-flight enrichment calls (default from config)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of the progress view")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the run summary as JSON")
	return cmd
}

func runReconcile(cmd *cobra.Command, root *rootOptions, opts *reconcileOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, root.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())
	if opts.json {
		summary, err := a.reconciler(opts.concurrency, ui.Discard).Run(ctx)
		if err != nil {
			return err
		}
		return out.JSON(summary)
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(ui.DetectNoColor())))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	summary, err := a.reconciler(opts.concurrency, renderer).Run(ctx)
	if err != nil {
		return err
	}
	renderer.Complete(summary.Stats())
	return nil
}
