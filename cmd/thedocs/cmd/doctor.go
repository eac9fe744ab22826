package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/thedocs/internal/output"
	"github.com/Aman-CERP/thedocs/internal/preflight"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the project and its backends are usable",
		Long: `Check write access and free space in the documents directory, that the
record table parses, that the prompt template exists, and that the
configured full-text backend answers.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			opts := []preflight.Option{
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
				preflight.WithDependency("record_table", a.store, true, a.store.Path()),
			}
			if a.generator != nil {
				opts = append(opts, preflight.WithPromptFile(a.cfg.PromptPath()))
			}
			if a.fullText != nil {
				opts = append(opts, preflight.WithDependency("fulltext", a.fullText, false,
					"searches use the lexicon engine until the backend answers"))
			}
			checker := preflight.New(opts...)
			results := checker.RunAll(ctx, a.cfg.DocumentsDir())

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}
			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
