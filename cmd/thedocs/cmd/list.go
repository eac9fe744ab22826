package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/thedocs/internal/output"
)

type listOptions struct {
	private bool
	format  string
}

func newListCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List document records, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			recs, err := a.library.Browse(ctx, opts.private)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if opts.format == "json" {
				return out.JSON(recs)
			}
			out.Records(recs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.private, "private", false, "Include private documents")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}
