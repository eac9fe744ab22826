package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/output"
)

type searchOptions struct {
	private bool
	format  string
	limit   int
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents by substring or quoted phrase",
		Long: `Search titles, descriptions and document bodies.

An unquoted query matches any word case-insensitively; a query wrapped in
double quotes matches the exact phrase. Private documents are only searched
with --private.`,
		Example: `  thedocs search kubernetes
  thedocs search '"rolling update"'
  thedocs search --private --format json backup`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.private, "private", false, "Include private documents")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (0 = configured maximum)")
	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, query string, opts *searchOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, root.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.facade.Search(ctx, query, opts.private)
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(resp.Results) > opts.limit {
		resp.Results = resp.Results[:opts.limit]
		resp.Count = len(resp.Results)
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(resp)
	}
	out.SearchResults(query, resp)
	return nil
}

func checkFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return doerrors.ValidationError("unknown output format "+format, nil).
			WithSuggestion("Use --format text or --format json")
	}
}
