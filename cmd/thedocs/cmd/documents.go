package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/library"
	"github.com/Aman-CERP/thedocs/internal/output"
)

type addOptions struct {
	title       string
	description string
	public      bool
}

func newAddCmd(root *rootOptions) *cobra.Command {
	opts := &addOptions{}

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Copy a markdown file into the library and record it",
		Long: `Copy a markdown file into the documents directory under a sanitized,
unique name and create its record. Blank title or description are generated
by the enrichment provider when one is configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return doerrors.IOError("failed to read "+args[0], err)
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rec, err := a.library.Add(ctx, filepath.Base(args[0]), content, library.Metadata{
				Title:       opts.title,
				Description: opts.description,
				IsPublic:    opts.public,
			})
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Added %s", rec.Filename)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Document title")
	cmd.Flags().StringVar(&opts.description, "description", "", "Document description")
	cmd.Flags().BoolVar(&opts.public, "public", false, "Make the document visible to anonymous viewers")
	return cmd
}

func newRmCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <filename>",
		Aliases: []string{"remove"},
		Short:   "Delete a document, its record and its index entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.library.Remove(ctx, args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Removed %s", args[0])
			return nil
		},
	}
}

func newVisibilityCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "visibility <filename> public|private",
		Short:     "Make a document public or private",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"public", "private"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var public bool
			switch args[1] {
			case "public":
				public = true
			case "private":
			default:
				return doerrors.ValidationError(fmt.Sprintf("visibility must be public or private, got %q", args[1]), nil)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rec, err := a.library.SetVisibility(ctx, args[0], public)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("%s is now %s", rec.Filename, args[1])
			return nil
		},
	}
}

type editOptions struct {
	title       string
	description string
}

func newEditCmd(root *rootOptions) *cobra.Command {
	opts := &editOptions{}

	cmd := &cobra.Command{
		Use:   "edit <filename>",
		Short: "Change a document's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("title") && !cmd.Flags().Changed("description") {
				return doerrors.ValidationError("nothing to edit", nil).
					WithSuggestion("Pass --title and/or --description")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			current, err := a.library.Get(ctx, args[0])
			if err != nil {
				return err
			}
			title, description := current.Title, current.Description
			if cmd.Flags().Changed("title") {
				title = opts.title
			}
			if cmd.Flags().Changed("description") {
				description = opts.description
			}

			rec, err := a.library.UpdateMetadata(ctx, args[0], title, description)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Updated %s", rec.Filename)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "New title")
	cmd.Flags().StringVar(&opts.description, "description", "", "New description")
	return cmd
}
