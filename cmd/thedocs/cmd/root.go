// Package cmd provides the CLI commands for thedocs.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/thedocs/internal/config"
	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
	"github.com/Aman-CERP/thedocs/internal/logging"
	"github.com/Aman-CERP/thedocs/pkg/version"
)

// rootOptions is shared by every subcommand.
type rootOptions struct {
	configDir string
	debug     bool

	// quietStderr keeps stderr clean, e.g. for MCP over stdio.
	quietStderr bool

	cfg            *config.Config
	loggingCleanup func()
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "thedocs",
		Short: "Markdown document library with metadata and search",
		Long: `thedocs indexes a directory of markdown documents against a CSV table of
metadata (title, description, visibility, upload date) and searches them by
substring or "quoted phrase", optionally through a full-text backend.

Run 'thedocs reconcile' after dropping files into the documents directory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if opts.loggingCleanup != nil {
				opts.loggingCleanup()
				opts.loggingCleanup = nil
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("thedocs version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "Project directory holding .thedocs.yaml; relative paths resolve against it")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newReconcileCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newRmCmd(opts))
	cmd.AddCommand(newVisibilityCmd(opts))
	cmd.AddCommand(newEditCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and installs the logger.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	// version and help need neither.
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	if cmd.Name() == "serve" {
		o.quietStderr = true
	}

	dir, err := filepath.Abs(o.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logCfg := logging.Config{
		Environment: logging.ParseEnvironment(cfg.Logging.Environment),
		Level:       cfg.Logging.Level,
		Dir:         cfg.LogDir(),
		AppName:     "thedocs",
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxFiles:    cfg.Logging.MaxFiles,
		NoStderr:    o.quietStderr,
	}
	if o.debug {
		logCfg.Level = "debug"
	} else if logCfg.Level == "" && logCfg.Environment == logging.EnvDevelopment {
		// CLI output goes to stdout; keep development logs to warnings.
		logCfg.Level = "warn"
	}
	cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	return nil
}

// Execute runs the root command and prints errors the way users expect.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, doerrors.FormatForCLI(err))
	}
	return err
}
