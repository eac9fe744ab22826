package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/thedocs/configs"
	"github.com/Aman-CERP/thedocs/internal/config"
	"github.com/Aman-CERP/thedocs/internal/output"
)

// projectConfigName is the file config init writes into --config-dir.
const projectConfigName = ".thedocs.yaml"

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage thedocs configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/thedocs/config.yaml)
  3. Project config (.thedocs.yaml in --config-dir)
  4. Environment variables (THEDOCS_*)`,
		Example: `  # Write a project config with the defaults
  thedocs config init

  # Show effective configuration
  thedocs config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd(root))
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd(root))
	return cmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the project config and prompt template",
		Long: `Write .thedocs.yaml into --config-dir and the enrichment prompt template
into the prompts directory. Existing files are kept unless --force is given.
With --user, write the user config instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user {
				return runConfigInit(cmd, config.GetUserConfigPath(), force, func(path string) error {
					return config.NewConfig().WriteYAML(path)
				})
			}
			path := filepath.Join(root.cfg.BaseDir(), projectConfigName)
			err := runConfigInit(cmd, path, force, func(path string) error {
				return os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644)
			})
			if err != nil {
				return err
			}
			return runConfigInit(cmd, root.cfg.PromptPath(), force, func(path string) error {
				return os.WriteFile(path, []byte(configs.PromptTemplate), 0o644)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	return cmd
}

// runConfigInit writes path with write unless it exists and force is off.
func runConfigInit(cmd *cobra.Command, path string, force bool, write func(string) error) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("%s already exists", filepath.Base(path))
		out.Statusf("📁", "Location: %s", path)
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := write(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	out.Successf("Created %s", path)
	return nil
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging defaults, user config, project config
and environment variables. Secrets are omitted from JSON output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(root.cfg)
			}
			shown := *root.cfg
			shown.FullText.Password = redact(shown.FullText.Password)
			shown.Enrichment.APIKey = redact(shown.Enrichment.APIKey)
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func newConfigPathCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration and data paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			cfg := root.cfg
			fmt.Fprintf(w, "user config:    %s\n", config.GetUserConfigPath())
			fmt.Fprintf(w, "project config: %s\n", filepath.Join(cfg.BaseDir(), projectConfigName))
			fmt.Fprintf(w, "documents:      %s\n", cfg.DocumentsDir())
			fmt.Fprintf(w, "table:          %s\n", cfg.TablePath())
			fmt.Fprintf(w, "prompt:         %s\n", cfg.PromptPath())
			return nil
		},
	}
}
