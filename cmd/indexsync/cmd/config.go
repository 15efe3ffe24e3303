package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/indexsync/configs"
	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/daemon"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the indexsync configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. Config file (--config, ./indexsync.yaml or ~/.config/indexsync/config.yaml)
  3. Environment variables (INDEXSYNC_*), including those from a .env file`,
		Example: `  # Create a config file with defaults
  indexsync config init

  # Show effective configuration
  indexsync config show

  # Change the sync interval of the running daemon
  indexsync config update --interval 10m`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigUpdateCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with defaults",
		Long: `Write the commented default configuration to --config, or to the
user config path when --config is not given. An existing file is kept unless
--force is set, in which case it is backed up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	path := configPath
	if path == "" {
		path = config.GetUserConfigPath()
	}

	if fileExists(path) {
		if !force {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backed up existing config to %s\n", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				return newRenderer(cmd.OutOrStdout()).RenderJSON(cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(cfg)
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.ResolvePath(configPath)
			suffix := ""
			if !fileExists(path) {
				suffix = " (not created)"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path+suffix)
			return err
		},
	}
}

var updateFlags = []string{"enabled", "batch-size", "interval", "max-retries", "retry-delay", "index-batch-size"}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}

func newConfigUpdateCmd() *cobra.Command {
	var (
		params         daemon.UpdateConfigParams
		enabled        bool
		batchSize      int
		maxRetries     int
		indexBatchSize int
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change sync settings of the running daemon",
		Long: `Apply a partial sync configuration change to the running daemon. Only the
flags given are changed. The config file is not modified.`,
		Example: `  indexsync config update --enabled=false
  indexsync config update --interval 10m --retry-delay 2s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("enabled") {
				params.Enabled = &enabled
			}
			if flags.Changed("batch-size") {
				params.BatchSize = &batchSize
			}
			if flags.Changed("max-retries") {
				params.MaxRetries = &maxRetries
			}
			if flags.Changed("index-batch-size") {
				params.IndexBatchSize = &indexBatchSize
			}
			if !anyChanged(cmd, updateFlags...) {
				return fmt.Errorf("nothing to update; see 'indexsync config update --help'")
			}

			client, _, err := newClient()
			if err != nil {
				return err
			}
			updated, err := client.UpdateConfig(cmd.Context(), params)
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout()).RenderConfig(*updated)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&enabled, "enabled", true, "Enable the periodic incremental sync")
	flags.IntVar(&batchSize, "batch-size", 0, "Source page size for full reindexes")
	flags.StringVar(&params.Interval, "interval", "", "Periodic sync interval (e.g. 5m)")
	flags.IntVar(&maxRetries, "max-retries", 0, "Retries per job and per reindex page")
	flags.StringVar(&params.RetryDelay, "retry-delay", "", "Delay between retries (e.g. 5s)")
	flags.IntVar(&indexBatchSize, "index-batch-size", 0, "Indexer flush size")

	return cmd
}
