// Package cmd provides the CLI commands for indexsync.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexsync/internal/config"
	"github.com/Aman-CERP/indexsync/internal/daemon"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/logging"
	"github.com/Aman-CERP/indexsync/internal/profiling"
	"github.com/Aman-CERP/indexsync/internal/ui"
	"github.com/Aman-CERP/indexsync/pkg/version"
)

// annotationOwnsLogging marks commands that configure logging themselves.
const annotationOwnsLogging = "owns-logging"

// errSilent exits non-zero after the command already reported the problem.
var errSilent = errors.New("command failed")

// Global flags
var (
	configPath     string
	envFile        string
	debugMode      bool
	jsonOutput     bool
	loggingCleanup func()
	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the indexsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexsync",
		Short: "Keep a search index in sync with a system of record",
		Long: `indexsync consumes change events from a durable work queue, maps them to
search documents and writes them to the search index in batches.

Run 'indexsync serve' to start the pipeline and its control socket, then
use the other commands to inspect and steer it.`,
		Version:       version.Short(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("indexsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./indexsync.yaml or the user config)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Dotenv file to load before reading config (default .env if present)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.indexsync/logs/")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().StringVar(&profileOpts.CPUPath, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileOpts.HeapPath, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.TracePath, "profile-trace", "", "Write an execution trace to this file")
	_ = cmd.PersistentFlags().MarkHidden("profile-trace")

	cmd.PersistentPreRunE = setupEnvAndLogging
	cmd.PersistentPostRunE = teardown

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupEnvAndLogging loads the dotenv file, starts any requested profiles
// and, with --debug, file logging.
func setupEnvAndLogging(cmd *cobra.Command, _ []string) error {
	if err := loadEnv(envFile); err != nil {
		return err
	}

	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return serrors.ValidationError("failed to start profiling", err)
		}
		profileSession = s
	}

	if !debugMode || cmd.Annotations[annotationOwnsLogging] != "" {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

// teardown flushes profiles and closes debug logging. Execute calls it too
// because cobra skips post-run hooks when a command fails.
func teardown(_ *cobra.Command, _ []string) error {
	err := profileSession.Stop()
	profileSession = nil
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// loadEnv loads path into the environment without overriding variables
// that are already set. An empty path loads .env when it exists.
func loadEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return serrors.ConfigError(fmt.Sprintf("failed to load env file %s", path), err)
	}
	return nil
}

// Execute runs the root command and reports errors on stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if terr := teardown(root, nil); err == nil {
		err = terr
	}
	if err != nil && !errors.Is(err, errSilent) {
		_, _ = fmt.Fprint(root.ErrOrStderr(), serrors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newClient returns a control socket client for the configured daemon.
func newClient() (*daemon.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return daemon.NewClient(daemon.FromConfig(cfg.Daemon)), cfg, nil
}

// newRenderer picks colors by terminal detection and honours --json.
func newRenderer(out io.Writer) *ui.StatusRenderer {
	return ui.NewStatusRenderer(out, !ui.ShouldColor(out), jsonOutput)
}
