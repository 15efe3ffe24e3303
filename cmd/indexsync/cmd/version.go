package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexsync/internal/daemon"
	"github.com/Aman-CERP/indexsync/pkg/version"
)

// versionReport is the --json form of `version --daemon`.
type versionReport struct {
	CLI    version.BuildInfo     `json:"cli"`
	Daemon *daemon.ProcessRecord `json:"daemon,omitempty"`
}

func newVersionCmd() *cobra.Command {
	var short, withDaemon bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Long: `Print the build version, commit, date and toolchain. With --daemon the
version recorded by the serving daemon is printed too, which shows whether
it still runs an older binary after an upgrade.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(out, version.Short())
				return err
			case withDaemon:
				return runDaemonVersion(cmd)
			case jsonOutput:
				return newRenderer(out).RenderJSON(version.GetInfo())
			}
			_, err := fmt.Fprintln(out, version.String())
			return err
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	cmd.Flags().BoolVar(&withDaemon, "daemon", false, "Also print the serving daemon's version")
	return cmd
}

func runDaemonVersion(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	report := versionReport{CLI: version.GetInfo()}
	if rec, live := daemon.NewProcessFile(daemon.FromConfig(cfg.Daemon).PIDPath).Live(); live {
		report.Daemon = &rec
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return newRenderer(out).RenderJSON(report)
	}
	_, _ = fmt.Fprintf(out, "cli     %s\n", report.CLI.Version)
	if report.Daemon == nil {
		_, err = fmt.Fprintln(out, "daemon  not running")
		return err
	}
	_, err = fmt.Fprintf(out, "daemon  %s (pid %d)\n", report.Daemon.Version, report.Daemon.PID)
	return err
}
