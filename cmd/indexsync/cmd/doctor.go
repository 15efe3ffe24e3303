package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexsync/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this host can run the pipeline",
		Long: `Run the checks 'indexsync serve' performs before starting: data
directories are writable and have free space, the file descriptor limit is
high enough, the socket path fits and the source database opens.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			results := preflight.New(cfg).RunAll(cmd.Context())
			out := cmd.OutOrStdout()
			if jsonOutput {
				err = newRenderer(out).RenderJSON(map[string]any{
					"status": preflight.SummaryStatus(results),
					"checks": results,
				})
				if err != nil {
					return err
				}
			} else {
				preflight.PrintResults(out, results, verbose)
			}

			if preflight.HasCriticalFailures(results) {
				return errSilent
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")
	return cmd
}
