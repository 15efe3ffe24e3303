package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run an incremental sync now",
		Long: `Run an incremental sync immediately and reset the periodic timer. The
sync waits for the queue to drain and reports how many jobs completed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Sync(cmd.Context())
			if err != nil {
				return err
			}
			if err := newRenderer(cmd.OutOrStdout()).RenderSyncResult(*res); err != nil {
				return err
			}
			if !res.Success {
				return errSilent
			}
			return nil
		},
	}
}

func newReindexCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the source",
		Long: `Drop and recreate the search index, then page every entity from the
source into it. By default the reindex runs in the background; follow it with
'indexsync stats'. With --wait the command blocks until it finishes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Reindex(cmd.Context(), wait)
			if err != nil {
				return err
			}

			r := newRenderer(cmd.OutOrStdout())
			if res.Result == nil {
				if jsonOutput {
					return r.RenderJSON(res)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Reindex started; follow progress with 'indexsync stats'")
				return nil
			}
			if err := r.RenderSyncResult(*res.Result); err != nil {
				return err
			}
			if !res.Result.Success {
				return errSilent
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the reindex finishes")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline health",
		Long: `Probe the search engine and the queue and report whether the pipeline is
healthy, degraded or unhealthy. Exits non-zero when unhealthy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if err := newRenderer(cmd.OutOrStdout()).RenderHealth(*h); err != nil {
				return err
			}
			if h.Status == "unhealthy" {
				return errSilent
			}
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show indexer, queue and sync counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			s, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout()).RenderStats(*s)
		},
	}
}
