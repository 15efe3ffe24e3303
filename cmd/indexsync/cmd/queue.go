package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexsync/internal/daemon"
	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

var queueNames = []string{"pending", "processing", "completed", "failed"}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
		Long: `Inspect and manage the four queue lists: pending, processing, completed
and failed.`,
		Example: `  indexsync queue stats
  indexsync queue list failed --limit 20
  indexsync queue retry
  indexsync queue clear completed`,
	}

	cmd.AddCommand(newQueueStatsCmd())
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueRetryCmd())
	cmd.AddCommand(newQueueClearCmd())

	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show list lengths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			s, err := client.QueueStats(cmd.Context())
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout()).RenderQueueStats(*s)
		},
	}
}

func newQueueListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:       "list [pending|processing|completed|failed]",
		Short:     "List jobs in one queue list (default failed)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: queueNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := "failed"
			if len(args) == 1 {
				list = args[0]
			}
			client, _, err := newClient()
			if err != nil {
				return err
			}
			jobs, err := client.ListJobs(cmd.Context(), list, limit)
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout()).RenderJobs(list, jobs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show (0 for all)")
	return cmd
}

func newQueueRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Move every failed job back to pending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			n, err := client.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			return printCount(cmd.OutOrStdout(), "Requeued %d failed jobs\n", n)
		},
	}
}

func newQueueClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "clear <pending|processing|completed|failed>",
		Short:     "Delete every job in one queue list",
		Args:      cobra.ExactArgs(1),
		ValidArgs: queueNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			n, err := client.ClearQueue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCount(cmd.OutOrStdout(), "Removed %d jobs from "+args[0]+"\n", n)
		},
	}
}

func printCount(out io.Writer, format string, n int) error {
	if jsonOutput {
		return newRenderer(out).RenderJSON(daemon.CountResult{Count: n})
	}
	_, err := fmt.Fprintf(out, format, n)
	return err
}

func newEnqueueCmd() *cobra.Command {
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "enqueue <entity> <INSERT|UPDATE|DELETE> [payload-json]",
		Short: "Enqueue a change event",
		Long: `Enqueue a change event for the pipeline. The payload is the record as JSON;
for UPDATE it is {"old": {...}, "new": {...}}. Read it from a file with
--payload-file, or from stdin with --payload-file -.`,
		Example: `  indexsync enqueue listing INSERT '{"id": 7, "title": "Brass lamp"}'
  indexsync enqueue listing DELETE '{"id": 7}'`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[2:], payloadFile)
			if err != nil {
				return err
			}
			client, _, err := newClient()
			if err != nil {
				return err
			}
			id, err := client.Enqueue(cmd.Context(), daemon.EnqueueParams{
				Entity:    args[0],
				Operation: strings.ToUpper(args[1]),
				Payload:   payload,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return newRenderer(cmd.OutOrStdout()).RenderJSON(daemon.EnqueueResult{ID: id})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&payloadFile, "payload-file", "f", "", "Read the payload from a file ('-' for stdin)")
	return cmd
}

// readPayload takes the payload from the argument, the file or stdin and
// checks that it is JSON.
func readPayload(stdin io.Reader, args []string, file string) (json.RawMessage, error) {
	var data []byte
	switch {
	case len(args) == 1 && file != "":
		return nil, serrors.ValidationError("give the payload as an argument or with --payload-file, not both", nil)
	case len(args) == 1:
		data = []byte(args[0])
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		data = b
	default:
		return nil, serrors.ValidationError("a payload is required", nil).
			WithSuggestion(`pass the record as JSON, e.g. '{"id": 1}'`)
	}

	if !json.Valid(data) {
		return nil, serrors.ValidationError("payload is not valid JSON", nil)
	}
	return json.RawMessage(data), nil
}
