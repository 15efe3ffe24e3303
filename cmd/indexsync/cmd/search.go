package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexsync/internal/search"
)

func newSearchCmd() *cobra.Command {
	var req search.Request

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Query the search index",
		Long: `Run a query against the search index through the daemon. An empty query
matches every document.`,
		Example: `  indexsync search brass lamp
  indexsync search --entity profile alice --size 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			client, _, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			return newRenderer(cmd.OutOrStdout()).RenderSearch(*res)
		},
	}

	cmd.Flags().StringVar(&req.Entity, "entity", "", "Restrict to one entity")
	cmd.Flags().IntVar(&req.Size, "size", 10, "Number of hits")
	cmd.Flags().IntVar(&req.From, "from", 0, "Offset of the first hit")

	return cmd
}
