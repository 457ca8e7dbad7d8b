package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rerobots/client-go/pkg/api"
)

func newListCommand() *cobra.Command {
	var (
		includeTerminated bool
		page              int
		maxPerPage        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your instances",
		Long: `List the IDs of your workspace instances, one per line.

Terminated instances are omitted unless --include-terminated is given.`,
		Example: `  # Active instances
  rerobots list

  # Everything, including terminated instances, 20 at a time
  rerobots list --include-terminated --max-per-page 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, pageCount, err := app.client.ListInstances(cmd.Context(), includeTerminated,
				api.Pagination{Page: page, MaxPerPage: maxPerPage})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(ids)
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			if maxPerPage > 0 && pageCount > 1 {
				shown := page
				if shown < 1 {
					shown = 1
				}
				fmt.Fprintf(os.Stderr, "page %d of %d\n", shown, pageCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeTerminated, "include-terminated", false, "include terminated instances")
	cmd.Flags().IntVar(&page, "page", 0, "page to fetch")
	cmd.Flags().IntVar(&maxPerPage, "max-per-page", 0, "page size (0 fetches everything)")

	return cmd
}
