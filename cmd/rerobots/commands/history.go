package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past launches",
		Long: `List instances launched from this machine, newest first.

The history is local: it records what this client did, not the full
account activity on the service.`,
		Example: `  # The last 20 launches
  rerobots history

  # Everything, machine-readable
  rerobots history --limit 0 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("no launches recorded")
				return nil
			}
			for _, rec := range records {
				line := fmt.Sprintf("%s  %s  %s",
					rec.LaunchedAt.Format(time.RFC3339), rec.InstanceID, rec.Deployment)
				if rec.WorkspaceType != "" {
					line += "  " + rec.WorkspaceType
				}
				if rec.TerminatedAt != nil {
					line += "  terminated " + rec.TerminatedAt.Format(time.RFC3339)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to show (0 shows all)")

	return cmd
}
