package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rerobots/client-go/pkg/api"
)

func newSearchCommand() *cobra.Command {
	var (
		types      []string
		maxLen     int
		page       int
		maxPerPage int
	)

	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search workspace deployments",
		Long: `Search the catalog of workspace deployments.

The optional query matches deployment metadata on the server side;
--type restricts results to the given workspace types. Search works
without an API token.`,
		Example: `  # Everything you can instantiate from
  rerobots search

  # Deployments of one workspace type
  rerobots search --type fixed_misty2

  # Deployments with at most one queued request
  rerobots search --maxlen 1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) > 0 {
				query = args[0]
			}

			deployments, pageCount, err := app.client.ListDeployments(cmd.Context(), api.DeploymentQuery{
				Query:      query,
				Types:      types,
				MaxLen:     maxLen,
				Page:       page,
				MaxPerPage: maxPerPage,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(deployments)
			}
			if len(deployments) == 0 {
				fmt.Println("no matching workspace deployments")
				return nil
			}
			for _, d := range deployments {
				fmt.Printf("%s  %s  %s  queue %d\n", d.ID, d.Type, d.Region, d.QueueLen)
			}
			if maxPerPage > 0 && pageCount > 1 {
				fmt.Printf("(%d pages)\n", pageCount)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "restrict to workspace types")
	cmd.Flags().IntVar(&maxLen, "maxlen", 0, "only deployments with queue length at most this (0 for any)")
	cmd.Flags().IntVar(&page, "page", 0, "page to fetch")
	cmd.Flags().IntVar(&maxPerPage, "max-per-page", 0, "page size (0 fetches everything)")

	return cmd
}
