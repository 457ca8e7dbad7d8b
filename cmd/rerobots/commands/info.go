package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [INSTANCE_ID]",
		Short: "Show details of an instance",
		Long: `Show details of a workspace instance.

Without an argument, the sole active instance is used; with several
active instances the ID must be given explicitly.`,
		Example: `  # Details of your only active instance
  rerobots info

  # Details of a specific instance
  rerobots info 2c0873b5-1da1-46e6-9658-c40379774edf

  # Machine-readable output
  rerobots info --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := resolveInstance(ctx, args)
			if err != nil {
				return err
			}
			info, err := app.client.GetInstanceInfo(ctx, id)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(info)
			}
			fmt.Printf("id: %s\n", info.ID)
			fmt.Printf("wdeployment: %s\n", info.Deployment)
			if info.Type != "" {
				fmt.Printf("type: %s\n", info.Type)
			}
			if info.Region != "" {
				fmt.Printf("region: %s\n", info.Region)
			}
			if info.Starttime != "" {
				fmt.Printf("starttime: %s\n", info.Starttime)
			}
			fmt.Printf("status: %s\n", info.Status)
			if info.Fwd != nil {
				fmt.Printf("address: %s:%d\n", info.Fwd.IPv4, info.Fwd.Port)
			}
			if info.Expires != "" {
				fmt.Printf("expires: %s\n", info.Expires)
			}
			return nil
		},
	}

	return cmd
}
