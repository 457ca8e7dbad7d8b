package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWDInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wdinfo DEPLOYMENT_ID",
		Short: "Show details of a workspace deployment",
		Example: `  rerobots wdinfo 2c0873b5-1da1-46e6-9658-c40379774edf`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := app.client.GetDeploymentInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(d)
			}
			fmt.Printf("id: %s\n", d.ID)
			fmt.Printf("type: %s\n", d.Type)
			if d.TypeVersion > 0 {
				fmt.Printf("type version: %d\n", d.TypeVersion)
			}
			fmt.Printf("region: %s\n", d.Region)
			fmt.Printf("queue length: %d\n", d.QueueLen)
			if d.Created != "" {
				fmt.Printf("created: %s\n", d.Created)
			}
			if d.Icounter > 0 {
				fmt.Printf("instances launched: %d\n", d.Icounter)
			}
			return nil
		},
	}

	return cmd
}
