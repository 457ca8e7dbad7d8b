package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRevokeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke SHA256",
		Short: "Revoke one API token",
		Long: `Revoke the API token identified by the SHA256 hash of its
contents.

Compute the hash of a token file with:
  sha256sum token.jwt`,
		Example: `  rerobots revoke 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.client.RevokeToken(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("token revoked")
			return nil
		},
	}

	return cmd
}

func newPurgeCommand() *cobra.Command {
	var (
		assumeYes bool
		assumeNo  bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Revoke all of your API tokens",
		Long: `Revoke every API token of your account, including the one used
for this request. Processes holding a revoked token stop working
immediately.`,
		Example: `  rerobots purge -y`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirm("Revoke ALL of your API tokens?", assumeYes, assumeNo)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("purge canceled")
				return nil
			}

			if err := app.client.PurgeTokens(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("all tokens revoked")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "purge without confirmation")
	cmd.Flags().BoolVarP(&assumeNo, "no", "n", false, "answer no to the confirmation prompt")

	return cmd
}
