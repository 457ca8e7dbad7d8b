package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/poll"
)

func newTerminateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminate [INSTANCE_ID]",
		Short: "Terminate an instance",
		Long: `Terminate a workspace instance.

A busy instance is retried for a while before giving up, since
terminate contention usually resolves once the current state change
finishes.`,
		Example: `  # Terminate your only active instance
  rerobots terminate

  # Terminate a specific instance
  rerobots terminate 2c0873b5-1da1-46e6-9658-c40379774edf`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := resolveInstance(ctx, args)
			if err != nil {
				return err
			}

			err = poll.RetryBusy(ctx, poll.RetryOptions{
				Op:       "terminate",
				Attempts: poll.TerminateRetryAttempts,
				Sleep:    poll.TerminateRetrySleep,
				Logger:   app.logger,
				Metrics:  app.tel.Metrics,
			}, func(ctx context.Context) error {
				return app.client.TerminateInstance(ctx, id)
			})
			if err != nil {
				return err
			}

			fmt.Printf("terminating %s\n", id)
			recordTermination(ctx, id)
			return nil
		},
	}

	return cmd
}

// recordTermination marks the instance terminated in the local launch
// history. Best-effort, like recordLaunch.
func recordTermination(ctx context.Context, instanceID string) {
	store, err := openHistory(ctx)
	if err != nil {
		app.logger.Warn().Err(err).Msg("launch history unavailable")
		return
	}
	defer store.Close()

	err = store.RecordTermination(ctx, instanceID, string(api.StatusTerminating), time.Now().UTC())
	if err != nil {
		app.logger.Warn().Err(err).
			Str("instance_id", instanceID).
			Msg("failed to record termination")
	}
}
