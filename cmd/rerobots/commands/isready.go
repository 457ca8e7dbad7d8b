package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/instance"
	"github.com/rerobots/client-go/pkg/poll"
)

func newIsReadyCommand() *cobra.Command {
	var (
		blocking bool
	)

	cmd := &cobra.Command{
		Use:   "isready [INSTANCE_ID]",
		Short: "Check whether an instance is ready",
		Long: `Check whether an instance is ready to use.

Exits 0 when the instance is READY and 1 otherwise. With --blocking,
polls until the instance becomes READY or reaches a state it cannot
recover from; interrupting the wait also exits 1.`,
		Example: `  # One-shot readiness check
  rerobots isready

  # Wait for a freshly launched instance
  rerobots launch fixed_misty2 -y && rerobots isready --blocking`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := resolveInstance(ctx, args)
			if err != nil {
				return err
			}
			inst, err := instance.New(ctx, app.client, instance.Options{
				InstanceID: id,
				Logger:     app.logger,
				Metrics:    app.tel.Metrics,
				Tracer:     app.tel.Tracer,
			})
			if err != nil {
				return err
			}

			if inst.Status() == api.StatusReady {
				fmt.Println("READY")
				return nil
			}
			if !blocking {
				return fmt.Errorf("instance %s is %s", id, inst.Status())
			}

			err = poll.Wait(ctx, poll.Options{
				Target:   "instance ready",
				Interval: poll.DefaultInterval,
				Logger:   app.logger,
				Metrics:  app.tel.Metrics,
				Tracer:   app.tel.Tracer,
			}, func(ctx context.Context) (bool, error) {
				status, err := inst.GetStatus(ctx)
				if err != nil {
					return false, err
				}
				if status.Terminal() {
					return false, fmt.Errorf("instance %s reached %s while waiting", id, status)
				}
				return status == api.StatusReady, nil
			})
			if err != nil {
				return err
			}
			fmt.Println("READY")
			return nil
		},
	}

	cmd.Flags().BoolVar(&blocking, "blocking", false, "wait until the instance is ready")

	return cmd
}
