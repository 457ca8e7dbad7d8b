package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/history"
	"github.com/rerobots/client-go/pkg/instance"
	"github.com/rerobots/client-go/pkg/poll"
	"github.com/rerobots/client-go/pkg/sshtun"
)

func newLaunchCommand() *cobra.Command {
	var (
		publicKeyPath string
		secretKeyPath string
		assumeYes     bool
		assumeNo      bool
		vpn           bool
		reserve       bool
		eventURL      string
		expire        int
	)

	cmd := &cobra.Command{
		Use:   "launch [TYPE|DEPLOYMENT_ID]",
		Short: "Launch a workspace instance",
		Long: `Launch an instance from a workspace deployment.

The argument is a workspace type or a deployment ID. Given a type, one
deployment is picked at random among the matching candidates so that
repeated launches spread over the pool; without an argument, every
deployment you can instantiate from is a candidate.

Unless a public key is supplied with --public-key, the service
generates a key pair and the secret half is written locally with
owner-only permissions, to key.pem by default. The key is returned
exactly once; if the file cannot be written, the instance is still
launching and should be terminated if the key is lost.`,
		Example: `  # Launch any deployment of a type, prompting for confirmation
  rerobots launch fixed_misty2

  # Launch a specific deployment without prompting
  rerobots launch 2c0873b5-1da1-46e6-9658-c40379774edf -y

  # Use your own key pair
  rerobots launch fixed_misty2 --public-key ~/.ssh/id_ed25519.pub -y`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			target := ""
			if len(args) > 0 {
				target = args[0]
			}
			dep, err := pickDeployment(ctx, target)
			if err != nil {
				return err
			}

			ok, err := confirm(fmt.Sprintf("Launch from deployment %s (%s, %s)?",
				dep.ID, dep.Type, dep.Region), assumeYes, assumeNo)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("launch canceled")
				return nil
			}

			var publicKey string
			if publicKeyPath != "" {
				data, err := os.ReadFile(publicKeyPath)
				if err != nil {
					return fmt.Errorf("failed to read public key: %w", err)
				}
				publicKey = strings.TrimSpace(string(data))
			}

			var inst *instance.Instance
			err = poll.RetryBusy(ctx, poll.RetryOptions{
				Op:      "launch",
				Logger:  app.logger,
				Metrics: app.tel.Metrics,
			}, func(ctx context.Context) error {
				var err error
				inst, err = instance.New(ctx, app.client, instance.Options{
					DeploymentID:   dep.ID,
					SSHPublicKey:   publicKey,
					VPN:            vpn,
					Reserve:        reserve,
					EventURL:       eventURL,
					ExpireDuration: expire,
					Logger:         app.logger,
					Metrics:        app.tel.Metrics,
					Tracer:         app.tel.Tracer,
				})
				return err
			})
			if err != nil {
				return err
			}

			fmt.Printf("instance: %s\n", inst.ID())

			keyPath := ""
			if key := inst.SecretKey(); len(key) > 0 {
				keyPath = secretKeyPath
				if keyPath == "" {
					keyPath = app.cfg.KeyFileName
				}
				if err := sshtun.WriteKey(keyPath, key); err != nil {
					return fmt.Errorf("instance %s is launching but its secret key could not be saved: %w",
						inst.ID(), err)
				}
				fmt.Printf("secret key: %s\n", keyPath)
			}

			recordLaunch(ctx, inst, dep, keyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&publicKeyPath, "public-key", "", "public key file to install on the instance")
	cmd.Flags().StringVar(&secretKeyPath, "secret-key", "", "where to write a generated secret key (default key.pem)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "launch without confirmation")
	cmd.Flags().BoolVarP(&assumeNo, "no", "n", false, "answer no to the confirmation prompt")
	cmd.Flags().BoolVar(&vpn, "vpn", false, "request VPN support")
	cmd.Flags().BoolVar(&reserve, "reserve", false, "queue the request when the deployment is busy")
	cmd.Flags().StringVar(&eventURL, "event-url", "", "URL notified on instance lifecycle events")
	cmd.Flags().IntVar(&expire, "expire", 0, "terminate automatically after this many seconds")

	return cmd
}

// pickDeployment resolves the launch target. A deployment ID is used
// directly; a workspace type, or no argument at all, searches for
// candidates and picks one at random. The random pick here differs
// from instance.New, which takes the first candidate so that library
// callers get repeatable selection.
func pickDeployment(ctx context.Context, target string) (*api.Deployment, error) {
	if _, err := uuid.Parse(target); err == nil {
		return app.client.GetDeploymentInfo(ctx, target)
	}

	q := api.DeploymentQuery{}
	if target != "" {
		q.Types = []string{target}
	}
	candidates, _, err := app.client.ListDeployments(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if target == "" {
			return nil, fmt.Errorf("no workspace deployments available")
		}
		return nil, fmt.Errorf("no workspace deployments of type %q", target)
	}

	pick := candidates[rand.IntN(len(candidates))]
	return &pick, nil
}

// recordLaunch appends to the local launch history. The history is
// best-effort: failures are logged and never fail the launch.
func recordLaunch(ctx context.Context, inst *instance.Instance, dep *api.Deployment, keyPath string) {
	log := app.tel.Logger.WithInstance(inst.ID()).WithDeployment(inst.Deployment())

	store, err := openHistory(ctx)
	if err != nil {
		zl := log.WithError(err).Zerolog()
		zl.Warn().Msg("launch history unavailable")
		return
	}
	defer store.Close()

	rec := &history.Record{
		InstanceID:    inst.ID(),
		Deployment:    inst.Deployment(),
		WorkspaceType: dep.Type,
		Region:        dep.Region,
		KeyPath:       keyPath,
		LaunchedAt:    time.Now().UTC(),
	}
	if err := store.RecordLaunch(ctx, rec); err != nil {
		zl := log.WithError(err).Zerolog()
		zl.Warn().Msg("failed to record launch history")
	}
}
