package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/poll"
)

// addOnOps binds one add-on's accessor methods so the activation and
// teardown waits below stay generic across cam, mistyproxy and drive.
type addOnOps struct {
	name       string
	budget     time.Duration
	activate   func(context.Context, string) error
	status     func(context.Context, string) (*api.AddOnStatus, error)
	deactivate func(context.Context, string) error
}

func newAddonCamCommand() *cobra.Command {
	var (
		deactivate  bool
		snapshotOut string
		camera      int
	)

	cmd := &cobra.Command{
		Use:   "addon-cam [INSTANCE_ID]",
		Short: "Manage the camera add-on",
		Long: `Activate the camera add-on on an instance and print its stream
URLs. Activation can take a while; the command waits for the camera
to come up.

--snapshot captures a single frame to a file instead of printing
URLs. --deactivate tears the add-on down.`,
		Example: `  # Camera stream URLs for your only active instance
  rerobots addon-cam

  # One frame from the second camera
  rerobots addon-cam --snapshot frame.jpg --camera 1

  # Tear the camera down
  rerobots addon-cam --deactivate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := resolveInstance(ctx, args)
			if err != nil {
				return err
			}
			ops := addOnOps{
				name:       "cam",
				budget:     poll.CamReadyBudget,
				activate:   app.client.ActivateCam,
				status:     app.client.CamStatus,
				deactivate: app.client.DeactivateCam,
			}

			if deactivate {
				return deactivateAddOn(ctx, ops, id)
			}
			st, err := activateAddOn(ctx, ops, id)
			if err != nil {
				return err
			}

			if snapshotOut != "" {
				img, format, err := app.client.CamSnapshot(ctx, id, camera)
				if err != nil {
					return err
				}
				if err := os.WriteFile(snapshotOut, img, 0644); err != nil {
					return fmt.Errorf("failed to write snapshot: %w", err)
				}
				fmt.Printf("snapshot (%s): %s\n", format, snapshotOut)
				return nil
			}
			printAddOnURLs(st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&deactivate, "deactivate", false, "deactivate the add-on")
	cmd.Flags().StringVar(&snapshotOut, "snapshot", "", "capture one frame to this file")
	cmd.Flags().IntVar(&camera, "camera", 0, "camera index for --snapshot")

	return cmd
}

func newAddonMistyProxyCommand() *cobra.Command {
	var (
		plainHTTP  bool
		restart    bool
		deactivate bool
	)

	cmd := &cobra.Command{
		Use:   "addon-mistyproxy [INSTANCE_ID]",
		Short: "Manage the Misty proxy add-on",
		Long: `Activate the mistyproxy add-on and print the URLs for reaching
the Misty robot's REST API through it.

--http prints only the plain-HTTP URL, for tools that cannot speak
TLS. --restart tears the proxy down and brings it back up, which
replaces previously issued URLs.`,
		Example: `  # Proxy URLs for your only active instance
  rerobots addon-mistyproxy

  # Plain-HTTP URL only
  rerobots addon-mistyproxy --http

  # Get fresh proxy URLs
  rerobots addon-mistyproxy --restart`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := resolveInstance(ctx, args)
			if err != nil {
				return err
			}
			ops := addOnOps{
				name:       "mistyproxy",
				budget:     poll.AddOnToggleBudget,
				activate:   app.client.ActivateMistyProxy,
				status:     app.client.MistyProxyStatus,
				deactivate: app.client.DeactivateMistyProxy,
			}

			if deactivate {
				return deactivateAddOn(ctx, ops, id)
			}
			if restart {
				if err := deactivateAddOn(ctx, ops, id); err != nil {
					return err
				}
			}
			st, err := activateAddOn(ctx, ops, id)
			if err != nil {
				return err
			}

			urls := st.URLs
			if plainHTTP {
				urls = filterScheme(urls, "http://")
				if len(urls) == 0 {
					return fmt.Errorf("no plain-HTTP proxy URL available")
				}
			}
			for _, u := range urls {
				fmt.Println(u)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&plainHTTP, "http", false, "print only the plain-HTTP proxy URL")
	cmd.Flags().BoolVar(&restart, "restart", false, "restart the proxy, replacing its URLs")
	cmd.Flags().BoolVar(&deactivate, "deactivate", false, "deactivate the add-on")

	return cmd
}

func newAddonDriveCommand() *cobra.Command {
	var (
		deactivate bool
		command    string
	)

	cmd := &cobra.Command{
		Use:   "addon-drive [INSTANCE_ID]",
		Short: "Manage the drive add-on",
		Long: `Activate the drive add-on, which exposes remote teleoperation of
the workspace hardware, and print its endpoint URLs.

--command sends one movement command after the add-on is up, instead
of printing URLs. Accepted commands depend on the workspace type.`,
		Example: `  # Bring up teleoperation
  rerobots addon-drive

  # Send a single movement command
  rerobots addon-drive --command forward

  # Tear it down
  rerobots addon-drive --deactivate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := resolveInstance(ctx, args)
			if err != nil {
				return err
			}
			ops := addOnOps{
				name:       "drive",
				budget:     poll.DriveReadyBudget,
				activate:   app.client.ActivateDrive,
				status:     app.client.DriveStatus,
				deactivate: app.client.DeactivateDrive,
			}

			if deactivate {
				return deactivateAddOn(ctx, ops, id)
			}
			st, err := activateAddOn(ctx, ops, id)
			if err != nil {
				return err
			}

			if command != "" {
				return app.client.SendDriveCommand(ctx, id, command)
			}
			printAddOnURLs(st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&deactivate, "deactivate", false, "deactivate the add-on")
	cmd.Flags().StringVar(&command, "command", "", "send one movement command")

	return cmd
}

// activateAddOn ensures the add-on is up, activating it when the
// service does not know it yet and waiting out the startup delay. Any
// error while waiting aborts immediately; in particular the add-on
// vanishing means the instance went away.
func activateAddOn(ctx context.Context, ops addOnOps, instanceID string) (*api.AddOnStatus, error) {
	st, err := ops.status(ctx, instanceID)
	switch {
	case api.IsInstanceNotFound(err):
		if err := ops.activate(ctx, instanceID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case st.Active():
		return st, nil
	}

	var current *api.AddOnStatus
	err = poll.Wait(ctx, poll.Options{
		Target:   ops.name + " addon active",
		Budget:   ops.budget,
		Interval: poll.DefaultInterval,
		Logger:   app.logger,
		Metrics:  app.tel.Metrics,
		Tracer:   app.tel.Tracer,
	}, func(ctx context.Context) (bool, error) {
		st, err := ops.status(ctx, instanceID)
		if err != nil {
			return false, err
		}
		current = st
		return st.Active(), nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// deactivateAddOn tears the add-on down and waits until the service
// stops reporting it as active.
func deactivateAddOn(ctx context.Context, ops addOnOps, instanceID string) error {
	if err := ops.deactivate(ctx, instanceID); err != nil {
		return err
	}
	return poll.Wait(ctx, poll.Options{
		Target:   ops.name + " addon removed",
		Budget:   poll.AddOnToggleBudget,
		Interval: poll.DefaultInterval,
		Logger:   app.logger,
		Metrics:  app.tel.Metrics,
		Tracer:   app.tel.Tracer,
	}, func(ctx context.Context) (bool, error) {
		st, err := ops.status(ctx, instanceID)
		if api.IsInstanceNotFound(err) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return !st.Active(), nil
	})
}

func printAddOnURLs(st *api.AddOnStatus) {
	if st == nil || len(st.URLs) == 0 {
		fmt.Println("active, no URLs reported")
		return
	}
	for _, u := range st.URLs {
		fmt.Println(u)
	}
}

func filterScheme(urls []string, prefix string) []string {
	var out []string
	for _, u := range urls {
		if strings.HasPrefix(u, prefix) {
			out = append(out, u)
		}
	}
	return out
}
