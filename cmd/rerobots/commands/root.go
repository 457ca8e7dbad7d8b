package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rerobots/client-go/pkg/api"
	"github.com/rerobots/client-go/pkg/auth"
	"github.com/rerobots/client-go/pkg/config"
	"github.com/rerobots/client-go/pkg/history"
	"github.com/rerobots/client-go/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	tokenFile  string
	jsonOutput bool
)

// appState is the per-invocation wiring built before any subcommand
// runs: configuration, telemetry, and the API client.
type appState struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	client *api.Client
	logger zerolog.Logger
}

var app appState

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rerobots",
		Short: "rerobots - remote robotic workspaces from the command line",
		Long: `Command-line client for the rerobots API.

Search workspace deployments, launch instances on them, check
readiness, open camera and proxy add-ons, and terminate instances
when done. An API token is read from the file named with -t, or from
the ` + api.TokenEnvVar + ` environment variable; without one,
requests are anonymous and most operations will be rejected.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupApp(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			teardownApp()
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&tokenFile, "jwt", "t", "", "API token file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newIsReadyCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newWDInfoCommand())
	rootCmd.AddCommand(newLaunchCommand())
	rootCmd.AddCommand(newTerminateCommand())
	rootCmd.AddCommand(newAddonCamCommand())
	rootCmd.AddCommand(newAddonMistyProxyCommand())
	rootCmd.AddCommand(newAddonDriveCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newRevokeCommand())
	rootCmd.AddCommand(newPurgeCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// setupApp loads configuration and builds the shared client state. The
// token is optional here: commands that need one get a clear rejection
// from the service, while search and deployment listings work
// anonymously.
func setupApp(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return err
	}
	logger := tel.Logger.Zerolog()

	keyFile := tokenFile
	if keyFile == "" {
		keyFile = cfg.TokenFile
	}

	var provider func() (string, error)
	src, err := auth.Resolve("", keyFile, cfg.IgnoreEnvironment, logger)
	switch {
	case err == nil:
		provider = src.Token
		if fileSrc, ok := src.(*auth.FileSource); ok {
			if werr := fileSrc.Watch(ctx); werr != nil {
				logger.Warn().Err(werr).Msg("token file watch unavailable")
			}
		}
	case keyFile != "":
		return err
	default:
		logger.Debug().Msg("no API token found, proceeding anonymously")
	}

	client, err := api.New(api.Config{
		BaseURI:           cfg.BaseURI,
		TokenProvider:     provider,
		IgnoreEnvironment: true,
		Insecure:          cfg.Insecure,
		Logger:            logger.With().Str("component", "api").Logger(),
		Metrics:           tel.Metrics,
		Tracer:            tel.Tracer,
	})
	if err != nil {
		return err
	}

	app = appState{cfg: cfg, tel: tel, client: client, logger: logger}
	return nil
}

func teardownApp() {
	if app.tel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.tel.Shutdown(ctx); err != nil {
		app.logger.Debug().Err(err).Msg("telemetry shutdown")
	}
}

// UserMessage renders an error as the one-line message printed to the
// user. Connectivity problems get an actionable hint instead of raw
// transport diagnostics.
func UserMessage(err error) string {
	if api.IsTransport(err) {
		return "cannot reach the rerobots API; check your network connection"
	}
	return err.Error()
}

// resolveInstance returns the instance to operate on: the argument when
// given, otherwise the sole active instance. With zero or several
// active instances there is no unambiguous default, so the candidates
// are named and the command fails.
func resolveInstance(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}

	ids, _, err := app.client.ListInstances(ctx, false, api.Pagination{})
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no active instances")
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("ambiguous: several active instances, specify one of %s",
			strings.Join(ids, ", "))
	}
}

// confirm prompts on stdin unless a flag already answered.
func confirm(prompt string, yes, no bool) (bool, error) {
	if yes {
		return true, nil
	}
	if no {
		return false, nil
	}
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// openHistory opens the local launch-history store at the configured
// or conventional path.
func openHistory(ctx context.Context) (*history.Store, error) {
	path := app.cfg.HistoryPath
	if path == "" {
		var err error
		path, err = config.DefaultHistoryPath()
		if err != nil {
			return nil, err
		}
	}
	return history.Open(ctx, path)
}
