// Package cli implements the carpool command-line client.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mockcarpool/carpool/internal/config"
	"github.com/mockcarpool/carpool/internal/engine"
	"github.com/mockcarpool/carpool/internal/session"
)

var (
	version    = "dev"
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "carpool",
	Short: "Plan a drive between two places",
	Long: `carpool resolves a start and an end location through the configured
geocoder and computes a driving route between them.

Configuration is read from the file given by --config or CARPOOL_CONFIG,
then from the environment (ORS_API_KEY, GEOCODER, ...).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log provider activity to stderr")
}

// Execute runs the root command.
func Execute(ctx context.Context, v string) error {
	version = v
	return rootCmd.ExecuteContext(ctx)
}

// sessionSource creates sessions for a command and releases them afterwards.
type sessionSource interface {
	Create() (*session.Session, error)
}

// openSessions builds the session manager a command runs against. Tests replace it.
var openSessions = func(cmd *cobra.Command) (sessionSource, func(), error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		Level(level).
		With().
		Timestamp().
		Logger()

	eng := engine.New(cmd.Context(), engine.Options{Config: cfg, Logger: logger})
	closeFn := func() {
		if err := eng.Close(); err != nil {
			logger.Warn().Err(err).Msg("engine shutdown failed")
		}
	}
	return eng.Sessions, closeFn, nil
}
