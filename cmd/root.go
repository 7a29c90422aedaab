package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/config"
)

// errNotConverged is returned by commands whose run ended without converging.
// main maps it to exit code 2.
var errNotConverged = errors.New("run did not converge")

var (
	logLevel   string
	configPath string
	logger     *slog.Logger

	// settings is the effective configuration of the executing command
	settings *config.Settings
)

// flagBindings maps configuration keys to the flags that override them.
// Commands register only the flags they use.
var flagBindings = map[string]string{
	config.KeyStartX:        "x0",
	config.KeyStartY:        "y0",
	config.KeyStartSearch:   "search-start",
	config.KeyDamping:       "damping",
	config.KeyDampingUp:     "damping-up",
	config.KeyDampingDown:   "damping-down",
	config.KeyMaxDamping:    "max-damping",
	config.KeyMaxIterations: "max-iters",
	config.KeyTolerance:     "tol",
	config.KeyDataDir:       "data-dir",
	config.KeyCSV:           "csv",
	config.KeySQLite:        "sqlite",
	config.KeyServerAddr:    "addr",
	config.KeyLogLevel:      "log-level",
}

var rootCmd = &cobra.Command{
	Use:   "odts",
	Short: "Damped Newton (Levenberg-Marquardt) minimizer with an audit trail",
	Long: `odts minimizes f(x,y) = (x-1)^2 + (y-2)^2 + 0.1*sin(10xy) with a damped
Newton iteration, adapting the damping after every step and recording a
per-iteration trace and a final summary for each run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.New(configPath)
		if err != nil {
			return err
		}
		if err := config.BindFlags(v, cmd.Flags(), flagBindings); err != nil {
			return err
		}
		settings, err = config.Load(v)
		if err != nil {
			return err
		}

		// Setup logger
		var level slog.Level
		switch settings.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		slog.Debug("Configuration loaded", "config", configPath, "data_dir", settings.Output.DataDir)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
}
