package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/config"
	"github.com/fakeyudi/replaymock/internal/logging"
)

// configSources lists the --config files, read in order.
var configSources []string

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg *config.Config

// logger is opened in PersistentPreRunE and closed after the command.
var logger *logging.Logger

var rootCmd = &cobra.Command{
	Use:           "replaymock",
	Short:         "Record and replay the external traffic of a program under test",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configSources)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		l, err := logging.NewLogger(loaded.General.LogDir, loaded.General.LogLevel)
		if err != nil {
			return fmt.Errorf("opening log: %w", err)
		}
		cfg, logger = loaded, l
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logger == nil {
			return nil
		}
		return logger.Close()
	},
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command. A command that reports an exit status exits
// with it; any other error exits with code 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() *config.Config {
	if cfg == nil {
		d := config.Defaults()
		return &d
	}
	return cfg
}

// GetLogger returns the command logger, or a logger that discards everything
// before PersistentPreRunE has run.
func GetLogger() *logging.Logger {
	if logger == nil {
		return logging.NopLogger()
	}
	return logger
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&configSources, "config", nil,
		"configuration files read in order, later ones overriding earlier ones")
}
