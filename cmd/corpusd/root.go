package main

import (
	"github.com/spf13/cobra"

	"corpusd/internal/config"
)

// cliState holds the flags and lazily-loaded config shared across every
// subcommand's PersistentPreRunE / RunE.
type cliState struct {
	configPath string
	logLevel   string
	jsonOutput bool

	loaded *config.Config
}

// ensureConfig loads and validates the configuration file exactly once per
// process invocation, memoizing the result for subsequent subcommand use.
func (s *cliState) ensureConfig() (*config.Config, error) {
	if s.loaded != nil {
		return s.loaded, nil
	}
	cfg, _, _, err := config.Load(s.configPath)
	if err != nil {
		return nil, err
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	s.loaded = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	state := &cliState{}

	rootCmd := &cobra.Command{
		Use:           "corpusd",
		Short:         "Ingestion engine: catalogue video into a speaker-attributed transcript corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&state.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&state.jsonOutput, "json", false, "Print the run summary as JSON instead of a table")

	rootCmd.AddCommand(newRunCommand(state))
	rootCmd.AddCommand(newValidateConfigCommand(state))
	rootCmd.AddCommand(newTestNotifyCommand(state))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
