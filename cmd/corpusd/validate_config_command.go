package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateConfigCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration file without starting a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.ensureConfig()
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: channel=%s backend=%s database=%s\n",
				cfg.ChannelRef, cfg.SourceBackend, redactDatabaseURL(cfg.DatabaseURL))
			return nil
		},
	}
}
