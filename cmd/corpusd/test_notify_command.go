package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"corpusd/internal/notifications"
)

func newTestNotifyCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.ensureConfig()
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}
			if cfg.NtfyTopic == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications are not configured (ntfy_topic is empty)")
				return nil
			}
			notifier := notifications.NewService(cfg)
			if err := notifier.Publish(cmd.Context(), notifications.EventTestNotification, nil); err != nil {
				return &exitError{code: exitFatalRuntime, err: fmt.Errorf("send test notification: %w", err)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
