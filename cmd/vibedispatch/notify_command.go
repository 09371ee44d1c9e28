package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	notifyCmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.DiscordWebhookURL == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications are not configured; set notifications.discord_webhook_url or DISCORD_WEBHOOK_URL")
				return nil
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if err := a.notifier.TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	})
	return notifyCmd
}
