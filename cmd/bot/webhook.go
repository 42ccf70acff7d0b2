package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cevshenbot/internal/app"
	"cevshenbot/internal/config"
	logx "cevshenbot/pkg/logx"
)

func webhookCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Register or remove the Telegram webhook",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set [url]",
		Short: "Register the webhook (default: telegram.public_url)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, url, err := loadWebhookConfig(*cfgPath, args)
			if err != nil {
				return err
			}
			ad, err := app.NewAdapter(cfg, logx.NewConsole(cfg.Logging.Level))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := ad.SetWebhook(ctx, url); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook set:", url)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadForCLI(*cfgPath)
			if err != nil {
				return err
			}
			ad, err := app.NewAdapter(cfg, log)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := ad.RemoveWebhook(ctx); err != nil {
				return fmt.Errorf("delete webhook: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	})
	return cmd
}

// loadWebhookConfig resolves the URL for "webhook set". An explicit url
// replaces telegram.public_url before validation, so a broken configured
// value does not block it.
func loadWebhookConfig(path string, args []string) (*config.Config, string, error) {
	cfg, err := config.NewConfigManager(path).Parse()
	if err != nil {
		return nil, "", err
	}
	if len(args) == 1 {
		cfg.Telegram.PublicURL = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	url, err := cfg.WebhookURL()
	if err != nil {
		return nil, "", err
	}
	if url == "" {
		return nil, "", errors.New("no webhook url: pass one or set telegram.public_url / PUBLIC_URL")
	}
	return cfg, url, nil
}

func loadForCLI(path string) (*config.Config, logx.Logger, error) {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, logx.Logger{}, err
	}
	return cfg, logx.NewConsole(cfg.Logging.Level), nil
}
