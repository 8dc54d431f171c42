package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlabot/charla/pkg/bridge"
)

func newLinkCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a WhatsApp device via QR code",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, paths, err := loadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			return bridge.Link(cfg.SessionDBPath(paths), mode)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "terminal", "QR output: terminal or png")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the WhatsApp device link",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, paths, err := loadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			return bridge.LinkedStatus(cfg.SessionDBPath(paths))
		},
	}
}
