package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "sos-alert-service"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "1.0.0"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "sosd",
		Short:         "Offline-resilient emergency alert daemon",
		Long:          "sosd runs the on-device alert pipeline: countdown, recording, hybrid dispatch with native SMS fallback, and sync of alerts queued while offline.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(&configPath),
		newQueueCmd(&configPath),
		newSyncCmd(&configPath),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), serviceName, version)
			return err
		},
	}
}
