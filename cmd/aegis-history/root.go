package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buzzfrog/Industrial-IoT/pkg/history"
)

// Set by the linker at release time.
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "aegis-history",
	Short:         "Collect OPC UA samples into TimescaleDB and derive historical boundary values.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./data/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(runCmd, validateCmd, boundaryCmd, jobsCmd, statsCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig() (*history.Config, error) {
	return history.LoadConfig(cfgPath)
}
