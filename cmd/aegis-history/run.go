package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buzzfrog/Industrial-IoT/pkg/history"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start collectors, ingest and the boundary API",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		rt, err := history.NewRuntime(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		return rt.Run(ctx)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a config file without starting the runtime",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good\n", cfgPath)
		return nil
	},
}
