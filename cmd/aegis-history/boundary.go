package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/httpapi"
	"github.com/buzzfrog/Industrial-IoT/pkg/history"
)

var boundaryFlags struct {
	node     string
	at       string
	end      string
	interval time.Duration
	mode     string
}

var boundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Derive boundary values for one node from stored history",
	Long: `Reads the raw history around the requested time and prints the derived
boundary value as JSON. With --end the command walks slice edges from --at to
--end every --interval and prints one entry per edge.

Examples:
  aegis-history boundary --node "ns=2;s=Tank.Level" --at 2024-05-01T08:00:00Z
  aegis-history boundary --node "ns=2;s=Tank.Level" --at 2024-05-01T08:00:00Z \
    --end 2024-05-01T09:00:00Z --interval 15m --mode SteppedInterpolation`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		mode := cfg.Boundary.DefaultMode
		if boundaryFlags.mode != "" {
			if mode, err = history.ParseMode(boundaryFlags.mode); err != nil {
				return err
			}
		}
		start, err := time.Parse(time.RFC3339Nano, boundaryFlags.at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		end := start
		if boundaryFlags.end != "" {
			if end, err = time.Parse(time.RFC3339Nano, boundaryFlags.end); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
		}

		rt, err := history.NewRuntime(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		defer func() { _ = rt.Shutdown(ctx) }()

		edges, err := rt.Series(ctx, boundaryFlags.node, start, end, boundaryFlags.interval, mode)
		if err != nil {
			return err
		}

		views := make([]httpapi.EdgeView, 0, len(edges))
		for _, e := range edges {
			views = append(views, httpapi.NewEdgeView(e.Target, e.Mode, e.Value, e.Err))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if boundaryFlags.end == "" {
			return enc.Encode(views[0])
		}
		return enc.Encode(views)
	},
}

func init() {
	f := boundaryCmd.Flags()
	f.StringVar(&boundaryFlags.node, "node", "", "Node id to query")
	f.StringVar(&boundaryFlags.at, "at", "", "Target time (RFC3339); first slice edge with --end")
	f.StringVar(&boundaryFlags.end, "end", "", "Last slice edge (RFC3339)")
	f.DurationVar(&boundaryFlags.interval, "interval", time.Minute, "Distance between slice edges")
	f.StringVar(&boundaryFlags.mode, "mode", "", "Derivation mode (defaults to boundary.default_mode)")
	_ = boundaryCmd.MarkFlagRequired("node")
	_ = boundaryCmd.MarkFlagRequired("at")
}
