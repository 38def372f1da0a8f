package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/observability"
)

var statsFlags struct {
	url      string
	interval time.Duration
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Poll the metrics endpoint and print ingest and boundary counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		ticker := time.NewTicker(statsFlags.interval)
		defer ticker.Stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Streaming metrics from %s (Ctrl+C to stop)\n", statsFlags.url)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := printMetricsSnapshot(out, statsFlags.url); err != nil {
					fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
				}
			}
		}
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFlags.url, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	statsCmd.Flags().DurationVar(&statsFlags.interval, "interval", 2*time.Second, "Refresh interval")
}

func printMetricsSnapshot(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	snap, err := parseSnapshot(resp.Body)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "[%s] %s\n", time.Now().Format(time.RFC3339), snap)
	return nil
}

type snapshot struct {
	ingested, rejected, dropped, queue float64
	computed, absent                   map[string]float64
	failures                           map[string]float64
}

func parseSnapshot(r io.Reader) (snapshot, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return snapshot{}, fmt.Errorf("parse metrics: %w", err)
	}

	return snapshot{
		ingested: sum(families[observability.SamplesIngested]),
		rejected: sum(families[observability.SamplesRejected]),
		dropped:  sum(families[observability.QueueDropped]),
		queue:    sum(families[observability.QueueLength]),
		computed: byLabel(families[observability.BoundaryComputed], "mode"),
		absent:   byLabel(families[observability.BoundaryAbsent], "mode"),
		failures: byLabel(families[observability.BoundaryErrors], "kind"),
	}, nil
}

func (s snapshot) String() string {
	return fmt.Sprintf("samples=%.0f rejected=%.0f dropped=%.0f queue=%.0f computed={%s} absent={%s} errors={%s}",
		s.ingested, s.rejected, s.dropped, s.queue, formatLabels(s.computed), formatLabels(s.absent), formatLabels(s.failures))
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}

func sum(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

func byLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += value(m)
			}
		}
	}
	return out
}

func formatLabels(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.0f", k, m[k]))
	}
	return strings.Join(parts, " ")
}
