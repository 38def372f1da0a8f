package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, zerolog.Nop())

	obs.IncCounter(SamplesIngested, 5)
	require.Equal(t, 5.0, testutil.ToFloat64(obs.counters[SamplesIngested]))

	obs.IncCounter(QueueDropped, 2)
	require.Equal(t, 2.0, testutil.ToFloat64(obs.counters[QueueDropped]))

	obs.SetGauge(QueueLength, 42)
	require.Equal(t, 42.0, testutil.ToFloat64(obs.gauges[QueueLength]))

	obs.ObserveLatency(SinkLatency, 0.5)
	hCollector := obs.histos[SinkLatency].(prometheus.Collector)
	require.Equal(t, 1, testutil.CollectAndCount(hCollector))

	obs.RecordRejected(nil, nil)
	require.Equal(t, 1.0, testutil.ToFloat64(obs.counters[SamplesRejected]))
}

func TestPromObsBoundaryCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, zerolog.Nop())

	obs.IncCounter(BoundaryComputed, 1, "SlopedInterpolation")
	obs.IncCounter(BoundaryComputed, 1, "SlopedInterpolation")
	obs.IncCounter(BoundaryAbsent, 1, "Raw")
	obs.IncCounter(BoundaryErrors, 1, "degenerate_interval")
	// wrong label arity is ignored
	obs.IncCounter(BoundaryErrors, 1)

	require.Equal(t, 2.0, testutil.ToFloat64(obs.vecs[BoundaryComputed].WithLabelValues("SlopedInterpolation")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.vecs[BoundaryAbsent].WithLabelValues("Raw")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.vecs[BoundaryErrors].WithLabelValues("degenerate_interval")))
}

func TestPromObsLogsFields(t *testing.T) {
	var buf bytes.Buffer
	obs := NewPromObs(prometheus.NewRegistry(), zerolog.New(&buf))

	obs.LogError("history_read_failed", errors.New("timeout"), ports.Field{Key: "node_id", Value: "ns=2;s=A"})
	require.Contains(t, buf.String(), `"message":"history_read_failed"`)
	require.Contains(t, buf.String(), `"node_id":"ns=2;s=A"`)
	require.Contains(t, buf.String(), `"error":"timeout"`)

	buf.Reset()
	obs.RecordRejected(&domain.Sample{NodeID: "ns=2;s=B"}, errors.New("constraint"))
	require.Contains(t, buf.String(), `"node_id":"ns=2;s=B"`)
}
