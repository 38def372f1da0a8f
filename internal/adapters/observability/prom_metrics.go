package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

const (
	SamplesIngested  = "aegis_samples_ingested_total"
	SamplesRejected  = "aegis_samples_rejected_total"
	QueueDropped     = "aegis_queue_dropped_total"
	QueueLength      = "aegis_queue_length"
	SinkLatency      = "ingest_sink_latency_seconds"
	BoundaryComputed = "aegis_boundary_computed_total"
	BoundaryAbsent   = "aegis_boundary_absent_total"
	BoundaryErrors   = "aegis_boundary_errors_total"
	HistoryLatency   = "history_read_latency_seconds"
)

type PromObs struct {
	log      zerolog.Logger
	counters map[string]prometheus.Counter
	vecs     map[string]*prometheus.CounterVec
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the metric set with reg (the default registerer when
// nil) and logs through logger.
func NewPromObs(reg prometheus.Registerer, logger zerolog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ingested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SamplesIngested,
		Help: "Total samples successfully written to the historian.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SamplesRejected,
		Help: "Samples the historian refused.",
	})
	queueDrops := prometheus.NewCounter(prometheus.CounterOpts{
		Name: QueueDropped,
		Help: "Samples lost due to queue backpressure policies.",
	})
	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: QueueLength,
		Help: "Current number of samples buffered in the in-memory queue.",
	})
	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    SinkLatency,
		Help:    "Latency of one historian batch write.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	historyLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    HistoryLatency,
		Help:    "Latency of one raw history window read.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	computed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: BoundaryComputed,
		Help: "Boundary values derived, per derivation mode.",
	}, []string{"mode"})
	absent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: BoundaryAbsent,
		Help: "Slice edges where the mode's neighbors were missing.",
	}, []string{"mode"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: BoundaryErrors,
		Help: "Slice edges whose boundary could not be computed, per error kind.",
	}, []string{"kind"})

	reg.MustRegister(ingested, rejected, queueDrops, queueGauge, sinkLatency, historyLatency, computed, absent, failures)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			SamplesIngested: ingested,
			SamplesRejected: rejected,
			QueueDropped:    queueDrops,
		},
		vecs: map[string]*prometheus.CounterVec{
			BoundaryComputed: computed,
			BoundaryAbsent:   absent,
			BoundaryErrors:   failures,
		},
		gauges: map[string]prometheus.Gauge{
			QueueLength: queueGauge,
		},
		histos: map[string]prometheus.Observer{
			SinkLatency:    sinkLatency,
			HistoryLatency: historyLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	withFields(p.log.Info(), fields).Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err), fields).Msg(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	withFields(p.log.WithLevel(zerolog.FatalLevel).Err(err), fields).Msg(msg)
}

// IncCounter adds v to a plain counter, or to the labelled child of a
// counter vector when labels are given.
func (p *PromObs) IncCounter(name string, v float64, labels ...string) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
		return
	}
	if vec, ok := p.vecs[name]; ok {
		c, err := vec.GetMetricWithLabelValues(labels...)
		if err != nil {
			p.log.Warn().Err(err).Str("metric", name).Msg("counter label mismatch")
			return
		}
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordRejected(s *domain.Sample, err error) {
	p.IncCounter(SamplesRejected, 1)
	ev := p.log.Warn().Err(err)
	if s != nil {
		ev = ev.Str("node_id", s.NodeID).Time("source_ts", s.SourceTimestamp)
	}
	ev.Msg("sample rejected")
}

func withFields(ev *zerolog.Event, fields []ports.Field) *zerolog.Event {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	return ev
}

var _ ports.Observability = (*PromObs)(nil)
