package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/historian"
	"github.com/buzzfrog/Industrial-IoT/internal/adapters/httpapi"
	"github.com/buzzfrog/Industrial-IoT/internal/adapters/observability"
	"github.com/buzzfrog/Industrial-IoT/internal/adapters/opcua"
	"github.com/buzzfrog/Industrial-IoT/internal/adapters/queue"
	"github.com/buzzfrog/Industrial-IoT/internal/app/jobs"
	"github.com/buzzfrog/Industrial-IoT/internal/app/pipeline"
	"github.com/buzzfrog/Industrial-IoT/internal/app/query"
	"github.com/buzzfrog/Industrial-IoT/internal/logging"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	collectors    []Collector
	sink          Sink
	source        Source
	queue         SampleQueue
	observability Observability
	registry      *prometheus.Registry
	logger        *zerolog.Logger
}

// WithCollectors replaces the OPC UA collectors built from configuration.
func WithCollectors(cols ...Collector) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.collectors = append(o.collectors, cols...)
	}
}

// WithSink sends ingested batches to s instead of TimescaleDB.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithSource reads boundary history from src instead of the configured source.
func WithSource(src Source) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithSampleQueue injects a custom queue implementation.
func WithSampleQueue(q SampleQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithRegistry registers the runtime's metrics on reg and serves reg on /metrics.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithLogger replaces the logger built from the logging section.
func WithLogger(l zerolog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = &l
	}
}

// Runtime wires collectors -> queue -> historian for ingest and serves
// boundary queries over the stored history.
type Runtime struct {
	cfg        *Config
	log        zerolog.Logger
	obs        ports.Observability
	registry   *prometheus.Registry
	queue      ports.SampleQueue
	collectors []ports.Collector
	sink       ports.Sink
	source     ports.History
	query      *query.Service
	db         *sql.DB
	closeSrc   func(context.Context) error

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	httpSrv    *http.Server
	gaugeStop  chan struct{}
	ingestDone chan struct{}
}

// NewRuntime bootstraps the default adapters: OPC UA collectors, in-memory
// queue, TimescaleDB historian and Prometheus observability. Nothing
// connects until Start or the first query.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	var logger zerolog.Logger
	if overrides.logger != nil {
		logger = *overrides.logger
	} else {
		l, err := logging.New(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	reg := overrides.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(reg, logger)
	}

	q := overrides.queue
	if q == nil {
		q = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	rt := &Runtime{
		cfg:      cfg,
		log:      logger,
		obs:      obs,
		registry: reg,
		queue:    q,
		sink:     overrides.sink,
		source:   overrides.source,
	}

	var err error
	rt.collectors = overrides.collectors
	if len(rt.collectors) == 0 {
		if rt.collectors, err = buildCollectors(cfg, logger); err != nil {
			return nil, err
		}
	}

	if err := rt.openHistory(); err != nil {
		return nil, err
	}

	rt.query = query.New(rt.source, obs, query.Options{
		Lookback:            cfg.Boundary.Lookback,
		Lookahead:           cfg.Boundary.Lookahead,
		TreatUncertainAsBad: cfg.Boundary.TreatUncertainAsBad,
	})
	return rt, nil
}

func buildCollectors(cfg *Config, logger zerolog.Logger) ([]ports.Collector, error) {
	if cfg.PublishedNodes.File == "" {
		col, err := opcua.NewCollector(cfg.OPCUA, logger)
		if err != nil {
			return nil, err
		}
		return []ports.Collector{col}, nil
	}

	conv := jobs.NewConverter(jobs.Options{
		DefaultPublishingInterval: cfg.PublishedNodes.DefaultPublishingInterval,
		DefaultSamplingInterval:   cfg.PublishedNodes.DefaultSamplingInterval,
		DefaultHeartbeatInterval:  cfg.PublishedNodes.DefaultHeartbeatInterval,
	}, logger)
	js, err := conv.ReadFile(cfg.PublishedNodes.File)
	if err != nil {
		return nil, fmt.Errorf("published nodes: %w", err)
	}

	out := make([]ports.Collector, 0, len(js))
	for _, job := range js {
		col, err := opcua.NewCollector(job.CollectorConfig(), logger.With().Str("job", job.ID).Logger())
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.ID, err)
		}
		out = append(out, col)
	}
	return out, nil
}

// openHistory fills whichever of sink and source was not injected.
func (r *Runtime) openHistory() error {
	needDB := r.sink == nil || (r.source == nil && r.cfg.History.Source != HistoryOPCUA)
	var ts *historian.Timescale
	if needDB {
		db, err := sql.Open("postgres", r.cfg.Timescale.ConnString)
		if err != nil {
			return err
		}
		r.db = db
		ts = historian.NewTimescale(db, r.cfg.Timescale.Table)
	}
	if r.sink == nil {
		r.sink = ts
	}
	if r.source != nil {
		return nil
	}
	if r.cfg.History.Source == HistoryOPCUA {
		h, err := opcua.NewHistory(r.cfg.OPCUA, r.log)
		if err != nil {
			return err
		}
		r.source = h
		r.closeSrc = h.Close
		return nil
	}
	r.source = ts
	return nil
}

// Start begins the edge and ingest pipelines and the HTTP server. It
// returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	for _, col := range r.collectors {
		if err := pipeline.RunEdgePipeline(ctx, col, r.queue, r.cfg.Policy, r.obs); err != nil {
			cancel()
			return err
		}
	}

	r.ingestDone = make(chan struct{})
	go func() {
		defer close(r.ingestDone)
		pipeline.RunIngestPipeline(ctx, r.queue, r.sink, r.cfg.Policy, r.obs)
	}()

	r.cancel = cancel
	r.started = true
	r.startHTTP()
	r.obs.LogInfo("runtime_started",
		ports.Field{Key: "collectors", Value: len(r.collectors)},
		ports.Field{Key: "sink", Value: r.sink.Name()},
		ports.Field{Key: "history", Value: r.cfg.History.Source})
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled, then shuts
// down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the collectors, drains the queue into the historian and
// closes the HTTP server and connections. It is safe on a runtime that was
// never started.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	r.mu.Lock()
	cancel, done, srv, gaugeStop := r.cancel, r.ingestDone, r.httpSrv, r.gaugeStop
	r.cancel, r.httpSrv, r.gaugeStop, r.started = nil, nil, nil, false
	r.mu.Unlock()

	if gaugeStop != nil {
		close(gaugeStop)
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("ingest drain: %w", ctx.Err()))
		}
	}
	for _, col := range r.collectors {
		if err := col.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.closeSrc != nil {
		if err := r.closeSrc(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Boundary derives the boundary value of node at target under mode.
func (r *Runtime) Boundary(ctx context.Context, node string, target time.Time, mode Mode) (*BoundaryValue, error) {
	return r.query.Boundary(ctx, node, target, mode)
}

// Series derives one boundary per slice edge from start to end.
func (r *Runtime) Series(ctx context.Context, node string, start, end time.Time, interval time.Duration, mode Mode) ([]Edge, error) {
	return r.query.Series(ctx, node, start, end, interval, mode)
}

// Handler returns the API and metrics routes with access logging.
func (r *Runtime) Handler() http.Handler {
	router := httpapi.NewRouter(r.query, r.cfg.Boundary.DefaultMode, r.registry, r.log)
	return httpapi.Handler(router, r.log.With().Str("component", "http").Logger())
}

func (r *Runtime) startHTTP() {
	r.httpSrv = &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := r.httpSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("http_server_exited", err)
		}
	}()

	r.gaugeStop = make(chan struct{})
	go r.recordQueueGauge(r.gaugeStop, time.Second)
}

func (r *Runtime) recordQueueGauge(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(observability.QueueLength, float64(r.queue.Len()))
		}
	}
}
