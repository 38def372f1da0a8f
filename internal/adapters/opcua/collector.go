package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint         string        `yaml:"endpoint" json:"endpoint"`
	Username         string        `yaml:"username" json:"username,omitempty"`
	Password         string        `yaml:"password" json:"-"`
	SecurityMode     string        `yaml:"security_mode" json:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy" json:"security_policy"`
	ApplicationName  string        `yaml:"application_name" json:"application_name,omitempty"`
	PublishInterval  time.Duration `yaml:"publish_interval" json:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval" json:"sampling_interval,omitempty"`
	Nodes            []NodeConfig  `yaml:"nodes" json:"nodes"`
}

// NodeConfig defines a monitored node. DisplayName doubles as the
// historian key when set, otherwise NodeID is used. A node with a
// Heartbeat has its last sample repeated whenever it stays quiet that long.
type NodeConfig struct {
	NodeID           string        `yaml:"node_id" json:"node_id"`
	DisplayName      string        `yaml:"display_name" json:"display_name,omitempty"`
	SamplingInterval time.Duration `yaml:"sampling_interval" json:"sampling_interval,omitempty"`
	Heartbeat        time.Duration `yaml:"heartbeat" json:"heartbeat,omitempty"`
	SkipFirst        bool          `yaml:"skip_first" json:"skip_first,omitempty"`
}

// Key is the node identity written to the historian.
func (n NodeConfig) Key() string {
	if n.DisplayName != "" {
		return n.DisplayName
	}
	return n.NodeID
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "Aegis History"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	for i := range c.Nodes {
		if c.Nodes[i].SamplingInterval <= 0 {
			c.Nodes[i].SamplingInterval = c.SamplingInterval
		}
		if c.Nodes[i].Heartbeat < 0 {
			c.Nodes[i].Heartbeat = 0
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	return nil
}

// Collector subscribes to the configured nodes and forwards every data
// change, whatever its quality, as a raw sample.
type Collector struct {
	cfg       Config
	log       zerolog.Logger
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	handleMap map[uint32]NodeConfig
	seq       map[string]uint64
	seen      map[uint32]bool
	last      map[uint32]*domain.Sample
	emitted   map[uint32]time.Time
	mu        sync.Mutex
	started   bool
}

func NewCollector(cfg Config, logger zerolog.Logger) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{
		cfg:  cfg,
		log:  logger.With().Str("component", "opcua_collector").Str("endpoint", cfg.Endpoint).Logger(),
		seq:     make(map[string]uint64),
		seen:    make(map[uint32]bool),
		last:    make(map[uint32]*domain.Sample),
		emitted: make(map[uint32]time.Time),
	}, nil
}

func (c *Collector) Start(out chan<- *domain.Sample) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("opcua collector already started")
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := dial(ctx, c.cfg.Endpoint, clientOptions(c.cfg))
	if err != nil {
		cancel()
		return err
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(c.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: c.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	handleMap := make(map[uint32]NodeConfig, len(c.cfg.Nodes))
	for i, node := range c.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if node.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(node.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		if len(res.Results) == 0 {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: empty result", node.NodeID)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			c.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: %s", node.NodeID, res.Results[0].StatusCode)
		}
		handleMap[handle] = node
	}

	c.mu.Lock()
	c.client = client
	c.sub = sub
	c.cancel = cancel
	c.handleMap = handleMap
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consume(ctx, notifyCh, out)
	if every := heartbeatTick(c.cfg.Nodes); every > 0 {
		c.wg.Add(1)
		go c.heartbeat(ctx, every, out)
	}
	c.log.Info().Int("nodes", len(handleMap)).Dur("publish_interval", c.cfg.PublishInterval).Msg("subscription started")
	return nil
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	sub := c.sub
	client := c.client
	c.started = false
	c.cancel = nil
	c.sub = nil
	c.client = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	c.wg.Wait()
	return err
}

func (c *Collector) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- *domain.Sample) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				c.log.Warn().Err(notif.Error).Msg("notification error")
				continue
			}
			c.processNotification(ctx, notif.Value, out)
		}
	}
}

func (c *Collector) processNotification(ctx context.Context, val interface{}, out chan<- *domain.Sample) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		nodeCfg, ok := c.handleMap[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		if c.skipFirst(item.ClientHandle, nodeCfg) {
			continue
		}

		sample := domain.FromDataValue(nodeCfg.Key(), item.Value)
		if sample.SourceTimestamp.IsZero() {
			sample.SourceTimestamp = sample.ServerTimestamp
		}
		if sample.SourceTimestamp.IsZero() {
			sample.SourceTimestamp = time.Now().UTC()
		}
		sample.Seq = c.nextSeq(sample.NodeID)
		c.remember(item.ClientHandle, sample)

		select {
		case <-ctx.Done():
			return
		case out <- &sample:
		}
	}
}

// skipFirst drops the initial notification of nodes configured with
// SkipFirst; servers send the current value right after monitoring starts.
func (c *Collector) skipFirst(handle uint32, node NodeConfig) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := !c.seen[handle]
	c.seen[handle] = true
	return first && node.SkipFirst
}

func (c *Collector) remember(handle uint32, s domain.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[handle] = &s
	c.emitted[handle] = time.Now()
}

func (c *Collector) heartbeat(ctx context.Context, every time.Duration, out chan<- *domain.Sample) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.beat(ctx, now, out)
		}
	}
}

// beat repeats the last sample of every heartbeat node that has been quiet
// for at least its heartbeat. The copy keeps the source timestamp and gets
// a fresh sequence number and server timestamp.
func (c *Collector) beat(ctx context.Context, now time.Time, out chan<- *domain.Sample) {
	var due []*domain.Sample
	c.mu.Lock()
	for handle, node := range c.handleMap {
		last := c.last[handle]
		if node.Heartbeat <= 0 || last == nil || now.Sub(c.emitted[handle]) < node.Heartbeat {
			continue
		}
		s := *last
		s.ServerTimestamp = now.UTC()
		c.seq[s.NodeID]++
		s.Seq = c.seq[s.NodeID]
		c.emitted[handle] = now
		due = append(due, &s)
	}
	c.mu.Unlock()

	for _, s := range due {
		select {
		case <-ctx.Done():
			return
		case out <- s:
		}
	}
}

// heartbeatTick is half the shortest node heartbeat, or zero when no node
// has one.
func heartbeatTick(nodes []NodeConfig) time.Duration {
	var tick time.Duration
	for _, n := range nodes {
		if n.Heartbeat > 0 && (tick == 0 || n.Heartbeat < tick) {
			tick = n.Heartbeat
		}
	}
	return tick / 2
}

func (c *Collector) nextSeq(sensor string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.seq[sensor] + 1
	c.seq[sensor] = next
	return next
}

func clientOptions(cfg Config) []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(cfg.SecurityPolicy)),
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}

	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func dial(ctx context.Context, endpoint string, opts []opcua.Option) (*opcua.Client, error) {
	client, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}
	return client, nil
}

func (c *Collector) cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Collector = (*Collector)(nil)
