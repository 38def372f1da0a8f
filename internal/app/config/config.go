package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/opcua"
	"github.com/buzzfrog/Industrial-IoT/internal/boundary"
	"github.com/buzzfrog/Industrial-IoT/internal/logging"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

const (
	HistoryTimescale = "timescale"
	HistoryOPCUA     = "opcua"
)

type Config struct {
	Policy         ports.Policy         `yaml:"policy"`
	OPCUA          opcua.Config         `yaml:"opcua"`
	PublishedNodes PublishedNodesConfig `yaml:"published_nodes"`
	Timescale      TimescaleConfig      `yaml:"timescale"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Logging        logging.Config       `yaml:"logging"`
	Boundary       BoundaryConfig       `yaml:"boundary"`
	History        HistoryConfig        `yaml:"history"`
}

// PublishedNodesConfig points at a published-nodes JSON file. When set, its
// entries replace opcua.nodes as the subscription source.
type PublishedNodesConfig struct {
	File                      string        `yaml:"file"`
	DefaultPublishingInterval time.Duration `yaml:"default_publishing_interval"`
	DefaultSamplingInterval   time.Duration `yaml:"default_sampling_interval"`
	DefaultHeartbeatInterval  time.Duration `yaml:"default_heartbeat_interval"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type BoundaryConfig struct {
	TreatUncertainAsBad bool          `yaml:"treat_uncertain_as_bad"`
	Lookback            time.Duration `yaml:"lookback"`
	Lookahead           time.Duration `yaml:"lookahead"`
	DefaultMode         boundary.Mode `yaml:"default_mode"`
}

type HistoryConfig struct {
	Source string `yaml:"source"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 100_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 5_000
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.MaxWriteAttempts == 0 {
		c.Policy.MaxWriteAttempts = 10
	}
	if c.Policy.RetryBackoff == 0 {
		c.Policy.RetryBackoff = 500 * time.Millisecond
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "samples"
	}
	if c.PublishedNodes.DefaultPublishingInterval == 0 {
		c.PublishedNodes.DefaultPublishingInterval = time.Second
	}
	if c.Boundary.Lookback == 0 {
		c.Boundary.Lookback = time.Hour
	}
	if c.Boundary.Lookahead == 0 {
		c.Boundary.Lookahead = time.Hour
	}
	if c.Boundary.DefaultMode == boundary.ModeNone {
		c.Boundary.DefaultMode = boundary.ModeSlopedInterpolation
	}
	c.History.Source = strings.ToLower(c.History.Source)
	if c.History.Source == "" {
		c.History.Source = HistoryTimescale
	}

	c.OPCUA.ApplyDefaults()
}

func (c *Config) Validate() error {
	if c.PublishedNodes.File == "" {
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	}
	if c.Timescale.ConnString == "" {
		return fmt.Errorf("timescale.conn_string is required")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		return fmt.Errorf("policy.on_queue_full %q is not one of block, drop, reject", c.Policy.OnQueueFull)
	}
	if c.Policy.MaxWriteAttempts < 0 || c.Policy.RetryBackoff < 0 {
		return fmt.Errorf("policy.max_write_attempts and policy.retry_backoff must not be negative")
	}
	if c.Boundary.Lookback < 0 || c.Boundary.Lookahead < 0 {
		return fmt.Errorf("boundary.lookback and boundary.lookahead must not be negative")
	}
	switch c.History.Source {
	case HistoryTimescale:
	case HistoryOPCUA:
		if c.OPCUA.Endpoint == "" {
			return fmt.Errorf("history.source opcua needs opcua.endpoint")
		}
	default:
		return fmt.Errorf("history.source %q is not one of timescale, opcua", c.History.Source)
	}
	return nil
}
