package history

import (
	"github.com/buzzfrog/Industrial-IoT/internal/adapters/opcua"
	"github.com/buzzfrog/Industrial-IoT/internal/app/config"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls queue thresholds.
	Policy = ports.Policy
	// OPCUAConfig holds connection + node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig describes a monitored node.
	OPCUANodeConfig = opcua.NodeConfig
	// PublishedNodesConfig points at a published-nodes file.
	PublishedNodesConfig = config.PublishedNodesConfig
	// TimescaleConfig configures the historian.
	TimescaleConfig = config.TimescaleConfig
	// MetricsConfig configures the HTTP server for metrics and the API.
	MetricsConfig = config.MetricsConfig
	// BoundaryConfig tunes boundary lookups.
	BoundaryConfig = config.BoundaryConfig
	// HistoryConfig selects where raw history is read from.
	HistoryConfig = config.HistoryConfig
)

const (
	HistoryTimescale = config.HistoryTimescale
	HistoryOPCUA     = config.HistoryOPCUA
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
