package jobs

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/opcua"
)

// MaxNodesPerJob caps the monitored items of one subscription.
const MaxNodesPerJob = 1000

// AuthMode is the OpcAuthenticationMode of an entry. It decodes from the
// names "Anonymous"/"UsernamePassword" or their numeric values 0/1.
type AuthMode int

const (
	AuthAnonymous AuthMode = iota
	AuthUsernamePassword
)

func (a *AuthMode) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*a = AuthMode(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("authentication mode: %w", err)
	}
	switch strings.ToLower(s) {
	case "", "anonymous":
		*a = AuthAnonymous
	case "usernamepassword":
		*a = AuthUsernamePassword
	default:
		return fmt.Errorf("unknown authentication mode %q", s)
	}
	return nil
}

type NodeID struct {
	Identifier string `json:"Identifier"`
}

// Node is one OpcNodes element. Intervals are milliseconds except
// HeartbeatInterval, which is seconds.
type Node struct {
	ID                    string `json:"Id"`
	ExpandedNodeID        string `json:"ExpandedNodeId"`
	DisplayName           string `json:"DisplayName"`
	OpcPublishingInterval *int   `json:"OpcPublishingInterval"`
	OpcSamplingInterval   *int   `json:"OpcSamplingInterval"`
	HeartbeatInterval     *int   `json:"HeartbeatInterval"`
	SkipFirst             *bool  `json:"SkipFirst"`
}

// Entry is one element of a published-nodes file.
type Entry struct {
	EndpointURL               string            `json:"EndpointUrl"`
	UseSecurity               *bool             `json:"UseSecurity"`
	NodeID                    *NodeID           `json:"NodeId"`
	OpcAuthenticationMode     AuthMode          `json:"OpcAuthenticationMode"`
	EncryptedAuthUsername     string            `json:"EncryptedAuthUsername"`
	EncryptedAuthPassword     string            `json:"EncryptedAuthPassword"`
	OpcAuthenticationUsername string            `json:"OpcAuthenticationUsername"`
	OpcAuthenticationPassword string            `json:"OpcAuthenticationPassword"`
	OpcNodes                  []Node            `json:"OpcNodes"`
	OpcEvents                 []json.RawMessage `json:"OpcEvents"`
}

// Connection identifies one server session.
type Connection struct {
	Endpoint       string
	SecurityMode   string
	SecurityPolicy string
	Username       string
	Password       string
}

// Job is one subscription: a connection, a publishing interval and at most
// MaxNodesPerJob nodes.
type Job struct {
	ID                 string
	Connection         Connection
	PublishingInterval time.Duration
	Nodes              []opcua.NodeConfig
}

// CollectorConfig turns the job into the collector's configuration.
func (j Job) CollectorConfig() opcua.Config {
	cfg := opcua.Config{
		Endpoint:        j.Connection.Endpoint,
		Username:        j.Connection.Username,
		Password:        j.Connection.Password,
		SecurityMode:    j.Connection.SecurityMode,
		SecurityPolicy:  j.Connection.SecurityPolicy,
		PublishInterval: j.PublishingInterval,
		Nodes:           append([]opcua.NodeConfig(nil), j.Nodes...),
	}
	cfg.ApplyDefaults()
	return cfg
}

type Options struct {
	DefaultPublishingInterval time.Duration
	DefaultSamplingInterval   time.Duration
	DefaultHeartbeatInterval  time.Duration
}

type Converter struct {
	opts Options
	log  zerolog.Logger
}

func NewConverter(opts Options, logger zerolog.Logger) *Converter {
	return &Converter{opts: opts, log: logger.With().Str("component", "jobs").Logger()}
}

// ReadFile loads and converts a published-nodes file.
func (c *Converter) ReadFile(path string) ([]Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Read(f)
}

func (c *Converter) Read(r io.Reader) ([]Job, error) {
	start := time.Now()
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode published nodes: %w", err)
	}
	c.log.Info().Int("entries", len(entries)).Dur("elapsed", time.Since(start)).Msg("published nodes read")

	jobs, err := c.Convert(entries)
	if err != nil {
		return nil, err
	}
	c.log.Info().Int("jobs", len(jobs)).Dur("elapsed", time.Since(start)).Msg("published nodes converted")
	return jobs, nil
}

type candidate struct {
	node     Node
	id       string
	sampling *int
}

// Convert groups entries by connection, then by publishing interval, drops
// duplicate nodes and batches the rest into jobs.
func (c *Converter) Convert(entries []Entry) ([]Job, error) {
	var (
		order  []Connection
		groups = map[Connection][]candidate{}
	)
	for i, e := range entries {
		if e.EndpointURL == "" {
			return nil, fmt.Errorf("entry %d: EndpointUrl is required", i)
		}
		conn := c.connection(e)
		if _, ok := groups[conn]; !ok {
			order = append(order, conn)
		}
		groups[conn] = append(groups[conn], c.candidates(e)...)
		if len(e.OpcEvents) > 0 {
			c.log.Warn().Str("endpoint", e.EndpointURL).Int("events", len(e.OpcEvents)).Msg("event nodes are not converted")
		}
	}

	var jobs []Job
	for _, conn := range order {
		for _, batch := range c.batches(groups[conn]) {
			jobs = append(jobs, c.job(conn, batch))
		}
	}
	return jobs, nil
}

func (c *Converter) connection(e Entry) Connection {
	conn := Connection{Endpoint: e.EndpointURL, SecurityMode: "SignAndEncrypt", SecurityPolicy: "Basic256Sha256"}
	if e.UseSecurity != nil && !*e.UseSecurity && e.OpcAuthenticationMode != AuthUsernamePassword {
		conn.SecurityMode = "None"
		conn.SecurityPolicy = "None"
	}
	if e.OpcAuthenticationMode == AuthUsernamePassword {
		conn.Username = e.OpcAuthenticationUsername
		conn.Password = e.OpcAuthenticationPassword
		if conn.Username == "" && e.EncryptedAuthUsername != "" {
			c.log.Warn().Str("endpoint", e.EndpointURL).Msg("encrypted credentials are not supported; connecting without user")
		}
	}
	return conn
}

func (c *Converter) candidates(e Entry) []candidate {
	out := make([]candidate, 0, len(e.OpcNodes)+1)
	for _, n := range e.OpcNodes {
		if n.ID == "" {
			n.ID = n.ExpandedNodeID
		}
		if n.ID == "" {
			c.log.Warn().Str("endpoint", e.EndpointURL).Msg("skipping node without id")
			continue
		}
		out = append(out, candidate{node: n, id: n.ID, sampling: n.OpcSamplingInterval})
	}
	if e.NodeID != nil && e.NodeID.Identifier != "" {
		out = append(out, candidate{node: Node{ID: e.NodeID.Identifier}, id: e.NodeID.Identifier})
	}
	return out
}

// batches splits by publishing interval (first-seen order), de-duplicates
// within each interval and cuts at MaxNodesPerJob.
func (c *Converter) batches(cands []candidate) [][]candidate {
	type key struct {
		set bool
		ms  int
	}
	var (
		order    []key
		byPeriod = map[key][]candidate{}
	)
	for _, cand := range cands {
		k := key{}
		if p := cand.node.OpcPublishingInterval; p != nil {
			k = key{set: true, ms: *p}
		}
		if _, ok := byPeriod[k]; !ok {
			order = append(order, k)
		}
		byPeriod[k] = append(byPeriod[k], cand)
	}

	var out [][]candidate
	for _, k := range order {
		unique := distinct(byPeriod[k])
		for len(unique) > MaxNodesPerJob {
			out = append(out, unique[:MaxNodesPerJob])
			unique = unique[MaxNodesPerJob:]
		}
		if len(unique) > 0 {
			out = append(out, unique)
		}
	}
	return out
}

func distinct(cands []candidate) []candidate {
	type key struct {
		id, display string
		set         bool
		sampling    int
	}
	seen := make(map[key]bool, len(cands))
	out := make([]candidate, 0, len(cands))
	for _, cand := range cands {
		k := key{id: cand.id, display: cand.node.DisplayName}
		if cand.sampling != nil {
			k.set, k.sampling = true, *cand.sampling
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, cand)
	}
	return out
}

func (c *Converter) job(conn Connection, batch []candidate) Job {
	publishing := c.opts.DefaultPublishingInterval
	for _, cand := range batch {
		if p := cand.node.OpcPublishingInterval; p != nil {
			publishing = time.Duration(*p) * time.Millisecond
			break
		}
	}

	h := fnv.New32a()
	nodes := make([]opcua.NodeConfig, 0, len(batch))
	for _, cand := range batch {
		n := opcua.NodeConfig{
			NodeID:           cand.id,
			DisplayName:      cand.node.DisplayName,
			SamplingInterval: c.opts.DefaultSamplingInterval,
			Heartbeat:        c.opts.DefaultHeartbeatInterval,
		}
		if cand.sampling != nil {
			n.SamplingInterval = time.Duration(*cand.sampling) * time.Millisecond
		}
		if hb := cand.node.HeartbeatInterval; hb != nil {
			n.Heartbeat = time.Duration(*hb) * time.Second
		}
		if cand.node.SkipFirst != nil {
			n.SkipFirst = *cand.node.SkipFirst
		}
		nodes = append(nodes, n)
		fmt.Fprintf(h, "%s|%s|%d|%d;", n.NodeID, n.DisplayName, n.SamplingInterval, n.Heartbeat)
	}
	fmt.Fprintf(h, "%d", publishing)

	return Job{
		ID:                 fmt.Sprintf("%s_%08x", conn.Endpoint, h.Sum32()),
		Connection:         conn,
		PublishingInterval: publishing,
		Nodes:              nodes,
	}
}
