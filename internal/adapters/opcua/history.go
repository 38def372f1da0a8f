package opcua

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

type historyReader interface {
	HistoryReadRawModified(ctx context.Context, nodes []*ua.HistoryReadValueID, details *ua.ReadRawModifiedDetails) (*ua.HistoryReadResponse, error)
}

// History reads raw samples from the server's own historian with
// HistoryRead (ReadRawModified), following continuation points.
type History struct {
	cfg    Config
	log    zerolog.Logger
	mu     sync.Mutex
	closer func(context.Context) error
	reader historyReader
}

func NewHistory(cfg Config, logger zerolog.Logger) (*History, error) {
	cfg.ApplyDefaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	return &History{
		cfg: cfg,
		log: logger.With().Str("component", "opcua_history").Str("endpoint", cfg.Endpoint).Logger(),
	}, nil
}

func (h *History) connect(ctx context.Context) (historyReader, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reader != nil {
		return h.reader, nil
	}
	client, err := dial(ctx, h.cfg.Endpoint, clientOptions(h.cfg))
	if err != nil {
		return nil, err
	}
	h.reader = client
	h.closer = client.Close
	h.log.Info().Msg("history session opened")
	return client, nil
}

func (h *History) ReadRaw(ctx context.Context, nodeID string, from, to time.Time) ([]domain.Sample, error) {
	id, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return nil, fmt.Errorf("parse node id %q: %w", nodeID, err)
	}
	reader, err := h.connect(ctx)
	if err != nil {
		return nil, err
	}

	details := &ua.ReadRawModifiedDetails{
		StartTime: from,
		EndTime:   to,
	}
	req := &ua.HistoryReadValueID{NodeID: id}

	var out []domain.Sample
	for {
		resp, err := reader.HistoryReadRawModified(ctx, []*ua.HistoryReadValueID{req}, details)
		if err != nil {
			return nil, fmt.Errorf("history read %q: %w", nodeID, err)
		}
		if len(resp.Results) == 0 {
			return nil, fmt.Errorf("history read %q: empty result", nodeID)
		}
		res := resp.Results[0]
		if res.StatusCode == ua.StatusBadNoData {
			break
		}
		if domain.Severity(res.StatusCode) == domain.SeverityBad {
			return nil, fmt.Errorf("history read %q failed: %w", nodeID, res.StatusCode)
		}
		if res.HistoryData != nil {
			if data, ok := res.HistoryData.Value.(*ua.HistoryData); ok {
				for _, dv := range data.DataValues {
					if dv == nil {
						continue
					}
					s := domain.FromDataValue(nodeID, dv)
					s.Seq = uint64(len(out) + 1)
					out = append(out, s)
				}
			}
		}
		if len(res.ContinuationPoint) == 0 {
			break
		}
		req.ContinuationPoint = res.ContinuationPoint
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SourceTimestamp.Before(out[j].SourceTimestamp)
	})
	return out, nil
}

func (h *History) Close(ctx context.Context) error {
	h.mu.Lock()
	closer := h.closer
	h.reader = nil
	h.closer = nil
	h.mu.Unlock()
	if closer == nil {
		return nil
	}
	return closer(ctx)
}

var _ ports.History = (*History)(nil)
