package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/observability"
	"github.com/buzzfrog/Industrial-IoT/internal/boundary"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

// MaxEdges bounds the slice edges of one Series call.
const MaxEdges = 10_000

var (
	ErrInvalidRange    = errors.New("end must not be before start")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrTooManyEdges    = fmt.Errorf("series exceeds %d edges", MaxEdges)
	ErrEmptyNode       = errors.New("node id is required")
)

type Options struct {
	Lookback            time.Duration
	Lookahead           time.Duration
	TreatUncertainAsBad bool
	Calculator          boundary.Calculator
}

// Service answers boundary questions against a raw history.
type Service struct {
	history ports.History
	obs     ports.Observability
	opts    Options
}

func New(history ports.History, obs ports.Observability, opts Options) *Service {
	return &Service{history: history, obs: obs, opts: opts}
}

// Edge is the outcome at one slice edge. Value is nil when the neighbors
// the mode needs are missing; Err is set when derivation failed.
type Edge struct {
	Target time.Time
	Mode   boundary.Mode
	Value  *boundary.Value
	Err    error
}

// Boundary derives the boundary value of node at target. A nil value with
// a nil error means there is none under mode.
func (s *Service) Boundary(ctx context.Context, node string, target time.Time, mode boundary.Mode) (*boundary.Value, error) {
	edges, err := s.Series(ctx, node, target, target, time.Second, mode)
	if err != nil {
		return nil, err
	}
	return edges[0].Value, edges[0].Err
}

// Series walks start, start+interval, ... up to and including end. The
// window is read once; an edge that fails is recorded and the walk goes on.
func (s *Service) Series(ctx context.Context, node string, start, end time.Time, interval time.Duration, mode boundary.Mode) ([]Edge, error) {
	switch {
	case node == "":
		return nil, ErrEmptyNode
	case end.Before(start):
		return nil, ErrInvalidRange
	case interval <= 0:
		return nil, ErrInvalidInterval
	case int64(end.Sub(start)/interval) >= MaxEdges:
		return nil, ErrTooManyEdges
	}

	from, to := start.Add(-s.opts.Lookback), end.Add(s.opts.Lookahead)
	began := time.Now()
	samples, err := s.history.ReadRaw(ctx, node, from, to)
	s.obs.ObserveLatency(observability.HistoryLatency, time.Since(began).Seconds())
	if err != nil {
		s.obs.IncCounter(observability.BoundaryErrors, 1, kindHistoryRead)
		return nil, fmt.Errorf("read history of %s: %w", node, err)
	}

	edges := make([]Edge, 0, int(end.Sub(start)/interval)+1)
	for t := start; !t.After(end); t = t.Add(interval) {
		if err := ctx.Err(); err != nil {
			return edges, err
		}
		memo := boundary.NewMemo(boundary.Locate(t, samples, s.opts.TreatUncertainAsBad), mode, s.opts.Calculator)
		v, err := memo.Value()
		edges = append(edges, Edge{Target: t, Mode: mode, Value: v, Err: err})
		s.record(node, t, mode, v, err)
	}
	return edges, nil
}

const (
	kindDegenerate  = "degenerate_interval"
	kindNonNumeric  = "non_numeric_value"
	kindHistoryRead = "history_read"
	kindOther       = "other"
)

func errorKind(err error) string {
	switch {
	case errors.Is(err, boundary.ErrDegenerateInterval):
		return kindDegenerate
	case errors.Is(err, boundary.ErrNonNumericValue):
		return kindNonNumeric
	default:
		return kindOther
	}
}

func (s *Service) record(node string, t time.Time, mode boundary.Mode, v *boundary.Value, err error) {
	switch {
	case err != nil:
		s.obs.IncCounter(observability.BoundaryErrors, 1, errorKind(err))
		s.obs.LogError("boundary_failed", err,
			ports.Field{Key: "node_id", Value: node},
			ports.Field{Key: "target", Value: t},
			ports.Field{Key: "mode", Value: mode.String()})
	case v == nil:
		s.obs.IncCounter(observability.BoundaryAbsent, 1, mode.String())
	default:
		s.obs.IncCounter(observability.BoundaryComputed, 1, mode.String())
	}
}
