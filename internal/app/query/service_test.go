package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/buzzfrog/Industrial-IoT/internal/adapters/observability"
	"github.com/buzzfrog/Industrial-IoT/internal/boundary"
	"github.com/buzzfrog/Industrial-IoT/internal/domain"
	"github.com/buzzfrog/Industrial-IoT/internal/ports"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func sample(sec int, v any, code ua.StatusCode) domain.Sample {
	s := domain.Sample{NodeID: "ns=2;s=Pressure", SourceTimestamp: at(sec), Status: code}
	if v != nil {
		s.Value = domain.VariantValue(ua.MustVariant(v))
	}
	return s
}

type fakeHistory struct {
	samples  []domain.Sample
	err      error
	from, to time.Time
	calls    int
}

func (f *fakeHistory) ReadRaw(_ context.Context, _ string, from, to time.Time) ([]domain.Sample, error) {
	f.calls++
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Sample
	for _, s := range f.samples {
		if !s.SourceTimestamp.Before(from) && !s.SourceTimestamp.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type recordingObs struct {
	mu       sync.Mutex
	counters map[string]float64
	errors   []error
}

func (r *recordingObs) LogInfo(string, ...ports.Field) {}
func (r *recordingObs) LogError(_ string, err error, _ ...ports.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}
func (r *recordingObs) LogCritical(string, error, ...ports.Field) {}
func (r *recordingObs) IncCounter(name string, v float64, labels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]float64{}
	}
	r.counters[strings.Join(append([]string{name}, labels...), "|")] += v
}
func (r *recordingObs) ObserveLatency(string, float64)       {}
func (r *recordingObs) SetGauge(string, float64)             {}
func (r *recordingObs) RecordRejected(*domain.Sample, error) {}

func (r *recordingObs) count(name string, labels ...string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[strings.Join(append([]string{name}, labels...), "|")]
}

func newService(h ports.History, obs ports.Observability) *Service {
	return New(h, obs, Options{
		Lookback:   time.Minute,
		Lookahead:  time.Minute,
		Calculator: boundary.Calculator{Now: func() time.Time { return base }},
	})
}

func TestBoundaryInterpolates(t *testing.T) {
	h := &fakeHistory{samples: []domain.Sample{
		sample(0, 10.0, ua.StatusOK),
		sample(10, 20.0, ua.StatusOK),
	}}
	obs := &recordingObs{}

	v, err := newService(h, obs).Boundary(context.Background(), "ns=2;s=Pressure", at(4), boundary.ModeSlopedInterpolation)
	require.NoError(t, err)
	require.NotNil(t, v)
	got, ok := v.Value.Float64()
	require.True(t, ok)
	require.InDelta(t, 14.0, got, 1e-9)
	require.Equal(t, domain.MarkerInterpolated, domain.MarkerOf(v.Status))
	require.Equal(t, domain.SeverityGood, domain.Severity(v.Status))

	require.Equal(t, at(4).Add(-time.Minute), h.from)
	require.Equal(t, at(4).Add(time.Minute), h.to)
	require.Equal(t, 1.0, obs.count(observability.BoundaryComputed, "SlopedInterpolation"))
}

func TestBoundaryAbsent(t *testing.T) {
	h := &fakeHistory{samples: []domain.Sample{sample(0, 10.0, ua.StatusOK)}}
	obs := &recordingObs{}

	v, err := newService(h, obs).Boundary(context.Background(), "ns=2;s=Pressure", at(5), boundary.ModeRaw)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, 1.0, obs.count(observability.BoundaryAbsent, "Raw"))
}

func TestSeriesContinuesPastFailedEdge(t *testing.T) {
	h := &fakeHistory{samples: []domain.Sample{
		sample(0, 1.0, ua.StatusOK),
		sample(10, "offline", ua.StatusOK),
		sample(20, 3.0, ua.StatusOK),
		sample(30, 4.0, ua.StatusOK),
	}}
	obs := &recordingObs{}

	edges, err := newService(h, obs).Series(context.Background(), "ns=2;s=Pressure", at(5), at(25), 10*time.Second, boundary.ModeSlopedInterpolation)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	require.Equal(t, 1, h.calls)

	require.ErrorIs(t, edges[0].Err, boundary.ErrNonNumericValue)
	require.ErrorIs(t, edges[1].Err, boundary.ErrNonNumericValue)
	require.NoError(t, edges[2].Err)
	got, _ := edges[2].Value.Value.Float64()
	require.InDelta(t, 3.5, got, 1e-9)
	require.Equal(t, at(25), edges[2].Target)

	require.Equal(t, 2.0, obs.count(observability.BoundaryErrors, "non_numeric_value"))
	require.Len(t, obs.errors, 2)
}

func TestSeriesEdgesIncludeEnd(t *testing.T) {
	h := &fakeHistory{samples: []domain.Sample{sample(0, 1.0, ua.StatusOK)}}
	edges, err := newService(h, &recordingObs{}).Series(context.Background(), "n", at(0), at(3), time.Second, boundary.ModeSteppedExtrapolation)
	require.NoError(t, err)
	require.Len(t, edges, 4)
	for _, e := range edges {
		require.NotNil(t, e.Value)
		require.Equal(t, e.Target, e.Value.SourceTimestamp)
	}
}

func TestSeriesRejectsBadArguments(t *testing.T) {
	svc := newService(&fakeHistory{}, &recordingObs{})
	ctx := context.Background()

	_, err := svc.Series(ctx, "", at(0), at(1), time.Second, boundary.ModeRaw)
	require.ErrorIs(t, err, ErrEmptyNode)
	_, err = svc.Series(ctx, "n", at(1), at(0), time.Second, boundary.ModeRaw)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.Series(ctx, "n", at(0), at(1), 0, boundary.ModeRaw)
	require.ErrorIs(t, err, ErrInvalidInterval)
	_, err = svc.Series(ctx, "n", at(0), at(MaxEdges), time.Second, boundary.ModeRaw)
	require.ErrorIs(t, err, ErrTooManyEdges)
}

func TestHistoryFailureIsCounted(t *testing.T) {
	boom := errors.New("historian down")
	obs := &recordingObs{}
	_, err := newService(&fakeHistory{err: boom}, obs).Boundary(context.Background(), "n", at(0), boundary.ModeRaw)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1.0, obs.count(observability.BoundaryErrors, "history_read"))
}
