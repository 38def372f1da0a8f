package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/buzzfrog/Industrial-IoT/internal/app/query"
	"github.com/buzzfrog/Industrial-IoT/internal/boundary"
	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

var target = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type fakeQuerier struct {
	value *boundary.Value
	edges []query.Edge
	err   error

	node string
	mode boundary.Mode
	at   time.Time
}

func (f *fakeQuerier) Boundary(_ context.Context, node string, t time.Time, mode boundary.Mode) (*boundary.Value, error) {
	f.node, f.mode, f.at = node, mode, t
	return f.value, f.err
}

func (f *fakeQuerier) Series(_ context.Context, node string, _, _ time.Time, _ time.Duration, mode boundary.Mode) ([]query.Edge, error) {
	f.node, f.mode = node, mode
	return f.edges, f.err
}

func serve(t *testing.T, q Querier, path string) *httptest.ResponseRecorder {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "aegis_test_total", Help: "test"}))
	h := NewRouter(q, boundary.ModeSlopedInterpolation, reg, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func boundaryPath(node string, query string) string {
	return "/api/v1/nodes/" + url.PathEscape(node) + "/boundary?" + query
}

func TestBoundaryEndpoint(t *testing.T) {
	q := &fakeQuerier{value: &boundary.Value{
		Value:           domain.NumberValue(12.5),
		SourceTimestamp: target,
		ServerTimestamp: target,
		Status:          domain.SetMarker(ua.StatusOK, domain.MarkerInterpolated),
	}}

	rec := serve(t, q, boundaryPath("ns=2;s=Line/Speed", "ts=2024-07-01T10:00:00Z&mode=stepped_interpolation"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ns=2;s=Line/Speed", q.node)
	require.Equal(t, boundary.ModeSteppedInterpolation, q.mode)
	require.Equal(t, target, q.at)

	var got EdgeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 12.5, got.Value)
	require.Equal(t, "Good", got.Status)
	require.Equal(t, "Interpolated", got.Marker)
	require.Equal(t, uint32(0x402), *got.StatusCode)
	require.Equal(t, "SteppedInterpolation", got.Mode)
}

func TestBoundaryEndpointDefaultsMode(t *testing.T) {
	q := &fakeQuerier{}
	rec := serve(t, q, boundaryPath("ns=2;i=7", "ts=2024-07-01T10:00:00Z"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, boundary.ModeSlopedInterpolation, q.mode)
}

func TestBoundaryEndpointQualityValue(t *testing.T) {
	q := &fakeQuerier{value: &boundary.Value{
		Value:  domain.QualityValue(ua.StatusBadSensorFailure),
		Status: domain.SetMarker(ua.StatusOK, domain.MarkerRaw),
	}}
	rec := serve(t, q, boundaryPath("n", "ts=2024-07-01T10:00:00Z&mode=QualityRaw"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got EdgeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "quality", got.Kind)
	require.Equal(t, domain.FormatStatus(ua.StatusBadSensorFailure), got.Value)
}

func TestBoundaryEndpointNonFiniteValue(t *testing.T) {
	q := &fakeQuerier{value: &boundary.Value{
		Value:  domain.NumberValue(math.NaN()),
		Status: domain.SetMarker(ua.StatusUncertain, domain.MarkerRaw),
	}}
	rec := serve(t, q, boundaryPath("n", "ts=2024-07-01T10:00:00Z&mode=raw"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got EdgeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "NaN", got.Value)
	require.Equal(t, "Uncertain", got.Status)
}

func TestWriteJSONUnencodableBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"value": []float64{1, math.Inf(1)}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "encode response")
}

func TestBoundaryEndpointErrors(t *testing.T) {
	cases := map[string]struct {
		path string
		err  error
		code int
	}{
		"missing ts":    {boundaryPath("n", ""), nil, http.StatusBadRequest},
		"bad ts":        {boundaryPath("n", "ts=yesterday"), nil, http.StatusBadRequest},
		"unknown mode":  {boundaryPath("n", "ts=2024-07-01T10:00:00Z&mode=average"), nil, http.StatusBadRequest},
		"degenerate":    {boundaryPath("n", "ts=2024-07-01T10:00:00Z"), boundary.ErrDegenerateInterval, http.StatusUnprocessableEntity},
		"non numeric":   {boundaryPath("n", "ts=2024-07-01T10:00:00Z"), boundary.ErrNonNumericValue, http.StatusUnprocessableEntity},
		"history down":  {boundaryPath("n", "ts=2024-07-01T10:00:00Z"), errors.New("dial tcp: refused"), http.StatusBadGateway},
		"unknown route": {"/api/v1/nodes/n/nothing", nil, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, &fakeQuerier{err: tc.err}, tc.path)
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestSeriesEndpoint(t *testing.T) {
	q := &fakeQuerier{edges: []query.Edge{
		{Target: target, Mode: boundary.ModeRaw, Value: &boundary.Value{Value: domain.NumberValue(1), Status: domain.SetMarker(ua.StatusOK, domain.MarkerRaw)}},
		{Target: target.Add(time.Minute), Mode: boundary.ModeRaw},
		{Target: target.Add(2 * time.Minute), Mode: boundary.ModeRaw, Err: boundary.ErrNonNumericValue},
	}}
	path := "/api/v1/nodes/n/series?start=2024-07-01T10:00:00Z&end=2024-07-01T10:02:00Z&interval=1m&mode=raw"
	rec := serve(t, q, path)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []EdgeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	require.Equal(t, 1.0, got[0].Value)
	require.Nil(t, got[1].Value)
	require.Empty(t, got[1].Error)
	require.Equal(t, boundary.ErrNonNumericValue.Error(), got[2].Error)

	rec = serve(t, &fakeQuerier{err: query.ErrTooManyEdges}, path)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, q, "/api/v1/nodes/n/series?start=2024-07-01T10:00:00Z&end=2024-07-01T10:02:00Z&interval=often")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsHealthAndModes(t *testing.T) {
	rec := serve(t, &fakeQuerier{}, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "aegis_test_total")

	rec = serve(t, &fakeQuerier{}, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, &fakeQuerier{}, "/api/v1/modes")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"default":"SlopedInterpolation"`)
}

func TestHandlerWritesAccessLog(t *testing.T) {
	var buf bytes.Buffer
	h := Handler(NewRouter(&fakeQuerier{}, boundary.ModeRaw, prometheus.NewRegistry(), zerolog.Nop()), &buf)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(buf.String(), `"GET /healthz HTTP/1.1" 200`))
}
