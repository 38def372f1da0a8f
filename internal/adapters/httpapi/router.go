package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/buzzfrog/Industrial-IoT/internal/app/query"
	"github.com/buzzfrog/Industrial-IoT/internal/boundary"
)

// Querier is the part of the query service the API needs.
type Querier interface {
	Boundary(ctx context.Context, node string, target time.Time, mode boundary.Mode) (*boundary.Value, error)
	Series(ctx context.Context, node string, start, end time.Time, interval time.Duration, mode boundary.Mode) ([]query.Edge, error)
}

type Server struct {
	q           Querier
	defaultMode boundary.Mode
	log         zerolog.Logger
}

// NewRouter builds the API and metrics routes. Node ids travel URL-encoded
// in the path since they routinely carry ';', '=' and '/'.
func NewRouter(q Querier, defaultMode boundary.Mode, gatherer prometheus.Gatherer, logger zerolog.Logger) *mux.Router {
	s := &Server{q: q, defaultMode: defaultMode, log: logger}

	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/modes", s.modes).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{node}/boundary", s.boundary).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{node}/series", s.series).Methods(http.MethodGet)

	return r
}

// Handler wraps h with Apache combined access logging written to w.
func Handler(h http.Handler, w io.Writer) http.Handler {
	return handlers.CombinedLoggingHandler(w, h)
}
