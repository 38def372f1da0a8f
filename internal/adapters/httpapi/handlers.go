package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/buzzfrog/Industrial-IoT/internal/app/query"
	"github.com/buzzfrog/Industrial-IoT/internal/boundary"
	"github.com/buzzfrog/Industrial-IoT/internal/domain"
)

// EdgeView is the JSON shape of one boundary result.
type EdgeView struct {
	Target          time.Time  `json:"target"`
	Mode            string     `json:"mode"`
	Kind            string     `json:"kind,omitempty"`
	Value           any        `json:"value,omitempty"`
	Status          string     `json:"status,omitempty"`
	StatusCode      *uint32    `json:"status_code,omitempty"`
	Marker          string     `json:"marker,omitempty"`
	SourceTimestamp *time.Time `json:"source_timestamp,omitempty"`
	ServerTimestamp *time.Time `json:"server_timestamp,omitempty"`
	Error           string     `json:"error,omitempty"`
}

func NewEdgeView(target time.Time, mode boundary.Mode, v *boundary.Value, err error) EdgeView {
	out := EdgeView{Target: target, Mode: mode.String()}
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if v == nil {
		return out
	}
	code := uint32(v.Status)
	src, srv := v.SourceTimestamp, v.ServerTimestamp
	out.Kind = v.Value.Kind().String()
	out.Value = jsonValue(v.Value.Interface())
	if q, ok := v.Value.Quality(); ok {
		out.Value = domain.FormatStatus(q)
	}
	out.Status = domain.Severity(v.Status).String()
	out.StatusCode = &code
	out.Marker = domain.MarkerOf(v.Status).String()
	out.SourceTimestamp = &src
	out.ServerTimestamp = &srv
	return out
}

// jsonValue renders NaN and infinities, which JSON numbers cannot carry,
// as "NaN", "+Inf" and "-Inf".
func jsonValue(x any) any {
	switch f := x.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return strconv.FormatFloat(float64(f), 'g', -1, 32)
		}
	}
	return x
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) modes(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(boundary.Modes()))
	for _, m := range boundary.Modes() {
		names = append(names, m.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": names, "default": s.defaultMode.String()})
}

func (s *Server) boundary(w http.ResponseWriter, r *http.Request) {
	node, mode, err := s.nodeAndMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := parseTime(r.URL.Query().Get("ts"), "ts")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := s.q.Boundary(r.Context(), node, target, mode)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("node_id", node).Str("mode", mode.String()).Msg("boundary request failed")
		writeError(w, statusFor(err), err.Error())
	case v == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, NewEdgeView(target, mode, v, nil))
	}
}

func (s *Server) series(w http.ResponseWriter, r *http.Request) {
	node, mode, err := s.nodeAndMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"), "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseTime(q.Get("end"), "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval, err := time.ParseDuration(q.Get("interval"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("interval: %v", err))
		return
	}

	edges, err := s.q.Series(r.Context(), node, start, end, interval, mode)
	if err != nil {
		s.log.Warn().Err(err).Str("node_id", node).Msg("series request failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	out := make([]EdgeView, 0, len(edges))
	for _, e := range edges {
		out = append(out, NewEdgeView(e.Target, e.Mode, e.Value, e.Err))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) nodeAndMode(r *http.Request) (string, boundary.Mode, error) {
	node, err := url.PathUnescape(mux.Vars(r)["node"])
	if err != nil || strings.TrimSpace(node) == "" {
		return "", 0, errors.New("invalid node id")
	}
	mode := s.defaultMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		if mode, err = boundary.ParseMode(raw); err != nil {
			return "", 0, err
		}
	}
	return node, mode, nil
}

func parseTime(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339: %w", name, err)
	}
	return t, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, boundary.ErrDegenerateInterval), errors.Is(err, boundary.ErrNonNumericValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, query.ErrInvalidRange), errors.Is(err, query.ErrInvalidInterval),
		errors.Is(err, query.ErrTooManyEdges), errors.Is(err, query.ErrEmptyNode):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// writeJSON encodes before touching the response so an unencodable body
// still yields an error status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]string{"error": fmt.Sprintf("encode response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
