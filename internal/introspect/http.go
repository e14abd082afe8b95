// Package introspect implements the read-only external transport
// surface: a chi HTTP router (/healthz, /metrics, /graph/{tid}/snapshot)
// and a gorilla/websocket stream (/graph/{tid}/stream) for a
// timeline-builder-style consumer. It never renders anything and never
// mutates a graph — strictly a thin transport over the Graph Store's own
// read methods; GUI rendering itself is out of scope here.
package introspect

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/metrics"
	"github.com/rgat-io/tracevis/internal/thread"
)

// WorkerLookup is the subset of *thread.Manager this package depends on,
// narrowed to an interface so handlers can be exercised against a fake
// in tests without constructing a real Manager.
type WorkerLookup interface {
	Get(threadID uint64) (*thread.Worker, bool)
}

// Server hosts the introspection HTTP surface.
type Server struct {
	workers    WorkerLookup
	metricsReg *metrics.Registry
	log        *logrus.Entry
}

// NewServer wires a Server against the given worker registry and metrics
// registry. metricsReg may be nil, in which case /metrics reports 503 —
// matching how internal/thread's worker already tolerates a nil
// *metrics.Registry.
func NewServer(workers WorkerLookup, metricsReg *metrics.Registry, log *logrus.Entry) *Server {
	return &Server{workers: workers, metricsReg: metricsReg, log: log}
}

// Router builds the chi mux for the introspection surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/graph/{tid}/snapshot", s.handleSnapshot)
	r.Get("/graph/{tid}/stream", s.handleStream)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metricsReg == nil {
		http.Error(w, "metrics not configured", http.StatusServiceUnavailable)
		return
	}
	promhttp.HandlerFor(s.metricsReg.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	tid, worker, ok := s.resolveThread(w, r)
	if !ok {
		return
	}
	_ = tid

	snap := worker.Graph().Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.WithError(err).Warn("failed to encode graph snapshot")
	}
}

// resolveThread parses the {tid} URL param and looks up its worker,
// writing an error response and returning ok=false on any failure.
func (s *Server) resolveThread(w http.ResponseWriter, r *http.Request) (uint64, *thread.Worker, bool) {
	raw := chi.URLParam(r, "tid")
	tid, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid thread id: "+raw, http.StatusBadRequest)
		return 0, nil, false
	}
	worker, found := s.workers.Get(tid)
	if !found {
		http.Error(w, "unknown thread id: "+raw, http.StatusNotFound)
		return 0, nil, false
	}
	return tid, worker, true
}
