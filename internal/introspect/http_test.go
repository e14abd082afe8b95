package introspect

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rgat-io/tracevis/internal/config"
	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/logging"
	"github.com/rgat-io/tracevis/internal/metrics"
	"github.com/rgat-io/tracevis/internal/notify"
	"github.com/rgat-io/tracevis/internal/savesignal"
	"github.com/rgat-io/tracevis/internal/store"
	"github.com/rgat-io/tracevis/internal/thread"
)

type fakeReader struct{}

func (fakeReader) Read() (int, []byte) { return -1, nil }

func newRunningWorker(t *testing.T, id uint64) *thread.Worker {
	t.Helper()
	cfg := &config.Config{
		Retry:           config.RetryConfig{MaxAttempts: 1, BaseIntervalMS: 1},
		Deferred:        config.DeferredConfig{WakePeriodMS: 20, DrainPasses: 1},
		NodeArgCapacity: 8,
	}
	s := store.New(4)
	w := thread.NewWorker(id, s, fakeReader{}, cfg, savesignal.New(cfg), notify.New(cfg), nil, logging.For("introspect-test"))
	n0 := graph.NewNode(0, -1)
	n0.InstrAddr = 0x1000
	w.Graph().InsertNode(n0)
	w.Graph().Terminate(0)
	return w
}

type fakeLookup struct {
	workers map[uint64]*thread.Worker
}

func (f fakeLookup) Get(threadID uint64) (*thread.Worker, bool) {
	w, ok := f.workers[threadID]
	return w, ok
}

func TestHandleHealthzReportsOK(t *testing.T) {
	srv := NewServer(fakeLookup{}, nil, logging.For("introspect-test"))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("healthz body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestHandleSnapshotUnknownThreadIs404(t *testing.T) {
	srv := NewServer(fakeLookup{workers: map[uint64]*thread.Worker{}}, nil, logging.For("introspect-test"))
	req := httptest.NewRequest(http.MethodGet, "/graph/7/snapshot", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("snapshot status = %d, want 404", rec.Code)
	}
}

func TestHandleSnapshotKnownThreadReturnsGraphJSON(t *testing.T) {
	w := newRunningWorker(t, 7)
	srv := NewServer(fakeLookup{workers: map[uint64]*thread.Worker{7: w}}, nil, logging.For("introspect-test"))

	req := httptest.NewRequest(http.MethodGet, "/graph/7/snapshot", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
}

func TestHandleMetricsWithoutRegistryIs503(t *testing.T) {
	srv := NewServer(fakeLookup{}, nil, logging.For("introspect-test"))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("metrics status = %d, want 503", rec.Code)
	}
}

func TestHandleMetricsWithRegistryReturnsPrometheusText(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.SetBacklogOut(1, 42)
	srv := NewServer(fakeLookup{}, reg, logging.For("introspect-test"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
}
