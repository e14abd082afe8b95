package introspect

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/logging"
	"github.com/rgat-io/tracevis/internal/thread"
)

func TestHandleStreamPushesBBSequenceThenClosesOnTermination(t *testing.T) {
	w := newRunningWorker(t, 11)
	w.Graph().AppendBBSequence(graph.BBSequenceEntry{BlockAddr: 0x1000, InsCount: 1})

	srv := NewServer(fakeLookup{workers: map[uint64]*thread.Worker{11: w}}, nil, logging.For("introspect-test"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/graph/11/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev streamEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(ev.BBSequence) != 1 || ev.BBSequence[0].BlockAddr != 0x1000 {
		t.Fatalf("unexpected bb sequence in event: %+v", ev.BBSequence)
	}

	// The worker's graph was already terminated by newRunningWorker, so the
	// stream loop should end its next tick without the client needing to close.
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected the stream to close after the terminated graph's first increment")
	}
}

func TestHandleStreamUnknownThreadRejectsUpgrade(t *testing.T) {
	srv := NewServer(fakeLookup{workers: map[uint64]*thread.Worker{}}, nil, logging.For("introspect-test"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/graph/99/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for an unknown thread id")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}
