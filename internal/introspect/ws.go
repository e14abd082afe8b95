package introspect

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rgat-io/tracevis/internal/graph"
)

// streamPeriod is how often a connected stream is polled for new
// animation-log/floating-extern activity. There is no push path from
// Graph into this package — its locks guard plain data structures, not
// an event bus — so the relay samples the same way the worker's own
// 1 Hz metrics ticker does (internal/thread/worker.go's periodicLoop).
const streamPeriod = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Introspection is a local operator/collaborator surface, not a
	// public browser endpoint; same-origin checks don't apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamEvent is one JSON message pushed over /graph/{tid}/stream.
type streamEvent struct {
	Kind            string                `json:"kind"`
	BBSequence      []graph.BBSequenceEntry `json:"bbSequence,omitempty"`
	LoopStates      []graph.LoopState       `json:"loopStates,omitempty"`
	FloatingExterns []graph.FloatingExtern  `json:"floatingExterns,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	_, worker, ok := s.resolveThread(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(streamPeriod)
	defer ticker.Stop()

	ctx := r.Context()
	g := worker.Graph()
	lastBB, lastLoop := 0, 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.pushIncrement(conn, g, &lastBB, &lastLoop) {
				return
			}
			if terminated, _ := g.Terminated(); terminated {
				return
			}
		}
	}
}

// pushIncrement sends whatever animation-log entries and floating
// externs have accumulated since the last tick, returning false if the
// write fails (the connection is assumed dead, ending the stream loop).
func (s *Server) pushIncrement(conn *websocket.Conn, g *graph.Graph, lastBB, lastLoop *int) bool {
	bb := g.BBSequence()
	loops := g.LoopStates()
	externs := g.DrainFloatingExterns()

	if len(bb) == *lastBB && len(loops) == *lastLoop && len(externs) == 0 {
		return true
	}

	ev := streamEvent{
		Kind:            "increment",
		BBSequence:      bb[*lastBB:],
		LoopStates:      loops[*lastLoop:],
		FloatingExterns: externs,
	}
	*lastBB, *lastLoop = len(bb), len(loops)

	if err := conn.WriteJSON(ev); err != nil {
		s.log.WithError(err).Warn("websocket write failed, closing stream")
		return false
	}
	return true
}
