package graph

import "github.com/rgat-io/tracevis/internal/layout"

// NodeSnapshot is a JSON-friendly copy of one Node, taken under storeMu
// the same way GetNode reads a single node — field values may be
// concurrently updated by the owning thread worker moments after the
// copy, which is acceptable for a read-only introspection surface that
// never drives ingestion itself.
type NodeSnapshot struct {
	Index       int           `json:"index"`
	InstrAddr   uint64        `json:"instrAddr,omitempty"`
	MutationGen int           `json:"mutationGen,omitempty"`
	External    bool          `json:"external,omitempty"`
	ExternAddr  uint64        `json:"externAddr,omitempty"`
	Coord       layout.VCoord `json:"coord"`
	ExecCount   uint64        `json:"execCount"`
	CallCount   uint64        `json:"callCount,omitempty"`
	ModuleIndex int           `json:"moduleIndex,omitempty"`
	Parent      int           `json:"parent"`
	Outgoing    []int         `json:"outgoing"`
	Incoming    []int         `json:"incoming"`
}

// EdgeSnapshot is a JSON-friendly copy of one Edge.
type EdgeSnapshot struct {
	Source        int    `json:"source"`
	Target        int    `json:"target"`
	Class         string `json:"class"`
	ChainedWeight uint64 `json:"chainedWeight"`
}

// Snapshot is the full JSON dump served at /graph/{tid}/snapshot.
type Snapshot struct {
	ThreadID    uint64         `json:"threadId"`
	Nodes       []NodeSnapshot `json:"nodes"`
	Edges       []EdgeSnapshot `json:"edges"`
	Terminated  bool           `json:"terminated"`
	FinalNodeID int            `json:"finalNodeId"`
}

// Snapshot copies the node/edge store into a JSON-ready structure. It
// intentionally omits the animation/highlight/args regions — those are
// streamed incrementally over /graph/{tid}/stream instead of re-sent in
// full on every snapshot poll.
func (g *Graph) Snapshot() Snapshot {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()

	nodes := make([]NodeSnapshot, len(g.nodes))
	for i, n := range g.nodes {
		nodes[i] = NodeSnapshot{
			Index:       n.Index,
			InstrAddr:   n.InstrAddr,
			MutationGen: n.MutationGen,
			External:    n.External,
			ExternAddr:  n.ExternAddr,
			Coord:       n.Coord,
			ExecCount:   n.ExecCount,
			CallCount:   n.CallCount,
			ModuleIndex: n.ModuleIndex,
			Parent:      n.Parent,
			Outgoing:    setToSlice(n.Outgoing),
			Incoming:    setToSlice(n.Incoming),
		}
	}

	edges := make([]EdgeSnapshot, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, EdgeSnapshot{
			Source:        e.Source,
			Target:        e.Target,
			Class:         e.Class.String(),
			ChainedWeight: e.ChainedWeight,
		})
	}

	return Snapshot{
		ThreadID:    g.ThreadID,
		Nodes:       nodes,
		Edges:       edges,
		Terminated:  g.terminated,
		FinalNodeID: g.finalNodeID,
	}
}

func setToSlice(s map[int]struct{}) []int {
	out := make([]int, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
