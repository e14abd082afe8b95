package graph

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/logging"
)

// Graph is one thread's contiguous node array plus its edge map and
// auxiliary sequences. Four independent locks guard disjoint
// state; the only permitted nesting order, when more than one must be
// held, is storeMu -> animMu -> highlightMu -> argsMu.
type Graph struct {
	ThreadID uint64

	storeMu sync.RWMutex
	nodes   []*Node
	edges   map[edgeKey]*Edge
	// externCallSequence: caller node index -> ordered (caller,target) pairs
	// materialized for that caller, guarded by storeMu alongside nodes/edges
	// since both are keyed by node index.
	externCallSequence map[int][]ExternCallPair
	terminated         bool
	finalNodeID        int

	animMu            sync.Mutex
	bbSequence        []BBSequenceEntry
	mutationSequence  []MutationEntry
	loopStateList     []LoopState

	highlightMu   sync.Mutex
	exceptionSet  map[int]struct{}
	externList    []int

	argsMu               sync.Mutex
	floatingExternsQueue []FloatingExtern

	log *logrus.Entry
}

// New creates an empty per-thread graph.
func New(threadID uint64) *Graph {
	return &Graph{
		ThreadID:           threadID,
		edges:              make(map[edgeKey]*Edge),
		externCallSequence: make(map[int][]ExternCallPair),
		exceptionSet:       make(map[int]struct{}),
		finalNodeID:        -1,
		log:                logging.For("graph").WithField("thread", threadID),
	}
}

// ExternCallPair is one entry of externCallSequence.
type ExternCallPair struct {
	CallerNode int
	TargetNode int
}

// --- node/edge store (storeMu) ---

// InsertNode appends node as the next dense index; the caller must have
// set node.Index to len(nodes) beforehand.
func (g *Graph) InsertNode(n *Node) {
	g.storeMu.Lock()
	defer g.storeMu.Unlock()
	g.nodes = append(g.nodes, n)
}

// NextIndex returns the index a newly inserted node would receive.
func (g *Graph) NextIndex() int {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	return len(g.nodes)
}

// GetNode returns the node at idx for mutation. Caller must not retain
// the pointer across an unlock boundary if concurrent structural changes
// (new node append) are possible — field mutation on an existing node is
// safe since the slice backing array cell itself is never reassigned.
func (g *Graph) GetNode(idx int) *Node {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	if idx < 0 || idx >= len(g.nodes) {
		return nil
	}
	return g.nodes[idx]
}

// NodeExists reports whether idx is a live node index.
func (g *Graph) NodeExists(idx int) bool {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	return idx >= 0 && idx < len(g.nodes)
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	return len(g.edges)
}

// EdgeExists reports whether an edge (u,v) already exists, returning it.
func (g *Graph) EdgeExists(u, v int) (*Edge, bool) {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	e, ok := g.edges[edgeKey{u, v}]
	return e, ok
}

// AddEdge inserts a new edge (u,v) with the given class, wiring both
// endpoints' Outgoing/Incoming sets so edges and neighbour sets never
// drift apart.
func (g *Graph) AddEdge(u, v int, class EdgeClass) *Edge {
	g.storeMu.Lock()
	defer g.storeMu.Unlock()
	e := &Edge{Source: u, Target: v, Class: class}
	g.edges[edgeKey{u, v}] = e
	if u >= 0 && u < len(g.nodes) {
		g.nodes[u].Outgoing[v] = struct{}{}
	}
	if v >= 0 && v < len(g.nodes) {
		g.nodes[v].Incoming[u] = struct{}{}
	}
	return e
}

// GetOrCreateEdge returns the existing edge (u,v) or creates one with
// class if absent, incrementing ChainedWeight either way.
func (g *Graph) GetOrCreateEdge(u, v int, class EdgeClass) *Edge {
	if e, ok := g.EdgeExists(u, v); ok {
		g.storeMu.Lock()
		e.ChainedWeight++
		g.storeMu.Unlock()
		return e
	}
	e := g.AddEdge(u, v, class)
	g.storeMu.Lock()
	e.ChainedWeight = 1
	g.storeMu.Unlock()
	return e
}

// InsertEdgeBetweenBlocks connects a source block's last instruction-node
// (srcLastNode) to a target block's first instruction-node (tgtFirstNode),
// used by both deferred drains (pending edges and block repeats).
func (g *Graph) InsertEdgeBetweenBlocks(srcLastNode, tgtFirstNode int) *Edge {
	return g.GetOrCreateEdge(srcLastNode, tgtFirstNode, ClassOld)
}

// AppendExternCall records a (caller, target) pair in externCallSequence.
func (g *Graph) AppendExternCall(callerNode, targetNode int) {
	g.storeMu.Lock()
	defer g.storeMu.Unlock()
	g.externCallSequence[callerNode] = append(g.externCallSequence[callerNode], ExternCallPair{callerNode, targetNode})
}

// ExternCallSequence returns a snapshot copy of the (caller,target) pairs
// recorded for callerNode, in call order.
func (g *Graph) ExternCallSequence(callerNode int) []ExternCallPair {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	pairs := g.externCallSequence[callerNode]
	out := make([]ExternCallPair, len(pairs))
	copy(out, pairs)
	return out
}

// Terminate marks the graph terminated with the given final node id.
func (g *Graph) Terminate(finalNodeID int) {
	g.storeMu.Lock()
	defer g.storeMu.Unlock()
	g.terminated = true
	g.finalNodeID = finalNodeID
}

// Terminated reports whether the thread's pipe has closed.
func (g *Graph) Terminated() (bool, int) {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	return g.terminated, g.finalNodeID
}

// SumExecutionCounts sums ExecutionCount over every instrumented
// (non-external) node.
func (g *Graph) SumExecutionCounts() uint64 {
	g.storeMu.RLock()
	defer g.storeMu.RUnlock()
	var total uint64
	for _, n := range g.nodes {
		if !n.External {
			total += n.ExecCount
		}
	}
	return total
}
