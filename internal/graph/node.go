// Package graph implements the Graph Store: per-thread nodes,
// edges and auxiliary sequences, mutated under four independent locks
// whose permitted nesting order is store -> animation -> highlights ->
// args (never hold two out of order, and never hold any two that aren't
// adjacent in that chain at once).
package graph

import "github.com/rgat-io/tracevis/internal/layout"

// ArgEntry is one captured argument for an external call, keyed by
// position.
type ArgEntry struct {
	Pos     int
	Payload []byte
}

// Node is a vertex on a per-thread graph. Cross-node links are dense
// integer indices, never pointers — Outgoing/Incoming are sets of
// node indices.
type Node struct {
	Index int

	// InstrAddr/MutationGen identify the Instruction this node represents,
	// for instrumented nodes. External nodes instead carry ExternAddr and
	// leave InstrAddr at 0.
	InstrAddr   uint64
	MutationGen int
	External    bool
	ExternAddr  uint64

	Coord       layout.VCoord
	ExecCount   uint64
	CallCount   uint64
	ModuleIndex int
	Parent      int // index of the node that led to this one, or -1

	ChildExternCount int
	FuncArgs         [][]ArgEntry // bounded by config.NodeArgCapacity

	Outgoing map[int]struct{}
	Incoming map[int]struct{}
}

// NewNode constructs a node ready for InsertNode; callers set Index to
// Graph.NextIndex() beforehand.
func NewNode(index int, parent int) *Node {
	return &Node{
		Index:    index,
		Parent:   parent,
		Outgoing: make(map[int]struct{}),
		Incoming: make(map[int]struct{}),
	}
}

// AddFuncArgs appends a captured argument list, dropping it if the node's
// capacity is already exhausted (the UI queue, not this slice, is the
// path guaranteed to see every capture).
func (n *Node) AddFuncArgs(args []ArgEntry, capacity int) {
	if len(n.FuncArgs) >= capacity {
		return
	}
	n.FuncArgs = append(n.FuncArgs, args)
}
