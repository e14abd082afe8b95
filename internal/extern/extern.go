// Package extern implements the external-call binder: run_external
// resolves a transition into an uninstrumented module, deduping repeated
// calls from the same caller and placing genuinely new external nodes
// near their caller, the same OnEnter/isCallOpcode resolution shape a
// call-opcode tracer uses.
package extern

import (
	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/layout"
	"github.com/rgat-io/tracevis/internal/model"
	"github.com/rgat-io/tracevis/internal/retry"
	"github.com/rgat-io/tracevis/internal/store"
)

// Binder resolves external-call transitions against the shared store.
type Binder struct {
	store  *store.Store
	budget retry.Budget
	log    *logrus.Entry
}

// New creates a Binder that waits up to budget for a target's extern
// descriptor to be disassembled.
func New(s *store.Store, budget retry.Budget, log *logrus.Entry) *Binder {
	return &Binder{store: s, budget: budget, log: log}
}

// RunExternal implements run_external. lastVertID must name a live,
// non-external node on g. It returns the external node's index and
// whether the binder produced one (false on either failure mode below).
func (b *Binder) RunExternal(g *graph.Graph, lastVertID int, targetAddr uint64, repeats uint64) (int, bool) {
	caller := g.GetNode(lastVertID)
	if caller == nil || caller.External {
		return 0, false
	}
	if callerModule := b.store.ModuleContaining(caller.InstrAddr); callerModule != nil && callerModule.Status == model.Uninstrumented {
		return 0, false
	}

	desc, found := b.store.LookupExtern(targetAddr, b.budget)
	if !found {
		b.log.WithField("addr", targetAddr).Warn("run_external: extern descriptor never resolved")
		return 0, false
	}

	if edge, ok := desc.EdgeFor(g.ThreadID, lastVertID); ok {
		target := g.GetNode(edge.TargetNode)
		target.ExecCount += repeats
		target.CallCount += repeats
		g.AppendExternCall(lastVertID, edge.TargetNode)
		return edge.TargetNode, true
	}

	siblings := int64(caller.ChildExternCount)
	coord := layout.VCoord{
		A:    caller.Coord.A + 2*siblings + 5,
		B:    caller.Coord.B + siblings + 5,
		BMod: caller.Coord.BMod,
	}

	targIdx := g.NextIndex()
	targ := graph.NewNode(targIdx, lastVertID)
	targ.External = true
	targ.ExternAddr = targetAddr
	targ.ModuleIndex = desc.ModuleIndex
	targ.Coord = coord
	targ.ExecCount = 1
	targ.CallCount = 1
	g.InsertNode(targ)

	caller.ChildExternCount++

	b.store.WithExternWriteLock(func() {
		desc.AddEdge(g.ThreadID, model.ExternEdge{CallerNode: lastVertID, TargetNode: targIdx})
	})

	g.AppendExternList(targIdx)
	g.AddEdge(lastVertID, targIdx, graph.ClassLibrary)
	g.AppendExternCall(lastVertID, targIdx)

	return targIdx, true
}
