// Package deferred implements Deferred Work: pendingEdges and
// blockRepeatQueue, each periodically re-resolved against the shared
// store until both ends of an entry are known, then applied to the
// thread's graph and dropped. Grounded on the tracevis original source's
// pendingEdges/blockRepeatQueue erase-in-place loops, translated to Go's
// build-a-retained-slice idiom (DESIGN.md).
package deferred

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/model"
	"github.com/rgat-io/tracevis/internal/retry"
	"github.com/rgat-io/tracevis/internal/store"
)

var peek = retry.Budget{MaxAttempts: 1, Base: 0}

// PendingEdge is an edge awaiting resolution of both endpoint blocks.
type PendingEdge struct {
	SrcAddr uint64
	SrcID   model.BlockID
	TgtAddr uint64
	TgtID   model.BlockID
}

// TargetBlock is one of a BlockRepeat's not-yet-confirmed outgoing
// targets.
type TargetBlock struct {
	Addr uint64
	ID   model.BlockID
}

// BlockRepeat is a replayed block execution awaiting resolution of its
// own block and (separately) each target block it transitions to.
type BlockRepeat struct {
	BlockAddr    uint64
	BlockID      model.BlockID
	InsCount     int
	TotalExecs   uint64
	TargetBlocks []TargetBlock
}

// Queue holds one thread's deferred work. Enqueue* is called from the
// worker's read loop, while the drains run from the worker's periodic
// goroutine and from its shutdown sequence; the mutex guards the queued
// slices between them.
type Queue struct {
	mu      sync.Mutex
	edges   []PendingEdge
	repeats []BlockRepeat
	log     *logrus.Entry
}

// New creates an empty deferred-work queue.
func New(log *logrus.Entry) *Queue {
	return &Queue{log: log}
}

// EnqueueEdge records a SAT record awaiting resolution.
func (q *Queue) EnqueueEdge(e PendingEdge) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.edges = append(q.edges, e)
}

// EnqueueBlockRepeat records a BX record awaiting resolution.
func (q *Queue) EnqueueBlockRepeat(r BlockRepeat) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeats = append(q.repeats, r)
}

// Len reports how many entries of each kind remain queued, for the
// backlog-out meter.
func (q *Queue) Len() (edges, repeats int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.edges), len(q.repeats)
}

// DrainEdges resolves every queued pendingEdges entry it can against s,
// materializing resolved pairs onto g and leaving the rest queued.
func (q *Queue) DrainEdges(s *store.Store, g *graph.Graph, threadID uint64) {
	q.mu.Lock()
	pending := q.edges
	q.edges = nil
	q.mu.Unlock()

	var retained []PendingEdge
	for _, e := range pending {
		srcBlock, ok := s.LookupBlock(e.SrcAddr, e.SrcID, peek)
		if !ok {
			retained = append(retained, e)
			continue
		}
		tgtBlock, ok := s.LookupBlock(e.TgtAddr, e.TgtID, peek)
		if !ok {
			retained = append(retained, e)
			continue
		}
		srcLast, srcOK := srcBlock.Last().NodeForThread(threadID)
		tgtFirst, tgtOK := tgtBlock.First().NodeForThread(threadID)
		if !srcOK || !tgtOK {
			retained = append(retained, e)
			continue
		}
		g.InsertEdgeBetweenBlocks(srcLast, tgtFirst)
	}

	q.mu.Lock()
	q.edges = append(retained, q.edges...)
	q.mu.Unlock()
}

// DrainBlockRepeats resolves every queued blockRepeatQueue entry it can
// against s: applying the replayed execution count along the block, then
// wiring or confirming each target block, leaving unresolved parts
// queued.
func (q *Queue) DrainBlockRepeats(s *store.Store, g *graph.Graph, threadID uint64) {
	q.mu.Lock()
	pending := q.repeats
	q.repeats = nil
	q.mu.Unlock()

	var retained []BlockRepeat
	for _, r := range pending {
		block, ok := s.LookupBlock(r.BlockAddr, r.BlockID, peek)
		if !ok {
			retained = append(retained, r)
			continue
		}
		if len(block.Instructions) == 0 {
			continue
		}
		_, firstOK := block.First().NodeForThread(threadID)
		lastNode, lastOK := block.Last().NodeForThread(threadID)
		if !firstOK || !lastOK {
			retained = append(retained, r)
			continue
		}

		limit := r.InsCount
		if limit > len(block.Instructions) {
			limit = len(block.Instructions)
		}
		for i := 0; i < limit; i++ {
			if idx, ok := block.Instructions[i].NodeForThread(threadID); ok {
				if node := g.GetNode(idx); node != nil {
					node.ExecCount += r.TotalExecs
				}
			}
		}

		var stillPending []TargetBlock
		exitNode := g.GetNode(lastNode)
		for _, tb := range r.TargetBlocks {
			tBlock, ok := s.LookupBlock(tb.Addr, tb.ID, peek)
			if !ok {
				// Targets resolved through an external call never show up
				// via LookupBlock; if the edge is already there, the
				// entry is satisfied and drops rather than lingering
				// forever.
				if exitNode != nil && outgoingEdgeTo(g, exitNode, tb.Addr) {
					continue
				}
				stillPending = append(stillPending, tb)
				continue
			}
			tFirstNode, ok := tBlock.First().NodeForThread(threadID)
			if !ok {
				stillPending = append(stillPending, tb)
				continue
			}

			g.InsertEdgeBetweenBlocks(lastNode, tFirstNode)
		}

		if len(stillPending) > 0 {
			r.TargetBlocks = stillPending
			retained = append(retained, r)
		}
	}

	q.mu.Lock()
	q.repeats = append(retained, q.repeats...)
	q.mu.Unlock()
}

// outgoingEdgeTo reports whether exitNode already has an outgoing edge to
// a node at addr, whether that node is instrumented (InstrAddr) or
// external (ExternAddr).
func outgoingEdgeTo(g *graph.Graph, exitNode *graph.Node, addr uint64) bool {
	for out := range exitNode.Outgoing {
		outNode := g.GetNode(out)
		if outNode == nil {
			continue
		}
		if outNode.InstrAddr == addr || (outNode.External && outNode.ExternAddr == addr) {
			return true
		}
	}
	return false
}
