package thread

import (
	"github.com/rgat-io/tracevis/internal/assert"
	"github.com/rgat-io/tracevis/internal/callstack"
	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/layout"
	"github.com/rgat-io/tracevis/internal/model"
)

// runBB walks an instrumented tag's block instructions in order, placing
// or reusing a node for each, wiring the edge from the running
// lastVertID, and advancing lastRIPType/afterReturn exactly as the rule
// table prescribes. It returns the final node's index, which becomes the
// caller's new lastVertID.
func (w *Worker) runBB(block *model.Block, repeats uint64) int {
	return w.walkBlock(block, len(block.Instructions), repeats, false)
}

// runFaultingBB implements run_faulting_BB: identical to runBB except it
// may process one instruction beyond insCount (the faulting instruction
// itself), and forces that tail instruction's transition to
// ExceptionGeneratorTransition and marks it in the highlight set.
func (w *Worker) runFaultingBB(block *model.Block, insCount int, repeats uint64) int {
	limit := insCount + 1
	if limit > len(block.Instructions) {
		limit = len(block.Instructions)
	}
	return w.walkBlock(block, limit, repeats, true)
}

func (w *Worker) walkBlock(block *model.Block, limit int, repeats uint64, faulting bool) int {
	for i := 0; i < limit; i++ {
		inst := block.Instructions[i]
		faultTail := faulting && i == limit-1
		w.processInstruction(inst, i == 0, faultTail, repeats)
	}
	w.graph.AppendBBSequence(graph.BBSequenceEntry{
		BlockAddr: block.Addr,
		InsCount:  limit,
	})
	return w.lastVertID
}

// processInstruction places or reuses the node for inst, wires the
// incoming edge, and advances the worker's transition state.
func (w *Worker) processInstruction(inst *model.Instruction, firstInBlock, faultTail bool, repeats uint64) {
	armedBefore := w.afterReturn
	targVertID, existed := w.nodeForInstruction(inst)

	node := w.graph.GetNode(targVertID)
	assert.Invariant(w.log, node != nil, "placed node missing immediately after insertion", nil)
	if existed {
		node.ExecCount += repeats
	} else {
		node.ExecCount = repeats
	}

	if w.lastVertID != -1 {
		if _, ok := w.graph.EdgeExists(w.lastVertID, targVertID); !ok {
			class := w.classifyEdge(firstInBlock, existed)
			w.graph.AddEdge(w.lastVertID, targVertID, class)
		}
	}

	var rip layout.Transition
	switch {
	case faultTail:
		rip = layout.ExceptionGeneratorTransition
		w.graph.MarkException(targVertID)
	case inst.Class == model.Call:
		rip = layout.CallTransition
		w.calls.Push(callstack.Frame{
			CallerNode:  targVertID,
			CallerCoord: node.Coord,
			ReturnPC:    inst.Addr + uint64(inst.Length),
		})
	case inst.Class == model.Jump:
		rip = layout.JumpTransition
	case inst.Class == model.Return:
		rip = layout.ReturnTransition
	default:
		rip = layout.NonFlowTransition
	}

	w.lastRIPType = rip
	if armedBefore {
		w.afterReturn = false
	}
	w.lastVertID = targVertID
}

// classifyEdge implements the edge-class table, evaluated top-to-bottom.
func (w *Worker) classifyEdge(firstInBlock, targetExisted bool) graph.EdgeClass {
	switch {
	case !firstInBlock && !targetExisted:
		return graph.ClassNew
	case !firstInBlock && targetExisted:
		return graph.ClassOld
	case firstInBlock && w.lastRIPType == layout.ReturnTransition:
		return graph.ClassReturn
	case firstInBlock && w.lastRIPType == layout.ExceptionGeneratorTransition:
		return graph.ClassException
	case firstInBlock && targetExisted:
		return graph.ClassOld
	case firstInBlock && w.lastRIPType == layout.CallTransition:
		return graph.ClassCall
	default:
		return graph.ClassNew
	}
}

// nodeForInstruction returns the node index representing inst on this
// thread, creating and placing one via the layout engine if this is the
// first time this thread has executed inst.
func (w *Worker) nodeForInstruction(inst *model.Instruction) (int, bool) {
	if idx, ok := inst.NodeForThread(w.ID); ok {
		return idx, true
	}

	transition := w.transitionForNext()
	var prevCoord layout.VCoord
	var prevConditional bool
	var prevTakenTarget uint64
	if w.lastVertID != -1 {
		if prev := w.graph.GetNode(w.lastVertID); prev != nil {
			prevCoord = prev.Coord
			if prevInst, ok := w.store.LookupInstruction(prev.InstrAddr, w.lookupBudget); ok {
				prevConditional = prevInst.Conditional
				prevTakenTarget = prevInst.TakenTarget
			}
		}
	}

	coord, arm := layout.Position(layout.Input{
		Transition:      transition,
		PrevCoord:       prevCoord,
		PrevConditional: prevConditional,
		PrevTakenTarget: prevTakenTarget,
		TargetAddr:      inst.Addr,
	}, w.occ, w.calls, w.log)

	idx := w.graph.NextIndex()
	n := graph.NewNode(idx, w.lastVertID)
	n.InstrAddr = inst.Addr
	n.MutationGen = inst.MutationGeneration()
	n.Coord = coord
	w.graph.InsertNode(n)

	w.store.WithWriteLock(func() {
		inst.BindThread(w.ID, idx)
	})

	if arm {
		w.afterReturn = true
	}

	return idx, false
}

// transitionForNext folds the worker's running state into the layout
// engine's Transition enum: the very first node of the thread, a
// one-shot AfterReturn placement, or whatever the last instruction's
// opcode class left behind.
func (w *Worker) transitionForNext() layout.Transition {
	if w.lastVertID == -1 {
		return layout.FirstInThread
	}
	if w.afterReturn {
		return layout.AfterReturnTransition
	}
	return w.lastRIPType
}
