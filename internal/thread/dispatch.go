package thread

import (
	"github.com/rgat-io/tracevis/internal/args"
	"github.com/rgat-io/tracevis/internal/deferred"
	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/layout"
	"github.com/rgat-io/tracevis/internal/loopbatch"
	"github.com/rgat-io/tracevis/internal/model"
	"github.com/rgat-io/tracevis/internal/protocol"
)

// dispatch decodes one '@'-delimited record and routes it to the handler
// for its verb. A decode failure is a malformed record: logged with the
// offending token and skipped, never fatal.
func (w *Worker) dispatch(record string) {
	decoded, err := protocol.Parse(record)
	if err != nil {
		w.log.WithField("record", record).WithError(err).Warn("skipping malformed record")
		return
	}

	switch rec := decoded.(type) {
	case protocol.TagRecord:
		w.handleTagRecord(rec)
	case protocol.LoopStartRecord:
		w.batcher.LoopStart(rec.Count)
	case protocol.LoopEndRecord:
		w.batcher.DumpLoop(func(tag loopbatch.Tag, repeats uint64) int {
			return w.handleTag(tag, repeats)
		})
		w.graph.AppendLoopState(loopStateFromBatcher(w.batcher))
	case protocol.ArgRecord:
		enc := args.EncodingLiteral
		if rec.Encoding == protocol.ArgEncodingBase64 {
			enc = args.EncodingBase64
		}
		w.argsCollector.HandleArg(args.Record{
			ArgPos:   rec.ArgPos,
			FuncPC:   rec.FuncPC,
			ReturnPC: rec.ReturnPC,
			More:     rec.More,
			Encoding: enc,
			Payload:  rec.Payload,
		})
		w.argsCollector.ProcessNewArgs(w.store, w.graph, w.ID)
	case protocol.UnchainedLinkRecord:
		w.handleUnchainedLink(rec)
	case protocol.BlockRepeatRecord:
		w.handleBlockRepeat(rec)
	case protocol.PendingEdgeRecord:
		w.deferredQ.EnqueueEdge(deferred.PendingEdge{
			SrcAddr: rec.SrcAddr,
			SrcID:   rec.SrcID,
			TgtAddr: rec.TgtAddr,
			TgtID:   rec.TgtID,
		})
	case protocol.ExceptionRecord:
		w.handleException(rec)
	}
}

// handleTagRecord implements the `j` verb: build a Tag from the decoded
// record, buffer it if a loop is being built or execute it immediately,
// then — if the block's successor address is non-zero and not itself
// instrumented — poll up to 10x for either an extern descriptor or a
// fresh disassembly there before enqueueing a second, zero-length
// Uninstrumented tag for it.
func (w *Worker) handleTagRecord(rec protocol.TagRecord) {
	tag := loopbatch.Tag{
		BlockAddr:    rec.BlockAddr,
		InsCount:     rec.InsCount,
		BlockID:      uint64(rec.BlockID),
		JumpModifier: loopbatch.Instrumented,
	}

	if w.batcher.Buffering() {
		w.batcher.Append(tag)
	} else {
		w.handleTag(tag, 1)
	}

	if rec.NextBlock == 0 {
		return
	}
	if mod := w.store.ModuleContaining(rec.NextBlock); mod != nil && mod.Status == model.Instrumented {
		return
	}

	pollBudget := w.lookupBudget
	pollBudget.MaxAttempts = 10
	if _, found := w.store.LookupExtern(rec.NextBlock, pollBudget); !found {
		w.store.LookupInstruction(rec.NextBlock, pollBudget)
	}

	followTag := loopbatch.Tag{
		BlockAddr:    rec.NextBlock,
		InsCount:     0,
		JumpModifier: loopbatch.Uninstrumented,
	}
	if w.batcher.Buffering() {
		w.batcher.Append(followTag)
	} else {
		w.handleTag(followTag, 1)
	}
}

// handleTag implements handle_tag: run the whole block for an
// Instrumented tag, or resolve it through the External-Call Binder
// for an Uninstrumented one, then update lastVertID and the animation
// sequence either way.
func (w *Worker) handleTag(tag loopbatch.Tag, repeats uint64) int {
	if tag.JumpModifier == loopbatch.Uninstrumented {
		targ, ok := w.binder.RunExternal(w.graph, w.lastVertID, tag.BlockAddr, repeats)
		if ok {
			w.lastVertID = targ
			w.lastRIPType = layout.ExternalTransition
			w.graph.AppendBBSequence(graph.BBSequenceEntry{BlockAddr: tag.BlockAddr, InsCount: int(tag.InsCount)})
		}
		return w.lastVertID
	}

	block, found := w.store.LookupBlock(tag.BlockAddr, model.BlockID(tag.BlockID), w.lookupBudget)
	if !found {
		w.log.WithField("addr", tag.BlockAddr).Warn("handle_tag: block never disassembled, dropping tag")
		return w.lastVertID
	}
	return w.runBB(block, repeats)
}

// handleUnchainedLink implements the `UL` verb: rebind lastVertID to the
// source block's last instruction's node (falling back to leaving
// lastVertID untouched if that instruction has no node for this thread
// yet, which indicates the upstream trace is out of order — logged and
// skipped rather than treated as a hard invariant violation), then
// execute the target block as a fresh tag with repeats = 1.
func (w *Worker) handleUnchainedLink(rec protocol.UnchainedLinkRecord) {
	srcBlock, found := w.store.LookupBlock(rec.SourceAddr, rec.SourceID, w.lookupBudget)
	if !found {
		w.log.WithField("addr", rec.SourceAddr).Warn("unchained link: source block never disassembled")
		return
	}
	last := srcBlock.Last()
	if last == nil {
		return
	}
	if idx, ok := last.NodeForThread(w.ID); ok {
		w.lastVertID = idx
	} else {
		w.log.WithField("addr", rec.SourceAddr).Warn("unchained link: source block has no node for this thread yet")
	}

	tag := loopbatch.Tag{
		BlockAddr:    rec.TargetAddr,
		InsCount:     rec.InsCount,
		BlockID:      uint64(rec.TargetID),
		JumpModifier: loopbatch.Instrumented,
	}
	w.handleTag(tag, 1)
}

// handleBlockRepeat implements the `BX` verb: queue the replayed
// execution for the deferred drain, which resolves it once every named
// block is known.
func (w *Worker) handleBlockRepeat(rec protocol.BlockRepeatRecord) {
	targets := make([]deferred.TargetBlock, 0, len(rec.Targets))
	for _, t := range rec.Targets {
		targets = append(targets, deferred.TargetBlock{Addr: t.Addr, ID: t.ID})
	}
	w.deferredQ.EnqueueBlockRepeat(deferred.BlockRepeat{
		BlockAddr:    rec.BlockAddr,
		BlockID:      rec.BlockID,
		InsCount:     int(rec.InsCount),
		TotalExecs:   rec.TotalExecs,
		TargetBlocks: targets,
	})
}

// handleException implements the `EXC` verb: locate the faulting
// instruction's block, count instructions up to and including the fault,
// and run it through run_faulting_BB. A fault in a module the store has
// no block table for at all (E5) is logged as a warning and otherwise
// treated as an external call, since the faulting address still names a
// real transition the graph must record.
func (w *Worker) handleException(rec protocol.ExceptionRecord) {
	block, found := w.store.BlockContaining(rec.IP)
	if !found {
		w.log.WithField("ip", rec.IP).Warn("exception in a module with no known block table, binding as external")
		if targ, ok := w.binder.RunExternal(w.graph, w.lastVertID, rec.IP, 1); ok {
			w.lastVertID = targ
		}
		return
	}

	insCount := 0
	for i, inst := range block.Instructions {
		if inst.Addr == rec.IP {
			insCount = i
			break
		}
	}

	w.lastVertID = w.runFaultingBB(block, insCount, 1)
}

func loopStateFromBatcher(b *loopbatch.Batcher) graph.LoopState {
	return graph.LoopState{
		StartNode: b.FirstLoopVert(),
		Repeats:   int(b.LoopCounter()),
	}
}
