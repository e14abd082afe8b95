package graph

// BBSequenceEntry is one replayed entry of bbsequence: the ordered list
// of (block address, instruction count) pairs a thread has executed,
// including the faulting instruction when run_faulting_BB applies.
type BBSequenceEntry struct {
	BlockAddr uint64
	InsCount  int
}

// MutationEntry records one self-modifying-code event on mutationSequence.
type MutationEntry struct {
	Addr    uint64
	BlockID uint64
	Gen     int
}

// LoopState is one entry of loopStateList: the replay record produced by
// dump_loop for a completed batch.
type LoopState struct {
	StartNode int
	NodeSeq   []int
	Repeats   int
}

// FloatingExtern is one queued-but-undelivered argument-capture event
// destined for the UI floating-args overlay; this queue, unlike
// Node.FuncArgs, is never capacity-bounded — it is the guaranteed-delivery
// path.
type FloatingExtern struct {
	Node int
	Args []ArgEntry
}

// --- animation lock: bbSequence, mutationSequence, loopStateList ---

// AppendBBSequence records one executed block into the replay sequence.
func (g *Graph) AppendBBSequence(e BBSequenceEntry) {
	g.animMu.Lock()
	defer g.animMu.Unlock()
	g.bbSequence = append(g.bbSequence, e)
}

// BBSequence returns a snapshot copy of the replay sequence.
func (g *Graph) BBSequence() []BBSequenceEntry {
	g.animMu.Lock()
	defer g.animMu.Unlock()
	out := make([]BBSequenceEntry, len(g.bbSequence))
	copy(out, g.bbSequence)
	return out
}

// AppendMutation records a self-modifying-code event.
func (g *Graph) AppendMutation(e MutationEntry) {
	g.animMu.Lock()
	defer g.animMu.Unlock()
	g.mutationSequence = append(g.mutationSequence, e)
}

// AppendLoopState records a completed loop batch's replay record.
func (g *Graph) AppendLoopState(s LoopState) {
	g.animMu.Lock()
	defer g.animMu.Unlock()
	g.loopStateList = append(g.loopStateList, s)
}

// LoopStates returns a snapshot copy of the loop replay list.
func (g *Graph) LoopStates() []LoopState {
	g.animMu.Lock()
	defer g.animMu.Unlock()
	out := make([]LoopState, len(g.loopStateList))
	copy(out, g.loopStateList)
	return out
}

// --- highlights lock: exceptionSet, externList ---

// MarkException adds a node to the exception highlight set.
func (g *Graph) MarkException(node int) {
	g.highlightMu.Lock()
	defer g.highlightMu.Unlock()
	g.exceptionSet[node] = struct{}{}
}

// IsException reports whether a node is in the exception highlight set.
func (g *Graph) IsException(node int) bool {
	g.highlightMu.Lock()
	defer g.highlightMu.Unlock()
	_, ok := g.exceptionSet[node]
	return ok
}

// AppendExternList records a node as an external-call target for
// highlighting.
func (g *Graph) AppendExternList(node int) {
	g.highlightMu.Lock()
	defer g.highlightMu.Unlock()
	g.externList = append(g.externList, node)
}

// ExternList returns a snapshot copy of the external-call highlight list.
func (g *Graph) ExternList() []int {
	g.highlightMu.Lock()
	defer g.highlightMu.Unlock()
	out := make([]int, len(g.externList))
	copy(out, g.externList)
	return out
}

// --- args lock: floatingExternsQueue ---

// PushFloatingExtern enqueues an unbounded argument-capture event for UI
// delivery.
func (g *Graph) PushFloatingExtern(f FloatingExtern) {
	g.argsMu.Lock()
	defer g.argsMu.Unlock()
	g.floatingExternsQueue = append(g.floatingExternsQueue, f)
}

// DrainFloatingExterns removes and returns every queued entry.
func (g *Graph) DrainFloatingExterns() []FloatingExtern {
	g.argsMu.Lock()
	defer g.argsMu.Unlock()
	out := g.floatingExternsQueue
	g.floatingExternsQueue = nil
	return out
}
