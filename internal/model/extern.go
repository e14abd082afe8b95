package model

// ExternEdge is one materialized (caller-node, target-node) pair for a
// thread that has already called into an extern target.
type ExternEdge struct {
	CallerNode int
	TargetNode int
}

// ExternDescriptor describes an address resolved to lie outside
// instrumented code: which module owns it, its symbol (if known), and the
// per-thread edges already materialized for it.
//
// ThreadCallers is mutated while other threads may be reading it; callers
// must hold the owning store's write lock for every insert or append — a
// single coarse lock rather than per-key locking or sync.Map, since
// inserts are rare relative to reads (see DESIGN.md's "Open Questions
// resolved").
type ExternDescriptor struct {
	Addr          uint64
	ModuleIndex   int
	Symbol        string
	ThreadCallers map[uint64][]ExternEdge
}

// EdgeFor returns the existing (caller, target) edge materialized for
// callerNode on the given thread, if any.
func (d *ExternDescriptor) EdgeFor(threadID uint64, callerNode int) (ExternEdge, bool) {
	for _, e := range d.ThreadCallers[threadID] {
		if e.CallerNode == callerNode {
			return e, true
		}
	}
	return ExternEdge{}, false
}

// AddEdge records a new (caller, target) edge for the given thread.
// Caller must hold the owning store's write lock.
func (d *ExternDescriptor) AddEdge(threadID uint64, e ExternEdge) {
	if d.ThreadCallers == nil {
		d.ThreadCallers = make(map[uint64][]ExternEdge, 1)
	}
	d.ThreadCallers[threadID] = append(d.ThreadCallers[threadID], e)
}
