// Package model holds the data types shared across the tracevis core:
// instructions, basic blocks, modules and extern descriptors.
package model

// OpClass is the control-flow classification of an instruction. It lives on
// the Instruction itself, decoded once by the disassembler, so handlers
// never have to re-decode an opcode to find out what it does.
type OpClass uint8

const (
	NonFlow OpClass = iota
	Call
	Jump
	Return
)

func (c OpClass) String() string {
	switch c {
	case Call:
		return "Call"
	case Jump:
		return "Jump"
	case Return:
		return "Return"
	default:
		return "NonFlow"
	}
}

// BlockID distinguishes self-modified variants of a block at the same
// address; it is monotonic per-address.
type BlockID uint64

// Mutation records one (address, block-id) pair where an instruction
// appears, i.e. one self-modification generation of the code at that
// address.
type Mutation struct {
	Addr    uint64
	BlockID BlockID
}

// Instruction is immutable after disassembly. Addr is its linear address;
// thread node mapping is owned by the per-thread graph, not here, except
// for the lightweight NodeFor cache below which exists purely to
// guarantee exactly one node per (instruction, thread) pair cheaply
// without a global lock per lookup.
type Instruction struct {
	Addr         uint64
	Length       int
	Class        OpClass
	TakenTarget  uint64 // valid only for conditional branches; 0 otherwise
	Conditional  bool
	Mutations    []Mutation
	mutationGen  int // index of this Instruction within its address's mutation list

	nodeFor map[uint64]int // thread id -> node index, mutated under the store's write lock
}

// NewInstruction builds an immutable Instruction record for a freshly
// disassembled address.
func NewInstruction(addr uint64, length int, class OpClass, conditional bool, takenTarget uint64, gen int) *Instruction {
	return &Instruction{
		Addr:        addr,
		Length:      length,
		Class:       class,
		Conditional: conditional,
		TakenTarget: takenTarget,
		mutationGen: gen,
		nodeFor:     make(map[uint64]int, 1),
	}
}

// MutationGeneration is the index of this Instruction among the mutation
// list for its address (latest element == current mutation).
func (i *Instruction) MutationGeneration() int { return i.mutationGen }

// NodeForThread returns the node index this instruction became for the
// given thread, if any.
func (i *Instruction) NodeForThread(threadID uint64) (int, bool) {
	idx, ok := i.nodeFor[threadID]
	return idx, ok
}

// BindThread records that this instruction became node idx for the given
// thread. Caller must hold the Process Data Store's write lock — the
// nodeFor map is shared mutable state across threads.
func (i *Instruction) BindThread(threadID uint64, idx int) {
	i.nodeFor[threadID] = idx
}
