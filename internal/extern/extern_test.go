package extern

import (
	"testing"

	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/logging"
	"github.com/rgat-io/tracevis/internal/model"
	"github.com/rgat-io/tracevis/internal/retry"
	"github.com/rgat-io/tracevis/internal/store"
)

func fastBudget() retry.Budget { return retry.Budget{MaxAttempts: 2, Base: time1ms} }

const time1ms = 1000000 // nanoseconds, avoids importing time just for a literal

func setup(t *testing.T) (*store.Store, *graph.Graph, int) {
	t.Helper()
	s := store.New(16)
	s.InsertModule(&model.Module{Base: 0, Size: 0x1000, Status: model.Instrumented})
	s.InsertExternDescriptor(&model.ExternDescriptor{Addr: 0x5000, ModuleIndex: 0})

	g := graph.New(1)
	caller := graph.NewNode(g.NextIndex(), -1)
	caller.InstrAddr = 0x100
	g.InsertNode(caller)
	return s, g, caller.Index
}

func TestRunExternalCreatesNewNode(t *testing.T) {
	s, g, callerIdx := setup(t)
	b := New(s, fastBudget(), logging.For("test"))

	idx, ok := b.RunExternal(g, callerIdx, 0x5000, 1)
	if !ok {
		t.Fatal("expected success")
	}
	targ := g.GetNode(idx)
	if !targ.External || targ.ExternAddr != 0x5000 {
		t.Fatalf("target node = %+v", targ)
	}
	if e, found := g.EdgeExists(callerIdx, idx); !found || e.Class != graph.ClassLibrary {
		t.Fatalf("expected library edge, got %+v %v", e, found)
	}
}

func TestRunExternalDedupesRepeatedCall(t *testing.T) {
	s, g, callerIdx := setup(t)
	b := New(s, fastBudget(), logging.For("test"))

	idx1, _ := b.RunExternal(g, callerIdx, 0x5000, 1)
	idx2, ok := b.RunExternal(g, callerIdx, 0x5000, 3)
	if !ok || idx1 != idx2 {
		t.Fatalf("expected dedup to same node, got %d vs %d", idx1, idx2)
	}
	if g.GetNode(idx1).ExecCount != 4 {
		t.Fatalf("exec count = %d, want 4", g.GetNode(idx1).ExecCount)
	}
	if g.NodeCount() != 2 {
		t.Fatalf("node count = %d, want 2 (no duplicate created)", g.NodeCount())
	}
}

func TestRunExternalNewNodeIgnoresRepeatsForExecCount(t *testing.T) {
	s, g, callerIdx := setup(t)
	b := New(s, fastBudget(), logging.For("test"))

	idx, ok := b.RunExternal(g, callerIdx, 0x5000, 5)
	if !ok {
		t.Fatal("expected success")
	}
	targ := g.GetNode(idx)
	if targ.ExecCount != 1 || targ.CallCount != 1 {
		t.Fatalf("new external node counts = %d/%d, want 1/1 regardless of repeats", targ.ExecCount, targ.CallCount)
	}
}

func TestRunExternalRecordsExternCallSequence(t *testing.T) {
	s, g, callerIdx := setup(t)
	b := New(s, fastBudget(), logging.For("test"))

	idx1, _ := b.RunExternal(g, callerIdx, 0x5000, 1)
	idx2, _ := b.RunExternal(g, callerIdx, 0x5000, 1)

	seq := g.ExternCallSequence(callerIdx)
	if len(seq) != 2 {
		t.Fatalf("extern call sequence = %+v, want 2 entries", seq)
	}
	if seq[0].TargetNode != idx1 || seq[1].TargetNode != idx2 {
		t.Fatalf("extern call sequence targets = %+v", seq)
	}
}

func TestRunExternalRejectsExternalCaller(t *testing.T) {
	s, g, callerIdx := setup(t)
	b := New(s, fastBudget(), logging.For("test"))

	idx, _ := b.RunExternal(g, callerIdx, 0x5000, 1)
	g.GetNode(idx).InstrAddr = 0
	_, ok := b.RunExternal(g, idx, 0x5000, 1)
	if ok {
		t.Fatal("external->external chaining must be rejected")
	}
}

func TestRunExternalUnresolvedDescriptorFails(t *testing.T) {
	s, g, callerIdx := setup(t)
	b := New(s, fastBudget(), logging.For("test"))

	_, ok := b.RunExternal(g, callerIdx, 0xdeadbeef, 1)
	if ok {
		t.Fatal("expected failure for an address with no extern descriptor")
	}
}
