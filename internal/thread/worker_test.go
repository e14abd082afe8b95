package thread

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rgat-io/tracevis/internal/config"
	"github.com/rgat-io/tracevis/internal/logging"
	"github.com/rgat-io/tracevis/internal/model"
	"github.com/rgat-io/tracevis/internal/notify"
	"github.com/rgat-io/tracevis/internal/savesignal"
	"github.com/rgat-io/tracevis/internal/store"
)

// chunkReader replays a fixed list of byte chunks, then signals pipe
// closed, implementing traceio.Reader without any real pipe.
type chunkReader struct {
	chunks [][]byte
	i      int
}

func (r *chunkReader) Read() (int, []byte) {
	if r.i >= len(r.chunks) {
		return -1, nil
	}
	c := r.chunks[r.i]
	r.i++
	return len(c), c
}

func testConfig() *config.Config {
	return &config.Config{
		Retry:           config.RetryConfig{MaxAttempts: 3, BaseIntervalMS: 1},
		Deferred:        config.DeferredConfig{WakePeriodMS: 20, DrainPasses: 3},
		NodeArgCapacity: 8,
	}
}

func newTestWorker(t *testing.T, s *store.Store, reader *chunkReader) *Worker {
	t.Helper()
	cfg := testConfig()
	log := logging.For("thread-test")
	return NewWorker(1, s, reader, cfg, savesignal.New(cfg), notify.New(cfg), nil, log)
}

func disassembleStraightLineBlock(s *store.Store, blockAddr uint64, n int) *model.Block {
	insts := make([]*model.Instruction, n)
	for i := 0; i < n; i++ {
		insts[i] = model.NewInstruction(blockAddr+uint64(i*4), 4, model.NonFlow, false, 0, 0)
		s.InsertInstruction(insts[i])
	}
	b := &model.Block{Addr: blockAddr, ID: 0, Instructions: insts}
	s.InsertBlock(b)
	return b
}

func TestWorkerRunsSingleStraightLineBlock(t *testing.T) {
	s := store.New(16)
	disassembleStraightLineBlock(s, 0x1000, 3)

	rec := fmt.Sprintf("j%x,0,%x", uint64(0x1000), uint64(3))
	reader := &chunkReader{chunks: [][]byte{[]byte(rec + "@")}}
	w := newTestWorker(t, s, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Run(ctx)

	if got := w.graph.NodeCount(); got != 3 {
		t.Fatalf("expected 3 nodes, got %d", got)
	}
	if got := w.graph.EdgeCount(); got != 2 {
		t.Fatalf("expected 2 intra-block edges, got %d", got)
	}
	terminated, final := w.graph.Terminated()
	if !terminated {
		t.Fatalf("expected graph to be terminated after pipe close")
	}
	if final != w.lastVertID {
		t.Fatalf("finalNodeID = %d, want lastVertID %d", final, w.lastVertID)
	}
}

func TestWorkerReplaysLoopBatch(t *testing.T) {
	s := store.New(16)
	disassembleStraightLineBlock(s, 0x2000, 2)

	tag := fmt.Sprintf("j%x,0,%x", uint64(0x2000), uint64(2))
	records := "◆S3@" + tag + "@" + "◆E@"
	reader := &chunkReader{chunks: [][]byte{[]byte(records)}}
	w := newTestWorker(t, s, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Run(ctx)

	if got := w.graph.NodeCount(); got != 2 {
		t.Fatalf("expected 2 nodes (loop replays onto the same nodes), got %d", got)
	}
	node := w.graph.GetNode(0)
	if node == nil {
		t.Fatalf("expected node 0 to exist")
	}
	if node.ExecCount != 3 {
		t.Fatalf("expected first node's exec count to be bumped by repeats=3, got %d", node.ExecCount)
	}
}

func TestWorkerExceptionBindsFaultingInstructionAndHighlights(t *testing.T) {
	s := store.New(16)
	disassembleStraightLineBlock(s, 0x3000, 4)

	rec := fmt.Sprintf("EXC ,%x,%x,%x", uint64(0x3008), uint64(0xc0000005), uint64(0))
	reader := &chunkReader{chunks: [][]byte{[]byte(rec + "@")}}
	w := newTestWorker(t, s, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Run(ctx)

	if got := w.graph.NodeCount(); got != 3 {
		t.Fatalf("expected 3 nodes processed up to and including the fault, got %d", got)
	}
	if !w.graph.IsException(w.lastVertID) {
		t.Fatalf("expected faulting node %d to be marked in the exception set", w.lastVertID)
	}
}

// A tag whose nextBlock address falls in an uninstrumented module is
// immediately followed, per the poll-then-run-external rule, by a
// synthetic Uninstrumented tag the worker resolves through the
// External-Call Binder without that tag ever appearing on the wire.
func TestWorkerFollowsUninstrumentedNextBlockIntoExternalCall(t *testing.T) {
	s := store.New(16)
	callInst := model.NewInstruction(0x4000, 5, model.Call, false, 0, 0)
	s.InsertInstruction(callInst)
	s.InsertBlock(&model.Block{Addr: 0x4000, ID: 0, Instructions: []*model.Instruction{callInst}})

	s.InsertModule(&model.Module{Base: 0x9000, Size: 0x1000, Status: model.Uninstrumented, Path: "libc.so"})
	s.InsertExternDescriptor(&model.ExternDescriptor{Addr: 0x9010, ModuleIndex: 0, Symbol: "malloc"})

	tag := fmt.Sprintf("j%x,%x,%x", uint64(0x4000), uint64(0x9010), uint64(1))
	reader := &chunkReader{chunks: [][]byte{[]byte(tag + "@")}}
	w := newTestWorker(t, s, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Run(ctx)

	if got := w.graph.NodeCount(); got != 2 {
		t.Fatalf("expected the call node plus one synthesized external node, got %d", got)
	}
	externNode := w.graph.GetNode(1)
	if externNode == nil || !externNode.External {
		t.Fatalf("expected node 1 to be the external node bound to the resolved extern descriptor")
	}
	if externNode.ExternAddr != 0x9010 {
		t.Fatalf("expected external node's address to be 0x9010, got %#x", externNode.ExternAddr)
	}
}
