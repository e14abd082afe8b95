package store

import (
	"testing"
	"time"

	"github.com/rgat-io/tracevis/internal/model"
	"github.com/rgat-io/tracevis/internal/retry"
)

func fastBudget(attempts int) retry.Budget {
	return retry.Budget{MaxAttempts: attempts, Base: time.Millisecond}
}

func TestLookupInstructionRetriesThenFindsConcurrentInsert(t *testing.T) {
	s := New(16)

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.InsertInstruction(model.NewInstruction(0x1000, 1, model.NonFlow, false, 0, 0))
	}()

	inst, ok := s.LookupInstruction(0x1000, fastBudget(10))
	if !ok {
		t.Fatal("expected instruction to resolve within retry budget")
	}
	if inst.Addr != 0x1000 {
		t.Errorf("Addr = %#x, want 0x1000", inst.Addr)
	}
}

func TestLookupInstructionExhaustsBudget(t *testing.T) {
	s := New(16)
	if _, ok := s.LookupInstruction(0xdead, fastBudget(3)); ok {
		t.Fatal("expected lookup to fail for never-inserted address")
	}
}

func TestLookupBlockFindsExisting(t *testing.T) {
	s := New(16)
	inst := model.NewInstruction(0x2000, 4, model.Jump, false, 0, 0)
	b := &model.Block{Addr: 0x2000, ID: 1, Instructions: []*model.Instruction{inst}}
	s.InsertBlock(b)

	got, ok := s.LookupBlock(0x2000, 1, fastBudget(1))
	if !ok || got != b {
		t.Fatalf("LookupBlock = %v, %v; want %v, true", got, ok, b)
	}
}

func TestExternCacheInvalidatedOnInsert(t *testing.T) {
	s := New(16)
	d := &model.ExternDescriptor{Addr: 0x3000, Symbol: "malloc"}
	s.InsertExternDescriptor(d)

	got, ok := s.LookupExtern(0x3000, fastBudget(1))
	if !ok || got.Symbol != "malloc" {
		t.Fatalf("LookupExtern = %+v, %v", got, ok)
	}
	if _, hit := s.cache.get(0x3000); !hit {
		t.Fatal("expected cache to be warmed after lookup")
	}

	updated := &model.ExternDescriptor{Addr: 0x3000, Symbol: "malloc@renamed"}
	s.InsertExternDescriptor(updated)

	got2, ok2 := s.LookupExtern(0x3000, fastBudget(1))
	if !ok2 || got2.Symbol != "malloc@renamed" {
		t.Fatalf("LookupExtern after invalidate = %+v, %v; want renamed", got2, ok2)
	}
}

func TestModuleContaining(t *testing.T) {
	s := New(16)
	s.InsertModule(&model.Module{Base: 0x400000, Size: 0x1000, Status: model.Instrumented, Path: "a.out"})
	s.InsertModule(&model.Module{Base: 0x7fff0000, Size: 0x2000, Status: model.Uninstrumented, Path: "libc.so"})

	m := s.ModuleContaining(0x7fff0010)
	if m == nil || m.Status != model.Uninstrumented {
		t.Fatalf("ModuleContaining = %+v, want libc.so/Uninstrumented", m)
	}
	if s.ModuleContaining(0x1) != nil {
		t.Fatal("expected no module to contain address 0x1")
	}
}
