// Package store implements the Process Data Store: the
// disassembly, extern descriptor and block tables shared read-mostly
// across all per-thread workers, plus the module table. Lookups share the
// read lock of a sync.RWMutex and inserts take its write lock; the lock
// does not favor readers (a waiting writer blocks new readers). Write
// locks are only ever held for the duration of an insertion, never
// across a sleep.
package store

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/logging"
	"github.com/rgat-io/tracevis/internal/model"
	"github.com/rgat-io/tracevis/internal/retry"
)

// Store is the process-wide disassembly/extern/block/module table. All
// its fields are guarded by mu; see cache.go for the LRU read-through
// layer in front of externdict lookups.
type Store struct {
	mu sync.RWMutex

	disassembly map[uint64][]*model.Instruction   // addr -> mutation list, latest = current
	blocklist   map[uint64]map[model.BlockID]*model.Block
	externdict  map[uint64]*model.ExternDescriptor
	modules     []*model.Module

	cache *externCache
	log   *logrus.Entry
}

// New creates an empty Process Data Store with an LRU cache of the given
// size in front of extern descriptor lookups.
func New(cacheSize int) *Store {
	return &Store{
		disassembly: make(map[uint64][]*model.Instruction),
		blocklist:   make(map[uint64]map[model.BlockID]*model.Block),
		externdict:  make(map[uint64]*model.ExternDescriptor),
		cache:       newExternCache(cacheSize),
		log:         logging.For("store"),
	}
}

// InsertInstruction appends inst as the latest mutation at its address.
func (s *Store) InsertInstruction(inst *model.Instruction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disassembly[inst.Addr] = append(s.disassembly[inst.Addr], inst)
}

// InsertBlock registers a disassembled block.
func (s *Store) InsertBlock(b *model.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.blocklist[b.Addr]
	if !ok {
		byID = make(map[model.BlockID]*model.Block)
		s.blocklist[b.Addr] = byID
	}
	byID[b.ID] = b
}

// InsertExternDescriptor registers a newly resolved extern target and
// invalidates any stale cache entry for it.
func (s *Store) InsertExternDescriptor(d *model.ExternDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externdict[d.Addr] = d
	s.cache.invalidate(d.Addr)
}

// InsertModule registers a newly loaded module.
func (s *Store) InsertModule(m *model.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Index = len(s.modules)
	s.modules = append(s.modules, m)
}

// currentMutation returns the latest (current) instruction disassembled
// at addr, under a read lock.
func (s *Store) currentMutation(addr uint64) (*model.Instruction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.disassembly[addr]
	if len(list) == 0 {
		return nil, false
	}
	return list[len(list)-1], true
}

// block returns the block at (addr, id), under a read lock.
func (s *Store) block(addr uint64, id model.BlockID) (*model.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID, ok := s.blocklist[addr]
	if !ok {
		return nil, false
	}
	b, ok := byID[id]
	return b, ok
}

// externLocked returns the extern descriptor for addr, under a read lock,
// bypassing the cache (used by the cache's own miss path).
func (s *Store) externLocked(addr uint64) (*model.ExternDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.externdict[addr]
	return d, ok
}

// ModuleContaining returns the module owning addr, if any, under a read
// lock. Returns nil if no loaded module's range contains addr.
func (s *Store) ModuleContaining(addr uint64) *model.Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.modules {
		if m.Contains(addr) {
			return m
		}
	}
	return nil
}

// BlockContaining scans known blocks for one holding an instruction at
// addr exactly, used to locate the faulting block for an EXC record since
// that record names only an instruction pointer, not a block identity.
// Linear in the number of known blocks; exceptions are rare enough that
// this is not on a hot path.
func (s *Store) BlockContaining(addr uint64) (*model.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, byID := range s.blocklist {
		for _, b := range byID {
			for _, inst := range b.Instructions {
				if inst.Addr == addr {
					return b, true
				}
			}
		}
	}
	return nil, false
}

// LookupBlock resolves (addr, id) with bounded retry: a miss
// sleeps briefly via internal/retry and tries again, releasing the read
// lock before every sleep. Ultimate failure returns found=false, which
// the caller treats as "not yet known" and queues or logs — never aborts.
func (s *Store) LookupBlock(addr uint64, id model.BlockID, budget retry.Budget) (*model.Block, bool) {
	var result *model.Block
	found, _ := retry.Do(budget, func(attempt int) (bool, error) {
		b, ok := s.block(addr, id)
		if ok {
			result = b
			return true, nil
		}
		return false, nil
	})
	if !found {
		s.log.WithField("addr", addr).WithField("block_id", id).Warn("block not disassembled after retry budget exhausted")
	}
	return result, found
}

// LookupInstruction resolves an address's current instruction with
// bounded retry, same shape as LookupBlock.
func (s *Store) LookupInstruction(addr uint64, budget retry.Budget) (*model.Instruction, bool) {
	var result *model.Instruction
	found, _ := retry.Do(budget, func(attempt int) (bool, error) {
		inst, ok := s.currentMutation(addr)
		if ok {
			result = inst
			return true, nil
		}
		return false, nil
	})
	if !found {
		s.log.WithField("addr", addr).Warn("instruction not disassembled after retry budget exhausted")
	}
	return result, found
}

// LookupExtern resolves an extern descriptor with bounded retry, checking
// the LRU cache first on every attempt.
func (s *Store) LookupExtern(addr uint64, budget retry.Budget) (*model.ExternDescriptor, bool) {
	var result *model.ExternDescriptor
	found, _ := retry.Do(budget, func(attempt int) (bool, error) {
		if d, ok := s.cache.get(addr); ok {
			result = d
			return true, nil
		}
		d, ok := s.externLocked(addr)
		if ok {
			s.cache.put(addr, d)
			result = d
			return true, nil
		}
		return false, nil
	})
	if !found {
		s.log.WithField("addr", addr).Warn("extern descriptor not known after retry budget exhausted")
	}
	return result, found
}

// WithExternWriteLock runs fn with the store's write lock held, for
// callers that need to insert a new caller edge into an existing
// ExternDescriptor's ThreadCallers map — this map is mutated while other
// threads may read it, and must be guarded by this same lock for every
// insert/append.
func (s *Store) WithExternWriteLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// WithWriteLock runs fn with the store's write lock held. Used for any
// other shared mutable field guarded by the same lock — notably
// Instruction.BindThread's nodeFor map — so every caller states
// its own intent rather than reusing WithExternWriteLock's name for an
// unrelated field.
func (s *Store) WithWriteLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}
