package store

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rgat-io/tracevis/internal/model"
)

// externCache is a bounded read-through cache in front of the extern
// descriptor table: a hit avoids taking the store's read
// lock entirely. It is safe for concurrent use independent of Store.mu —
// callers invalidate it themselves on write.
type externCache struct {
	mu sync.Mutex
	c  *lru.Cache[uint64, *model.ExternDescriptor]
}

func newExternCache(size int) *externCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[uint64, *model.ExternDescriptor](size)
	return &externCache{c: c}
}

func (e *externCache) get(addr uint64) (*model.ExternDescriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Get(addr)
}

func (e *externCache) put(addr uint64, d *model.ExternDescriptor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.c.Add(addr, d)
}

func (e *externCache) invalidate(addr uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.c.Remove(addr)
}
