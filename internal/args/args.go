// Package args implements the argument collector: handle_arg buffers a
// call's argument records until its end-of-call marker, then
// process_new_args drains buffered lists into each call's target node
// (bounded) and into the always-delivered UI queue. Buffered lists are
// held in a map-of-maps keyed first by function address, then by return
// address.
package args

import (
	"encoding/base64"
	"sync"

	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/retry"
	"github.com/rgat-io/tracevis/internal/store"
)

// Encoding is the one-byte marker accompanying each ARG record's payload.
type Encoding uint8

const (
	EncodingLiteral Encoding = iota
	EncodingBase64
)

// Record is one parsed ARG wire record.
type Record struct {
	ArgPos   int
	FuncPC   uint64
	ReturnPC uint64
	More     bool // true for 'M' (more to come), false for 'E' (end of call)
	Encoding Encoding
	Payload  []byte
}

// Collector buffers per-call argument lists until each call's end marker,
// then exposes ProcessNewArgs to drain whatever can now be resolved. It is
// owned by a single thread worker; its methods serialize on mu.
type Collector struct {
	mu sync.Mutex

	pending []graph.ArgEntry // accumulating for the current (not-yet-ended) call

	// pendingCallArgs: funcPC -> returnPC -> ordered arg-lists awaiting a
	// resolvable extern descriptor.
	pendingCallArgs map[uint64]map[uint64][][]graph.ArgEntry

	capacity int
}

// New creates a Collector that stores up to capacity argument lists per
// node once drained.
func New(capacity int) *Collector {
	return &Collector{
		pendingCallArgs: make(map[uint64]map[uint64][][]graph.ArgEntry),
		capacity:        capacity,
	}
}

// HandleArg implements handle_arg: append one captured argument to the
// currently-accumulating list, decoding it first if base64-marked, and on
// the end-of-call marker move the accumulated list into pendingCallArgs.
func (c *Collector) HandleArg(rec Record) {
	payload := rec.Payload
	if rec.Encoding == EncodingBase64 {
		decoded, err := base64.StdEncoding.DecodeString(string(rec.Payload))
		if err == nil {
			payload = decoded
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, graph.ArgEntry{Pos: rec.ArgPos, Payload: payload})
	if rec.More {
		return
	}

	byReturn, ok := c.pendingCallArgs[rec.FuncPC]
	if !ok {
		byReturn = make(map[uint64][][]graph.ArgEntry)
		c.pendingCallArgs[rec.FuncPC] = byReturn
	}
	byReturn[rec.ReturnPC] = append(byReturn[rec.ReturnPC], c.pending)
	c.pending = nil
}

// ProcessNewArgs implements process_new_args: for every function address
// whose extern descriptor is now known and which has at least one caller
// on this thread, drain every buffered arg-list for it into the caller
// whose call-site address matches the bucket's returnPC (bounded by
// capacity on the target node, unbounded on the graph's floating-args
// queue), then forget the drained entries. Functions not yet resolved, or
// with no matching caller yet on this thread, are left for the next pass.
func (c *Collector) ProcessNewArgs(s *store.Store, g *graph.Graph, threadID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oneShot := retry.Budget{MaxAttempts: 1, Base: 0}

	for funcPC, byReturn := range c.pendingCallArgs {
		desc, found := s.LookupExtern(funcPC, oneShot)
		if !found {
			continue
		}
		callers := desc.ThreadCallers[threadID]
		if len(callers) == 0 {
			continue
		}

		for returnPC, argLists := range byReturn {
			matched := false
			for _, caller := range callers {
				callerNode := g.GetNode(caller.CallerNode)
				if callerNode == nil || callerNode.InstrAddr != returnPC {
					continue
				}
				target := g.GetNode(caller.TargetNode)
				if target == nil {
					continue
				}
				matched = true
				for _, list := range argLists {
					target.AddFuncArgs(list, c.capacity)
					g.PushFloatingExtern(graph.FloatingExtern{Node: caller.TargetNode, Args: list})
				}
			}
			if matched {
				delete(byReturn, returnPC)
			}
		}
		if len(byReturn) == 0 {
			delete(c.pendingCallArgs, funcPC)
		}
	}
}
