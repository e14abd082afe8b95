// Package thread implements the per-thread worker loop: the top level of
// the protocol parser and dispatcher that ties the call-stack tracker,
// external-call binder, argument collector and loop batcher into the
// layout engine and graph store, with deferred work draining on its own
// cadence. Lifecycle follows a cancellable context, a background ticker
// goroutine, and a graceful drain before exit.
package thread

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/args"
	"github.com/rgat-io/tracevis/internal/callstack"
	"github.com/rgat-io/tracevis/internal/config"
	"github.com/rgat-io/tracevis/internal/deferred"
	"github.com/rgat-io/tracevis/internal/extern"
	"github.com/rgat-io/tracevis/internal/graph"
	"github.com/rgat-io/tracevis/internal/layout"
	"github.com/rgat-io/tracevis/internal/loopbatch"
	"github.com/rgat-io/tracevis/internal/metrics"
	"github.com/rgat-io/tracevis/internal/notify"
	"github.com/rgat-io/tracevis/internal/protocol"
	"github.com/rgat-io/tracevis/internal/retry"
	"github.com/rgat-io/tracevis/internal/savesignal"
	"github.com/rgat-io/tracevis/internal/store"
	"github.com/rgat-io/tracevis/internal/traceio"
)

// Worker owns one traced thread end-to-end: reading its pipe, parsing
// records, and mutating its own per-thread graph. Every field below is
// touched only by this worker's own goroutines; cross-thread sharing
// happens solely through the Process Data Store.
type Worker struct {
	ID uint64

	store  *store.Store
	graph  *graph.Graph
	reader traceio.Reader

	calls         *callstack.Stack
	binder        *extern.Binder
	argsCollector *args.Collector
	batcher       *loopbatch.Batcher
	deferredQ     *deferred.Queue
	occ           *layout.Occupancy

	saveSignal savesignal.Signal
	notifier   notify.Notifier
	metricsReg *metrics.Registry

	cfg          *config.Config
	log          *logrus.Entry
	lookupBudget retry.Budget

	lexer protocol.Lexer

	lastVertID  int
	lastRIPType layout.Transition
	afterReturn bool

	processed int64 // atomic, drained by the metrics ticker
}

// NewWorker wires every component for thread id.
func NewWorker(id uint64, s *store.Store, reader traceio.Reader, cfg *config.Config, saveSig savesignal.Signal, notifier notify.Notifier, metricsReg *metrics.Registry, log *logrus.Entry) *Worker {
	budget := retry.Budget{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        time.Duration(cfg.Retry.BaseIntervalMS) * time.Millisecond,
	}
	return &Worker{
		ID:            id,
		store:         s,
		graph:         graph.New(id),
		reader:        reader,
		calls:         callstack.New(),
		binder:        extern.New(s, budget, log),
		argsCollector: args.New(cfg.NodeArgCapacity),
		batcher:       loopbatch.New(),
		deferredQ:     deferred.New(log),
		occ:           layout.NewOccupancy(),
		saveSignal:    saveSig,
		notifier:      notifier,
		metricsReg:    metricsReg,
		cfg:           cfg,
		log:           log,
		lookupBudget:  budget,
		lastVertID:    -1,
	}
}

// Graph returns this thread's graph, safe to read concurrently through
// its own locks.
func (w *Worker) Graph() *graph.Graph { return w.graph }

// Run drives the worker until ctx is cancelled or the pipe closes. It
// starts a background goroutine for the periodic deferred-work drain and
// backlog metering, then blocks in the read loop.
func (w *Worker) Run(ctx context.Context) {
	periodicCtx, stopPeriodic := context.WithCancel(ctx)
	defer stopPeriodic()

	periodicDone := make(chan struct{})
	go func() {
		defer close(periodicDone)
		w.periodicLoop(periodicCtx)
	}()

	w.readLoop(ctx)
	stopPeriodic()

	<-periodicDone
}

func (w *Worker) periodicLoop(ctx context.Context) {
	wake := time.NewTicker(time.Duration(w.cfg.Deferred.WakePeriodMS) * time.Millisecond)
	defer wake.Stop()
	meter := time.NewTicker(time.Second)
	defer meter.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wake.C:
			w.deferredQ.DrainEdges(w.store, w.graph, w.ID)
			w.deferredQ.DrainBlockRepeats(w.store, w.graph, w.ID)
		case <-meter.C:
			w.reportMetrics()
		}
	}
}

func (w *Worker) reportMetrics() {
	if w.metricsReg == nil {
		return
	}
	n := atomic.SwapInt64(&w.processed, 0)
	w.metricsReg.SetBacklogOut(w.ID, float64(n))
	w.metricsReg.SetGraphSize(w.ID, float64(w.graph.NodeCount()), float64(w.graph.EdgeCount()))
	edges, repeats := w.deferredQ.Len()
	w.metricsReg.SetDeferredBacklog(w.ID, "pending_edges", float64(edges))
	w.metricsReg.SetDeferredBacklog(w.ID, "block_repeats", float64(repeats))
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.shutdown()
			return
		}
		if err := w.saveSignal.WaitUntilClear(ctx); err != nil {
			w.shutdown()
			return
		}

		n, buf := w.reader.Read()
		if n == -1 {
			w.shutdown()
			return
		}

		records := w.lexer.Feed(buf[:n])
		for _, rec := range records {
			w.dispatch(rec)
			atomic.AddInt64(&w.processed, 1)
		}
	}
}

// shutdown runs the cancellation drain: flush any open loop, resolve
// deferred work up to DrainPasses times, then mark the graph terminated
// and notify.
func (w *Worker) shutdown() {
	if tail := w.lexer.Flush(); tail != "" {
		w.dispatch(tail)
	}

	w.batcher.DumpLoop(func(tag loopbatch.Tag, repeats uint64) int {
		return w.handleTag(tag, repeats)
	})

	for i := 0; i < w.cfg.Deferred.DrainPasses; i++ {
		w.deferredQ.DrainEdges(w.store, w.graph, w.ID)
		w.deferredQ.DrainBlockRepeats(w.store, w.graph, w.ID)
	}

	w.graph.Terminate(w.lastVertID)

	if w.notifier != nil {
		if err := w.notifier.ThreadEnded(context.Background(), w.ID, w.lastVertID); err != nil {
			w.log.WithError(err).Warn("failed to publish thread-end notification")
		}
	}
}
