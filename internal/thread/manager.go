package thread

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/config"
	"github.com/rgat-io/tracevis/internal/metrics"
	"github.com/rgat-io/tracevis/internal/notify"
	"github.com/rgat-io/tracevis/internal/savesignal"
	"github.com/rgat-io/tracevis/internal/store"
	"github.com/rgat-io/tracevis/internal/traceio"
)

// Manager owns the set of live per-thread workers for one ingestion
// process: a ctx/cancel/WaitGroup lifecycle keyed by thread id rather
// than a fixed subsystem list, since the worker set grows as new threads
// attach.
type Manager struct {
	store      *store.Store
	cfg        *config.Config
	notifier   notify.Notifier
	metricsReg *metrics.Registry
	log        *logrus.Entry

	mu      sync.RWMutex
	workers map[uint64]*Worker

	wg sync.WaitGroup
}

// NewManager wires the shared, process-wide collaborators every spawned
// worker needs: the Process Data Store, the configured notifier, and the
// metrics registry backing /metrics.
func NewManager(s *store.Store, cfg *config.Config, notifier notify.Notifier, metricsReg *metrics.Registry, log *logrus.Entry) *Manager {
	return &Manager{
		store:      s,
		cfg:        cfg,
		notifier:   notifier,
		metricsReg: metricsReg,
		log:        log,
		workers:    make(map[uint64]*Worker),
	}
}

// Spawn registers a new worker for threadID and runs it in its own
// goroutine until ctx is cancelled or reader signals pipe close. Each
// worker's logger carries a fresh run-id so concurrent threads' log
// lines stay distinguishable. onDone, if non-nil, runs after the worker's
// Run returns — e.g. to close the underlying pipe file descriptor the
// caller opened, once this thread's trace stream has fully drained.
func (m *Manager) Spawn(ctx context.Context, threadID uint64, reader traceio.Reader, onDone func()) *Worker {
	runLog := m.log.WithFields(logrus.Fields{
		"thread": threadID,
		"run_id": uuid.New().String(),
	})
	saveSig := savesignal.New(m.cfg)
	w := NewWorker(threadID, m.store, reader, m.cfg, saveSig, m.notifier, m.metricsReg, runLog)

	m.mu.Lock()
	m.workers[threadID] = w
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.Run(ctx)
		if onDone != nil {
			onDone()
		}
	}()

	return w
}

// Get returns the worker for threadID, if one has been spawned.
func (m *Manager) Get(threadID uint64) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[threadID]
	return w, ok
}

// ThreadIDs returns a snapshot of every thread id with a live or
// terminated worker.
func (m *Manager) ThreadIDs() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint64, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every spawned worker's Run has returned. Callers
// normally pair this with cancelling the context passed to Spawn.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// WaitTimeout blocks until every worker exits or the timeout elapses,
// reporting whether all workers finished in time.
func (m *Manager) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
