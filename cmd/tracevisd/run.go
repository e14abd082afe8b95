package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rgat-io/tracevis/internal/config"
	"github.com/rgat-io/tracevis/internal/introspect"
	"github.com/rgat-io/tracevis/internal/logging"
	"github.com/rgat-io/tracevis/internal/metrics"
	"github.com/rgat-io/tracevis/internal/notify"
	"github.com/rgat-io/tracevis/internal/store"
	"github.com/rgat-io/tracevis/internal/thread"
	"github.com/rgat-io/tracevis/internal/traceio"
)

// pipeScanPeriod is how often the run loop lists PipeDir for newly
// attached thread pipes. A tracer attaching a thread creates one pipe
// file per thread id; nothing in the wire
// protocol itself announces attachment, so discovery is filesystem
// polling rather than an event the protocol parser could dispatch on.
const pipeScanPeriod = time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch for traced-thread pipes and ingest them into per-thread graphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}
	log := logging.For("tracevisd")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	s := store.New(cfg.CacheSize)
	metricsReg := metrics.NewRegistry()
	notifier := notify.New(cfg)
	mgr := thread.NewManager(s, cfg, notifier, metricsReg, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := introspect.Run(ctx, cfg.Introspect, mgr, metricsReg, log); err != nil {
			log.WithError(err).Error("introspection server exited with error")
		}
	}()

	if err := os.MkdirAll(cfg.PipeDir, 0o755); err != nil {
		return err
	}
	watchPipes(ctx, cfg.PipeDir, mgr, log)

	mgr.Wait()
	cancel()
	wg.Wait()
	return nil
}

// watchPipes polls pipeDir every pipeScanPeriod for files named
// "<threadID>.trace" and spawns a worker for each one not already
// registered with mgr. It blocks until ctx is cancelled.
func watchPipes(ctx context.Context, pipeDir string, mgr *thread.Manager, log *logrus.Entry) {
	ticker := time.NewTicker(pipeScanPeriod)
	defer ticker.Stop()

	seen := make(map[uint64]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := os.ReadDir(pipeDir)
			if err != nil {
				log.WithError(err).Warn("failed to list pipe directory")
				continue
			}
			for _, entry := range entries {
				threadID, ok := parseThreadPipeName(entry.Name())
				if !ok {
					continue
				}
				if _, already := seen[threadID]; already {
					continue
				}
				seen[threadID] = struct{}{}
				spawnFromPipe(ctx, mgr, pipeDir, entry.Name(), threadID, log)
			}
		}
	}
}

// spawnFromPipe opens the named pipe in its own goroutine (the open
// itself blocks until the tracer side connects) and registers a worker
// for it once open, closing the file once the worker's Run returns.
func spawnFromPipe(ctx context.Context, mgr *thread.Manager, pipeDir, name string, threadID uint64, log *logrus.Entry) {
	path := filepath.Join(pipeDir, name)
	log.WithField("thread", threadID).Info("attaching new thread pipe")

	go func() {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			log.WithError(err).WithField("thread", threadID).Error("failed to open thread pipe")
			return
		}

		reader := traceio.NewPipeReader(f, 64*1024)
		mgr.Spawn(ctx, threadID, reader, func() { f.Close() })
	}()
}

// parseThreadPipeName extracts the thread id from a "<id>.trace" pipe
// filename, rejecting anything else that might live in PipeDir.
func parseThreadPipeName(name string) (uint64, bool) {
	const suffix = ".trace"
	if !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
