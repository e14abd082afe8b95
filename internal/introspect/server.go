package introspect

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rgat-io/tracevis/internal/config"
	"github.com/rgat-io/tracevis/internal/metrics"
)

// Run starts the introspection HTTP server on cfg.ListenAddr and blocks
// until ctx is cancelled, then shuts the server down gracefully. A
// disabled config (cfg.Enabled == false) makes Run a no-op, returning
// immediately once ctx is cancelled, mirroring the save-signal/notify
// packages' "no Redis configured" no-op shape.
func Run(ctx context.Context, cfg config.IntrospectConfig, workers WorkerLookup, metricsReg *metrics.Registry, log *logrus.Entry) error {
	if !cfg.Enabled {
		<-ctx.Done()
		return nil
	}

	srv := NewServer(workers, metricsReg, log)
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("introspection server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
