// Package savesignal implements the save-service collaborator: a "save
// in progress" flag a worker busy-waits on at 20ms granularity, yielding
// rather than spinning. The choice between the real (Redis-backed) and
// no-op implementation is made once at startup from config, since the
// Redis client is always compiled in.
package savesignal

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rgat-io/tracevis/internal/config"
)

// Signal reports whether a save is currently in progress.
type Signal interface {
	// InProgress polls the current flag state.
	InProgress(ctx context.Context) (bool, error)
	// WaitUntilClear busy-waits at the configured poll interval while
	// InProgress returns true, returning early if ctx is cancelled.
	WaitUntilClear(ctx context.Context) error
}

// noop always reports no save in progress, used when no Redis is
// configured.
type noop struct{}

func (noop) InProgress(context.Context) (bool, error) { return false, nil }
func (noop) WaitUntilClear(context.Context) error     { return nil }

// redisSignal polls a Redis key.
type redisSignal struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// New builds a Signal from cfg: a no-op if cfg.Redis is nil, otherwise a
// Redis-polled one.
func New(cfg *config.Config) Signal {
	if cfg.Redis == nil {
		return noop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &redisSignal{
		client:       client,
		key:          cfg.Redis.SaveFlagKey,
		pollInterval: time.Duration(cfg.Redis.PollIntervalMS) * time.Millisecond,
	}
}

func (s *redisSignal) InProgress(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisSignal) WaitUntilClear(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		inProgress, err := s.InProgress(ctx)
		if err != nil || !inProgress {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
