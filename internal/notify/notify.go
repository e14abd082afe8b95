// Package notify implements the Timeline builder collaborator:
// a publish on thread termination, standing in for "Timeline builder;
// notified on thread end". Same runtime-selected real/no-op shape as
// internal/savesignal (DESIGN.md).
package notify

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rgat-io/tracevis/internal/config"
)

// Notifier announces thread lifecycle events.
type Notifier interface {
	ThreadEnded(ctx context.Context, threadID uint64, finalNodeID int) error
}

type noop struct{}

func (noop) ThreadEnded(context.Context, uint64, int) error { return nil }

type redisNotifier struct {
	client  *redis.Client
	channel string
}

// New builds a Notifier from cfg: a no-op if cfg.Redis is nil, otherwise
// a Redis pub/sub publisher.
func New(cfg *config.Config) Notifier {
	if cfg.Redis == nil {
		return noop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &redisNotifier{client: client, channel: cfg.Redis.NotifyChan}
}

func (n *redisNotifier) ThreadEnded(ctx context.Context, threadID uint64, finalNodeID int) error {
	payload := strconv.FormatUint(threadID, 10) + ":" + strconv.Itoa(finalNodeID)
	return n.client.Publish(ctx, n.channel, payload).Err()
}
