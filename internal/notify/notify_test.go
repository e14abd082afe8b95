package notify

import (
	"context"
	"testing"

	"github.com/rgat-io/tracevis/internal/config"
)

func TestNoopNotifierSucceeds(t *testing.T) {
	n := New(&config.Config{})
	if err := n.ThreadEnded(context.Background(), 1, 42); err != nil {
		t.Fatalf("noop notifier should never error, got %v", err)
	}
}
