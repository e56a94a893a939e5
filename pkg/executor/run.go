package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const runLogPrefix = "executor:run"

// DefaultInterval is the drain cadence used when Run is given a non-positive interval.
const DefaultInterval = 16 * time.Millisecond

// Run makes the calling goroutine the designated one for q. It drains on every
// tick and whenever work is signalled, until ctx is done. A final drain runs
// before returning.
func Run(ctx context.Context, q *Queue, interval time.Duration) error {
	return RunFunc(ctx, q.Drain, q.Signal(), interval)
}

// RunFunc is Run over an arbitrary drain function, for callers that wrap
// Queue.Drain.
func RunFunc(ctx context.Context, drain func() int, signal <-chan struct{}, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Debug(fmt.Sprintf("%s - drain loop started (interval=%s)", runLogPrefix, interval))

	for {
		select {
		case <-ctx.Done():
			n := drain()
			slog.Debug(fmt.Sprintf("%s - drain loop stopped, final drain ran %d", runLogPrefix, n))
			return ctx.Err()
		case <-ticker.C:
			drain()
		case <-signal:
			drain()
		}
	}
}
