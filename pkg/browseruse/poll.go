package browseruse

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 15 * time.Minute
)

// Task statuses that end polling. "paused" is included because a paused
// task needs manual intervention and will not progress on its own.
var terminalStatuses = []string{"finished", "completed", "done", "failed", "error", "stopped", "paused"}

// IsTerminal reports whether a task status ends polling.
func IsTerminal(status string) bool {
	return slices.Contains(terminalStatuses, status)
}

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	timeout  time.Duration
}

// WithPollInterval overrides the fixed poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// PollTask polls GetTask at a fixed interval until the task reaches a
// terminal status or the context expires. On expiry the returned error wraps
// context.DeadlineExceeded.
func PollTask(ctx context.Context, client Client, id string, opts ...PollOption) (*Task, error) {
	cfg := pollConfig{interval: defaultPollInterval, timeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for {
		task, err := client.GetTask(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrapf(ctx.Err(), "browseruse: poll task %s timed out", id)
			}
			return nil, eris.Wrapf(err, "browseruse: poll task %s", id)
		}

		zap.L().Debug("agent task status", zap.String("task_id", id), zap.String("status", task.Status))
		if IsTerminal(task.Status) {
			if task.Status == "paused" {
				zap.L().Warn("agent task paused", zap.String("task_id", id))
			}
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "browseruse: poll task %s timed out", id)
		case <-ticker.C:
		}
	}
}
