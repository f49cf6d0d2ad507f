package queue

import (
	"log/slog"
	"time"
)

// RunnerOption is a functional option for configuring a runner
type RunnerOption func(*runnerOptions)

type runnerOptions struct {
	interval time.Duration
	logger   *slog.Logger
}

// WithInterval sets how often the runner starts a drain cycle
func WithInterval(d time.Duration) RunnerOption {
	return func(o *runnerOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithRunnerLogger sets the logger for the runner
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(o *runnerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
