package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/deferq/pkg/logger"
)

// Drainer runs one drain cycle
type Drainer interface {
	Drain(ctx context.Context) (Report, error)
}

// Runner triggers a drain cycle on a fixed interval
type Runner struct {
	drainer  Drainer
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner for the given drainer, usually a *Processor
func NewRunner(drainer Drainer, opts ...RunnerOption) (*Runner, error) {
	if drainer == nil {
		return nil, ErrDrainerNil
	}

	options := &runnerOptions{
		interval: time.Minute,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Runner{
		drainer:  drainer,
		interval: options.interval,
		logger:   options.logger.With(logger.Component("queue_runner")),
	}, nil
}

// Start drains once right away and then on every tick until Stop is called or ctx is done
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrRunnerStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(runCtx, r.done)

	r.logger.Info("runner started", slog.Duration("interval", r.interval))

	return nil
}

// Stop cancels the loop and waits for the current drain cycle to return
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return ErrRunnerNotStarted
	}

	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	cancel()
	<-done

	r.logger.Info("runner stopped")

	return nil
}

// Run starts the runner and returns a function suitable for errgroup
func (r *Runner) Run(ctx context.Context) func() error {
	return func() error {
		if err := r.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return r.Stop()
	}
}

// loop drains synchronously, so a tick that fires during a slow drain is dropped
func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	if _, err := r.drainer.Drain(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The next tick retries
		r.logger.ErrorContext(ctx, "drain cycle failed", logger.Error(err))
	}
}
