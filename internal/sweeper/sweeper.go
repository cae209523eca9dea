// Package sweeper runs the matchmaking timeout resolver on a fixed interval.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/speeddate/internal/matchmaking"
)

// Sweeper is what the loop drives. *matchmaking.Engine implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (matchmaking.SweepReport, error)
}

// Runner calls Sweep every interval until stopped.
// Sweeps never overlap: a slow pass delays the next tick.
type Runner struct {
	target   Sweeper
	interval time.Duration
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onReport func(matchmaking.SweepReport)
}

func New(target Sweeper, interval time.Duration, log *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		target:   target,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnReport registers a callback invoked after each pass.
func (r *Runner) OnReport(fn func(matchmaking.SweepReport)) {
	r.onReport = fn
}

// Start launches the loop in its own goroutine. It sweeps once immediately
// and then on every tick, until ctx is cancelled or Stop is called.
//
// Example:
//
//	runner.Start(ctx)
//	defer runner.Stop()
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("sweeper started", "interval", r.interval)
	r.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-ctx.Done():
			r.log.Info("sweeper stopping", "reason", ctx.Err())
			return
		case <-r.ctx.Done():
			r.log.Info("sweeper stopping", "reason", "stopped")
			return
		}
	}
}

// Wait blocks until the loop has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) runOnce(ctx context.Context) {
	ctx, cancel := mergeCancel(ctx, r.ctx)
	defer cancel()

	rep, err := r.target.Sweep(ctx)
	if err != nil {
		r.log.Error("sweep failed", "err", err)
	}
	if r.onReport != nil {
		r.onReport(rep)
	}
}

// mergeCancel returns a context cancelled when either parent is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
