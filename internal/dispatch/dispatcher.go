// Package dispatch implements the bounded fan-out/fan-in worker pool shared
// by the crawl, reingest and job mediators.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config sizes one dispatcher run.
type Config struct {
	// NumWorkers is the number of worker goroutines pulling units of work.
	NumWorkers int

	// BatchSize caps how many units the control loop selects per poll. It
	// also bounds the work and result channels, so dispatching a batch
	// applies backpressure against slow workers.
	BatchSize int

	// PollInterval is how long the control loop sleeps after an empty
	// poll in continuous mode.
	PollInterval time.Duration

	// RunForever keeps polling after an empty batch instead of returning.
	RunForever bool
}

// WorkFunc processes one unit of work. Failures are encoded in the result
// type; a WorkFunc never unwinds past the worker loop.
type WorkFunc[W, R any] func(ctx context.Context, unit W) R

// Hooks supplies the mediator-specific behavior of a dispatcher run.
type Hooks[W, R any] struct {
	// Source selects the next batch of work, at most BatchSize units.
	// An empty batch means there is currently nothing to do.
	Source func(ctx context.Context) ([]W, error)

	// Start runs once per worker before it begins pulling work. It
	// returns the function applied to each unit and a release function
	// invoked when the worker exits. Mediators use it to pin a pooled
	// database connection for the worker's lifetime, so a too-small pool
	// fails here instead of deadlocking mid-batch.
	Start func(ctx context.Context, workerID int) (WorkFunc[W, R], func(), error)

	// Failed converts a unit whose worker panicked into a result, keeping
	// the batch accounting intact.
	Failed func(unit W, err error) R

	// Report persists the outcome of one dispatched batch.
	Report func(ctx context.Context, results []R) error
}

// Dispatcher runs a fixed pool of workers over batches of work streamed from
// Source, collecting exactly one result per dispatched unit.
type Dispatcher[W, R any] struct {
	cfg   Config
	hooks Hooks[W, R]
	log   *zap.Logger
}

// New validates the configuration and constructs a Dispatcher.
func New[W, R any](cfg Config, hooks Hooks[W, R], log *zap.Logger) (*Dispatcher[W, R], error) {
	if cfg.NumWorkers < 1 {
		return nil, fmt.Errorf("dispatcher needs at least one worker")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("dispatcher batch size must be at least 1")
	}
	if cfg.RunForever && cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("continuous dispatcher needs a poll interval")
	}
	if hooks.Source == nil || hooks.Start == nil || hooks.Failed == nil || hooks.Report == nil {
		return nil, fmt.Errorf("dispatcher hooks must all be set")
	}
	return &Dispatcher[W, R]{cfg: cfg, hooks: hooks, log: log}, nil
}

// Run executes the dispatch protocol until the source runs dry (one-shot
// mode) or the context is canceled (continuous mode). It returns the total
// number of units dispatched.
func (d *Dispatcher[W, R]) Run(ctx context.Context) (int64, error) {
	work := make(chan W, d.cfg.BatchSize)
	// Results are buffered to the batch size so workers can always hand
	// off a finished unit, even when the control loop has bailed out.
	results := make(chan R, d.cfg.BatchSize)

	type startedWorker struct {
		fn      WorkFunc[W, R]
		release func()
	}
	started := make([]startedWorker, 0, d.cfg.NumWorkers)
	for i := 0; i < d.cfg.NumWorkers; i++ {
		fn, release, err := d.hooks.Start(ctx, i)
		if err != nil {
			for _, w := range started {
				w.release()
			}
			return 0, fmt.Errorf("starting worker %d: %w", i, err)
		}
		started = append(started, startedWorker{fn: fn, release: release})
	}

	var wg sync.WaitGroup
	for i, w := range started {
		wg.Add(1)
		go func(id int, w startedWorker) {
			defer wg.Done()
			defer w.release()
			log := d.log.With(zap.Int("worker", id))
			for unit := range work {
				results <- d.apply(ctx, log, w.fn, unit)
			}
			log.Debug("work channel closed, worker exiting")
		}(i, w)
	}
	// Closing the work channel is the stop signal; workers drain what was
	// already queued and rejoin.
	defer func() {
		close(work)
		wg.Wait()
	}()

	var total int64
	for {
		batch, err := d.hooks.Source(ctx)
		if err != nil {
			return total, fmt.Errorf("selecting work batch: %w", err)
		}

		if len(batch) == 0 {
			if !d.cfg.RunForever {
				return total, nil
			}
			d.log.Info("no work found, sleeping",
				zap.Duration("interval", d.cfg.PollInterval))
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(d.cfg.PollInterval):
			}
			continue
		}

		for _, unit := range batch {
			select {
			case work <- unit:
			case <-ctx.Done():
				return total, ctx.Err()
			}
		}

		collected := make([]R, 0, len(batch))
		for range batch {
			select {
			case r := <-results:
				collected = append(collected, r)
			case <-ctx.Done():
				return total, ctx.Err()
			}
		}

		if err := d.hooks.Report(ctx, collected); err != nil {
			return total, fmt.Errorf("reporting batch results: %w", err)
		}
		total += int64(len(batch))
	}
}

// apply runs the work function with a panic guard so a bad unit of work can
// never wedge the pool's send/receive accounting.
func (d *Dispatcher[W, R]) apply(ctx context.Context, log *zap.Logger, fn WorkFunc[W, R], unit W) (r R) {
	defer func() {
		if v := recover(); v != nil {
			log.Error("worker panic recovered",
				zap.Any("panic", v),
				zap.ByteString("stack", debug.Stack()),
			)
			r = d.hooks.Failed(unit, fmt.Errorf("worker panic: %v", v))
		}
	}()
	return fn(ctx, unit)
}
