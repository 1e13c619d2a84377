package ramp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PoolConfig contains configuration for a worker Pool.
type PoolConfig struct {
	// Pace is the pause between iterations of one worker
	Pace time.Duration

	// MaxWorkers caps the number of worker goroutines alive at once,
	// draining ones included. 0 means unlimited.
	MaxWorkers int

	// Sink receives every iteration outcome
	Sink OutcomeSink

	Clock  Clock
	Logger zerolog.Logger
}

// Pool owns a variable-size set of workers.
//
// Membership is changed only through Reconcile and DrainAll, which must be
// called from a single goroutine (the controller). Counts are exposed through
// atomics and may be read from anywhere.
type Pool struct {
	runner *ScenarioRunner
	cfg    PoolConfig

	// Live workers in spawn order; workers asked to stop are removed at once
	workers []*Worker
	nextID  int

	active        atomic.Int64 // goroutines still running, draining ones included
	live          atomic.Int64
	peak          atomic.Int64
	iterations    atomic.Int64
	spawnFailures atomic.Int64

	wg sync.WaitGroup
}

// NewPool creates an empty pool that runs scenario in every worker.
func NewPool(scenario Scenario, cfg PoolConfig) *Pool {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Sink == nil {
		cfg.Sink = DiscardSink
	}
	return &Pool{
		runner: NewScenarioRunner(scenario, cfg.Clock),
		cfg:    cfg,
	}
}

// Reconcile grows or shrinks the pool toward target.
//
// Growing spawns new workers; shrinking asks the newest live workers to stop
// after their current iteration. Workers that are stopping no longer count as
// live, so repeated calls converge on target immediately while Active may
// stay above it until in-flight iterations finish.
//
// ctx supplies values to scenario calls; its cancellation does not reach them.
func (p *Pool) Reconcile(ctx context.Context, target int) {
	if target < 0 {
		target = 0
	}
	current := len(p.workers)

	if target > current {
		for i := current; i < target; i++ {
			if err := p.spawn(ctx); err != nil {
				p.spawnFailures.Add(1)
				p.cfg.Logger.Warn().
					Err(err).
					Int("target", target).
					Int("live", len(p.workers)).
					Msg("worker spawn refused, retrying next tick")
				break
			}
		}
	} else if target < current {
		// Stop excess workers (from the end)
		for i := current - 1; i >= target; i-- {
			p.workers[i].RequestStop()
			p.workers[i] = nil
		}
		p.workers = p.workers[:target]
	}

	p.live.Store(int64(len(p.workers)))
}

// DrainAll asks every worker to stop and waits until all have exited.
//
// If ctx ends first, ctx.Err() is returned and the remaining workers keep
// finishing their iterations in the background. Calling DrainAll again is safe.
func (p *Pool) DrainAll(ctx context.Context) error {
	for _, w := range p.workers {
		w.RequestStop()
	}
	p.workers = nil
	p.live.Store(0)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of worker goroutines still running, including
// workers finishing their last iteration after a stop request.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Live returns the number of workers not asked to stop.
func (p *Pool) Live() int {
	return int(p.live.Load())
}

// Peak returns the highest Active value observed.
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

// Iterations returns the number of completed iterations across all workers.
func (p *Pool) Iterations() int64 {
	return p.iterations.Load()
}

// SpawnFailures returns how many spawn attempts were refused.
func (p *Pool) SpawnFailures() int64 {
	return p.spawnFailures.Load()
}

func (p *Pool) spawn(ctx context.Context) error {
	if limit := p.cfg.MaxWorkers; limit > 0 {
		if running := p.active.Load(); running >= int64(limit) {
			return fmt.Errorf("%w: %d workers running, limit %d", ErrWorkerSpawn, running, limit)
		}
	}

	p.nextID++
	w := newWorker(p.nextID)
	p.workers = append(p.workers, w)

	n := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.wg.Add(1)
	go p.runWorker(context.WithoutCancel(ctx), w)
	return nil
}

// runWorker loops over iterations until the worker is asked to stop.
func (p *Pool) runWorker(ctx context.Context, w *Worker) {
	defer p.wg.Done()
	defer w.markStopped()
	defer p.active.Add(-1)

	for {
		n, ok := w.beginIteration()
		if !ok {
			return
		}

		outcome := p.runner.Run(ctx, w.ID, n)
		p.iterations.Add(1)
		p.record(outcome)

		if !w.endIteration() {
			return
		}

		if p.cfg.Pace > 0 {
			select {
			case <-w.stopCh:
				return
			case <-p.cfg.Clock.After(p.cfg.Pace):
			}
		}
	}
}

// record hands the outcome to the sink without letting a faulty sink kill the worker.
func (p *Pool) record(o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error().
				Int("worker", o.WorkerID).
				Interface("panic", r).
				Msg("outcome sink panicked")
		}
	}()

	if o.Err != nil {
		p.cfg.Logger.Debug().
			Err(o.Err).
			Int("worker", o.WorkerID).
			Int64("iteration", o.Iteration).
			Msg("iteration failed")
	}
	p.cfg.Sink.Record(o)
}
