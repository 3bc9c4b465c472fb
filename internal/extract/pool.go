package extract

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// PoolStats is a snapshot of the pool counters.
type PoolStats struct {
	Workers   int64 `json:"workers"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pool runs extraction attempts on dedicated goroutines, at most Workers at a
// time, so CPU heavy parsing never runs on the request goroutine.
type Pool struct {
	extractor Extractor
	sem       *semaphore.Weighted
	workers   int64

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool returns a pool running extractor on at most workers goroutines.
func NewPool(extractor Extractor, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		extractor: extractor,
		sem:       semaphore.NewWeighted(int64(workers)),
		workers:   int64(workers),
	}
}

// Extract runs one attempt and waits for it or for ctx. When ctx ends first
// the attempt keeps its worker slot until the parser returns, so abandoned
// work still counts against the bound.
func (p *Pool) Extract(ctx context.Context, path string, mode Mode) Outcome {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fatal(fmt.Errorf("waiting for extraction worker: %w", err))
	}

	done := make(chan Outcome, 1)
	p.running.Add(1)
	go func() {
		defer p.sem.Release(1)
		defer p.running.Add(-1)

		out := p.run(ctx, path, mode)
		if out.Kind == Success {
			p.completed.Add(1)
		} else {
			p.failed.Add(1)
		}
		done <- out
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		return fatal(fmt.Errorf("extraction (%s) abandoned: %w", mode, ctx.Err()))
	}
}

func (p *Pool) run(ctx context.Context, path string, mode Mode) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = fatal(fmt.Errorf("extractor panic: %v", r))
		}
	}()
	return p.extractor.Extract(ctx, path, mode)
}

// Stats returns the current counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}
