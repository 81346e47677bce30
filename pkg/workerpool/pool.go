// Package workerpool provides a strictly bounded goroutine pool. At most Cap
// tasks execute at any instant; SubmitContext blocks while every worker is busy,
// which is the admission backpressure the scan relies on.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("workerpool: pool closed")

// PanicHandler receives values recovered from panicking tasks.
type PanicHandler func(recovered any)

// Pool manages a fixed number of worker goroutines started on demand.
type Pool struct {
	workers int32
	tasks   chan func()

	running   atomic.Int32
	active    atomic.Int32
	peak      atomic.Int32
	completed atomic.Int64
	panics    atomic.Int64

	onPanic PanicHandler

	// mu orders SubmitContext against Close so a send never races the channel close.
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// New creates a pool with the specified number of workers. A non-positive
// count falls back to GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		workers: int32(workers),
		tasks:   make(chan func()),
	}
}

// OnPanic installs a handler for recovered task panics. Must be called
// before the first SubmitContext.
func (p *Pool) OnPanic(h PanicHandler) *Pool {
	p.onPanic = h
	return p
}

// SubmitContext hands task to a worker, blocking until one is free or ctx
// ends. A task that was not accepted never runs.
func (p *Pool) SubmitContext(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.spawn()

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workerpool: submit: %w", ctx.Err())
	}
}

// spawn starts one more worker if the pool is below capacity.
func (p *Pool) spawn() {
	for {
		running := p.running.Load()
		if running >= p.workers {
			return
		}
		if p.running.CompareAndSwap(running, running+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *Pool) worker() {
	defer func() {
		p.running.Add(-1)
		p.wg.Done()
	}()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task, tracking occupancy and containing panics so a
// faulty task does not shrink the pool.
func (p *Pool) run(task func()) {
	if task == nil {
		return
	}
	n := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
	}()
	task()
}

// Peak returns the highest number of tasks observed executing at once.
func (p *Pool) Peak() int { return int(p.peak.Load()) }

// Completed returns the number of finished tasks, including ones that panicked.
func (p *Pool) Completed() int64 { return p.completed.Load() }

// Panics returns the number of recovered task panics.
func (p *Pool) Panics() int64 { return p.panics.Load() }

// Cap returns the worker capacity.
func (p *Pool) Cap() int { return int(p.workers) }

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
