package engine

import (
	"context"
	"log/slog"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue.
type workerPool[T any] struct {
	name    string
	queue   chan T
	process func(ctx context.Context, t T)
	logger  *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity cap.
func newWorkerPool[T any](ctx context.Context, name string, n, cap int, logger *slog.Logger, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		name:    name,
		queue:   make(chan T, cap),
		process: fn,
		logger:  logger,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.safeProcess(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// safeProcess keeps the worker alive when a job panics.
func (p *workerPool[T]) safeProcess(ctx context.Context, t T) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic", "pool", p.name, "panic", r)
		}
	}()
	p.process(ctx, t)
}

// Submit enqueues a job without blocking (returns false if full or drained).
func (p *workerPool[T]) Submit(t T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for all workers to finish.
func (p *workerPool[T]) Drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// QueueLen returns how many jobs are currently queued.
func (p *workerPool[T]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *workerPool[T]) QueueCap() int {
	return cap(p.queue)
}
