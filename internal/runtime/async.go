package runtime

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// executor runs async episodes on their own goroutines, at most `streams` at
// a time. Submitting never blocks the caller.
type executor struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func newExecutor(streams int) *executor {
	if streams < 1 {
		streams = 1
	}
	return &executor{sem: semaphore.NewWeighted(int64(streams))}
}

// submit queues task. ctx aborts the wait for a stream slot; task then
// receives the context error instead of running the pipeline. It reports
// false, without running task, once shutdown has begun.
func (e *executor) submit(ctx context.Context, task func(admitErr error)) bool {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return false
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			task(err)
			return
		}
		defer e.sem.Release(1)
		task(nil)
	}()
	return true
}

// shutdown rejects further submits and blocks until every accepted task
// returned.
func (e *executor) shutdown() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.wg.Wait()
}
