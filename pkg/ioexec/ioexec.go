// Package ioexec runs I/O tasks against filehandle.Handle backends across a
// pool of worker goroutines, detecting and serializing hazardous
// overlapping accesses to the same file the way FlashFileHandle's
// IoExecutor does across OS threads.
package ioexec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/filehandle"
	"github.com/flashcore/ooce/pkg/stride"
)

// MaxRetries bounds how many times a task is requeued after losing a
// hazard check before the executor gives up and reports a fatal error.
const MaxRetries = 5

// ErrHazardExhausted is returned to a task's callback when it could not be
// scheduled without conflicting with an in-flight task after MaxRetries
// attempts.
var ErrHazardExhausted = errors.New("ioexec: hazard retries exhausted")

// Task describes a single I/O request submitted to the executor.
type Task struct {
	Handle   filehandle.Handle
	Offset   uint64
	Info     stride.Info
	Buf      []byte
	IsWrite  bool
	Callback func(error)

	retries int
}

func (t *Task) descriptor() descriptor {
	return descriptor{
		file:    t.Handle.ID(),
		offset:  t.Offset,
		info:    t.Info,
		isWrite: t.IsWrite,
	}
}

// Executor dispatches Tasks to a fixed pool of worker goroutines, using
// OverlapCheck to serialize hazardous concurrent accesses to the same
// bytes of the same file.
type Executor struct {
	OverlapCheck bool

	queue   chan *Task
	backlog chan *Task
	wg      sync.WaitGroup

	mu       sync.Mutex
	inFlight map[int]descriptor // worker index -> descriptor currently executing
}

// New starts an Executor with nWorkers worker goroutines pulling from an
// internally buffered queue.
func New(nWorkers int, overlapCheck bool) *Executor {
	e := &Executor{
		OverlapCheck: overlapCheck,
		queue:        make(chan *Task, 1024),
		backlog:      make(chan *Task, 1024),
		inFlight:     make(map[int]descriptor),
	}
	for i := 0; i < nWorkers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	return e
}

// Submit enqueues t for execution. It never blocks the caller past channel
// buffering; completion is signaled via t.Callback.
func (e *Executor) Submit(t *Task) {
	e.queue <- t
}

// RegisterWorker returns a context carrying a fresh per-worker I/O
// submission context. Each worker goroutine calls this exactly once at
// spawn and reuses the returned context as the parent for every task it
// executes over its lifetime — the Go rendition of FlashFileHandle's
// per-thread I/O context, since goroutines aren't pinned to OS threads the
// way the original's thread-ID-keyed map assumed. Currently this carries a
// reusable O_DIRECT bounce buffer (see filehandle.WithWorkerScratch); other
// per-worker state can attach the same way as it's needed.
func (e *Executor) RegisterWorker() context.Context {
	return filehandle.WithWorkerScratch(context.Background())
}

// Shutdown stops accepting new work and waits for in-flight and backlogged
// tasks already submitted to drain.
func (e *Executor) Shutdown() {
	close(e.queue)
	e.wg.Wait()
}

func (e *Executor) worker(idx int) {
	defer e.wg.Done()
	ctx := e.RegisterWorker()

	// backlogged tasks (lost a hazard check) take priority so they don't
	// starve behind a steady stream of fresh submissions.
	for {
		select {
		case t := <-e.backlog:
			e.dispatch(ctx, idx, t)
			continue
		default:
		}

		select {
		case t := <-e.backlog:
			e.dispatch(ctx, idx, t)
		case t, ok := <-e.queue:
			if !ok {
				e.drainBacklog(ctx, idx)
				return
			}
			e.dispatch(ctx, idx, t)
		}
	}
}

// drainBacklog runs after the submission queue has been closed, finishing
// any tasks still waiting on a hazard retry before the worker exits.
func (e *Executor) drainBacklog(ctx context.Context, idx int) {
	for {
		select {
		case t := <-e.backlog:
			e.dispatch(ctx, idx, t)
		default:
			return
		}
	}
}

func (e *Executor) dispatch(ctx context.Context, idx int, t *Task) {
	if e.OverlapCheck && e.hasHazard(idx, t) {
		t.retries++
		if t.retries > MaxRetries {
			logger.Error("ioexec: hazard retries exhausted",
				logger.Key(string(t.Handle.ID())), logger.Offset(t.Offset))
			if t.Callback != nil {
				t.Callback(ErrHazardExhausted)
			}
			return
		}
		e.backlog <- t
		return
	}
	e.execute(ctx, idx, t)
}

// hasHazard publishes this worker's descriptor and pairwise-checks it
// against every other worker currently in flight, taking locks in a fixed
// global order (guarded by a single mutex here, since Go channels make the
// per-thread mutex array the original uses unnecessary) to avoid deadlock.
func (e *Executor) hasHazard(idx int, t *Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := t.descriptor()
	for other, od := range e.inFlight {
		if other == idx {
			continue
		}
		if isOverlap(d, od) || isOverlap(od, d) {
			return true
		}
	}
	e.inFlight[idx] = d
	return false
}

func (e *Executor) clearInFlight(idx int) {
	e.mu.Lock()
	delete(e.inFlight, idx)
	e.mu.Unlock()
}

func (e *Executor) execute(ctx context.Context, idx int, t *Task) {
	defer e.clearInFlight(idx)

	var err error
	switch {
	case t.Info.NStrides <= 1 && t.IsWrite:
		_, err = t.Handle.Write(ctx, t.Offset, t.Buf)
	case t.Info.NStrides <= 1 && !t.IsWrite:
		_, err = t.Handle.Read(ctx, t.Offset, t.Buf)
	case t.IsWrite:
		_, err = t.Handle.SWrite(ctx, t.Offset, t.Info, t.Buf)
	default:
		_, err = t.Handle.SRead(ctx, t.Offset, t.Info, t.Buf)
	}
	if err != nil {
		err = fmt.Errorf("ioexec: %s %s: %w", verb(t.IsWrite), t.Handle.ID(), err)
	}
	if t.Callback != nil {
		t.Callback(err)
	}
}

func verb(isWrite bool) string {
	if isWrite {
		return "write"
	}
	return "read"
}
