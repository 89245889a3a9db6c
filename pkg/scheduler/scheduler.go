// Package scheduler pipelines a task graph through allocation and compute:
// a dispatcher goroutine admits ready tasks against the buffer cache's
// budget, and a dynamically resizable pool of compute workers runs kernels
// once every read a task declared is resident.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/cache"
	"github.com/flashcore/ooce/pkg/prioritizer"
	"github.com/flashcore/ooce/pkg/task"
)

const (
	dispatchLockRetries = 3
	dispatchLockWait    = 100 * time.Microsecond
)

// lockWithRetry attempts to acquire mu up to attempts times, sleeping wait
// between tries, and reports whether it succeeded. Used on the dispatcher's
// hot path in place of a plain Lock so a briefly-held contended mutex
// delays one tick's work instead of blocking the dispatcher goroutine.
func lockWithRetry(mu *sync.Mutex, attempts int, wait time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if mu.TryLock() {
			return true
		}
		time.Sleep(wait)
	}
	return false
}

// Options mirrors SchedulerOptions: knobs that trade correctness
// guarantees or reuse for throughput.
type Options struct {
	// EnablePrioritizer sorts ready tasks by incremental memory
	// requirement instead of admitting them first-come-first-served.
	EnablePrioritizer bool

	// EnableOverlapCheck turns on hazard detection in the I/O executor for
	// tasks scheduled through this Scheduler's Cache.
	EnableOverlapCheck bool

	// SingleUseDiscard evicts buffers immediately on release instead of
	// keeping them zero-ref for reuse.
	SingleUseDiscard bool

	// MaxInMem bounds how many tasks may have buffers committed at once
	// (admitted but not yet released). Defaults to 4x the scheduler's
	// compute worker count when zero, so enough allocations are in flight
	// to overlap I/O with compute.
	MaxInMem int
}

// DefaultOptions returns the conservative default: prioritizer and hazard
// detection on, buffer reuse preferred over a smaller footprint.
func DefaultOptions() Options {
	return Options{EnablePrioritizer: true, EnableOverlapCheck: true}
}

// Scheduler drives a task graph to completion against a bounded Cache.
type Scheduler struct {
	cache *cache.Cache
	prio  *prioritizer.Prioritizer

	mu       sync.Mutex
	opts     Options
	waitSet  []*task.Task // parents not all complete yet
	complete *completionRecord

	maxInMem int          // pipeline depth cap: tasks with committed buffers
	inMem    atomic.Int32 // tasks currently admitted but not yet released

	alloced       chan *task.Task // allocation finished, awaiting promotion
	computeQueue  chan *task.Task
	completeQueue chan *task.Task

	quota   atomic.Int32 // target compute worker count
	nextIdx atomic.Int32 // next worker index to hand out on grow
	workers sync.WaitGroup

	dispatchTick *time.Ticker
	stopDispatch chan struct{}
	stopOnce     sync.Once

	pending atomic.Int64 // tasks admitted but not yet complete, for FlushCache/drain
}

// New creates a Scheduler with nComputeThreads initial compute workers and
// starts its dispatcher loop.
func New(c *cache.Cache, opts Options, nComputeThreads int) *Scheduler {
	maxInMem := opts.MaxInMem
	if maxInMem <= 0 {
		n := nComputeThreads
		if n <= 0 {
			n = 1
		}
		maxInMem = 4 * n
	}

	s := &Scheduler{
		cache:         c,
		prio:          prioritizer.New(c, opts.EnablePrioritizer),
		opts:          opts,
		maxInMem:      maxInMem,
		alloced:       make(chan *task.Task, 256),
		complete:      newCompletionRecord(),
		computeQueue:  make(chan *task.Task, 256),
		completeQueue: make(chan *task.Task, 256),
		dispatchTick:  time.NewTicker(2 * time.Millisecond),
		stopDispatch:  make(chan struct{}),
	}
	s.SetNumComputeThreads(nComputeThreads)
	go s.dispatchLoop()
	go s.completionLoop()
	return s
}

// AddTask registers t with the scheduler. Tasks whose parents have all
// already completed become immediately eligible for allocation; others
// wait for their parents to finish.
func (s *Scheduler) AddTask(t *task.Task) {
	s.pending.Add(1)
	t.SetStatus(task.Wait)

	s.mu.Lock()
	if s.complete.AllComplete(t.Parents()) {
		t.SetStatus(task.AllocReady)
		s.mu.Unlock()
		s.prio.Insert([]*task.Task{t})
		return
	}
	s.waitSet = append(s.waitSet, t)
	s.mu.Unlock()
}

// dispatchLoop periodically promotes waiting tasks whose parents have
// completed, refreshes the prioritizer, admits ready tasks up to the
// pipeline depth cap, promotes tasks whose allocation has finished onto the
// compute queue, and services any deferred allocation requests.
func (s *Scheduler) dispatchLoop() {
	for {
		select {
		case <-s.stopDispatch:
			return
		case <-s.dispatchTick.C:
			s.promoteWaiting()
			s.prio.Update()
			s.admit()
			s.promoteAllocated()
			s.cache.ServiceBacklog(context.Background())
		}
	}
}

// promoteWaiting is on the dispatcher's hot path, so it never blocks on
// s.mu for longer than a few short retries: a stuck holder (e.g. AddTask
// racing in from a completion callback) delays this tick's promotions
// rather than wedging the dispatcher loop.
func (s *Scheduler) promoteWaiting() {
	if !lockWithRetry(&s.mu, dispatchLockRetries, dispatchLockWait) {
		return
	}
	var stillWaiting []*task.Task
	var ready []*task.Task
	for _, t := range s.waitSet {
		if s.complete.AllComplete(t.Parents()) {
			t.SetStatus(task.AllocReady)
			ready = append(ready, t)
		} else {
			stillWaiting = append(stillWaiting, t)
		}
	}
	s.waitSet = stillWaiting
	s.mu.Unlock()

	if len(ready) > 0 {
		s.prio.Insert(ready)
	}
}

// admit pops ready tasks off the prioritizer while fewer than maxInMem are
// currently in flight, handing each one's (blocking) buffer allocation off
// to its own goroutine so admission itself never blocks: the dispatcher
// moves on to the next task immediately instead of serializing every
// task's I/O fill behind the tick that admitted it. This is what lets
// multiple tasks' fills run concurrently through the I/O executor and
// overlap with compute, rather than one fill completing before the next
// even starts. Once maxInMem tasks are in flight, admission stops for this
// tick regardless of how much of the prioritizer queue remains.
func (s *Scheduler) admit() {
	for int(s.inMem.Load()) < s.maxInMem {
		info, ok := s.prio.GetPrio()
		if !ok {
			return
		}
		t := info.Task
		t.SetStatus(task.Alloc)
		s.inMem.Add(1)
		go s.allocateAsync(t)
	}
}

// allocateAsync runs on its own goroutine per admitted task: it performs
// the task's (blocking) buffer allocation and, on success, hands the task
// to the promote step via s.alloced rather than pushing straight to
// computeQueue, keeping allocation-completed and compute-ready as distinct
// states the dispatcher observes on its own schedule.
func (s *Scheduler) allocateAsync(t *task.Task) {
	if err := s.allocateTask(context.Background(), t); err != nil {
		logger.Error("scheduler: task allocation failed", logger.TaskID(t.ID()), logger.Err(err))
		t.SetStatus(task.Complete)
		s.finish(t)
		return
	}
	s.alloced <- t
}

// promoteAllocated moves every task whose allocation has completed since
// the last tick from alloced onto the compute queue.
func (s *Scheduler) promoteAllocated() {
	for {
		select {
		case t := <-s.alloced:
			t.SetStatus(task.ComputeReady)
			s.computeQueue <- t
		default:
			return
		}
	}
}

// allocateTask obtains and binds a buffer for every key the task declared,
// as a single batch so a task never ends up holding only some of the
// buffers it needs.
func (s *Scheduler) allocateTask(ctx context.Context, t *task.Task) error {
	reads, writes := t.Reads(), t.Writes()
	reqs := make([]cache.AllocRequest, 0, len(reads)+len(writes))
	for _, k := range reads {
		reqs = append(reqs, cache.AllocRequest{Key: k, IsWrite: false})
	}
	for _, k := range writes {
		reqs = append(reqs, cache.AllocRequest{Key: k, IsWrite: true})
	}

	bufs, err := s.cache.AllocBufs(ctx, reqs)
	if err != nil {
		return err
	}
	for k, buf := range bufs {
		t.BindBuffer(k, buf)
	}
	return nil
}

// finish releases a task's buffers, marks it complete, frees its pipeline
// depth slot, chains its continuation (if any) back into the wait set, and
// signals FlushCache/Wait callers.
func (s *Scheduler) finish(t *task.Task) {
	for _, k := range t.Reads() {
		s.cache.Release(k)
	}
	for _, k := range t.Writes() {
		s.cache.Release(k)
	}
	s.complete.Mark(t.ID())
	s.pending.Add(-1)
	s.inMem.Add(-1)

	if next := t.Next(); next != nil {
		s.AddTask(next)
	}
}

func (s *Scheduler) completionLoop() {
	for {
		select {
		case <-s.stopDispatch:
			return
		case t := <-s.completeQueue:
			s.finish(t)
		}
	}
}

// FlushCache blocks until every admitted task has completed and then
// flushes any remaining dirty buffers to backing storage.
func (s *Scheduler) FlushCache(ctx context.Context) {
	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
	s.cache.Flush(ctx)
}

// SetOptions records opts on the scheduler. The prioritizer's ordering mode
// is fixed when the scheduler is constructed, so a changed
// EnablePrioritizer does not alter the order of queued or later tasks.
func (s *Scheduler) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// GetNumComputeThreads returns the current target compute worker count.
func (s *Scheduler) GetNumComputeThreads() int {
	return int(s.quota.Load())
}

// Shutdown stops the dispatcher and compute pool, waiting for in-flight
// tasks to finish.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		s.dispatchTick.Stop()
		close(s.stopDispatch)
		s.quota.Store(0)
		s.workers.Wait()
	})
}
