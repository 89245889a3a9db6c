// Package task defines the unit of work the scheduler drives through the
// engine's DAG: a node naming the buffers it reads and writes, its parents
// in the dependency graph, and the kernel to run once those buffers are
// resident.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flashcore/ooce/pkg/stride"
)

// Status enumerates the lifecycle a Task moves through under the
// scheduler's dispatch loop.
type Status int32

const (
	Wait         Status = iota // not yet examined by the dispatcher
	AllocReady                 // parents satisfied, eligible for allocation
	Alloc                      // buffers allocated, awaiting I/O completion
	ComputeReady               // all reads resident, eligible for compute
	Compute                    // running on a compute worker
	Complete                   // kernel finished, buffers released
)

func (s Status) String() string {
	switch s {
	case Wait:
		return "wait"
	case AllocReady:
		return "alloc_ready"
	case Alloc:
		return "alloc"
	case ComputeReady:
		return "compute_ready"
	case Compute:
		return "compute"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

var globalCounter atomic.Uint64

// access pairs a cache key with the buffer the scheduler pins for it once
// allocated. The buffer is nil until the owning Alloc step fills it in.
type access struct {
	key stride.Key
	buf []byte
}

// Kernel is the user compute function a Task runs once every read it
// declared is resident. Buffers for reads and writes are supplied keyed by
// the same stride.Key the Task was built with; the kernel writes its
// output into the write buffers in place.
type Kernel func(ctx context.Context, reads, writes map[stride.Key][]byte) error

// Task is a single node in the engine's task graph.
type Task struct {
	id      uint64
	kernel  Kernel
	parents []uint64
	next    *Task

	mu     sync.Mutex
	reads  []access
	writes []access

	status atomic.Int32
}

// New creates a Task wrapping kernel. Reads and writes must be declared via
// AddRead/AddWrite before the task is submitted to a scheduler.
func New(kernel Kernel) *Task {
	return &Task{
		id:     globalCounter.Add(1),
		kernel: kernel,
	}
}

// ID returns the task's globally unique, monotonically assigned identifier.
func (t *Task) ID() uint64 { return t.id }

// AddRead declares that the task requires the region named by key to be
// resident before it can run.
func (t *Task) AddRead(key stride.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads = append(t.reads, access{key: key})
}

// AddWrite declares that the task produces output into the region named by
// key.
func (t *Task) AddWrite(key stride.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, access{key: key})
}

// AddParent records that this task must not become eligible for allocation
// until the task with the given id has completed.
func (t *Task) AddParent(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parents = append(t.parents, id)
}

// Parents returns the ids of tasks that must complete before this one.
func (t *Task) Parents() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.parents))
	copy(out, t.parents)
	return out
}

// SetNext chains a continuation task that the scheduler submits as soon as
// this one completes; it then goes through the prioritizer and admission
// like any other submitted task.
func (t *Task) SetNext(next *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = next
}

// Next returns the chained continuation task, or nil.
func (t *Task) Next() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Reads returns the keys this task must read.
func (t *Task) Reads() []stride.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	return keysOf(t.reads)
}

// Writes returns the keys this task produces.
func (t *Task) Writes() []stride.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	return keysOf(t.writes)
}

func keysOf(accesses []access) []stride.Key {
	out := make([]stride.Key, len(accesses))
	for i, a := range accesses {
		out[i] = a.key
	}
	return out
}

// AllKeys returns the union of reads and writes, the set the prioritizer
// uses to compute the task's incremental memory requirement.
func (t *Task) AllKeys() []stride.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[stride.Key]struct{}, len(t.reads)+len(t.writes))
	out := make([]stride.Key, 0, len(t.reads)+len(t.writes))
	for _, a := range append(append([]access{}, t.reads...), t.writes...) {
		if _, ok := seen[a.key]; ok {
			continue
		}
		seen[a.key] = struct{}{}
		out = append(out, a.key)
	}
	return out
}

// BindBuffer attaches a resident buffer to one of the task's declared keys,
// called by the scheduler once the cache has allocated and filled it.
func (t *Task) BindBuffer(key stride.Key, buf []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.reads {
		if t.reads[i].key == key {
			t.reads[i].buf = buf
		}
	}
	for i := range t.writes {
		if t.writes[i].key == key {
			t.writes[i].buf = buf
		}
	}
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status { return Status(t.status.Load()) }

// SetStatus transitions the task to the given lifecycle state.
func (t *Task) SetStatus(s Status) { t.status.Store(int32(s)) }

// Execute runs the task's kernel against its bound buffers. The scheduler
// calls this only once every read has a bound buffer, mirroring
// BaseTask::execute's precondition.
func (t *Task) Execute(ctx context.Context) error {
	t.mu.Lock()
	reads := make(map[stride.Key][]byte, len(t.reads))
	for _, a := range t.reads {
		if a.buf == nil {
			t.mu.Unlock()
			return fmt.Errorf("task %d: read %s has no bound buffer", t.id, a.key)
		}
		reads[a.key] = a.buf
	}
	writes := make(map[stride.Key][]byte, len(t.writes))
	for _, a := range t.writes {
		if a.buf == nil {
			t.mu.Unlock()
			return fmt.Errorf("task %d: write %s has no bound buffer", t.id, a.key)
		}
		writes[a.key] = a.buf
	}
	t.mu.Unlock()

	if t.kernel == nil {
		return nil
	}
	return t.kernel(ctx, reads, writes)
}
