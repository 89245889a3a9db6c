// Package prioritizer orders ready tasks to maximize buffer cache reuse:
// tasks whose keys are already resident sort ahead of tasks that would
// require fresh allocations, so the scheduler drains the cheapest work
// first and keeps hot buffers hot.
package prioritizer

import (
	"sort"
	"sync"

	"github.com/flashcore/ooce/pkg/cache"
	"github.com/flashcore/ooce/pkg/stride"
	"github.com/flashcore/ooce/pkg/task"
)

// Info bundles a task with its precomputed scheduling weight.
type Info struct {
	Task    *task.Task
	AllKeys []stride.Key
	MemReqd uint64
}

// Prioritizer holds tasks that are ready for allocation, ordered ascending
// by incremental memory requirement so the scheduler always admits the
// task that reuses the most already-resident data next.
type Prioritizer struct {
	mu         sync.Mutex
	inMemKeys  map[stride.Key]struct{}
	queue      []Info
	cache      *cache.Cache
	usePrio    bool
}

// New creates a Prioritizer backed by cache for residency lookups.
// usePrio false degrades to FCFS ordering, useful for tests that want
// deterministic admission order regardless of buffer reuse.
func New(c *cache.Cache, usePrio bool) *Prioritizer {
	return &Prioritizer{
		inMemKeys: make(map[stride.Key]struct{}),
		cache:     c,
		usePrio:   usePrio,
	}
}

func (p *Prioritizer) memReqd(keys []stride.Key) uint64 {
	var total uint64
	for _, k := range keys {
		if _, resident := p.inMemKeys[k]; !resident {
			total += k.Info.Size()
		}
	}
	return total
}

// Insert adds a batch of ready tasks to the queue. It does not force a
// reordering; call Update to refresh residency information and re-sort.
func (p *Prioritizer) Insert(tasks []*task.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range tasks {
		keys := t.AllKeys()
		info := Info{Task: t, AllKeys: keys}
		if p.usePrio {
			info.MemReqd = p.memReqd(keys)
		}
		p.queue = append(p.queue, info)
	}
}

// Empty reports whether the queue has any tasks.
func (p *Prioritizer) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0
}

// Size returns the number of queued tasks.
func (p *Prioritizer) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// GetPrio pops and returns the highest-priority (lowest mem_reqd) task.
func (p *Prioritizer) GetPrio() (Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return Info{}, false
	}
	info := p.queue[0]
	p.queue = p.queue[1:]
	return info, true
}

// ReturnPrio pushes a previously popped task back to the front of the
// queue, used when the scheduler can't currently admit it despite it being
// the highest priority candidate (e.g. there is no memory for it yet).
func (p *Prioritizer) ReturnPrio(info Info) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append([]Info{info}, p.queue...)
}

// Update refreshes the in-memory key set against the cache's actual
// residency, recomputes every queued task's mem_reqd, and re-sorts the
// queue ascending by mem_reqd so priority ordering is fresh before the
// next round of admission.
func (p *Prioritizer) Update() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.usePrio {
		return
	}

	union := make(map[stride.Key]struct{})
	for _, info := range p.queue {
		for _, k := range info.AllKeys {
			union[k] = struct{}{}
		}
	}
	all := make([]stride.Key, 0, len(union))
	for k := range union {
		all = append(all, k)
	}
	resident := p.cache.KeepIfInCache(all)

	p.inMemKeys = make(map[stride.Key]struct{}, len(resident))
	for _, k := range resident {
		p.inMemKeys[k] = struct{}{}
	}

	for i := range p.queue {
		p.queue[i].MemReqd = p.memReqd(p.queue[i].AllKeys)
	}

	sort.SliceStable(p.queue, func(i, j int) bool {
		return p.queue[i].MemReqd < p.queue[j].MemReqd
	})
}
