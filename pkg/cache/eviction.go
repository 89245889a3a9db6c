package cache

import (
	"context"
	"time"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/ioexec"
	"github.com/flashcore/ooce/pkg/stride"
)

// evictLocked evicts zero-ref entries, oldest first, until at least
// needed bytes of budget headroom exist or the zero-ref set is exhausted.
// Caller holds c.mu; write-back I/O for dirty victims happens after the
// lock is released to avoid blocking other cache operations on disk
// latency.
func (c *Cache) evictLocked(needed uint64) {
	var victims []*entry
	for c.committed+needed > c.opts.MaxSize {
		front := c.lru.Front()
		if front == nil {
			break
		}
		key := front.Value.(stride.Key)
		e := c.zeroRef[key]
		delete(c.zeroRef, key)
		delete(c.lruElem, key)
		c.lru.Remove(front)
		c.committed -= e.size()
		victims = append(victims, e)
	}
	if len(victims) == 0 {
		return
	}
	c.mu.Unlock()
	for _, e := range victims {
		c.writeBackIfDirty(e.key, e)
		if c.opts.Metrics != nil {
			c.opts.Metrics.ObserveEviction("budget", e.size())
		}
		c.opts.Pool.Put(e.buf)
	}
	c.mu.Lock()
}

// writeBackIfDirty flushes a dirty buffer to its backing file before its
// memory is reclaimed. Errors are logged rather than propagated since
// eviction is not on any caller's synchronous path.
func (c *Cache) writeBackIfDirty(key stride.Key, e *entry) {
	if !e.dirty {
		return
	}
	start := time.Now()
	handle, err := c.opts.Resolve(key.Slice.File)
	if err != nil {
		logger.Error("cache: write-back resolve failed", logger.Key(key.String()), logger.Err(err))
		return
	}
	done := make(chan error, 1)
	c.ioexec.Submit(&ioexec.Task{
		Handle:   handle,
		Offset:   key.Slice.Offset,
		Info:     key.Info,
		Buf:      e.buf,
		IsWrite:  true,
		Callback: func(err error) { done <- err },
	})
	if err := <-done; err != nil {
		logger.Error("cache: write-back failed", logger.Key(key.String()), logger.Err(err))
		return
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveWriteBack(e.size(), time.Since(start))
	}
}

// TryEvict evicts zero-ref buffers, oldest first, until committed plus
// needed fits within MaxSize or no zero-ref buffer is left; it returns the
// number of bytes actually freed. Dirty victims are written back
// synchronously, so the call can block on that I/O.
func (c *Cache) TryEvict(needed uint64) uint64 {
	c.mu.Lock()
	before := c.committed
	c.evictLocked(needed)
	freed := before - c.committed
	c.mu.Unlock()
	return freed
}

// Evict forcibly removes a single zero-ref entry, writing it back first if
// dirty. It is a no-op if key is not currently zero-ref.
func (c *Cache) Evict(key stride.Key) {
	c.mu.Lock()
	e, ok := c.zeroRef[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.zeroRef, key)
	if elem, ok := c.lruElem[key]; ok {
		c.lru.Remove(elem)
		delete(c.lruElem, key)
	}
	c.committed -= e.size()
	c.mu.Unlock()

	c.writeBackIfDirty(key, e)
	c.opts.Pool.Put(e.buf)
}

// Flush writes back every dirty zero-ref entry and evicts it, driving the
// cache's committed budget back to zero. It assumes active and the
// allocation backlog are already empty — Scheduler.FlushCache blocks until
// every admitted task has released its buffers before calling here — so
// only the zero-ref set needs draining.
func (c *Cache) Flush(ctx context.Context) {
	c.mu.Lock()
	var victims []*entry
	for key, e := range c.zeroRef {
		delete(c.zeroRef, key)
		if elem, ok := c.lruElem[key]; ok {
			c.lru.Remove(elem)
			delete(c.lruElem, key)
		}
		c.committed -= e.size()
		victims = append(victims, e)
	}
	c.mu.Unlock()

	for _, e := range victims {
		c.writeBackIfDirty(e.key, e)
		if c.opts.Metrics != nil {
			c.opts.Metrics.ObserveEviction("flush", e.size())
		}
		c.opts.Pool.Put(e.buf)
	}
}

// DropIfInCache evicts any of the given keys that are currently zero-ref,
// shrinking the working set ahead of a large incoming allocation.
func (c *Cache) DropIfInCache(keys []stride.Key) {
	for _, k := range keys {
		c.Evict(k)
	}
}

// KeepIfInCache filters keys down to the subset that is actually resident
// (active, in-io, or zero-ref) right now, used by the prioritizer to
// refresh its view of the working set before recomputing task priorities.
func (c *Cache) KeepIfInCache(keys []stride.Key) []stride.Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]stride.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := c.active[k]; ok {
			kept = append(kept, k)
			continue
		}
		if _, ok := c.inIO[k]; ok {
			kept = append(kept, k)
			continue
		}
		if _, ok := c.zeroRef[k]; ok {
			kept = append(kept, k)
		}
	}
	return kept
}
