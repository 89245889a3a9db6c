package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/bufpool"
	"github.com/flashcore/ooce/pkg/filehandle"
	"github.com/flashcore/ooce/pkg/ioexec"
	"github.com/flashcore/ooce/pkg/metrics"
	"github.com/flashcore/ooce/pkg/stride"
)

// HandleResolver looks up the open filehandle.Handle backing a file id, so
// the cache can issue fill and write-back I/O without owning file lifetime
// itself.
type HandleResolver func(stride.FileID) (filehandle.Handle, error)

// Options configures a Cache.
type Options struct {
	// MaxSize is the memory budget in bytes: committed (active + in-io +
	// zero-ref) buffer bytes may never exceed this.
	MaxSize uint64

	// SingleUseDiscard, when set, evicts a buffer immediately on Release
	// instead of parking it in the zero-ref set, trading reuse for a
	// smaller steady-state footprint. Mirrors SchedulerOptions::single_use_discard.
	SingleUseDiscard bool

	Resolve HandleResolver
	Pool    *bufpool.Pool
	Metrics metrics.CacheMetrics
}

// Cache is the bounded, disk-backed buffer cache. All exported methods are
// safe for concurrent use.
type Cache struct {
	opts Options

	mu      sync.Mutex
	active  map[stride.Key]*entry
	inIO    map[stride.Key]*entry
	zeroRef map[stride.Key]*entry
	lru     *list.List // zero-ref eviction order, front = oldest
	lruElem map[stride.Key]*list.Element

	committed uint64 // active + inIO + zeroRef buffer bytes
	backlog   []*backlogRequest

	ioexec *ioexec.Executor
}

// New constructs a Cache backed by the given I/O executor for fill and
// write-back traffic.
func New(opts Options, exec *ioexec.Executor) *Cache {
	if opts.Pool == nil {
		opts.Pool = bufpool.NewPool(nil)
	}
	return &Cache{
		opts:    opts,
		active:  make(map[stride.Key]*entry),
		inIO:    make(map[stride.Key]*entry),
		zeroRef: make(map[stride.Key]*entry),
		lru:     list.New(),
		lruElem: make(map[stride.Key]*list.Element),
		ioexec:  exec,
	}
}

// Stats reports the cache's current occupancy for metrics and tests.
type Stats struct {
	Active    int
	InIO      int
	ZeroRef   int
	Backlog   int
	Committed uint64
	MaxSize   uint64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Active:    len(c.active),
		InIO:      len(c.inIO),
		ZeroRef:   len(c.zeroRef),
		Backlog:   len(c.backlog),
		Committed: c.committed,
		MaxSize:   c.opts.MaxSize,
	}
}

// GetBuf returns the buffer currently bound to key if it is active or
// zero-ref, incrementing the refcount of an active entry and promoting a
// zero-ref entry back to active with a refcount of one. It never issues
// I/O or blocks; callers that miss must go through Allocate.
func (c *Cache) GetBuf(key stride.Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.active[key]; ok {
		e.refcount++
		return e.buf, true
	}
	if e, ok := c.zeroRef[key]; ok {
		c.promoteToActiveLocked(key, e)
		return e.buf, true
	}
	return nil, false
}

// Allocate obtains a pinned buffer for key, allocating and (for reads)
// filling it from the backing file if it is not already resident. If the
// cache is over its memory budget and no zero-ref buffers can be evicted
// to make room, the request is queued on the allocation backlog and
// Allocate blocks until ServiceBacklog admits it.
func (c *Cache) Allocate(ctx context.Context, key stride.Key, isWrite bool) ([]byte, error) {
	start := time.Now()
	if buf, ok := c.GetBuf(key); ok {
		if c.opts.Metrics != nil {
			c.opts.Metrics.ObserveAllocate(true, uint64(len(buf)), time.Since(start))
		}
		return buf, nil
	}

	size := key.Info.Size()

	c.mu.Lock()
	if c.committed+size > c.opts.MaxSize {
		c.evictLocked(size)
	}
	if c.committed+size > c.opts.MaxSize {
		req := &backlogRequest{key: key, isWrite: isWrite, notify: make(chan allocResult, 1)}
		c.backlog = append(c.backlog, req)
		depth := len(c.backlog)
		c.mu.Unlock()
		logger.Debug("cache: allocation backlogged", logger.Key(key.String()), logger.Size(size))
		if c.opts.Metrics != nil {
			c.opts.Metrics.ObserveBacklog(depth)
		}
		select {
		case res := <-req.notify:
			return res.buf, res.err
		case <-ctx.Done():
			c.mu.Lock()
			for i, r := range c.backlog {
				if r == req {
					c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
					c.mu.Unlock()
					return nil, ctx.Err()
				}
			}
			c.mu.Unlock()
			// ServiceBacklog already took the request; drop the pin it
			// is about to hand over.
			if res := <-req.notify; res.err == nil {
				c.Release(key)
			}
			return nil, ctx.Err()
		}
	}

	buf := c.opts.Pool.Get(int(size))[:size]
	e := &entry{key: key, buf: buf, refcount: 1, state: StateInIO}
	c.inIO[key] = e
	c.committed += size
	c.mu.Unlock()

	if !isWrite {
		if err := c.fill(ctx, key, buf); err != nil {
			c.mu.Lock()
			delete(c.inIO, key)
			c.committed -= size
			c.mu.Unlock()
			c.opts.Pool.Put(buf)
			return nil, err
		}
	}

	c.mu.Lock()
	delete(c.inIO, key)
	e.state = StateActive
	c.active[key] = e
	c.mu.Unlock()

	if isWrite {
		c.markDirty(key)
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveAllocate(false, size, time.Since(start))
	}
	return buf, nil
}

// AllocRequest names one key a caller wants resident, and whether it is
// bound for a write (skip fill) or a read.
type AllocRequest struct {
	Key     stride.Key
	IsWrite bool
}

// AllocBufs allocates every requested key, in order. If any request fails
// after some have already succeeded, the ones that succeeded are released
// before returning the error, so a task never ends up holding a partial
// set of buffers. Mirrors the batch alloc_bufs() a task's admission step
// calls to pin its entire read/write set atomically from the caller's
// perspective.
func (c *Cache) AllocBufs(ctx context.Context, reqs []AllocRequest) (map[stride.Key][]byte, error) {
	bufs := make(map[stride.Key][]byte, len(reqs))
	for _, r := range reqs {
		buf, err := c.Allocate(ctx, r.Key, r.IsWrite)
		if err != nil {
			for k := range bufs {
				c.Release(k)
			}
			return nil, fmt.Errorf("cache: alloc_bufs: %w", err)
		}
		bufs[r.Key] = buf
	}
	return bufs, nil
}

// fill issues a synchronous read through the I/O executor to populate buf
// with the bytes named by key.
func (c *Cache) fill(ctx context.Context, key stride.Key, buf []byte) error {
	handle, err := c.opts.Resolve(key.Slice.File)
	if err != nil {
		return fmt.Errorf("cache: resolve %s: %w", key.Slice.File, err)
	}

	done := make(chan error, 1)
	c.ioexec.Submit(&ioexec.Task{
		Handle:   handle,
		Offset:   key.Slice.Offset,
		Info:     key.Info,
		Buf:      buf,
		IsWrite:  false,
		Callback: func(err error) { done <- err },
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markDirty flags an active entry as needing write-back before eviction.
func (c *Cache) markDirty(key stride.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.active[key]; ok {
		e.dirty = true
	}
}

// Release drops one pin on key. Once the refcount reaches zero, the buffer
// moves to the zero-ref set (or is evicted immediately under
// SingleUseDiscard) and the allocation backlog is serviced.
func (c *Cache) Release(key stride.Key) {
	c.mu.Lock()
	e, ok := c.active[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.refcount--
	if e.refcount > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.active, key)

	if c.opts.SingleUseDiscard {
		c.committed -= e.size()
		c.mu.Unlock()
		c.writeBackIfDirty(key, e)
		c.opts.Pool.Put(e.buf)
		c.ServiceBacklog(context.Background())
		return
	}

	e.state = StateZeroRef
	c.zeroRef[key] = e
	c.lruElem[key] = c.lru.PushBack(key)
	c.mu.Unlock()

	c.ServiceBacklog(context.Background())
}

// promoteToActiveLocked moves an entry from zero-ref back to active. Caller
// holds c.mu.
func (c *Cache) promoteToActiveLocked(key stride.Key, e *entry) {
	delete(c.zeroRef, key)
	if elem, ok := c.lruElem[key]; ok {
		c.lru.Remove(elem)
		delete(c.lruElem, key)
	}
	e.refcount = 1
	e.state = StateActive
	c.active[key] = e
}

// ServiceBacklog attempts to admit queued allocation requests in FIFO
// order, stopping at the first one that still cannot be satisfied so that
// requests are never reordered past each other.
func (c *Cache) ServiceBacklog(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.backlog) == 0 {
			c.mu.Unlock()
			return
		}
		req := c.backlog[0]
		size := req.key.Info.Size()
		if c.committed+size > c.opts.MaxSize {
			c.evictLocked(size)
		}
		if c.committed+size > c.opts.MaxSize {
			c.mu.Unlock()
			return
		}
		c.backlog = c.backlog[1:]
		c.mu.Unlock()

		buf, err := c.Allocate(ctx, req.key, req.isWrite)
		req.notify <- allocResult{buf: buf, err: err}
	}
}
