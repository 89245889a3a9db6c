// Package engine ties the buffer cache, I/O executor, and scheduler into
// the top-level API a caller drives a computation with: map backing files,
// allocate scratch space, submit a task graph, and block for completion.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/cache"
	"github.com/flashcore/ooce/pkg/filehandle"
	"github.com/flashcore/ooce/pkg/ioexec"
	"github.com/flashcore/ooce/pkg/metrics"
	"github.com/flashcore/ooce/pkg/scheduler"
	"github.com/flashcore/ooce/pkg/stride"
	"github.com/flashcore/ooce/pkg/task"
	"github.com/google/uuid"
)

// Sentinel errors for expected engine-level failure conditions.
var (
	ErrNotInitialized = errors.New("engine: not initialized")
	ErrAlreadyMapped  = errors.New("engine: file already mapped")
	ErrNotMapped      = errors.New("engine: file not mapped")
	ErrZeroLength     = errors.New("engine: cannot allocate zero bytes")
)

// mallocAlign is the granularity flash_malloc rounds allocation requests up
// to (ROUND_UP(n_bytes, 4096) in the original).
const mallocAlign = 4096

// Config configures Engine.Setup. See pkg/config for the layered
// (env/file/default) construction of this value.
type Config struct {
	MountDir           string
	CacheMaxSize       uint64
	NIOThreads         int
	NComputeThreads    int
	EnablePrioritizer  bool
	EnableOverlapCheck bool
	SingleUseDiscard   bool
	// MaxInMem bounds how many tasks may hold committed buffers
	// concurrently; defaults to 4x NComputeThreads when zero.
	MaxInMem int
	Backend            Backend
	Metrics            metrics.CacheMetrics
}

// Backend selects what kind of filehandle.Handle MapFile and FlashMalloc
// open. BackendDirect is the production O_DIRECT path; BackendMemory backs
// everything with in-process buffers, for tests and small working sets.
type Backend int

const (
	BackendDirect Backend = iota
	BackendMemory
)

// Engine owns the mapped file table, buffer cache, I/O executor, and
// scheduler for one mount directory's worth of out-of-core computation.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	handles map[stride.FileID]filehandle.Handle

	ioexec *ioexec.Executor
	cache  *cache.Cache
	sched  *scheduler.Scheduler
}

// Setup mirrors flash_setup(): it initializes the I/O executor, cache, and
// scheduler against mountDir and returns a ready Engine.
func Setup(cfg Config) (*Engine, error) {
	if cfg.MountDir == "" {
		return nil, errors.New("engine: mount dir required")
	}
	if err := os.MkdirAll(cfg.MountDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create mount dir: %w", err)
	}
	if cfg.NIOThreads <= 0 {
		cfg.NIOThreads = 4
	}
	if cfg.NComputeThreads <= 0 {
		cfg.NComputeThreads = 4
	}
	if cfg.MaxInMem <= 0 {
		cfg.MaxInMem = 4 * cfg.NComputeThreads
	}

	e := &Engine{
		cfg:     cfg,
		handles: make(map[stride.FileID]filehandle.Handle),
	}

	e.ioexec = ioexec.New(cfg.NIOThreads, cfg.EnableOverlapCheck)
	e.cache = cache.New(cache.Options{
		MaxSize:          cfg.CacheMaxSize,
		SingleUseDiscard: cfg.SingleUseDiscard,
		Resolve:          e.resolveHandle,
		Metrics:          cfg.Metrics,
	}, e.ioexec)
	e.sched = scheduler.New(e.cache, scheduler.Options{
		EnablePrioritizer:  cfg.EnablePrioritizer,
		EnableOverlapCheck: cfg.EnableOverlapCheck,
		SingleUseDiscard:   cfg.SingleUseDiscard,
		MaxInMem:           cfg.MaxInMem,
	}, cfg.NComputeThreads)

	logger.Info("engine: setup complete", logger.Path(cfg.MountDir))
	return e, nil
}

// Destroy tears down the scheduler and I/O executor and closes every
// mapped file, mirroring flash_destroy(). Backing files created via
// FlashMalloc are not removed; call FlashFree for those explicitly.
func (e *Engine) Destroy() {
	e.sched.Shutdown()
	e.ioexec.Shutdown()

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, h := range e.handles {
		if err := h.Close(); err != nil {
			logger.Warn("engine: close handle failed", logger.File(string(id)), logger.Err(err))
		}
	}
	e.handles = make(map[stride.FileID]filehandle.Handle)
}

// Cache exposes the underlying buffer cache, mainly for FlushCache/stats
// callers and tests.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Scheduler exposes the underlying scheduler for task submission.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.sched }

// Submit hands a task to the scheduler for admission once its parents
// complete.
func (e *Engine) Submit(t *task.Task) { e.sched.AddTask(t) }

// FlushCache blocks until every submitted task has completed and flushes
// dirty buffers to their backing files.
func (e *Engine) FlushCache(ctx context.Context) { e.sched.FlushCache(ctx) }

// resolveHandle satisfies cache.HandleResolver.
func (e *Engine) resolveHandle(id stride.FileID) (filehandle.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMapped, id)
	}
	return h, nil
}

// MapFile opens path as a backing file and registers it under the file's
// path as its stride.FileID. It is an error to map the same path twice
// without an intervening UnmapFile.
func (e *Engine) MapFile(path string, mode filehandle.Mode) (stride.FileID, error) {
	id := stride.FileID(path)

	e.mu.Lock()
	if _, ok := e.handles[id]; ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyMapped, path)
	}
	e.mu.Unlock()

	h, err := e.open(path, mode)
	if err != nil {
		return "", fmt.Errorf("engine: map %s: %w", path, err)
	}

	e.mu.Lock()
	e.handles[id] = h
	e.mu.Unlock()
	return id, nil
}

// UnmapFile closes and forgets the handle registered under id.
func (e *Engine) UnmapFile(id stride.FileID) error {
	e.mu.Lock()
	h, ok := e.handles[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotMapped, id)
	}
	delete(e.handles, id)
	e.mu.Unlock()
	return h.Close()
}

func (e *Engine) open(path string, mode filehandle.Mode) (filehandle.Handle, error) {
	if e.cfg.Backend == BackendMemory {
		return filehandle.NewMemory(stride.FileID(path), mode), nil
	}
	return filehandle.OpenDirect(path, mode)
}

// Ptr is a flash_ptr analogue: a handle plus a byte offset within it. Every
// blocking primitive below takes and returns Ptr values instead of raw
// pointers, since there is no address space to map into in Go.
type Ptr struct {
	File   stride.FileID
	Offset uint64
}

// Add returns a Ptr offset by delta bytes within the same file.
func (p Ptr) Add(delta uint64) Ptr { return Ptr{File: p.File, Offset: p.Offset + delta} }

// FlashMalloc creates a new backing file under the engine's mount directory
// sized to nBytes (rounded up to mallocAlign) and returns a Ptr to its
// start, mirroring flash_malloc(). optName, if non-empty, is embedded in
// the generated filename for debuggability.
func (e *Engine) FlashMalloc(nBytes uint64, optName string) (Ptr, error) {
	if nBytes == 0 {
		return Ptr{}, ErrZeroLength
	}
	rounded := roundUp(nBytes, mallocAlign)

	name := "tmp_"
	if optName != "" {
		name += optName + "_"
	}
	name += uuid.NewString()
	path := filepath.Join(e.cfg.MountDir, name)

	id, err := e.MapFile(path, filehandle.ModeReadWrite)
	if err != nil {
		return Ptr{}, fmt.Errorf("engine: flash_malloc: %w", err)
	}

	h, err := e.resolveHandle(id)
	if err != nil {
		return Ptr{}, err
	}
	if err := h.Truncate(context.Background(), rounded); err != nil {
		return Ptr{}, fmt.Errorf("engine: flash_malloc truncate: %w", err)
	}
	return Ptr{File: id}, nil
}

// FlashFree unmaps and removes the backing file for ptr, mirroring
// flash_free().
func (e *Engine) FlashFree(ptr Ptr) error {
	path := string(ptr.File)
	if err := e.UnmapFile(ptr.File); err != nil {
		return err
	}
	if e.cfg.Backend == BackendMemory {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("engine: flash_free remove %s: %w", path, err)
	}
	return nil
}

func roundUp(v, align uint64) uint64 { return (v + align - 1) &^ (align - 1) }
