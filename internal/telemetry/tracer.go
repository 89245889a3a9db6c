package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for task-graph execution spans.
const (
	// ========================================================================
	// Task graph attributes
	// ========================================================================
	AttrTaskID    = "task.id"
	AttrParentID  = "task.parent_id"
	AttrStatus    = "task.status"
	AttrPhase     = "scheduler.phase"
	AttrMemReqd   = "task.mem_reqd"
	AttrQueueSize = "scheduler.queue_size"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheKey      = "cache.key"
	AttrCacheHit      = "cache.hit"
	AttrCacheState    = "cache.state"
	AttrCacheSize     = "cache.size"
	AttrCacheCapacity = "cache.capacity"
	AttrEvictReason   = "cache.evict_reason"
	AttrBacklogDepth  = "cache.backlog_depth"

	// ========================================================================
	// File and I/O attributes
	// ========================================================================
	AttrFile         = "io.file"
	AttrOffset       = "io.offset"
	AttrSize         = "io.size"
	AttrStride       = "io.stride"
	AttrNumStrides   = "io.n_strides"
	AttrLenPerStride = "io.len_per_stride"
	AttrIsWrite      = "io.is_write"
	AttrRetries      = "io.retries"
)

// Span names for engine operations.
const (
	// ========================================================================
	// Task lifecycle spans
	// ========================================================================
	SpanTaskAdmit   = "task.admit"
	SpanTaskAlloc   = "task.alloc"
	SpanTaskCompute = "task.compute"
	SpanTaskRelease = "task.release"

	// ========================================================================
	// Cache spans
	// ========================================================================
	SpanCacheAllocate  = "cache.allocate"
	SpanCacheWriteBack = "cache.writeback"
	SpanCacheEvict     = "cache.evict"
	SpanCacheFlush     = "cache.flush"

	// ========================================================================
	// I/O executor spans
	// ========================================================================
	SpanIOExecute = "ioexec.execute"
)

// TaskID returns an attribute for a task identifier.
func TaskID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrTaskID, int64(id))
}

// ParentID returns an attribute for a parent task identifier.
func ParentID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrParentID, int64(id))
}

// Status returns an attribute for a task lifecycle status.
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// Phase returns an attribute for a scheduler phase.
func Phase(phase string) attribute.KeyValue {
	return attribute.String(AttrPhase, phase)
}

// MemReqd returns an attribute for an incremental memory requirement.
func MemReqd(bytes uint64) attribute.KeyValue {
	return attribute.Int64(AttrMemReqd, int64(bytes))
}

// QueueSize returns an attribute for a scheduler queue depth.
func QueueSize(n int) attribute.KeyValue {
	return attribute.Int(AttrQueueSize, n)
}

// CacheKey returns an attribute for a stride cache key.
func CacheKey(key string) attribute.KeyValue {
	return attribute.String(AttrCacheKey, key)
}

// CacheHit returns an attribute for a cache hit indicator.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheState returns an attribute for a buffer cache state.
func CacheState(state string) attribute.KeyValue {
	return attribute.String(AttrCacheState, state)
}

// CacheSize returns an attribute for the current committed cache size.
func CacheSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrCacheSize, int64(size))
}

// CacheCapacity returns an attribute for the configured cache budget.
func CacheCapacity(capacity uint64) attribute.KeyValue {
	return attribute.Int64(AttrCacheCapacity, int64(capacity))
}

// EvictReason returns an attribute for an eviction cause.
func EvictReason(reason string) attribute.KeyValue {
	return attribute.String(AttrEvictReason, reason)
}

// BacklogDepth returns an attribute for the allocation backlog depth.
func BacklogDepth(n int) attribute.KeyValue {
	return attribute.Int(AttrBacklogDepth, n)
}

// File returns an attribute for a backing file identifier.
func File(id string) attribute.KeyValue {
	return attribute.String(AttrFile, id)
}

// Offset returns an attribute for a byte offset.
func Offset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// Size returns an attribute for a byte count.
func Size(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// Stride returns an attribute for the stride distance in a strided access.
func Stride(s uint64) attribute.KeyValue {
	return attribute.Int64(AttrStride, int64(s))
}

// NumStrides returns an attribute for the number of strides.
func NumStrides(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrNumStrides, int64(n))
}

// LenPerStride returns an attribute for the length of each stride.
func LenPerStride(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrLenPerStride, int64(n))
}

// IsWrite returns an attribute for whether an I/O request is a write.
func IsWrite(w bool) attribute.KeyValue {
	return attribute.Bool(AttrIsWrite, w)
}

// Retries returns an attribute for a hazard-detection retry count.
func Retries(n int) attribute.KeyValue {
	return attribute.Int(AttrRetries, n)
}

// StartTaskSpan starts a span covering one phase of a task's lifecycle.
func StartTaskSpan(ctx context.Context, phase string, taskID uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{TaskID(taskID), Phase(phase)}, attrs...)
	return StartSpan(ctx, fmt.Sprintf("task.%s", phase), trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a buffer cache operation.
func StartCacheSpan(ctx context.Context, operation string, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{CacheKey(key)}, attrs...)
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(allAttrs...))
}

// StartIOSpan starts a span for an I/O executor request.
func StartIOSpan(ctx context.Context, file string, offset uint64, isWrite bool, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{File(file), Offset(offset), IsWrite(isWrite)}, attrs...)
	return StartSpan(ctx, SpanIOExecute, trace.WithAttributes(allAttrs...))
}
