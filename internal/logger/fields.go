package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the engine.
// Use these keys consistently across all log statements for log aggregation
// and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Task Graph
	// ========================================================================
	KeyTaskID    = "task_id"    // Globally unique task identifier
	KeyParentID  = "parent_id"  // Parent task identifier
	KeyStatus    = "status"     // Task lifecycle status: wait, alloc_ready, alloc, compute_ready, compute, complete
	KeyPhase     = "phase"      // Scheduler phase: admit, alloc, compute, complete
	KeyMemReqd   = "mem_reqd"   // Incremental memory requirement computed by the prioritizer
	KeyQueueSize = "queue_size" // Depth of a scheduler queue (wait, compute, complete)

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheState    = "cache_state"    // Buffer state: active, in_io, zero_ref
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheSize     = "cache_size"     // Current committed cache size
	KeyCacheCapacity = "cache_capacity" // Configured cache memory budget
	KeyEvicted       = "evicted"        // Number of buffers evicted
	KeyEvictReason   = "evict_reason"   // Eviction cause: budget, flush
	KeyBacklogDepth  = "backlog_depth"  // Number of allocation requests waiting on the backlog

	// ========================================================================
	// File & I/O Operations
	// ========================================================================
	KeyFile         = "file"         // Backing file identifier
	KeyPath         = "path"         // Filesystem path
	KeyOffset       = "offset"       // Byte offset within a file
	KeySize         = "size"         // Byte count for a read/write/allocation
	KeyStride       = "stride"       // Distance in bytes between successive strides
	KeyNumStrides   = "n_strides"    // Number of strides in a strided access
	KeyLenPerStride = "len_per_stride"
	KeyIsWrite      = "is_write" // Whether an I/O request is a write
	KeyRetries      = "retries" // Number of hazard-detection retries attempted

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeySource     = "source"      // Component emitting the log line
	KeyOperation  = "operation"   // Sub-operation type for complex operations
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
	KeyRequestID  = "request_id"  // Correlates a batch of related log lines
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// TaskID returns a slog.Attr for a task identifier
func TaskID(id uint64) slog.Attr {
	return slog.Uint64(KeyTaskID, id)
}

// ParentID returns a slog.Attr for a parent task identifier
func ParentID(id uint64) slog.Attr {
	return slog.Uint64(KeyParentID, id)
}

// Status returns a slog.Attr for a lifecycle status string
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Phase returns a slog.Attr for a scheduler phase
func Phase(phase string) slog.Attr {
	return slog.String(KeyPhase, phase)
}

// MemReqd returns a slog.Attr for an incremental memory requirement
func MemReqd(bytes uint64) slog.Attr {
	return slog.Uint64(KeyMemReqd, bytes)
}

// QueueSize returns a slog.Attr for a queue depth
func QueueSize(n int) slog.Attr {
	return slog.Int(KeyQueueSize, n)
}

// CacheState returns a slog.Attr for a buffer cache state
func CacheState(state string) slog.Attr {
	return slog.String(KeyCacheState, state)
}

// CacheHit returns a slog.Attr for a cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheSize returns a slog.Attr for current cache size
func CacheSize(size uint64) slog.Attr {
	return slog.Uint64(KeyCacheSize, size)
}

// CacheCapacity returns a slog.Attr for maximum cache capacity
func CacheCapacity(capacity uint64) slog.Attr {
	return slog.Uint64(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for number of buffers evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// EvictReason returns a slog.Attr for an eviction cause
func EvictReason(reason string) slog.Attr {
	return slog.String(KeyEvictReason, reason)
}

// BacklogDepth returns a slog.Attr for the allocation backlog depth
func BacklogDepth(n int) slog.Attr {
	return slog.Int(KeyBacklogDepth, n)
}

// File returns a slog.Attr for a backing file identifier
func File(id string) slog.Attr {
	return slog.String(KeyFile, id)
}

// Path returns a slog.Attr for a filesystem path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Offset returns a slog.Attr for a byte offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Size returns a slog.Attr for a byte count
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Key returns a slog.Attr for a formatted cache/stride key
func Key(k string) slog.Attr {
	return slog.String("key", k)
}

// Stride returns a slog.Attr for the stride distance in a strided access
func Stride(s uint64) slog.Attr {
	return slog.Uint64(KeyStride, s)
}

// NumStrides returns a slog.Attr for the number of strides
func NumStrides(n uint64) slog.Attr {
	return slog.Uint64(KeyNumStrides, n)
}

// LenPerStride returns a slog.Attr for the length of each stride
func LenPerStride(n uint64) slog.Attr {
	return slog.Uint64(KeyLenPerStride, n)
}

// IsWrite returns a slog.Attr for whether an I/O request is a write
func IsWrite(w bool) slog.Attr {
	return slog.Bool(KeyIsWrite, w)
}

// Retries returns a slog.Attr for a hazard-detection retry count
func Retries(n int) slog.Attr {
	return slog.Int(KeyRetries, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr for the component emitting the log line
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// RequestID returns a slog.Attr correlating a batch of related log lines
func RequestID(id uint64) slog.Attr {
	return slog.Uint64(KeyRequestID, id)
}
