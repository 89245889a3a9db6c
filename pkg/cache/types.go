// Package cache implements the bounded buffer cache that stages data
// between the engine's working set and its backing files. Every resident
// buffer is in exactly one of three disjoint states: active (pinned, in
// use by a task), in-io (an allocation's fill read is in flight), or
// zero-ref (resident but unpinned, eligible for eviction). A buffer chosen
// for eviction or flush is removed from all three sets before its
// write-back runs; write-backs are not tracked in in-io. An ordered
// allocation backlog holds requests that could not be admitted under the
// cache's memory budget.
package cache

import (
	"github.com/flashcore/ooce/pkg/stride"
)

// State names which of the cache's three disjoint buffer sets an entry
// currently belongs to.
type State int

const (
	StateActive  State = iota // pinned, refcount > 0
	StateInIO                 // allocation fill read in flight
	StateZeroRef              // resident, unpinned, evictable
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInIO:
		return "in_io"
	case StateZeroRef:
		return "zero_ref"
	default:
		return "unknown"
	}
}

// entry is the cache's bookkeeping record for one resident (or
// in-progress) buffer.
type entry struct {
	key      stride.Key
	buf      []byte
	refcount int32
	dirty    bool
	state    State
}

func (e *entry) size() uint64 {
	return uint64(len(e.buf))
}

// backlogRequest is a single pending Allocate call that could not be
// admitted immediately because the cache was over budget.
type backlogRequest struct {
	key     stride.Key
	isWrite bool
	notify  chan allocResult
}

// allocResult is delivered to a caller of Allocate once its request has
// been admitted (or failed).
type allocResult struct {
	buf []byte
	err error
}
