// Package stride describes strided regions of files backing the out-of-core
// engine and the cache keys derived from them.
//
// A StrideInfo names a (possibly non-contiguous) region of a file as
// n_strides repetitions of len_per_stride bytes spaced stride bytes apart.
// A contiguous region is the degenerate case n_strides == 1.
package stride

import (
	"errors"
	"fmt"
	"hash/fnv"
)

// Info describes a strided access pattern within a single file.
//
//	stride == len_per_stride  -> contiguous region
//	stride  > len_per_stride  -> gaps between strides (e.g. matrix columns)
type Info struct {
	Stride       uint64
	NStrides     uint64
	LenPerStride uint64
}

// Contiguous returns a StrideInfo describing a single contiguous run of n
// bytes.
func Contiguous(n uint64) Info {
	return Info{Stride: n, NStrides: 1, LenPerStride: n}
}

// Validate checks the invariants required of every StrideInfo passed to a
// FileHandle or Task: at least one stride, and each stride must fit inside
// its own period.
func (si Info) Validate() error {
	if si.NStrides == 0 {
		return errors.New("stride: n_strides must be >= 1")
	}
	if si.LenPerStride == 0 {
		return errors.New("stride: len_per_stride must be > 0")
	}
	if si.LenPerStride > si.Stride {
		return fmt.Errorf("stride: len_per_stride (%d) exceeds stride (%d)", si.LenPerStride, si.Stride)
	}
	return nil
}

// Size returns the total number of bytes touched by the pattern, i.e. the
// buffer size a caller must supply.
func (si Info) Size() uint64 {
	return si.NStrides * si.LenPerStride
}

// Span returns the number of bytes between the start of the first stride
// and the end of the last, including any gaps skipped over.
func (si Info) Span() uint64 {
	if si.NStrides == 0 {
		return 0
	}
	return (si.NStrides-1)*si.Stride + si.LenPerStride
}

func (si Info) String() string {
	return fmt.Sprintf("[s=%d,n=%d,l=%d]", si.Stride, si.NStrides, si.LenPerStride)
}

// FileID identifies the backing file a Slice points into. It is the
// responsibility of the filehandle package to hand out stable, comparable
// IDs (e.g. an interned path or an *os.File pointer address is not safe,
// so a small integer or the path string is used).
type FileID string

// Slice is a lightweight, cheaply-cloned reference into a file: an
// identifier plus a byte offset. It carries no ownership over the
// underlying file the way a flash_ptr carries no ownership over the mmap'd
// region it addresses; adding to the offset produces a new Slice pointing
// further into the same file at zero cost.
type Slice struct {
	File   FileID
	Offset uint64
}

// Add returns a new Slice offset by delta bytes into the same file.
func (s Slice) Add(delta uint64) Slice {
	return Slice{File: s.File, Offset: s.Offset + delta}
}

// Key uniquely names a strided region of a file for cache lookup purposes.
// Two Keys compare equal iff they name the same file, offset and stride
// shape, mirroring flash::Key's operator==.
type Key struct {
	Slice Slice
	Info  Info
	hash  uint64
}

// NewKey builds a Key and precomputes its hash, avoiding recomputation on
// every map probe the way flash::Key::hash_value does.
func NewKey(slice Slice, info Info) Key {
	k := Key{Slice: slice, Info: info}
	k.hash = k.computeHash()
	return k
}

func (k Key) computeHash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.Slice.File))
	var buf [32]byte
	putUint64(buf[0:8], k.Slice.Offset)
	putUint64(buf[8:16], k.Info.Stride)
	putUint64(buf[16:24], k.Info.NStrides)
	putUint64(buf[24:32], k.Info.LenPerStride)
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Hash returns the precomputed FNV-1a hash of the key, suitable for
// sharding or logging; equality is still decided by field comparison.
func (k Key) Hash() uint64 {
	return k.hash
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d%s", k.Slice.File, k.Slice.Offset, k.Info.String())
}
