// Package filehandle implements the file-handle abstraction the engine
// stages buffers through: a small set of contiguous and strided read/write/
// copy primitives over files that may live on NVMe-class block storage or,
// for tests and small working sets, entirely in memory.
package filehandle

import (
	"context"
	"errors"

	"github.com/flashcore/ooce/pkg/stride"
)

// Mode selects the access pattern a Handle is opened for. Direct-I/O
// backends use it to choose open(2) flags.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned by any operation attempted on a closed handle.
	ErrClosed = errors.New("filehandle: closed")

	// ErrReadOnly is returned when a write is attempted on a Handle opened
	// with ModeRead.
	ErrReadOnly = errors.New("filehandle: handle is read-only")

	// ErrWriteOnly is returned when a read is attempted on a Handle opened
	// with ModeWrite.
	ErrWriteOnly = errors.New("filehandle: handle is write-only")
)

// Handle is the minimal set of operations the I/O executor drives against a
// backing file. Every offset is relative to the start of the file the
// Handle was opened against.
type Handle interface {
	// ID returns the stable identifier used to key cache entries and detect
	// hazards between concurrent accesses to the same file.
	ID() stride.FileID

	// Size returns the current size of the file in bytes.
	Size() (uint64, error)

	// Read fills buf with len(buf) bytes starting at offset.
	Read(ctx context.Context, offset uint64, buf []byte) (int, error)

	// Write writes buf to the file starting at offset.
	Write(ctx context.Context, offset uint64, buf []byte) (int, error)

	// SRead performs a strided read described by info into buf. len(buf)
	// must equal info.Size().
	SRead(ctx context.Context, offset uint64, info stride.Info, buf []byte) (int, error)

	// SWrite performs a strided write described by info from buf. len(buf)
	// must equal info.Size(). Overlapping strides (stride < len_per_stride
	// is impossible by construction, but consecutive strides may still
	// straddle the same disk sector) are coalesced into merged
	// read-modify-write blocks so no sector is written twice from stale
	// data.
	SWrite(ctx context.Context, offset uint64, info stride.Info, buf []byte) (int, error)

	// Copy transfers n bytes from this handle at srcOffset to dst at
	// dstOffset.
	Copy(ctx context.Context, srcOffset uint64, dst Handle, dstOffset uint64, n uint64) error

	// SCopy transfers a strided region from this handle at srcOffset to a
	// contiguous region of dst at dstOffset.
	SCopy(ctx context.Context, srcOffset uint64, info stride.Info, dst Handle, dstOffset uint64) error

	// Truncate resizes the file to size bytes.
	Truncate(ctx context.Context, size uint64) error

	// Close releases the resources backing the handle.
	Close() error
}

// checkSize returns a descriptive error if buf is not exactly the size the
// stride pattern demands.
func checkSize(info stride.Info, buf []byte) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if want := info.Size(); uint64(len(buf)) != want {
		return errors.New("filehandle: buffer size does not match stride pattern")
	}
	return nil
}
