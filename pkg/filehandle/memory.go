package filehandle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flashcore/ooce/pkg/stride"
)

// MemoryFile is a Handle backed by a growable in-memory byte slice. It is
// used for tests and for small working sets that never need to spill to
// disk. Every read and write copies defensively so callers cannot mutate
// the backing storage through an aliased buffer.
type MemoryFile struct {
	mu     sync.RWMutex
	id     stride.FileID
	mode   Mode
	data   []byte
	closed atomic.Bool
}

// NewMemory creates a new zero-length in-memory handle identified by id.
func NewMemory(id stride.FileID, mode Mode) *MemoryFile {
	return &MemoryFile{id: id, mode: mode}
}

func (m *MemoryFile) ID() stride.FileID { return m.id }

func (m *MemoryFile) Size() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.data)), nil
}

func (m *MemoryFile) growLocked(end uint64) {
	if uint64(len(m.data)) >= end {
		return
	}
	grown := make([]byte, end)
	copy(grown, m.data)
	m.data = grown
}

func (m *MemoryFile) Read(ctx context.Context, offset uint64, buf []byte) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if m.mode == ModeWrite {
		return 0, ErrWriteOnly
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if offset >= uint64(len(m.data)) {
		return 0, nil
	}
	n := copy(buf, m.data[offset:])
	return n, nil
}

func (m *MemoryFile) Write(ctx context.Context, offset uint64, buf []byte) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if m.mode == ModeRead {
		return 0, ErrReadOnly
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.growLocked(offset + uint64(len(buf)))
	n := copy(m.data[offset:], buf)
	return n, nil
}

func (m *MemoryFile) SRead(ctx context.Context, offset uint64, info stride.Info, buf []byte) (int, error) {
	if err := checkSize(info, buf); err != nil {
		return 0, err
	}
	total := 0
	for i := uint64(0); i < info.NStrides; i++ {
		n, err := m.Read(ctx, offset+i*info.Stride, buf[total:total+int(info.LenPerStride)])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (m *MemoryFile) SWrite(ctx context.Context, offset uint64, info stride.Info, buf []byte) (int, error) {
	if err := checkSize(info, buf); err != nil {
		return 0, err
	}
	total := 0
	for i := uint64(0); i < info.NStrides; i++ {
		n, err := m.Write(ctx, offset+i*info.Stride, buf[total:total+int(info.LenPerStride)])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (m *MemoryFile) Copy(ctx context.Context, srcOffset uint64, dst Handle, dstOffset uint64, n uint64) error {
	buf := make([]byte, n)
	if _, err := m.Read(ctx, srcOffset, buf); err != nil {
		return err
	}
	_, err := dst.Write(ctx, dstOffset, buf)
	return err
}

func (m *MemoryFile) SCopy(ctx context.Context, srcOffset uint64, info stride.Info, dst Handle, dstOffset uint64) error {
	buf := make([]byte, info.Size())
	if _, err := m.SRead(ctx, srcOffset, info, buf); err != nil {
		return err
	}
	_, err := dst.Write(ctx, dstOffset, buf)
	return err
}

func (m *MemoryFile) Truncate(ctx context.Context, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size <= uint64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	m.growLocked(size)
	return nil
}

func (m *MemoryFile) Close() error {
	m.closed.Store(true)
	return nil
}

var (
	_ Handle = (*MemoryFile)(nil)
	_ Handle = (*DirectFile)(nil)
)
