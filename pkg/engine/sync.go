package engine

import (
	"context"
	"fmt"

	"github.com/flashcore/ooce/pkg/bufpool"
)

// ReadSync blocks until len(dest) bytes have been read from src, mirroring
// read_sync(). It bypasses the buffer cache and issues the read directly
// against the mapped handle, for callers that need the bytes synchronously
// rather than through a task's declared reads.
func (e *Engine) ReadSync(ctx context.Context, dest []byte, src Ptr) (int, error) {
	h, err := e.resolveHandle(src.File)
	if err != nil {
		return 0, err
	}
	n, err := h.Read(ctx, src.Offset, dest)
	if err != nil {
		return n, fmt.Errorf("engine: read_sync: %w", err)
	}
	return n, nil
}

// WriteSync blocks until src has been written at dest, mirroring
// write_sync().
func (e *Engine) WriteSync(ctx context.Context, dest Ptr, src []byte) (int, error) {
	h, err := e.resolveHandle(dest.File)
	if err != nil {
		return 0, err
	}
	n, err := h.Write(ctx, dest.Offset, src)
	if err != nil {
		return n, fmt.Errorf("engine: write_sync: %w", err)
	}
	return n, nil
}

// FlashMemset writes nBytes copies of val starting at dest, mirroring
// flash_memset(). It buffers the fill pattern once and issues a single
// write rather than nBytes individual byte writes.
func (e *Engine) FlashMemset(ctx context.Context, dest Ptr, val byte, nBytes uint64) error {
	if nBytes == 0 {
		return nil
	}
	buf := bufpool.GetUint32(uint32(nBytes))[:nBytes]
	defer bufpool.Put(buf)
	for i := range buf {
		buf[i] = val
	}
	_, err := e.WriteSync(ctx, dest, buf)
	return err
}

// FlashMemcpy copies nBytes from src to dest without staging through
// caller-visible buffers, mirroring flash_memcpy(). When src and dest live
// on different handles this delegates to Handle.Copy; same-handle copies
// still go through Copy since the interface doesn't distinguish.
func (e *Engine) FlashMemcpy(ctx context.Context, dest, src Ptr, nBytes uint64) error {
	if nBytes == 0 {
		return nil
	}
	srcHandle, err := e.resolveHandle(src.File)
	if err != nil {
		return err
	}
	dstHandle, err := e.resolveHandle(dest.File)
	if err != nil {
		return err
	}
	if err := srcHandle.Copy(ctx, src.Offset, dstHandle, dest.Offset, nBytes); err != nil {
		return fmt.Errorf("engine: flash_memcpy: %w", err)
	}
	return nil
}

// FlashTruncate resizes the file backing ptr to ptr.Offset+newSize bytes,
// mirroring flash_truncate().
func (e *Engine) FlashTruncate(ctx context.Context, ptr Ptr, newSize uint64) error {
	h, err := e.resolveHandle(ptr.File)
	if err != nil {
		return err
	}
	if err := h.Truncate(ctx, ptr.Offset+newSize); err != nil {
		return fmt.Errorf("engine: flash_truncate: %w", err)
	}
	return nil
}
