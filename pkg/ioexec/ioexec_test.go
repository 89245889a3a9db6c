package ioexec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashcore/ooce/pkg/filehandle"
	"github.com/flashcore/ooce/pkg/stride"
)

func TestExecutorContiguousRoundTrip(t *testing.T) {
	h := filehandle.NewMemory("f", filehandle.ModeReadWrite)
	e := New(4, true)
	defer e.Shutdown()

	payload := []byte("payload-bytes")
	var wg sync.WaitGroup
	wg.Add(1)
	var writeErr error
	e.Submit(&Task{
		Handle:  h,
		Offset:  0,
		Info:    stride.Contiguous(uint64(len(payload))),
		Buf:     payload,
		IsWrite: true,
		Callback: func(err error) {
			writeErr = err
			wg.Done()
		},
	})
	wg.Wait()
	require.NoError(t, writeErr)

	out := make([]byte, len(payload))
	wg.Add(1)
	var readErr error
	e.Submit(&Task{
		Handle:  h,
		Offset:  0,
		Info:    stride.Contiguous(uint64(len(payload))),
		Buf:     out,
		Callback: func(err error) {
			readErr = err
			wg.Done()
		},
	})
	wg.Wait()
	require.NoError(t, readErr)
	require.Equal(t, payload, out)
}

func TestOverlapDetectsWriteWriteConflict(t *testing.T) {
	d1 := descriptor{file: "f", offset: 0, info: stride.Contiguous(100), isWrite: true}
	d2 := descriptor{file: "f", offset: 50, info: stride.Contiguous(100), isWrite: true}
	require.True(t, isOverlap(d1, d2))
}

func TestOverlapReadsNeverConflict(t *testing.T) {
	d1 := descriptor{file: "f", offset: 0, info: stride.Contiguous(100), isWrite: false}
	d2 := descriptor{file: "f", offset: 50, info: stride.Contiguous(100), isWrite: false}
	require.False(t, isOverlap(d1, d2))
}

func TestOverlapDifferentFilesNeverConflict(t *testing.T) {
	d1 := descriptor{file: "f1", offset: 0, info: stride.Contiguous(100), isWrite: true}
	d2 := descriptor{file: "f2", offset: 0, info: stride.Contiguous(100), isWrite: true}
	require.False(t, isOverlap(d1, d2))
}

func TestOverlapDisjointRangesNoConflict(t *testing.T) {
	d1 := descriptor{file: "f", offset: 0, info: stride.Contiguous(512), isWrite: true}
	d2 := descriptor{file: "f", offset: 4096, info: stride.Contiguous(512), isWrite: true}
	require.False(t, isOverlap(d1, d2))
}

// a read racing a geometrically-overlapping write must never be treated as
// a hazard: only a write/write pair can race.
func TestOverlapReadWriteNeverConflictsEvenWhenGeometryOverlaps(t *testing.T) {
	read := descriptor{file: "f", offset: 0, info: stride.Contiguous(100), isWrite: false}
	write := descriptor{file: "f", offset: 50, info: stride.Contiguous(100), isWrite: true}
	require.False(t, isOverlap(read, write))
	require.False(t, isOverlap(write, read))
}

func TestRegisterWorkerReturnsContext(t *testing.T) {
	e := New(1, false)
	defer e.Shutdown()

	ctx := e.RegisterWorker()
	require.NotNil(t, ctx)
}
