package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashcore/ooce/pkg/stride"
)

func TestTaskExecuteRequiresBoundBuffers(t *testing.T) {
	key := stride.NewKey(stride.Slice{File: "f", Offset: 0}, stride.Contiguous(8))
	tsk := New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
		return nil
	})
	tsk.AddRead(key)

	err := tsk.Execute(context.Background())
	require.Error(t, err)

	tsk.BindBuffer(key, make([]byte, 8))
	err = tsk.Execute(context.Background())
	require.NoError(t, err)
}

func TestTaskKernelSeesBoundBuffers(t *testing.T) {
	readKey := stride.NewKey(stride.Slice{File: "in", Offset: 0}, stride.Contiguous(4))
	writeKey := stride.NewKey(stride.Slice{File: "out", Offset: 0}, stride.Contiguous(4))

	var seenRead, seenWrite []byte
	tsk := New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
		seenRead = reads[readKey]
		seenWrite = writes[writeKey]
		copy(seenWrite, seenRead)
		return nil
	})
	tsk.AddRead(readKey)
	tsk.AddWrite(writeKey)

	rbuf := []byte{1, 2, 3, 4}
	wbuf := make([]byte, 4)
	tsk.BindBuffer(readKey, rbuf)
	tsk.BindBuffer(writeKey, wbuf)

	require.NoError(t, tsk.Execute(context.Background()))
	require.Equal(t, rbuf, seenRead)
	require.Equal(t, rbuf, wbuf)
}

func TestTaskStatusLifecycle(t *testing.T) {
	tsk := New(nil)
	require.Equal(t, Wait, tsk.Status())
	tsk.SetStatus(ComputeReady)
	require.Equal(t, ComputeReady, tsk.Status())
}

func TestTaskIDsAreUnique(t *testing.T) {
	a := New(nil)
	b := New(nil)
	require.NotEqual(t, a.ID(), b.ID())
}

func TestAllKeysDeduplicates(t *testing.T) {
	key := stride.NewKey(stride.Slice{File: "f", Offset: 0}, stride.Contiguous(8))
	tsk := New(nil)
	tsk.AddRead(key)
	tsk.AddWrite(key)
	require.Len(t, tsk.AllKeys(), 1)
}
