package prioritizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashcore/ooce/pkg/cache"
	"github.com/flashcore/ooce/pkg/filehandle"
	"github.com/flashcore/ooce/pkg/ioexec"
	"github.com/flashcore/ooce/pkg/stride"
	"github.com/flashcore/ooce/pkg/task"
)

func newTestPrioritizer(t *testing.T) (*Prioritizer, *cache.Cache) {
	t.Helper()
	h := filehandle.NewMemory("f", filehandle.ModeReadWrite)
	exec := ioexec.New(2, false)
	t.Cleanup(exec.Shutdown)
	c := cache.New(cache.Options{
		MaxSize: 1 << 20,
		Resolve: func(id stride.FileID) (filehandle.Handle, error) { return h, nil },
	}, exec)
	return New(c, true), c
}

func TestPrioritizerOrdersByIncrementalMemory(t *testing.T) {
	p, c := newTestPrioritizer(t)

	resident := stride.NewKey(stride.Slice{File: "f", Offset: 0}, stride.Contiguous(64))
	_, err := c.Allocate(context.Background(), resident, true)
	require.NoError(t, err)

	cheapTask := task.New(nil)
	cheapTask.AddRead(resident)

	expensiveKey := stride.NewKey(stride.Slice{File: "f", Offset: 1024}, stride.Contiguous(4096))
	expensiveTask := task.New(nil)
	expensiveTask.AddRead(expensiveKey)

	// insert expensive first so ordering must come from priority, not FIFO.
	p.Insert([]*task.Task{expensiveTask, cheapTask})
	p.Update()

	first, ok := p.GetPrio()
	require.True(t, ok)
	require.Equal(t, cheapTask.ID(), first.Task.ID())
}

func TestReturnPrioPushesToFront(t *testing.T) {
	p, _ := newTestPrioritizer(t)
	a := task.New(nil)
	b := task.New(nil)
	p.Insert([]*task.Task{a, b})

	popped, ok := p.GetPrio()
	require.True(t, ok)
	p.ReturnPrio(popped)

	next, ok := p.GetPrio()
	require.True(t, ok)
	require.Equal(t, popped.Task.ID(), next.Task.ID())
}

func TestEmptyAndSize(t *testing.T) {
	p, _ := newTestPrioritizer(t)
	require.True(t, p.Empty())
	p.Insert([]*task.Task{task.New(nil)})
	require.False(t, p.Empty())
	require.Equal(t, 1, p.Size())
}
