package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flashcore/ooce/pkg/cache"
	"github.com/flashcore/ooce/pkg/filehandle"
	"github.com/flashcore/ooce/pkg/ioexec"
	"github.com/flashcore/ooce/pkg/stride"
	"github.com/flashcore/ooce/pkg/task"
)

func newTestScheduler(t *testing.T, maxSize uint64, opts Options, nComputeThreads int) (*Scheduler, filehandle.Handle) {
	t.Helper()
	h := filehandle.NewMemory("f", filehandle.ModeReadWrite)
	exec := ioexec.New(4, opts.EnableOverlapCheck)
	t.Cleanup(exec.Shutdown)

	c := cache.New(cache.Options{
		MaxSize: maxSize,
		Resolve: func(id stride.FileID) (filehandle.Handle, error) { return h, nil },
	}, exec)

	s := New(c, opts, nComputeThreads)
	t.Cleanup(s.Shutdown)
	return s, h
}

// waitPending blocks until the scheduler reports no admitted-but-incomplete
// tasks remain, or fails the test if that never happens within timeout.
func waitPending(t *testing.T, s *Scheduler, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.pending.Load() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("scheduler did not drain within %s", timeout)
}

func TestAddTaskRunsSingleTaskToCompletion(t *testing.T) {
	s, h := newTestScheduler(t, 1<<20, DefaultOptions(), 2)

	key := stride.NewKey(stride.Slice{File: "f", Offset: 0}, stride.Contiguous(32))
	var ran atomic.Bool
	tk := task.New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
		copy(writes[key], []byte("hello-world-12345678901234567890"))
		ran.Store(true)
		return nil
	})
	tk.AddWrite(key)

	s.AddTask(tk)
	waitPending(t, s, time.Second)

	require.True(t, ran.Load())
	require.Equal(t, task.Complete, tk.Status())

	// write-back to the backing handle is deferred until flush or eviction.
	s.FlushCache(context.Background())

	out := make([]byte, 32)
	_, err := h.Read(context.Background(), 0, out)
	require.NoError(t, err)
	require.Equal(t, []byte("hello-world-12345678901234567890"), out)
}

func TestAddTaskChainsContinuation(t *testing.T) {
	s, _ := newTestScheduler(t, 1<<20, DefaultOptions(), 2)

	k1 := stride.NewKey(stride.Slice{File: "f", Offset: 0}, stride.Contiguous(16))
	k2 := stride.NewKey(stride.Slice{File: "f", Offset: 16}, stride.Contiguous(16))

	var order []string
	second := task.New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
		order = append(order, "second")
		return nil
	})
	second.AddWrite(k2)

	first := task.New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
		order = append(order, "first")
		return nil
	})
	first.AddWrite(k1)
	first.SetNext(second)

	s.AddTask(first)
	waitPending(t, s, time.Second)

	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, task.Complete, second.Status())
}

func TestAddTaskWaitsForParents(t *testing.T) {
	s, _ := newTestScheduler(t, 1<<20, DefaultOptions(), 2)

	k1 := stride.NewKey(stride.Slice{File: "f", Offset: 0}, stride.Contiguous(16))
	k2 := stride.NewKey(stride.Slice{File: "f", Offset: 16}, stride.Contiguous(16))
	k3 := stride.NewKey(stride.Slice{File: "f", Offset: 32}, stride.Contiguous(16))

	ran := make(chan struct{}, 3)
	newTask := func(key stride.Key) *task.Task {
		tk := task.New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
			ran <- struct{}{}
			return nil
		})
		tk.AddWrite(key)
		return tk
	}

	a := newTask(k1)
	b := newTask(k2)
	child := newTask(k3)
	child.AddParent(a.ID())
	child.AddParent(b.ID())

	// submit child first: it must not run until both parents complete.
	s.AddTask(child)
	s.AddTask(a)
	s.AddTask(b)

	waitPending(t, s, time.Second)
	require.Len(t, ran, 3)
	require.Equal(t, task.Complete, child.Status())
}

func TestMaxInMemBoundsPipelineDepth(t *testing.T) {
	const maxInMem = 2
	s, _ := newTestScheduler(t, 1<<20, Options{MaxInMem: maxInMem}, 1)

	var peak atomic.Int32
	const nTasks = 20
	release := make(chan struct{})

	for i := 0; i < nTasks; i++ {
		key := stride.NewKey(stride.Slice{File: "f", Offset: uint64(i * 64)}, stride.Contiguous(32))
		tk := task.New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
			<-release
			return nil
		})
		tk.AddWrite(key)
		s.AddTask(tk)
	}

	// give the dispatcher a few ticks to admit as many tasks as it will,
	// then confirm it never exceeded the configured cap.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if v := s.inMem.Load(); v > peak.Load() {
			peak.Store(v)
		}
		require.LessOrEqual(t, int(s.inMem.Load()), maxInMem, "inMem must never exceed the configured pipeline depth cap")
		time.Sleep(time.Millisecond)
	}
	require.Greater(t, peak.Load(), int32(0), "at least one task should have been admitted")

	close(release)
	waitPending(t, s, 2*time.Second)
}

func TestFlushCacheDrainsToZeroCommitted(t *testing.T) {
	s, _ := newTestScheduler(t, 1<<20, DefaultOptions(), 2)

	for i := 0; i < 4; i++ {
		key := stride.NewKey(stride.Slice{File: "f", Offset: uint64(i * 64)}, stride.Contiguous(32))
		tk := task.New(func(ctx context.Context, reads, writes map[stride.Key][]byte) error {
			return nil
		})
		tk.AddWrite(key)
		s.AddTask(tk)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.FlushCache(ctx)

	require.Zero(t, s.pending.Load())
	require.Equal(t, uint64(0), s.cache.Stats().Committed)
}
