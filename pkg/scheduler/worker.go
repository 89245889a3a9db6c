package scheduler

import (
	"context"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/task"
)

// SetNumComputeThreads resizes the compute worker pool to n. Growing spawns
// new worker goroutines immediately; shrinking lowers the target quota and
// lets the excess workers exit cooperatively once they finish whatever
// task they're currently running, avoiding an in-flight kernel being
// killed mid-execution.
func (s *Scheduler) SetNumComputeThreads(n int) {
	if n < 0 {
		n = 0
	}
	current := s.quota.Load()
	s.quota.Store(int32(n))
	if int32(n) <= current {
		return
	}
	for i := current; i < int32(n); i++ {
		idx := s.nextIdx.Add(1) - 1
		s.workers.Add(1)
		go s.computeWorker(idx)
	}
}

// computeWorker pulls ready tasks off the compute queue and executes their
// kernels until its assigned index falls outside the current quota, at
// which point it exits. Indices are handed out monotonically so shrinking
// the pool always retires the most recently added workers first.
func (s *Scheduler) computeWorker(idx int32) {
	defer s.workers.Done()
	for {
		if idx >= s.quota.Load() {
			return
		}
		select {
		case <-s.stopDispatch:
			return
		case t, ok := <-s.computeQueue:
			if !ok {
				return
			}
			s.runTask(t)
		}
	}
}

func (s *Scheduler) runTask(t *task.Task) {
	t.SetStatus(task.Compute)
	ctx := context.Background()
	if err := t.Execute(ctx); err != nil {
		logger.Error("scheduler: task execute failed", logger.Err(err))
	}
	t.SetStatus(task.Complete)
	s.completeQueue <- t
}
