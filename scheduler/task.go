package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/js-runtime/errors"
)

// Priority orders tasks on the engine goroutine. Lower values run first.
type Priority uint8

const (
	PriorityImmediate Priority = iota
	PriorityUserBlocking
	PriorityNormal
	PriorityLow
	PriorityIdle

	numPriorities
)

func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityUserBlocking:
		return "user-blocking"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityIdle:
		return "idle"
	default:
		return "invalid"
	}
}

// TaskState is the lifecycle position of a task.
// Submitted -> Queued -> Running -> Completed, or Queued -> Dropped.
type TaskState uint32

const (
	TaskSubmitted TaskState = iota
	TaskQueued
	TaskRunning
	TaskCompleted
	TaskDropped
)

func (s TaskState) String() string {
	switch s {
	case TaskSubmitted:
		return "submitted"
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskDropped:
		return "dropped"
	default:
		return "invalid"
	}
}

type task struct {
	fn       func() (any, error)
	future   *Future
	state    atomic.Uint32
	priority Priority
}

func (t *task) transition(from, to TaskState) bool {
	return t.state.CompareAndSwap(uint32(from), uint32(to))
}

// Future is the awaitable result of Execute.
type Future struct {
	done  chan struct{}
	sched *Scheduler
	task  *task
	value any
	err   error
}

func newFuture(s *Scheduler, t *task) *Future {
	return &Future{
		done:  make(chan struct{}),
		sched: s,
		task:  t,
	}
}

func (f *Future) complete(v any, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Done is closed once the task completed, was dropped or was canceled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// State reports the task's current lifecycle state.
func (f *Future) State() TaskState {
	return TaskState(f.task.state.Load())
}

// Await waits for the task result. On the engine goroutine it keeps running
// queued tasks while it waits instead of blocking the goroutine the task
// needs. A task dropped at teardown fails with ErrTeardown.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	if f.sched.IsOnEngineThread() {
		err := f.sched.Pump(ctx, func() bool {
			select {
			case <-f.done:
				return true
			default:
				return false
			}
		})
		if err != nil {
			return nil, err
		}
		return f.value, f.err
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, errors.Canceled(errors.PhaseScheduler, ctx.Err())
	}
}

// Cancel drops the task if it has not started yet. It reports whether the
// task was dropped; a running or finished task is not affected.
func (f *Future) Cancel() bool {
	if !f.task.transition(TaskQueued, TaskDropped) {
		return false
	}
	f.sched.dropped.Add(1)
	f.complete(nil, errors.Canceled(errors.PhaseScheduler, context.Canceled))
	return true
}
