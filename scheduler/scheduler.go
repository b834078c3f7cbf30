package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
)

// Config controls a Scheduler.
type Config struct {
	// Logger overrides the package logger.
	Logger *zap.Logger

	// Name identifies the scheduler in logs.
	Name string

	// QueueCapacity is the initial capacity of each priority queue.
	QueueCapacity int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:          "engine",
		QueueCapacity: 64,
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Executed uint64
	Dropped  uint64
	Panicked uint64
	Pending  int
}

// Scheduler owns the engine goroutine. Every task runs on that goroutine,
// FIFO within a priority, higher priorities first. It is the only way code
// on other goroutines reaches the engine.
type Scheduler struct {
	log     *zap.Logger
	queues  [numPriorities][]*task
	wake    chan struct{}
	stopped chan struct{}
	name    string

	mu      sync.Mutex
	closing bool

	engineGID atomic.Int64
	executed  atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// New starts a scheduler and its engine goroutine.
func New() *Scheduler {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig starts a scheduler with the given configuration.
func NewWithConfig(cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	s := &Scheduler{
		log:     log.With(zap.String("scheduler", cfg.Name)),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		name:    cfg.Name,
	}
	if cfg.QueueCapacity > 0 {
		for i := range s.queues {
			s.queues[i] = make([]*task, 0, cfg.QueueCapacity)
		}
	}

	started := make(chan struct{})
	go s.loop(started)
	<-started
	return s
}

// IsOnEngineThread reports whether the caller runs on the engine goroutine.
func (s *Scheduler) IsOnEngineThread() bool {
	return goid.Get() == s.engineGID.Load()
}

// Schedule queues fn for the engine goroutine and returns immediately.
// After teardown has begun fn is dropped and ErrTeardown is returned.
func (s *Scheduler) Schedule(p Priority, fn func()) error {
	t := &task{
		fn: func() (any, error) {
			fn()
			return nil, nil
		},
		priority: p,
	}
	return s.enqueue(t)
}

// Execute runs fn on the engine goroutine and returns a Future for its
// result. Called on the engine goroutine it runs fn inline, since queueing
// and then waiting would block the only goroutine able to run it.
func (s *Scheduler) Execute(p Priority, fn func() (any, error)) *Future {
	t := &task{fn: fn, priority: p}
	f := newFuture(s, t)
	t.future = f

	if s.IsOnEngineThread() {
		s.mu.Lock()
		closing := s.closing
		s.mu.Unlock()
		if closing {
			t.state.Store(uint32(TaskDropped))
			s.dropped.Add(1)
			f.complete(nil, errors.Teardown(errors.PhaseScheduler, "execute"))
			return f
		}
		t.state.Store(uint32(TaskQueued))
		s.run(t)
		return f
	}

	if err := s.enqueue(t); err != nil {
		f.complete(nil, err)
	}
	return f
}

// Do runs fn on the engine goroutine and waits for its typed result.
func Do[T any](ctx context.Context, s *Scheduler, p Priority, fn func() (T, error)) (T, error) {
	f := s.Execute(p, func() (any, error) {
		return fn()
	})
	v, err := f.Await(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if v == nil {
		var zero T
		return zero, nil
	}
	return v.(T), nil
}

func (s *Scheduler) enqueue(t *task) error {
	if t.priority >= numPriorities {
		t.priority = PriorityIdle
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		t.state.Store(uint32(TaskDropped))
		s.dropped.Add(1)
		s.log.Debug("task dropped after teardown", zap.Stringer("priority", t.priority))
		return errors.Teardown(errors.PhaseScheduler, "schedule")
	}
	t.state.Store(uint32(TaskQueued))
	s.queues[t.priority] = append(s.queues[t.priority], t)
	s.mu.Unlock()

	s.signal()
	return nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wake interrupts a Pump that is waiting for new tasks so it re-checks its
// condition.
func (s *Scheduler) Wake() {
	s.signal()
}

// next pops the highest-priority task. The second result is false once the
// scheduler is closing.
func (s *Scheduler) next() (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return nil, false
	}
	for p := range s.queues {
		q := s.queues[p]
		if len(q) == 0 {
			continue
		}
		t := q[0]
		q[0] = nil
		if len(q) == 1 {
			s.queues[p] = q[:0]
		} else {
			s.queues[p] = q[1:]
		}
		return t, true
	}
	return nil, true
}

func (s *Scheduler) loop(started chan struct{}) {
	s.engineGID.Store(goid.Get())
	close(started)
	defer close(s.stopped)

	s.log.Debug("engine goroutine started")
	for {
		t, ok := s.next()
		if !ok {
			s.log.Debug("engine goroutine stopped")
			return
		}
		if t == nil {
			<-s.wake
			continue
		}
		s.run(t)
	}
}

func (s *Scheduler) run(t *task) {
	if !t.transition(TaskQueued, TaskRunning) {
		// Canceled while queued.
		return
	}

	var (
		value any
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.panicked.Add(1)
				err = errors.New(errors.PhaseScheduler, errors.KindNativeThrow).
					Value(r).
					Detail("task panicked: %v", r).
					Build()
				s.log.Warn("task panicked",
					zap.Stringer("priority", t.priority),
					zap.Any("panic", r))
			}
		}()
		value, err = t.fn()
	}()

	t.state.Store(uint32(TaskCompleted))
	s.executed.Add(1)
	if t.future != nil {
		t.future.complete(value, err)
	} else if err != nil {
		s.log.Debug("scheduled task failed", zap.Error(err))
	}
}

// Pump runs queued tasks on the engine goroutine until done reports true,
// the context ends or the scheduler closes. It is the nested event loop used
// by code that must wait on the engine goroutine.
func (s *Scheduler) Pump(ctx context.Context, done func() bool) error {
	if !s.IsOnEngineThread() {
		return errors.WrongThread("pump")
	}
	for !done() {
		t, ok := s.next()
		if !ok {
			return errors.Teardown(errors.PhaseScheduler, "pump")
		}
		if t != nil {
			s.run(t)
			continue
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return errors.Canceled(errors.PhaseScheduler, ctx.Err())
		}
	}
	return nil
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Executed: s.executed.Load(),
		Dropped:  s.dropped.Load(),
		Panicked: s.panicked.Load(),
		Pending:  s.Len(),
	}
}

// Closed reports whether teardown has begun.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Close begins teardown: queued tasks are dropped without running, their
// futures fail with ErrTeardown, and later submissions are rejected. It
// waits for the running task to finish unless called from that task.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return s.wait(ctx)
	}
	s.closing = true
	var pending []*task
	for p := range s.queues {
		pending = append(pending, s.queues[p]...)
		s.queues[p] = nil
	}
	s.mu.Unlock()

	dropped := 0
	for _, t := range pending {
		if !t.transition(TaskQueued, TaskDropped) {
			continue
		}
		dropped++
		s.dropped.Add(1)
		if t.future != nil {
			t.future.complete(nil, errors.Teardown(errors.PhaseScheduler, "execute"))
		}
	}
	if dropped > 0 {
		s.log.Debug("dropped pending tasks at teardown", zap.Int("count", dropped))
	}

	s.signal()
	return s.wait(ctx)
}

func (s *Scheduler) wait(ctx context.Context) error {
	if s.IsOnEngineThread() {
		return nil
	}
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return errors.Canceled(errors.PhaseScheduler, ctx.Err())
	}
}

// Stopped is closed when the engine goroutine has exited.
func (s *Scheduler) Stopped() <-chan struct{} {
	return s.stopped
}

type ctxKeyScheduler struct{}

// WithScheduler returns a context carrying s.
func WithScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, ctxKeyScheduler{}, s)
}

// FromContext returns the scheduler stored by WithScheduler, or nil.
func FromContext(ctx context.Context) *Scheduler {
	if v := ctx.Value(ctxKeyScheduler{}); v != nil {
		return v.(*Scheduler)
	}
	return nil
}
