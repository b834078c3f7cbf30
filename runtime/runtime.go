package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	jsruntime "github.com/wippyai/js-runtime"
	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/scheduler"
)

var (
	_ jsruntime.Closer   = (*Runtime)(nil)
	_ jsruntime.Releaser = (*Value)(nil)
)

// DefaultCoreNamespace is the global object modules are installed under.
const DefaultCoreNamespace = "Core"

// Config holds runtime configuration options.
type Config struct {
	// Logger overrides the engine package logger.
	Logger *zap.Logger

	// CoreNamespace names the global object that modules install into.
	CoreNamespace string

	// MaxCallStackSize bounds script recursion.
	MaxCallStackSize int

	// QueueCapacity is the initial capacity of each scheduler queue.
	QueueCapacity int

	// StrictThreadChecks makes handle operations panic with
	// errors.ErrWrongThread when used off the engine goroutine.
	StrictThreadChecks bool
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() *Config {
	return &Config{
		CoreNamespace:    DefaultCoreNamespace,
		MaxCallStackSize: engine.DefaultConfig().MaxCallStackSize,
		QueueCapacity:    scheduler.DefaultConfig().QueueCapacity,
	}
}

// Runtime owns one script engine, the scheduler whose goroutine is the only
// one allowed to touch it, and the table of native contexts behind host
// functions, host objects and classes.
type Runtime struct {
	cfg   Config
	log   *zap.Logger
	eng   *engine.Engine
	sched *scheduler.Scheduler

	contexts *resource.ContextTable
	self     weak.Pointer[Runtime]

	ctx    context.Context
	cancel context.CancelFunc

	core          *goja.Object
	reflectHas    goja.Value
	json          *goja.Object
	jsonStringify goja.Value

	// depth counts host callbacks on the engine goroutine's stack.
	depth int

	alive     atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates a runtime with the default configuration.
func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates a runtime. ctx bounds construction and is the
// parent of the context handed to async host functions.
func NewWithConfig(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.CoreNamespace == "" {
		c.CoreNamespace = DefaultCoreNamespace
	}
	log := c.Logger
	if log == nil {
		log = engine.Logger()
	}

	sched := scheduler.NewWithConfig(&scheduler.Config{
		Logger:        log,
		Name:          "js",
		QueueCapacity: c.QueueCapacity,
	})
	rctx, cancel := context.WithCancel(ctx)

	r := &Runtime{
		cfg:      c,
		log:      log,
		sched:    sched,
		contexts: resource.NewTable(),
		cancel:   cancel,
		closed:   make(chan struct{}),
	}
	r.self = weak.Make(r)
	r.ctx = WithRuntime(scheduler.WithScheduler(rctx, sched), r)
	r.alive.Store(true)

	_, err := scheduler.Do(ctx, sched, scheduler.PriorityImmediate, func() (struct{}, error) {
		return struct{}{}, r.init()
	})
	if err != nil {
		r.alive.Store(false)
		cancel()
		_ = sched.Close(context.Background())
		return nil, errors.Load("create runtime", err)
	}

	// A runtime dropped without Close still stops its engine goroutine and
	// releases its native contexts.
	goruntime.AddCleanup(r, func(f *finalizer) { go f.run() }, &finalizer{
		sched:    sched,
		contexts: r.contexts,
		cancel:   cancel,
	})

	r.debugf("runtime created (core namespace %q)", c.CoreNamespace)
	return r, nil
}

type finalizer struct {
	sched    *scheduler.Scheduler
	contexts *resource.ContextTable
	cancel   context.CancelFunc
}

func (f *finalizer) run() {
	f.cancel()
	_ = f.sched.Close(context.Background())
	_ = f.contexts.Close()
}

// init builds the engine on the engine goroutine.
func (r *Runtime) init() error {
	r.eng = engine.New(&engine.Config{
		Logger:           r.log,
		MaxCallStackSize: r.cfg.MaxCallStackSize,
	})
	vm := r.eng.VM()

	reflect, ok := vm.Get("Reflect").(*goja.Object)
	if !ok {
		return errors.Unsupported(errors.PhaseRuntime, "engine has no Reflect object")
	}
	r.reflectHas = reflect.Get("has")

	r.json, ok = vm.Get("JSON").(*goja.Object)
	if !ok {
		return errors.Unsupported(errors.PhaseRuntime, "engine has no JSON object")
	}
	r.jsonStringify = r.json.Get("stringify")

	r.core = r.eng.NewObject()
	return r.eng.DefineProperty(r.eng.Global(), r.cfg.CoreNamespace, r.core, engine.PropertyFlags{
		Configurable: true,
	})
}

// Alive reports whether the runtime has not begun teardown.
func (r *Runtime) Alive() bool {
	return r.alive.Load()
}

// Done is closed when teardown begins.
func (r *Runtime) Done() <-chan struct{} {
	return r.closed
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.log
}

// Scheduler returns the scheduler that owns the engine goroutine.
func (r *Runtime) Scheduler() *scheduler.Scheduler {
	return r.sched
}

// Context returns the runtime's context. It is canceled by Close and
// carries both the runtime and its scheduler.
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Contexts returns the number of live native contexts.
func (r *Runtime) Contexts() int {
	return r.contexts.Len()
}

// IsOnEngineThread reports whether the caller runs on the engine goroutine.
func (r *Runtime) IsOnEngineThread() bool {
	return r.sched.IsOnEngineThread()
}

func (r *Runtime) checkThread(op string) {
	if r.cfg.StrictThreadChecks && !r.sched.IsOnEngineThread() {
		panic(errors.WrongThread(op))
	}
}

// enter guards runtime-level operations that touch the engine.
func (r *Runtime) enter(op string) {
	if !r.Alive() {
		panic(errors.RuntimeLost(errors.PhaseRuntime, op))
	}
	r.checkThread(op)
}

func (r *Runtime) debugf(format string, args ...any) {
	if ce := r.log.Check(zap.DebugLevel, ""); ce != nil {
		ce.Message = fmt.Sprintf(format, args...)
		ce.Write()
	}
}

// Run executes fn on the engine goroutine and waits for it to return.
// Called on the engine goroutine it runs fn inline.
func (r *Runtime) Run(ctx context.Context, fn func(*Runtime) error) error {
	_, err := Do(ctx, r, func(r *Runtime) (struct{}, error) {
		return struct{}{}, fn(r)
	})
	return err
}

// Do executes fn on the engine goroutine and returns its typed result.
func Do[T any](ctx context.Context, r *Runtime, fn func(*Runtime) (T, error)) (T, error) {
	if !r.Alive() {
		var zero T
		return zero, errors.Teardown(errors.PhaseRuntime, "run")
	}
	return scheduler.Do(ctx, r.sched, scheduler.PriorityNormal, func() (T, error) {
		return fn(r)
	})
}

// Schedule queues fn for the engine goroutine without waiting.
func (r *Runtime) Schedule(p scheduler.Priority, fn func(*Runtime)) error {
	if !r.Alive() {
		return errors.Teardown(errors.PhaseRuntime, "schedule")
	}
	return r.sched.Schedule(p, func() { fn(r) })
}

// Close tears the runtime down. Handles are invalidated first, so any use
// racing with teardown fails with ErrRuntimeLost instead of touching freed
// state. Then async host functions are canceled, running script is
// interrupted, queued tasks are dropped and every remaining native context
// is released. Close is idempotent.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.alive.Store(false)
		close(r.closed)
		r.cancel()
		if r.eng != nil {
			r.eng.Interrupt(errors.Teardown(errors.PhaseRuntime, "close"))
		}
		r.closeErr = r.sched.Close(ctx)
		r.debugf("releasing native contexts (functions=%d host-objects=%d classes=%d)",
			r.contexts.Count(resource.TypeFunction),
			r.contexts.Count(resource.TypeHostObject),
			r.contexts.Count(resource.TypeClass))
		if err := r.contexts.Close(); err != nil && r.closeErr == nil {
			r.closeErr = err
		}
		r.debugf("runtime closed")
	})
	return r.closeErr
}

// Global returns the global object.
func (r *Runtime) Global() *Object {
	r.enter("global")
	return r.object(r.eng.Global())
}

// Core returns the namespace object modules are installed under.
func (r *Runtime) Core() *Object {
	r.enter("core")
	return r.object(r.core)
}

// CoreNamespace returns the global name of Core.
func (r *Runtime) CoreNamespace() string {
	return r.cfg.CoreNamespace
}

type ctxKeyRuntime struct{}

// WithRuntime returns a context carrying r.
func WithRuntime(ctx context.Context, r *Runtime) context.Context {
	return context.WithValue(ctx, ctxKeyRuntime{}, weak.Make(r))
}

// FromContext returns the runtime stored by WithRuntime, or nil.
func FromContext(ctx context.Context) *Runtime {
	if p, ok := ctx.Value(ctxKeyRuntime{}).(weak.Pointer[Runtime]); ok {
		return p.Value()
	}
	return nil
}
