package runtime

import (
	"context"
	stderrors "errors"
	"strconv"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/scheduler"
)

// Call carries the receiver and arguments of a host function invocation.
type Call struct {
	This *Value
	Args []*Value

	rt  *Runtime
	ctx context.Context
}

// Arg returns argument i, or undefined if it was not passed.
func (c *Call) Arg(i int) *Value {
	if i < 0 || i >= len(c.Args) {
		return Undefined()
	}
	return c.Args[i]
}

// Len returns the number of arguments passed.
func (c *Call) Len() int { return len(c.Args) }

// Runtime returns the runtime the call runs in.
func (c *Call) Runtime() *Runtime { return c.rt }

// Context returns the runtime context. It is canceled when the runtime
// closes.
func (c *Call) Context() context.Context { return c.ctx }

// ExportArg converts argument i into the Go value target points to.
func (c *Call) ExportArg(i int, target any) error {
	if err := c.rt.ExportTo(c.Arg(i), target); err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			e.Path = append([]string{"arg" + strconv.Itoa(i)}, e.Path...)
		}
		return err
	}
	return nil
}

func (r *Runtime) newCall(this goja.Value, args []goja.Value) *Call {
	c := &Call{
		This: r.wrap(this),
		Args: make([]*Value, len(args)),
		rt:   r,
		ctx:  r.ctx,
	}
	for i, a := range args {
		c.Args[i] = r.wrap(a)
	}
	return c
}

// SyncFunc is the Go side of a synchronous host function. The result may be
// a *Value, any other handle, or a plain Go value; nil is undefined. A
// returned error is thrown into script.
type SyncFunc func(call *Call) (any, error)

// AsyncFunc is the Go side of an asynchronous host function. It runs on
// its own goroutine; script receives a promise settled with its result.
// Handles in call must only be used through Runtime.Run. ctx is canceled
// when the runtime closes.
type AsyncFunc func(ctx context.Context, call *Call) (any, error)

// functionContext is the native state behind one host function. The
// engine's function object owns it through the context table.
type functionContext struct {
	name  string
	rt    weak.Pointer[Runtime]
	sync  SyncFunc
	async AsyncFunc

	dropped bool
}

func (fc *functionContext) Drop() {
	fc.dropped = true
	fc.sync = nil
	fc.async = nil
}

// CreateSyncFunction exposes fn to script as a function named name.
func (r *Runtime) CreateSyncFunction(name string, fn SyncFunc) *Function {
	r.enter("create function")
	return r.hostFunction(&functionContext{name: name, rt: r.self, sync: fn})
}

// CreateAsyncFunction exposes fn to script as a function that returns a
// promise.
func (r *Runtime) CreateAsyncFunction(name string, fn AsyncFunc) *Function {
	r.enter("create function")
	return r.hostFunction(&functionContext{name: name, rt: r.self, async: fn})
}

func (r *Runtime) hostFunction(fc *functionContext) *Function {
	h := r.contexts.Insert(resource.TypeFunction, fc)
	if h == 0 {
		panic(errors.RuntimeLost(errors.PhaseHost, "create function"))
	}
	obj := r.eng.NewFunction(fc.name, 0, fc.invoke)
	r.track(obj, h)

	f := &Function{}
	f.init(r.self, obj, KindFunction)
	return f
}

func (fc *functionContext) invoke(call goja.FunctionCall) (goja.Value, error) {
	r := fc.rt.Value()
	if r == nil || !r.Alive() || fc.dropped {
		return nil, errors.RuntimeLost(errors.PhaseHost, fc.name)
	}
	c := r.newCall(call.This, call.Arguments)

	if fc.async != nil {
		return fc.start(r, c), nil
	}

	r.depth++
	defer func() { r.depth-- }()
	res, err := fc.sync(c)
	if err != nil {
		return nil, hostError(fc.name, err)
	}
	return r.toEngine(res), nil
}

// start launches an async host function and returns its promise.
func (fc *functionContext) start(r *Runtime, c *Call) goja.Value {
	d := r.NewDeferred()
	fn, name, ctx := fc.async, fc.name, r.ctx

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Warn("async host function panicked",
					zap.String("function", name),
					zap.Any("panic", p))
				_ = d.TryReject(errors.Panic(name, p))
			}
		}()

		res, err := fn(ctx, c)
		if err != nil {
			err = d.TryReject(hostError(name, err))
		} else {
			err = d.TryResolve(res)
		}
		if err != nil {
			r.debugf("async result of %s dropped: %v", name, err)
		}
	}()
	return d.obj
}

// hostError keeps errors that already carry script state and wraps plain
// Go errors.
func hostError(name string, err error) error {
	var se *errors.Error
	if stderrors.As(err, &se) {
		return err
	}
	var ex *goja.Exception
	if stderrors.As(err, &ex) {
		return err
	}
	return errors.NativeThrow(name, err)
}

// track ties the native context behind h to obj's lifetime. When obj is
// collected, removal is queued on the engine goroutine at idle priority;
// after teardown the table has already released it.
func (r *Runtime) track(obj *goja.Object, h resource.Handle) {
	contexts, sched := r.contexts, r.sched
	engine.OnCollect(obj, func() {
		_ = sched.Schedule(scheduler.PriorityIdle, func() {
			contexts.Remove(h)
		})
	})
}
