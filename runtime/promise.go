package runtime

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/scheduler"
)

// Deferred is a pending promise together with the right to settle it.
// Resolve and Reject may be called from any goroutine; off the engine
// goroutine the settlement is queued at user-blocking priority.
type Deferred struct {
	rt      weak.Pointer[Runtime]
	obj     *goja.Object
	resolve func(any) error
	reject  func(any) error
	settled atomic.Bool
}

// NewDeferred creates a pending promise. Must be called on the engine
// goroutine.
func (r *Runtime) NewDeferred() *Deferred {
	r.enter("new deferred")
	obj, _, resolve, reject := r.eng.NewPromise()
	return &Deferred{rt: r.self, obj: obj, resolve: resolve, reject: reject}
}

// Promise returns the script-visible promise.
func (d *Deferred) Promise() *Object {
	r := d.rt.Value()
	if r == nil || !r.Alive() {
		panic(errors.RuntimeLost(errors.PhasePromise, "promise"))
	}
	o := &Object{}
	o.init(d.rt, d.obj, KindObject)
	return o
}

func (d *Deferred) scriptValue(r *Runtime) goja.Value {
	return d.obj
}

// Settled reports whether Resolve or Reject was called.
func (d *Deferred) Settled() bool {
	return d.settled.Load()
}

// Resolve fulfills the promise with v. Settling twice is a programming
// error and panics with errors.ErrDoubleSettlement. After teardown Resolve
// does nothing.
func (d *Deferred) Resolve(v any) {
	if err := d.TryResolve(v); stderrors.Is(err, errors.ErrDoubleSettlement) {
		panic(err)
	}
}

// Reject rejects the promise. Strings become Error objects and Go errors
// become the value a host function would throw.
func (d *Deferred) Reject(reason any) {
	if err := d.TryReject(reason); stderrors.Is(err, errors.ErrDoubleSettlement) {
		panic(err)
	}
}

// TryResolve is Resolve that reports misuse as an error instead of
// panicking.
func (d *Deferred) TryResolve(v any) error {
	return d.settle("resolve", false, v)
}

// TryReject is Reject that reports misuse as an error instead of panicking.
func (d *Deferred) TryReject(reason any) error {
	return d.settle("reject", true, reason)
}

func (d *Deferred) settle(op string, reject bool, v any) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errors.DoubleSettlement(op)
	}
	r := d.rt.Value()
	if r == nil || !r.Alive() {
		return errors.Teardown(errors.PhasePromise, op)
	}

	apply := func() {
		var err error
		if reject {
			err = d.reject(r.rejectionValue(v))
		} else {
			err = d.resolve(r.toEngine(v))
		}
		if err != nil {
			r.log.Warn("promise settlement failed", zap.String("op", op), zap.Error(err))
		}
	}
	if r.sched.IsOnEngineThread() {
		apply()
		return nil
	}
	return r.sched.Schedule(scheduler.PriorityUserBlocking, apply)
}

// PromiseState is the settlement state of a promise.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	}
	return "pending"
}

// Promise observes a script promise from Go.
type Promise struct {
	rt    weak.Pointer[Runtime]
	obj   *goja.Object
	label string

	once  sync.Once
	done  chan struct{}
	state atomic.Uint32
	value *Value
	err   error
}

// WrapPromise observes o, which must be a promise. Must be called on the
// engine goroutine.
func (r *Runtime) WrapPromise(o *Object) (*Promise, error) {
	_, obj := o.target("wrap promise")
	if _, ok := engine.AsPromise(obj); !ok {
		return nil, errors.TypeMismatch(errors.PhasePromise, nil, "*runtime.Promise", o.Kind().String())
	}
	return r.wrapPromise(obj, ""), nil
}

func (r *Runtime) wrapPromise(obj *goja.Object, label string) *Promise {
	p := &Promise{rt: r.self, obj: obj, label: label, done: make(chan struct{})}

	onFulfilled := r.eng.NewFunction("onFulfilled", 1, func(call goja.FunctionCall) (goja.Value, error) {
		p.settle(PromiseFulfilled, r.wrap(call.Argument(0)), nil)
		return nil, nil
	})
	onRejected := r.eng.NewFunction("onRejected", 1, func(call goja.FunctionCall) (goja.Value, error) {
		p.settle(PromiseRejected, nil, p.rejection(call.Argument(0)))
		return nil, nil
	})

	var then goja.Value
	err := r.eng.Try(label, func() { then = obj.Get("then") })
	if err == nil {
		_, err = r.eng.Call(then, obj, onFulfilled, onRejected)
	}
	if err != nil {
		p.settle(PromiseRejected, nil, engine.ScriptError(label, err))
	}
	return p
}

func (p *Promise) rejection(reason goja.Value) error {
	e := engine.Rejection(reason)
	if p.label != "" {
		e.Path = []string{p.label}
	}
	return e
}

func (p *Promise) settle(state PromiseState, v *Value, err error) {
	p.once.Do(func() {
		p.value, p.err = v, err
		p.state.Store(uint32(state))
		close(p.done)
	})
}

func (p *Promise) scriptValue(r *Runtime) goja.Value {
	return p.obj
}

// State reports the settlement state observed so far.
func (p *Promise) State() PromiseState {
	return PromiseState(p.state.Load())
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Await waits for the promise to settle. A rejection is returned as an
// error with errors.KindPromiseRejected carrying the reason.
//
// On the engine goroutine Await keeps running queued tasks while it waits.
// It cannot wait from inside a host callback: reactions only run once
// script returns to the top of the stack.
func (p *Promise) Await(ctx context.Context) (*Value, error) {
	select {
	case <-p.done:
		return p.value, p.err
	default:
	}

	r := p.rt.Value()
	if r == nil || !r.Alive() {
		return nil, errors.Teardown(errors.PhasePromise, "await")
	}

	if r.sched.IsOnEngineThread() {
		if r.depth > 0 {
			return nil, errors.Unsupported(errors.PhasePromise, "await inside a host callback; return the promise instead")
		}
		err := r.sched.Pump(ctx, func() bool {
			select {
			case <-p.done:
				return true
			default:
				return false
			}
		})
		if err != nil {
			return nil, err
		}
		return p.value, p.err
	}

	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, errors.Canceled(errors.PhasePromise, ctx.Err())
	case <-r.closed:
		return nil, errors.Teardown(errors.PhasePromise, "await")
	}
}
