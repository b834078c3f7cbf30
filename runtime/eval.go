package runtime

import (
	"context"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/engine"
)

// Eval evaluates source in the global scope on the engine goroutine. label
// names the script in stack traces and errors. Exceptions are returned as
// errors with errors.KindScriptEvaluation.
func (r *Runtime) Eval(ctx context.Context, source, label string) (*Value, error) {
	return Do(ctx, r, func(r *Runtime) (*Value, error) {
		v, err := r.eng.Eval(label, source)
		r.eng.LogUnhandledRejections()
		if err != nil {
			return nil, err
		}
		return r.wrap(v), nil
	})
}

// EvalAsync evaluates source and, if the result is a promise, waits for it
// to settle. A rejection is returned as an error with
// errors.KindPromiseRejected.
func (r *Runtime) EvalAsync(ctx context.Context, source, label string) (*Value, error) {
	var plain *Value
	p, err := Do(ctx, r, func(r *Runtime) (*Promise, error) {
		v, err := r.eng.Eval(label, source)
		if err != nil {
			r.eng.LogUnhandledRejections()
			return nil, err
		}
		if _, ok := engine.AsPromise(v); !ok {
			r.eng.LogUnhandledRejections()
			plain = r.wrap(v)
			return nil, nil
		}
		return r.wrapPromise(v.(*goja.Object), label), nil
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return plain, nil
	}
	return p.Await(ctx)
}

// Await waits for v to settle if it is a promise and returns v otherwise.
// Off the engine goroutine the promise is observed through a task.
func (r *Runtime) Await(ctx context.Context, v *Value) (*Value, error) {
	p, err := Do(ctx, r, func(r *Runtime) (*Promise, error) {
		gv := v.scriptValue(r)
		if _, ok := engine.AsPromise(gv); !ok {
			return nil, nil
		}
		return r.wrapPromise(gv.(*goja.Object), ""), nil
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return v, nil
	}
	return p.Await(ctx)
}
