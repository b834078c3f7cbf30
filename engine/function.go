package engine

import (
	"slices"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
)

// NativeFunc is a Go function callable from script. A returned error is
// thrown into script; it never unwinds into the engine as a Go panic.
type NativeFunc func(call goja.FunctionCall) (goja.Value, error)

// NativeConstructor initializes the instance created by `new`.
type NativeConstructor func(call goja.ConstructorCall) error

// guard runs fn and turns any error or Go panic into a script throw.
func (e *Engine) guard(name string, fn func() (goja.Value, error)) goja.Value {
	var (
		result goja.Value
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				if isUncatchable(r) {
					panic(r)
				}
				err = errors.Panic(name, r)
				e.log.Warn("host function panicked",
					zap.String("function", name),
					zap.Any("panic", r))
			}
		}()
		result, err = fn()
	}()

	if err != nil {
		panic(e.ThrowValue(err))
	}
	if result == nil {
		return goja.Undefined()
	}
	return result
}

// NewFunction exposes fn to script as a function named name.
func (e *Engine) NewFunction(name string, length int, fn NativeFunc) *goja.Object {
	obj := e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return e.guard(name, func() (goja.Value, error) {
			return fn(call)
		})
	}).(*goja.Object)
	e.rename(obj, name, length)
	return obj
}

// constructorProgram builds a script function that rejects calls without
// `new` and forwards this, new.target and the arguments to a native init.
// A script function is used because goja's native constructors cannot tell
// `new F()` from a plain `F()` call.
var constructorProgram = goja.MustCompile("<constructor>", `(function (init, message) {
	'use strict';
	return function () {
		if (new.target === undefined) {
			throw new TypeError(message);
		}
		init(this, new.target, ...arguments);
	};
})`, true)

// NewConstructor exposes fn to script as a constructor named name. The
// returned function has a fresh prototype object; calling it without `new`
// throws a TypeError. Script classes may extend it.
func (e *Engine) NewConstructor(name string, length int, fn NativeConstructor) *goja.Object {
	init := e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		this, _ := call.Argument(0).(*goja.Object)
		target, _ := call.Argument(1).(*goja.Object)
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = call.Arguments[2:]
		}
		return e.guard(name, func() (goja.Value, error) {
			return nil, fn(goja.ConstructorCall{This: this, Arguments: args, NewTarget: target})
		})
	})

	ctor, err := e.constructorFactory()(goja.Undefined(), init,
		e.vm.ToValue("Class constructor "+name+" cannot be invoked without 'new'"))
	if err != nil {
		// The factory runs no user code.
		panic(err)
	}
	obj := ctor.(*goja.Object)
	e.rename(obj, name, length)
	return obj
}

func (e *Engine) constructorFactory() goja.Callable {
	if e.ctorFactory == nil {
		v, err := e.vm.RunProgram(constructorProgram)
		if err != nil {
			panic(err)
		}
		e.ctorFactory, _ = goja.AssertFunction(v)
	}
	return e.ctorFactory
}

// rename replaces the Go symbol name goja derives for native functions.
func (e *Engine) rename(fn *goja.Object, name string, length int) {
	_ = fn.DefineDataProperty("name", e.vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	_ = fn.DefineDataProperty("length", e.vm.ToValue(length), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

// HostObject receives property traffic for an object whose properties live
// on the Go side.
type HostObject interface {
	Get(name string) (goja.Value, error)
	Set(name string, value goja.Value) (bool, error)
	Delete(name string) (bool, error)
	// Has is consulted for names PropertyNames does not list.
	Has(name string) bool
	PropertyNames() []string
}

// NewHostObject exposes h to script. Errors and panics from h are thrown
// into script. A failing PropertyNames yields no names.
func (e *Engine) NewHostObject(name string, h HostObject) *goja.Object {
	return e.vm.NewDynamicObject(&dynamicObject{engine: e, name: name, host: h})
}

type dynamicObject struct {
	engine *Engine
	host   HostObject
	name   string
}

func (d *dynamicObject) Get(key string) goja.Value {
	var v goja.Value
	d.engine.guard(d.name+"."+key, func() (goja.Value, error) {
		var err error
		v, err = d.host.Get(key)
		return nil, err
	})
	// nil falls through to the prototype chain.
	return v
}

func (d *dynamicObject) Set(key string, val goja.Value) bool {
	var ok bool
	d.engine.guard(d.name+"."+key, func() (goja.Value, error) {
		var err error
		ok, err = d.host.Set(key, val)
		return nil, err
	})
	return ok
}

func (d *dynamicObject) Has(key string) bool {
	if slices.Contains(d.Keys(), key) {
		return true
	}
	var ok bool
	d.engine.guard(d.name+"."+key, func() (goja.Value, error) {
		ok = d.host.Has(key)
		return nil, nil
	})
	return ok
}

func (d *dynamicObject) Delete(key string) bool {
	var ok bool
	d.engine.guard(d.name+"."+key, func() (goja.Value, error) {
		var err error
		ok, err = d.host.Delete(key)
		return nil, err
	})
	return ok
}

func (d *dynamicObject) Keys() (names []string) {
	defer func() {
		if r := recover(); r != nil {
			if isUncatchable(r) {
				panic(r)
			}
			d.engine.log.Warn("host object property names failed",
				zap.String("object", d.name),
				zap.Any("panic", r))
			names = nil
		}
	}()
	return d.host.PropertyNames()
}
