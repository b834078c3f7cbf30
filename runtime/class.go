package runtime

import (
	"weak"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// Constructor initializes an instance created with `new`. this already has
// the class prototype; base class constructors have already run.
type Constructor func(this *Object, call *Call) error

type classContext struct {
	name string
	init Constructor
	base *classContext

	dropped bool
}

func (cc *classContext) Drop() {
	cc.dropped = true
	cc.init = nil
}

func (cc *classContext) construct(r *Runtime, this *goja.Object, c *Call) error {
	if cc.base != nil {
		if err := cc.base.construct(r, this, c); err != nil {
			return err
		}
	}
	if cc.dropped {
		return errors.RuntimeLost(errors.PhaseHost, cc.name)
	}
	if cc.init == nil {
		return nil
	}
	return cc.init(r.object(this), c)
}

// Class is a script-visible constructor backed by Go.
type Class struct {
	name  string
	rt    weak.Pointer[Runtime]
	ctor  *goja.Object
	proto *goja.Object
	h     resource.Handle
}

// CreateClass creates a class named name. With a base, instances inherit
// the base prototype, the constructor inherits the base's static members,
// and the base constructor runs before ctor. ctor may be nil.
func (r *Runtime) CreateClass(name string, base *Class, ctor Constructor) (*Class, error) {
	r.enter("create class")
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseHost, "class name is empty")
	}
	cc := &classContext{name: name, init: ctor}
	if base != nil {
		if base.rt.Value() != r {
			return nil, errors.InvalidInput(errors.PhaseHost, "base class belongs to another runtime")
		}
		bc, ok := resource.Lookup[*classContext](r.contexts, base.h, resource.TypeClass)
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseHost, "base class context released")
		}
		cc.base = bc
	}

	h := r.contexts.Insert(resource.TypeClass, cc)
	if h == 0 {
		panic(errors.RuntimeLost(errors.PhaseHost, "create class"))
	}
	self := r.self
	obj := r.eng.NewConstructor(name, 0, func(call goja.ConstructorCall) error {
		rt := self.Value()
		if rt == nil || !rt.Alive() {
			return errors.RuntimeLost(errors.PhaseHost, name)
		}
		rt.depth++
		defer func() { rt.depth-- }()
		if err := cc.construct(rt, call.This, rt.newCall(call.This, call.Arguments)); err != nil {
			return hostError(name, err)
		}
		return nil
	})
	proto, ok := obj.Get("prototype").(*goja.Object)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseHost, "constructor without prototype")
	}

	if base != nil {
		if err := proto.SetPrototype(base.proto); err != nil {
			return nil, engine.ScriptError(name, err)
		}
		if err := obj.SetPrototype(base.ctor); err != nil {
			return nil, engine.ScriptError(name, err)
		}
	}
	r.track(obj, h)

	return &Class{name: name, rt: r.self, ctor: obj, proto: proto, h: h}, nil
}

func (c *Class) runtime(op string) *Runtime {
	r := c.rt.Value()
	if r == nil || !r.Alive() {
		panic(errors.RuntimeLost(errors.PhaseHost, op))
	}
	r.checkThread(op)
	return r
}

func (c *Class) scriptValue(r *Runtime) goja.Value {
	return c.ctor
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Constructor returns the constructor function.
func (c *Class) Constructor() *Function {
	c.runtime("constructor")
	f := &Function{}
	f.init(c.rt, c.ctor, KindFunction)
	return f
}

// Prototype returns the prototype shared by instances.
func (c *Class) Prototype() *Object {
	r := c.runtime("prototype")
	return r.object(c.proto)
}

// New constructs an instance.
func (c *Class) New(args ...any) (*Object, error) {
	return c.Constructor().New(args...)
}

var methodFlags = PropertyFlags{Writable: true, Configurable: true}

// DefineMethod adds a non-enumerable method to the prototype.
func (c *Class) DefineMethod(name string, fn SyncFunc) error {
	r := c.runtime("define method")
	return c.Prototype().DefineProperty(name, r.CreateSyncFunction(name, fn), methodFlags)
}

// DefineAsyncMethod adds a non-enumerable promise-returning method to the
// prototype.
func (c *Class) DefineAsyncMethod(name string, fn AsyncFunc) error {
	r := c.runtime("define method")
	return c.Prototype().DefineProperty(name, r.CreateAsyncFunction(name, fn), methodFlags)
}

// DefineStaticMethod adds a non-enumerable method to the constructor.
func (c *Class) DefineStaticMethod(name string, fn SyncFunc) error {
	r := c.runtime("define static method")
	return c.Constructor().DefineProperty(name, r.CreateSyncFunction(name, fn), methodFlags)
}
