package runtime

import (
	"strconv"
	"weak"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
)

// PropertyFlags describes a data property defined with DefineProperty.
type PropertyFlags = engine.PropertyFlags

// Object is a handle to a script object. Functions, arrays and typed arrays
// embed it.
type Object struct {
	Value
}

func (o *Object) init(rt weak.Pointer[Runtime], obj *goja.Object, kind Kind) {
	o.rt = rt
	o.v = obj
	o.kind = kind
}

func (r *Runtime) object(obj *goja.Object) *Object {
	o := &Object{}
	o.init(r.self, obj, kindOf(engine.Classify(obj)))
	return o
}

func (o *Object) target(op string) (*Runtime, *goja.Object) {
	r := o.runtime(op)
	return r, o.v.(*goja.Object)
}

// AsValue returns a value handle for the object.
func (o *Object) AsValue() *Value {
	o.check()
	return &Value{rt: o.rt, v: o.v, kind: o.kind}
}

// Get reads a property. Getters run; an exception they throw is returned.
func (o *Object) Get(name string) (*Value, error) {
	r, obj := o.target("get")
	var v goja.Value
	if err := r.eng.Try(name, func() { v = obj.Get(name) }); err != nil {
		return nil, err
	}
	if v == nil {
		return Undefined(), nil
	}
	return r.wrap(v), nil
}

// Set writes a property. value may be a *Value, any handle type or a plain
// Go value.
func (o *Object) Set(name string, value any) error {
	r, obj := o.target("set")
	if err := obj.Set(name, r.toEngine(value)); err != nil {
		return engine.ScriptError(name, err)
	}
	return nil
}

// Has reports whether the property exists on the object or its prototype
// chain, like the `in` operator.
func (o *Object) Has(name string) bool {
	r, obj := o.target("has")
	res, err := r.eng.Call(r.reflectHas, nil, obj, r.eng.NewString(name))
	return err == nil && res.ToBoolean()
}

// Delete removes an own property. Deleting a non-configurable property
// fails.
func (o *Object) Delete(name string) error {
	r, obj := o.target("delete")
	if err := obj.Delete(name); err != nil {
		return engine.ScriptError(name, err)
	}
	r.debugf("deleted property %q", name)
	return nil
}

// Keys returns the object's own enumerable string keys.
func (o *Object) Keys() ([]string, error) {
	r, obj := o.target("keys")
	var keys []string
	err := r.eng.Try("keys", func() { keys = obj.Keys() })
	return keys, err
}

// PropertyNames returns all own string keys, enumerable or not.
func (o *Object) PropertyNames() ([]string, error) {
	r, obj := o.target("property names")
	var keys []string
	err := r.eng.Try("property names", func() { keys = obj.GetOwnPropertyNames() })
	return keys, err
}

// DefineProperty defines a data property with explicit attributes.
func (o *Object) DefineProperty(name string, value any, flags PropertyFlags) error {
	r, obj := o.target("define property")
	if err := r.eng.DefineProperty(obj, name, r.toEngine(value), flags); err != nil {
		return engine.ScriptError(name, err)
	}
	return nil
}

// Prototype returns the object's prototype, or nil for a null prototype.
func (o *Object) Prototype() *Object {
	r, obj := o.target("prototype")
	proto := obj.Prototype()
	if proto == nil {
		return nil
	}
	return r.object(proto)
}

// SetPrototype replaces the object's prototype. A nil proto sets it to
// null.
func (o *Object) SetPrototype(proto *Object) error {
	_, obj := o.target("set prototype")
	var p *goja.Object
	if proto != nil {
		_, p = proto.target("set prototype")
	}
	if err := obj.SetPrototype(p); err != nil {
		return engine.ScriptError("", err)
	}
	return nil
}

// Invoke calls the method stored under name with the object as receiver.
func (o *Object) Invoke(name string, args ...any) (*Value, error) {
	r, obj := o.target("invoke")
	var method goja.Value
	if err := r.eng.Try(name, func() { method = obj.Get(name) }); err != nil {
		return nil, err
	}
	if _, ok := goja.AssertFunction(method); !ok {
		return nil, errors.NotFound(errors.PhaseValue, "method", name)
	}
	res, err := r.eng.Call(method, obj, r.toEngineArgs(args)...)
	if err != nil {
		return nil, engine.ScriptError(name, err)
	}
	return r.wrap(res), nil
}

// ClassName returns the engine's internal class name, such as "Object",
// "Array" or "Date".
func (o *Object) ClassName() string {
	_, obj := o.target("class name")
	return obj.ClassName()
}

// InstanceOf reports whether ctor.prototype is on the object's prototype
// chain.
func (o *Object) InstanceOf(ctor *Function) bool {
	_, obj := o.target("instanceof")
	_, c := ctor.target("instanceof")
	want, ok := c.Get("prototype").(*goja.Object)
	if !ok {
		return false
	}
	for p := obj.Prototype(); p != nil; p = p.Prototype() {
		if p == want {
			return true
		}
	}
	return false
}

// Weak returns a weak handle to the object.
func (o *Object) Weak() *WeakObject {
	_, obj := o.target("weak")
	return &WeakObject{rt: o.rt, ptr: weak.Make(obj), kind: o.kind}
}

// Function is a handle to a callable script object.
type Function struct {
	Object
}

// Call invokes the function with receiver this, which may be nil for
// undefined.
func (f *Function) Call(this any, args ...any) (*Value, error) {
	r, fn := f.target("call")
	res, err := r.eng.Call(fn, r.toEngine(this), r.toEngineArgs(args)...)
	if err != nil {
		return nil, engine.ScriptError(f.Name(), err)
	}
	return r.wrap(res), nil
}

// New invokes the function as a constructor.
func (f *Function) New(args ...any) (*Object, error) {
	r, fn := f.target("construct")
	obj, err := r.eng.Construct(fn, r.toEngineArgs(args)...)
	if err != nil {
		return nil, engine.ScriptError(f.Name(), err)
	}
	return r.object(obj), nil
}

// Name returns the function's name property.
func (f *Function) Name() string {
	_, fn := f.target("name")
	if v := fn.Get("name"); v != nil {
		return v.String()
	}
	return ""
}

// Array is a handle to a script array.
type Array struct {
	Object
}

// Len returns the array's length.
func (a *Array) Len() (int, error) {
	r, arr := a.target("length")
	return length(r, arr)
}

// Get returns the element at index i; out-of-range reads are undefined.
// An exception thrown by an index getter is returned.
func (a *Array) Get(i int) (*Value, error) {
	return a.Object.Get(strconv.Itoa(i))
}

// Set writes the element at index i, growing the array as needed.
func (a *Array) Set(i int, value any) error {
	return a.Object.Set(strconv.Itoa(i), value)
}

// Push appends values and returns the new length.
func (a *Array) Push(values ...any) (int, error) {
	n, err := a.Invoke("push", values...)
	if err != nil {
		return 0, err
	}
	return int(n.AsInt()), nil
}

// Values returns handles for every element.
func (a *Array) Values() ([]*Value, error) {
	n, err := a.Len()
	if err != nil {
		return nil, err
	}
	out := make([]*Value, n)
	for i := range n {
		if out[i], err = a.Get(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func length(r *Runtime, obj *goja.Object) (int, error) {
	var n int64
	if err := r.eng.Try("length", func() { n = obj.Get("length").ToInteger() }); err != nil {
		return 0, err
	}
	return int(n), nil
}

// TypedArray is a handle to a typed array view such as Uint8Array.
type TypedArray struct {
	Object
}

// Type returns the constructor name, e.g. "Uint8Array".
func (t *TypedArray) Type() string {
	_, obj := t.target("typed array type")
	name, _ := engine.TypedArrayName(obj)
	return name
}

// Len returns the number of elements.
func (t *TypedArray) Len() (int, error) {
	r, obj := t.target("typed array length")
	return length(r, obj)
}

// Bytes returns a copy of the bytes the view covers.
func (t *TypedArray) Bytes() ([]byte, error) {
	r, obj := t.target("typed array bytes")
	b, err := r.eng.TypedArrayBytes(obj)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseValue, errors.KindTypeMismatch, err, t.Type())
	}
	return b, nil
}

// WeakObject observes an object without keeping it alive.
type WeakObject struct {
	rt   weak.Pointer[Runtime]
	ptr  weak.Pointer[goja.Object]
	kind Kind
}

// Lock returns a strong handle if the object and its runtime are still
// alive.
func (w *WeakObject) Lock() (*Object, bool) {
	r := w.rt.Value()
	if r == nil || !r.Alive() {
		return nil, false
	}
	obj := w.ptr.Value()
	if obj == nil {
		return nil, false
	}
	o := &Object{}
	o.init(w.rt, obj, w.kind)
	return o, true
}
