package runtime

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
)

// scriptValuer is implemented by every handle that stands for a script
// value.
type scriptValuer interface {
	scriptValue(r *Runtime) goja.Value
}

func (v *Value) scriptValue(r *Runtime) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	v.check()
	switch v.kind {
	case KindUndefined:
		return goja.Undefined()
	case KindNull:
		return goja.Null()
	case KindBool:
		return r.eng.ToValue(v.b)
	case KindNumber:
		return r.eng.ToValue(v.num)
	}
	if owner := v.rt.Value(); owner != r {
		if owner == nil || !owner.Alive() {
			panic(errors.RuntimeLost(errors.PhaseValue, "convert"))
		}
		panic(errors.InvalidInput(errors.PhaseValue, "value belongs to another runtime"))
	}
	return v.v
}

// toEngine converts a Go value or handle into an engine value. A nil
// becomes undefined; errors become the value a host function would throw.
func (r *Runtime) toEngine(x any) goja.Value {
	switch v := x.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return v
	case scriptValuer:
		return v.scriptValue(r)
	case error:
		return r.eng.ThrowValue(v)
	}
	return r.eng.ToValue(x)
}

func (r *Runtime) toEngineArgs(args []any) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		out[i] = r.toEngine(a)
	}
	return out
}

// rejectionValue converts a rejection reason. Strings become Error objects
// so script sees a message and a stack.
func (r *Runtime) rejectionValue(reason any) goja.Value {
	switch v := reason.(type) {
	case string:
		return r.eng.NewError(v)
	case error:
		return r.eng.ThrowValue(v)
	}
	return r.toEngine(reason)
}

func (r *Runtime) stringify(v goja.Value, replacer *Function, indent string) (string, bool, error) {
	args := []goja.Value{v, goja.Undefined(), goja.Undefined()}
	if replacer != nil {
		args[1] = replacer.scriptValue(r)
	}
	if indent != "" {
		args[2] = r.eng.NewString(indent)
	}
	res, err := r.eng.Call(r.jsonStringify, r.json, args...)
	if err != nil {
		return "", false, engine.ScriptError("JSON.stringify", err)
	}
	if goja.IsUndefined(res) {
		return "", false, nil
	}
	return res.String(), true, nil
}

// ToValue converts a Go value into a value handle. Maps, slices and structs
// are exposed the way goja exposes them.
func (r *Runtime) ToValue(x any) *Value {
	r.enter("to value")
	return r.wrap(r.toEngine(x))
}

// ExportTo converts v into the Go value target points to.
func (r *Runtime) ExportTo(v *Value, target any) error {
	r.enter("export")
	if err := r.eng.ExportTo(v.scriptValue(r), target); err != nil {
		return errors.New(errors.PhaseValue, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", target)).
			JSType(v.Kind().String()).
			Cause(err).
			Build()
	}
	return nil
}

// CreateObject creates a plain object.
func (r *Runtime) CreateObject() *Object {
	r.enter("create object")
	return r.object(r.eng.NewObject())
}

// CreateObjectWithPrototype creates an object whose prototype is proto, or
// null when proto is nil.
func (r *Runtime) CreateObjectWithPrototype(proto *Object) *Object {
	r.enter("create object")
	var p *goja.Object
	if proto != nil {
		_, p = proto.target("create object")
	}
	return r.object(r.eng.NewObjectWithPrototype(p))
}

// CreateArray creates an array holding values.
func (r *Runtime) CreateArray(values ...any) *Array {
	r.enter("create array")
	a := &Array{}
	a.init(r.self, r.eng.NewArray(r.toEngineArgs(values)...), KindArray)
	return a
}

// CreateString creates a string value.
func (r *Runtime) CreateString(s string) *Value {
	r.enter("create string")
	return r.wrap(r.eng.NewString(s))
}

// CreateSymbol creates a unique symbol with the given description.
func (r *Runtime) CreateSymbol(description string) *Value {
	r.enter("create symbol")
	return r.wrap(r.eng.NewSymbol(description))
}

// CreateUint8Array creates a Uint8Array over a copy of data.
func (r *Runtime) CreateUint8Array(data []byte) (*TypedArray, error) {
	r.enter("create typed array")
	obj, err := r.eng.NewUint8Array(data)
	if err != nil {
		return nil, engine.ScriptError("Uint8Array", err)
	}
	t := &TypedArray{}
	t.init(r.self, obj, KindTypedArray)
	return t, nil
}

// CreateError creates an Error object with message.
func (r *Runtime) CreateError(message string) *Object {
	r.enter("create error")
	return r.object(r.eng.NewError(message))
}
