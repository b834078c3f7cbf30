package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/errors"
)

// Kind is the observed category of a script value. A value has exactly one
// kind; Array, Function and TypedArray values are also objects. KindBigInt
// is the one kind not covered by the undefined, null, bool, number, string,
// symbol and object predicates: a BigInt answers only IsBigInt.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindBigInt
	KindString
	KindSymbol
	KindObject
	KindFunction
	KindArray
	KindTypedArray
)

var kindNames = [...]string{
	KindUndefined:  "undefined",
	KindNull:       "null",
	KindBool:       "boolean",
	KindNumber:     "number",
	KindBigInt:     "bigint",
	KindString:     "string",
	KindSymbol:     "symbol",
	KindObject:     "object",
	KindFunction:   "function",
	KindArray:      "array",
	KindTypedArray: "typed-array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

func kindOf(t engine.Type) Kind {
	switch t {
	case engine.TypeNull:
		return KindNull
	case engine.TypeBool:
		return KindBool
	case engine.TypeNumber:
		return KindNumber
	case engine.TypeBigInt:
		return KindBigInt
	case engine.TypeString:
		return KindString
	case engine.TypeSymbol:
		return KindSymbol
	case engine.TypeObject:
		return KindObject
	case engine.TypeFunction:
		return KindFunction
	case engine.TypeArray:
		return KindArray
	case engine.TypeTypedArray:
		return KindTypedArray
	}
	return KindUndefined
}

// noCopy is picked up by go vet's copylocks check. Values are handed around
// by pointer; copying the struct would split the released flag.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Value is a handle to a script value.
//
// Undefined, null, booleans and numbers are carried natively and stay usable
// after their runtime is gone. Every other kind holds an engine value plus a
// weak back-reference to its runtime; using it after Close panics with
// errors.ErrRuntimeLost.
//
// A Value is not safe for concurrent use, and engine-backed values must only
// be touched on the engine goroutine (see Runtime.Run).
type Value struct {
	_ noCopy

	rt   weak.Pointer[Runtime]
	v    goja.Value
	kind Kind
	b    bool
	num  float64

	released bool
}

// Undefined returns a runtime-free undefined value.
func Undefined() *Value { return &Value{kind: KindUndefined} }

// Null returns a runtime-free null value.
func Null() *Value { return &Value{kind: KindNull} }

// True returns a runtime-free true value.
func True() *Value { return Bool(true) }

// False returns a runtime-free false value.
func False() *Value { return Bool(false) }

// Bool returns a runtime-free boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Number returns a runtime-free number value.
func Number(f float64) *Value { return &Value{kind: KindNumber, num: f} }

// Int returns a runtime-free number value holding n. Integers beyond 2^53
// lose precision, as they do in script.
func Int(n int64) *Value { return Number(float64(n)) }

// wrap converts an engine value produced by r into a handle.
func (r *Runtime) wrap(gv goja.Value) *Value {
	kind := kindOf(engine.Classify(gv))
	switch kind {
	case KindUndefined:
		return Undefined()
	case KindNull:
		return Null()
	case KindBool:
		return Bool(gv.ToBoolean())
	case KindNumber:
		return Number(gv.ToFloat())
	}
	return &Value{rt: r.self, v: gv, kind: kind}
}

func (v *Value) check() {
	if v.released {
		panic(errors.Released(v.kind.String()))
	}
}

// runtime returns the owning runtime, panicking if it is gone or, with
// strict thread checks, if the caller is off the engine goroutine.
func (v *Value) runtime(op string) *Runtime {
	v.check()
	r := v.rt.Value()
	if r == nil || !r.Alive() {
		panic(errors.RuntimeLost(errors.PhaseValue, op))
	}
	r.checkThread(op)
	return r
}

// Kind reports the value's kind.
func (v *Value) Kind() Kind { return v.kind }

func (v *Value) IsUndefined() bool  { return v.kind == KindUndefined }
func (v *Value) IsNull() bool       { return v.kind == KindNull }
func (v *Value) IsBool() bool       { return v.kind == KindBool }
func (v *Value) IsNumber() bool     { return v.kind == KindNumber }
func (v *Value) IsBigInt() bool     { return v.kind == KindBigInt }
func (v *Value) IsString() bool     { return v.kind == KindString }
func (v *Value) IsSymbol() bool     { return v.kind == KindSymbol }
func (v *Value) IsFunction() bool   { return v.kind == KindFunction }
func (v *Value) IsArray() bool      { return v.kind == KindArray }
func (v *Value) IsTypedArray() bool { return v.kind == KindTypedArray }

// IsObject reports whether the value is any object, including functions and
// arrays. It is false for BigInt, which is a primitive.
func (v *Value) IsObject() bool { return v.kind >= KindObject }

// IsNullish reports whether the value is undefined or null.
func (v *Value) IsNullish() bool { return v.kind <= KindNull }

// AsBool returns the boolean payload. It panics with errors.ErrWrongKind if
// the value is not a boolean.
func (v *Value) AsBool() bool {
	v.expect(KindBool)
	return v.b
}

// AsInt returns the number payload truncated toward zero. It panics with
// errors.ErrWrongKind if the value is not a number.
func (v *Value) AsInt() int64 {
	v.expect(KindNumber)
	if math.IsNaN(v.num) {
		return 0
	}
	return int64(v.num)
}

// AsFloat returns the number payload.
func (v *Value) AsFloat() float64 {
	v.expect(KindNumber)
	return v.num
}

// AsString returns the string payload. It requires a live runtime.
func (v *Value) AsString() string {
	v.expect(KindString)
	v.runtime("string")
	return v.v.String()
}

// AsObject returns an object view. Functions, arrays and typed arrays are
// objects too.
func (v *Value) AsObject() *Object {
	v.check()
	if !v.IsObject() {
		panic(errors.WrongKind(KindObject.String(), v.kind.String()))
	}
	v.runtime("object")
	o := &Object{}
	o.init(v.rt, v.v.(*goja.Object), v.kind)
	return o
}

// AsFunction returns a function view.
func (v *Value) AsFunction() *Function {
	v.expect(KindFunction)
	v.runtime("function")
	o := &Function{}
	o.init(v.rt, v.v.(*goja.Object), v.kind)
	return o
}

// AsArray returns an array view.
func (v *Value) AsArray() *Array {
	v.expect(KindArray)
	v.runtime("array")
	o := &Array{}
	o.init(v.rt, v.v.(*goja.Object), v.kind)
	return o
}

// AsTypedArray returns a typed array view.
func (v *Value) AsTypedArray() *TypedArray {
	v.expect(KindTypedArray)
	v.runtime("typed array")
	o := &TypedArray{}
	o.init(v.rt, v.v.(*goja.Object), v.kind)
	return o
}

func (v *Value) expect(k Kind) {
	v.check()
	if v.kind != k {
		panic(errors.WrongKind(k.String(), v.kind.String()))
	}
}

// Copy returns an independent handle to the same value. Primitives carried
// natively copy without a runtime.
func (v *Value) Copy() *Value {
	v.check()
	switch v.kind {
	case KindUndefined, KindNull:
		return &Value{kind: v.kind}
	case KindBool:
		return Bool(v.b)
	case KindNumber:
		return Number(v.num)
	}
	v.runtime("copy")
	return &Value{rt: v.rt, v: v.v, kind: v.kind}
}

// Equal reports strict equality (===). NaN is unequal to itself and +0
// equals -0. Comparing engine-backed values requires a live runtime.
func (v *Value) Equal(other *Value) bool {
	v.check()
	other.check()
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.num == other.num
	}
	v.runtime("equal")
	other.runtime("equal")
	return v.v.StrictEquals(other.v)
}

// JSONStringify serializes the value the way JSON.stringify does. The
// second result is false when JSON.stringify would return undefined or
// throw (functions, symbols, cycles). A nil replacer and empty indent are
// omitted. Primitives without a replacer serialize without a runtime.
func (v *Value) JSONStringify(replacer *Function, indent string) (string, bool) {
	v.check()
	if replacer == nil {
		switch v.kind {
		case KindUndefined:
			return "", false
		case KindNull:
			return "null", true
		case KindBool:
			return strconv.FormatBool(v.b), true
		case KindNumber:
			if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
				return "null", true
			}
			return formatNumber(v.num), true
		}
	}

	var r *Runtime
	if v.v != nil {
		r = v.runtime("json stringify")
	} else {
		r = replacer.runtime("json stringify")
	}
	s, ok, err := r.stringify(r.toEngine(v), replacer, indent)
	if err != nil {
		r.log.Debug("json stringify failed", zap.Error(err))
		return "", false
	}
	return s, ok
}

// Export converts the value to a plain Go value: nil, bool, float64,
// string, *big.Int, map[string]any, []any and so on.
func (v *Value) Export() any {
	v.check()
	switch v.kind {
	case KindUndefined, KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	}
	v.runtime("export")
	return v.v.Export()
}

// Release drops the handle. Later use panics with errors.ErrReleased.
// Release is idempotent.
func (v *Value) Release() {
	v.released = true
	v.v = nil
}

// Released reports whether Release was called.
func (v *Value) Released() bool { return v.released }

// String returns a debug representation. It never panics.
func (v *Value) String() string {
	switch {
	case v.released:
		return "<released>"
	case v.kind == KindUndefined:
		return "undefined"
	case v.kind == KindNull:
		return "null"
	case v.kind == KindBool:
		return strconv.FormatBool(v.b)
	case v.kind == KindNumber:
		return formatNumber(v.num)
	}
	if r := v.rt.Value(); r == nil || !r.Alive() {
		return "<" + v.kind.String() + " of closed runtime>"
	}
	switch v.kind {
	case KindString:
		return strconv.Quote(v.v.String())
	case KindSymbol, KindBigInt:
		return v.v.String()
	}
	return "[" + v.kind.String() + "]"
}

// formatNumber renders f like Number.prototype.toString.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
