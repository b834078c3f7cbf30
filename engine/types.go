package engine

import (
	"math/big"
	"reflect"

	"github.com/dop251/goja"
)

// Type is the engine-level classification of a value.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBool
	TypeNumber
	TypeBigInt
	TypeString
	TypeSymbol
	TypeObject
	TypeFunction
	TypeArray
	TypeTypedArray
)

var typeNames = [...]string{
	TypeUndefined:  "undefined",
	TypeNull:       "null",
	TypeBool:       "boolean",
	TypeNumber:     "number",
	TypeBigInt:     "bigint",
	TypeString:     "string",
	TypeSymbol:     "symbol",
	TypeObject:     "object",
	TypeFunction:   "function",
	TypeArray:      "array",
	TypeTypedArray: "typed-array",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

var (
	typeBool    = reflect.TypeOf(false)
	typeInt64   = reflect.TypeOf(int64(0))
	typeFloat64 = reflect.TypeOf(float64(0))
	typeString  = reflect.TypeOf("")
	typeBigInt  = reflect.TypeOf((*big.Int)(nil))
)

// Classify returns the type of v. Exactly one type applies to any value.
func Classify(v goja.Value) Type {
	if v == nil || goja.IsUndefined(v) {
		return TypeUndefined
	}
	if goja.IsNull(v) {
		return TypeNull
	}
	switch x := v.(type) {
	case *goja.Symbol:
		return TypeSymbol
	case *goja.Object:
		return classifyObject(x)
	}
	switch v.ExportType() {
	case typeBool:
		return TypeBool
	case typeInt64, typeFloat64:
		return TypeNumber
	case typeString:
		return TypeString
	case typeBigInt:
		return TypeBigInt
	}
	return TypeUndefined
}

func classifyObject(obj *goja.Object) Type {
	if _, ok := goja.AssertFunction(obj); ok {
		return TypeFunction
	}
	if obj.ClassName() == "Array" {
		return TypeArray
	}
	if _, ok := TypedArrayName(obj); ok {
		return TypeTypedArray
	}
	return TypeObject
}
