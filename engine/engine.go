package engine

import (
	"reflect"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
)

// Config holds engine configuration options.
type Config struct {
	// Logger overrides the package logger.
	Logger *zap.Logger

	// MaxCallStackSize bounds script recursion. Zero keeps goja's default.
	MaxCallStackSize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxCallStackSize: 10000,
	}
}

// Engine is the narrow seam over goja. Everything else in the module talks
// to the script engine through it: create values, create objects and
// functions, call functions, evaluate scripts, define properties.
//
// An Engine is not safe for concurrent use. All methods except Interrupt
// must be called from the engine goroutine.
type Engine struct {
	vm  *goja.Runtime
	log *zap.Logger

	ctorFactory goja.Callable

	rejMu      sync.Mutex
	rejections map[*goja.Promise]struct{}
	rejOrder   []*goja.Promise
}

// New creates an engine.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	vm := goja.New()
	if cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}

	e := &Engine{
		vm:         vm,
		log:        log,
		rejections: make(map[*goja.Promise]struct{}),
	}
	vm.SetPromiseRejectionTracker(e.trackRejection)
	debugf("engine created (max stack %d)", cfg.MaxCallStackSize)
	return e
}

// VM exposes the underlying goja runtime.
func (e *Engine) VM() *goja.Runtime {
	return e.vm
}

// Interrupt aborts running script. Safe to call from any goroutine.
func (e *Engine) Interrupt(reason any) {
	e.vm.Interrupt(reason)
}

// Global returns the global object.
func (e *Engine) Global() *goja.Object {
	return e.vm.GlobalObject()
}

// NewObject creates a plain object.
func (e *Engine) NewObject() *goja.Object {
	return e.vm.NewObject()
}

// NewObjectWithPrototype creates an object whose prototype is proto.
// A nil proto creates an object with a null prototype.
func (e *Engine) NewObjectWithPrototype(proto *goja.Object) *goja.Object {
	return e.vm.CreateObject(proto)
}

// NewArray creates an array holding values.
func (e *Engine) NewArray(values ...goja.Value) *goja.Object {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}
	return e.vm.NewArray(items...)
}

// NewString creates a string value.
func (e *Engine) NewString(s string) goja.Value {
	return e.vm.ToValue(s)
}

// NewUint8Array creates a Uint8Array over a copy of data.
func (e *Engine) NewUint8Array(data []byte) (*goja.Object, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	ab := e.vm.NewArrayBuffer(buf)
	return e.vm.New(e.vm.Get("Uint8Array"), e.vm.ToValue(ab))
}

// NewError creates an Error object with message.
func (e *Engine) NewError(message string) *goja.Object {
	obj, err := e.vm.New(e.vm.Get("Error"), e.vm.ToValue(message))
	if err != nil {
		// The Error constructor only fails if script replaced it.
		return e.vm.NewGoError(errors.InvalidData(errors.PhaseRuntime, nil, message))
	}
	return obj
}

// ToValue converts a Go value to a script value.
func (e *Engine) ToValue(v any) goja.Value {
	return e.vm.ToValue(v)
}

// ExportTo converts a script value into the Go value pointed to by target.
func (e *Engine) ExportTo(v goja.Value, target any) error {
	return e.vm.ExportTo(v, target)
}

// Eval evaluates source in the global scope. Exceptions are returned as
// *errors.Error with KindScriptEvaluation.
func (e *Engine) Eval(label, source string) (goja.Value, error) {
	v, err := e.vm.RunScript(label, source)
	if err != nil {
		return nil, ScriptError(label, err)
	}
	return v, nil
}

// Try runs fn and returns a script exception it raises as an error. Go
// panics and interrupts keep unwinding.
func (e *Engine) Try(label string, fn func()) error {
	if ex := e.vm.Try(fn); ex != nil {
		return ScriptError(label, ex)
	}
	return nil
}

// Call invokes fn with the given receiver.
func (e *Engine) Call(fn goja.Value, this goja.Value, args ...goja.Value) (goja.Value, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseValue, nil, "", "not a function")
	}
	if this == nil {
		this = goja.Undefined()
	}
	return callable(this, args...)
}

// Construct invokes ctor as a constructor.
func (e *Engine) Construct(ctor goja.Value, args ...goja.Value) (*goja.Object, error) {
	return e.vm.New(ctor, args...)
}

// PropertyFlags describes a data property.
type PropertyFlags struct {
	Writable     bool
	Enumerable   bool
	Configurable bool
}

func flag(b bool) goja.Flag {
	if b {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

// DefineProperty defines a data property on obj.
func (e *Engine) DefineProperty(obj *goja.Object, name string, value goja.Value, flags PropertyFlags) error {
	return obj.DefineDataProperty(name, value, flag(flags.Writable), flag(flags.Configurable), flag(flags.Enumerable))
}

// NewSymbol creates a symbol with the given description.
func (e *Engine) NewSymbol(description string) *goja.Symbol {
	return goja.NewSymbol(description)
}

// NewPromise creates a pending promise and its resolving functions.
// The resolving functions must be called on the engine goroutine.
func (e *Engine) NewPromise() (*goja.Object, *goja.Promise, func(any) error, func(any) error) {
	p, resolve, reject := e.vm.NewPromise()
	return e.vm.ToValue(p).(*goja.Object), p, resolve, reject
}

// AsPromise returns the promise behind v, if v is a promise object.
func AsPromise(v goja.Value) (*goja.Promise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	p, ok := obj.Export().(*goja.Promise)
	return p, ok
}

func (e *Engine) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	e.rejMu.Lock()
	defer e.rejMu.Unlock()
	switch op {
	case goja.PromiseRejectionReject:
		if _, ok := e.rejections[p]; !ok {
			e.rejections[p] = struct{}{}
			e.rejOrder = append(e.rejOrder, p)
		}
	case goja.PromiseRejectionHandle:
		delete(e.rejections, p)
	}
}

// UnhandledRejections returns and forgets the promises rejected without a
// handler since the last call.
func (e *Engine) UnhandledRejections() []*goja.Promise {
	e.rejMu.Lock()
	defer e.rejMu.Unlock()
	var out []*goja.Promise
	for _, p := range e.rejOrder {
		if _, ok := e.rejections[p]; ok {
			out = append(out, p)
		}
	}
	e.rejOrder = e.rejOrder[:0]
	clear(e.rejections)
	return out
}

// LogUnhandledRejections logs every pending unhandled rejection at warn.
func (e *Engine) LogUnhandledRejections() {
	for _, p := range e.UnhandledRejections() {
		name, message, _ := ErrorInfo(p.Result())
		e.log.Warn("unhandled promise rejection",
			zap.String("name", name),
			zap.String("message", message))
	}
}

var typedArrayTypes = map[reflect.Type]string{
	reflect.TypeOf([]int8(nil)):    "Int8Array",
	reflect.TypeOf([]uint8(nil)):   "Uint8Array",
	reflect.TypeOf([]int16(nil)):   "Int16Array",
	reflect.TypeOf([]uint16(nil)):  "Uint16Array",
	reflect.TypeOf([]int32(nil)):   "Int32Array",
	reflect.TypeOf([]uint32(nil)):  "Uint32Array",
	reflect.TypeOf([]float32(nil)): "Float32Array",
	reflect.TypeOf([]float64(nil)): "Float64Array",
	reflect.TypeOf([]int64(nil)):   "BigInt64Array",
	reflect.TypeOf([]uint64(nil)):  "BigUint64Array",
}

// TypedArrayName returns the constructor name of a typed array object.
func TypedArrayName(obj *goja.Object) (string, bool) {
	name, ok := typedArrayTypes[obj.ExportType()]
	return name, ok
}

// TypedArrayBytes returns a copy of the bytes viewed by a typed array.
func (e *Engine) TypedArrayBytes(obj *goja.Object) ([]byte, error) {
	var view []byte
	if err := e.vm.ExportTo(obj, &view); err != nil {
		return nil, err
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}
