package modules

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"unicode"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/runtime"
)

// Host is the interface for struct-based modules.
// All exported methods except the ones declared by the interfaces in this
// file are registered as module functions under lowerCamelCase names.
type Host interface {
	// Namespace returns the module name (e.g. "Crypto").
	Namespace() string
}

// AsyncHost extends Host with async function declarations.
// Functions listed by AsyncFunctions() return promises to script and run
// off the engine goroutine. Either the Go or the script name may be used.
type AsyncHost interface {
	Host
	AsyncFunctions() []string
}

// ConstantsProvider exposes read-only module constants.
type ConstantsProvider interface {
	Constants() map[string]any
}

// EventsProvider declares the events a host module emits.
type EventsProvider interface {
	Events() []string
}

// ExplicitRegistrar allows hosts to provide exact script function names
// when automatic PascalCase-to-camelCase conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

var reserved = []string{"Namespace", "AsyncFunctions", "Constants", "Events", "Register"}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// FromHost builds a definition from h. Methods may take a leading
// context.Context; the remaining parameters are converted from script
// arguments, with missing trailing arguments left at their zero value.
// Supported results are (), (T), (error) and (T, error).
func FromHost(h Host) (*Definition, error) {
	ns := h.Namespace()
	if ns == "" {
		return nil, errors.InvalidInput(errors.PhaseModule, "namespace cannot be empty")
	}
	def := Define(ns)

	asyncFuncs := make(map[string]bool)
	if ah, ok := h.(AsyncHost); ok {
		for _, name := range ah.AsyncFunctions() {
			asyncFuncs[name] = true
		}
	}
	if cp, ok := h.(ConstantsProvider); ok {
		for k, v := range cp.Constants() {
			def.Constant(k, v)
		}
	}
	if ep, ok := h.(EventsProvider); ok {
		def.WithEvents(ep.Events()...)
	}

	add := func(goName, name string, fn reflect.Value) error {
		m, err := newMethod(ns, name, fn)
		if err != nil {
			return err
		}
		if asyncFuncs[name] || asyncFuncs[goName] {
			def.AsyncFunction(name, m.async)
		} else {
			def.Function(name, m.sync)
		}
		return nil
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			fn := reflect.ValueOf(handler)
			if fn.Kind() != reflect.Func {
				return nil, errors.New(errors.PhaseModule, errors.KindTypeMismatch).
					Path(ns, name).
					GoType(fmt.Sprintf("%T", handler)).
					Detail("handler must be a function").
					Build()
			}
			if err := add(name, name, fn); err != nil {
				return nil, err
			}
		}
		return def, nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || slices.Contains(reserved, method.Name) {
			continue
		}
		if err := add(method.Name, toCamelCase(method.Name), rv.Method(i)); err != nil {
			return nil, err
		}
	}
	return def, nil
}

// method adapts a Go function to the host function signatures.
type method struct {
	name      string
	fn        reflect.Value
	withCtx   bool
	params    []reflect.Type
	hasResult bool
	hasErr    bool
}

func newMethod(module, name string, fn reflect.Value) (*method, error) {
	t := fn.Type()
	unsupported := func(detail string) error {
		return errors.New(errors.PhaseModule, errors.KindRegistration).
			Path(module, name).
			GoType(t.String()).
			Detail("%s", detail).
			Build()
	}
	if t.IsVariadic() {
		return nil, unsupported("variadic functions are not supported")
	}

	m := &method{name: name, fn: fn}
	start := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		m.withCtx = true
		start = 1
	}
	for i := start; i < t.NumIn(); i++ {
		m.params = append(m.params, t.In(i))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			m.hasErr = true
		} else {
			m.hasResult = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, unsupported("second result must be error")
		}
		m.hasResult, m.hasErr = true, true
	default:
		return nil, unsupported("too many results")
	}
	return m, nil
}

// args converts script arguments. Must run on the engine goroutine.
func (m *method) args(c *runtime.Call) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(m.params))
	for i, t := range m.params {
		p := reflect.New(t)
		if i < c.Len() && !c.Arg(i).IsUndefined() {
			if err := c.ExportArg(i, p.Interface()); err != nil {
				return nil, err
			}
		}
		out[i] = p.Elem()
	}
	return out, nil
}

func (m *method) call(ctx context.Context, args []reflect.Value) (any, error) {
	if m.withCtx {
		args = append([]reflect.Value{reflect.ValueOf(ctx)}, args...)
	}
	out := m.fn.Call(args)

	if m.hasErr {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
	}
	if m.hasResult {
		return out[0].Interface(), nil
	}
	return nil, nil
}

func (m *method) sync(c *runtime.Call) (any, error) {
	args, err := m.args(c)
	if err != nil {
		return nil, err
	}
	return m.call(c.Context(), args)
}

func (m *method) async(ctx context.Context, c *runtime.Call) (any, error) {
	// Arguments still point into the engine; convert them there.
	args, err := runtime.Do(ctx, c.Runtime(), func(*runtime.Runtime) ([]reflect.Value, error) {
		return m.args(c)
	})
	if err != nil {
		return nil, err
	}
	return m.call(ctx, args)
}

// toCamelCase converts PascalCase to lowerCamelCase.
// Handles acronyms: HTTPServer -> httpServer, ID -> id, GetURL -> getURL
func toCamelCase(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	// Last uppercase before lowercase starts next word, not part of acronym
	if n > 1 && n < len(runes) && unicode.IsLower(runes[n]) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
