package modules

import (
	"context"
	"slices"
	"sort"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/runtime"
	"github.com/wippyai/js-runtime/scheduler"
)

// Listener management methods added to modules that declare events.
const (
	methodAddListener        = "addListener"
	methodRemoveListener     = "removeListener"
	methodRemoveAllListeners = "removeAllListeners"
	methodListenerCount      = "listenerCount"
)

var listenerMethods = []string{
	methodAddListener,
	methodRemoveListener,
	methodRemoveAllListeners,
	methodListenerCount,
}

// Func is a module function. Exactly one of Sync and Async is set.
type Func struct {
	Sync  runtime.SyncFunc
	Async runtime.AsyncFunc
}

// Definition describes a native module: read-only constants, functions
// and the events it emits. It is installed as Core.<Name>.
type Definition struct {
	Name      string
	Constants map[string]any
	Functions map[string]Func
	Events    []string
}

// Define starts a definition named name.
func Define(name string) *Definition {
	return &Definition{
		Name:      name,
		Constants: make(map[string]any),
		Functions: make(map[string]Func),
	}
}

// Constant adds a read-only enumerable property.
func (d *Definition) Constant(name string, value any) *Definition {
	d.Constants[name] = value
	return d
}

// Function adds a synchronous function.
func (d *Definition) Function(name string, fn runtime.SyncFunc) *Definition {
	d.Functions[name] = Func{Sync: fn}
	return d
}

// AsyncFunction adds a promise-returning function.
func (d *Definition) AsyncFunction(name string, fn runtime.AsyncFunc) *Definition {
	d.Functions[name] = Func{Async: fn}
	return d
}

// WithEvents declares events the module may emit.
func (d *Definition) WithEvents(names ...string) *Definition {
	for _, n := range names {
		if !slices.Contains(d.Events, n) {
			d.Events = append(d.Events, n)
		}
	}
	return d
}

func (d *Definition) hasEvent(name string) bool {
	return slices.Contains(d.Events, name)
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return errors.InvalidInput(errors.PhaseModule, "module name cannot be empty")
	}
	for name, fn := range d.Functions {
		if name == "" {
			return errors.InvalidInput(errors.PhaseModule, "function name cannot be empty")
		}
		if (fn.Sync == nil) == (fn.Async == nil) {
			return errors.New(errors.PhaseModule, errors.KindInvalidInput).
				Path(d.Name, name).
				Detail("function needs exactly one of Sync and Async").
				Build()
		}
		if _, ok := d.Constants[name]; ok {
			return errors.New(errors.PhaseModule, errors.KindRegistration).
				Path(d.Name, name).
				Detail("name is both a constant and a function").
				Build()
		}
	}
	if len(d.Events) == 0 {
		return nil
	}
	for _, m := range listenerMethods {
		_, isFunc := d.Functions[m]
		_, isConst := d.Constants[m]
		if isFunc || isConst {
			return errors.New(errors.PhaseModule, errors.KindRegistration).
				Path(d.Name, m).
				Detail("name is reserved for event listeners").
				Build()
		}
	}
	return nil
}

// Registry holds module definitions and installs them into runtimes.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	holders map[string]*Holder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{holders: make(map[string]*Holder)}
}

// Register adds def. Names are unique within a registry.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return errors.InvalidInput(errors.PhaseModule, "definition is nil")
	}
	if err := def.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.holders[def.Name]; ok {
		return errors.New(errors.PhaseModule, errors.KindRegistration).
			Path(def.Name).
			Detail("module already registered").
			Build()
	}
	r.holders[def.Name] = &Holder{def: def}
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterHost registers the module derived from h. See FromHost.
func (r *Registry) RegisterHost(h Host) error {
	def, err := FromHost(h)
	if err != nil {
		return err
	}
	return r.Register(def)
}

// Get returns the holder of a registered module, or nil.
func (r *Registry) Get(name string) *Holder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.holders[name]
}

// Names returns registered module names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Install creates Core.<Name> for every registered module in rt. A
// registry may be installed into several runtimes; events are delivered to
// all of them.
func (r *Registry) Install(ctx context.Context, rt *runtime.Runtime) error {
	r.mu.RLock()
	holders := make([]*Holder, 0, len(r.order))
	for _, name := range r.order {
		holders = append(holders, r.holders[name])
	}
	r.mu.RUnlock()

	return rt.Run(ctx, func(rt *runtime.Runtime) error {
		for _, h := range holders {
			if err := h.install(rt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Holder is the Go side of an installed module.
type Holder struct {
	def *Definition

	mu       sync.Mutex
	bindings []*binding
}

// binding is a module installed in one runtime. listeners is only touched
// on that runtime's engine goroutine.
type binding struct {
	rt        weak.Pointer[runtime.Runtime]
	listeners map[string][]*runtime.Function
}

// Name returns the module name.
func (h *Holder) Name() string { return h.def.Name }

// Definition returns the module definition.
func (h *Holder) Definition() *Definition { return h.def }

// Runtimes returns the number of live runtimes the module is installed in.
func (h *Holder) Runtimes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, b := range h.bindings {
		if rt := b.rt.Value(); rt != nil && rt.Alive() {
			n++
		}
	}
	return n
}

func (h *Holder) install(rt *runtime.Runtime) error {
	def := h.def
	core := rt.Core()
	if core.Has(def.Name) {
		return errors.New(errors.PhaseModule, errors.KindRegistration).
			Path(def.Name).
			Detail("module already installed").
			Build()
	}

	obj := rt.CreateObject()
	for _, name := range sortedKeys(def.Constants) {
		if err := obj.DefineProperty(name, def.Constants[name], runtime.PropertyFlags{Enumerable: true}); err != nil {
			return errors.Registration(errors.PhaseModule, def.Name, name, err)
		}
	}
	for _, name := range sortedKeys(def.Functions) {
		fn := def.Functions[name]
		var f *runtime.Function
		if fn.Async != nil {
			f = rt.CreateAsyncFunction(name, fn.Async)
		} else {
			f = rt.CreateSyncFunction(name, fn.Sync)
		}
		if err := obj.Set(name, f); err != nil {
			return errors.Registration(errors.PhaseModule, def.Name, name, err)
		}
	}

	var b *binding
	if len(def.Events) > 0 {
		b = &binding{rt: weak.Make(rt), listeners: make(map[string][]*runtime.Function)}
		if err := h.defineListenerMethods(rt, obj, b); err != nil {
			return err
		}
	}
	if err := core.Set(def.Name, obj); err != nil {
		return errors.New(errors.PhaseModule, errors.KindRegistration).
			Path(def.Name).
			Cause(err).
			Detail("install module").
			Build()
	}
	if b != nil {
		h.mu.Lock()
		h.bindings = append(h.bindings, b)
		h.mu.Unlock()
	}
	return nil
}

func (h *Holder) defineListenerMethods(rt *runtime.Runtime, obj *runtime.Object, b *binding) error {
	methods := map[string]runtime.SyncFunc{
		methodAddListener: func(c *runtime.Call) (any, error) {
			event, err := h.event(c)
			if err != nil {
				return nil, err
			}
			if !c.Arg(1).IsFunction() {
				return nil, errors.WrongKind(runtime.KindFunction.String(), c.Arg(1).Kind().String())
			}
			b.listeners[event] = append(b.listeners[event], c.Arg(1).AsFunction())
			return nil, nil
		},
		methodRemoveListener: func(c *runtime.Call) (any, error) {
			event, err := h.event(c)
			if err != nil {
				return nil, err
			}
			fn := c.Arg(1)
			b.listeners[event] = slices.DeleteFunc(b.listeners[event], func(l *runtime.Function) bool {
				return l.AsValue().Equal(fn)
			})
			return nil, nil
		},
		methodRemoveAllListeners: func(c *runtime.Call) (any, error) {
			if c.Arg(0).IsUndefined() {
				clear(b.listeners)
				return nil, nil
			}
			event, err := h.event(c)
			if err != nil {
				return nil, err
			}
			delete(b.listeners, event)
			return nil, nil
		},
		methodListenerCount: func(c *runtime.Call) (any, error) {
			event, err := h.event(c)
			if err != nil {
				return nil, err
			}
			return len(b.listeners[event]), nil
		},
	}

	flags := runtime.PropertyFlags{Writable: true, Configurable: true}
	for _, name := range listenerMethods {
		f := rt.CreateSyncFunction(name, methods[name])
		if err := obj.DefineProperty(name, f, flags); err != nil {
			return errors.Registration(errors.PhaseModule, h.def.Name, name, err)
		}
	}
	return nil
}

// event reads and checks the event name passed as the first argument.
func (h *Holder) event(c *runtime.Call) (string, error) {
	if !c.Arg(0).IsString() {
		return "", errors.WrongKind(runtime.KindString.String(), c.Arg(0).Kind().String())
	}
	name := c.Arg(0).AsString()
	if !h.def.hasEvent(name) {
		return "", errors.NotFound(errors.PhaseModule, "event", h.def.Name+"."+name)
	}
	return name, nil
}

// Emit delivers event to the listeners of every runtime the module is
// installed in. It may be called from any goroutine; listeners run later on
// each engine goroutine. Payload values are converted like host function
// results and must not be handles of another runtime.
func (h *Holder) Emit(event string, payload ...any) error {
	if !h.def.hasEvent(event) {
		return errors.NotFound(errors.PhaseModule, "event", h.def.Name+"."+event)
	}

	h.mu.Lock()
	bindings := slices.Clone(h.bindings)
	h.mu.Unlock()

	for _, b := range bindings {
		rt := b.rt.Value()
		if rt == nil || !rt.Alive() {
			h.unbind(b)
			continue
		}
		err := rt.Schedule(scheduler.PriorityNormal, func(rt *runtime.Runtime) {
			h.dispatch(b, event, payload)
		})
		if err != nil {
			h.unbind(b)
		}
	}
	return nil
}

func (h *Holder) dispatch(b *binding, event string, payload []any) {
	for _, l := range slices.Clone(b.listeners[event]) {
		if _, err := l.Call(nil, payload...); err != nil {
			Logger().Warn("event listener failed",
				zap.String("module", h.def.Name),
				zap.String("event", event),
				zap.Error(err))
		}
	}
}

func (h *Holder) unbind(b *binding) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bindings = slices.DeleteFunc(h.bindings, func(x *binding) bool { return x == b })
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
