package runtime

import (
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
)

// HostObject holds the callbacks behind an object whose properties live in
// Go. Every callback is optional.
type HostObject struct {
	// Name is used in logs and error paths.
	Name string

	// Get returns the property value and whether it exists. Missing
	// properties fall through to the prototype.
	Get func(name string) (any, bool)

	// Set stores a property. Without Set the object is read-only.
	Set func(name string, value *Value) error

	// Delete removes a property and reports success.
	Delete func(name string) bool

	// PropertyNames lists the own enumerable properties.
	PropertyNames func() []string

	// Dealloc runs exactly once, when the object is collected or the
	// runtime closes, whichever comes first.
	Dealloc func()
}

type hostObjectContext struct {
	h   HostObject
	rt  weak.Pointer[Runtime]
	log *zap.Logger

	dropped bool
}

func (hc *hostObjectContext) Drop() {
	hc.dropped = true
	if hc.h.Dealloc == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			hc.log.Warn("host object dealloc panicked",
				zap.String("object", hc.h.Name),
				zap.Any("panic", p))
		}
	}()
	hc.h.Dealloc()
}

func (hc *hostObjectContext) live(name string) (*Runtime, error) {
	r := hc.rt.Value()
	if r == nil || !r.Alive() || hc.dropped {
		return nil, errors.RuntimeLost(errors.PhaseHost, hc.h.Name+"."+name)
	}
	return r, nil
}

func (hc *hostObjectContext) Get(name string) (goja.Value, error) {
	if hc.h.Get == nil {
		return nil, nil
	}
	r, err := hc.live(name)
	if err != nil {
		return nil, err
	}
	r.depth++
	defer func() { r.depth-- }()

	v, ok := hc.h.Get(name)
	if !ok {
		return nil, nil
	}
	return r.toEngine(v), nil
}

func (hc *hostObjectContext) Set(name string, value goja.Value) (bool, error) {
	if hc.h.Set == nil {
		return false, nil
	}
	r, err := hc.live(name)
	if err != nil {
		return false, err
	}
	r.depth++
	defer func() { r.depth-- }()

	if err := hc.h.Set(name, r.wrap(value)); err != nil {
		return false, hostError(hc.h.Name+"."+name, err)
	}
	return true, nil
}

func (hc *hostObjectContext) Delete(name string) (bool, error) {
	if hc.h.Delete == nil {
		return false, nil
	}
	if _, err := hc.live(name); err != nil {
		return false, err
	}
	return hc.h.Delete(name), nil
}

// Has reports whether Get resolves name. Listed property names are
// checked by the engine before Has is called.
func (hc *hostObjectContext) Has(name string) bool {
	if hc.h.Get == nil || hc.dropped {
		return false
	}
	_, ok := hc.h.Get(name)
	return ok
}

func (hc *hostObjectContext) PropertyNames() []string {
	if hc.h.PropertyNames == nil || hc.dropped {
		return nil
	}
	return hc.h.PropertyNames()
}

// CreateHostObject creates an object whose property reads, writes, deletes
// and enumeration are routed to h.
func (r *Runtime) CreateHostObject(h HostObject) *Object {
	r.enter("create host object")
	if h.Name == "" {
		h.Name = "HostObject"
	}
	hc := &hostObjectContext{h: h, rt: r.self, log: r.log}
	handle := r.contexts.Insert(resource.TypeHostObject, hc)
	if handle == 0 {
		panic(errors.RuntimeLost(errors.PhaseHost, "create host object"))
	}
	obj := r.eng.NewHostObject(h.Name, hc)
	r.track(obj, handle)
	return r.object(obj)
}
