package runtime

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterStore backs a host object with a map and counts reads of "x".
type counterStore struct {
	mu    sync.Mutex
	props map[string]any
	reads int
}

func (s *counterStore) hostObject(dealloc func()) HostObject {
	return HostObject{
		Name: "Store",
		Get: func(name string) (any, bool) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if name == "x" {
				s.reads++
				return s.reads, true
			}
			v, ok := s.props[name]
			return v, ok
		},
		Set: func(name string, v *Value) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.props[name] = v.Export()
			return nil
		},
		Delete: func(name string) bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.props[name]; !ok {
				return false
			}
			delete(s.props, name)
			return true
		},
		PropertyNames: func() []string {
			s.mu.Lock()
			defer s.mu.Unlock()
			names := make([]string, 0, len(s.props))
			for k := range s.props {
				names = append(names, k)
			}
			sort.Strings(names)
			return names
		},
		Dealloc: dealloc,
	}
}

func installStore(t *testing.T, rt *Runtime, s *counterStore, dealloc func()) {
	t.Helper()
	mustRun(t, rt, func(rt *Runtime) error {
		return rt.Core().Set("store", rt.CreateHostObject(s.hostObject(dealloc)))
	})
}

func TestHostObject_GetterCallsGo(t *testing.T) {
	rt := newRuntime(t)
	s := &counterStore{props: map[string]any{}}
	installStore(t, rt, s, nil)

	v := mustEval(t, rt, "[Core.store.x, Core.store.x].join(',')")
	assert.Equal(t, "1,2", v.AsString())
}

func TestHostObject_SetDeleteKeys(t *testing.T) {
	rt := newRuntime(t)
	s := &counterStore{props: map[string]any{"b": "two"}}
	installStore(t, rt, s, nil)

	mustEval(t, rt, "Core.store.a = 1")
	s.mu.Lock()
	assert.Equal(t, float64(1), s.props["a"])
	s.mu.Unlock()

	v := mustEval(t, rt, "Object.keys(Core.store).join(',')")
	assert.Equal(t, "a,b", v.AsString())

	v = mustEval(t, rt, "[delete Core.store.b, delete Core.store.missing, 'b' in Core.store].join(',')")
	assert.Equal(t, "true,false,false", v.AsString())
}

func TestHostObject_MissingFallsThroughToPrototype(t *testing.T) {
	rt := newRuntime(t)
	s := &counterStore{props: map[string]any{}}
	installStore(t, rt, s, nil)

	v := mustEval(t, rt, "[typeof Core.store.toString, Core.store.nothing === undefined].join(',')")
	assert.Equal(t, "function,true", v.AsString())
}

func TestHostObject_ReadOnlyWithoutSet(t *testing.T) {
	rt := newRuntime(t)
	mustRun(t, rt, func(rt *Runtime) error {
		return rt.Core().Set("frozen", rt.CreateHostObject(HostObject{
			Get: func(name string) (any, bool) {
				if name == "v" {
					return "fixed", true
				}
				return nil, false
			},
		}))
	})

	v := mustEval(t, rt, `
		'use strict';
		let threw = false;
		try { Core.frozen.v = 'changed' } catch (e) { threw = e instanceof TypeError }
		[threw, Core.frozen.v].join(',')
	`)
	assert.Equal(t, "true,fixed", v.AsString())
}

func TestHostObject_FailingPropertyNames(t *testing.T) {
	rt := newRuntime(t)
	mustRun(t, rt, func(rt *Runtime) error {
		return rt.Core().Set("broken", rt.CreateHostObject(HostObject{
			Name: "Broken",
			Get: func(name string) (any, bool) {
				if name == "a" {
					return 1, true
				}
				return nil, false
			},
			PropertyNames: func() []string { panic("names unavailable") },
		}))
	})

	v := mustEval(t, rt, `
		const h = Core.broken;
		let n = 0;
		for (const k in h) n++;
		[Object.keys(h).length, n, 'a' in h, 'z' in h, h.a].join(',')
	`)
	assert.Equal(t, "0,0,true,false,1", v.AsString())
}

func TestHostObject_GoAccess(t *testing.T) {
	rt := newRuntime(t)
	s := &counterStore{props: map[string]any{"name": "cfg"}}

	mustRun(t, rt, func(rt *Runtime) error {
		obj := rt.CreateHostObject(s.hostObject(nil))

		name, err := obj.Get("name")
		require.NoError(t, err)
		assert.Equal(t, "cfg", name.AsString())

		require.NoError(t, obj.Set("port", 8080))
		keys, err := obj.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "port"}, keys)
		return nil
	})
}

func TestHostObject_DeallocOnceAtClose(t *testing.T) {
	rt, err := New(context.Background())
	require.NoError(t, err)

	var deallocs int
	s := &counterStore{props: map[string]any{}}
	installStore(t, rt, s, func() { deallocs++ })
	assert.Equal(t, 1, rt.Contexts())

	require.NoError(t, rt.Close(context.Background()))
	assert.Equal(t, 1, deallocs)

	require.NoError(t, rt.Close(context.Background()))
	assert.Equal(t, 1, deallocs)
}

func TestHostObject_DeallocPanicIsContained(t *testing.T) {
	rt, err := New(context.Background())
	require.NoError(t, err)

	installStore(t, rt, &counterStore{props: map[string]any{}}, func() { panic("dealloc failed") })
	assert.NotPanics(t, func() {
		require.NoError(t, rt.Close(context.Background()))
	})
}
