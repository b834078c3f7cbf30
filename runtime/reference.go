package runtime

import (
	"sync"

	jsruntime "github.com/wippyai/js-runtime"
	"github.com/wippyai/js-runtime/errors"
)

// Reference is a single-owner slot for a handle. Take moves the handle out
// and leaves the slot empty; a second Take panics. Replacing or releasing a
// held handle releases it if it implements jsruntime.Releaser.
//
// A Reference is safe for concurrent use.
type Reference[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
}

// NewReference returns a Reference holding v.
func NewReference[T any](v T) *Reference[T] {
	return &Reference[T]{value: v, full: true}
}

// Reset stores v, releasing the previous handle.
func (r *Reference[T]) Reset(v T) {
	r.mu.Lock()
	old, had := r.value, r.full
	r.value, r.full = v, true
	r.mu.Unlock()

	if had {
		release(old)
	}
}

// Take moves the handle out. It panics with errors.ErrEmptyReference if
// the slot is empty.
func (r *Reference[T]) Take() T {
	v, ok := r.TryTake()
	if !ok {
		panic(errors.EmptyReference())
	}
	return v
}

// TryTake moves the handle out if there is one.
func (r *Reference[T]) TryTake() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.value, r.full
	var zero T
	r.value, r.full = zero, false
	return v, ok
}

// Release empties the slot and releases the handle it held.
func (r *Reference[T]) Release() {
	if v, ok := r.TryTake(); ok {
		release(v)
	}
}

// IsEmpty reports whether the slot is empty.
func (r *Reference[T]) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.full
}

// AsValue takes the handle and converts it to a value handle. An empty
// slot, or a T that is neither a handle nor a bool or number, yields
// undefined.
func (r *Reference[T]) AsValue() *Value {
	v, ok := r.TryTake()
	if !ok {
		return Undefined()
	}
	switch h := any(v).(type) {
	case *Value:
		return h
	case interface{ AsValue() *Value }:
		return h.AsValue()
	case bool:
		return Bool(h)
	case int:
		return Int(int64(h))
	case int64:
		return Int(h)
	case float64:
		return Number(h)
	}
	release(v)
	return Undefined()
}

func release[T any](v T) {
	if rel, ok := any(v).(jsruntime.Releaser); ok {
		rel.Release()
	}
}
