package resource

import (
	"slices"
	"sync"
)

// ContextTable is the Table a runtime keeps its native contexts in. It
// tracks live contexts per TypeID and notifies observers outside its locks,
// so an observer may call back into the table.
type ContextTable struct {
	backend *LocalBackend

	mu        sync.Mutex
	observers []Observer
	counts    map[TypeID]int
	closed    bool
}

// NewTable creates an empty table.
func NewTable() *ContextTable {
	return &ContextTable{
		backend: NewLocalBackend(),
		counts:  make(map[TypeID]int),
	}
}

// Insert stores value and returns its handle, or 0 once the table is closed
// or full.
func (t *ContextTable) Insert(typeID TypeID, value any) Handle {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}
	handle, err := t.backend.Create(typeID, value)
	if err != nil {
		t.mu.Unlock()
		return 0
	}
	t.counts[typeID]++
	obs := t.observers
	t.mu.Unlock()

	notify(obs, Event{Type: EventCreated, Handle: handle, TypeID: typeID, Value: value})
	return handle
}

func (t *ContextTable) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped returns the value only if it was inserted with typeID.
func (t *ContextTable) GetTyped(handle Handle, typeID TypeID) (any, bool) {
	actual, ok := t.backend.TypeID(handle)
	if !ok || actual != typeID {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Remove drops a context and runs its Dropper. A handle is only ever
// removed once; later calls report false.
func (t *ContextTable) Remove(handle Handle) (any, bool) {
	t.mu.Lock()
	typeID, _ := t.backend.TypeID(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	if t.counts[typeID]--; t.counts[typeID] <= 0 {
		delete(t.counts, typeID)
	}
	obs := t.observers
	t.mu.Unlock()

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	notify(obs, Event{Type: EventDropped, Handle: handle, TypeID: typeID, Value: value})
	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *ContextTable) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Copy on write: notify iterates a snapshot without holding mu.
	t.observers = append(slices.Clip(t.observers), o)
}

// Unsubscribe removes an observer.
func (t *ContextTable) Unsubscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := slices.Index(t.observers, o); i >= 0 {
		t.observers = slices.Delete(slices.Clone(t.observers), i, i+1)
	}
}

func (t *ContextTable) Len() int {
	return t.backend.Len()
}

// Count returns the number of live contexts of one type.
func (t *ContextTable) Count(typeID TypeID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[typeID]
}

// Clear drops every context, notifying observers for each.
func (t *ContextTable) Clear() {
	var handles []Handle
	t.backend.Each(func(h Handle, _ TypeID, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close drops every context and stops accepting inserts. Close is
// idempotent.
func (t *ContextTable) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.Clear()
	return t.backend.Close()
}

func notify(observers []Observer, e Event) {
	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}

// Lookup returns the context behind handle as a T if it was inserted with
// typeID.
func Lookup[T any](t Table, handle Handle, typeID TypeID) (T, bool) {
	var zero T
	v, ok := t.GetTyped(handle, typeID)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
