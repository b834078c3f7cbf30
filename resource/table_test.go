package resource

import (
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() {
	d.drops++
}

func TestContextTable_Basic(t *testing.T) {
	table := NewTable()

	h := table.Insert(TypeFunction, "add")
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "add" {
		t.Fatalf("Expected 'add', got %v", val)
	}

	if _, ok = table.GetTyped(h, TypeFunction); !ok {
		t.Fatal("GetTyped with correct type failed")
	}
	if _, ok = table.GetTyped(h, TypeHostObject); ok {
		t.Fatal("GetTyped with wrong type should fail")
	}

	val, ok = table.Remove(h)
	if !ok {
		t.Fatal("Remove failed")
	}
	if val != "add" {
		t.Fatalf("Expected 'add', got %v", val)
	}

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestContextTable_DropOnce(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}

	h := table.Insert(TypeHostObject, d)
	table.Remove(h)
	table.Remove(h)
	table.Clear()

	if d.drops != 1 {
		t.Fatalf("Drop called %d times, want 1", d.drops)
	}
}

func TestContextTable_StaleHandle(t *testing.T) {
	table := NewTable()

	first := table.Insert(TypeFunction, "first")
	table.Remove(first)

	second := table.Insert(TypeFunction, "second")
	if second == first {
		t.Fatal("reused slot must get a new handle")
	}

	// A late removal of the first handle must not touch the second context.
	if _, ok := table.Remove(first); ok {
		t.Fatal("stale handle removed a live context")
	}
	if v, ok := table.Get(second); !ok || v != "second" {
		t.Fatalf("second context lost: %v %v", v, ok)
	}
}

func TestContextTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h := table.Insert(TypeClass, "Point")
	table.Remove(h)

	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].TypeID != TypeClass {
		t.Errorf("first event = %+v", obs.events[0])
	}
	if obs.events[1].Type != EventDropped || obs.events[1].Handle != h {
		t.Errorf("second event = %+v", obs.events[1])
	}

	table.Unsubscribe(obs)
	table.Insert(TypeClass, "Rect")
	if len(obs.events) != 2 {
		t.Fatal("Unsubscribed observer still notified")
	}
}

func TestContextTable_Clear(t *testing.T) {
	table := NewTable()
	counters := make([]*dropCounter, 5)
	for i := range counters {
		counters[i] = &dropCounter{}
		table.Insert(TypeFunction, counters[i])
	}

	table.Clear()

	if table.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", table.Len())
	}
	for i, c := range counters {
		if c.drops != 1 {
			t.Errorf("counter %d dropped %d times", i, c.drops)
		}
	}
}

func TestContextTable_Close(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	table.Insert(TypeHostObject, d)

	if err := table.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if d.drops != 1 {
		t.Fatalf("Drop called %d times on Close", d.drops)
	}
	if h := table.Insert(TypeHostObject, "late"); h != 0 {
		t.Fatal("Insert after Close should return 0")
	}
	if err := table.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestTypeID_String(t *testing.T) {
	tests := map[TypeID]string{
		TypeFunction:   "function",
		TypeHostObject: "host-object",
		TypeClass:      "class",
		TypeID(99):     "unknown",
	}
	for id, want := range tests {
		if got := id.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", id, got, want)
		}
	}
}

func TestContextTable_Count(t *testing.T) {
	table := NewTable()
	f1 := table.Insert(TypeFunction, "a")
	table.Insert(TypeFunction, "b")
	table.Insert(TypeClass, "C")

	if n := table.Count(TypeFunction); n != 2 {
		t.Fatalf("Count(function) = %d, want 2", n)
	}
	table.Remove(f1)
	table.Remove(f1)
	if n := table.Count(TypeFunction); n != 1 {
		t.Fatalf("Count(function) = %d after Remove, want 1", n)
	}
	if n := table.Count(TypeHostObject); n != 0 {
		t.Fatalf("Count(host-object) = %d, want 0", n)
	}
	table.Clear()
	if n := table.Count(TypeClass); n != 0 {
		t.Fatalf("Count(class) = %d after Clear", n)
	}
}

func TestLookup(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	h := table.Insert(TypeHostObject, d)

	got, ok := Lookup[*dropCounter](table, h, TypeHostObject)
	if !ok || got != d {
		t.Fatalf("Lookup = %v, %v", got, ok)
	}
	if _, ok := Lookup[*dropCounter](table, h, TypeClass); ok {
		t.Fatal("Lookup with wrong type id should fail")
	}
	if _, ok := Lookup[string](table, h, TypeHostObject); ok {
		t.Fatal("Lookup with wrong Go type should fail")
	}
	table.Remove(h)
	if _, ok := Lookup[*dropCounter](table, h, TypeHostObject); ok {
		t.Fatal("Lookup after Remove should fail")
	}
}

// reentrantObserver removes every context it sees created.
type reentrantObserver struct {
	table   *ContextTable
	dropped int
}

func (o *reentrantObserver) OnResourceEvent(e Event) {
	switch e.Type {
	case EventCreated:
		o.table.Remove(e.Handle)
	case EventDropped:
		o.dropped++
	}
}

func TestContextTable_ObserverMayReenter(t *testing.T) {
	table := NewTable()
	obs := &reentrantObserver{table: table}
	table.Subscribe(obs)

	table.Insert(TypeFunction, "short-lived")

	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
	if obs.dropped != 1 {
		t.Fatalf("dropped = %d, want 1", obs.dropped)
	}
}
