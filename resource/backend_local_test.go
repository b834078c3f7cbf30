package resource

import (
	"sync"
	"testing"
)

func TestLocalBackend_CreateGet(t *testing.T) {
	b := NewLocalBackend()

	h1, err := b.Create(TypeFunction, "a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h2, err := b.Create(TypeHostObject, "b")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h1 == h2 {
		t.Fatal("handles must be unique")
	}

	if v, ok := b.Get(h1); !ok || v != "a" {
		t.Fatalf("Get(h1) = %v, %v", v, ok)
	}
	if id, ok := b.TypeID(h2); !ok || id != TypeHostObject {
		t.Fatalf("TypeID(h2) = %v, %v", id, ok)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestLocalBackend_InvalidHandles(t *testing.T) {
	b := NewLocalBackend()

	if _, ok := b.Get(0); ok {
		t.Error("handle 0 must be invalid")
	}
	if _, ok := b.Get(makeHandle(42, 1)); ok {
		t.Error("out of range handle must be invalid")
	}
	if _, ok := b.Drop(0); ok {
		t.Error("Drop(0) must fail")
	}
}

func TestLocalBackend_SlotReuse(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(TypeFunction, "a")
	if _, ok := b.Drop(h1); !ok {
		t.Fatal("first Drop failed")
	}
	if _, ok := b.Drop(h1); ok {
		t.Fatal("second Drop must fail")
	}

	h2, _ := b.Create(TypeFunction, "b")
	if h2.slot() != h1.slot() {
		t.Fatalf("expected slot reuse, got %d and %d", h1.slot(), h2.slot())
	}
	if h2.generation() == h1.generation() {
		t.Fatal("reused slot must bump generation")
	}
	if _, ok := b.Get(h1); ok {
		t.Fatal("stale handle resolved")
	}
}

func TestLocalBackend_GenerationWrap(t *testing.T) {
	b := NewLocalBackend()

	var h Handle
	for i := 0; i < 600; i++ {
		h, _ = b.Create(TypeFunction, i)
		if h == 0 {
			t.Fatalf("iteration %d produced handle 0", i)
		}
		b.Drop(h)
	}
}

func TestLocalBackend_CloseDrops(t *testing.T) {
	b := NewLocalBackend()
	d := &dropCounter{}
	b.Create(TypeHostObject, d)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if d.drops != 1 {
		t.Fatalf("drops = %d, want 1", d.drops)
	}
	if _, err := b.Create(TypeFunction, "late"); err != ErrClosed {
		t.Fatalf("Create after Close = %v, want ErrClosed", err)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h, err := b.Create(TypeFunction, i)
				if err != nil {
					t.Errorf("Create: %v", err)
					return
				}
				if v, ok := b.Get(h); !ok || v != i {
					t.Errorf("Get = %v, %v", v, ok)
					return
				}
				b.Drop(h)
			}
		}()
	}
	wg.Wait()

	if b.Len() != 0 {
		t.Fatalf("Len() = %d after concurrent churn", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend()
	for i := 0; i < 3; i++ {
		b.Create(TypeClass, i)
	}

	seen := 0
	b.Each(func(h Handle, id TypeID, v any) bool {
		if id != TypeClass {
			t.Errorf("TypeID = %v", id)
		}
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Fatalf("Each visited %d entries, want early stop at 2", seen)
	}
}
