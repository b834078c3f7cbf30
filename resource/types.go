package resource

// Handle is an opaque reference to a context in a table.
// The low 24 bits hold the slot, the high 8 bits a generation counter,
// so a stale handle never resolves to a reused slot.
// Handle 0 is reserved and always invalid.
type Handle uint32

const (
	slotBits = 24
	slotMask = 1<<slotBits - 1
	maxSlots = slotMask
)

func makeHandle(slot uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<slotBits | (slot & slotMask))
}

func (h Handle) slot() uint32 {
	return uint32(h) & slotMask
}

func (h Handle) generation() uint8 {
	return uint8(uint32(h) >> slotBits)
}

// TypeID tags what kind of native context a handle refers to.
type TypeID uint32

const (
	TypeFunction   TypeID = iota + 1 // host function context
	TypeHostObject                   // host object callbacks
	TypeClass                        // class constructor context
)

func (t TypeID) String() string {
	switch t {
	case TypeFunction:
		return "function"
	case TypeHostObject:
		return "host-object"
	case TypeClass:
		return "class"
	default:
		return "unknown"
	}
}

// Event types for context lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a context lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about context lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage for contexts.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(typeID TypeID, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes a value and returns (value, true) the first time only.
	Drop(handle Handle) (any, bool)

	// Close releases all values held by the backend.
	Close() error
}

// Table manages native contexts with type information and observer support.
type Table interface {
	// Insert adds a value and returns its handle.
	Insert(typeID TypeID, value any) Handle

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetTyped retrieves a value only if it matches the expected type.
	GetTyped(handle Handle, typeID TypeID) (any, bool)

	// Remove drops a context and returns (value, true) if found.
	Remove(handle Handle) (any, bool)

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Unsubscribe removes an observer.
	Unsubscribe(Observer)

	// Len returns the number of live contexts.
	Len() int

	// Clear drops all contexts.
	Clear()

	// Close drops all contexts and stops accepting inserts.
	Close() error
}

// Dropper is implemented by context values that release native state.
// Drop is called exactly once, when the context leaves the table.
type Dropper interface {
	Drop()
}
