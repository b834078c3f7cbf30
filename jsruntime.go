package jsruntime

import "context"

// Releaser is implemented by handles that hold engine or native state.
// Release may be called more than once.
type Releaser interface {
	Release()
}

// Closer is implemented by owners of an engine goroutine or a compiled
// module. Close tears down in order and is idempotent.
type Closer interface {
	Close(ctx context.Context) error
}
