// Package resource tracks the native contexts behind host functions, host
// objects and classes exposed to script.
//
// Each context lives in a table slot from the moment it is exposed until the
// engine collects the script object that owns it, or until the runtime is
// torn down. Removal runs the context's Drop exactly once.
//
// # Handle Table
//
//	table := resource.NewTable()
//
//	// Insert a context, get a handle
//	handle := table.Insert(resource.TypeFunction, ctx)
//
//	// Type-checked retrieval
//	value, ok := table.GetTyped(handle, resource.TypeFunction)
//
//	// Called from the finalizer path: drops the context
//	table.Remove(handle)
//
// Handles carry a generation counter. A finalizer that fires late for a
// context that was already removed at teardown never hits a newer context
// that reused the same slot.
//
// # Observers
//
// Observers see every create and drop, which is how tests and diagnostics
// count live contexts:
//
//	table.Subscribe(observer)
//
// # Teardown
//
// Close drops every remaining context and rejects further inserts. The
// runtime calls it after marking itself dead, so a Drop never races with
// script still running on the engine.
package resource
