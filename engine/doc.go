// Package engine is the seam between the interop layer and goja.
//
// The rest of the module treats the script engine as a black box with a
// small surface: create values, objects and functions, call functions,
// evaluate scripts and define properties. This package is that surface, and
// it is the only place that deals with the two hazards of the boundary:
//
//   - A Go panic or error inside a native callback must become a script
//     exception. NewFunction, NewConstructor and NewHostObject recover every
//     Go panic and throw it as a GoError; script exceptions and interrupts
//     pass through untouched.
//   - Native context lifetime follows the engine's collector. OnCollect
//     attaches a runtime.AddCleanup callback to a script object; the callback
//     hands removal back to the engine goroutine.
//
// # Threading
//
// goja is not goroutine-safe. An Engine must only be used from the engine
// goroutine owned by the scheduler; Interrupt is the one exception.
//
// # Errors
//
// Exceptions leaving the engine are converted to *errors.Error:
//
//	v, err := eng.Eval("boot.js", src)
//	// err is KindScriptEvaluation with Name, Message and Stack set
//
// ThrowValue does the reverse for errors crossing into script.
package engine
