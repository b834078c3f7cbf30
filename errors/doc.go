// Package errors provides structured error types for the js-runtime library.
//
// Errors are categorized by Phase (which layer raised it) and Kind (error category).
// The Error type carries property paths, Go/JS type names, the script error's
// name/message/stack when one is involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseHost, errors.KindTypeMismatch).
//		Path("Math", "add").
//		GoType("int").
//		JSType("string").
//		Detail("argument 0").
//		Build()
//
// Or use convenience constructors for the common cases:
//
//	err := errors.Teardown(errors.PhaseScheduler, "execute")
//	err := errors.WrongKind("number", "string")
//
// Programming errors (RuntimeLost, WrongKind, DoubleSettlement, EmptyReference,
// Released) are raised as panics carrying an *Error. Everything else is returned.
// Match either with errors.Is against a sentinel such as ErrRuntimeLost.
package errors
