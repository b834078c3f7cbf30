// Package runtime is the interop layer between Go and the script engine.
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
//
//	v, err := rt.Eval(ctx, "1 + 2", "main.js")
//	fmt.Println(v.AsInt()) // 3
//
// # Values
//
// Value is a handle to a script value with exactly one Kind. The As*
// accessors panic with errors.ErrWrongKind on a mismatch. Object, Function,
// Array and TypedArray are typed views over the same handle. BigInt values
// have their own KindBigInt and answer false to every other predicate,
// IsObject included.
//
// Primitives are runtime-free: they can be created with Undefined, Null,
// Bool, Number and Int, and survive Close. Everything else needs a live
// runtime; using it after Close panics with errors.ErrRuntimeLost.
//
// Reference is a single-owner slot for a handle; Take moves it out.
//
// # Host Functions
//
// CreateSyncFunction and CreateAsyncFunction expose Go closures to script.
// A returned error or a panic is thrown into script as an Error whose code
// property names the failure ("host.native_throw"). An error that wraps a
// script exception rethrows the original value:
//
//	fn := rt.CreateSyncFunction("add", func(c *runtime.Call) (any, error) {
//	    return c.Arg(0).AsFloat() + c.Arg(1).AsFloat(), nil
//	})
//
// Async functions run on their own goroutine and return a promise settled
// with their result.
//
// # Host Objects and Classes
//
// CreateHostObject routes property access to Go callbacks. CreateClass
// builds a constructor whose instances are initialized in Go, optionally
// extending another class.
//
// # Promises
//
// NewDeferred creates a promise settled from Go; settling twice panics
// with errors.ErrDoubleSettlement. WrapPromise and EvalAsync observe a
// script promise and wait for it.
//
// # Thread Safety
//
// Runtime methods taking a context are safe for concurrent use: Eval,
// EvalAsync, Await, Run, Schedule and Close. Everything else must run on
// the engine goroutine. With Config.StrictThreadChecks handle operations
// verify this and panic with errors.ErrWrongThread.
//
// # Resource Management
//
// The native context behind each host function, host object and class is
// stored in a resource table. It is released exactly once: when the engine
// collects the script object, or at Close.
package runtime
