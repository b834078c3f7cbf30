// Package jsruntime embeds a JavaScript engine in Go programs and bridges
// values, functions, objects and promises between the two sides.
//
// The script engine (goja) is single-threaded. Every engine operation runs
// on one goroutine owned by a scheduler; other goroutines hand work to it
// and wait on the result.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	jsruntime/           Root package with the shared Releaser and Closer interfaces
//	├── runtime/         Runtime, value handles, host functions, host objects, promises, classes
//	├── scheduler/       Prioritized task queues and the engine goroutine
//	├── engine/          Narrow seam over goja: values, calls, exceptions
//	├── modules/         Named module definitions installed under the Core namespace
//	├── resource/        Generation-tagged table of native contexts
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Create a runtime, expose a function and evaluate script:
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	err = rt.Run(ctx, func(rt *runtime.Runtime) error {
//	    add := rt.CreateSyncFunction("add", func(c *runtime.Call) (any, error) {
//	        return c.Arg(0).AsFloat() + c.Arg(1).AsFloat(), nil
//	    })
//	    return rt.Core().Set("add", add)
//	})
//
//	v, err := rt.Eval(ctx, "Core.add(2, 3)", "main.js")
//	fmt.Println(v.AsInt()) // 5
//
// # Modules
//
// Group functions, constants and events into a module and install it:
//
//	reg := modules.NewRegistry()
//	reg.Register(modules.Define("math").
//	    Constant("PI", math.Pi).
//	    Function("add", add))
//	reg.Install(ctx, rt) // global.Core.math
//
// # Promises
//
// Async host functions run on their own goroutine and return a promise.
// EvalAsync waits for a promise result:
//
//	v, err := rt.EvalAsync(ctx, "Core.fetch('a')", "main.js")
//
// # Thread Safety
//
// Runtime methods that take a context are safe for concurrent use. Value
// handles are not: use them on the engine goroutine, inside Run, Do or a
// host callback. Primitive values (undefined, null, booleans, numbers) are
// carried natively and may be used anywhere.
//
// # Resource Management
//
// Native state behind host functions, host objects and classes lives in a
// table owned by the runtime. It is released once, either when the engine
// collects the script object or when the runtime closes. Close invalidates
// every handle before releasing anything, so late use fails with
// errors.ErrRuntimeLost rather than touching freed state.
package jsruntime
