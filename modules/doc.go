// Package modules installs native modules into a runtime's core namespace.
//
// A module is a Definition: a name, constants, sync and async functions and
// optionally a set of events. Definitions are collected in a Registry and
// installed into one or more runtimes:
//
//	reg := modules.NewRegistry()
//	reg.Register(modules.Define("Text").
//	    Constant("version", "1.0").
//	    Function("upper", func(c *runtime.Call) (any, error) {
//	        return strings.ToUpper(c.Arg(0).AsString()), nil
//	    }))
//	reg.Install(ctx, rt)
//	// script: Core.Text.upper("abc")
//
// Constants are read-only. A module that declares events also gets
// addListener, removeListener, removeAllListeners and listenerCount;
// Holder.Emit delivers an event to the listeners of every runtime the
// module is installed in.
//
// # Go hosts
//
// FromHost and Registry.RegisterHost build a Definition from a Go value by
// reflection. Exported methods become functions named in camelCase; a
// leading context.Context parameter is filled in by the runtime and a
// trailing error result is thrown into script. Methods listed by
// AsyncFunctions return promises.
//
// # WebAssembly
//
// Wasm compiles a core WebAssembly binary with wazero and exposes its
// numeric exports as sync functions.
package modules
