package engine

import (
	"runtime"

	"github.com/dop251/goja"
)

// OnCollect arranges for release to run once obj is garbage collected.
//
// This is the only place native context lifetime follows the collector.
// release must not reference obj, directly or through a closure, or obj
// never becomes unreachable. It runs on the Go runtime's cleanup goroutine,
// so it should only hand work back to the engine goroutine.
func OnCollect(obj *goja.Object, release func()) {
	runtime.AddCleanup(obj, func(fn func()) { fn() }, release)
}
