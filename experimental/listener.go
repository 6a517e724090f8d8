// Package experimental holds interfaces whose shape may still change
// between releases. FunctionListener is the interpreter's sole hook into
// this package: a per-call observer attached to a wasm.FunctionInstance,
// invoked around every native call the engine makes.
package experimental

import "context"

// FunctionListener can be bound to a function instance to observe its
// calls and returns, e.g. for tracing or profiling. After is only invoked
// when the call returns normally: a trap panics past it, and listeners are
// not notified of the trap.
type FunctionListener interface {
	// Before is invoked before a function's locals are set up, with the
	// parameters as they will be passed to the function. The returned
	// context replaces ctx for the remainder of the call, including the
	// matching After.
	Before(ctx context.Context, params []uint64) context.Context

	// After is invoked after a function returns normally, with err always
	// nil and results holding the function's results. It is not invoked
	// when the function traps.
	After(ctx context.Context, err error, results []uint64)
}
