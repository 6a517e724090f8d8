// Package wasmruntime holds the sentinel trap errors the interpreter raises.
// These are the only error strings observable by a caller inspecting a
// failed call: module-internal bugs are reported with panic(fmt.Errorf("BUG: ...")).
package wasmruntime

import "errors"

var (
	// ErrRuntimeUnreachable is the error raised by the "unreachable" instruction.
	ErrRuntimeUnreachable = errors.New("unreachable")
	// ErrRuntimeOutOfBoundsMemoryAccess is raised when a memory load/store's
	// effective address plus access width exceeds the current memory size.
	ErrRuntimeOutOfBoundsMemoryAccess = errors.New("out of bounds memory access")
	// ErrRuntimeUnalignedAtomic is raised when an atomic access's effective
	// address is not a multiple of the access width.
	ErrRuntimeUnalignedAtomic = errors.New("unaligned atomic")
	// ErrRuntimeIntegerOverflow is raised by INT_MIN/-1 division and by
	// non-saturating float-to-int truncation whose source is out of range.
	ErrRuntimeIntegerOverflow = errors.New("integer overflow")
	// ErrRuntimeIntegerDivideByZero is raised by div/rem with a zero divisor.
	ErrRuntimeIntegerDivideByZero = errors.New("integer divide by zero")
	// ErrRuntimeInvalidConversionToInteger is raised by non-saturating
	// float-to-int truncation of NaN.
	ErrRuntimeInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrRuntimeUndefinedElement is raised when a call_indirect or
	// return_call_indirect index is out of bounds for the table.
	ErrRuntimeUndefinedElement = errors.New("undefined element")
	// ErrRuntimeUninitializedElement is raised when call_indirect resolves a
	// valid but null table slot.
	ErrRuntimeUninitializedElement = errors.New("uninitialized element")
	// ErrRuntimeIndirectCallTypeMismatch is raised when the callee's type
	// does not match the call_indirect immediate's declared type.
	ErrRuntimeIndirectCallTypeMismatch = errors.New("indirect call type mismatch")
	// ErrRuntimeUnknownFunction covers function-table resolution failures
	// that are neither of the above (e.g. a dropped element segment).
	ErrRuntimeUnknownFunction = errors.New("unknown function")
	// ErrRuntimeInvalidTableAccess is raised by table.get/set/fill/copy/grow
	// out-of-bounds accesses.
	ErrRuntimeInvalidTableAccess = errors.New("out of bounds table access")
	// ErrRuntimeCallStackOverflow is raised by the frame allocator (§4.A) when
	// a call or tail call would exceed the configured wasm stack depth.
	ErrRuntimeCallStackOverflow = errors.New("wasm operand stack overflow")
	// ErrRuntimeNullStructReference is raised by struct.get/set on a null
	// structref.
	ErrRuntimeNullStructReference = errors.New("null structure reference")
	// ErrRuntimeNullArrayReference is raised by array.get/set/len on a null
	// arrayref.
	ErrRuntimeNullArrayReference = errors.New("null array reference")
	// ErrRuntimeNullI31Reference is raised by i31.get on a null i31ref.
	ErrRuntimeNullI31Reference = errors.New("null i31 reference")
	// ErrRuntimeNullFunctionReference is raised by call_ref/return_call_ref on
	// a null funcref.
	ErrRuntimeNullFunctionReference = errors.New("null function reference")
	// ErrRuntimeNullReference is the generic null-reference trap for ref
	// operations not covered by a more specific message above.
	ErrRuntimeNullReference = errors.New("null reference")
	// ErrRuntimeCastFailure is raised by ref.cast / br_on_cast when the
	// dynamic type does not satisfy the target type.
	ErrRuntimeCastFailure = errors.New("cast failure")
	// ErrRuntimeAuxStackOverflow/Underflow guard the auxiliary stack used for
	// stack-switching style host interactions (e.g. exception unwinding
	// bookkeeping); kept distinct from the operand-stack overflow trap.
	ErrRuntimeAuxStackOverflow  = errors.New("wasm auxiliary stack overflow")
	ErrRuntimeAuxStackUnderflow = errors.New("wasm auxiliary stack underflow")
	// ErrRuntimeUncaughtWasmException is raised when an exception unwinds
	// past the entry frame without being caught by any try/catch.
	ErrRuntimeUncaughtWasmException = errors.New("uncaught wasm exception")
	// ErrRuntimeUnsupportedOpcode is raised when the interpreter meets an
	// operation kind it has no case for. Instructions this module does not
	// implement (SIMD, and unknown 0xFB/0xFC/0xFE sub-opcodes) are lowered
	// to OperationUnreachable instead and trap with ErrRuntimeUnreachable.
	ErrRuntimeUnsupportedOpcode = errors.New("unsupported opcode")
)
