package wasm

import (
	"fmt"
	"strings"
)

// Features is a bitset of optional WebAssembly behaviors enabled for a
// Module. The zero value enables only the WebAssembly 1.0 (20191205) core
// spec; every proposal in spec.md's scope is gated behind a flag here so a
// caller can trade correctness-under-test for feature surface.
//
// Note: Flags begin at 1, not 0, so that Features(0) unambiguously means
// "no optional features" rather than colliding with the first flag.
type Features uint64

const (
	// FeatureMutableGlobal allows globals to be mutable, per the core spec
	// (some very early embedders disabled this).
	FeatureMutableGlobal Features = 1 << iota
	// FeatureSignExtensionOps enables the i32.extend8_s family.
	FeatureSignExtensionOps
	// FeatureMultiValue enables functions and blocks with more than one
	// result, and the nested result-type encoding that implies.
	FeatureMultiValue
	// FeatureNonTrappingFloatToIntConversion enables the _sat truncation
	// instructions (trunc_sat_f32_s, etc.) per spec.md Component E.
	FeatureNonTrappingFloatToIntConversion
	// FeatureReferenceTypes enables funcref/externref, table.get/set/grow/
	// fill, and multiple tables.
	FeatureReferenceTypes
	// FeatureSIMD enables the v128 value type and instruction family. Per
	// spec.md's Non-goals, the interpreter accepts this flag for module
	// validation compatibility, but every v128 instruction is lowered to
	// OperationUnreachable and traps ErrRuntimeUnreachable when reached.
	FeatureSIMD
	// FeatureBulkMemoryOperations enables memory.copy, memory.fill,
	// table.copy, and the passive segment instructions.
	FeatureBulkMemoryOperations
	// FeatureTailCall enables return_call and return_call_indirect.
	FeatureTailCall
	// FeatureExceptionHandling enables try/catch/catch_all/delegate/throw/
	// rethrow and the tag section.
	FeatureExceptionHandling
	// FeatureThreads enables shared memories and the atomic instruction
	// family.
	FeatureThreads
	// FeatureGC enables struct/array/i31 reference types and their
	// instructions.
	FeatureGC
	// FeatureStringref enables the reduced stringref subset described in
	// SPEC_FULL.md Scope Decisions.
	FeatureStringref
)

// Features20220419 matches the features enabled by WASI Preview 1 hosts
// circa 2022, widely treated as a practical "WebAssembly 2.0" baseline.
const Features20220419 = FeatureMutableGlobal |
	FeatureSignExtensionOps |
	FeatureMultiValue |
	FeatureNonTrappingFloatToIntConversion |
	FeatureReferenceTypes |
	FeatureSIMD |
	FeatureBulkMemoryOperations

var featureNames = []struct {
	flag Features
	name string
}{
	{FeatureBulkMemoryOperations, "bulk-memory-operations"},
	{FeatureExceptionHandling, "exception-handling"},
	{FeatureGC, "gc"},
	{FeatureMultiValue, "multi-value"},
	{FeatureMutableGlobal, "mutable-global"},
	{FeatureNonTrappingFloatToIntConversion, "nontrapping-float-to-int-conversion"},
	{FeatureReferenceTypes, "reference-types"},
	{FeatureSignExtensionOps, "sign-extension-ops"},
	{FeatureSIMD, "simd"},
	{FeatureStringref, "stringref"},
	{FeatureTailCall, "tail-call"},
	{FeatureThreads, "threads"},
}

// Get returns true if the given flag (or set of flags) is set.
func (f Features) Get(flag Features) bool {
	return f&flag != 0
}

// Set returns a copy of f with flag set to the given value.
func (f Features) Set(flag Features, val bool) Features {
	if val {
		return f | flag
	}
	return f &^ flag
}

// Require returns an error if any bit in required is unset in f.
func (f Features) Require(required Features) error {
	for _, fn := range featureNames {
		if required.Get(fn.flag) && !f.Get(fn.flag) {
			return fmt.Errorf("feature %q is disabled", fn.name)
		}
	}
	return nil
}

// String renders the set bits, alphabetically sorted and pipe-delimited.
func (f Features) String() string {
	var names []string
	for _, fn := range featureNames {
		if f.Get(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}
