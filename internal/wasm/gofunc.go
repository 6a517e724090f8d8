package wasm

import "reflect"

// MustParseGoReflectFuncCode wraps a Go function as a Code whose GoFunc the
// interpreter invokes directly via reflection instead of lowering a wasm
// function body (see internal/wazeroir). Panics if fn is not a func value.
func MustParseGoReflectFuncCode(fn interface{}) Code {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic("wasm: MustParseGoReflectFuncCode requires a function value")
	}
	return Code{GoFunc: &v}
}
