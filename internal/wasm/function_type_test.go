package wasm

// Shared FunctionType fixtures used across this package's tests.
var (
	v_v            = FunctionType{}
	i32_i32        = FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	f64i32_v128i64 = FunctionType{
		Params:  []ValueType{ValueTypeF64, ValueTypeI32},
		Results: []ValueType{ValueTypeV128, ValueTypeI64},
	}
	f64f32_i64 = FunctionType{
		Params:  []ValueType{ValueTypeF64, ValueTypeF32},
		Results: []ValueType{ValueTypeI64},
	}
)
