package wasm

import "github.com/tetratelabs/wazero-interp-core/api"

// ValueType is an alias of api.ValueType so this package's many consumers
// don't all need to import api just to write a type check.
type ValueType = api.ValueType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
)

const (
	ValueTypeI32       = api.ValueTypeI32
	ValueTypeI64       = api.ValueTypeI64
	ValueTypeF32       = api.ValueTypeF32
	ValueTypeF64       = api.ValueTypeF64
	ValueTypeExternref = api.ValueTypeExternref
	// ValueTypeFuncref is a reference to a function, the element type of the
	// implicitly-declared table that call_indirect addresses.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeV128 identifies the SIMD proposal's 128-bit vector type.
	// Accepted so module validation for SIMD-tagged modules still
	// typechecks; no v128 instruction is implemented, see Features.SIMD.
	ValueTypeV128 ValueType = 0x7b
)

// Index is a position in one of a module's many index namespaces (type,
// function, table, memory, global, element, data, tag).
type Index = uint32

// Reference is the runtime representation of a funcref or externref value:
// either zero (null) or an opaque, engine-specific non-zero pointer.
type Reference = uintptr

// FunctionType is a function signature, e.g. (param i32 i64) (result i32).
//
// ParamNumInUint64 and ResultNumInUint64 cache len(Params) and len(Results)
// since every value on the interpreter's operand stack occupies one uint64
// slot regardless of wasm type (spec.md Component B).
type FunctionType struct {
	Params, Results                   []ValueType
	ParamNumInUint64, ResultNumInUint64 int
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global is a global variable's declaration: its type and, for a module-
// defined (non-imported) global, its constant initializer expression.
type Global struct {
	Type *GlobalType
	Init ConstantExpression
}

// ConstantExpression is a constant initializer: a single const or
// global.get instruction, per the core spec's restriction on init exprs.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// Memory is a memory's limits, in 64KiB pages. Only one memory per module
// is supported; see SPEC_FULL.md Scope Decisions on the multi-memory
// proposal.
type Memory struct {
	Min, Max     uint32
	IsMaxEncoded bool
	// IsShared marks a memory importable/growable across agents per the
	// threads proposal (spec.md Component J); shared memories never shrink
	// and their Grow is compare-and-swap-safe.
	IsShared bool
}

// TableType describes a table's element type and limits.
type TableType struct {
	ElemType ValueType
	Min      uint32
	Max      *uint32
}

// Table is an alias retained for call sites that historically referred to
// the table declaration by this name; equivalent to TableType.
type Table = TableType

// Export associates a name with an item in one of the module's index
// namespaces.
type Export struct {
	Type  api.ExternType
	Name  string
	Index Index
}

// Import describes one import, resolved by (Module, Name) against the
// Namespace at instantiation time.
type Import struct {
	Type         api.ExternType
	Module, Name string

	DescFunc Index
	DescTable *TableType
	DescMem   *Memory
	DescGlobal *GlobalType
}

// ElementSegment initializes a range of a table with function references,
// either actively at instantiation or passively via table.init.
type ElementSegment struct {
	OffsetExpr    ConstantExpression
	TableIndex    Index
	Type          ValueType
	Init          []*Index // nil entries are `ref.null`
	Mode          ElementMode
}

// ElementMode classifies an element segment per the bulk-memory proposal.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// DataSegment initializes a range of linear memory, either actively at
// instantiation or passively via memory.init.
type DataSegment struct {
	OffsetExpr ConstantExpression
	Init       []byte
	IsPassive  bool
}

// NameMap associates indices in one namespace with debug names, as decoded
// from the custom "name" section.
type NameMap []NameAssoc

// NameAssoc is one Index/Name pair within a NameMap.
type NameAssoc struct {
	Index Index
	Name  string
}

// IndirectNameMap associates an outer index (e.g. a function) with its own
// NameMap of inner indices (e.g. that function's locals).
type IndirectNameMap []struct {
	Index   Index
	NameMap NameMap
}

// NameSection holds the decoded contents of the custom "name" section.
type NameSection struct {
	ModuleName    string
	FunctionNames NameMap
	LocalNames    IndirectNameMap
	ResultNames   IndirectNameMap
}
