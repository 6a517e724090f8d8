package wasm

import (
	"reflect"
	"sync"
)

// ModuleID is the sha256 hash of a Module's binary encoding, used to key
// the compilation cache (engine.CompileModule).
type ModuleID [32]byte

// Code is the compiled or to-be-compiled body of a single function: either
// the raw, still-to-be-decoded wasm bytecode (Body, LocalTypes) or, for a
// host module, the Go function implementing it (GoFunc).
type Code struct {
	Body       []byte
	LocalTypes []ValueType
	// GoFunc is set instead of Body when this function is implemented by
	// the host. See MustParseGoReflectFuncCode.
	GoFunc *reflect.Value
}

// Module is a decoded WebAssembly binary: every section's contents, plus
// derived indices the engine and runtime need that the binary format
// doesn't give for free.
type Module struct {
	TypeSection     []FunctionType
	ImportSection   []Import
	FunctionSection []Index
	TableSection    []Table
	MemorySection   *Memory
	GlobalSection   []Global
	ExportSection   []Export
	StartSection    *Index
	ElementSection  []ElementSegment
	CodeSection     []Code
	DataSection     []DataSegment
	DataCountSection *uint32

	// TagSection extends the module with the exception-handling proposal's
	// tag declarations (spec.md Component H).
	TagSection []Tag

	// GCTypeSection extends TypeSection with the GC proposal's composite
	// (struct/array) type declarations, indexed the same way ref.cast/
	// struct.new/array.new's TypeIndex immediates refer to them.
	GCTypeSection []CompositeType

	NameSection *NameSection

	// ImportFunctionCount, ImportTableCount, ImportMemoryCount, and
	// ImportGlobalCount cache the number of Imports of each ExternType, so
	// that a function/table/memory/global's position in ImportSection vs
	// its defining section doesn't need to be recomputed from a scan.
	ImportFunctionCount, ImportTableCount, ImportMemoryCount, ImportGlobalCount Index

	// HostFunctionSection is populated instead of CodeSection for a host
	// module, whose functions are implemented in Go (Code.GoFunc) rather
	// than decoded from a wasm binary; the interpreter engine treats these
	// as always-compiled (engine.CompileModule skips wazeroir lowering).
	HostFunctionSection []Code

	// ID identifies the module for the compilation cache; computed once
	// from the binary by the decoder, not by this package.
	ID ModuleID

	// TypeIDs assigns each TypeSection entry a cache-friendly identifier
	// the interpreter compares directly (call_indirect's signature check)
	// instead of deep-equaling FunctionType.
	TypeIDs []FunctionTypeID

	FunctionDefinitionSection []FunctionDefinition
	MemoryDefinitionSection   []MemoryDefinition

	buildFunctionDefinitionsOnce sync.Once
	buildMemoryDefinitionsOnce   sync.Once
}

// FunctionTypeID uniquely identifies a FunctionType within a Namespace,
// assigned once at module registration so call_indirect's runtime type
// check (spec.md Component G, I-CALL) is a single uint32 comparison.
type FunctionTypeID uint32

// Tag is a declared exception tag: its parameter types, matching a thrown
// exception's payload. The exception-handling proposal only allows tags
// shaped like a function type with no results.
type Tag struct {
	Type *FunctionType
}

// CompositeType is a struct or array type declared in GCTypeSection. Exactly
// one of StructFields or IsArray is meaningful, mirroring how the GC
// proposal's binary encoding distinguishes struct, array, and (unsupported
// here) func composite types by a leading form byte.
type CompositeType struct {
	// StructFields holds one entry per field for a struct type, in
	// declaration order; nil for an array type.
	StructFields []FieldType
	// IsArray is true if this entry is an array type, whose single
	// element type is StructFields[0] by convention to avoid a second
	// near-empty slice field.
	IsArray bool
}

// FieldType is a single struct field or array element's declared type and
// mutability.
type FieldType struct {
	ValueType ValueType
	Mutable   bool
}

// gcStructFieldCount reports how many uint64 operand-stack slots
// struct.new/struct.new_default at typeIndex pops (or struct.get/set
// indexes into); used by the interpreter to size field assembly without
// re-deriving it from the raw GC type section on every struct.new.
func (m *Module) gcStructFieldCount(typeIndex uint32) int {
	return len(m.GCTypeSection[typeIndex].StructFields)
}

// IsHostModule is true when this Module's functions are implemented in Go
// rather than decoded from a wasm binary.
func (m *Module) IsHostModule() bool {
	return len(m.HostFunctionSection) > 0
}

// Memory returns the module's declared memory type, or nil.
func (m *Module) Memory() *Memory {
	return m.MemorySection
}

// SectionElementCount mirrors the decoder's per-section item counts; used
// by validation and by size-budget enforcement in the binary decoder
// (outside this package's scope, kept here as the natural home for the
// type).
func (m *Module) SectionElementCount(sectionID SectionID) uint32 {
	switch sectionID {
	case SectionIDType:
		return uint32(len(m.TypeSection))
	case SectionIDImport:
		return uint32(len(m.ImportSection))
	case SectionIDFunction:
		return uint32(len(m.FunctionSection))
	case SectionIDTable:
		return uint32(len(m.TableSection))
	case SectionIDGlobal:
		return uint32(len(m.GlobalSection))
	case SectionIDExport:
		return uint32(len(m.ExportSection))
	case SectionIDElement:
		return uint32(len(m.ElementSection))
	case SectionIDCode:
		return uint32(len(m.CodeSection))
	case SectionIDData:
		return uint32(len(m.DataSection))
	case SectionIDTag:
		return uint32(len(m.TagSection))
	}
	return 0
}

// SectionID identifies a top-level section of the wasm binary format.
type SectionID = byte

const (
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
	SectionIDDataCount
	// SectionIDTag is unofficial pending the exception-handling proposal's
	// final section numbering; wazero and this module agree on 13.
	SectionIDTag
)
