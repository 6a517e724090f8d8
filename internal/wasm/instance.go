package wasm

import (
	"context"
	"encoding/binary"
	"reflect"
	"sync"

	"github.com/tetratelabs/wazero-interp-core/api"
	"github.com/tetratelabs/wazero-interp-core/experimental"
)

// FunctionKind identifies whether a FunctionInstance is backed by decoded
// wasm bytecode or by a host-implemented Go function.
type FunctionKind byte

const (
	FunctionKindWasm FunctionKind = iota
	FunctionKindGoModule
	FunctionKindGoNoContext
	FunctionKindGo
)

// FunctionInstance is a function exported or imported by a module instance:
// the runtime counterpart of a Code entry, bound to the ModuleInstance that
// owns its memory, tables, and globals.
type FunctionInstance struct {
	Kind FunctionKind
	Type *FunctionType
	// Idx is this function's position in the defining ModuleInstance's
	// combined (imports-first) function index namespace.
	Idx Index
	// Module is the module instance this function is defined in — not
	// necessarily the module instance the caller is invoking through, for
	// an imported function.
	Module *ModuleInstance
	// GoFunc is set for a host function and reflect-invoked directly by
	// the interpreter's call path.
	GoFunc *reflect.Value
	// DebugName identifies this function in stack traces; see
	// FunctionDefinition.DebugName.
	DebugName string
	// FunctionListener, if non-nil, is notified before and after every
	// call of this function.
	FunctionListener experimental.FunctionListener
}

func (f *FunctionInstance) ParamTypes() []ValueType  { return f.Type.Params }
func (f *FunctionInstance) ResultTypes() []ValueType { return f.Type.Results }

// GlobalInstance is a global variable's current value, shared by every
// module instance that imports it.
type GlobalInstance struct {
	Type *GlobalType
	// Val holds the low 64 bits of the value (the entire value, except for
	// the SIMD proposal's v128 globals).
	Val uint64
	// ValHi holds the high 64 bits of a v128 global's value.
	ValHi uint64
}

// GlobalInstanceNullFuncRefValue is the sentinel Val a funcref-typed global
// holds before InitializeFuncrefGlobals lowers it to an engine-specific
// opaque pointer (or to 0, meaning ref.null).
const GlobalInstanceNullFuncRefValue = -1

// RefTypeFuncref identifies an element segment or table as holding funcref
// values, as opposed to externref.
const RefTypeFuncref = ValueTypeFuncref

// TableInstance is a table's current contents: a slice of opaque references
// (null is the zero Reference), resizable up to Max.
type TableInstance struct {
	References []Reference
	Min        uint32
	Max        *uint32
	Type       ValueType
}

// Grow appends delta null references (or the given initial reference) to
// the table, returning the table's previous length, or -1 if that would
// exceed Max.
func (t *TableInstance) Grow(ctx context.Context, delta uint32, initialRef uintptr) (previousLen uint32) {
	current := uint32(len(t.References))
	if delta == 0 {
		return current
	}
	next := current + delta
	if t.Max != nil && next > *t.Max {
		return 0xffffffff
	}
	grown := make([]Reference, next)
	copy(grown, t.References)
	for i := current; i < next; i++ {
		grown[i] = initialRef
	}
	t.References = grown
	return current
}

// TableInitEntry describes one element segment's worth of table
// initialization applied at instantiation time.
type TableInitEntry struct {
	TableIndex Index
	Offset     uint32
	FunctionIndexes []*Index
}

// ElementInstance is a resolved element segment: the concrete references it
// was declared with (function indexes lowered to engine-specific opaque
// pointers by ModuleEngine.CreateFuncElementInstance).
type ElementInstance struct {
	References []Reference
	Type       ValueType
}

// ErrElementOffsetOutOfBounds is returned (not panicked, since it can occur
// before any code runs) when an active element or data segment's constant
// offset expression places it outside its target table or memory.
var ErrElementOffsetOutOfBounds = errOutOfBoundsElementOffset{}

type errOutOfBoundsElementOffset struct{}

func (errOutOfBoundsElementOffset) Error() string {
	return "element offset is out of bounds"
}

const memoryPageSize = 65536

// MemoryInstance is a linear memory's current contents, grown in
// memoryPageSize units up to Max. Bounds checks re-read len(Buffer) on
// every access rather than caching a size, so growth from a concurrent
// goroutine (the threads proposal's shared memory) is always visible.
type MemoryInstance struct {
	Buffer []byte
	Min    uint32
	Max    uint32
	Shared bool
	mux    sync.Mutex
	// cond backs memory.atomic.wait32/64 and memory.atomic.notify; created
	// lazily since most memories never use the threads proposal.
	cond *sync.Cond
}

// PageSize returns the current size of the memory in memoryPageSize units.
func (m *MemoryInstance) PageSize(ctx context.Context) uint32 {
	return uint32(len(m.Buffer) / memoryPageSize)
}

// Grow increases the memory by delta pages, returning the previous page
// count, or false if that would exceed Max.
func (m *MemoryInstance) Grow(ctx context.Context, delta uint32) (previousPages uint32, ok bool) {
	if m.Shared {
		m.mux.Lock()
		defer m.mux.Unlock()
	}
	current := uint32(len(m.Buffer) / memoryPageSize)
	if delta == 0 {
		return current, true
	}
	next := current + delta
	if next > m.Max {
		return 0, false
	}
	grown := make([]byte, next*memoryPageSize)
	copy(grown, m.Buffer)
	m.Buffer = grown
	return current, true
}

func (m *MemoryInstance) hasSize(offset uint64, size uint64) bool {
	return offset+size <= uint64(len(m.Buffer))
}

func (m *MemoryInstance) Read(ctx context.Context, offset, size uint32) ([]byte, bool) {
	if !m.hasSize(uint64(offset), uint64(size)) {
		return nil, false
	}
	return m.Buffer[offset : offset+size], true
}

func (m *MemoryInstance) ReadByte(ctx context.Context, offset uint32) (byte, bool) {
	if !m.hasSize(uint64(offset), 1) {
		return 0, false
	}
	return m.Buffer[offset], true
}

func (m *MemoryInstance) ReadUint16Le(ctx context.Context, offset uint32) (uint16, bool) {
	if !m.hasSize(uint64(offset), 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.Buffer[offset:]), true
}

func (m *MemoryInstance) ReadUint32Le(ctx context.Context, offset uint32) (uint32, bool) {
	if !m.hasSize(uint64(offset), 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset:]), true
}

func (m *MemoryInstance) ReadUint64Le(ctx context.Context, offset uint32) (uint64, bool) {
	if !m.hasSize(uint64(offset), 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset:]), true
}

func (m *MemoryInstance) WriteByte(ctx context.Context, offset uint32, v byte) bool {
	if !m.hasSize(uint64(offset), 1) {
		return false
	}
	m.Buffer[offset] = v
	return true
}

func (m *MemoryInstance) WriteUint16Le(ctx context.Context, offset uint32, v uint16) bool {
	if !m.hasSize(uint64(offset), 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.Buffer[offset:], v)
	return true
}

func (m *MemoryInstance) WriteUint32Le(ctx context.Context, offset uint32, v uint32) bool {
	if !m.hasSize(uint64(offset), 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

func (m *MemoryInstance) WriteUint64Le(ctx context.Context, offset uint32, v uint64) bool {
	if !m.hasSize(uint64(offset), 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

// ModuleInstance is a Module bound to its runtime state: resolved imports,
// allocated memory/table/global storage, and the Engine that will execute
// its functions.
type ModuleInstance struct {
	Name             string
	Memory           *MemoryInstance
	Globals          []*GlobalInstance
	Tables           []*TableInstance
	Engine           ModuleEngine
	TypeIDs          []FunctionTypeID
	DataInstances    [][]byte
	ElementInstances []ElementInstance
	Module           *Module
	Closed           bool
	// TagInstances binds each of Module's declared/imported tags to this
	// instance, indexed the same way as Globals/Tables; populated the same
	// way those are during instantiation.
	TagInstances []*TagInstance
	// GCHeap owns every struct/array/string allocated by this instance's
	// execution of the GC and stringref proposals.
	GCHeap *GCHeap
}

// CallContext carries the per-Call context a host function or the
// ErrorBuilder's trap reporting needs: which module memory is in scope
// (the caller's, for an imported function) and whether the module has
// since been closed.
type CallContext struct {
	ctx    context.Context
	module *ModuleInstance
	memory *MemoryInstance
}

// NewCallContext returns a CallContext scoped to the given module instance.
func NewCallContext(ctx context.Context, module *ModuleInstance) *CallContext {
	mem := module.Memory
	return &CallContext{ctx: ctx, module: module, memory: mem}
}

// WithMemory returns a shallow copy of c using mem instead of the defining
// module's memory — used when calling a function imported from another
// module, so host-function memory access resolves against the caller.
func (c *CallContext) WithMemory(mem *MemoryInstance) *CallContext {
	if mem == nil {
		return c
	}
	cp := *c
	cp.memory = mem
	return &cp
}

// Memory returns the memory instance in scope for this call.
func (c *CallContext) Memory() api.Memory { return c.memory }

// Module returns the defining module instance.
func (c *CallContext) Module() *ModuleInstance { return c.module }

// Context returns the context.Context this CallContext was created with.
func (c *CallContext) Context() context.Context { return c.ctx }

// FailIfClosed returns an error if the module was closed during the call in
// progress, so a caller blocked on a long-running host call observes the
// close as an error rather than silently returning garbage.
func (c *CallContext) FailIfClosed() error {
	if c.module.Closed {
		return errModuleClosed{name: c.module.Name}
	}
	return nil
}

type errModuleClosed struct{ name string }

func (e errModuleClosed) Error() string { return "module " + e.name + " closed" }

// Engine compiles and caches Module code, producing a ModuleEngine for each
// instantiation. Implemented by this package's consumer (the interpreter or
// any other compliant engine).
type Engine interface {
	CompileModule(ctx context.Context, module *Module) error
	CompiledModuleCount() uint32
	DeleteCompiledModule(module *Module)
	NewModuleEngine(name string, module *Module, importedFunctions, moduleFunctions []*FunctionInstance, tables []*TableInstance, tableInits []TableInitEntry) (ModuleEngine, error)
}

// ModuleEngine executes the compiled functions of one module instantiation.
type ModuleEngine interface {
	Name() string
	Call(ctx context.Context, m *CallContext, f *FunctionInstance, params ...uint64) (results []uint64, err error)
	CreateFuncElementInstance(indexes []*Index) *ElementInstance
	InitializeFuncrefGlobals(globals []*GlobalInstance)
}

// PopValues pops count values off the stack (via pop) into a slice ordered
// oldest-pushed-first, the shape moduleEngine.Call's wasm-function results
// and CallGoFunc's host-function params both need.
func PopValues(count int, pop func() uint64) []uint64 {
	if count == 0 {
		return nil
	}
	results := make([]uint64, count)
	for i := count - 1; i >= 0; i-- {
		results[i] = pop()
	}
	return results
}

// PopGoFuncParams pops a host function's parameters off the stack.
func PopGoFuncParams(f *FunctionInstance, pop func() uint64) []uint64 {
	return PopValues(len(f.Type.Params), pop)
}

// CallGoFunc invokes a host function's reflect.Value with params already
// decoded from the stack, returning its results re-encoded as uint64s.
func CallGoFunc(ctx context.Context, callCtx *CallContext, f *FunctionInstance, params []uint64) []uint64 {
	fn := f.GoFunc
	funcType := fn.Type()
	in := make([]reflect.Value, 0, funcType.NumIn())
	i := 0
	if funcType.NumIn() > 0 && funcType.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem() {
		in = append(in, reflect.ValueOf(ctx))
		i++
	} else if funcType.NumIn() > 0 && funcType.In(0).Kind() == reflect.Interface &&
		funcType.In(0).Implements(reflect.TypeOf((*api.Module)(nil)).Elem()) {
		in = append(in, reflect.ValueOf(callCtx))
		i++
	}
	for pi := 0; i < funcType.NumIn(); i, pi = i+1, pi+1 {
		in = append(in, decodeGoParam(funcType.In(i), params[pi]))
	}
	out := fn.Call(in)
	results := make([]uint64, len(out))
	for idx, o := range out {
		results[idx] = encodeGoResult(o)
	}
	return results
}

func decodeGoParam(t reflect.Type, v uint64) reflect.Value {
	switch t.Kind() {
	case reflect.Uint32:
		return reflect.ValueOf(uint32(v))
	case reflect.Int32:
		return reflect.ValueOf(int32(v))
	case reflect.Uint64:
		return reflect.ValueOf(v)
	case reflect.Int64:
		return reflect.ValueOf(int64(v))
	case reflect.Float32:
		return reflect.ValueOf(api.DecodeF32(v))
	case reflect.Float64:
		return reflect.ValueOf(api.DecodeF64(v))
	case reflect.Uintptr:
		return reflect.ValueOf(uintptr(v))
	default:
		return reflect.New(t).Elem()
	}
}

func encodeGoResult(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Uint32:
		return uint64(uint32(v.Uint()))
	case reflect.Int32:
		return uint64(uint32(v.Int()))
	case reflect.Uint64:
		return v.Uint()
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Float32:
		return api.EncodeF32(float32(v.Float()))
	case reflect.Float64:
		return api.EncodeF64(v.Float())
	case reflect.Uintptr:
		return uint64(v.Uint())
	default:
		return 0
	}
}
