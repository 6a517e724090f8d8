package wasm

import "sync"

// GCObject is implemented by every heap object the GC and stringref
// proposals allocate (struct.new, array.new, string.new_utf8, ...).
// RTTIndex is compared against ref.test/ref.cast's static TypeIndex
// immediate; it has no meaning beyond that comparison.
type GCObject interface {
	RTTIndex() uint32
}

// GCStruct is a struct.new/struct.new_default instance.
type GCStruct struct {
	TypeIndex uint32
	Fields    []uint64
}

func (s *GCStruct) RTTIndex() uint32 { return s.TypeIndex }

// GCArray is an array.new/array.new_default/array.new_fixed instance.
type GCArray struct {
	TypeIndex uint32
	Elements  []uint64
}

func (a *GCArray) RTTIndex() uint32 { return a.TypeIndex }

// gcStringRTTIndex is the reserved RTTIndex stringref objects report; it
// never collides with a real GC type index since those are validated
// against the module's (non-empty in that case) type section.
const gcStringRTTIndex = ^uint32(0)

// GCString is a string.new_utf8/string.const instance. The stringref
// proposal's WTF-8 encoding is reduced to Go's native (UTF-8) string type,
// so string.new_utf8 rejects input that isn't valid UTF-8 rather than
// repairing it the way full WTF-8 would.
type GCString struct {
	Value string
}

func (s *GCString) RTTIndex() uint32 { return gcStringRTTIndex }

// GCHeap owns every struct/array/string instance a module allocates.
// Objects are plain Go pointers kept alive by the interpreter's operand
// stack, so Go's own collector reclaims them once unreferenced; GCHeap
// exists to give ref.test/ref.cast and future introspection one place to
// enumerate live objects rather than to implement collection itself.
type GCHeap struct {
	mux     sync.Mutex
	objects []GCObject
}

func NewGCHeap() *GCHeap { return &GCHeap{} }

func (h *GCHeap) NewStruct(typeIndex uint32, fields []uint64) *GCStruct {
	s := &GCStruct{TypeIndex: typeIndex, Fields: fields}
	h.track(s)
	return s
}

func (h *GCHeap) NewArray(typeIndex uint32, elements []uint64) *GCArray {
	a := &GCArray{TypeIndex: typeIndex, Elements: elements}
	h.track(a)
	return a
}

func (h *GCHeap) NewString(v string) *GCString {
	s := &GCString{Value: v}
	h.track(s)
	return s
}

func (h *GCHeap) track(o GCObject) {
	h.mux.Lock()
	h.objects = append(h.objects, o)
	h.mux.Unlock()
}

// Len reports how many objects have ever been allocated from this heap.
func (h *GCHeap) Len() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return len(h.objects)
}

// RTTRegistry answers ref.test/ref.cast's "is this object an instance of
// TypeIndex" question. Matching is exact: this runtime doesn't model the
// GC proposal's struct/array subtyping, so casting to a supertype of an
// object's own defined type is rejected rather than accepted.
type RTTRegistry struct{}

func (RTTRegistry) IsInstance(obj GCObject, typeIndex uint32) bool {
	if obj == nil {
		return false
	}
	return obj.RTTIndex() == typeIndex
}
