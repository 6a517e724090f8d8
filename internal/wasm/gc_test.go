package wasm

import (
	"testing"

	"github.com/tetratelabs/wazero-interp-core/internal/testing/hammer"
	"github.com/tetratelabs/wazero-interp-core/internal/testing/require"
)

func TestGCHeap_NewStruct(t *testing.T) {
	h := NewGCHeap()
	s := h.NewStruct(3, []uint64{1, 2})
	require.Equal(t, uint32(3), s.TypeIndex)
	require.Equal(t, []uint64{1, 2}, s.Fields)
	require.Equal(t, uint32(3), s.RTTIndex())
	require.Equal(t, 1, h.Len())
}

func TestGCHeap_NewArray(t *testing.T) {
	h := NewGCHeap()
	a := h.NewArray(7, []uint64{9, 9, 9})
	require.Equal(t, uint32(7), a.TypeIndex)
	require.Equal(t, []uint64{9, 9, 9}, a.Elements)
	require.Equal(t, uint32(7), a.RTTIndex())
	require.Equal(t, 1, h.Len())
}

func TestGCHeap_NewString(t *testing.T) {
	h := NewGCHeap()
	s := h.NewString("hello")
	require.Equal(t, "hello", s.Value)
	require.Equal(t, gcStringRTTIndex, s.RTTIndex())
	require.Equal(t, 1, h.Len())
}

// TestGCHeap_concurrentTrack hammers track() from many goroutines to shake
// out data races around the objects slice.
func TestGCHeap_concurrentTrack(t *testing.T) {
	h := NewGCHeap()
	const goroutines, iterations = 50, 20

	hammer.NewHammer(t, goroutines, iterations).Run(func(p, n int) {
		h.NewStruct(uint32(p), []uint64{uint64(n)})
	}, nil)

	require.Equal(t, goroutines*iterations, h.Len())
}

func TestRTTRegistry_IsInstance(t *testing.T) {
	h := NewGCHeap()
	s := h.NewStruct(5, nil)
	a := h.NewArray(6, nil)

	reg := RTTRegistry{}
	require.True(t, reg.IsInstance(s, 5))
	require.False(t, reg.IsInstance(s, 6))
	require.True(t, reg.IsInstance(a, 6))
	require.False(t, reg.IsInstance(nil, 0))
}
