package wasm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tetratelabs/wazero-interp-core/internal/testing/require"
)

var testCtx = context.Background()

func TestMemoryInstance_AtomicLoadStore32(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 8)}

	ok := m.AtomicStore32(testCtx, 0, 0xcafef00d)
	require.True(t, ok)

	v, ok := m.AtomicLoad32(testCtx, 0)
	require.True(t, ok)
	require.Equal(t, uint32(0xcafef00d), v)

	_, ok = m.AtomicLoad32(testCtx, 6) // out of range: only 2 bytes left.
	require.False(t, ok)

	ok = m.AtomicStore32(testCtx, 6, 1)
	require.False(t, ok)
}

func TestMemoryInstance_AtomicLoadStore64(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 8)}

	ok := m.AtomicStore64(testCtx, 0, 0xcafef00ddeadbeef)
	require.True(t, ok)

	v, ok := m.AtomicLoad64(testCtx, 0)
	require.True(t, ok)
	require.Equal(t, uint64(0xcafef00ddeadbeef), v)

	_, ok = m.AtomicLoad64(testCtx, 4)
	require.False(t, ok)
}

func TestMemoryInstance_AtomicRMW32(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 4)}
	m.AtomicStore32(testCtx, 0, 10)

	old, ok := m.AtomicRMW32(testCtx, 0, func(v uint32) uint32 { return v + 5 })
	require.True(t, ok)
	require.Equal(t, uint32(10), old)

	v, _ := m.AtomicLoad32(testCtx, 0)
	require.Equal(t, uint32(15), v)

	_, ok = m.AtomicRMW32(testCtx, 100, func(v uint32) uint32 { return v })
	require.False(t, ok)
}

func TestMemoryInstance_AtomicRMW64(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 8)}
	m.AtomicStore64(testCtx, 0, 10)

	old, ok := m.AtomicRMW64(testCtx, 0, func(v uint64) uint64 { return v * 2 })
	require.True(t, ok)
	require.Equal(t, uint64(10), old)

	v, _ := m.AtomicLoad64(testCtx, 0)
	require.Equal(t, uint64(20), v)
}

func TestMemoryInstance_AtomicCompareExchange32(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 4)}
	m.AtomicStore32(testCtx, 0, 1)

	old, ok := m.AtomicCompareExchange32(testCtx, 0, 1, 2)
	require.True(t, ok)
	require.Equal(t, uint32(1), old)
	v, _ := m.AtomicLoad32(testCtx, 0)
	require.Equal(t, uint32(2), v)

	// expected no longer matches: no write happens.
	old, ok = m.AtomicCompareExchange32(testCtx, 0, 1, 3)
	require.True(t, ok)
	require.Equal(t, uint32(2), old)
	v, _ = m.AtomicLoad32(testCtx, 0)
	require.Equal(t, uint32(2), v)

	_, ok = m.AtomicCompareExchange32(testCtx, 100, 0, 0)
	require.False(t, ok)
}

func TestMemoryInstance_AtomicCompareExchange64(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 8)}
	m.AtomicStore64(testCtx, 0, 1)

	old, ok := m.AtomicCompareExchange64(testCtx, 0, 1, 2)
	require.True(t, ok)
	require.Equal(t, uint64(1), old)

	old, ok = m.AtomicCompareExchange64(testCtx, 0, 1, 3)
	require.True(t, ok)
	require.Equal(t, uint64(2), old) // unchanged since expected mismatched.
}

func TestMemoryInstance_AtomicWait32_mismatch(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 4)}
	m.AtomicStore32(testCtx, 0, 42)

	result, ok := m.AtomicWait32(testCtx, 0, 41, -1)
	require.True(t, ok)
	require.Equal(t, AtomicWaitResultMismatch, result)
}

func TestMemoryInstance_AtomicWait64_mismatch(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 8)}
	m.AtomicStore64(testCtx, 0, 42)

	result, ok := m.AtomicWait64(testCtx, 0, 41, -1)
	require.True(t, ok)
	require.Equal(t, AtomicWaitResultMismatch, result)
}

func TestMemoryInstance_AtomicWait32_outOfRange(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 4)}
	_, ok := m.AtomicWait32(testCtx, 100, 0, -1)
	require.False(t, ok)
}

func TestMemoryInstance_AtomicWait32_timeout(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 4)}
	m.AtomicStore32(testCtx, 0, 7)

	result, ok := m.AtomicWait32(testCtx, 0, 7, 1) // 1ns: expires almost immediately.
	require.True(t, ok)
	require.Equal(t, AtomicWaitResultTimedOut, result)
}

func TestMemoryInstance_AtomicNotify_wakesWaiters(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 4)}
	m.AtomicStore32(testCtx, 0, 0)

	const waiters = 4
	results := make(chan AtomicWaitResult, waiters)

	var started sync.WaitGroup
	started.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			started.Done()
			// A long but finite timeout: if the notify below somehow races
			// ahead of this goroutine reaching cond.Wait, the test still
			// completes (as a timeout) instead of hanging forever.
			result, ok := m.AtomicWait32(testCtx, 0, 0, int64(10*time.Second))
			if ok {
				results <- result
			} else {
				results <- AtomicWaitResultTimedOut
			}
		}()
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond) // let the goroutines reach cond.Wait.

	n, ok := m.AtomicNotify(testCtx, 0, waiters)
	require.True(t, ok)
	require.Equal(t, uint32(waiters), n)

	for i := 0; i < waiters; i++ {
		select {
		case result := <-results:
			require.Equal(t, AtomicWaitResultOK, result)
		case <-time.After(15 * time.Second):
			t.Fatal("timed out waiting for notified waiter")
		}
	}
}

func TestMemoryInstance_AtomicNotify_outOfRange(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 4)}
	_, ok := m.AtomicNotify(testCtx, 100, 1)
	require.False(t, ok)
}
