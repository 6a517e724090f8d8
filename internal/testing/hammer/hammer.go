// Package hammer runs a function concurrently from many goroutines, to
// shake out data races in code that is supposed to be safe for concurrent
// use (e.g. sync.Once-guarded lazy initialization).
package hammer

import (
	"sync"
	"testing"
)

// Hammer runs a test function P times concurrently, N iterations each.
type Hammer struct {
	t          *testing.T
	goroutines int
	iterations int
}

// NewHammer returns a Hammer that runs with goroutines concurrent callers,
// each invoking the test function iterations times.
func NewHammer(t *testing.T, goroutines, iterations int) *Hammer {
	return &Hammer{t: t, goroutines: goroutines, iterations: iterations}
}

// Run invokes fn(p, n) concurrently from h.goroutines goroutines, each
// looping h.iterations times, synchronized to start together. If onStart is
// non-nil, it is invoked once before the goroutines are released.
func (h *Hammer) Run(fn func(p, n int), onStart func()) {
	var begin, end sync.WaitGroup
	begin.Add(1)
	end.Add(h.goroutines)

	for p := 0; p < h.goroutines; p++ {
		p := p
		go func() {
			defer end.Done()
			begin.Wait()
			for n := 0; n < h.iterations; n++ {
				fn(p, n)
			}
		}()
	}

	if onStart != nil {
		onStart()
	}
	begin.Done()
	end.Wait()
}
