package memutils

import (
	"fmt"
	"sync/atomic"
)

// RefCount is an atomic reference count embedded in objects whose final release must
// return resources (physical pages, page tables) deterministically. A RefCount starts
// life holding the single reference owned by the factory that called Init.
//
// sync/atomic operations are sequentially consistent, so every write made by a
// holder before its Release is visible to whichever goroutine observes the count
// reach zero and runs the destructor.
type RefCount struct {
	count   atomic.Int32
	adopted atomic.Bool
}

// Init adopts the object, giving it a reference count of 1. It panics if the object
// has already been adopted.
func (r *RefCount) Init() {
	if !r.adopted.CompareAndSwap(false, true) {
		panic("attempting to adopt an object that has already been adopted")
	}
	r.count.Store(1)
}

// Acquire adds a reference. Acquiring an object whose count has already reached zero is a
// programming error and panics.
func (r *RefCount) Acquire() {
	if r.count.Add(1) <= 1 {
		panic("attempting to acquire a reference to a released object")
	}
}

// Release drops a reference and returns true when the caller dropped the last one
// and must destroy the object.
func (r *RefCount) Release() bool {
	count := r.count.Add(-1)
	if count < 0 {
		panic(fmt.Sprintf("reference count underflow: %d", count))
	}
	return count == 0
}

// Count returns the current count. It is only meaningful for diagnostics.
func (r *RefCount) Count() int32 {
	return r.count.Load()
}
