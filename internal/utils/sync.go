package utils

import (
	"sync"
	"sync/atomic"

	"github.com/punktos/vmm/memutils"
)

// Mutex is a sync.Mutex that remembers whether it is currently held, so that
// helpers which require the caller to hold the lock can assert it.
type Mutex struct {
	mutex sync.Mutex
	held  atomic.Bool
}

func (m *Mutex) Lock() {
	m.mutex.Lock()
	m.held.Store(true)
}

func (m *Mutex) Unlock() {
	if !m.held.Swap(false) {
		panic("unlocking a mutex that is not held")
	}
	m.mutex.Unlock()
}

// IsHeld reports whether some goroutine holds the lock. It cannot tell which one.
func (m *Mutex) IsHeld() bool {
	return m.held.Load()
}

// AssertHeld panics in debug builds if the lock is not held.
func (m *Mutex) AssertHeld() {
	memutils.DebugAssert(m.held.Load(), "mutex is not held")
}
