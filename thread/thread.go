// Package thread holds the small slice of thread state the VM core needs: a name, a run
// state, and the address space the thread executes in.
package thread

import (
	"fmt"
	"sync"
)

type State uint32

const (
	StateSuspended State = iota
	StateReady
	StateRunning
	StateBlocked
	StateDeath
)

var stateMapping = map[State]string{
	StateSuspended: "StateSuspended",
	StateReady:     "StateReady",
	StateRunning:   "StateRunning",
	StateBlocked:   "StateBlocked",
	StateDeath:     "StateDeath",
}

func (s State) String() string {
	return stateMapping[s]
}

// AddressSpace is the thread's opaque view of the address space it runs in
type AddressSpace interface {
	Name() string
}

type Thread struct {
	mutex  sync.Mutex
	name   string
	state  State
	aspace AddressSpace
}

func New(name string) *Thread {
	return &Thread{name: name, state: StateSuspended}
}

func (t *Thread) Name() string { return t.name }

func (t *Thread) State() State {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.state
}

func (t *Thread) SetState(state State) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.state = state
}

// Aspace returns the attached address space, or nil for a kernel-only thread
func (t *Thread) Aspace() AddressSpace {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.aspace
}

// AttachAspace sets the thread's address space. It may be called once, before the thread runs.
func (t *Thread) AttachAspace(aspace AddressSpace) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.aspace != nil {
		panic(fmt.Sprintf("thread %q already has address space %q", t.name, t.aspace.Name()))
	}
	if t.state == StateRunning {
		panic(fmt.Sprintf("attempting to attach an address space to running thread %q", t.name))
	}

	t.aspace = aspace
}
