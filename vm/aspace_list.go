package vm

import (
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slices"
)

// aspaceList is the registry of every live address space, keyed by id
type aspaceList struct {
	mutex   sync.RWMutex
	aspaces *swiss.Map[uint64, *AddressSpace]
}

func (l *aspaceList) Init() {
	l.aspaces = swiss.NewMap[uint64, *AddressSpace](8)
}

func (l *aspaceList) Register(aspace *AddressSpace) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.aspaces.Has(aspace.id) {
		panic("attempting to register an address space twice")
	}
	l.aspaces.Put(aspace.id, aspace)
}

func (l *aspaceList) Unregister(aspace *AddressSpace) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.aspaces.Delete(aspace.id)
}

func (l *aspaceList) Count() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.aspaces.Count()
}

// sortedLocked returns the registered address spaces in creation order
func (l *aspaceList) sortedLocked() []*AddressSpace {
	aspaces := make([]*AddressSpace, 0, l.aspaces.Count())
	l.aspaces.Iter(func(id uint64, aspace *AddressSpace) bool {
		aspaces = append(aspaces, aspace)
		return false
	})

	slices.SortFunc(aspaces, func(a, b *AddressSpace) bool {
		return a.id < b.id
	})
	return aspaces
}

// ForEach calls cb on each address space in creation order until cb returns true. The
// registry is locked for reading throughout, so cb must not create or destroy address spaces.
func (l *aspaceList) ForEach(cb func(aspace *AddressSpace) (stop bool)) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, aspace := range l.sortedLocked() {
		if cb(aspace) {
			return
		}
	}
}

func (l *aspaceList) Validate() error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	var err error
	l.aspaces.Iter(func(id uint64, aspace *AddressSpace) bool {
		if aspace.id != id {
			err = cerrors.Newf("address space %q is registered under id %d but has id %d", aspace.name, id, aspace.id)
			return true
		}
		if aspace.magic != aspaceMagic {
			err = cerrors.Newf("destroyed address space %d is still registered", id)
			return true
		}

		err = aspace.Validate()
		return err != nil
	})

	return err
}

func (l *aspaceList) BuildStatsString(writer *jwriter.Writer, detailed bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	s := writer.Array()
	defer s.End()

	for _, aspace := range l.sortedLocked() {
		o := s.Object()
		aspace.printParameters(&o, detailed)
		o.End()
	}
}
