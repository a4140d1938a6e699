package vm

import (
	"github.com/punktos/vmm/memutils"
	"golang.org/x/exp/slices"
)

// regionList keeps an address space's regions sorted by base address. Regions never overlap,
// so the base address identifies a region within the list.
type regionList struct {
	regions []*Region
}

func compareRegionBase(region *Region, base memutils.Vaddr) int {
	if region.base < base {
		return -1
	} else if region.base > base {
		return 1
	}
	return 0
}

func (l *regionList) Len() int {
	return len(l.regions)
}

func (l *regionList) IsEmpty() bool {
	return len(l.regions) == 0
}

func (l *regionList) First() *Region {
	if len(l.regions) == 0 {
		return nil
	}
	return l.regions[0]
}

func (l *regionList) indexOf(region *Region) int {
	index, found := slices.BinarySearchFunc(l.regions, region.base, compareRegionBase)
	if !found || l.regions[index] != region {
		return -1
	}
	return index
}

// Next returns the region following region, or nil if it is the last
func (l *regionList) Next(region *Region) *Region {
	index := l.indexOf(region)
	if index < 0 || index+1 >= len(l.regions) {
		return nil
	}
	return l.regions[index+1]
}

// InsertAfter places region directly after prev, or at the front of the list when prev is nil
func (l *regionList) InsertAfter(prev *Region, region *Region) {
	index := 0
	if prev != nil {
		index = l.indexOf(prev)
		if index < 0 {
			panic("inserting a region after a region that is not in the list")
		}
		index++
	}

	memutils.DebugAssert(prev == nil || prev.end() < region.base, "region %#x overlaps its predecessor", region.base)
	memutils.DebugAssert(index >= len(l.regions) || region.end() < l.regions[index].base, "region %#x overlaps its successor", region.base)

	l.regions = slices.Insert(l.regions, index, region)
}

func (l *regionList) deleteAt(index int) {
	l.regions = slices.Delete(l.regions, index, index+1)
	// drop the stale pointer left in the vacated tail slot
	l.regions[:len(l.regions)+1][len(l.regions)] = nil
}

// Remove takes region out of the list, reporting whether it was present
func (l *regionList) Remove(region *Region) bool {
	index := l.indexOf(region)
	if index < 0 {
		return false
	}

	l.deleteAt(index)
	return true
}

func (l *regionList) PopFront() *Region {
	if len(l.regions) == 0 {
		return nil
	}

	region := l.regions[0]
	l.deleteAt(0)
	return region
}

// Find returns the region containing vaddr, if any
func (l *regionList) Find(vaddr memutils.Vaddr) *Region {
	index, found := slices.BinarySearchFunc(l.regions, vaddr, compareRegionBase)
	if found {
		return l.regions[index]
	}
	if index == 0 {
		return nil
	}

	region := l.regions[index-1]
	if vaddr > region.end() {
		return nil
	}
	return region
}

// Iter calls cb on each region in address order until cb returns true
func (l *regionList) Iter(cb func(region *Region) (stop bool)) {
	for _, region := range l.regions {
		if cb(region) {
			return
		}
	}
}

// Add inserts region at its sorted position. It reports false, leaving the list unchanged,
// if the region would overlap a neighbour.
func (l *regionList) Add(region *Region) bool {
	index, found := slices.BinarySearchFunc(l.regions, region.base, compareRegionBase)
	if found {
		return false
	}
	if index > 0 && l.regions[index-1].end() >= region.base {
		return false
	}
	if index < len(l.regions) && region.end() >= l.regions[index].base {
		return false
	}

	l.regions = slices.Insert(l.regions, index, region)
	return true
}
