package vm

import (
	"testing"

	"github.com/punktos/vmm/memutils"
	"github.com/stretchr/testify/require"
)

func listRegion(base memutils.Vaddr, pages int) *Region {
	return newRegion(nil, base, uint64(pages)*memutils.PageSize, 0, "test")
}

func listBases(l *regionList) []memutils.Vaddr {
	var bases []memutils.Vaddr
	l.Iter(func(region *Region) bool {
		bases = append(bases, region.base)
		return false
	})
	return bases
}

func TestRegionListAdd(t *testing.T) {
	var list regionList
	require.True(t, list.IsEmpty())
	require.Nil(t, list.First())

	require.True(t, list.Add(listRegion(0x4000, 2)))
	require.True(t, list.Add(listRegion(0x1000, 1)))
	require.True(t, list.Add(listRegion(0x8000, 1)))
	require.Equal(t, []memutils.Vaddr{0x1000, 0x4000, 0x8000}, listBases(&list))

	// same base, tail overlap, head overlap
	require.False(t, list.Add(listRegion(0x4000, 1)))
	require.False(t, list.Add(listRegion(0x5000, 1)))
	require.False(t, list.Add(listRegion(0x2000, 3)))
	require.Equal(t, 3, list.Len())

	// exactly filling a gap is fine
	require.True(t, list.Add(listRegion(0x6000, 2)))
	require.Equal(t, []memutils.Vaddr{0x1000, 0x4000, 0x6000, 0x8000}, listBases(&list))
}

func TestRegionListFind(t *testing.T) {
	var list regionList
	first := listRegion(0x1000, 2)
	second := listRegion(0x5000, 1)
	list.Add(first)
	list.Add(second)

	require.Nil(t, list.Find(0))
	require.Same(t, first, list.Find(0x1000))
	require.Same(t, first, list.Find(0x2fff))
	require.Nil(t, list.Find(0x3000))
	require.Same(t, second, list.Find(0x5800))
	require.Nil(t, list.Find(0x6000))

	require.Same(t, second, list.Next(first))
	require.Nil(t, list.Next(second))
}

func TestRegionListInsertRemove(t *testing.T) {
	var list regionList
	a := listRegion(0x1000, 1)
	b := listRegion(0x3000, 1)
	c := listRegion(0x5000, 1)

	list.InsertAfter(nil, b)
	list.InsertAfter(nil, a)
	list.InsertAfter(b, c)
	require.Equal(t, []memutils.Vaddr{0x1000, 0x3000, 0x5000}, listBases(&list))

	require.Panics(t, func() { list.InsertAfter(listRegion(0x9000, 1), listRegion(0xa000, 1)) })

	require.True(t, list.Remove(b))
	require.False(t, list.Remove(b))
	require.Equal(t, []memutils.Vaddr{0x1000, 0x5000}, listBases(&list))
	require.Nil(t, list.regions[:cap(list.regions)][2])

	require.Same(t, a, list.PopFront())
	require.Same(t, c, list.PopFront())
	require.Nil(t, list.PopFront())
	require.True(t, list.IsEmpty())
}
