package memutils_test

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/punktos/vmm/memutils"
	"github.com/stretchr/testify/require"
)

func TestAlignment(t *testing.T) {
	require.Equal(t, uint64(0x2000), memutils.AlignUp(uint64(0x1001), memutils.PageSize))
	require.Equal(t, uint64(0x1000), memutils.AlignUp(uint64(0x1000), memutils.PageSize))
	require.Equal(t, uint64(0x1000), memutils.AlignDown(uint64(0x1fff), memutils.PageSize))
	require.True(t, memutils.IsAligned(uint64(0x4000), 0x4000))
	require.False(t, memutils.IsAligned(uint64(0x6000), 0x4000))

	// rounding the top page of the address space wraps to zero
	require.Equal(t, uint64(0), memutils.RoundUpPage(math.MaxUint64-10))
}

func TestPageHelpers(t *testing.T) {
	require.True(t, memutils.IsPageAligned(memutils.Vaddr(0x7000)))
	require.False(t, memutils.IsPageAligned(memutils.Paddr(0x7010)))
	require.Equal(t, 0, memutils.PageCount(0))
	require.Equal(t, 1, memutils.PageCount(1))
	require.Equal(t, 3, memutils.PageCount(3*memutils.PageSize))
	require.Equal(t, 4, memutils.PageCount(3*memutils.PageSize+1))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(uint64(4096), "align"))
	err := memutils.CheckPow2(uint64(48), "align")
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
}

type testFlags uint32

const (
	testFlagA testFlags = 1 << iota
	testFlagB
	testFlagC
)

func TestFlagStringMapping(t *testing.T) {
	mapping := memutils.NewFlagStringMapping[testFlags]()
	mapping.Register(testFlagA, "A")
	mapping.Register(testFlagB, "B")

	require.Equal(t, "None", mapping.FlagsToString(0))
	require.Equal(t, "A", mapping.FlagsToString(testFlagA))
	require.Equal(t, "A|B", mapping.FlagsToString(testFlagA|testFlagB))
	require.Equal(t, "B|0x4", mapping.FlagsToString(testFlagB|testFlagC))

	mapping.Register(0, "Empty")
	require.Equal(t, "Empty", mapping.FlagsToString(0))
}

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()

	stats.AddRegion(2 * memutils.PageSize)
	stats.AddRegion(memutils.PageSize)
	stats.AddUnusedRange(5 * memutils.PageSize)
	stats.AddResidentPages(2)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionCount:       2,
			RegionBytes:       3 * memutils.PageSize,
			ResidentPageCount: 2,
			ResidentBytes:     2 * memutils.PageSize,
		},
		UnusedRangeCount:   1,
		UnusedBytes:        5 * memutils.PageSize,
		RegionSizeMin:      memutils.PageSize,
		RegionSizeMax:      2 * memutils.PageSize,
		UnusedRangeSizeMin: 5 * memutils.PageSize,
		UnusedRangeSizeMax: 5 * memutils.PageSize,
	}, stats)
}
