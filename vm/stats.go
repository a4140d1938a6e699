package vm

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/punktos/vmm/memutils"
)

func (a *AddressSpace) addDetailedStatisticsLocked(stats *memutils.DetailedStatistics) {
	a.mutex.AssertHeld()

	prevEnd := uint64(0)
	for _, region := range a.regions.regions {
		offset := uint64(region.base - a.base)
		if offset > prevEnd {
			stats.AddUnusedRange(offset - prevEnd)
		}

		stats.AddRegion(region.size)
		if region.object != nil {
			stats.AddResidentPages(region.object.ResidentPagesInRange(region.objectOffset, region.size))
		}

		prevEnd = offset + region.size
	}

	if a.size > prevEnd {
		stats.AddUnusedRange(a.size - prevEnd)
	}
}

// AddDetailedStatistics adds this address space's regions, gaps and resident pages to stats
func (a *AddressSpace) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.checkMagic()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.addDetailedStatisticsLocked(stats)
}

// BuildStatsString renders the address space as JSON. With detailed set every region is listed.
func (a *AddressSpace) BuildStatsString(detailed bool) string {
	a.checkMagic()

	writer := jwriter.NewWriter()
	obj := writer.Object()
	a.printParameters(&obj, detailed)
	obj.End()

	return string(writer.Bytes())
}

func (a *AddressSpace) printParameters(json *jwriter.ObjectState, detailed bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	json.Name("Id").Int(int(a.id))
	json.Name("Name").String(a.name)
	json.Name("Type").String(a.aspaceType.String())
	json.Name("Base").String(fmt.Sprintf("%#x", a.base))
	json.Name("Size").String(fmt.Sprintf("%#x", a.size))
	json.Name("RefCount").Int(int(a.refs.Count()))

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.addDetailedStatisticsLocked(&stats)

	statsObj := json.Name("Statistics").Object()
	printDetailedStatistics(&statsObj, &stats)
	statsObj.End()

	if !detailed {
		return
	}

	regions := json.Name("Regions").Array()
	defer regions.End()

	for _, region := range a.regions.regions {
		regionObj := regions.Object()
		region.printParameters(&regionObj)
		regionObj.End()
	}
}

func (r *Region) printParameters(json *jwriter.ObjectState) {
	json.Name("Name").String(r.name)
	json.Name("Base").String(fmt.Sprintf("%#x", r.base))
	json.Name("Size").String(fmt.Sprintf("%#x", r.size))
	json.Name("MMUFlags").String(r.mmuFlags.String())
	json.Name("RefCount").Int(int(r.refs.Count()))

	if r.object != nil {
		objectObj := json.Name("Object").Object()
		objectObj.Name("Offset").String(fmt.Sprintf("%#x", r.objectOffset))
		objectObj.Name("Size").String(fmt.Sprintf("%#x", r.object.Size()))
		objectObj.Name("RefCount").Int(int(r.object.RefCount()))
		objectObj.Name("ResidentPages").Int(r.object.ResidentPagesInRange(r.objectOffset, r.size))
		objectObj.End()
	}
}

func printDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("RegionCount").Int(stats.RegionCount)
	json.Name("RegionBytes").Int(int(stats.RegionBytes))
	json.Name("ResidentPageCount").Int(stats.ResidentPageCount)
	json.Name("ResidentBytes").Int(int(stats.ResidentBytes))
	json.Name("UnusedRangeCount").Int(stats.UnusedRangeCount)
	json.Name("UnusedBytes").Int(int(stats.UnusedBytes))

	if stats.RegionCount > 0 {
		json.Name("RegionSizeMin").Int(int(stats.RegionSizeMin))
		json.Name("RegionSizeMax").Int(int(stats.RegionSizeMax))
	}
	if stats.UnusedRangeCount > 0 {
		json.Name("UnusedRangeSizeMin").Int(int(stats.UnusedRangeSizeMin))
		json.Name("UnusedRangeSizeMax").Int(int(stats.UnusedRangeSizeMax))
	}
}

// CalculateStatistics sums the detailed statistics of every live address space
func (v *VMM) CalculateStatistics(stats *memutils.DetailedStatistics) {
	stats.Clear()

	v.aspaces.ForEach(func(aspace *AddressSpace) bool {
		aspace.AddDetailedStatistics(stats)
		return false
	})
}

// DumpAllAspaces renders every live address space as a JSON array
func (v *VMM) DumpAllAspaces(detailed bool) string {
	writer := jwriter.NewWriter()
	v.aspaces.BuildStatsString(&writer, detailed)

	return string(writer.Bytes())
}
