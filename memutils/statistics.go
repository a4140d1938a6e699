package memutils

import "math"

// Statistics contains basic counters for one or more address spaces
type Statistics struct {
	RegionCount       int
	RegionBytes       uint64
	ResidentPageCount int
	ResidentBytes     uint64
}

func (s *Statistics) Clear() {
	s.RegionCount = 0
	s.RegionBytes = 0
	s.ResidentPageCount = 0
	s.ResidentBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.RegionCount += other.RegionCount
	s.RegionBytes += other.RegionBytes
	s.ResidentPageCount += other.ResidentPageCount
	s.ResidentBytes += other.ResidentBytes
}

// AddResidentPages counts pages that are backed by physical memory
func (s *Statistics) AddResidentPages(count int) {
	s.ResidentPageCount += count
	s.ResidentBytes += uint64(count) * PageSize
}

// DetailedStatistics adds region and unused-range size extremes to Statistics
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	UnusedBytes        uint64
	RegionSizeMin      uint64
	RegionSizeMax      uint64
	UnusedRangeSizeMin uint64
	UnusedRangeSizeMax uint64
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.UnusedBytes = 0
	s.RegionSizeMin = math.MaxUint64
	s.RegionSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxUint64
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size uint64) {
	s.UnusedRangeCount++
	s.UnusedBytes += size

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddRegion(size uint64) {
	s.RegionCount++
	s.RegionBytes += size

	if size < s.RegionSizeMin {
		s.RegionSizeMin = size
	}

	if size > s.RegionSizeMax {
		s.RegionSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount
	s.UnusedBytes += other.UnusedBytes

	if other.UnusedRangeSizeMin < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}

	if other.UnusedRangeSizeMax > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}

	if other.RegionSizeMin < s.RegionSizeMin {
		s.RegionSizeMin = other.RegionSizeMin
	}

	if other.RegionSizeMax > s.RegionSizeMax {
		s.RegionSizeMax = other.RegionSizeMax
	}
}
