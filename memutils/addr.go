package memutils

const (
	// PageShift is log2 of PageSize
	PageShift = 12
	// PageSize is the size in bytes of a single page of virtual or physical memory
	PageSize uint64 = 1 << PageShift
)

// Vaddr is a virtual address
type Vaddr uint64

// Paddr is a physical address
type Paddr uint64

// RoundUpPage rounds size up to a whole number of pages
func RoundUpPage(size uint64) uint64 {
	return AlignUp(size, PageSize)
}

func IsPageAligned[T ~uint64](value T) bool {
	return uint64(value)&(PageSize-1) == 0
}

// PageCount returns the number of pages needed to hold size bytes
func PageCount(size uint64) int {
	return int(RoundUpPage(size) >> PageShift)
}
