package pmm

import "github.com/punktos/vmm/memutils"

//go:generate mockgen -destination mocks/mocks.go -package mock_pmm github.com/punktos/vmm/pmm Allocator,PhysMap

// AllocFlags narrows where an allocation may be satisfied from
type AllocFlags uint32

const (
	// AllocFlagAny allows the page to come from any arena
	AllocFlagAny AllocFlags = 0
	// AllocFlagKmap requires the page to be reachable through the kernel physmap
	AllocFlagKmap AllocFlags = 1 << 0
)

var allocFlagsMapping = memutils.NewFlagStringMapping[AllocFlags]()

func init() {
	allocFlagsMapping.Register(AllocFlagAny, "AllocFlagAny")
	allocFlagsMapping.Register(AllocFlagKmap, "AllocFlagKmap")
}

func (f AllocFlags) String() string {
	return allocFlagsMapping.FlagsToString(f)
}

// Allocator is the physical page allocator consumed by the VM core.
type Allocator interface {
	// AllocPage allocates one page, returning memutils.ErrNoMemory when exhausted
	AllocPage(flags AllocFlags) (*Page, error)
	// AllocPages allocates count pages that need not be contiguous. If fewer than count pages
	// are available, the pages that were allocated are returned together with
	// memutils.ErrNoMemory and the caller is responsible for freeing them.
	AllocPages(count int, flags AllocFlags) ([]*Page, error)
	// AllocContiguous allocates a physically contiguous run of count pages whose first
	// physical address is aligned to 1<<alignLog2 (at least page aligned). Pages are returned
	// in ascending physical order. It allocates all of the pages or none of them.
	AllocContiguous(count int, flags AllocFlags, alignLog2 uint8) ([]*Page, error)
	// Free returns pages to the allocator and reports how many were freed. Pages still linked
	// into a memory object must not be freed.
	Free(pages []*Page) int
}

// PhysMap gives the kernel access to arbitrary physical memory owned by an allocator
type PhysMap interface {
	PhysBytes(paddr memutils.Paddr, length int) ([]byte, error)
}
