package arch

import "github.com/punktos/vmm/memutils"

//go:generate mockgen -destination mocks/mocks.go -package mock_arch github.com/punktos/vmm/arch MMU,PageTable

// MMU creates the architecture page tables backing an address space
type MMU interface {
	InitAspace(base memutils.Vaddr, size uint64, flags AspaceFlags) (PageTable, error)
}

// PageTable is the architecture-specific translation structure of one address space. All
// addresses are page aligned and counts are in pages.
type PageTable interface {
	// Map installs count consecutive translations starting at vaddr → paddr and reports how
	// many were installed. It fails with memutils.ErrAlreadyExists if any target page is
	// already mapped, leaving the pages mapped before it in place.
	Map(vaddr memutils.Vaddr, paddr memutils.Paddr, count int, flags MMUFlags) (int, error)
	// Unmap removes translations in [vaddr, vaddr+count pages) and reports how many existed
	Unmap(vaddr memutils.Vaddr, count int) (int, error)
	// Protect rewrites the flags of every existing translation in the range
	Protect(vaddr memutils.Vaddr, count int, flags MMUFlags) error
	// Query returns the translation for vaddr, or memutils.ErrNotFound if there is none.
	// vaddr need not be page aligned; the returned paddr includes the page offset.
	Query(vaddr memutils.Vaddr) (memutils.Paddr, MMUFlags, error)
	// PickSpot proposes an address for a mapping of size bytes with the given alignment inside
	// the gap [base, end], end being inclusive. prevFlags and nextFlags are the flags of the
	// neighbouring regions, or MMUFlagInvalid when there is no neighbour. The caller checks
	// whether the result actually fits.
	PickSpot(base memutils.Vaddr, prevFlags MMUFlags, end memutils.Vaddr, nextFlags MMUFlags, align uint64, size uint64, flags MMUFlags) memutils.Vaddr
	// Destroy releases the page tables. The address space must have no mappings left.
	Destroy() error
}

// DefaultPickSpot is the placement policy with no architecture restrictions: align the gap start
func DefaultPickSpot(base memutils.Vaddr, align uint64) memutils.Vaddr {
	return memutils.AlignUp(base, memutils.Vaddr(align))
}
