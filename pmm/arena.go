package pmm

import (
	"fmt"
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/memutils"
	"golang.org/x/exp/slog"
)

// ArenaOptions describes the physical range an Arena manages
type ArenaOptions struct {
	// Base is the physical address of the first frame and must be page aligned
	Base memutils.Paddr
	// Size is the length of the arena in bytes and must be a nonzero multiple of the page size
	Size uint64
}

// Arena is an Allocator over a single contiguous range of physical frames. The frames are
// backed by an anonymous host mapping so that page contents can be read and written.
type Arena struct {
	logger *slog.Logger

	base   memutils.Paddr
	memory []byte

	mutex     sync.Mutex
	pages     []Page
	freeCount int
	hint      int
}

var _ Allocator = &Arena{}
var _ PhysMap = &Arena{}

func NewArena(logger *slog.Logger, options ArenaOptions) (*Arena, error) {
	if !memutils.IsPageAligned(options.Base) {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "arena base %#x is not page aligned", options.Base)
	}
	if options.Size == 0 || !memutils.IsPageAligned(options.Size) {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "arena size %#x is not a nonzero multiple of the page size", options.Size)
	}
	if uint64(options.Base)+options.Size < uint64(options.Base) {
		return nil, cerrors.Wrapf(memutils.ErrOutOfRange, "arena [%#x, +%#x) wraps the physical address space", options.Base, options.Size)
	}

	memory, err := mapMemory(options.Size)
	if err != nil {
		return nil, cerrors.Wrap(err, "failed to map arena backing memory")
	}

	count := int(options.Size >> memutils.PageShift)
	arena := &Arena{
		logger:    logger,
		base:      options.Base,
		memory:    memory,
		pages:     make([]Page, count),
		freeCount: count,
	}

	for i := range arena.pages {
		start := uint64(i) << memutils.PageShift
		end := start + memutils.PageSize
		page := &arena.pages[i]
		page.paddr = options.Base + memutils.Paddr(start)
		page.data = memory[start:end:end]
		page.storeState(pageFree)
	}

	logger.Debug("Arena::NewArena", slog.Uint64("Base", uint64(options.Base)), slog.Int("PageCount", count))

	return arena, nil
}

// Close releases the backing memory. Every page must have been freed.
func (a *Arena) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.freeCount != len(a.pages) {
		a.logger.Error("[UNFREED PAGES]", slog.Int("Count", len(a.pages)-a.freeCount))
	}

	if a.memory == nil {
		return nil
	}

	err := unmapMemory(a.memory)
	a.memory = nil
	a.pages = nil
	a.freeCount = 0
	return err
}

func (a *Arena) Base() memutils.Paddr { return a.base }

func (a *Arena) PageCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return len(a.pages)
}

func (a *Arena) FreeCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.freeCount
}

func (a *Arena) allocPageLocked() *Page {
	if a.freeCount == 0 {
		return nil
	}

	count := len(a.pages)
	for i := 0; i < count; i++ {
		index := (a.hint + i) % count
		if a.pages[index].loadState() == pageFree {
			a.hint = (index + 1) % count
			a.pages[index].storeState(pageAllocated)
			a.freeCount--
			return &a.pages[index]
		}
	}

	panic("arena free count is nonzero but no free page was found")
}

func (a *Arena) AllocPage(flags AllocFlags) (*Page, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	page := a.allocPageLocked()
	if page == nil {
		a.logger.Debug("Arena::AllocPage exhausted", slog.String("Flags", flags.String()))
		return nil, cerrors.Wrap(memutils.ErrNoMemory, "arena exhausted")
	}

	return page, nil
}

func (a *Arena) AllocPages(count int, flags AllocFlags) ([]*Page, error) {
	if count <= 0 {
		return nil, nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	pages := make([]*Page, 0, count)
	for len(pages) < count {
		page := a.allocPageLocked()
		if page == nil {
			a.logger.Debug("Arena::AllocPages exhausted",
				slog.Int("Requested", count),
				slog.Int("Allocated", len(pages)),
				slog.String("Flags", flags.String()))
			return pages, cerrors.Wrapf(memutils.ErrNoMemory, "allocated %d of %d pages", len(pages), count)
		}
		pages = append(pages, page)
	}

	return pages, nil
}

func (a *Arena) AllocContiguous(count int, flags AllocFlags, alignLog2 uint8) ([]*Page, error) {
	if count <= 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "invalid contiguous page count %d", count)
	}
	if alignLog2 < memutils.PageShift {
		alignLog2 = memutils.PageShift
	}
	if alignLog2 >= 64 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "invalid alignment 1<<%d", alignLog2)
	}
	align := uint64(1) << alignLog2

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if count > a.freeCount {
		return nil, cerrors.Wrapf(memutils.ErrNoMemory, "%d contiguous pages requested, %d free", count, a.freeCount)
	}

	firstAligned := memutils.AlignUp(uint64(a.base), align)
	if firstAligned < uint64(a.base) {
		return nil, cerrors.Wrap(memutils.ErrNoMemory, "no aligned frame in arena")
	}
	stride := int(align >> memutils.PageShift)
	start := int((firstAligned - uint64(a.base)) >> memutils.PageShift)

	for ; start+count <= len(a.pages); start += stride {
		run := 0
		for run < count && a.pages[start+run].loadState() == pageFree {
			run++
		}
		if run < count {
			continue
		}

		pages := make([]*Page, count)
		for i := range pages {
			page := &a.pages[start+i]
			page.storeState(pageAllocated)
			pages[i] = page
		}
		a.freeCount -= count
		return pages, nil
	}

	a.logger.Debug("Arena::AllocContiguous no run found",
		slog.Int("Count", count),
		slog.Uint64("Align", align),
		slog.String("Flags", flags.String()))
	return nil, cerrors.Wrapf(memutils.ErrNoMemory, "no run of %d contiguous pages aligned to %#x", count, align)
}

func (a *Arena) Free(pages []*Page) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	freed := 0
	for _, page := range pages {
		if page == nil {
			continue
		}

		index := a.indexOf(page)
		if index < 0 {
			panic(fmt.Sprintf("page %#x does not belong to this arena", page.paddr))
		}
		state := page.loadState()
		if state == pageObject {
			panic(fmt.Sprintf("freeing page %#x while it is linked to a memory object", page.paddr))
		}
		if !page.swapState(pageAllocated, pageFree) {
			panic(fmt.Sprintf("double free of page %#x", page.paddr))
		}
		a.freeCount++
		freed++
	}

	return freed
}

func (a *Arena) indexOf(page *Page) int {
	if page.paddr < a.base {
		return -1
	}
	index := uint64(page.paddr-a.base) >> memutils.PageShift
	if index >= uint64(len(a.pages)) || &a.pages[index] != page {
		return -1
	}
	return int(index)
}

func (a *Arena) PhysBytes(paddr memutils.Paddr, length int) ([]byte, error) {
	if length < 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "negative length %d", length)
	}
	if paddr < a.base {
		return nil, cerrors.Wrapf(memutils.ErrOutOfRange, "paddr %#x is below arena base %#x", paddr, a.base)
	}

	offset := uint64(paddr - a.base)
	if offset > uint64(len(a.memory)) || uint64(length) > uint64(len(a.memory))-offset {
		return nil, cerrors.Wrapf(memutils.ErrOutOfRange, "[%#x, +%#x) lies outside the arena", paddr, length)
	}

	return a.memory[offset : offset+uint64(length)], nil
}
