package soft

import (
	"context"
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/memutils"
	"golang.org/x/exp/slog"
)

type pte struct {
	paddr memutils.Paddr
	flags arch.MMUFlags
}

// PageTable maps virtual page numbers to page table entries
type PageTable struct {
	logger     *slog.Logger
	base       memutils.Vaddr
	size       uint64
	flags      arch.AspaceFlags
	guardPages bool

	mutex     sync.Mutex
	entries   *swiss.Map[uint64, pte]
	destroyed bool
}

var _ arch.PageTable = &PageTable{}

func newPageTable(logger *slog.Logger, base memutils.Vaddr, size uint64, flags arch.AspaceFlags, guardPages bool) *PageTable {
	return &PageTable{
		logger:     logger,
		base:       base,
		size:       size,
		flags:      flags,
		guardPages: guardPages,
		entries:    swiss.NewMap[uint64, pte](64),
	}
}

func vpn(vaddr memutils.Vaddr) uint64 {
	return uint64(vaddr) >> memutils.PageShift
}

func (t *PageTable) checkLive() {
	if t.destroyed {
		panic("use of a destroyed page table")
	}
}

func (t *PageTable) checkRange(vaddr memutils.Vaddr, count int) error {
	if !memutils.IsPageAligned(vaddr) {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "vaddr %#x is not page aligned", vaddr)
	}
	if count < 0 {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "negative page count %d", count)
	}
	if count == 0 {
		return nil
	}

	length := uint64(count) << memutils.PageShift
	if vaddr < t.base || uint64(vaddr-t.base) > t.size-1 || length > t.size-uint64(vaddr-t.base) {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "[%#x, +%d pages) lies outside the page table range", vaddr, count)
	}
	return nil
}

func (t *PageTable) Map(vaddr memutils.Vaddr, paddr memutils.Paddr, count int, flags arch.MMUFlags) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.checkLive()

	if err := t.checkRange(vaddr, count); err != nil {
		return 0, err
	}
	if !memutils.IsPageAligned(paddr) {
		return 0, cerrors.Wrapf(memutils.ErrInvalidArgs, "paddr %#x is not page aligned", paddr)
	}

	first := vpn(vaddr)
	for i := 0; i < count; i++ {
		page := first + uint64(i)
		if t.entries.Has(page) {
			return i, cerrors.Wrapf(memutils.ErrAlreadyExists, "vaddr %#x is already mapped", page<<memutils.PageShift)
		}

		t.entries.Put(page, pte{
			paddr: paddr + memutils.Paddr(uint64(i)<<memutils.PageShift),
			flags: flags,
		})
	}

	return count, nil
}

func (t *PageTable) Unmap(vaddr memutils.Vaddr, count int) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.checkLive()

	if err := t.checkRange(vaddr, count); err != nil {
		return 0, err
	}

	first := vpn(vaddr)
	unmapped := 0
	for i := 0; i < count; i++ {
		if t.entries.Delete(first + uint64(i)) {
			unmapped++
		}
	}

	return unmapped, nil
}

func (t *PageTable) Protect(vaddr memutils.Vaddr, count int, flags arch.MMUFlags) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.checkLive()

	if err := t.checkRange(vaddr, count); err != nil {
		return err
	}

	first := vpn(vaddr)
	for i := 0; i < count; i++ {
		entry, ok := t.entries.Get(first + uint64(i))
		if !ok {
			continue
		}
		entry.flags = flags
		t.entries.Put(first+uint64(i), entry)
	}

	return nil
}

func (t *PageTable) Query(vaddr memutils.Vaddr) (memutils.Paddr, arch.MMUFlags, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.checkLive()

	entry, ok := t.entries.Get(vpn(vaddr))
	if !ok {
		return 0, 0, cerrors.Wrapf(memutils.ErrNotFound, "vaddr %#x is not mapped", vaddr)
	}

	offset := memutils.Paddr(uint64(vaddr) & (memutils.PageSize - 1))
	return entry.paddr + offset, entry.flags, nil
}

func (t *PageTable) PickSpot(base memutils.Vaddr, prevFlags arch.MMUFlags, end memutils.Vaddr, nextFlags arch.MMUFlags, align uint64, size uint64, flags arch.MMUFlags) memutils.Vaddr {
	spot := arch.DefaultPickSpot(base, align)
	if !t.guardPages || spot < base {
		return spot
	}

	if prevFlags != arch.MMUFlagInvalid && prevFlags != flags {
		guarded := base + memutils.Vaddr(memutils.PageSize)
		if guarded < base {
			return guarded
		}
		spot = arch.DefaultPickSpot(guarded, align)
		if spot < guarded {
			return spot
		}
	}

	if nextFlags != arch.MMUFlagInvalid && nextFlags != flags {
		// the last page of the gap becomes the guard, so the mapping must end before it
		if spot > end || end-spot < memutils.Vaddr(size) {
			return end
		}
	}

	return spot
}

// MappedCount returns the number of installed translations
func (t *PageTable) MappedCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.entries.Count()
}

func (t *PageTable) Destroy() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.checkLive()

	if count := t.entries.Count(); count > 0 {
		t.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MAPPINGS] page table destroyed while pages are still mapped",
			slog.Int("Count", count),
			slog.Uint64("Base", uint64(t.base)))
		t.entries.Clear()
	}

	t.destroyed = true
	return nil
}
