package vm

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	"golang.org/x/exp/slog"
)

const regionMagic uint32 = 0x564d5247 // VMRG

// Region is a contiguous range of virtual addresses inside one address space, optionally
// backed by a window of a MemoryObject. Its mutable state is guarded by the owning address
// space's lock. The address space's region list holds one reference; every handle returned to
// a caller holds another.
type Region struct {
	refs  memutils.RefCount
	magic uint32

	// aspace does not keep the address space alive; the address space owns its regions
	aspace *AddressSpace

	base     memutils.Vaddr
	size     uint64
	mmuFlags arch.MMUFlags
	name     string

	object       *MemoryObject
	objectOffset uint64
	destroyed    bool
}

func newRegion(aspace *AddressSpace, base memutils.Vaddr, size uint64, mmuFlags arch.MMUFlags, name string) *Region {
	region := &Region{
		magic:    regionMagic,
		aspace:   aspace,
		base:     base,
		size:     size,
		mmuFlags: mmuFlags,
		name:     name,
	}
	region.refs.Init()

	return region
}

func (r *Region) checkMagic() {
	if r.magic != regionMagic {
		panic(fmt.Sprintf("use of a released region: magic %#x", r.magic))
	}
}

func (r *Region) Base() memutils.Vaddr {
	r.checkMagic()
	return r.base
}

func (r *Region) Size() uint64 {
	r.checkMagic()
	return r.size
}

func (r *Region) Name() string {
	r.checkMagic()
	return r.name
}

// End returns the last byte of the region
func (r *Region) End() memutils.Vaddr {
	r.checkMagic()
	return r.end()
}

func (r *Region) end() memutils.Vaddr {
	return r.base + memutils.Vaddr(r.size-1)
}

func (r *Region) contains(vaddr memutils.Vaddr) bool {
	return vaddr >= r.base && vaddr <= r.end()
}

func (r *Region) pageCount() int {
	return int(r.size >> memutils.PageShift)
}

func (r *Region) MMUFlags() arch.MMUFlags {
	r.checkMagic()

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	return r.mmuFlags
}

// Object returns the backing object and the region's offset into it. The object remains
// valid only as long as the caller holds the region and the region is not destroyed.
func (r *Region) Object() (*MemoryObject, uint64) {
	r.checkMagic()

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	return r.object, r.objectOffset
}

// Acquire adds a reference to the region
func (r *Region) Acquire() {
	r.checkMagic()
	r.refs.Acquire()
}

// Release drops a reference and reports whether it was the last one. A region that is still
// associated with an object when its last reference drops gives the object up.
func (r *Region) Release() bool {
	r.checkMagic()
	if !r.refs.Release() {
		return false
	}

	if r.object != nil {
		r.object.Release()
		r.object = nil
	}
	r.magic = 0
	return true
}

func (r *Region) setObjectLocked(object *MemoryObject, offset uint64) error {
	r.aspace.mutex.AssertHeld()

	if object == nil {
		return cerrors.Wrap(memutils.ErrInvalidArgs, "a memory object is required")
	}
	if r.object != nil || r.destroyed {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "region %q already has a backing object", r.name)
	}
	if !memutils.IsPageAligned(offset) {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "object offset %#x is not page aligned", offset)
	}
	if offset+r.size < offset || offset+r.size > MaxObjectSize {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "object window [%#x, +%#x) exceeds the maximum object size", offset, r.size)
	}

	object.Acquire()
	r.object = object
	r.objectOffset = offset
	return nil
}

// SetObject backs the region with object starting at offset. A region may be associated with
// at most one object in its lifetime.
func (r *Region) SetObject(object *MemoryObject, offset uint64) error {
	r.checkMagic()

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	return r.setObjectLocked(object, offset)
}

func (r *Region) checkWindow(offset, length uint64) error {
	if !memutils.IsPageAligned(offset) {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "region offset %#x is not page aligned", offset)
	}
	if offset > r.size || length > r.size-offset {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "[%#x, +%#x) lies outside region %q of size %#x", offset, length, r.name, r.size)
	}
	return nil
}

func (r *Region) mapRangeLocked(offset, length uint64, commit bool) error {
	r.aspace.mutex.AssertHeld()

	length = memutils.RoundUpPage(length)
	if err := r.checkWindow(offset, length); err != nil {
		return err
	}
	if r.object == nil {
		return cerrors.Wrapf(memutils.ErrNotFound, "region %q has no backing object", r.name)
	}

	pageTable := r.aspace.pageTable
	for o := offset; o < offset+length; o += memutils.PageSize {
		vaddr := r.base + memutils.Vaddr(o)
		if _, _, err := pageTable.Query(vaddr); err == nil {
			continue
		}

		var page *pmm.Page
		if commit {
			var err error
			page, err = r.object.FaultPage(r.objectOffset+o, FaultFlagWrite)
			if err != nil {
				return err
			}
		} else {
			page = r.object.GetPage(r.objectOffset + o)
		}
		if page == nil {
			continue
		}

		_, err := pageTable.Map(vaddr, page.Paddr(), 1, r.mmuFlags)
		if err != nil {
			return cerrors.Wrapf(err, "failed to map %#x in region %q", vaddr, r.name)
		}
	}

	return nil
}

// MapRange installs translations for the resident pages of [offset, offset+length) of the
// region, faulting pages in first when commit is set. Pages that are already mapped are left
// alone. It stops at the first error without undoing the translations it installed; the
// caller is expected to unmap or free the whole region.
func (r *Region) MapRange(offset, length uint64, commit bool) error {
	r.checkMagic()
	r.aspace.logger.Debug("Region::MapRange",
		slog.String("Name", r.name),
		slog.Uint64("Offset", offset),
		slog.Uint64("Length", length),
		slog.Bool("Commit", commit))

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	if r.destroyed {
		return cerrors.Wrapf(memutils.ErrNotFound, "region %q has been destroyed", r.name)
	}

	return r.mapRangeLocked(offset, length, commit)
}

func (r *Region) mapPhysicalRangeLocked(offset, length uint64, paddr memutils.Paddr, allowRemap bool) error {
	r.aspace.mutex.AssertHeld()

	length = memutils.RoundUpPage(length)
	if err := r.checkWindow(offset, length); err != nil {
		return err
	}
	if !memutils.IsPageAligned(paddr) {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "paddr %#x is not page aligned", paddr)
	}
	if length == 0 {
		return nil
	}

	pageTable := r.aspace.pageTable
	vaddr := r.base + memutils.Vaddr(offset)
	count := int(length >> memutils.PageShift)

	if allowRemap {
		if _, err := pageTable.Unmap(vaddr, count); err != nil {
			return cerrors.Wrapf(err, "failed to clear %#x before remapping", vaddr)
		}
	} else {
		for i := 0; i < count; i++ {
			page := vaddr + memutils.Vaddr(uint64(i)<<memutils.PageShift)
			if _, _, err := pageTable.Query(page); err == nil {
				return cerrors.Wrapf(memutils.ErrAlreadyExists, "%#x in region %q is already mapped", page, r.name)
			}
		}
	}

	mapped, err := pageTable.Map(vaddr, paddr, count, r.mmuFlags)
	if err != nil {
		return cerrors.Wrapf(err, "mapped %d of %d pages at %#x", mapped, count, vaddr)
	}

	return nil
}

// MapPhysicalRange maps [paddr, paddr+length) at the region's offset. Unless allowRemap is set
// it fails with memutils.ErrAlreadyExists if any target page is already mapped.
func (r *Region) MapPhysicalRange(offset, length uint64, paddr memutils.Paddr, allowRemap bool) error {
	r.checkMagic()
	r.aspace.logger.Debug("Region::MapPhysicalRange",
		slog.String("Name", r.name),
		slog.Uint64("Offset", offset),
		slog.Uint64("Length", length),
		slog.Uint64("Paddr", uint64(paddr)),
		slog.Bool("AllowRemap", allowRemap))

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	if r.destroyed {
		return cerrors.Wrapf(memutils.ErrNotFound, "region %q has been destroyed", r.name)
	}

	return r.mapPhysicalRangeLocked(offset, length, paddr, allowRemap)
}

func (r *Region) unmapLocked() (int, error) {
	r.aspace.mutex.AssertHeld()

	if r.destroyed {
		return 0, nil
	}

	return r.aspace.pageTable.Unmap(r.base, r.pageCount())
}

// Unmap removes every translation in the region's range and reports how many there were. The
// backing object keeps its pages.
func (r *Region) Unmap() (int, error) {
	r.checkMagic()

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	return r.unmapLocked()
}

// Destroy gives up the backing object. The region must already have been unmapped and
// removed from its address space; the struct lives on until its last reference is released.
func (r *Region) Destroy() {
	r.checkMagic()

	r.aspace.mutex.Lock()
	object := r.object
	r.object = nil
	r.objectOffset = 0
	r.destroyed = true
	r.aspace.mutex.Unlock()

	r.aspace.logger.Debug("Region::Destroy", slog.String("Name", r.name))

	if object != nil {
		object.Release()
	}
}

// Protect changes the region's mapping flags and rewrites its existing translations
func (r *Region) Protect(mmuFlags arch.MMUFlags) error {
	r.checkMagic()
	r.aspace.logger.Debug("Region::Protect", slog.String("Name", r.name), slog.String("MMUFlags", mmuFlags.String()))

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	if r.destroyed {
		return cerrors.Wrapf(memutils.ErrNotFound, "region %q has been destroyed", r.name)
	}

	err := r.aspace.pageTable.Protect(r.base, r.pageCount(), mmuFlags)
	if err != nil {
		return err
	}

	r.mmuFlags = mmuFlags
	return nil
}

func (r *Region) checkFaultAccess(flags FaultFlags) error {
	if flags&FaultFlagWrite != 0 && r.mmuFlags.IsReadOnly() {
		return cerrors.Wrapf(memutils.ErrAccessDenied, "write fault in read-only region %q", r.name)
	}
	if flags&FaultFlagUser != 0 && !r.mmuFlags.IsUser() {
		return cerrors.Wrapf(memutils.ErrAccessDenied, "user fault in kernel region %q", r.name)
	}
	if flags&FaultFlagInstruction != 0 && r.mmuFlags.IsNoExecute() {
		return cerrors.Wrapf(memutils.ErrAccessDenied, "instruction fault in no-execute region %q", r.name)
	}
	return nil
}

func (r *Region) pageFaultLocked(vaddr memutils.Vaddr, flags FaultFlags) error {
	r.aspace.mutex.AssertHeld()
	memutils.DebugAssert(r.contains(vaddr), "fault address %#x is outside region %q", vaddr, r.name)

	if r.object == nil {
		return cerrors.Wrapf(memutils.ErrNotFound, "region %q has no backing object", r.name)
	}
	if err := r.checkFaultAccess(flags); err != nil {
		return err
	}

	pageVaddr := memutils.AlignDown(vaddr, memutils.Vaddr(memutils.PageSize))
	pageTable := r.aspace.pageTable

	// another thread may have resolved the same fault while we waited for the lock
	if _, _, err := pageTable.Query(pageVaddr); err == nil {
		return nil
	}

	offset := uint64(pageVaddr-r.base) + r.objectOffset
	page, err := r.object.FaultPage(offset, flags)
	if err != nil {
		return err
	}

	_, err = pageTable.Map(pageVaddr, page.Paddr(), 1, r.mmuFlags)
	if err != nil {
		return cerrors.Wrapf(err, "failed to map faulted page at %#x", pageVaddr)
	}

	return nil
}

// PageFault resolves a fault at vaddr by faulting in the backing page and mapping it. It
// fails with memutils.ErrNotFound if the region has no backing object and with
// memutils.ErrAccessDenied if the access is not permitted by the region's flags.
func (r *Region) PageFault(vaddr memutils.Vaddr, flags FaultFlags) error {
	r.checkMagic()

	r.aspace.mutex.Lock()
	defer r.aspace.mutex.Unlock()

	if !r.contains(vaddr) {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "%#x is outside region %q", vaddr, r.name)
	}

	return r.pageFaultLocked(vaddr, flags)
}
