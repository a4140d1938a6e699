package vm

import (
	"context"
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/internal/utils"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	"github.com/punktos/vmm/thread"
	"golang.org/x/exp/slog"
)

const aspaceMagic uint32 = 0x564d4153 // VMAS

const maxNameLength = 31

// ReserveSpaceMMUFlags are applied to a reserved range that has no existing translation
const ReserveSpaceMMUFlags = arch.MMUFlagCached | arch.MMUFlagPermReadOnly | arch.MMUFlagPermNoExecute

// MappingInfo describes where and how an address space should place a new region
type MappingInfo struct {
	Name string
	// Vaddr is the address to place the region at. It is only consulted when Flags contains
	// FlagVallocSpecific, and must then be page aligned.
	Vaddr memutils.Vaddr
	// AlignPow2 is log2 of the required alignment. Anything below a page is treated as a page.
	AlignPow2 uint8
	Flags     Flags
	MMUFlags  arch.MMUFlags
}

// AddressSpace is a virtual address range with its own page tables and an ordered,
// non-overlapping collection of regions. It is created by VMM.CreateAspace, torn down by
// Destroy, and released with Release.
type AddressSpace struct {
	refs   memutils.RefCount
	magic  uint32
	id     uint64
	logger *slog.Logger
	vmm    *VMM

	base       memutils.Vaddr
	size       uint64
	aspaceType AspaceType

	mutex      utils.Mutex
	name       string
	pageTable  arch.PageTable
	regions    regionList
	destroying bool
}

func newAddressSpace(vmm *VMM, id uint64, base memutils.Vaddr, size uint64, aspaceType AspaceType, name string) *AddressSpace {
	if size == 0 || uint64(base)+size-1 < uint64(base) {
		panic(fmt.Sprintf("invalid address space range [%#x, +%#x)", base, size))
	}

	aspace := &AddressSpace{
		magic:      aspaceMagic,
		id:         id,
		logger:     vmm.logger,
		vmm:        vmm,
		base:       base,
		size:       size,
		aspaceType: aspaceType,
	}
	aspace.refs.Init()
	aspace.name = truncateName(name)

	return aspace
}

func truncateName(name string) string {
	if name == "" {
		return "unnamed"
	}
	if len(name) > maxNameLength {
		return name[:maxNameLength]
	}
	return name
}

func (a *AddressSpace) init() error {
	a.checkMagic()
	a.logger.Debug("AddressSpace::init", slog.String("Name", a.name), slog.String("Type", a.aspaceType.String()))

	var flags arch.AspaceFlags
	if a.aspaceType == AspaceTypeKernel {
		flags |= arch.AspaceFlagKernel
	}

	pageTable, err := a.vmm.mmu.InitAspace(a.base, a.size, flags)
	if err != nil {
		return cerrors.Wrapf(err, "failed to initialize page tables for address space %q", a.name)
	}

	a.pageTable = pageTable
	return nil
}

func (a *AddressSpace) checkMagic() {
	if a.magic != aspaceMagic {
		panic(fmt.Sprintf("use of a destroyed address space: magic %#x", a.magic))
	}
}

func (a *AddressSpace) ID() uint64 {
	a.checkMagic()
	return a.id
}

func (a *AddressSpace) Base() memutils.Vaddr {
	a.checkMagic()
	return a.base
}

func (a *AddressSpace) Size() uint64 {
	a.checkMagic()
	return a.size
}

func (a *AddressSpace) Type() AspaceType {
	a.checkMagic()
	return a.aspaceType
}

func (a *AddressSpace) PageTable() arch.PageTable {
	a.checkMagic()
	return a.pageTable
}

func (a *AddressSpace) Name() string {
	a.checkMagic()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.name
}

// Rename sets the address space's name. Empty names become "unnamed" and long names are
// truncated.
func (a *AddressSpace) Rename(name string) {
	a.checkMagic()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.name = truncateName(name)
}

func (a *AddressSpace) RegionCount() int {
	a.checkMagic()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.regions.Len()
}

// IsKernel reports whether this is the VMM's singleton kernel address space
func (a *AddressSpace) IsKernel() bool {
	a.checkMagic()
	return a.vmm.kernelAspace == a
}

func (a *AddressSpace) isInside(vaddr memutils.Vaddr) bool {
	return vaddr >= a.base && uint64(vaddr-a.base) <= a.size-1
}

func (a *AddressSpace) isRangeInside(base memutils.Vaddr, size uint64) bool {
	if !a.isInside(base) {
		return false
	}
	if size == 0 {
		return true
	}

	last := base + memutils.Vaddr(size-1)
	if last < base {
		return false
	}

	return uint64(last-a.base) <= a.size-1
}

// trimToAspace shortens size so that [vaddr, vaddr+size) ends inside the address space
func (a *AddressSpace) trimToAspace(vaddr memutils.Vaddr, size uint64) uint64 {
	memutils.DebugAssert(a.isInside(vaddr), "%#x is outside address space %q", vaddr, a.name)

	offset := uint64(vaddr - a.base)
	if size > a.size-offset {
		size = a.size - offset
	}
	return size
}

// Acquire adds a reference to the address space
func (a *AddressSpace) Acquire() {
	a.checkMagic()
	a.refs.Acquire()
}

// Release drops a reference and reports whether it was the last one. An address space whose
// last reference drops before it was destroyed logs its remaining regions and is destroyed.
func (a *AddressSpace) Release() bool {
	if !a.refs.Release() {
		return false
	}

	if a.magic == aspaceMagic {
		a.logUnreleasedRegions()
		if err := a.Destroy(); err != nil {
			a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED REGION] failed to destroy address space on release",
				slog.String("aspace", a.name),
				slog.Any("error", err))
		}
	}

	return true
}

func (a *AddressSpace) logUnreleasedRegions() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.regions.Iter(func(region *Region) bool {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED REGION] region still mapped at address space release",
			slog.String("aspace", a.name),
			slog.String("name", region.name),
			slog.String("base", fmt.Sprintf("%#x", region.base)),
			slog.Uint64("size", region.size),
		)
		return false
	})
}

func (a *AddressSpace) addRegionLocked(region *Region) error {
	a.mutex.AssertHeld()

	if a.destroying {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "address space %q is being destroyed", a.name)
	}
	if region.destroyed {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "region %q has been destroyed", region.name)
	}
	if region.size == 0 || !a.isRangeInside(region.base, region.size) {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "region [%#x, +%#x) does not fit in address space %q", region.base, region.size, a.name)
	}

	if !a.regions.Add(region) {
		return cerrors.Wrapf(memutils.ErrNoMemory, "region [%#x, +%#x) overlaps an existing region", region.base, region.size)
	}
	region.Acquire()

	return nil
}

// NewRegion creates an unbacked region for this address space without inserting it. The caller
// owns the returned reference; AddRegion links the region in at its base address.
func (a *AddressSpace) NewRegion(base memutils.Vaddr, size uint64, mmuFlags arch.MMUFlags, name string) (*Region, error) {
	a.checkMagic()

	if size == 0 || !memutils.IsPageAligned(size) || !memutils.IsPageAligned(base) {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "region [%#x, +%#x) is not page aligned", base, size)
	}

	return newRegion(a, base, size, mmuFlags, name), nil
}

// AddRegion inserts a region created for this address space at its own base address. It fails
// with memutils.ErrOutOfRange if the region does not fit inside the address space, with
// memutils.ErrNoMemory if it overlaps an existing region and with memutils.ErrInvalidArgs if
// the region has been destroyed.
func (a *AddressSpace) AddRegion(region *Region) error {
	a.checkMagic()
	region.checkMagic()
	if region.aspace != a {
		panic("attempting to add a region to an address space it was not created for")
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	err := a.addRegionLocked(region)
	if err != nil {
		return err
	}

	memutils.DebugValidate(validateFunc(a.validateLocked))
	return nil
}

// checkGap tries to place a mapping in the gap between prev and next, either of which may be
// nil for the start or end of the address space. It reports the chosen address when found is
// true and whether the search should stop.
func (a *AddressSpace) checkGap(prev, next *Region, align, size uint64, mmuFlags arch.MMUFlags) (spot memutils.Vaddr, found bool, stop bool) {
	var gapBegin, gapEnd memutils.Vaddr

	if prev != nil {
		gapBegin = prev.base + memutils.Vaddr(prev.size)
	} else {
		gapBegin = a.base
	}

	if next != nil {
		if gapBegin == next.base {
			return 0, false, false
		}
		gapEnd = next.base - 1
	} else {
		if gapBegin == a.base+memutils.Vaddr(a.size) {
			return 0, false, true
		}
		gapEnd = a.base + memutils.Vaddr(a.size-1)
	}

	prevFlags := arch.MMUFlagInvalid
	if prev != nil {
		prevFlags = prev.mmuFlags
	}
	nextFlags := arch.MMUFlagInvalid
	if next != nil {
		nextFlags = next.mmuFlags
	}

	spot = a.pageTable.PickSpot(gapBegin, prevFlags, gapEnd, nextFlags, align, size, mmuFlags)
	if spot < gapBegin {
		// the candidate wrapped around the top of the address space
		return 0, false, true
	}

	if spot < gapEnd && uint64(gapEnd-spot) >= size-1 {
		return spot, true, true
	}

	return 0, false, false
}

func (a *AddressSpace) allocSpotLocked(size uint64, alignPow2 uint8, mmuFlags arch.MMUFlags) (memutils.Vaddr, *Region, error) {
	a.mutex.AssertHeld()
	memutils.DebugAssert(size > 0 && memutils.IsPageAligned(size), "invalid spot size %#x", size)

	if alignPow2 >= 64 {
		return 0, nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "alignment 1<<%d is too large", alignPow2)
	}
	align := max(uint64(1)<<alignPow2, memutils.PageSize)
	memutils.DebugCheckPow2(align, "align")

	regions := a.regions.regions
	for i := -1; i < len(regions); i++ {
		var prev, next *Region
		if i >= 0 {
			prev = regions[i]
		}
		if i+1 < len(regions) {
			next = regions[i+1]
		}

		spot, found, stop := a.checkGap(prev, next, align, size, mmuFlags)
		if found {
			return spot, prev, nil
		}
		if stop {
			break
		}
	}

	return 0, nil, cerrors.Wrapf(memutils.ErrNoMemory, "no gap of %#x bytes aligned to %#x in address space %q", size, align, a.name)
}

// AllocSpot finds the lowest address where a mapping of size bytes with the given alignment
// and flags would fit, without reserving it.
func (a *AddressSpace) AllocSpot(size uint64, alignPow2 uint8, mmuFlags arch.MMUFlags) (memutils.Vaddr, error) {
	a.checkMagic()

	size = memutils.RoundUpPage(size)
	if size == 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "zero sized spot")
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	spot, _, err := a.allocSpotLocked(size, alignPow2, mmuFlags)
	return spot, err
}

// allocRegionLocked creates a region and links it into the region list. The returned region
// holds one reference on behalf of the caller.
func (a *AddressSpace) allocRegionLocked(name string, size uint64, vaddr memutils.Vaddr, alignPow2 uint8, flags Flags, mmuFlags arch.MMUFlags) (*Region, error) {
	a.mutex.AssertHeld()
	if a.destroying {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "address space %q is being destroyed", a.name)
	}
	a.logger.Debug("AddressSpace::allocRegion",
		slog.String("Name", name),
		slog.Uint64("Size", size),
		slog.String("Vaddr", fmt.Sprintf("%#x", vaddr)),
		slog.String("Flags", flags.String()))

	region := newRegion(a, vaddr, size, mmuFlags, name)

	if flags&FlagVallocSpecific != 0 {
		memutils.DebugAssert(memutils.IsPageAligned(vaddr), "specific vaddr %#x is not page aligned", vaddr)

		err := a.addRegionLocked(region)
		if err != nil {
			region.Release()
			return nil, err
		}
	} else {
		spot, prev, err := a.allocSpotLocked(size, alignPow2, mmuFlags)
		if err != nil {
			region.Release()
			return nil, err
		}

		region.base = spot
		region.Acquire()
		a.regions.InsertAfter(prev, region)
	}

	memutils.DebugValidate(validateFunc(a.validateLocked))
	return region, nil
}

func checkMappingInfo(info MappingInfo) error {
	if info.Flags&FlagVallocSpecific != 0 && !memutils.IsPageAligned(info.Vaddr) {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "specific vaddr %#x is not page aligned", info.Vaddr)
	}
	return nil
}

// AllocRegion creates an unbacked region of size bytes, either at info.Vaddr when
// FlagVallocSpecific is set or in the first gap that fits. The caller owns a reference to the
// returned region and must Release it.
func (a *AddressSpace) AllocRegion(size uint64, info MappingInfo) (*Region, error) {
	a.checkMagic()

	size = memutils.RoundUpPage(size)
	if size == 0 {
		return nil, cerrors.Wrap(memutils.ErrInvalidArgs, "zero sized region")
	}
	if err := checkMappingInfo(info); err != nil {
		return nil, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.allocRegionLocked(info.Name, size, info.Vaddr, info.AlignPow2, info.Flags, info.MMUFlags)
}

// FindRegion returns the region containing vaddr with a reference the caller must Release, or
// nil if there is none
func (a *AddressSpace) FindRegion(vaddr memutils.Vaddr) *Region {
	a.checkMagic()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	region := a.regions.Find(vaddr)
	if region != nil {
		region.Acquire()
	}
	return region
}

// MapObject maps size bytes of object starting at offset into a new region and returns the
// region's base address. With FlagCommit the whole range is faulted in and mapped before
// returning. If committing fails the region is left in place and its address is returned
// with the error so the caller can free it.
func (a *AddressSpace) MapObject(object *MemoryObject, offset uint64, size uint64, info MappingInfo) (memutils.Vaddr, error) {
	a.checkMagic()
	a.logger.Debug("AddressSpace::MapObject",
		slog.String("Name", info.Name),
		slog.Uint64("Offset", offset),
		slog.Uint64("Size", size),
		slog.String("Flags", info.Flags.String()),
		slog.String("MMUFlags", info.MMUFlags.String()))

	size = memutils.RoundUpPage(size)
	if size == 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "zero sized mapping")
	}
	if object == nil {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "a memory object is required")
	}
	if !memutils.IsPageAligned(offset) {
		return 0, cerrors.Wrapf(memutils.ErrInvalidArgs, "object offset %#x is not page aligned", offset)
	}
	if err := checkMappingInfo(info); err != nil {
		return 0, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	region, err := a.allocRegionLocked(info.Name, size, info.Vaddr, info.AlignPow2, info.Flags, info.MMUFlags)
	if err != nil {
		return 0, err
	}
	defer region.Release()

	err = region.setObjectLocked(object, offset)
	if err != nil {
		return region.base, err
	}

	if info.Flags&FlagCommit != 0 {
		err = region.mapRangeLocked(0, size, true)
		if err != nil {
			return region.base, err
		}
	}

	return region.base, nil
}

// ReserveSpace marks [vaddr, vaddr+size) as in use with an unbacked region, typically for
// ranges mapped before the VM came up. The region keeps the flags of any existing translation
// at vaddr, or ReserveSpaceMMUFlags if there is none. A zero size is a no-op.
func (a *AddressSpace) ReserveSpace(name string, size uint64, vaddr memutils.Vaddr) error {
	a.checkMagic()
	a.logger.Debug("AddressSpace::ReserveSpace",
		slog.String("Name", name),
		slog.Uint64("Size", size),
		slog.String("Vaddr", fmt.Sprintf("%#x", vaddr)))

	memutils.DebugAssert(memutils.IsPageAligned(size), "reserved size %#x is not page aligned", size)

	size = memutils.RoundUpPage(size)
	if size == 0 {
		return nil
	}
	if !memutils.IsPageAligned(vaddr) {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "reserved vaddr %#x is not page aligned", vaddr)
	}
	if !a.isInside(vaddr) {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "reserved vaddr %#x is outside address space %q", vaddr, a.name)
	}

	size = a.trimToAspace(vaddr, size)

	a.mutex.Lock()
	defer a.mutex.Unlock()

	_, mmuFlags, err := a.pageTable.Query(vaddr)
	if err != nil {
		mmuFlags = ReserveSpaceMMUFlags
	}

	region, err := a.allocRegionLocked(name, size, vaddr, 0, FlagVallocSpecific, mmuFlags)
	if err != nil {
		return err
	}
	region.Release()

	return nil
}

// AllocPhysical maps the physical range [paddr, paddr+size) into a new region and returns its
// base address. FlagCommit is rejected since there is nothing to commit. A zero size is a
// no-op. If mapping fails the region is left in place and its address is returned with the
// error so the caller can free it.
func (a *AddressSpace) AllocPhysical(size uint64, paddr memutils.Paddr, info MappingInfo) (memutils.Vaddr, error) {
	a.checkMagic()
	a.logger.Debug("AddressSpace::AllocPhysical",
		slog.String("Name", info.Name),
		slog.Uint64("Size", size),
		slog.Uint64("Paddr", uint64(paddr)),
		slog.String("Flags", info.Flags.String()),
		slog.String("MMUFlags", info.MMUFlags.String()))

	memutils.DebugAssert(memutils.IsPageAligned(paddr), "paddr %#x is not page aligned", paddr)

	if size == 0 {
		return 0, nil
	}
	if !memutils.IsPageAligned(paddr) {
		return 0, cerrors.Wrapf(memutils.ErrInvalidArgs, "paddr %#x is not page aligned", paddr)
	}

	size = memutils.RoundUpPage(size)
	if size == 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "physical range size overflows")
	}
	if info.Flags&FlagCommit != 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "FlagCommit cannot be used with a physical mapping")
	}
	if err := checkMappingInfo(info); err != nil {
		return 0, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	region, err := a.allocRegionLocked(info.Name, size, info.Vaddr, info.AlignPow2, info.Flags, info.MMUFlags)
	if err != nil {
		return 0, err
	}
	defer region.Release()

	err = region.mapPhysicalRangeLocked(0, size, paddr, false)
	if err != nil {
		return region.base, err
	}

	return region.base, nil
}

// AllocContiguous backs a new region with a physically contiguous, fully committed memory
// object aligned to 1<<info.AlignPow2. FlagCommit is required.
func (a *AddressSpace) AllocContiguous(size uint64, info MappingInfo) (memutils.Vaddr, error) {
	a.checkMagic()
	a.logger.Debug("AddressSpace::AllocContiguous",
		slog.String("Name", info.Name),
		slog.Uint64("Size", size),
		slog.Int("AlignPow2", int(info.AlignPow2)),
		slog.String("Flags", info.Flags.String()))

	size = memutils.RoundUpPage(size)
	if size == 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "zero sized allocation")
	}
	if info.Flags&FlagCommit == 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "contiguous allocations require FlagCommit")
	}

	object, err := NewMemoryObject(a.logger, a.vmm.allocator, pmm.AllocFlagAny, size)
	if err != nil {
		return 0, err
	}
	defer object.Release()

	committed, err := object.CommitRangeContiguous(0, size, info.AlignPow2)
	if err != nil {
		return 0, err
	}
	if committed < size {
		return 0, cerrors.Wrapf(memutils.ErrNoMemory, "committed %#x of %#x bytes", committed, size)
	}

	return a.MapObject(object, 0, size, info)
}

// Alloc backs a new region with a fresh memory object. With FlagCommit the object is fully
// populated and mapped up front; otherwise pages arrive on fault.
func (a *AddressSpace) Alloc(size uint64, info MappingInfo) (memutils.Vaddr, error) {
	a.checkMagic()
	a.logger.Debug("AddressSpace::Alloc",
		slog.String("Name", info.Name),
		slog.Uint64("Size", size),
		slog.String("Flags", info.Flags.String()))

	size = memutils.RoundUpPage(size)
	if size == 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidArgs, "zero sized allocation")
	}

	object, err := NewMemoryObject(a.logger, a.vmm.allocator, pmm.AllocFlagAny, size)
	if err != nil {
		return 0, err
	}
	defer object.Release()

	if info.Flags&FlagCommit != 0 {
		committed, err := object.CommitRange(0, size)
		if err != nil {
			return 0, err
		}
		if committed < size {
			return 0, cerrors.Wrapf(memutils.ErrNoMemory, "committed %#x of %#x bytes", committed, size)
		}
	}

	return a.MapObject(object, 0, size, info)
}

// FreeRegion unmaps and destroys the region containing vaddr
func (a *AddressSpace) FreeRegion(vaddr memutils.Vaddr) error {
	a.checkMagic()
	a.logger.Debug("AddressSpace::FreeRegion", slog.String("Vaddr", fmt.Sprintf("%#x", vaddr)))

	a.mutex.Lock()

	region := a.regions.Find(vaddr)
	if region == nil {
		a.mutex.Unlock()
		return cerrors.Wrapf(memutils.ErrNotFound, "no region contains %#x", vaddr)
	}

	a.regions.Remove(region)
	_, err := region.unmapLocked()

	a.mutex.Unlock()

	region.Destroy()
	region.Release()

	if err != nil {
		return cerrors.Wrapf(err, "failed to unmap region %q", region.name)
	}
	return nil
}

// PageFault resolves a fault at vaddr through the region containing it. The address space
// lock is held for the whole fault, so faults serialize with every other operation on this
// address space.
func (a *AddressSpace) PageFault(vaddr memutils.Vaddr, flags FaultFlags) error {
	a.checkMagic()
	a.logger.Debug("AddressSpace::PageFault", slog.String("Vaddr", fmt.Sprintf("%#x", vaddr)), slog.String("Flags", flags.String()))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	region := a.regions.Find(vaddr)
	if region == nil {
		return cerrors.Wrapf(memutils.ErrNotFound, "no region contains %#x", vaddr)
	}

	return region.pageFaultLocked(vaddr, flags)
}

// Destroy unmaps and destroys every region, then releases the page tables and removes the
// address space from the VMM. The address space is unusable afterwards except for Release.
// The kernel address space cannot be destroyed.
func (a *AddressSpace) Destroy() error {
	a.checkMagic()
	if a.IsKernel() {
		return cerrors.Wrap(memutils.ErrInvalidArgs, "the kernel address space cannot be destroyed")
	}

	a.mutex.Lock()
	if a.destroying {
		a.mutex.Unlock()
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "address space %q is already being destroyed", a.name)
	}
	a.destroying = true
	a.logger.Debug("AddressSpace::Destroy", slog.String("Name", a.name), slog.Int("RegionCount", a.regions.Len()))

	var unmapErr error
	for region := a.regions.PopFront(); region != nil; region = a.regions.PopFront() {
		_, err := region.unmapLocked()
		if err != nil && unmapErr == nil {
			unmapErr = cerrors.Wrapf(err, "failed to unmap region %q", region.name)
		}

		a.mutex.Unlock()

		region.Destroy()
		region.Release()

		a.mutex.Lock()
	}
	a.mutex.Unlock()

	a.vmm.aspaces.Unregister(a)

	err := a.pageTable.Destroy()
	a.magic = 0

	if unmapErr != nil {
		return unmapErr
	}
	return err
}

// AttachToThread makes this the address space t executes in. t must not already have an
// address space and must not be running.
func (a *AddressSpace) AttachToThread(t *thread.Thread) {
	a.checkMagic()
	if t == nil {
		panic("attempting to attach an address space to a nil thread")
	}

	t.AttachAspace(a)
}

func (a *AddressSpace) Validate() error {
	a.checkMagic()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.validateLocked()
}

func (a *AddressSpace) validateLocked() error {
	var prev *Region
	for _, region := range a.regions.regions {
		if region.aspace != a {
			return cerrors.Newf("region %q belongs to a different address space", region.name)
		}
		if region.magic != regionMagic {
			return cerrors.Newf("region at %#x has been released", region.base)
		}
		if region.size == 0 || !memutils.IsPageAligned(region.size) || !memutils.IsPageAligned(region.base) {
			return cerrors.Newf("region %q [%#x, +%#x) is not page aligned", region.name, region.base, region.size)
		}
		if !a.isRangeInside(region.base, region.size) {
			return cerrors.Newf("region %q [%#x, +%#x) lies outside the address space", region.name, region.base, region.size)
		}
		if prev != nil && prev.end() >= region.base {
			return cerrors.Newf("region %q at %#x overlaps or precedes region %q ending at %#x", region.name, region.base, prev.name, prev.end())
		}
		prev = region
	}

	return nil
}
