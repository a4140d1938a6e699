package vm

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/internal/utils"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	"github.com/punktos/vmm/usercopy"
	"golang.org/x/exp/slog"
)

const objectMagic uint32 = 0x564d4f5f // VMO_

// MaxObjectSize bounds memory objects so that every page index fits in an int32
const MaxObjectSize uint64 = 1 << (31 + memutils.PageShift)

// MemoryObject is a page-granular container of physical pages, independent of any mapping.
// Slots are indexed by offset / memutils.PageSize and are populated lazily by FaultPage or
// eagerly by CommitRange. Every resident page belongs exclusively to this object until the
// last reference is released, at which point the pages go back to the allocator.
type MemoryObject struct {
	refs   memutils.RefCount
	magic  uint32
	logger *slog.Logger

	allocator  pmm.Allocator
	allocFlags pmm.AllocFlags

	mutex     utils.Mutex
	size      uint64
	pageArray []*pmm.Page
	pageList  []*pmm.Page
}

// NewMemoryObject creates an object of the given size holding no pages. The returned object
// holds one reference, owned by the caller.
func NewMemoryObject(logger *slog.Logger, allocator pmm.Allocator, allocFlags pmm.AllocFlags, size uint64) (*MemoryObject, error) {
	if allocator == nil {
		return nil, cerrors.Wrap(memutils.ErrInvalidArgs, "a page allocator is required")
	}
	if size >= MaxObjectSize {
		return nil, cerrors.Wrapf(memutils.ErrTooBig, "object size %#x exceeds the maximum of %#x", size, MaxObjectSize)
	}

	object := &MemoryObject{
		magic:      objectMagic,
		logger:     logger,
		allocator:  allocator,
		allocFlags: allocFlags,
	}
	object.refs.Init()

	err := object.Resize(size)
	if err != nil {
		return nil, err
	}

	return object, nil
}

func (o *MemoryObject) checkMagic() {
	if o.magic != objectMagic {
		panic(fmt.Sprintf("use of a destroyed memory object: magic %#x", o.magic))
	}
}

// Resize sets the size of an object created with size zero. Objects are sized once: resizing
// an object that already has a size fails with memutils.ErrNotImplemented.
func (o *MemoryObject) Resize(size uint64) error {
	o.checkMagic()
	o.logger.Debug("MemoryObject::Resize", slog.Uint64("Size", size))

	if size >= MaxObjectSize {
		return cerrors.Wrapf(memutils.ErrTooBig, "object size %#x exceeds the maximum of %#x", size, MaxObjectSize)
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.size != 0 {
		return cerrors.Wrap(memutils.ErrNotImplemented, "resizing an object with a nonzero size")
	}

	memutils.DebugAssert(o.pageArray == nil, "memory object of size 0 has a page array")
	o.size = size
	if size > 0 {
		o.pageArray = make([]*pmm.Page, memutils.PageCount(size))
	}

	return nil
}

func (o *MemoryObject) addPageLocked(index int, page *pmm.Page) {
	o.mutex.AssertHeld()
	memutils.DebugAssert(index < len(o.pageArray), "page index %d outside a page array of length %d", index, len(o.pageArray))
	memutils.DebugAssert(o.pageArray[index] == nil, "page index %d is already populated", index)

	page.Link()
	o.pageArray[index] = page
	o.pageList = append(o.pageList, page)
}

// AddPage installs a page the caller allocated at the slot for offset. The object takes
// ownership of the page. Inserting into a populated slot is a programming error.
func (o *MemoryObject) AddPage(page *pmm.Page, offset uint64) error {
	o.checkMagic()
	if page == nil {
		panic("attempting to add a nil page to a memory object")
	}
	o.logger.Debug("MemoryObject::AddPage", slog.Uint64("Offset", offset), slog.Uint64("Paddr", uint64(page.Paddr())))

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if offset >= o.size {
		return cerrors.Wrapf(memutils.ErrOutOfRange, "offset %#x is past the end of an object of size %#x", offset, o.size)
	}

	index := int(offset >> memutils.PageShift)
	if o.pageArray[index] != nil {
		memutils.DebugAssert(false, "double insert at page index %d", index)
		return cerrors.Wrapf(memutils.ErrAlreadyExists, "a page is already present at offset %#x", offset)
	}

	o.addPageLocked(index, page)
	return nil
}

// GetPage returns the page at offset without faulting, or nil if the offset is out of range
// or unpopulated
func (o *MemoryObject) GetPage(offset uint64) *pmm.Page {
	o.checkMagic()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if offset >= o.size {
		return nil
	}

	return o.pageArray[offset>>memutils.PageShift]
}

func (o *MemoryObject) faultPageLocked(offset uint64, flags FaultFlags) (*pmm.Page, error) {
	o.mutex.AssertHeld()

	if offset >= o.size {
		return nil, cerrors.Wrapf(memutils.ErrOutOfRange, "offset %#x is past the end of an object of size %#x", offset, o.size)
	}

	index := int(offset >> memutils.PageShift)
	if page := o.pageArray[index]; page != nil {
		return page, nil
	}

	page, err := o.allocator.AllocPage(o.allocFlags)
	if err != nil {
		return nil, cerrors.Wrapf(err, "failed to fault in offset %#x", offset)
	}
	if page == nil {
		return nil, cerrors.Wrapf(memutils.ErrNoMemory, "failed to fault in offset %#x", offset)
	}

	page.Zero()
	o.addPageLocked(index, page)

	o.logger.Debug("MemoryObject::FaultPage faulted in page",
		slog.Uint64("Offset", offset),
		slog.Uint64("Paddr", uint64(page.Paddr())),
		slog.String("Flags", flags.String()))

	return page, nil
}

// FaultPage returns the page at offset, allocating and zero-filling it first if the slot is
// empty. Concurrent faults at the same offset return the same page.
func (o *MemoryObject) FaultPage(offset uint64, flags FaultFlags) (*pmm.Page, error) {
	o.checkMagic()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.faultPageLocked(offset, flags)
}

// trimRangeLocked clamps length so that [offset, offset+length) fits inside the object
func (o *MemoryObject) trimRangeLocked(offset, length uint64) (uint64, error) {
	if offset >= o.size {
		return 0, cerrors.Wrapf(memutils.ErrOutOfRange, "offset %#x is past the end of an object of size %#x", offset, o.size)
	}

	if length > o.size-offset {
		length = o.size - offset
	}

	return length, nil
}

func pageIndexRange(offset, length uint64) (int, int) {
	first := int(offset >> memutils.PageShift)
	end := int(memutils.RoundUpPage(offset+length) >> memutils.PageShift)
	return first, end
}

// CommitRange populates every empty slot touched by [offset, offset+length), trimmed to the
// object's size. It returns the trimmed length, or zero if every slot was already populated.
// Either all of the missing pages are committed or none are.
func (o *MemoryObject) CommitRange(offset, length uint64) (uint64, error) {
	o.checkMagic()
	o.logger.Debug("MemoryObject::CommitRange", slog.Uint64("Offset", offset), slog.Uint64("Length", length))

	o.mutex.Lock()
	defer o.mutex.Unlock()

	length, err := o.trimRangeLocked(offset, length)
	if err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, nil
	}

	first, end := pageIndexRange(offset, length)

	count := 0
	for index := first; index < end; index++ {
		if o.pageArray[index] == nil {
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}

	pages, err := o.allocator.AllocPages(count, o.allocFlags)
	if err != nil || len(pages) < count {
		o.allocator.Free(pages)
		if err == nil {
			err = memutils.ErrNoMemory
		}
		return 0, cerrors.Wrapf(err, "failed to allocate enough pages (asked for %d, got %d)", count, len(pages))
	}

	next := 0
	for index := first; index < end; index++ {
		if o.pageArray[index] != nil {
			continue
		}

		page := pages[next]
		next++

		page.Zero()
		o.addPageLocked(index, page)
	}
	memutils.DebugAssert(next == len(pages), "allocated %d pages but installed %d", len(pages), next)

	memutils.DebugValidate(validateFunc(o.validateLocked))
	return length, nil
}

// CommitRangeContiguous populates [offset, offset+length), trimmed to the object's size, with
// one physically contiguous run whose first page is aligned to 1<<alignLog2. Every targeted
// slot must be empty; if any is populated the call fails with memutils.ErrNoMemory.
func (o *MemoryObject) CommitRangeContiguous(offset, length uint64, alignLog2 uint8) (uint64, error) {
	o.checkMagic()
	o.logger.Debug("MemoryObject::CommitRangeContiguous",
		slog.Uint64("Offset", offset),
		slog.Uint64("Length", length),
		slog.Int("AlignLog2", int(alignLog2)))

	o.mutex.Lock()
	defer o.mutex.Unlock()

	length, err := o.trimRangeLocked(offset, length)
	if err != nil {
		return 0, err
	}
	if length == 0 {
		return 0, nil
	}

	first, end := pageIndexRange(offset, length)
	for index := first; index < end; index++ {
		if o.pageArray[index] != nil {
			return 0, cerrors.Wrapf(memutils.ErrNoMemory, "page index %d is already populated", index)
		}
	}

	count := end - first
	pages, err := o.allocator.AllocContiguous(count, o.allocFlags, alignLog2)
	if err != nil || len(pages) < count {
		o.allocator.Free(pages)
		if err == nil {
			err = memutils.ErrNoMemory
		}
		return 0, cerrors.Wrapf(err, "failed to allocate %d contiguous pages (got %d)", count, len(pages))
	}

	for i, page := range pages {
		page.Zero()
		o.addPageLocked(first+i, page)
	}

	memutils.DebugValidate(validateFunc(o.validateLocked))
	return uint64(count) << memutils.PageShift, nil
}

// copyFunc copies between one page's kernel mapping and the caller's buffer. done is the
// number of bytes already handled by previous calls.
type copyFunc func(page []byte, done uint64) error

func (o *MemoryObject) readWriteInternal(offset, length uint64, write bool, copier copyFunc) (uint64, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	length, err := o.trimRangeLocked(offset, length)
	if err != nil {
		return 0, err
	}

	var flags FaultFlags
	if write {
		flags = FaultFlagWrite
	}

	done := uint64(0)
	for done < length {
		pageOffset := offset & (memutils.PageSize - 1)
		toCopy := min(memutils.PageSize-pageOffset, length-done)

		page, err := o.faultPageLocked(offset, flags)
		if err != nil {
			return done, err
		}

		err = copier(page.Bytes()[pageOffset:pageOffset+toCopy], done)
		if err != nil {
			return done, err
		}

		offset += toCopy
		done += toCopy
	}

	return done, nil
}

// Read copies from the object starting at offset into dst, faulting in pages as needed. A
// read that runs past the end of the object is trimmed; the returned count is what was copied.
func (o *MemoryObject) Read(dst []byte, offset uint64) (int, error) {
	o.checkMagic()

	n, err := o.readWriteInternal(offset, uint64(len(dst)), false, func(page []byte, done uint64) error {
		copy(dst[done:], page)
		return nil
	})
	return int(n), err
}

// Write copies src into the object starting at offset, faulting in pages as needed
func (o *MemoryObject) Write(src []byte, offset uint64) (int, error) {
	o.checkMagic()

	n, err := o.readWriteInternal(offset, uint64(len(src)), true, func(page []byte, done uint64) error {
		copy(page, src[done:])
		return nil
	})
	return int(n), err
}

func checkUserRange(copier usercopy.Copier, vaddr memutils.Vaddr, length uint64) error {
	if !copier.IsUserAddress(vaddr) {
		memutils.DebugAssert(false, "non user pointer %#x passed", vaddr)
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "%#x is not a user address", vaddr)
	}
	if length > 0 {
		last := vaddr + memutils.Vaddr(length-1)
		if last < vaddr || !copier.IsUserAddress(last) {
			return cerrors.Wrapf(memutils.ErrInvalidArgs, "[%#x, +%#x) is not a user range", vaddr, length)
		}
	}
	return nil
}

// readWriteUser moves data between the object and user memory one page at a time through a
// kernel bounce buffer. The object lock is never held while copier runs: a user copy can fault
// the target address space, and the address space lock must be taken before the object lock.
func (o *MemoryObject) readWriteUser(offset, length uint64, write bool, copier copyFunc) (uint64, error) {
	o.mutex.Lock()
	length, err := o.trimRangeLocked(offset, length)
	o.mutex.Unlock()
	if err != nil {
		return 0, err
	}

	bounce := make([]byte, memutils.PageSize)

	done := uint64(0)
	for done < length {
		pageOffset := offset & (memutils.PageSize - 1)
		chunk := bounce[:min(memutils.PageSize-pageOffset, length-done)]

		var n uint64
		if write {
			err = copier(chunk, done)
			if err != nil {
				return done, err
			}

			n, err = o.readWriteInternal(offset, uint64(len(chunk)), true, func(page []byte, _ uint64) error {
				copy(page, chunk)
				return nil
			})
		} else {
			n, err = o.readWriteInternal(offset, uint64(len(chunk)), false, func(page []byte, _ uint64) error {
				copy(chunk, page)
				return nil
			})
			if err == nil {
				err = copier(chunk[:n], done)
			}
		}
		if err != nil {
			return done, err
		}

		offset += n
		done += n
		if n < uint64(len(chunk)) {
			// the object shrank underneath the copy
			break
		}
	}

	return done, nil
}

// ReadUser copies length bytes starting at offset to the user address dst
func (o *MemoryObject) ReadUser(copier usercopy.Copier, dst memutils.Vaddr, offset, length uint64) (uint64, error) {
	o.checkMagic()

	if err := checkUserRange(copier, dst, length); err != nil {
		return 0, err
	}

	return o.readWriteUser(offset, length, false, func(chunk []byte, done uint64) error {
		return copier.CopyToUser(dst+memutils.Vaddr(done), chunk)
	})
}

// WriteUser copies length bytes from the user address src into the object starting at offset
func (o *MemoryObject) WriteUser(copier usercopy.Copier, src memutils.Vaddr, offset, length uint64) (uint64, error) {
	o.checkMagic()

	if err := checkUserRange(copier, src, length); err != nil {
		return 0, err
	}

	return o.readWriteUser(offset, length, true, func(chunk []byte, done uint64) error {
		return copier.CopyFromUser(chunk, src+memutils.Vaddr(done))
	})
}

// Acquire adds a reference to the object
func (o *MemoryObject) Acquire() {
	o.checkMagic()
	o.refs.Acquire()
}

// Release drops a reference. Dropping the last reference returns every resident page to the
// allocator and reports true.
func (o *MemoryObject) Release() bool {
	o.checkMagic()
	if !o.refs.Release() {
		return false
	}

	o.destroy()
	return true
}

func (o *MemoryObject) destroy() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	memutils.DebugValidate(validateFunc(o.validateLocked))

	pages := make([]*pmm.Page, 0, len(o.pageList))
	for i, page := range o.pageArray {
		if page == nil {
			continue
		}

		page.Unlink()
		pages = append(pages, page)
		o.pageArray[i] = nil
	}

	freed := o.allocator.Free(pages)
	memutils.DebugAssert(freed == len(pages), "freed %d of %d object pages", freed, len(pages))

	o.logger.Debug("MemoryObject::destroy", slog.Uint64("Size", o.size), slog.Int("FreedPages", freed))

	o.pageArray = nil
	o.pageList = nil
	o.magic = 0
}

func (o *MemoryObject) Size() uint64 {
	o.checkMagic()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.size
}

func (o *MemoryObject) AllocFlags() pmm.AllocFlags { return o.allocFlags }

// ResidentPageCount returns the number of populated slots
func (o *MemoryObject) ResidentPageCount() int {
	o.checkMagic()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	return len(o.pageList)
}

// ResidentPagesInRange counts the populated slots touched by [offset, offset+length)
func (o *MemoryObject) ResidentPagesInRange(offset, length uint64) int {
	o.checkMagic()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	length, err := o.trimRangeLocked(offset, length)
	if err != nil || length == 0 {
		return 0
	}

	count := 0
	first, end := pageIndexRange(offset, length)
	for index := first; index < end; index++ {
		if o.pageArray[index] != nil {
			count++
		}
	}
	return count
}

// RefCount returns the current reference count, for diagnostics
func (o *MemoryObject) RefCount() int32 {
	return o.refs.Count()
}

func (o *MemoryObject) AddStatistics(stats *memutils.Statistics) {
	stats.AddResidentPages(o.ResidentPageCount())
}

func (o *MemoryObject) Validate() error {
	o.checkMagic()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.validateLocked()
}

func (o *MemoryObject) validateLocked() error {
	if o.size == 0 {
		if o.pageArray != nil || len(o.pageList) != 0 {
			return cerrors.New("an object of size 0 holds pages")
		}
		return nil
	}

	if len(o.pageArray) != memutils.PageCount(o.size) {
		return cerrors.Newf("page array has %d slots for an object of size %#x", len(o.pageArray), o.size)
	}

	resident := make(map[*pmm.Page]int, len(o.pageList))
	for index, page := range o.pageArray {
		if page == nil {
			continue
		}
		if _, ok := resident[page]; ok {
			return cerrors.Newf("page %s appears in more than one slot", page)
		}
		if !page.IsLinked() {
			return cerrors.Newf("page %s at index %d is not linked", page, index)
		}
		resident[page] = index
	}

	if len(resident) != len(o.pageList) {
		return cerrors.Newf("page array holds %d pages but the page list holds %d", len(resident), len(o.pageList))
	}
	for _, page := range o.pageList {
		if _, ok := resident[page]; !ok {
			return cerrors.Newf("page %s is in the page list but not the page array", page)
		}
	}

	return nil
}
