package vm

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	"github.com/punktos/vmm/usercopy"
)

// aspaceCopier performs user copies against an address space by translating through its page
// table, faulting pages in with user intent when they are not yet mapped.
type aspaceCopier struct {
	aspace  *AddressSpace
	physMap pmm.PhysMap
	layout  arch.Layout
}

var _ usercopy.Copier = &aspaceCopier{}

// UserCopier returns a usercopy.Copier that reads and writes this address space's user
// mappings. It requires the VMM to have a pmm.PhysMap.
func (a *AddressSpace) UserCopier() (usercopy.Copier, error) {
	a.checkMagic()

	if a.vmm.physMap == nil {
		return nil, cerrors.Wrap(memutils.ErrNotImplemented, "user copies require a physical memory map")
	}

	return &aspaceCopier{
		aspace:  a,
		physMap: a.vmm.physMap,
		layout:  a.vmm.layout,
	}, nil
}

func (c *aspaceCopier) IsUserAddress(vaddr memutils.Vaddr) bool {
	return c.layout.IsUserAddress(vaddr) && c.aspace.isInside(vaddr)
}

func (c *aspaceCopier) translate(vaddr memutils.Vaddr, write bool) (memutils.Paddr, error) {
	pageTable := c.aspace.pageTable

	paddr, mmuFlags, err := pageTable.Query(vaddr)
	if err != nil {
		flags := FaultFlagUser | FaultFlagNotPresent
		if write {
			flags |= FaultFlagWrite
		}

		err = c.aspace.PageFault(vaddr, flags)
		if err != nil {
			return 0, err
		}

		paddr, mmuFlags, err = pageTable.Query(vaddr)
		if err != nil {
			return 0, err
		}
	}

	if !mmuFlags.IsUser() {
		return 0, cerrors.Wrapf(memutils.ErrAccessDenied, "%#x is not mapped for user access", vaddr)
	}
	if write && mmuFlags.IsReadOnly() {
		return 0, cerrors.Wrapf(memutils.ErrAccessDenied, "%#x is mapped read-only", vaddr)
	}

	return paddr, nil
}

func (c *aspaceCopier) walk(vaddr memutils.Vaddr, length int, write bool, copyFn func(mem []byte, done int)) error {
	if !usercopy.CanAccess(c.layout, vaddr, uint64(length)) || !c.aspace.isRangeInside(vaddr, uint64(length)) {
		return cerrors.Wrapf(memutils.ErrInvalidArgs, "[%#x, +%#x) is not a user range", vaddr, length)
	}

	done := 0
	for done < length {
		pageOffset := int(uint64(vaddr) & (memutils.PageSize - 1))
		chunk := min(int(memutils.PageSize)-pageOffset, length-done)

		paddr, err := c.translate(vaddr, write)
		if err != nil {
			return err
		}

		mem, err := c.physMap.PhysBytes(paddr, chunk)
		if err != nil {
			return err
		}

		copyFn(mem, done)

		vaddr += memutils.Vaddr(chunk)
		done += chunk
	}

	return nil
}

func (c *aspaceCopier) CopyToUser(dst memutils.Vaddr, src []byte) error {
	return c.walk(dst, len(src), true, func(mem []byte, done int) {
		copy(mem, src[done:])
	})
}

func (c *aspaceCopier) CopyFromUser(dst []byte, src memutils.Vaddr) error {
	return c.walk(src, len(dst), false, func(mem []byte, done int) {
		copy(dst[done:], mem)
	})
}
