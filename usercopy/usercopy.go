// Package usercopy defines how the kernel moves bytes across the user/kernel boundary.
package usercopy

import (
	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/memutils"
)

//go:generate mockgen -destination mocks/mocks.go -package mock_usercopy github.com/punktos/vmm/usercopy Copier

// Copier copies between kernel buffers and a user address space. Implementations return
// memutils.ErrInvalidArgs for ranges that are not entirely user addresses.
type Copier interface {
	IsUserAddress(vaddr memutils.Vaddr) bool
	CopyToUser(dst memutils.Vaddr, src []byte) error
	CopyFromUser(dst []byte, src memutils.Vaddr) error
}

// CanAccess reports whether [base, base+length) may be touched on behalf of user code: the
// range must not wrap and both ends must be user addresses.
func CanAccess(layout arch.Layout, base memutils.Vaddr, length uint64) bool {
	if length == 0 {
		return layout.IsUserAddress(base)
	}

	last := base + memutils.Vaddr(length-1)
	if last < base {
		return false
	}

	return layout.IsUserAddress(base) && layout.IsUserAddress(last)
}
