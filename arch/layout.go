package arch

import (
	"github.com/pkg/errors"
	"github.com/punktos/vmm/memutils"
)

// Layout describes where the kernel and user address spaces live
type Layout struct {
	KernelBase memutils.Vaddr
	KernelSize uint64
	UserBase   memutils.Vaddr
	UserSize   uint64
}

// DefaultLayout is the x86-64 layout: the kernel occupies the top 512GiB and user space ends
// one page below 2^47
var DefaultLayout = Layout{
	KernelBase: 0xffff_ff80_0000_0000,
	KernelSize: 512 << 30,
	UserBase:   0x0100_0000,
	UserSize:   0x7fff_feff_f000,
}

func inRange(base memutils.Vaddr, size uint64, vaddr memutils.Vaddr) bool {
	return vaddr >= base && uint64(vaddr-base) <= size-1
}

func (l Layout) IsUserAddress(vaddr memutils.Vaddr) bool {
	return inRange(l.UserBase, l.UserSize, vaddr)
}

func (l Layout) IsKernelAddress(vaddr memutils.Vaddr) bool {
	return inRange(l.KernelBase, l.KernelSize, vaddr)
}

// UserEnd returns the first address past user space. For a user range at the top of the
// address space this is zero.
func (l Layout) UserEnd() memutils.Vaddr {
	return l.UserBase + memutils.Vaddr(l.UserSize)
}

func (l Layout) Validate() error {
	if l.KernelSize == 0 || l.UserSize == 0 {
		return errors.New("layout ranges must have a nonzero size")
	}
	if !memutils.IsPageAligned(l.KernelBase) || !memutils.IsPageAligned(l.KernelSize) {
		return errors.Errorf("kernel range [%#x, +%#x) is not page aligned", l.KernelBase, l.KernelSize)
	}
	if !memutils.IsPageAligned(l.UserBase) || !memutils.IsPageAligned(l.UserSize) {
		return errors.Errorf("user range [%#x, +%#x) is not page aligned", l.UserBase, l.UserSize)
	}
	if uint64(l.KernelBase)+l.KernelSize-1 < uint64(l.KernelBase) {
		return errors.Errorf("kernel range [%#x, +%#x) wraps the address space", l.KernelBase, l.KernelSize)
	}
	if uint64(l.UserBase)+l.UserSize-1 < uint64(l.UserBase) {
		return errors.Errorf("user range [%#x, +%#x) wraps the address space", l.UserBase, l.UserSize)
	}
	if l.IsUserAddress(l.KernelBase) || l.IsKernelAddress(l.UserBase) {
		return errors.New("kernel and user ranges overlap")
	}

	return nil
}
