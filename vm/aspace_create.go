package vm

import (
	"fmt"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	"golang.org/x/exp/slog"
)

// CreateOptions contains the collaborators of a VMM
type CreateOptions struct {
	// MMU builds the page tables of each address space. Required.
	MMU arch.MMU
	// PageAllocator supplies the physical pages backing memory objects. Required.
	PageAllocator pmm.Allocator
	// PhysMap gives user copies access to physical memory. If nil, PageAllocator is used when
	// it implements pmm.PhysMap.
	PhysMap pmm.PhysMap
	// Layout places the kernel and user address spaces. If nil, arch.DefaultLayout is used.
	Layout *arch.Layout
}

// VMM owns every address space in the system, including the singleton kernel address space
type VMM struct {
	logger    *slog.Logger
	mmu       arch.MMU
	allocator pmm.Allocator
	physMap   pmm.PhysMap
	layout    arch.Layout

	kernelAspace *AddressSpace
	aspaces      aspaceList
	nextID       atomic.Uint64
}

// New creates a VMM and its kernel address space
func New(logger *slog.Logger, options CreateOptions) (*VMM, error) {
	if options.MMU == nil {
		return nil, cerrors.Wrap(memutils.ErrInvalidArgs, "vm.CreateOptions.MMU must be provided")
	}
	if options.PageAllocator == nil {
		return nil, cerrors.Wrap(memutils.ErrInvalidArgs, "vm.CreateOptions.PageAllocator must be provided")
	}

	layout := arch.DefaultLayout
	if options.Layout != nil {
		layout = *options.Layout
	}
	if err := layout.Validate(); err != nil {
		return nil, cerrors.Mark(cerrors.Wrap(err, "vm.CreateOptions.Layout is invalid"), memutils.ErrInvalidArgs)
	}

	physMap := options.PhysMap
	if physMap == nil {
		physMap, _ = options.PageAllocator.(pmm.PhysMap)
	}

	vmm := &VMM{
		logger:    logger,
		mmu:       options.MMU,
		allocator: options.PageAllocator,
		physMap:   physMap,
		layout:    layout,
	}
	vmm.aspaces.Init()

	err := vmm.kernelAspaceInit()
	if err != nil {
		return nil, err
	}

	return vmm, nil
}

func (v *VMM) kernelAspaceInit() error {
	aspace := newAddressSpace(v, v.nextID.Add(1), v.layout.KernelBase, v.layout.KernelSize, AspaceTypeKernel, "kernel")
	err := aspace.init()
	if err != nil {
		return err
	}

	v.aspaces.Register(aspace)
	v.kernelAspace = aspace
	return nil
}

// CreateAspace creates an address space whose range is selected by aspaceType and registers it
// with the VMM. The caller owns the returned reference.
func (v *VMM) CreateAspace(aspaceType AspaceType, name string) (*AddressSpace, error) {
	v.logger.Debug("VMM::CreateAspace", slog.String("Type", aspaceType.String()), slog.String("Name", name))

	var base memutils.Vaddr
	var size uint64

	switch aspaceType {
	case AspaceTypeUser:
		base = v.layout.UserBase
		size = v.layout.UserSize
	case AspaceTypeKernel:
		base = v.layout.KernelBase
		size = v.layout.KernelSize
	case AspaceTypeLowKernel:
		base = 0
		size = uint64(v.layout.UserEnd())
	default:
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "invalid address space type %d", aspaceType)
	}

	if size == 0 {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "%s address space would be empty", aspaceType)
	}

	aspace := newAddressSpace(v, v.nextID.Add(1), base, size, aspaceType, name)
	err := aspace.init()
	if err != nil {
		return nil, err
	}

	v.aspaces.Register(aspace)
	return aspace, nil
}

// KernelAspace returns the singleton kernel address space. It is never destroyed.
func (v *VMM) KernelAspace() *AddressSpace {
	return v.kernelAspace
}

func (v *VMM) Layout() arch.Layout {
	return v.layout
}

func (v *VMM) PageAllocator() pmm.Allocator {
	return v.allocator
}

// AspaceCount returns the number of live address spaces, including the kernel's
func (v *VMM) AspaceCount() int {
	return v.aspaces.Count()
}

func (v *VMM) Validate() error {
	return v.aspaces.Validate()
}

var system atomic.Pointer[VMM]

// Boot creates the process-wide VMM. It may succeed only once; the VMM it installs is never
// torn down.
func Boot(logger *slog.Logger, options CreateOptions) (*VMM, error) {
	if system.Load() != nil {
		return nil, cerrors.Wrap(memutils.ErrAlreadyExists, "the VM has already been booted")
	}

	vmm, err := New(logger, options)
	if err != nil {
		return nil, err
	}

	if !system.CompareAndSwap(nil, vmm) {
		return nil, cerrors.Wrap(memutils.ErrAlreadyExists, "the VM has already been booted")
	}

	logger.Debug("VMM::Boot",
		slog.String("KernelBase", fmt.Sprintf("%#x", vmm.layout.KernelBase)),
		slog.Uint64("KernelSize", vmm.layout.KernelSize))
	return vmm, nil
}

// System returns the VMM installed by Boot, or nil before boot
func System() *VMM {
	return system.Load()
}
