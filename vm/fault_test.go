package vm_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/thread"
	"github.com/punktos/vmm/vm"
	"github.com/stretchr/testify/require"
)

func TestPageFaultHandlerUser(t *testing.T) {
	vmm, _ := newTestVMM(t, 16, 4)
	aspace := newUserAspace(t, vmm)

	vaddr, err := aspace.Alloc(pages(2), vm.MappingInfo{Name: "stack", MMUFlags: userRW})
	require.NoError(t, err)

	worker := thread.New("worker")
	aspace.AttachToThread(worker)
	require.Same(t, aspace, worker.Aspace())
	require.Panics(t, func() { aspace.AttachToThread(worker) })

	require.NoError(t, vmm.PageFaultHandler(worker, vaddr+memutils.Vaddr(page), vm.FaultFlagUser|vm.FaultFlagWrite|vm.FaultFlagNotPresent))
	queryPaddr(t, aspace, vaddr+memutils.Vaddr(page))
	requireUnmapped(t, aspace, vaddr)

	err = vmm.PageFaultHandler(worker, at(12), vm.FaultFlagUser)
	require.True(t, errors.Is(err, memutils.ErrNotFound))

	err = vmm.PageFaultHandler(nil, vaddr, vm.FaultFlagUser)
	require.True(t, errors.Is(err, memutils.ErrNotFound))

	kernelThread := thread.New("idle")
	err = vmm.PageFaultHandler(kernelThread, vaddr, 0)
	require.True(t, errors.Is(err, memutils.ErrNotFound))
}

func TestPageFaultHandlerKernel(t *testing.T) {
	vmm, _ := newTestVMM(t, 16, 4)
	kernel := vmm.KernelAspace()

	vaddr, err := kernel.Alloc(page, vm.MappingInfo{Name: "heap", MMUFlags: 0})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, kernel.FreeRegion(vaddr))
	}()

	// kernel addresses resolve in the kernel address space whatever the thread
	worker := thread.New("worker")
	require.NoError(t, vmm.PageFaultHandler(worker, vaddr+0x10, vm.FaultFlagWrite))
	queryPaddr(t, kernel, vaddr)

	err = vmm.PageFaultHandler(nil, vaddr, vm.FaultFlagUser)
	require.True(t, errors.Is(err, memutils.ErrAccessDenied))

	err = vmm.PageFaultHandler(nil, kernelBase+memutils.Vaddr(pages(60)), 0)
	require.True(t, errors.Is(err, memutils.ErrNotFound))
}
