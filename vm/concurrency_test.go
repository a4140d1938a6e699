package vm_test

import (
	"testing"
	"time"

	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	"github.com/punktos/vmm/vm"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentFaultPageSharesPage(t *testing.T) {
	arena := newArena(t, 4)
	object := newObject(t, arena, pages(2))

	const workers = 16
	faulted := make([]*pmm.Page, workers)

	var group errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		group.Go(func() error {
			page, err := object.FaultPage(uint64(i)*64, vm.FaultFlagWrite)
			faulted[i] = page
			return err
		})
	}
	require.NoError(t, group.Wait())

	for _, page := range faulted {
		require.Same(t, faulted[0], page)
	}
	require.Equal(t, 1, object.ResidentPageCount())
	require.Equal(t, 3, arena.FreeCount())

	require.True(t, object.Release())
}

func TestConcurrentAspaceFaults(t *testing.T) {
	vmm, arena := newTestVMM(t, 16, 8)
	aspace := newUserAspace(t, vmm)

	vaddr, err := aspace.Alloc(pages(4), vm.MappingInfo{Name: "shared", MMUFlags: userRW})
	require.NoError(t, err)

	var group errgroup.Group
	for i := 0; i < 32; i++ {
		target := vaddr + memutils.Vaddr(pages(i%4)) + memutils.Vaddr(i)
		group.Go(func() error {
			return aspace.PageFault(target, vm.FaultFlagUser|vm.FaultFlagWrite)
		})
	}
	require.NoError(t, group.Wait())

	require.Equal(t, 4, arena.FreeCount())
	for i := 0; i < 4; i++ {
		queryPaddr(t, aspace, vaddr+memutils.Vaddr(pages(i)))
	}
	require.NoError(t, aspace.Validate())
}

func TestConcurrentRegionChurn(t *testing.T) {
	vmm, _ := newTestVMM(t, 64, 16)
	aspace := newUserAspace(t, vmm)

	var group errgroup.Group
	for i := 0; i < 8; i++ {
		group.Go(func() error {
			for j := 0; j < 20; j++ {
				vaddr, err := aspace.Alloc(pages(2), vm.MappingInfo{Name: "churn", Flags: vm.FlagCommit, MMUFlags: userRW})
				if err != nil {
					return err
				}
				if err := aspace.FreeRegion(vaddr); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	require.Equal(t, 0, aspace.RegionCount())
}

func TestUserCopyRacesAspaceFault(t *testing.T) {
	vmm, arena := newTestVMM(t, 16, 4)
	aspace := newUserAspace(t, vmm)

	source := newObject(t, arena, page)
	defer source.Release()
	_, err := source.Write([]byte("racing"), 0)
	require.NoError(t, err)

	sourceAddr, err := aspace.MapObject(source, 0, page, vm.MappingInfo{Name: "source", MMUFlags: userRW})
	require.NoError(t, err)
	sourceRegion := aspace.FindRegion(sourceAddr)
	require.NotNil(t, sourceRegion)
	defer sourceRegion.Release()

	copier, err := aspace.UserCopier()
	require.NoError(t, err)

	var group errgroup.Group
	group.Go(func() error {
		for i := 0; i < 500; i++ {
			dest, err := aspace.Alloc(page, vm.MappingInfo{Name: "dest", MMUFlags: userRW})
			if err != nil {
				return err
			}
			if _, err := source.ReadUser(copier, dest, 0, 6); err != nil {
				return err
			}
			if _, err := source.WriteUser(copier, dest, 8, 6); err != nil {
				return err
			}
			if err := aspace.FreeRegion(dest); err != nil {
				return err
			}
		}
		return nil
	})
	group.Go(func() error {
		for i := 0; i < 500; i++ {
			if _, err := sourceRegion.Unmap(); err != nil {
				return err
			}
			if err := aspace.PageFault(sourceAddr, vm.FaultFlagUser); err != nil {
				return err
			}
		}
		return nil
	})

	finished := make(chan error, 1)
	go func() { finished <- group.Wait() }()

	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		require.FailNow(t, "user copies and address space faults stopped making progress")
	}

	got := make([]byte, 14)
	_, err = source.Read(got, 0)
	require.NoError(t, err)
	require.Equal(t, "racing\x00\x00racing", string(got))
}

func TestUserCopyIntoOwnMapping(t *testing.T) {
	vmm, arena := newTestVMM(t, 16, 2)
	aspace := newUserAspace(t, vmm)

	object := newObject(t, arena, page)
	defer object.Release()
	_, err := object.Write([]byte("mirror"), 0)
	require.NoError(t, err)

	vaddr, err := aspace.MapObject(object, 0, page, vm.MappingInfo{Name: "self", MMUFlags: userRW})
	require.NoError(t, err)

	copier, err := aspace.UserCopier()
	require.NoError(t, err)

	copied, err := object.ReadUser(copier, vaddr+0x10, 0, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(6), copied)

	got := make([]byte, 6)
	_, err = object.Read(got, 0x10)
	require.NoError(t, err)
	require.Equal(t, []byte("mirror"), got)
}
