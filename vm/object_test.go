package vm_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	mock_pmm "github.com/punktos/vmm/pmm/mocks"
	mock_usercopy "github.com/punktos/vmm/usercopy/mocks"
	"github.com/punktos/vmm/vm"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

const page = memutils.PageSize

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard))
}

func newArena(t *testing.T, pages int) *pmm.Arena {
	arena, err := pmm.NewArena(testLogger(), pmm.ArenaOptions{
		Base: 0x100_0000,
		Size: uint64(pages) * page,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.Equal(t, arena.PageCount(), arena.FreeCount(), "pages leaked")
		require.NoError(t, arena.Close())
	})
	return arena
}

func newObject(t *testing.T, allocator pmm.Allocator, size uint64) *vm.MemoryObject {
	object, err := vm.NewMemoryObject(testLogger(), allocator, pmm.AllocFlagAny, size)
	require.NoError(t, err)
	return object
}

func TestObjectCreate(t *testing.T) {
	arena := newArena(t, 4)

	_, err := vm.NewMemoryObject(testLogger(), nil, pmm.AllocFlagAny, page)
	require.True(t, errors.Is(err, memutils.ErrInvalidArgs))

	_, err = vm.NewMemoryObject(testLogger(), arena, pmm.AllocFlagAny, vm.MaxObjectSize)
	require.True(t, errors.Is(err, memutils.ErrTooBig))

	object := newObject(t, arena, 3*page+1)
	require.Equal(t, 3*page+1, object.Size())
	require.Equal(t, 0, object.ResidentPageCount())
	require.Equal(t, int32(1), object.RefCount())
	require.NoError(t, object.Validate())
	require.True(t, object.Release())
}

func TestObjectResize(t *testing.T) {
	arena := newArena(t, 4)

	object := newObject(t, arena, 0)
	require.Nil(t, object.GetPage(0))

	require.NoError(t, object.Resize(2*page))
	require.Equal(t, 2*page, object.Size())

	err := object.Resize(4 * page)
	require.True(t, errors.Is(err, memutils.ErrNotImplemented))
	require.Equal(t, 2*page, object.Size())

	require.True(t, object.Release())
}

func TestObjectFaultPage(t *testing.T) {
	arena := newArena(t, 4)
	object := newObject(t, arena, 2*page)

	first, err := object.FaultPage(0x10, vm.FaultFlagWrite)
	require.NoError(t, err)
	require.True(t, first.IsLinked())
	require.Equal(t, make([]byte, page), first.Bytes())

	again, err := object.FaultPage(0xff0, 0)
	require.NoError(t, err)
	require.Same(t, first, again)
	require.Same(t, first, object.GetPage(0))

	require.Nil(t, object.GetPage(page))
	require.Equal(t, 1, object.ResidentPageCount())

	_, err = object.FaultPage(2*page, 0)
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))

	require.True(t, object.Release())
	require.Equal(t, 4, arena.FreeCount())
}

func TestObjectFaultZeroFills(t *testing.T) {
	arena := newArena(t, 1)

	dirty, err := arena.AllocPage(pmm.AllocFlagAny)
	require.NoError(t, err)
	copy(dirty.Bytes(), bytes.Repeat([]byte{0xcc}, int(page)))
	arena.Free([]*pmm.Page{dirty})

	object := newObject(t, arena, page)
	faulted, err := object.FaultPage(0, 0)
	require.NoError(t, err)
	require.Equal(t, make([]byte, page), faulted.Bytes())

	require.True(t, object.Release())
}

func TestObjectCommitRange(t *testing.T) {
	arena := newArena(t, 8)
	object := newObject(t, arena, 3*page)

	committed, err := object.CommitRange(0, 3*page)
	require.NoError(t, err)
	require.Equal(t, 3*page, committed)
	require.Equal(t, 3, object.ResidentPageCount())
	require.Equal(t, 5, arena.FreeCount())

	committed, err = object.CommitRange(0, 3*page)
	require.NoError(t, err)
	require.Equal(t, uint64(0), committed)
	require.Equal(t, 5, arena.FreeCount())

	_, err = object.CommitRange(3*page, page)
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))

	require.NoError(t, object.Validate())
	require.True(t, object.Release())
}

func TestObjectCommitRangeTrims(t *testing.T) {
	arena := newArena(t, 8)
	object := newObject(t, arena, 4*page)

	_, err := object.FaultPage(page, 0)
	require.NoError(t, err)

	committed, err := object.CommitRange(page/2, 100*page)
	require.NoError(t, err)
	require.Equal(t, 4*page-page/2, committed)
	require.Equal(t, 4, object.ResidentPageCount())
	require.Equal(t, 3, object.ResidentPagesInRange(page, 3*page))
	require.Equal(t, 0, object.ResidentPagesInRange(4*page, page))

	require.True(t, object.Release())
}

func TestObjectCommitRangeExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mock_pmm.NewMockAllocator(ctrl)

	partial := []*pmm.Page{
		pmm.NewPage(0x1000, make([]byte, page)),
		pmm.NewPage(0x2000, make([]byte, page)),
	}
	allocator.EXPECT().AllocPages(3, pmm.AllocFlagAny).Return(partial, memutils.ErrNoMemory)
	allocator.EXPECT().Free(partial).Return(2)

	object := newObject(t, allocator, 3*page)

	committed, err := object.CommitRange(0, 3*page)
	require.True(t, errors.Is(err, memutils.ErrNoMemory))
	require.Equal(t, uint64(0), committed)
	require.Equal(t, 0, object.ResidentPageCount())
	for _, p := range partial {
		require.False(t, p.IsLinked())
	}

	allocator.EXPECT().Free(gomock.Len(0)).Return(0)
	require.True(t, object.Release())
}

func TestObjectCommitRangeContiguous(t *testing.T) {
	arena := newArena(t, 16)
	object := newObject(t, arena, 4*page)

	committed, err := object.CommitRangeContiguous(0, 4*page, 14)
	require.NoError(t, err)
	require.Equal(t, 4*page, committed)

	base := object.GetPage(0).Paddr()
	require.True(t, memutils.IsAligned(uint64(base), 1<<14))
	for i := uint64(1); i < 4; i++ {
		require.Equal(t, base+memutils.Paddr(i*page), object.GetPage(i*page).Paddr())
	}

	_, err = object.CommitRangeContiguous(page, page, 0)
	require.True(t, errors.Is(err, memutils.ErrNoMemory))

	require.True(t, object.Release())
}

func TestObjectAddPage(t *testing.T) {
	arena := newArena(t, 4)
	object := newObject(t, arena, 2*page)

	single, err := arena.AllocPage(pmm.AllocFlagAny)
	require.NoError(t, err)

	err = object.AddPage(single, 2*page)
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))
	require.False(t, single.IsLinked())

	require.NoError(t, object.AddPage(single, page))
	require.Same(t, single, object.GetPage(page+0x123))
	require.True(t, single.IsLinked())

	duplicate, err := arena.AllocPage(pmm.AllocFlagAny)
	require.NoError(t, err)
	if memutils.DebugEnabled {
		require.Panics(t, func() { _ = object.AddPage(duplicate, page) })
	} else {
		err = object.AddPage(duplicate, page)
		require.True(t, errors.Is(err, memutils.ErrAlreadyExists))
		require.False(t, duplicate.IsLinked())
	}
	arena.Free([]*pmm.Page{duplicate})

	require.True(t, object.Release())
	require.Equal(t, 4, arena.FreeCount())
}

func TestObjectReadWrite(t *testing.T) {
	arena := newArena(t, 4)
	object := newObject(t, arena, 3*page)

	data := make([]byte, page+200)
	for i := range data {
		data[i] = byte(i)
	}

	// straddles the first page boundary
	written, err := object.Write(data, page-100)
	require.NoError(t, err)
	require.Equal(t, len(data), written)
	require.Equal(t, 3, object.ResidentPageCount())

	readBack := make([]byte, len(data))
	read, err := object.Read(readBack, page-100)
	require.NoError(t, err)
	require.Equal(t, len(data), read)
	require.Equal(t, data, readBack)

	// reads past the end are trimmed
	tail := make([]byte, 2*page)
	read, err = object.Read(tail, 2*page)
	require.NoError(t, err)
	require.Equal(t, int(page), read)

	_, err = object.Read(tail, 3*page)
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))

	require.True(t, object.Release())
}

func TestObjectUserCopy(t *testing.T) {
	ctrl := gomock.NewController(t)
	copier := mock_usercopy.NewMockCopier(ctrl)

	arena := newArena(t, 2)
	object := newObject(t, arena, 2*page)

	_, err := object.Write([]byte("hello"), page-2)
	require.NoError(t, err)

	copier.EXPECT().IsUserAddress(gomock.Any()).Return(true).Times(2)
	copier.EXPECT().CopyToUser(memutils.Vaddr(0x4000), []byte("he")).Return(nil)
	copier.EXPECT().CopyToUser(memutils.Vaddr(0x4002), []byte("llo")).Return(nil)

	copied, err := object.ReadUser(copier, 0x4000, page-2, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), copied)

	copier.EXPECT().IsUserAddress(memutils.Vaddr(0xffff_ffff_0000_0000)).Return(false)
	_, err = object.WriteUser(copier, 0xffff_ffff_0000_0000, 0, 5)
	require.True(t, errors.Is(err, memutils.ErrInvalidArgs))

	copier.EXPECT().IsUserAddress(gomock.Any()).Return(true).Times(2)
	copier.EXPECT().CopyFromUser(gomock.Len(3), memutils.Vaddr(0x8000)).DoAndReturn(func(dst []byte, src memutils.Vaddr) error {
		copy(dst, "abc")
		return nil
	})

	copied, err = object.WriteUser(copier, 0x8000, 0, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), copied)

	readBack := make([]byte, 3)
	_, err = object.Read(readBack, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), readBack)

	require.True(t, object.Release())
}

func TestObjectReferences(t *testing.T) {
	arena := newArena(t, 2)
	object := newObject(t, arena, 2*page)

	_, err := object.CommitRange(0, 2*page)
	require.NoError(t, err)

	object.Acquire()
	object.Acquire()
	require.Equal(t, int32(3), object.RefCount())

	require.False(t, object.Release())
	require.False(t, object.Release())
	require.Equal(t, 0, arena.FreeCount())

	require.True(t, object.Release())
	require.Equal(t, 2, arena.FreeCount())

	require.Panics(t, func() { object.Size() })
}
