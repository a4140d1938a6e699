package pmm_test

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/pmm"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

func newTestArena(t *testing.T, base memutils.Paddr, pages int) *pmm.Arena {
	logger := slog.New(slog.NewTextHandler(io.Discard))
	arena, err := pmm.NewArena(logger, pmm.ArenaOptions{
		Base: base,
		Size: uint64(pages) * memutils.PageSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, arena.Close())
	})
	return arena
}

func TestNewArenaValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard))

	_, err := pmm.NewArena(logger, pmm.ArenaOptions{Base: 0x1001, Size: memutils.PageSize})
	require.True(t, errors.Is(err, memutils.ErrInvalidArgs))

	_, err = pmm.NewArena(logger, pmm.ArenaOptions{Base: 0x1000, Size: 0})
	require.True(t, errors.Is(err, memutils.ErrInvalidArgs))

	_, err = pmm.NewArena(logger, pmm.ArenaOptions{Base: 0x1000, Size: 100})
	require.True(t, errors.Is(err, memutils.ErrInvalidArgs))

	_, err = pmm.NewArena(logger, pmm.ArenaOptions{Base: 0xffff_ffff_ffff_f000, Size: 2 * memutils.PageSize})
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))
}

func TestArenaAllocFree(t *testing.T) {
	arena := newTestArena(t, 0x10_0000, 4)
	require.Equal(t, 4, arena.PageCount())
	require.Equal(t, 4, arena.FreeCount())

	page, err := arena.AllocPage(pmm.AllocFlagAny)
	require.NoError(t, err)
	require.Equal(t, memutils.Paddr(0x10_0000), page.Paddr())
	require.Len(t, page.Bytes(), int(memutils.PageSize))
	require.Equal(t, 3, arena.FreeCount())

	page.Bytes()[10] = 0xaa
	data, err := arena.PhysBytes(page.Paddr()+10, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0xaa}, data)

	page.Zero()
	require.Equal(t, byte(0), data[0])

	require.Equal(t, 1, arena.Free([]*pmm.Page{page}))
	require.Equal(t, 4, arena.FreeCount())
}

func TestArenaExhaustion(t *testing.T) {
	arena := newTestArena(t, 0, 3)

	pages, err := arena.AllocPages(5, pmm.AllocFlagAny)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrNoMemory))
	require.Len(t, pages, 3)
	require.Equal(t, 0, arena.FreeCount())

	_, err = arena.AllocPage(pmm.AllocFlagAny)
	require.True(t, errors.Is(err, memutils.ErrNoMemory))

	require.Equal(t, 3, arena.Free(pages))
	require.Equal(t, 3, arena.FreeCount())
}

func TestArenaAllocContiguous(t *testing.T) {
	arena := newTestArena(t, 0x1000, 16)

	// the first 16KiB aligned frame is at 0x4000, index 3
	pages, err := arena.AllocContiguous(4, pmm.AllocFlagAny, 14)
	require.NoError(t, err)
	require.Len(t, pages, 4)
	for i, page := range pages {
		require.Equal(t, memutils.Paddr(0x4000+uint64(i)*memutils.PageSize), page.Paddr())
	}

	single, err := arena.AllocPage(pmm.AllocFlagAny)
	require.NoError(t, err)
	require.Equal(t, memutils.Paddr(0x1000), single.Paddr())

	// 0x8000 is the next aligned frame with a free run behind it
	more, err := arena.AllocContiguous(4, pmm.AllocFlagAny, 14)
	require.NoError(t, err)
	require.Equal(t, memutils.Paddr(0x8000), more[0].Paddr())

	_, err = arena.AllocContiguous(8, pmm.AllocFlagAny, 14)
	require.True(t, errors.Is(err, memutils.ErrNoMemory))

	_, err = arena.AllocContiguous(0, pmm.AllocFlagAny, 0)
	require.True(t, errors.Is(err, memutils.ErrInvalidArgs))

	arena.Free(pages)
	arena.Free(more)
	arena.Free([]*pmm.Page{single})
	require.Equal(t, 16, arena.FreeCount())
}

func TestArenaFreeMisuse(t *testing.T) {
	arena := newTestArena(t, 0, 2)
	other := newTestArena(t, 0, 2)

	page, err := arena.AllocPage(pmm.AllocFlagAny)
	require.NoError(t, err)

	require.Panics(t, func() { other.Free([]*pmm.Page{page}) })

	page.Link()
	require.True(t, page.IsLinked())
	require.Panics(t, func() { arena.Free([]*pmm.Page{page}) })
	page.Unlink()

	require.Equal(t, 1, arena.Free([]*pmm.Page{page}))
	require.Panics(t, func() { arena.Free([]*pmm.Page{page}) })
}

func TestArenaPhysBytesBounds(t *testing.T) {
	arena := newTestArena(t, 0x2000, 2)

	_, err := arena.PhysBytes(0x1000, 1)
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))

	_, err = arena.PhysBytes(0x3fff, 2)
	require.True(t, errors.Is(err, memutils.ErrOutOfRange))

	data, err := arena.PhysBytes(0x2000, int(2*memutils.PageSize))
	require.NoError(t, err)
	require.Len(t, data, int(2*memutils.PageSize))
}

func TestPageLinkState(t *testing.T) {
	page := pmm.NewPage(0x5000, make([]byte, memutils.PageSize))
	require.False(t, page.IsLinked())
	require.Panics(t, func() { page.Unlink() })

	page.Link()
	require.Panics(t, func() { page.Link() })
	require.Equal(t, "page(0x5000, Object)", page.String())

	require.Panics(t, func() { pmm.NewPage(0, make([]byte, 10)) })
}

func TestArenaLinkWhileAllocating(t *testing.T) {
	arena := newTestArena(t, 0x20_0000, 18)

	var group errgroup.Group
	for worker := 0; worker < 4; worker++ {
		group.Go(func() error {
			for i := 0; i < 500; i++ {
				pages, err := arena.AllocPages(4, pmm.AllocFlagAny)
				if err != nil {
					return err
				}
				for _, page := range pages {
					page.Link()
				}
				for _, page := range pages {
					page.Unlink()
				}
				arena.Free(pages)

				run, err := arena.AllocContiguous(1, pmm.AllocFlagAny, 0)
				if err != nil {
					return err
				}
				arena.Free(run)
			}
			return nil
		})
	}

	require.NoError(t, group.Wait())
	require.Equal(t, 18, arena.FreeCount())
}
