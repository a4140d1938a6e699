package soft

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/memutils"
	"golang.org/x/exp/slog"
)

// Options configures the software MMU
type Options struct {
	// GuardPages makes PickSpot leave an unmapped page between neighbouring regions whose
	// mapping flags differ
	GuardPages bool
}

// MMU is a reference architecture whose page tables are plain hash maps. It performs no
// hardware translation; translations are consulted through PageTable.Query.
type MMU struct {
	logger  *slog.Logger
	options Options
}

var _ arch.MMU = &MMU{}

func New(logger *slog.Logger, options Options) *MMU {
	return &MMU{
		logger:  logger,
		options: options,
	}
}

func (m *MMU) InitAspace(base memutils.Vaddr, size uint64, flags arch.AspaceFlags) (arch.PageTable, error) {
	if size == 0 || !memutils.IsPageAligned(base) || !memutils.IsPageAligned(size) {
		return nil, cerrors.Wrapf(memutils.ErrInvalidArgs, "invalid aspace range [%#x, +%#x)", base, size)
	}
	if uint64(base)+size-1 < uint64(base) {
		return nil, cerrors.Wrapf(memutils.ErrOutOfRange, "aspace range [%#x, +%#x) wraps", base, size)
	}

	m.logger.Debug("MMU::InitAspace",
		slog.Uint64("Base", uint64(base)),
		slog.Uint64("Size", size),
		slog.String("Flags", flags.String()))

	return newPageTable(m.logger, base, size, flags, m.options.GuardPages), nil
}
