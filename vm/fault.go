package vm

import (
	"context"
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/punktos/vmm/memutils"
	"github.com/punktos/vmm/thread"
	"golang.org/x/exp/slog"
)

// PageFaultHandler is the entry point for architecture fault traps. Faults on user addresses
// are resolved in the faulting thread's address space and all others in the kernel address
// space. A returned error means the fault could not be resolved: the caller either delivers
// an exception to user code or panics.
func (v *VMM) PageFaultHandler(t *thread.Thread, vaddr memutils.Vaddr, flags FaultFlags) error {
	aspace, err := v.faultAspace(t, vaddr)
	if err == nil {
		err = aspace.PageFault(vaddr, flags)
	}

	if err != nil {
		threadName := "none"
		if t != nil {
			threadName = t.Name()
		}

		v.logger.LogAttrs(context.Background(), slog.LevelError, "[UNHANDLED PAGE FAULT]",
			slog.String("vaddr", fmt.Sprintf("%#x", vaddr)),
			slog.String("flags", flags.String()),
			slog.String("thread", threadName),
			slog.Any("error", err))
		return cerrors.Wrapf(err, "unhandled page fault at %#x", vaddr)
	}

	return nil
}

func (v *VMM) faultAspace(t *thread.Thread, vaddr memutils.Vaddr) (*AddressSpace, error) {
	if !v.layout.IsUserAddress(vaddr) {
		return v.kernelAspace, nil
	}

	if t == nil {
		return nil, cerrors.Wrapf(memutils.ErrNotFound, "user address %#x faulted with no current thread", vaddr)
	}

	aspace, ok := t.Aspace().(*AddressSpace)
	if !ok || aspace == nil {
		return nil, cerrors.Wrapf(memutils.ErrNotFound, "thread %q has no user address space", t.Name())
	}

	return aspace, nil
}
