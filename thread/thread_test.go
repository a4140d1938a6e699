package thread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type namedAspace string

func (n namedAspace) Name() string { return string(n) }

func TestAttachAspace(t *testing.T) {
	thr := New("worker")
	require.Nil(t, thr.Aspace())

	thr.AttachAspace(namedAspace("proc"))
	require.Equal(t, "proc", thr.Aspace().Name())

	require.Panics(t, func() {
		thr.AttachAspace(namedAspace("other"))
	})
}

func TestAttachAspaceRunning(t *testing.T) {
	thr := New("worker")
	thr.SetState(StateRunning)

	require.Panics(t, func() {
		thr.AttachAspace(namedAspace("proc"))
	})
	require.Nil(t, thr.Aspace())
}
