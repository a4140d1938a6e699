package memutils_test

import (
	"sync"
	"testing"

	"github.com/punktos/vmm/memutils"
	"github.com/stretchr/testify/require"
)

func permutations(values []int) [][]int {
	if len(values) <= 1 {
		return [][]int{append([]int(nil), values...)}
	}

	var result [][]int
	for i := range values {
		rest := make([]int, 0, len(values)-1)
		rest = append(rest, values[:i]...)
		rest = append(rest, values[i+1:]...)

		for _, perm := range permutations(rest) {
			result = append(result, append([]int{values[i]}, perm...))
		}
	}
	return result
}

func TestRefCountReleaseOrder(t *testing.T) {
	const handles = 4

	for _, order := range permutations([]int{0, 1, 2, 3}) {
		var refs memutils.RefCount
		refs.Init()
		for i := 1; i < handles; i++ {
			refs.Acquire()
		}

		destructions := 0
		for range order {
			if refs.Release() {
				destructions++
			}
		}

		require.Equal(t, 1, destructions, "release order %v", order)
		require.Equal(t, int32(0), refs.Count())
	}
}

func TestRefCountConcurrentRelease(t *testing.T) {
	const handles = 64

	var refs memutils.RefCount
	refs.Init()
	for i := 1; i < handles; i++ {
		refs.Acquire()
	}

	var destructions int32
	var mutex sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < handles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if refs.Release() {
				mutex.Lock()
				destructions++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), destructions)
}

func TestRefCountMisuse(t *testing.T) {
	var refs memutils.RefCount
	refs.Init()

	require.Panics(t, func() { refs.Init() })

	require.True(t, refs.Release())
	require.Panics(t, func() { refs.Acquire() })
}

func TestRefCountUnderflow(t *testing.T) {
	var refs memutils.RefCount
	refs.Init()
	require.True(t, refs.Release())

	require.Panics(t, func() { refs.Release() })
}
