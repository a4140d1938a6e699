package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint8 | ~uint32 | ~uint64 | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two.
// The result wraps around to zero if value is within alignment of the top of T's range.
func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

func AlignDown[T Number](value T, alignment T) T {
	return value &^ (alignment - 1)
}

func IsAligned[T Number](value T, alignment T) bool {
	return value&(alignment-1) == 0
}
