package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrOutOfRange is returned when an address or offset lies outside the valid bounds of
	// an address space, region, or memory object
	ErrOutOfRange = errors.New("out of range")
	// ErrNoMemory is returned when the physical allocator is exhausted or no virtual gap
	// can satisfy a request
	ErrNoMemory = errors.New("no memory")
	// ErrInvalidArgs is returned for misaligned addresses or sizes, missing required
	// arguments, and conflicting flags
	ErrInvalidArgs = errors.New("invalid arguments")
	// ErrNotFound is returned when no region contains an address, or a region has no backing object
	ErrNotFound = errors.New("not found")
	// ErrNotImplemented is returned when resizing a memory object that already has a size
	ErrNotImplemented = errors.New("not implemented")
	// ErrTooBig is returned when a requested size exceeds the internal maximum
	ErrTooBig = errors.New("too big")
	// ErrAlreadyExists is returned when a page or mapping is already present at the target
	ErrAlreadyExists = errors.New("already exists")
	// ErrAccessDenied is returned when a fault's intent is not permitted by a region's mapping flags
	ErrAccessDenied = errors.New("access denied")
)
