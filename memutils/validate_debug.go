//go:build debug_vm

package memutils

import "fmt"

// DebugEnabled reports whether the debug_vm build tag is present
const DebugEnabled = true

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_vm build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugAssert panics with the formatted message if cond is false.
// This method no-ops unless the debug_vm build tag is present.
func DebugAssert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("ASSERT FAILED: "+format, args...))
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_vm build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
