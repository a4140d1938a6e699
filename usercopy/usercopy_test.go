package usercopy

import (
	"testing"

	"github.com/punktos/vmm/arch"
	"github.com/punktos/vmm/memutils"
	"github.com/stretchr/testify/require"
)

func TestCanAccess(t *testing.T) {
	layout := arch.DefaultLayout
	userEnd := layout.UserEnd()

	testCases := []struct {
		name   string
		base   memutils.Vaddr
		length uint64
		result bool
	}{
		{name: "start of user space", base: layout.UserBase, length: memutils.PageSize, result: true},
		{name: "below user space", base: layout.UserBase - 1, length: 2, result: false},
		{name: "last user byte", base: userEnd - 1, length: 1, result: true},
		{name: "crosses user end", base: userEnd - 1, length: 2, result: false},
		{name: "kernel address", base: layout.KernelBase, length: 1, result: false},
		{name: "wraps", base: layout.UserBase, length: ^uint64(0), result: false},
		{name: "empty user range", base: layout.UserBase, length: 0, result: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.result, CanAccess(layout, testCase.base, testCase.length))
		})
	}
}
