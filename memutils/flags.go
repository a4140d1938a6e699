package memutils

import (
	"fmt"
	"math/bits"
	"strings"
)

type Flags interface {
	~uint32
}

// FlagStringMapping renders bitflag values as a pipe-separated list of registered names.
// Unregistered bits are rendered in hex.
type FlagStringMapping[T Flags] struct {
	names map[T]string
}

func NewFlagStringMapping[T Flags]() FlagStringMapping[T] {
	return FlagStringMapping[T]{names: make(map[T]string)}
}

func (m FlagStringMapping[T]) Register(flag T, name string) {
	m.names[flag] = name
}

func (m FlagStringMapping[T]) FlagsToString(value T) string {
	if value == 0 {
		if name, ok := m.names[0]; ok {
			return name
		}
		return "None"
	}

	var sb strings.Builder
	for remaining := uint32(value); remaining != 0; {
		bit := uint32(1) << bits.TrailingZeros32(remaining)
		remaining &^= bit

		if sb.Len() > 0 {
			sb.WriteRune('|')
		}

		name, ok := m.names[T(bit)]
		if ok {
			sb.WriteString(name)
		} else {
			sb.WriteString(fmt.Sprintf("0x%x", bit))
		}
	}

	return sb.String()
}
