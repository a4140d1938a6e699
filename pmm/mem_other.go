//go:build !unix

package pmm

func mapMemory(size uint64) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapMemory(memory []byte) error {
	return nil
}
