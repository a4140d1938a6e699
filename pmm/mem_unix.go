//go:build unix

package pmm

import "golang.org/x/sys/unix"

func mapMemory(size uint64) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapMemory(memory []byte) error {
	return unix.Munmap(memory)
}
