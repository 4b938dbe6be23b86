//go:build unix

package desc

import "golang.org/x/sys/unix"

// anonymous private mappings live outside the Go heap
func allocate(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func release(buf []byte) error {
	return unix.Munmap(buf)
}
