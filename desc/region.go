package desc

import (
	"errors"
	"fmt"
	"unsafe"
)

var ErrRegionFreed = errors.New("region already freed")

// Region is a fixed block of memory owned by exactly one holder. Its address
// stays valid until Free, so it can be handed across the engine boundary.
type Region struct {
	buf   []byte
	freed bool
}

// Alloc returns a zeroed region of size bytes.
func Alloc(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alloc region: invalid size %d", size)
	}
	buf, err := allocate(size)
	if err != nil {
		return nil, fmt.Errorf("alloc region of %d bytes: %w", size, err)
	}
	return &Region{buf: buf}, nil
}

func (r *Region) Bytes() []byte {
	return r.buf
}

func (r *Region) Len() int {
	return len(r.buf)
}

// Addr is the raw address of the first byte.
func (r *Region) Addr() uintptr {
	if r.freed || len(r.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.buf[0]))
}

func (r *Region) Freed() bool {
	return r.freed
}

// Zero clears the region.
func (r *Region) Zero() {
	for i := range r.buf {
		r.buf[i] = 0
	}
}

// Free returns the memory. A second call fails with ErrRegionFreed.
func (r *Region) Free() error {
	if r.freed {
		return ErrRegionFreed
	}
	r.freed = true
	buf := r.buf
	r.buf = nil
	return release(buf)
}

// View maps n bytes at addr. It is how an engine reads memory it was handed.
func View(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
