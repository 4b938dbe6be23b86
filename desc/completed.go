package desc

import (
	"encoding/binary"
	"fmt"
)

// CompletedSize is the scratch size needed to report up to capacity ids.
func CompletedSize(capacity int) int {
	return 2 + 2*capacity
}

// EncodeCompleted writes [u16 count][u16 id]*count into buf and returns the
// number of ids that fit.
func EncodeCompleted(buf []byte, ids []uint16) int {
	if len(buf) < 2 {
		return 0
	}
	n := len(ids)
	if room := (len(buf) - 2) / 2; n > room {
		n = room
	}
	binary.LittleEndian.PutUint16(buf, uint16(n))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[2+2*i:], ids[i])
	}
	return n
}

// DecodeCompleted appends the ids reported in buf to ids.
func DecodeCompleted(buf []byte, ids []uint16) ([]uint16, error) {
	if len(buf) < 2 {
		return ids, fmt.Errorf("%w: completion buffer of %d bytes", ErrMalformed, len(buf))
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if 2+2*n > len(buf) {
		return ids, fmt.Errorf("%w: %d completions overflow %d bytes", ErrMalformed, n, len(buf))
	}
	for i := 0; i < n; i++ {
		ids = append(ids, binary.LittleEndian.Uint16(buf[2+2*i:]))
	}
	return ids, nil
}
