package desc

import (
	"encoding/binary"
	"fmt"
)

// EntryRequest is one decoded entry of a descriptor.
type EntryRequest struct {
	Akey   []byte
	Offset uint64
	Length uint32
	Addr   uint64
}

// Data maps the caller memory the entry points at.
func (e EntryRequest) Data() []byte {
	return View(uintptr(e.Addr), int(e.Length))
}

// Request is the engine's view of a submitted descriptor. Keys alias the
// descriptor memory.
type Request struct {
	Header
	Handle  uint64
	EventID uint16
	Dkey    []byte
	Entries []EntryRequest
	buf     []byte
}

// ViewDescriptor maps a whole descriptor from its address, using the length
// recorded in its prefix.
func ViewDescriptor(addr uintptr) ([]byte, error) {
	prefix := View(addr, PrefixSize)
	if prefix == nil {
		return nil, fmt.Errorf("%w: nil descriptor address", ErrMalformed)
	}
	length := int(binary.LittleEndian.Uint32(prefix[12:16]))
	if length < PrefixSize {
		return nil, fmt.Errorf("%w: length %d shorter than prefix", ErrMalformed, length)
	}
	return View(addr, length), nil
}

// Decode parses buf as a descriptor.
func Decode(buf []byte) (*Request, error) {
	r := NewReader(buf)
	h := r.Header()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if h.Kind != KindUpdate && h.Kind != KindFetch {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformed, h.Kind)
	}
	if int(h.Length) > len(buf) {
		return nil, fmt.Errorf("%w: length %d exceeds buffer %d", ErrMalformed, h.Length, len(buf))
	}
	req := &Request{Header: h, buf: buf[:h.Length]}
	if h.Async() {
		req.Handle = r.U64()
		req.EventID = r.U16()
	}
	width := -1
	if h.Reusable() {
		width = int(h.MaxKeyLen)
	}
	req.Dkey = r.Key(width)
	count := int(r.U16())
	if r.Err() != nil {
		return nil, r.Err()
	}
	if count > int(h.Slots) {
		return nil, fmt.Errorf("%w: %d entries in %d slots", ErrMalformed, count, h.Slots)
	}
	req.Entries = make([]EntryRequest, count)
	for i := range req.Entries {
		e := &req.Entries[i]
		e.Akey = r.Key(width)
		e.Offset = r.Offset(h.Wide())
		e.Length = r.U32()
		e.Addr = r.U64()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	if h.HasResult() {
		end := int(h.ResultOffset) + h.ResultSize()
		if h.ResultOffset == 0 || end > int(h.Length) {
			return nil, fmt.Errorf("%w: result region %d+%d outside %d", ErrMalformed, h.ResultOffset, h.ResultSize(), h.Length)
		}
	}
	return req, nil
}

// SetResult writes the completion status and, for fetches, the actual size
// of every entry into the result region.
func (r *Request) SetResult(status int32, actual []uint32) error {
	if !r.HasResult() {
		return nil
	}
	w := NewWriter(r.buf)
	w.Seek(int(r.ResultOffset))
	w.I32(status)
	if r.Kind == KindFetch {
		for i := 0; i < int(r.Slots); i++ {
			var n uint32
			if i < len(actual) {
				n = actual[i]
			}
			w.U32(n)
		}
	}
	return w.Err()
}

// ReadResult reads back what SetResult wrote. sizes must hold h.Slots values
// for fetches.
func ReadResult(buf []byte, h Header, sizes []uint32) (int32, error) {
	if !h.HasResult() {
		return 0, nil
	}
	r := NewReader(buf)
	r.Seek(int(h.ResultOffset))
	status := r.I32()
	if h.Kind == KindFetch {
		for i := 0; i < int(h.Slots) && i < len(sizes); i++ {
			sizes[i] = r.U32()
		}
	}
	return status, r.Err()
}
