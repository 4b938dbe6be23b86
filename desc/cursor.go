package desc

import (
	"encoding/binary"
	"fmt"
)

// Writer writes fields sequentially into a fixed buffer. The first overflow
// sticks; later writes are dropped and Err reports it.
type Writer struct {
	buf []byte
	pos int
	err error
}

func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Pos() int   { return w.pos }
func (w *Writer) Err() error { return w.err }

func (w *Writer) Seek(pos int) {
	if w.err == nil && (pos < 0 || pos > len(w.buf)) {
		w.err = fmt.Errorf("%w: seek to %d of %d", ErrMalformed, pos, len(w.buf))
		return
	}
	w.pos = pos
}

func (w *Writer) next(n int) []byte {
	if w.err != nil {
		return nil
	}
	if w.pos+n > len(w.buf) {
		w.err = fmt.Errorf("%w: write of %d bytes at %d overflows %d", ErrMalformed, n, w.pos, len(w.buf))
		return nil
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b
}

func (w *Writer) U8(v uint8) {
	if b := w.next(1); b != nil {
		b[0] = v
	}
}

func (w *Writer) U16(v uint16) {
	if b := w.next(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

func (w *Writer) U32(v uint32) {
	if b := w.next(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) U64(v uint64) {
	if b := w.next(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
}

// Offset writes a 4 or 8 byte offset.
func (w *Writer) Offset(v uint64, wide bool) {
	if wide {
		w.U64(v)
		return
	}
	if v > 0xFFFFFFFF && w.err == nil {
		w.err = fmt.Errorf("%w: offset %d needs wide addressing", ErrMalformed, v)
		return
	}
	w.U32(uint32(v))
}

// Key writes a length-prefixed key and zero pads it to width bytes.
func (w *Writer) Key(key []byte, width int) {
	if len(key) > width && w.err == nil {
		w.err = fmt.Errorf("%w: %d > %d", ErrKeyTooLong, len(key), width)
		return
	}
	w.U16(uint16(len(key)))
	if b := w.next(width); b != nil {
		n := copy(b, key)
		for i := n; i < len(b); i++ {
			b[i] = 0
		}
	}
}

// Skip advances without writing.
func (w *Writer) Skip(n int) {
	w.next(n)
}

func (w *Writer) Header(h Header) {
	w.U8(uint8(h.Kind))
	w.U8(h.Flags)
	w.U16(h.MaxKeyLen)
	w.U16(h.Slots)
	w.U16(0)
	w.U32(h.RecordSize)
	w.U32(h.Length)
	w.U32(h.ResultOffset)
}

// Reader is the read side of Writer.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Pos() int   { return r.pos }
func (r *Reader) Err() error { return r.err }

func (r *Reader) Seek(pos int) {
	if r.err == nil && (pos < 0 || pos > len(r.buf)) {
		r.err = fmt.Errorf("%w: seek to %d of %d", ErrMalformed, pos, len(r.buf))
		return
	}
	r.pos = pos
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("%w: read of %d bytes at %d overflows %d", ErrMalformed, n, r.pos, len(r.buf))
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) I32() int32 {
	return int32(r.U32())
}

func (r *Reader) U64() uint64 {
	if b := r.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) Offset(wide bool) uint64 {
	if wide {
		return r.U64()
	}
	return uint64(r.U32())
}

// Key reads a length-prefixed key laid out in width bytes; width < 0 means
// the key is not padded.
func (r *Reader) Key(width int) []byte {
	n := int(r.U16())
	if width < 0 {
		width = n
	}
	if n > width && r.err == nil {
		r.err = fmt.Errorf("%w: key length %d exceeds slot width %d", ErrMalformed, n, width)
		return nil
	}
	b := r.next(width)
	if b == nil {
		return nil
	}
	return b[:n]
}

func (r *Reader) Header() Header {
	h := Header{
		Kind:      Kind(r.U8()),
		Flags:     r.U8(),
		MaxKeyLen: r.U16(),
		Slots:     r.U16(),
	}
	r.U16()
	h.RecordSize = r.U32()
	h.Length = r.U32()
	h.ResultOffset = r.U32()
	return h
}
