package operation

import (
	"math"

	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/utils"
)

// Entry is one extent of an akey array addressed by a descriptor.
type Entry struct {
	owner    *base
	kind     desc.Kind
	akey     []byte
	offset   uint64
	size     int
	padded   int
	actual   int
	data     *desc.Region
	capacity int
	set      bool
}

func (e *Entry) Kind() desc.Kind { return e.kind }
func (e *Entry) Key() string     { return string(e.akey) }
func (e *Entry) Offset() uint64  { return e.offset }

// Size is the requested length as the caller gave it.
func (e *Entry) Size() int { return e.size }

// PaddedSize is the length sent to the engine, a multiple of the record size.
func (e *Entry) PaddedSize() int { return e.padded }

// ActualSize is the length the engine reported, never above Size.
func (e *Entry) ActualSize() int { return e.actual }

func (e *Entry) Addr() uintptr {
	if e.data == nil {
		return 0
	}
	return e.data.Addr()
}

// Data is the fetched bytes after Ready, or the update payload.
func (e *Entry) Data() []byte {
	if e.data == nil || e.data.Freed() {
		return nil
	}
	if e.kind == desc.KindFetch {
		return e.data.Bytes()[:e.actual]
	}
	return e.data.Bytes()[:e.size]
}

func (e *Entry) reset() {
	e.set = false
	e.actual = 0
	e.size = 0
	e.padded = 0
	e.offset = 0
	e.akey = e.akey[:0]
}

func (e *Entry) free() error {
	if e.data == nil || e.data.Freed() {
		return nil
	}
	return e.data.Free()
}

func checkExtent(recordSize int, offset uint64, size int) error {
	if size <= 0 {
		return invalidf("length %d must be positive", size)
	}
	if offset%uint64(recordSize) != 0 {
		return invalidf("offset %d is not a multiple of record size %d", offset, recordSize)
	}
	if padded := utils.RoundUp(size, recordSize); uint64(padded) > math.MaxUint32 {
		return invalidf("length %d does not fit the descriptor", padded)
	}
	return nil
}

func (e *Entry) setKey(akey string) error {
	key := []byte(akey)
	if err := desc.CheckKey(e.owner.header, key); err != nil {
		return err
	}
	e.akey = append(e.akey[:0], key...)
	return nil
}

// SetFetch points a reusable entry at an extent to read.
func (e *Entry) SetFetch(akey string, offset uint64, size int) error {
	return e.setExtent(desc.KindFetch, akey, offset, size, nil)
}

// SetUpdate copies data into a reusable entry's buffer for writing.
func (e *Entry) SetUpdate(akey string, offset uint64, data []byte) error {
	return e.setExtent(desc.KindUpdate, akey, offset, len(data), data)
}

func (e *Entry) setExtent(kind desc.Kind, akey string, offset uint64, size int, data []byte) error {
	if !e.owner.Reusable() {
		return illegalf("entry of non-reusable operation is fixed")
	}
	if err := e.owner.mutable(); err != nil {
		return err
	}
	if err := checkExtent(e.owner.recordSize, offset, size); err != nil {
		return err
	}
	padded := utils.RoundUp(size, e.owner.recordSize)
	if padded > e.capacity {
		return invalidf("length %d exceeds entry buffer %d", padded, e.capacity)
	}
	if err := e.setKey(akey); err != nil {
		return err
	}
	e.kind = kind
	e.offset = offset
	e.size = size
	e.padded = padded
	e.actual = 0
	if data != nil {
		buf := e.data.Bytes()
		n := copy(buf, data)
		for i := n; i < padded; i++ {
			buf[i] = 0
		}
	}
	e.set = true
	return nil
}

// newEntry builds a one-shot entry with its own buffer.
func newEntry(owner *base, kind desc.Kind, akey string, offset uint64, size int, data []byte) (*Entry, error) {
	if err := checkExtent(owner.recordSize, offset, size); err != nil {
		return nil, err
	}
	e := &Entry{owner: owner, kind: kind, offset: offset, size: size}
	if err := e.setKey(akey); err != nil {
		return nil, err
	}
	e.padded = utils.RoundUp(size, owner.recordSize)
	r, err := desc.Alloc(e.padded)
	if err != nil {
		return nil, err
	}
	copy(r.Bytes(), data)
	e.data = r
	e.capacity = e.padded
	e.set = true
	return e, nil
}
