package operation

import (
	"github.com/rarydzu/monoio/desc"
)

// SingleDesc is a one-shot asynchronous request carrying a single entry.
type SingleDesc struct {
	base
}

var _ Operation = (*SingleDesc)(nil)

func newSingle(dkey string, kind desc.Kind, akey string, offset uint64, size int, data []byte, recordSize int) (*SingleDesc, error) {
	if recordSize <= 0 {
		return nil, invalidf("record size %d must be positive", recordSize)
	}
	d := &SingleDesc{base: base{
		kind:       kind,
		flags:      desc.FlagAsync | desc.FlagWide,
		recordSize: recordSize,
		dkey:       []byte(dkey),
	}}
	d.header = desc.Header{Flags: d.flags}
	if err := desc.CheckKey(d.header, d.dkey); err != nil {
		return nil, err
	}
	e, err := newEntry(&d.base, kind, akey, offset, size, data)
	if err != nil {
		return nil, err
	}
	d.entries = []*Entry{e}
	return d, nil
}

func NewSingleFetch(dkey, akey string, offset uint64, size, recordSize int) (*SingleDesc, error) {
	return newSingle(dkey, desc.KindFetch, akey, offset, size, nil, recordSize)
}

func NewSingleUpdate(dkey, akey string, offset uint64, data []byte, recordSize int) (*SingleDesc, error) {
	return newSingle(dkey, desc.KindUpdate, akey, offset, len(data), data, recordSize)
}

// Entry returns the only entry.
func (d *SingleDesc) Entry() *Entry {
	return d.entries[0]
}
