package operation

import (
	"github.com/rarydzu/monoio/desc"
)

// DataDesc is a one-shot synchronous request with any number of entries of
// one kind. Offsets are encoded on 8 bytes.
type DataDesc struct {
	base
}

var _ Operation = (*DataDesc)(nil)

func NewDataDesc(dkey string, kind desc.Kind, recordSize int) (*DataDesc, error) {
	if kind != desc.KindFetch && kind != desc.KindUpdate {
		return nil, invalidf("unknown kind %d", kind)
	}
	if recordSize <= 0 {
		return nil, invalidf("record size %d must be positive", recordSize)
	}
	d := &DataDesc{base: base{
		kind:       kind,
		flags:      desc.FlagWide,
		recordSize: recordSize,
		dkey:       []byte(dkey),
	}}
	d.header = desc.Header{Flags: d.flags}
	if err := desc.CheckKey(d.header, d.dkey); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DataDesc) add(kind desc.Kind, akey string, offset uint64, size int, data []byte) (*Entry, error) {
	if kind != d.kind {
		return nil, invalidf("%s entry added to %s descriptor", kind, d.kind)
	}
	if d.state != StateNew || d.laidOut {
		return nil, illegalf("entries added after encode")
	}
	if len(d.entries) >= desc.MaxSlots {
		return nil, invalidf("more than %d entries", desc.MaxSlots)
	}
	e, err := newEntry(&d.base, kind, akey, offset, size, data)
	if err != nil {
		return nil, err
	}
	d.entries = append(d.entries, e)
	return e, nil
}

// AddFetch adds an extent to read into a new buffer of size bytes.
func (d *DataDesc) AddFetch(akey string, offset uint64, size int) (*Entry, error) {
	return d.add(desc.KindFetch, akey, offset, size, nil)
}

// AddUpdate adds an extent to write. data is copied and zero padded up to
// the record size.
func (d *DataDesc) AddUpdate(akey string, offset uint64, data []byte) (*Entry, error) {
	return d.add(desc.KindUpdate, akey, offset, len(data), data)
}
