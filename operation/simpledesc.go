package operation

import (
	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/utils"
)

// SimpleConfig fixes the shape of a SimpleDesc for its whole life.
type SimpleConfig struct {
	MaxKeyLen   int
	Entries     int
	EntryBufLen int
	RecordSize  int
	Async       bool
}

// SimpleDesc is a reusable request. Keys are padded to MaxKeyLen and every
// entry owns a buffer of EntryBufLen bytes, so a reused descriptor is
// re-encoded in place.
type SimpleDesc struct {
	base
	cfg SimpleConfig
}

var _ Operation = (*SimpleDesc)(nil)

func NewSimpleDesc(cfg SimpleConfig) (*SimpleDesc, error) {
	switch {
	case cfg.MaxKeyLen <= 0 || cfg.MaxKeyLen > desc.MaxKeyLen:
		return nil, invalidf("max key length %d out of range", cfg.MaxKeyLen)
	case cfg.Entries <= 0 || cfg.Entries > desc.MaxSlots:
		return nil, invalidf("entry count %d out of range", cfg.Entries)
	case cfg.RecordSize <= 0:
		return nil, invalidf("record size %d must be positive", cfg.RecordSize)
	case cfg.EntryBufLen < cfg.RecordSize:
		return nil, invalidf("entry buffer %d below record size %d", cfg.EntryBufLen, cfg.RecordSize)
	}
	d := &SimpleDesc{cfg: cfg}
	d.flags = desc.FlagReusable
	if cfg.Async {
		d.flags |= desc.FlagAsync
	}
	d.maxKeyLen = cfg.MaxKeyLen
	d.recordSize = cfg.RecordSize
	d.header = desc.Header{Flags: d.flags, MaxKeyLen: uint16(cfg.MaxKeyLen)}
	capacity := utils.RoundUp(cfg.EntryBufLen, cfg.RecordSize)
	for i := 0; i < cfg.Entries; i++ {
		r, err := desc.Alloc(capacity)
		if err != nil {
			d.free()
			return nil, err
		}
		d.entries = append(d.entries, &Entry{
			owner:    &d.base,
			data:     r,
			capacity: capacity,
			akey:     make([]byte, 0, cfg.MaxKeyLen),
		})
	}
	return d, nil
}

func (d *SimpleDesc) Config() SimpleConfig { return d.cfg }

// SetDkey sets the distribution key of the next submission.
func (d *SimpleDesc) SetDkey(dkey string) error {
	if err := d.mutable(); err != nil {
		return err
	}
	key := []byte(dkey)
	if err := desc.CheckKey(d.header, key); err != nil {
		return err
	}
	d.dkey = append(d.dkey[:0], key...)
	return nil
}

// Entry returns slot i.
func (d *SimpleDesc) Entry(i int) *Entry {
	return d.entries[i]
}
