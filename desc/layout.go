// Package desc defines the descriptor buffer exchanged with the storage engine.
//
// A descriptor is a flat little-endian record:
//
//	prefix   kind u8 | flags u8 | max key u16 | slots u16 | reserved u16 |
//	         record size u32 | total length u32 | result offset u32
//	async    queue handle u64 | event id u16            (FlagAsync only)
//	dkey     length u16 | bytes                         (padded when FlagReusable)
//	count    u16
//	entry    akey length u16 | bytes | offset u32/u64 | length u32 | address u64
//	result   status i32 | actual size u32 per slot      (fetch size only)
package desc

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUpdate Kind = 1
	KindFetch  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindFetch:
		return "fetch"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

const (
	FlagAsync    uint8 = 1
	FlagReusable uint8 = 2
	FlagWide     uint8 = 4
)

const (
	PrefixSize      = 20
	AsyncHeaderSize = 10
	// MaxKeyLen is the largest key a descriptor can carry.
	MaxKeyLen = 32767
	// MaxSlots bounds the entries of one descriptor.
	MaxSlots = 32767

	statusSize = 4
	sizeField  = 4
	addrField  = 8
)

var (
	ErrKeyTooLong = errors.New("key too long")
	ErrEmptyKey   = errors.New("empty key")
	ErrMalformed  = errors.New("malformed descriptor")
)

// Header is the fixed prefix every descriptor starts with.
type Header struct {
	Kind         Kind
	Flags        uint8
	MaxKeyLen    uint16
	Slots        uint16
	RecordSize   uint32
	Length       uint32
	ResultOffset uint32
}

func (h Header) Async() bool    { return h.Flags&FlagAsync != 0 }
func (h Header) Reusable() bool { return h.Flags&FlagReusable != 0 }
func (h Header) Wide() bool     { return h.Flags&FlagWide != 0 }

func (h Header) OffsetWidth() int {
	if h.Wide() {
		return 8
	}
	return 4
}

// KeyWidth is the number of key bytes laid out for a key of length n.
func (h Header) KeyWidth(n int) int {
	if h.Reusable() {
		return int(h.MaxKeyLen)
	}
	return n
}

// HasResult reports whether the engine writes a result region back.
func (h Header) HasResult() bool {
	return h.Kind == KindFetch || h.Async() || h.Reusable()
}

// ResultSize is the size of the result region. Reusable descriptors reserve
// the fetch size so the kind can change between submissions.
func (h Header) ResultSize() int {
	if !h.HasResult() {
		return 0
	}
	if h.Kind == KindFetch || h.Reusable() {
		return statusSize + sizeField*int(h.Slots)
	}
	return statusSize
}

// DkeyPos is the position of the dkey length field.
func (h Header) DkeyPos() int {
	if h.Async() {
		return PrefixSize + AsyncHeaderSize
	}
	return PrefixSize
}

// Positions below are only meaningful for reusable descriptors, whose keys are
// padded to MaxKeyLen and therefore have a fixed layout.

func (h Header) CountPos() int {
	return h.DkeyPos() + 2 + int(h.MaxKeyLen)
}

func (h Header) SlotSize() int {
	return 2 + int(h.MaxKeyLen) + h.OffsetWidth() + sizeField + addrField
}

func (h Header) EntryPos(i int) int {
	return h.CountPos() + 2 + i*h.SlotSize()
}

// Size returns the total descriptor length and the result region offset
// (0 when there is none) for the given key lengths. Reusable headers always
// lay out h.Slots padded entries and ignore the key lengths.
func Size(h Header, dkeyLen int, akeyLens []int) (length, resultOffset int) {
	n := h.DkeyPos() + 2 + h.KeyWidth(dkeyLen) + 2
	if h.Reusable() {
		n += int(h.Slots) * h.SlotSize()
	} else {
		for _, l := range akeyLens {
			n += 2 + h.KeyWidth(l) + h.OffsetWidth() + sizeField + addrField
		}
	}
	if h.HasResult() {
		return n + h.ResultSize(), n
	}
	return n, 0
}

// CheckKey validates a key against the protocol cap and the header's padding width.
func CheckKey(h Header, key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("%w: %d > %d", ErrKeyTooLong, len(key), MaxKeyLen)
	}
	if h.Reusable() && len(key) > int(h.MaxKeyLen) {
		return fmt.Errorf("%w: %d > %d", ErrKeyTooLong, len(key), h.MaxKeyLen)
	}
	return nil
}
