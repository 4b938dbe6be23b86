package desc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, h Header, dkey []byte, akeys [][]byte, addrs []uint64) *Region {
	lens := make([]int, len(akeys))
	for i, k := range akeys {
		lens[i] = len(k)
	}
	length, result := Size(h, len(dkey), lens)
	h.Length = uint32(length)
	h.ResultOffset = uint32(result)
	r, err := Alloc(length)
	require.NoError(t, err)
	w := NewWriter(r.Bytes())
	w.Header(h)
	if h.Async() {
		w.U64(77)
		w.U16(3)
	}
	w.Key(dkey, h.KeyWidth(len(dkey)))
	w.U16(uint16(len(akeys)))
	for i, k := range akeys {
		w.Key(k, h.KeyWidth(len(k)))
		w.Offset(uint64(i*8), h.Wide())
		w.U32(8)
		w.U64(addrs[i])
	}
	require.NoError(t, w.Err())
	return r
}

func TestDecodeVariableKeys(t *testing.T) {
	h := Header{Kind: KindFetch, Flags: FlagWide, Slots: 2, RecordSize: 1}
	r := writeDescriptor(t, h, []byte("dkey"), [][]byte{[]byte("a"), []byte("akey2")}, []uint64{10, 20})
	defer r.Free()

	buf, err := ViewDescriptor(r.Addr())
	require.NoError(t, err)
	req, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, KindFetch, req.Kind)
	assert.False(t, req.Async())
	assert.Equal(t, []byte("dkey"), req.Dkey)
	require.Len(t, req.Entries, 2)
	assert.Equal(t, []byte("akey2"), req.Entries[1].Akey)
	assert.Equal(t, uint64(8), req.Entries[1].Offset)
	assert.Equal(t, uint32(8), req.Entries[1].Length)
	assert.Equal(t, uint64(20), req.Entries[1].Addr)

	require.NoError(t, req.SetResult(-1005, []uint32{3, 0}))
	sizes := make([]uint32, 2)
	status, err := ReadResult(r.Bytes(), req.Header, sizes)
	require.NoError(t, err)
	assert.Equal(t, int32(-1005), status)
	assert.Equal(t, []uint32{3, 0}, sizes)
}

func TestDecodeReusableLayout(t *testing.T) {
	h := Header{Kind: KindUpdate, Flags: FlagAsync | FlagReusable, MaxKeyLen: 6, Slots: 3, RecordSize: 1}
	r := writeDescriptor(t, h, []byte("dk"), [][]byte{[]byte("a"), []byte("bb")}, []uint64{1, 2})
	defer r.Free()

	// padded keys keep every slot at a fixed position
	assert.Equal(t, uint16(2), uint16(r.Bytes()[h.EntryPos(1)]))
	assert.Equal(t, []byte("bb"), r.Bytes()[h.EntryPos(1)+2:h.EntryPos(1)+4])

	req, err := Decode(r.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), req.Handle)
	assert.Equal(t, uint16(3), req.EventID)
	assert.Equal(t, []byte("dk"), req.Dkey)
	require.Len(t, req.Entries, 2)
	assert.Equal(t, uint64(4), req.Entries[1].Offset)
	assert.True(t, req.HasResult())
	assert.Equal(t, 4+4*3, req.ResultSize())
}

func TestDecodeRejectsCountAboveSlots(t *testing.T) {
	h := Header{Kind: KindFetch, Flags: FlagReusable, MaxKeyLen: 4, Slots: 1, RecordSize: 1}
	r := writeDescriptor(t, h, []byte("d"), [][]byte{[]byte("a")}, []uint64{1})
	defer r.Free()
	w := NewWriter(r.Bytes())
	w.Seek(h.CountPos())
	w.U16(2)
	_, err := Decode(r.Bytes())
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestCheckKey(t *testing.T) {
	h := Header{Flags: FlagReusable, MaxKeyLen: 4}
	assert.NoError(t, CheckKey(h, []byte("abcd")))
	assert.True(t, errors.Is(CheckKey(h, []byte("abcde")), ErrKeyTooLong))
	assert.True(t, errors.Is(CheckKey(Header{}, bytes.Repeat([]byte("k"), MaxKeyLen+1)), ErrKeyTooLong))
	assert.NoError(t, CheckKey(Header{}, bytes.Repeat([]byte("k"), MaxKeyLen)))
	assert.True(t, errors.Is(CheckKey(Header{}, nil), ErrEmptyKey))
}

func TestWriterOverflowSticks(t *testing.T) {
	w := NewWriter(make([]byte, 3))
	w.U16(1)
	w.U16(2)
	w.U8(3)
	assert.True(t, errors.Is(w.Err(), ErrMalformed))
	assert.Equal(t, 2, w.Pos())

	w = NewWriter(make([]byte, 8))
	w.Offset(1<<33, false)
	assert.Error(t, w.Err())
}

func TestCompleted(t *testing.T) {
	buf := make([]byte, CompletedSize(2))
	assert.Equal(t, 2, EncodeCompleted(buf, []uint16{5, 1, 9}))
	ids, err := DecodeCompleted(buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{5, 1}, ids)

	buf[0] = 9
	_, err = DecodeCompleted(buf, nil)
	assert.Error(t, err)
}

func TestRegion(t *testing.T) {
	r, err := Alloc(64)
	require.NoError(t, err)
	copy(r.Bytes(), "hello")
	assert.Equal(t, []byte("hello"), View(r.Addr(), 5))
	r.Zero()
	assert.Equal(t, make([]byte, 5), View(r.Addr(), 5))
	require.NoError(t, r.Free())
	assert.Equal(t, uintptr(0), r.Addr())
	assert.ErrorIs(t, r.Free(), ErrRegionFreed)

	_, err = Alloc(0)
	assert.Error(t, err)
}
