package operation

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvent struct {
	id     uint16
	handle uint64
	aborts int
	err    error
}

func (f *fakeEvent) ID() uint16     { return f.id }
func (f *fakeEvent) Handle() uint64 { return f.handle }
func (f *fakeEvent) Abort() error {
	f.aborts++
	return f.err
}

// complete plays the engine: it copies payload into fetch buffers and
// writes the result region.
func complete(t *testing.T, op Operation, status int32, payload ...[]byte) {
	buf, err := desc.ViewDescriptor(op.Addr())
	require.NoError(t, err)
	req, err := desc.Decode(buf)
	require.NoError(t, err)
	sizes := make([]uint32, len(req.Entries))
	for i, e := range req.Entries {
		if i < len(payload) {
			sizes[i] = uint32(copy(e.Data(), payload[i]))
		}
	}
	require.NoError(t, req.SetResult(status, sizes))
}

func TestDataDescEncodeIsIdempotent(t *testing.T) {
	d, err := NewDataDesc("dkey", desc.KindFetch, 1)
	require.NoError(t, err)
	defer d.Release()
	_, err = d.AddFetch("akey", 0, 16)
	require.NoError(t, err)
	require.NoError(t, d.Encode())
	addr := d.Addr()
	snapshot := append([]byte(nil), desc.View(addr, int(d.Header().Length))...)
	require.NoError(t, d.Encode())
	assert.Equal(t, addr, d.Addr())
	assert.Equal(t, snapshot, desc.View(addr, int(d.Header().Length)))
	assert.Equal(t, StateEncoded, d.State())

	_, err = d.AddFetch("late", 0, 1)
	assert.True(t, errors.Is(err, ErrIllegalState))
}

func TestUpdatePaddedToRecordSize(t *testing.T) {
	d, err := NewDataDesc("dkey", desc.KindUpdate, 4)
	require.NoError(t, err)
	defer d.Release()
	e, err := d.AddUpdate("akey", 8, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, e.Size())
	assert.Equal(t, 8, e.PaddedSize())
	assert.Equal(t, []byte("hello\x00\x00\x00"), desc.View(e.Addr(), 8))
	assert.Equal(t, []byte("hello"), e.Data())

	require.NoError(t, d.Encode())
	req, err := desc.Decode(desc.View(d.Addr(), int(d.Header().Length)))
	require.NoError(t, err)
	assert.Equal(t, uint32(8), req.Entries[0].Length)
	assert.Equal(t, uint64(8), req.Entries[0].Offset)
	assert.False(t, req.HasResult())

	require.NoError(t, d.Ready())
	assert.Equal(t, 5, e.ActualSize())
}

func TestArgumentValidation(t *testing.T) {
	d, err := NewDataDesc("dkey", desc.KindFetch, 4)
	require.NoError(t, err)
	defer d.Release()
	_, err = d.AddFetch("akey", 3, 4)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = d.AddFetch("akey", 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = d.AddUpdate("akey", 0, []byte("x"))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = d.AddFetch(strings.Repeat("k", desc.MaxKeyLen+1), 0, 4)
	assert.True(t, errors.Is(err, desc.ErrKeyTooLong))
	assert.True(t, errors.Is(d.Encode(), ErrInvalidArgument))

	_, err = NewDataDesc("", desc.KindFetch, 1)
	assert.True(t, errors.Is(err, desc.ErrEmptyKey))
	_, err = NewSimpleDesc(SimpleConfig{MaxKeyLen: desc.MaxKeyLen + 1, Entries: 1, EntryBufLen: 1, RecordSize: 1})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestReadyNarrowsFetchedData(t *testing.T) {
	d, err := NewDataDesc("dkey", desc.KindFetch, 1)
	require.NoError(t, err)
	defer d.Release()
	short, err := d.AddFetch("a", 0, 10)
	require.NoError(t, err)
	full, err := d.AddFetch("b", 0, 3)
	require.NoError(t, err)
	require.NoError(t, d.Encode())
	complete(t, d, 0, []byte("abcd"), []byte("xyz"))
	require.NoError(t, d.Ready())
	assert.Equal(t, []byte("abcd"), short.Data())
	assert.Equal(t, 4, short.ActualSize())
	assert.Equal(t, []byte("xyz"), full.Data())
	assert.NoError(t, d.Err())

	// parsed once, encoding again needs a reuse the type does not allow
	assert.NoError(t, d.Ready())
	assert.True(t, errors.Is(d.Encode(), ErrIllegalState))
	assert.True(t, errors.Is(d.Reuse(), ErrIllegalState))
}

func TestReadyReportsEngineStatus(t *testing.T) {
	d, err := NewSingleFetch("dkey", "akey", 0, 8, 1)
	require.NoError(t, err)
	defer d.Release()
	ev := &fakeEvent{id: 1}
	require.NoError(t, d.Bind(ev))
	require.NoError(t, d.Encode())
	assert.Equal(t, StateSubmitted, d.State())
	complete(t, d, int32(engine.StatusNonexist), []byte("ignored"))
	require.NoError(t, d.Ready())
	assert.Equal(t, int32(engine.StatusNonexist), d.Status())
	assert.True(t, errors.Is(d.Err(), &engine.StatusError{Status: engine.StatusNonexist}))
	assert.Empty(t, d.Entry().Data())
	assert.Nil(t, d.Event())
}

func TestSyncOperationRejectsBind(t *testing.T) {
	d, err := NewDataDesc("dkey", desc.KindFetch, 1)
	require.NoError(t, err)
	defer d.Release()
	assert.True(t, errors.Is(d.Bind(&fakeEvent{}), ErrIllegalState))

	s, err := NewSingleFetch("dkey", "akey", 0, 8, 1)
	require.NoError(t, err)
	defer s.Release()
	require.NoError(t, s.Bind(&fakeEvent{id: 2}))
	assert.True(t, errors.Is(s.Bind(&fakeEvent{id: 3}), ErrIllegalState))
}

func newSimple(t *testing.T, async bool) *SimpleDesc {
	d, err := NewSimpleDesc(SimpleConfig{MaxKeyLen: 16, Entries: 3, EntryBufLen: 32, RecordSize: 1, Async: async})
	require.NoError(t, err)
	return d
}

func TestBindAfterEncodeWritesEventHeader(t *testing.T) {
	d := newSimple(t, true)
	defer d.Release()
	require.NoError(t, d.SetDkey("dkey"))
	require.NoError(t, d.Entry(0).SetFetch("akey", 0, 8))
	require.NoError(t, d.Encode())
	require.NoError(t, d.Bind(&fakeEvent{id: 5, handle: 9}))
	req, err := desc.Decode(desc.View(d.Addr(), int(d.Header().Length)))
	require.NoError(t, err)
	assert.Equal(t, uint16(5), req.EventID)
	assert.Equal(t, uint64(9), req.Handle)
}

func decoded(t *testing.T, op interface{ Addr() uintptr }) *desc.Request {
	buf, err := desc.ViewDescriptor(op.Addr())
	require.NoError(t, err)
	req, err := desc.Decode(buf)
	require.NoError(t, err)
	return req
}

func TestReuseMatchesFreshEncode(t *testing.T) {
	reused := newSimple(t, false)
	defer reused.Release()
	require.NoError(t, reused.SetDkey("a-much-longer-dk"))
	require.NoError(t, reused.Entry(0).SetUpdate("first", 0, []byte("0123456789")))
	require.NoError(t, reused.Entry(1).SetUpdate("second", 16, []byte("abc")))
	require.NoError(t, reused.Encode())
	addr := reused.Addr()
	first := decoded(t, reused)
	addrs := []uint64{first.Entries[0].Addr, first.Entries[1].Addr}
	complete(t, reused, 0)
	require.NoError(t, reused.Ready())

	require.NoError(t, reused.Reuse())
	require.NoError(t, reused.SetDkey("dk"))
	require.NoError(t, reused.Entry(0).SetFetch("x", 4, 6))
	require.NoError(t, reused.Encode())
	assert.Equal(t, addr, reused.Addr())

	fresh := newSimple(t, false)
	defer fresh.Release()
	require.NoError(t, fresh.SetDkey("dk"))
	require.NoError(t, fresh.Entry(0).SetFetch("x", 4, 6))
	require.NoError(t, fresh.Encode())

	got, want := decoded(t, reused), decoded(t, fresh)
	assert.Equal(t, want.Header, got.Header)
	assert.Equal(t, want.Dkey, got.Dkey)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, want.Entries[0].Akey, got.Entries[0].Akey)
	assert.Equal(t, want.Entries[0].Offset, got.Entries[0].Offset)
	assert.Equal(t, want.Entries[0].Length, got.Entries[0].Length)
	// addresses were written once and left alone
	assert.Equal(t, addrs[0], got.Entries[0].Addr)

	res := desc.View(reused.Addr()+uintptr(got.ResultOffset), got.ResultSize())
	assert.True(t, bytes.Equal(res, make([]byte, got.ResultSize())))
}

func TestSimpleDescMutationRules(t *testing.T) {
	d := newSimple(t, true)
	defer d.Release()
	require.NoError(t, d.SetDkey("dkey"))
	assert.True(t, errors.Is(d.SetDkey(strings.Repeat("k", 17)), desc.ErrKeyTooLong))
	assert.True(t, errors.Is(d.Entry(0).SetFetch("akey", 0, 33), ErrInvalidArgument))
	require.NoError(t, d.Entry(0).SetFetch("akey", 0, 8))
	require.NoError(t, d.Entry(1).SetUpdate("akey", 0, []byte("x")))
	assert.True(t, errors.Is(d.Encode(), ErrInvalidArgument))

	require.NoError(t, d.Reuse())
	require.NoError(t, d.Entry(1).SetFetch("akey", 0, 8))
	assert.True(t, errors.Is(d.Encode(), ErrInvalidArgument))

	require.NoError(t, d.Reuse())
	require.NoError(t, d.Entry(0).SetFetch("akey", 0, 8))
	require.NoError(t, d.Bind(&fakeEvent{id: 1}))
	require.NoError(t, d.Encode())
	assert.True(t, errors.Is(d.SetDkey("other"), ErrIllegalState))
	assert.True(t, errors.Is(d.Reuse(), ErrIllegalState))
	complete(t, d, 0, []byte("data"))
	require.NoError(t, d.Ready())
	assert.True(t, errors.Is(d.Entry(0).SetFetch("akey", 0, 8), ErrIllegalState))
	assert.Equal(t, []byte("data"), d.Entry(0).Data())
}

func TestReleaseInFlightAbortsOnce(t *testing.T) {
	d := newSimple(t, true)
	require.NoError(t, d.SetDkey("dkey"))
	require.NoError(t, d.Entry(0).SetFetch("akey", 0, 8))
	ev := &fakeEvent{id: 4}
	require.NoError(t, d.Bind(ev))
	require.NoError(t, d.Encode())

	require.NoError(t, d.Release())
	assert.Equal(t, 1, ev.aborts)
	assert.True(t, d.Discarded())
	assert.Equal(t, StateReleased, d.State())
	assert.Equal(t, uintptr(0), d.Addr())
	assert.True(t, errors.Is(d.Ready(), ErrIllegalState))

	require.NoError(t, d.Release())
	require.NoError(t, d.Unbind())
	assert.Equal(t, 1, ev.aborts)
}

func TestReleaseWaitsWhenAbortFails(t *testing.T) {
	d := newSimple(t, true)
	require.NoError(t, d.SetDkey("dkey"))
	require.NoError(t, d.Entry(0).SetFetch("akey", 0, 8))
	ev := &fakeEvent{id: 4, err: errors.New("engine busy")}
	require.NoError(t, d.Bind(ev))
	require.NoError(t, d.Encode())

	assert.Error(t, d.Release())
	assert.True(t, d.Discarded())
	assert.NotEqual(t, StateReleased, d.State())
	assert.NotZero(t, d.Addr())

	// a second release neither aborts again nor frees memory the engine may hold
	assert.NoError(t, d.Release())
	assert.Equal(t, 1, ev.aborts)
	assert.NotZero(t, d.Addr())

	require.NoError(t, d.Unbind())
	assert.Equal(t, StateReleased, d.State())
}

func TestExtentMustFitDescriptor(t *testing.T) {
	_, err := NewSingleFetch("dkey", "akey", 0, math.MaxUint32, 2)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = NewSingleFetch("dkey", "akey", 0, math.MaxUint32+1, 1)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	d, err := NewDataDesc("dkey", desc.KindFetch, 1)
	require.NoError(t, err)
	defer d.Release()
	_, err = d.AddFetch("akey", 0, math.MaxUint32+1)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestReadyFailureDropsEvent(t *testing.T) {
	d, err := NewSingleFetch("dkey", "akey", 0, 8, 1)
	require.NoError(t, err)
	ev := &fakeEvent{id: 3}
	require.NoError(t, d.Bind(ev))
	require.NoError(t, d.Encode())
	// result region past the end of the buffer
	d.header.ResultOffset = uint32(len(d.region.Bytes()))
	assert.Error(t, d.Ready())
	assert.Nil(t, d.Event())

	// the slot may already carry another operation, release must not abort it
	require.NoError(t, d.Release())
	assert.Equal(t, 0, ev.aborts)
	assert.Equal(t, StateReleased, d.State())
}
