// Package operation holds the request objects submitted to the engine. Each
// operation owns an encoded descriptor and the data buffers its entries point at.
package operation

import (
	"errors"
	"fmt"

	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/engine"
)

var (
	ErrIllegalState    = errors.New("illegal operation state")
	ErrInvalidArgument = errors.New("invalid argument")
)

func illegalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIllegalState, fmt.Sprintf(format, args...))
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

type State int

const (
	StateNew State = iota
	StateEncoded
	StateSubmitted
	StateParsed
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateEncoded:
		return "encoded"
	case StateSubmitted:
		return "submitted"
	case StateParsed:
		return "parsed"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is the queue slot an asynchronous operation is bound to.
type Event interface {
	ID() uint16
	Handle() uint64
	// Abort cancels the submission. After a nil return the engine no longer
	// touches the operation's memory.
	Abort() error
}

// Operation is implemented by DataDesc, SimpleDesc and SingleDesc only.
type Operation interface {
	Kind() desc.Kind
	Dkey() string
	Entries() []*Entry
	Async() bool
	Reusable() bool
	// Addr is the descriptor address handed to the engine, 0 before Encode.
	Addr() uintptr
	State() State

	// Encode lays out the descriptor. Calling it again before the results
	// were parsed is a no-op; calling it after requires Reuse.
	Encode() error
	// Bind records the event of an asynchronous submission.
	Bind(ev Event) error
	// Event returns the bound event, nil when not in flight.
	Event() Event
	// Ready parses the result region after the engine reported completion.
	Ready() error
	// Unbind drops the event of a discarded operation once the engine
	// reported its slot, finishing a release that had to wait for it.
	Unbind() error
	// Reuse resets per-submission state of a reusable operation.
	Reuse() error
	// Release frees the buffers, aborting an in-flight submission first.
	Release() error
	Discard()
	Discarded() bool

	// Status is the engine status of the last parsed submission.
	Status() int32
	// Err is a *engine.StatusError when Status is not OK.
	Err() error

	sealed()
}

type base struct {
	kind       desc.Kind
	flags      uint8
	maxKeyLen  int
	recordSize int
	dkey       []byte
	entries    []*Entry
	region     *desc.Region
	header     desc.Header
	laidOut    bool
	state      State
	ev         Event
	discarded  bool
	pending    bool
	status     int32
	sizes      []uint32
}

func (b *base) sealed() {}

func (b *base) Kind() desc.Kind     { return b.kind }
func (b *base) Dkey() string        { return string(b.dkey) }
func (b *base) Entries() []*Entry   { return b.entries }
func (b *base) Async() bool         { return b.flags&desc.FlagAsync != 0 }
func (b *base) Reusable() bool      { return b.flags&desc.FlagReusable != 0 }
func (b *base) Event() Event        { return b.ev }
func (b *base) Discarded() bool     { return b.discarded }
func (b *base) Status() int32       { return b.status }
func (b *base) Discard()            { b.discarded = true }
func (b *base) Header() desc.Header { return b.header }

func (b *base) State() State {
	if b.state == StateEncoded && b.ev != nil {
		return StateSubmitted
	}
	return b.state
}

func (b *base) Addr() uintptr {
	if b.region == nil || !b.laidOut {
		return 0
	}
	return b.region.Addr()
}

func (b *base) Err() error {
	if b.status == 0 {
		return nil
	}
	return &engine.StatusError{Op: b.kind.String(), Status: engine.Status(b.status)}
}

// active is the number of entries carrying a request.
func (b *base) active() (int, error) {
	n := 0
	for n < len(b.entries) && b.entries[n].set {
		n++
	}
	for _, e := range b.entries[n:] {
		if e.set {
			return 0, invalidf("entry set after an empty slot %d", n)
		}
	}
	if n == 0 {
		return 0, invalidf("no entries")
	}
	return n, nil
}

func (b *base) mutable() error {
	switch {
	case b.state == StateReleased:
		return illegalf("operation released")
	case b.ev != nil:
		return illegalf("operation in flight on event %d", b.ev.ID())
	case b.state == StateParsed:
		return illegalf("results parsed, reuse first")
	}
	if b.state == StateEncoded {
		b.state = StateNew
	}
	return nil
}

func (b *base) Encode() error {
	switch b.state {
	case StateEncoded:
		return nil
	case StateParsed:
		return illegalf("encode after results were parsed")
	case StateReleased:
		return illegalf("encode of released operation")
	}
	if b.discarded {
		return illegalf("encode of discarded operation")
	}
	if err := desc.CheckKey(b.header, b.dkey); err != nil {
		return fmt.Errorf("dkey: %w", err)
	}
	count, err := b.active()
	if err != nil {
		return err
	}
	kind := b.entries[0].kind
	for _, e := range b.entries[:count] {
		if e.kind != kind {
			return invalidf("mixed %s and %s entries", kind, e.kind)
		}
	}
	b.kind = kind
	if b.laidOut {
		err = b.reencode(count)
	} else {
		err = b.encodeFirst(count)
	}
	if err != nil {
		return err
	}
	b.state = StateEncoded
	return nil
}

func (b *base) eventFields() (uint64, uint16) {
	if b.ev == nil {
		return 0, 0
	}
	return b.ev.Handle(), b.ev.ID()
}

func (b *base) encodeFirst(count int) error {
	h := desc.Header{
		Kind:       b.kind,
		Flags:      b.flags,
		MaxKeyLen:  uint16(b.maxKeyLen),
		Slots:      uint16(count),
		RecordSize: uint32(b.recordSize),
	}
	if b.Reusable() {
		h.Slots = uint16(len(b.entries))
	}
	lens := make([]int, count)
	for i, e := range b.entries[:count] {
		lens[i] = len(e.akey)
	}
	length, result := desc.Size(h, len(b.dkey), lens)
	h.Length = uint32(length)
	h.ResultOffset = uint32(result)
	if b.region == nil {
		r, err := desc.Alloc(length)
		if err != nil {
			return err
		}
		b.region = r
	}
	w := desc.NewWriter(b.region.Bytes())
	w.Header(h)
	if h.Async() {
		handle, id := b.eventFields()
		w.U64(handle)
		w.U16(id)
	}
	w.Key(b.dkey, h.KeyWidth(len(b.dkey)))
	w.U16(uint16(count))
	slots := b.entries[:count]
	if b.Reusable() {
		slots = b.entries
	}
	for _, e := range slots {
		w.Key(e.akey, h.KeyWidth(len(e.akey)))
		w.Offset(e.offset, h.Wide())
		w.U32(uint32(e.padded))
		w.U64(uint64(e.Addr()))
	}
	if err := w.Err(); err != nil {
		return err
	}
	b.header = h
	b.sizes = make([]uint32, h.Slots)
	b.laidOut = true
	return nil
}

// reencode rewrites the variable fields of a reusable descriptor. Framing and
// entry addresses stay as the first encode wrote them.
func (b *base) reencode(count int) error {
	h := b.header
	h.Kind = b.kind
	buf := b.region.Bytes()
	w := desc.NewWriter(buf)
	w.U8(uint8(h.Kind))
	if h.Async() {
		handle, id := b.eventFields()
		w.Seek(desc.PrefixSize)
		w.U64(handle)
		w.U16(id)
	}
	w.Seek(h.DkeyPos())
	w.Key(b.dkey, int(h.MaxKeyLen))
	w.U16(uint16(count))
	for i, e := range b.entries[:count] {
		w.Seek(h.EntryPos(i))
		w.Key(e.akey, int(h.MaxKeyLen))
		w.Offset(e.offset, h.Wide())
		w.U32(uint32(e.padded))
	}
	if err := w.Err(); err != nil {
		return err
	}
	res := buf[h.ResultOffset : int(h.ResultOffset)+h.ResultSize()]
	for i := range res {
		res[i] = 0
	}
	b.header = h
	return nil
}

func (b *base) Bind(ev Event) error {
	switch {
	case !b.Async():
		return illegalf("bind of synchronous operation")
	case ev == nil:
		return invalidf("nil event")
	case b.ev != nil:
		return illegalf("already bound to event %d", b.ev.ID())
	case b.discarded:
		return illegalf("bind of discarded operation")
	case b.state == StateParsed || b.state == StateReleased:
		return illegalf("bind in state %s", b.state)
	}
	b.ev = ev
	if b.state == StateEncoded {
		w := desc.NewWriter(b.region.Bytes())
		w.Seek(desc.PrefixSize)
		w.U64(ev.Handle())
		w.U16(ev.ID())
		return w.Err()
	}
	return nil
}

func (b *base) Ready() error {
	if b.discarded {
		return illegalf("ready on discarded operation")
	}
	switch b.state {
	case StateParsed:
		return nil
	case StateNew, StateReleased:
		return illegalf("ready in state %s", b.state)
	}
	status, err := desc.ReadResult(b.region.Bytes(), b.header, b.sizes)
	if err != nil {
		// the queue recycles the slot either way
		b.ev = nil
		return err
	}
	b.status = status
	count := int(b.header.Slots)
	if b.Reusable() {
		count, _ = b.active()
	}
	for i, e := range b.entries[:count] {
		switch {
		case status != 0:
			e.actual = 0
		case b.kind == desc.KindFetch:
			e.actual = int(b.sizes[i])
			if e.actual > e.size {
				e.actual = e.size
			}
		default:
			e.actual = e.size
		}
	}
	b.ev = nil
	b.state = StateParsed
	return nil
}

func (b *base) Reuse() error {
	switch {
	case !b.Reusable():
		return illegalf("reuse of non-reusable operation")
	case b.state == StateReleased:
		return illegalf("reuse of released operation")
	case b.ev != nil:
		return illegalf("reuse while in flight on event %d", b.ev.ID())
	}
	for _, e := range b.entries {
		e.reset()
	}
	b.status = 0
	b.discarded = false
	b.state = StateNew
	return nil
}

func (b *base) Release() error {
	if b.state == StateReleased || b.pending {
		return nil
	}
	if b.ev != nil {
		ev := b.ev
		b.discarded = true
		if err := ev.Abort(); err != nil {
			b.pending = true
			return fmt.Errorf("release: abort event %d: %w", ev.ID(), err)
		}
		b.ev = nil
	}
	return b.free()
}

func (b *base) Unbind() error {
	b.ev = nil
	if b.pending {
		b.pending = false
		return b.free()
	}
	return nil
}

func (b *base) free() error {
	var errs []error
	if b.region != nil {
		if err := b.region.Free(); err != nil {
			errs = append(errs, err)
		}
		b.region = nil
	}
	for _, e := range b.entries {
		if err := e.free(); err != nil {
			errs = append(errs, err)
		}
	}
	b.state = StateReleased
	return errors.Join(errs...)
}
