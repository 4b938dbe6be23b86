// Package kvstore keeps object arrays: one byte array per (dkey, akey) pair,
// stored as a CRC protected record in a pluggable key/value backend.
package kvstore

import (
	"errors"
	"fmt"

	"github.com/rarydzu/monoio/utils"
	"github.com/ztrue/tracerr"
)

var ErrNotFound = errors.New("kvstore: key not found")

// Store is a raw key/value backend. Get returns ErrNotFound for missing keys
// and Delete of a missing key succeeds.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Close() error
}

// KVStore layers array records over a Store. Callers serialize access per
// key.
type KVStore struct {
	Store
}

func NewKVStore(store Store) *KVStore {
	return &KVStore{store}
}

// GetRecord returns the record of key. A missing key gives an empty record.
func (kv *KVStore) GetRecord(key []byte) (*Record, error) {
	kh := utils.KeyHash(key)
	data, err := kv.Store.Get(key)
	if errors.Is(err, ErrNotFound) {
		return NewRecord(kh, nil), nil
	}
	if err != nil {
		return nil, err
	}
	r := &Record{}
	if err := r.Decode(data); err != nil {
		return nil, tracerr.Errorf("record %q: %w", key, err)
	}
	if r.Key != kh {
		return nil, tracerr.Errorf("record %q: key hash %x does not match %x", key, r.Key, kh)
	}
	return r, nil
}

func (kv *KVStore) PutRecord(key []byte, r *Record) error {
	return kv.Store.Put(key, r.Encode())
}

// ReadAt copies the array bytes of key starting at offset into buf and
// returns how many were present.
func (kv *KVStore) ReadAt(key []byte, offset uint64, buf []byte) (int, error) {
	r, err := kv.GetRecord(key)
	if err != nil {
		return 0, err
	}
	if offset >= uint64(len(r.Value)) {
		return 0, nil
	}
	return copy(buf, r.Value[offset:]), nil
}

// WriteAt stores data at offset, zero filling the array up to offset when it
// is shorter.
func (kv *KVStore) WriteAt(key []byte, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > MaxValueSize {
		return fmt.Errorf("write %q at %d: %d bytes exceed the %d byte array limit", key, offset, len(data), MaxValueSize)
	}
	r, err := kv.GetRecord(key)
	if err != nil {
		return err
	}
	end := int(offset) + len(data)
	if end > len(r.Value) {
		grown := make([]byte, end)
		copy(grown, r.Value)
		r.Value = grown
	}
	copy(r.Value[offset:], data)
	return kv.PutRecord(key, r)
}

// Size returns the array length of key.
func (kv *KVStore) Size(key []byte) (int, error) {
	r, err := kv.GetRecord(key)
	if err != nil {
		return 0, err
	}
	return len(r.Value), nil
}
