package utils

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// Uint64ToBytes encodes i as 8 little-endian bytes.
func Uint64ToBytes(i uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], i)
	return buf[:]
}

func BytesToUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func Uint32ToBytes(i uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], i)
	return buf[:]
}

func BytesToUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// RoundUp rounds n up to the next multiple of m. m <= 1 returns n unchanged.
func RoundUp(n, m int) int {
	if m <= 1 {
		return n
	}
	if r := n % m; r != 0 {
		return n + m - r
	}
	return n
}

// ObjectKey joins a distribution key and an attribute key into one store key.
func ObjectKey(dkey, akey []byte) []byte {
	key := make([]byte, 0, len(dkey)+1+len(akey))
	key = append(key, dkey...)
	key = append(key, 0)
	return append(key, akey...)
}

// KeyHash returns the 64-bit FNV-1a hash of key.
func KeyHash(key []byte) uint64 {
	h := fnv.New64a()
	h.Write(key)
	return h.Sum64()
}

// RandString returns random string with length n
func RandString(n int) string {
	var letter = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.!?/\\-_=+<>")
	b := make([]rune, n)
	for i := range b {
		b[i] = letter[rand.Intn(len(letter))]
	}
	return string(b)
}
