package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundUp(t *testing.T) {
	assert.Equal(t, 8, RoundUp(5, 4))
	assert.Equal(t, 8, RoundUp(8, 4))
	assert.Equal(t, 5, RoundUp(5, 1))
	assert.Equal(t, 5, RoundUp(5, 0))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, []byte("d\x00a"), ObjectKey([]byte("d"), []byte("a")))
	assert.NotEqual(t, ObjectKey([]byte("ab"), []byte("c")), ObjectKey([]byte("a"), []byte("bc")))
}

func TestByteConversions(t *testing.T) {
	assert.Equal(t, uint64(0x0102030405060708), BytesToUint64(Uint64ToBytes(0x0102030405060708)))
	assert.Equal(t, byte(0x08), Uint64ToBytes(0x0102030405060708)[0])
	assert.Equal(t, uint32(7), BytesToUint32(Uint32ToBytes(7)))
	assert.Len(t, RandString(12), 12)
}
