package kvstore

import (
	"fmt"

	"hash/crc32"

	"github.com/rarydzu/monoio/utils"
)

const (
	headerSize = 12
	metaSize   = 16
	// MaxValueSize bounds one array.
	MaxValueSize = 64 << 20
)

type Record struct {
	Key   uint64
	Value []byte
}

func NewRecord(key uint64, value []byte) *Record {
	return &Record{Key: key, Value: value}
}

func (r *Record) CalculateCRC(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func (r *Record) Encode() []byte {
	buf := make([]byte, metaSize+len(r.Value)) // 8 + 4 + len(value) + 4
	valueLen := uint32(len(r.Value))
	copy(buf[0:8], utils.Uint64ToBytes(r.Key))
	copy(buf[8:12], utils.Uint32ToBytes(valueLen))
	valEndPos := headerSize + valueLen
	copy(buf[headerSize:valEndPos], r.Value)
	crc := r.CalculateCRC(buf[0:valEndPos])
	copy(buf[valEndPos:], utils.Uint32ToBytes(crc))
	return buf
}

// Decode parses data into r. Value aliases data.
func (r *Record) Decode(data []byte) error {
	if len(data) < metaSize {
		return fmt.Errorf("record too short: %d bytes", len(data))
	}
	r.Key = utils.BytesToUint64(data[0:8])
	valueLen := utils.BytesToUint32(data[8:12])
	if int(valueLen) != len(data)-metaSize {
		return fmt.Errorf("record length %d does not match %d stored bytes", valueLen, len(data)-metaSize)
	}
	valEndPos := headerSize + valueLen
	r.Value = data[headerSize:valEndPos]
	crc32 := utils.BytesToUint32(data[valEndPos : valEndPos+4])
	crc := r.CalculateCRC(data[0:valEndPos])
	if crc != crc32 {
		return fmt.Errorf("CRC check failed %d != %d", crc, crc32)
	}
	return nil
}
