package cd11

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRCTable(t *testing.T) {
	assert.Len(t, crcTable, 256)
	assert.Equal(t, uint64(0), crcTable[0])
	assert.Equal(t, crcPoly, crcTable[1])
	assert.Equal(t, uint64(0xD80), crcTable[0x80])
	assert.Equal(t, uint64(0x909), crcTable[0xFF])
}

func TestComputeCRC64(t *testing.T) {
	assert.Equal(t, uint64(0), ComputeCRC64(nil))
	assert.Equal(t, uint64(1), ComputeCRC64([]byte{1}))
	assert.Equal(t, uint64(0x1B), ComputeCRC64([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, uint64(0x3233343536373AF2), ComputeCRC64([]byte("123456789")))

	b := []byte("the quick brown fox jumps over the lazy dog")
	assert.Equal(t, ComputeCRC64(b), ComputeCRC64(b), "should be deterministic")
	assert.True(t, IsValidCRC64(b, ComputeCRC64(b)))
	assert.False(t, IsValidCRC64(b, ComputeCRC64(b)^1))
}

func TestCRC64Hash(t *testing.T) {
	b := []byte("123456789")
	h := NewCRC64()
	_, _ = h.Write(b[:4])
	_, _ = h.Write(b[4:])
	assert.Equal(t, ComputeCRC64(b), h.Sum64())
	sum := h.Sum(nil)
	assert.Equal(t, h.Sum64(), binary.BigEndian.Uint64(sum))
	assert.Equal(t, 8, h.Size())
	h.Reset()
	assert.Equal(t, uint64(0), h.Sum64())
}
