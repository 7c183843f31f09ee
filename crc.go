package cd11

import "hash"

// crcPoly is x^64 + x^4 + x^3 + x + 1 without the implicit x^64 term.
const crcPoly uint64 = 0x1B

var crcTable = makeCRCTable()

func makeCRCTable() *[256]uint64 {
	var t [256]uint64
	for i := 0; i < 256; i++ {
		var v uint64
		for j := 7; j >= 0; j-- {
			if i&(1<<uint(j)) != 0 {
				v ^= crcPoly << uint(j)
			}
		}
		t[i] = v
	}
	return &t
}

func updateCRC64(crc uint64, p []byte) uint64 {
	for _, b := range p {
		crc = crcTable[(crc>>56)&0xFF] ^ (crc<<8 | uint64(b))
	}
	return crc
}

// ComputeCRC64 returns the CD-1.1 communication verification value of b.
func ComputeCRC64(b []byte) uint64 {
	return updateCRC64(0, b)
}

// IsValidCRC64 reports whether b checksums to expected.
func IsValidCRC64(b []byte, expected uint64) bool {
	return ComputeCRC64(b) == expected
}

type crc64Digest struct {
	crc uint64
}

// NewCRC64 returns a hash.Hash64 computing the CD-1.1 CRC64. Sum appends the
// value in big endian order.
func NewCRC64() hash.Hash64 {
	return &crc64Digest{}
}

func (d *crc64Digest) Write(p []byte) (int, error) {
	d.crc = updateCRC64(d.crc, p)
	return len(p), nil
}

func (d *crc64Digest) Sum64() uint64 { return d.crc }

func (d *crc64Digest) Sum(in []byte) []byte {
	s := d.crc
	return append(in, byte(s>>56), byte(s>>48), byte(s>>40), byte(s>>32), byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (d *crc64Digest) Reset()         { d.crc = 0 }
func (d *crc64Digest) Size() int      { return 8 }
func (d *crc64Digest) BlockSize() int { return 1 }
