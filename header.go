package cd11

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// FrameType is the type tag found in the first four bytes of every frame.
type FrameType int32

const (
	ConnectionRequestFrame  FrameType = 1
	ConnectionResponseFrame FrameType = 2
	OptionRequestFrame      FrameType = 3
	OptionResponseFrame     FrameType = 4
	DataFrameType           FrameType = 5
	AcknackFrame            FrameType = 6
	AlertFrame              FrameType = 7
	CommandRequestFrame     FrameType = 8
	CommandResponseFrame    FrameType = 9
	// CD1EncapsulationFrame is recognized on the wire but not supported.
	CD1EncapsulationFrame FrameType = 13
)

const (
	// HeaderLen is the size of the fixed frame header.
	HeaderLen = 36
	// trailerFixedLen covers the auth key id and auth size fields.
	trailerFixedLen = 8
	crcLen          = 8
	// MinFrameLen is the size of a frame with an empty body and no
	// authentication value.
	MinFrameLen = HeaderLen + trailerFixedLen + crcLen
	// MaxFrameLen bounds the memory a single frame may claim.
	MaxFrameLen = 16 << 20
)

func (ft FrameType) String() string {
	switch ft {
	case ConnectionRequestFrame:
		return "CONNECTION_REQUEST"
	case ConnectionResponseFrame:
		return "CONNECTION_RESPONSE"
	case OptionRequestFrame:
		return "OPTION_REQUEST"
	case OptionResponseFrame:
		return "OPTION_RESPONSE"
	case DataFrameType:
		return "DATA"
	case AcknackFrame:
		return "ACKNACK"
	case AlertFrame:
		return "ALERT"
	case CommandRequestFrame:
		return "COMMAND_REQUEST"
	case CommandResponseFrame:
		return "COMMAND_RESPONSE"
	case CD1EncapsulationFrame:
		return "CD_ONE_ENCAPSULATION"
	default:
		return fmt.Sprintf("FrameType(%d)", int32(ft))
	}
}

// IsKnown reports whether ft is one of the CD-1.1 frame types.
func (ft FrameType) IsKnown() bool {
	switch ft {
	case ConnectionRequestFrame, ConnectionResponseFrame, OptionRequestFrame,
		OptionResponseFrame, DataFrameType, AcknackFrame, AlertFrame,
		CommandRequestFrame, CommandResponseFrame, CD1EncapsulationFrame:
		return true
	}
	return false
}

// IsDataBearing reports whether frames of this type consume sequence
// numbers tracked by the receiver.
func (ft FrameType) IsDataBearing() bool {
	return ft == DataFrameType || ft == CommandResponseFrame
}

// Header is the fixed 36 byte frame header.
type Header struct {
	FrameType FrameType
	// TrailerOffset is the length of the header plus the body.
	TrailerOffset  int32
	Creator        string
	Destination    string
	SequenceNumber uint64
	Series         int32
}

func (h *Header) marshal(w *wireWriter) {
	w.u32(uint32(h.FrameType))
	w.u32(uint32(h.TrailerOffset))
	w.text("creator", h.Creator, MaxNameLen)
	w.text("destination", h.Destination, MaxNameLen)
	w.u64(h.SequenceNumber)
	w.u32(uint32(h.Series))
}

// ParseHeader decodes a fixed frame header. It checks that the type is
// known and that the declared length is plausible, but not that the type
// is supported.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformedFrame, HeaderLen, len(b))
	}
	r := newWireReader(b[:HeaderLen])
	h := Header{
		FrameType:      FrameType(r.u32()),
		TrailerOffset:  int32(r.u32()),
		Creator:        r.text(MaxNameLen),
		Destination:    r.text(MaxNameLen),
		SequenceNumber: r.u64(),
		Series:         int32(r.u32()),
	}
	if !h.FrameType.IsKnown() {
		return Header{}, fmt.Errorf("%w: unknown frame type %d", ErrMalformedFrame, int32(h.FrameType))
	}
	if h.TrailerOffset < HeaderLen || h.TrailerOffset > MaxFrameLen-trailerFixedLen-crcLen {
		return Header{}, fmt.Errorf("%w: trailer offset %d out of range", ErrMalformedFrame, h.TrailerOffset)
	}
	return h, nil
}

// Trailer follows the body of every frame.
type Trailer struct {
	AuthKeyID int32
	// AuthValue is the authentication signature, empty when the frame is
	// not authenticated.
	AuthValue []byte
	// CommVerification is the CRC64 of the header and body bytes.
	CommVerification uint64
}

// Len is the encoded size of the trailer.
func (t *Trailer) Len() int {
	return trailerFixedLen + paddedLen(len(t.AuthValue)) + crcLen
}

func (t *Trailer) marshal(w *wireWriter) {
	w.u32(uint32(t.AuthKeyID))
	w.sized(t.AuthValue)
	w.u64(t.CommVerification)
}

// paddedLen rounds n up to the next multiple of 4.
func paddedLen(n int) int {
	return (n + 3) &^ 3
}

// wireWriter appends big endian fields to buf. The first error sticks and
// further writes are ignored.
type wireWriter struct {
	buf []byte
	err error
}

func (w *wireWriter) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *wireWriter) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *wireWriter) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *wireWriter) u64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *wireWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *wireWriter) zeros(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// text writes s NUL padded to exactly width bytes.
func (w *wireWriter) text(field, s string, width int) {
	if len(s) > width {
		if w.err == nil {
			w.err = fmt.Errorf("%w: %s %q is longer than %d bytes", ErrInvalidField, field, s, width)
		}
		s = s[:width]
	}
	w.buf = append(w.buf, s...)
	w.zeros(width - len(s))
}

// julian writes t as a 20 byte yyyyddd hh:mm:ss.mmm field.
func (w *wireWriter) julian(t time.Time) {
	s := FormatJulianDate(t)
	if len(s) != JulianDateLen {
		if w.err == nil {
			w.err = fmt.Errorf("%w: time %v can't be written as a julian date", ErrInvalidField, t)
		}
		s = FormatJulianDate(time.Time{})
	}
	w.buf = append(w.buf, s...)
}

// sized writes the length of b followed by b padded to a multiple of 4.
func (w *wireWriter) sized(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	w.zeros(paddedLen(len(b)) - len(b))
}

// wireReader consumes big endian fields. Reading past the end records
// ErrMalformedFrame and yields zero values from then on.
type wireReader struct {
	b   []byte
	off int
	err error
}

func newWireReader(b []byte) *wireReader {
	return &wireReader{b: b}
}

func (r *wireReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.b)-r.off {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedFrame, n, r.off, len(r.b)-r.off)
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *wireReader) remaining() int {
	return len(r.b) - r.off
}

func (r *wireReader) u8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *wireReader) u16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (r *wireReader) u32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

func (r *wireReader) u64() uint64 {
	p := r.take(8)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint64(p)
}

func (r *wireReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *wireReader) skip(n int) {
	r.take(n)
}

// text reads a fixed width field and strips NUL padding and trailing
// whitespace.
func (r *wireReader) text(width int) string {
	return strings.TrimRight(string(r.take(width)), "\x00 \t\r\n")
}

// sized reads a length prefixed field and skips its padding. The result is
// a copy, nil when the field is empty.
func (r *wireReader) sized() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if n > uint32(r.remaining()) {
		r.err = fmt.Errorf("%w: field size %d exceeds remaining %d bytes", ErrMalformedFrame, n, r.remaining())
		return nil
	}
	p := r.take(paddedLen(int(n)))
	if p == nil || n == 0 {
		return nil
	}
	return append([]byte(nil), p[:n]...)
}

// julian reads a 20 byte timestamp field.
func (r *wireReader) julian() time.Time {
	p := r.take(JulianDateLen)
	if p == nil {
		return time.Time{}
	}
	t, err := ParseJulianDate(string(p))
	if err != nil {
		r.err = fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		return time.Time{}
	}
	return t
}

// done records an error unless every byte has been consumed.
func (r *wireReader) done() error {
	if r.err == nil && r.remaining() != 0 {
		r.err = fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, r.remaining())
	}
	return r.err
}
