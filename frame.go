package cd11

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Body is the type specific part of a frame. The set of implementations is
// closed: one per supported frame type.
type Body interface {
	FrameType() FrameType
	marshal(w *wireWriter)
}

// Frame is one complete CD-1.1 message.
type Frame struct {
	Header  Header
	Body    Body
	Trailer Trailer
}

// Len is the encoded size of the frame.
func (f *Frame) Len() int {
	return int(f.Header.TrailerOffset) + f.Trailer.Len()
}

// checkLen rejects declared lengths no frame can have before anything is
// sized from them.
func (f *Frame) checkLen() error {
	if f.Header.TrailerOffset < HeaderLen || f.Len() > MaxFrameLen {
		return fmt.Errorf("%w: trailer offset %d out of range", ErrMalformedFrame, f.Header.TrailerOffset)
	}
	return nil
}

// Marshal serializes the frame.
func (f *Frame) Marshal() ([]byte, error) {
	if err := f.checkLen(); err != nil {
		return nil, err
	}
	return f.AppendTo(make([]byte, 0, f.Len()))
}

// AppendTo appends the serialized frame to dst. It fails if the header's
// declared length doesn't match the body or the header type doesn't match
// the body type.
func (f *Frame) AppendTo(dst []byte) ([]byte, error) {
	if f.Body == nil {
		return dst, fmt.Errorf("%w: frame has no body", ErrMalformedFrame)
	}
	if f.Body.FrameType() != f.Header.FrameType {
		return dst, fmt.Errorf("%w: header type %v doesn't match body type %v", ErrMalformedFrame, f.Header.FrameType, f.Body.FrameType())
	}
	start := len(dst)
	w := &wireWriter{buf: dst}
	f.Header.marshal(w)
	f.Body.marshal(w)
	if w.err != nil {
		return dst, w.err
	}
	if declared, actual := int(f.Header.TrailerOffset), len(w.buf)-start; declared != actual {
		return dst, fmt.Errorf("%w: declared trailer offset %d but header and body take %d bytes", ErrMalformedFrame, declared, actual)
	}
	f.Trailer.marshal(w)
	return w.buf, w.err
}

// FrameBuilder assembles outgoing frames for one local identity.
type FrameBuilder struct {
	Creator     string
	Destination string
	AuthKeyID   int32
	Series      int32
}

// Validate checks the builder's identity fields.
func (b *FrameBuilder) Validate() error {
	if err := ValidateName("creator", b.Creator, MaxNameLen, false); err != nil {
		return err
	}
	return ValidateName("destination", b.Destination, MaxNameLen, false)
}

// Build turns body into a complete frame: the body is serialized first so
// the header can declare the right length, then the CRC64 of header and
// body goes into the trailer. seq should be 0 for frame types that are not
// sequenced.
func (b *FrameBuilder) Build(body Body, seq uint64) (*Frame, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: nil body", ErrMalformedFrame)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	bw := &wireWriter{}
	body.marshal(bw)
	if bw.err != nil {
		return nil, bw.err
	}
	bodyLen := len(bw.buf)
	if bodyLen > MaxFrameLen-MinFrameLen {
		return nil, fmt.Errorf("%w: %v body of %d bytes is too large", ErrInvalidField, body.FrameType(), bodyLen)
	}
	h := Header{
		FrameType:      body.FrameType(),
		TrailerOffset:  int32(HeaderLen + bodyLen),
		Creator:        b.Creator,
		Destination:    b.Destination,
		SequenceNumber: seq,
		Series:         b.Series,
	}
	w := &wireWriter{buf: make([]byte, 0, HeaderLen)}
	h.marshal(w)
	if w.err != nil {
		return nil, w.err
	}
	crc := NewCRC64()
	crc.Write(w.buf)
	crc.Write(bw.buf)
	return &Frame{
		Header: h,
		Body:   body,
		Trailer: Trailer{
			AuthKeyID:        b.AuthKeyID,
			CommVerification: crc.Sum64(),
		},
	}, nil
}

// frameLenAfterHeader returns how many bytes follow the header up to and
// including the trailer's auth size field.
func frameLenAfterHeader(h Header) int {
	return int(h.TrailerOffset) - HeaderLen + trailerFixedLen
}

// authRemainder returns how many bytes of the frame follow the trailer's
// fixed part, given the auth size read from it.
func authRemainder(authSize uint32, have int) (int, error) {
	if authSize > MaxFrameLen {
		return 0, fmt.Errorf("%w: auth size %d out of range", ErrMalformedFrame, authSize)
	}
	n := paddedLen(int(authSize)) + crcLen
	if have+n > MaxFrameLen {
		return 0, fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformedFrame, MaxFrameLen)
	}
	return n, nil
}

// readFrameBytes reads exactly one frame from r into buf, growing it when
// needed: the fixed header first to learn the body length, then the body and
// the trailer. onHeader, if not nil, is called once the header has been
// read.
func readFrameBytes(r io.Reader, buf []byte, onHeader func(Header)) ([]byte, Header, error) {
	if cap(buf) < HeaderLen {
		buf = make([]byte, HeaderLen, 256)
	}
	buf = buf[:HeaderLen]
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, Header{}, err
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, Header{}, err
	}
	if onHeader != nil {
		onHeader(h)
	}
	buf, err = readMore(r, buf, frameLenAfterHeader(h))
	if err != nil {
		return nil, h, err
	}
	authSize := binary.BigEndian.Uint32(buf[len(buf)-4:])
	n, err := authRemainder(authSize, len(buf))
	if err != nil {
		return nil, h, err
	}
	buf, err = readMore(r, buf, n)
	if err != nil {
		return nil, h, err
	}
	return buf, h, nil
}

func readMore(r io.Reader, buf []byte, n int) ([]byte, error) {
	l := len(buf)
	if cap(buf)-l < n {
		grown := make([]byte, l, l+n)
		copy(grown, buf)
		buf = grown
	}
	buf = buf[:l+n]
	if _, err := io.ReadFull(r, buf[l:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// ReadFrame reads and decodes one frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	b, _, err := readFrameBytes(r, make([]byte, 0, 256), nil)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(b)
}

// DecodeFrame decodes exactly one frame from b. The CRC is checked before
// the body is looked at, so ErrCRCMismatch takes precedence over body
// errors.
func DecodeFrame(b []byte) (*Frame, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if len(b) < int(h.TrailerOffset)+trailerFixedLen+crcLen {
		return nil, fmt.Errorf("%w: %d bytes can't hold trailer at offset %d", ErrMalformedFrame, len(b), h.TrailerOffset)
	}
	tr := newWireReader(b[h.TrailerOffset:])
	trailer := Trailer{AuthKeyID: int32(tr.u32())}
	trailer.AuthValue = tr.sized()
	trailer.CommVerification = tr.u64()
	if err := tr.done(); err != nil {
		return nil, err
	}
	if !IsValidCRC64(b[:h.TrailerOffset], trailer.CommVerification) {
		return nil, fmt.Errorf("%w: %v frame #%d from %v", ErrCRCMismatch, h.FrameType, h.SequenceNumber, h.Creator)
	}
	body, err := decodeBody(h.FrameType, b[HeaderLen:h.TrailerOffset])
	if err != nil {
		return nil, err
	}
	return &Frame{Header: h, Body: body, Trailer: trailer}, nil
}

func decodeBody(ft FrameType, b []byte) (Body, error) {
	r := newWireReader(b)
	var body Body
	switch ft {
	case ConnectionRequestFrame:
		body = decodeConnectionRequest(r)
	case ConnectionResponseFrame:
		body = decodeConnectionResponse(r)
	case OptionRequestFrame:
		body = &OptionRequest{Options: decodeOptions(r)}
	case OptionResponseFrame:
		body = &OptionResponse{Options: decodeOptions(r)}
	case DataFrameType:
		body = decodeDataFrame(r)
	case AcknackFrame:
		body = decodeAcknack(r)
	case AlertFrame:
		body = decodeAlert(r)
	case CommandRequestFrame:
		body = decodeCommandRequest(r)
	case CommandResponseFrame:
		body = decodeCommandResponse(r)
	case CD1EncapsulationFrame:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFrameType, ft)
	default:
		return nil, fmt.Errorf("%w: unknown frame type %d", ErrMalformedFrame, int32(ft))
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decoding %v body: %w", ft, err)
	}
	return body, nil
}
