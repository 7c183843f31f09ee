package cd11

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBuilder = &FrameBuilder{Creator: "TXAR", Destination: "0", AuthKeyID: 7}

func testTime() time.Time {
	return time.Date(2023, time.July, 14, 6, 30, 1, 250*int(time.Millisecond), time.UTC)
}

func testBodies() []Body {
	return []Body{
		&ConnectionRequest{
			MajorVersion: ProtocolMajorVersion, MinorVersion: ProtocolMinorVersion,
			StationName: "TXAR", StationType: "IMS", ServiceType: "TCP",
			IPAddress: 0x7F000001, Port: 8100,
		},
		&ConnectionResponse{
			MajorVersion: ProtocolMajorVersion, MinorVersion: ProtocolMinorVersion,
			ResponderName: "IDC", ResponderType: "IDC", ServiceType: "TCP",
			IPAddress: 0x0A000001, Port: 8101, SecondIPAddress: 0x0A000002, SecondPort: 8102,
		},
		&OptionRequest{Options: []Option{{Type: OptionFramesetName, Value: []byte("TXAR")}}},
		&OptionResponse{Options: []Option{{Type: OptionFramesetName, Value: []byte("TXAR:0")}, {Type: 2}}},
		&DataFrame{
			FrameTimeLength: 10 * time.Second,
			NominalTime:     testTime(),
			Channels: []ChannelSubframe{
				{
					Transformation: 1, SensorType: 0,
					Site: "TXAR", Channel: "BHZ", Location: "00", DataType: "s4",
					CalibrationFactor: 0.5, CalibrationPeriod: 1,
					Timestamp: testTime(), TimeLength: 10 * time.Second, Samples: 3,
					ChannelStatus: []byte{1, 2, 3, 4, 5},
					Data:          []byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3},
				},
				{
					Authentication: 1, OptionFlag: OptionSubframeCount,
					Site: "TXA1", Channel: "SHE", DataType: "cd",
					Timestamp: testTime(), TimeLength: 10 * time.Second, Samples: 1,
					Data:          []byte{9, 9, 9},
					SubframeCount: 2,
					AuthKeyID:     3,
					AuthValue:     []byte("sig"),
				},
			},
		},
		&Acknack{FramesetAcked: "TXAR:0", LowestSeqNum: 1, HighestSeqNum: 100, Gaps: []Range{{5, 9}, {20, 20}}},
		&Alert{Message: "shutting down"},
		&CommandRequest{StationName: "TXAR", Site: "TXAR", Channel: "BHZ", Location: "00", Timestamp: testTime(), Command: "calibrate start"},
		&CommandResponse{ResponderStation: "TXAR", Site: "TXAR", Channel: "BHZ", Timestamp: testTime(), CommandRequest: "calibrate start", Response: "ok"},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for i, body := range testBodies() {
		t.Run(body.FrameType().String(), func(t *testing.T) {
			seq := uint64(0)
			if body.FrameType().IsDataBearing() {
				seq = uint64(1000 + i)
			}
			f, err := testBuilder.Build(body, seq)
			require.NoError(t, err)
			b, err := f.Marshal()
			require.NoError(t, err)
			assert.Equal(t, f.Len(), len(b))
			assert.Zero(t, len(b)%4, "frames should be 4 byte aligned")
			assert.Equal(t, int(f.Header.TrailerOffset)+f.Trailer.Len(), len(b))
			assert.True(t, IsValidCRC64(b[:f.Header.TrailerOffset], f.Trailer.CommVerification))

			out, err := DecodeFrame(b)
			require.NoError(t, err)
			assert.Equal(t, f, out)

			out, err = ReadFrame(bytes.NewReader(b))
			require.NoError(t, err)
			assert.Equal(t, f, out)
		})
	}
}

func TestBuildHeader(t *testing.T) {
	f, err := testBuilder.Build(&Alert{Message: "abcde"}, 0)
	require.NoError(t, err)
	assert.Equal(t, AlertFrame, f.Header.FrameType)
	assert.Equal(t, int32(HeaderLen+4+8), f.Header.TrailerOffset)
	assert.Equal(t, "TXAR", f.Header.Creator)
	assert.Equal(t, "0", f.Header.Destination)
	assert.Equal(t, int32(7), f.Trailer.AuthKeyID)

	b, err := f.Marshal()
	require.NoError(t, err)
	assert.Equal(t, uint32(AlertFrame), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, []byte("TXAR\x00\x00\x00\x00"), b[8:16])
	assert.Equal(t, []byte("abcde\x00\x00\x00"), b[HeaderLen+4:HeaderLen+12])
	assert.Equal(t, ComputeCRC64(b[:f.Header.TrailerOffset]), f.Trailer.CommVerification)
	assert.Equal(t, f.Trailer.CommVerification, binary.BigEndian.Uint64(b[len(b)-8:]))
}

func TestBuildValidatesIdentity(t *testing.T) {
	_, err := (&FrameBuilder{Creator: "WAYTOOLONG", Destination: "0"}).Build(&Alert{}, 0)
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = (&FrameBuilder{Creator: "TXAR"}).Build(&Alert{}, 0)
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = testBuilder.Build(&ConnectionRequest{StationName: "WAYTOOLONG"}, 0)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestMarshalChecksDeclaredLength(t *testing.T) {
	f, err := testBuilder.Build(&Alert{Message: "abc"}, 0)
	require.NoError(t, err)
	f.Body = &Alert{Message: "a much longer message"}
	_, err = f.Marshal()
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestMarshalRejectsImpossibleLengths(t *testing.T) {
	for _, offset := range []int32{-1, 0, HeaderLen - 1, MaxFrameLen} {
		f, err := testBuilder.Build(&Alert{Message: "abc"}, 0)
		require.NoError(t, err)
		f.Header.TrailerOffset = offset
		assert.NotPanics(t, func() {
			_, err = f.Marshal()
		})
		assert.ErrorIs(t, err, ErrMalformedFrame, "offset %d", offset)
	}
}

func TestDecodeCRCMismatch(t *testing.T) {
	f, err := testBuilder.Build(&Acknack{FramesetAcked: "TXAR:0", LowestSeqNum: 1, HighestSeqNum: 2}, 0)
	require.NoError(t, err)
	b, err := f.Marshal()
	require.NoError(t, err)

	corrupt := append([]byte(nil), b...)
	corrupt[len(corrupt)-1] ^= 0x01
	assert.False(t, IsValidCRC64(corrupt[:f.Header.TrailerOffset], binary.BigEndian.Uint64(corrupt[len(corrupt)-8:])))
	_, err = DecodeFrame(corrupt)
	assert.ErrorIs(t, err, ErrCRCMismatch)

	corrupt = append([]byte(nil), b...)
	corrupt[HeaderLen+2] ^= 0x80
	_, err = DecodeFrame(corrupt)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

func TestDecodeTruncated(t *testing.T) {
	f, err := testBuilder.Build(testBodies()[4], 1)
	require.NoError(t, err)
	b, err := f.Marshal()
	require.NoError(t, err)

	for _, n := range []int{0, 10, HeaderLen, HeaderLen + 10, len(b) - 1} {
		_, err = DecodeFrame(b[:n])
		assert.ErrorIs(t, err, ErrMalformedFrame, "length %d", n)
	}
	_, err = ReadFrame(bytes.NewReader(b[:len(b)-1]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	_, err = ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeUnknownType(t *testing.T) {
	w := &wireWriter{}
	(&Header{FrameType: 42, TrailerOffset: HeaderLen, Creator: "X", Destination: "Y"}).marshal(w)
	_, err := ParseHeader(w.buf)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeUnsupportedType(t *testing.T) {
	b := rawFrame(CD1EncapsulationFrame, []byte{1, 2, 3, 4})
	_, err := DecodeFrame(b)
	assert.ErrorIs(t, err, ErrUnsupportedFrameType)
	assert.NotErrorIs(t, err, ErrMalformedFrame)

	// the whole frame is consumed so the stream stays usable
	r := bytes.NewReader(append(b, b...))
	_, err = ReadFrame(r)
	assert.ErrorIs(t, err, ErrUnsupportedFrameType)
	_, err = ReadFrame(r)
	assert.ErrorIs(t, err, ErrUnsupportedFrameType)
	assert.Zero(t, r.Len())
}

func TestDecodeStripsTextPadding(t *testing.T) {
	body := &wireWriter{}
	body.text("frameset", "TXAR:0  ", MaxFramesetNameLen)
	body.u64(1)
	body.u64(1)
	body.u32(0)
	f, err := DecodeFrame(rawFrame(AcknackFrame, body.buf))
	require.NoError(t, err)
	assert.Equal(t, "TXAR:0", f.Body.(*Acknack).FramesetAcked)
}

func TestDecodeRejectsBadCounts(t *testing.T) {
	body := &wireWriter{}
	body.text("frameset", "TXAR:0", MaxFramesetNameLen)
	body.u64(1)
	body.u64(1)
	body.u32(1000)
	_, err := DecodeFrame(rawFrame(AcknackFrame, body.buf))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	body = &wireWriter{}
	body.u32(100)
	_, err = DecodeFrame(rawFrame(AlertFrame, body.buf))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeRejectsTrailingBodyBytes(t *testing.T) {
	body := &wireWriter{}
	body.sized([]byte("hi"))
	body.u32(0)
	_, err := DecodeFrame(rawFrame(AlertFrame, body.buf))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDataFrameChannelMismatch(t *testing.T) {
	df := testBodies()[4].(*DataFrame)
	f, err := testBuilder.Build(df, 1)
	require.NoError(t, err)
	b, err := f.Marshal()
	require.NoError(t, err)
	// the channel string starts after count, time length, nominal time and
	// its own size field
	off := HeaderLen + 4 + 4 + JulianDateLen + 4
	b[off] = 'X'
	binary.BigEndian.PutUint64(b[len(b)-8:], ComputeCRC64(b[:f.Header.TrailerOffset]))
	_, err = DecodeFrame(b)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

// rawFrame assembles a frame around an arbitrary body without going through
// the body encoders.
func rawFrame(ft FrameType, body []byte) []byte {
	w := &wireWriter{}
	(&Header{FrameType: ft, TrailerOffset: int32(HeaderLen + len(body)), Creator: "TXAR", Destination: "0"}).marshal(w)
	w.buf = append(w.buf, body...)
	crc := ComputeCRC64(w.buf)
	(&Trailer{CommVerification: crc}).marshal(w)
	return w.buf
}
