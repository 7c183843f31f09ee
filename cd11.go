// Package cd11 implements the CD-1.1 station data transport used to move
// seismic, hydroacoustic and infrasound waveform data from remote data
// providers to a receiving data center.
//
// A CD-1.1 connection is a single bidirectional TCP byte stream carrying
// frames in both directions until the connection ends. Every frame has the
// same shape, all integers are big endian:
//
//       -----------------------------------------------------
//      |  header (36)  |  body (...)  |  trailer (16 + auth)  |
//       -----------------------------------------------------
//
// Header:
//
//       ------------------------------------------------------------------
//      |  type(4)  |  trailer offset(4)  |  creator(8)  |  destination(8) |
//      |  sequence number(8)  |  series(4)                                |
//       ------------------------------------------------------------------
//
// The trailer offset is the length of header plus body, i.e. the position of
// the trailer in the frame. Creator and destination are NUL padded text.
//
// Trailer:
//
//       --------------------------------------------------------------------
//      |  auth key id(4)  |  auth size(4)  |  auth value(...)  |  crc64(8)  |
//       --------------------------------------------------------------------
//
// The CRC64 covers the header and the body. Variable length fields inside
// bodies are preceded by their size and padded with NUL bytes to a multiple
// of 4.
//
// Data frames carry a sequence number. The receiver tracks which sequence
// numbers are still missing (see GapList and SessionGaps) and periodically
// reports them back in an ACKNACK frame so the provider can retransmit.

package cd11

import (
	"errors"

	"github.com/getlantern/golog"
)

var (
	// ErrInvalidField is returned when a protocol field fails validation.
	ErrInvalidField = errors.New("invalid field")
	// ErrMalformedFrame is returned when frame bytes are truncated or
	// structurally invalid.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrCRCMismatch means the frame arrived corrupted.
	ErrCRCMismatch = errors.New("crc64 mismatch")
	// ErrUnsupportedFrameType is returned for frame types this package can
	// route but not encode or decode.
	ErrUnsupportedFrameType = errors.New("unsupported frame type")
	ErrNotConnected         = errors.New("not connected")
	ErrAlreadyConnected     = errors.New("already connected")
	ErrConnectFailed        = errors.New("failed to connect")
	// ErrReadHalted is returned when a read was halted before any byte of
	// a frame was consumed. The stream is still usable.
	ErrReadHalted = errors.New("read halted")
	// ErrStreamDesynchronized is returned when a read was halted in the
	// middle of a frame. The stream has to be disconnected.
	ErrStreamDesynchronized = errors.New("read halted mid-frame, stream desynchronized")
	ErrRangeOutOfBounds     = errors.New("range out of bounds")
	ErrInvalidExpiry        = errors.New("expiry must be at least one day")
	ErrClosed               = errors.New("closed listener")

	log = golog.LoggerFor("cd11")
)
