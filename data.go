package cd11

import (
	"fmt"
	"time"
)

const (
	// channelIDLen is the width of one entry in a data frame's channel
	// string: site, channel and location names back to back.
	channelIDLen = siteLen + channelLen + locationLen
	// channelDescriptionLen is the fixed part of a channel subframe after
	// the length and authentication offset fields.
	channelDescriptionLen = 4 + channelIDLen + 2 + 4 + 4

	// OptionSubframeCount marks a subframe carrying a subframe count.
	OptionSubframeCount uint8 = 0x01
)

// DataFrame carries one time slice of waveform data for a set of channels.
type DataFrame struct {
	// FrameTimeLength is the duration covered by the frame, with
	// millisecond resolution on the wire.
	FrameTimeLength time.Duration
	NominalTime     time.Time
	Channels        []ChannelSubframe
}

// ChannelSubframe is the data of one channel inside a DataFrame. Status and
// data are opaque to this package.
type ChannelSubframe struct {
	Authentication    uint8
	Transformation    uint8
	SensorType        uint8
	OptionFlag        uint8
	Site              string
	Channel           string
	Location          string
	DataType          string
	CalibrationFactor float32
	CalibrationPeriod float32
	Timestamp         time.Time
	TimeLength        time.Duration
	Samples           uint32
	ChannelStatus     []byte
	Data              []byte
	// SubframeCount is only on the wire when OptionFlag has
	// OptionSubframeCount set.
	SubframeCount uint32
	AuthKeyID     int32
	AuthValue     []byte
}

// ChannelName returns site.channel.location, the way channels are named in
// logs.
func (c *ChannelSubframe) ChannelName() string {
	return fmt.Sprintf("%s.%s.%s", c.Site, c.Channel, c.Location)
}

func (*DataFrame) FrameType() FrameType { return DataFrameType }

func (b *DataFrame) marshal(w *wireWriter) {
	w.u32(uint32(len(b.Channels)))
	w.u32(uint32(b.FrameTimeLength / time.Millisecond))
	w.julian(b.NominalTime)
	channels := &wireWriter{}
	for i := range b.Channels {
		c := &b.Channels[i]
		marshalChannelID(channels, c.Site, c.Channel, c.Location)
	}
	if channels.err != nil && w.err == nil {
		w.err = channels.err
	}
	w.sized(channels.buf)
	for i := range b.Channels {
		b.Channels[i].marshal(w)
	}
}

// subframeLen is the encoded size of c, not counting the leading length
// field.
func (c *ChannelSubframe) subframeLen() int {
	n := 4 + channelDescriptionLen + JulianDateLen + 4 + 4
	n += 4 + paddedLen(len(c.ChannelStatus))
	n += 4 + paddedLen(len(c.Data))
	if c.OptionFlag&OptionSubframeCount != 0 {
		n += 4
	}
	return n + 4 + 4 + paddedLen(len(c.AuthValue))
}

// authOffset is the offset of the auth key id from the start of the
// subframe, length field included.
func (c *ChannelSubframe) authOffset() int {
	return 4 + c.subframeLen() - 8 - paddedLen(len(c.AuthValue))
}

func (c *ChannelSubframe) marshal(w *wireWriter) {
	w.u32(uint32(c.subframeLen()))
	w.u32(uint32(c.authOffset()))
	w.u8(c.Authentication)
	w.u8(c.Transformation)
	w.u8(c.SensorType)
	w.u8(c.OptionFlag)
	marshalChannelID(w, c.Site, c.Channel, c.Location)
	w.text("data type", c.DataType, 2)
	w.f32(c.CalibrationFactor)
	w.f32(c.CalibrationPeriod)
	w.julian(c.Timestamp)
	w.u32(uint32(c.TimeLength / time.Millisecond))
	w.u32(c.Samples)
	w.sized(c.ChannelStatus)
	w.sized(c.Data)
	if c.OptionFlag&OptionSubframeCount != 0 {
		w.u32(c.SubframeCount)
	}
	w.u32(uint32(c.AuthKeyID))
	w.sized(c.AuthValue)
}

func decodeDataFrame(r *wireReader) *DataFrame {
	n := r.count(4 + channelDescriptionLen)
	b := &DataFrame{
		FrameTimeLength: time.Duration(r.u32()) * time.Millisecond,
		NominalTime:     r.julian(),
	}
	channels := r.sized()
	if r.err == nil && len(channels) != n*channelIDLen {
		r.err = fmt.Errorf("%w: channel string of %d bytes for %d channels", ErrMalformedFrame, len(channels), n)
	}
	if n > 0 {
		b.Channels = make([]ChannelSubframe, 0, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		c := decodeChannelSubframe(r)
		if r.err == nil {
			id := channels[i*channelIDLen : (i+1)*channelIDLen]
			if site, ch, loc := decodeChannelID(newWireReader(id)); site != c.Site || ch != c.Channel || loc != c.Location {
				r.err = fmt.Errorf("%w: subframe %d is %v but channel string says %s.%s.%s", ErrMalformedFrame, i, c.ChannelName(), site, ch, loc)
			}
		}
		b.Channels = append(b.Channels, c)
	}
	return b
}

func decodeChannelSubframe(parent *wireReader) ChannelSubframe {
	length := parent.u32()
	if parent.err == nil && int64(length) > int64(parent.remaining()) {
		parent.err = fmt.Errorf("%w: channel subframe of %d bytes exceeds remaining %d", ErrMalformedFrame, length, parent.remaining())
	}
	p := parent.take(int(length))
	if parent.err != nil {
		return ChannelSubframe{}
	}
	r := newWireReader(p)
	authOffset := r.u32()
	c := ChannelSubframe{
		Authentication: r.u8(),
		Transformation: r.u8(),
		SensorType:     r.u8(),
		OptionFlag:     r.u8(),
	}
	c.Site, c.Channel, c.Location = decodeChannelID(r)
	c.DataType = r.text(2)
	c.CalibrationFactor = r.f32()
	c.CalibrationPeriod = r.f32()
	c.Timestamp = r.julian()
	c.TimeLength = time.Duration(r.u32()) * time.Millisecond
	c.Samples = r.u32()
	c.ChannelStatus = r.sized()
	c.Data = r.sized()
	if c.OptionFlag&OptionSubframeCount != 0 {
		c.SubframeCount = r.u32()
	}
	if r.err == nil && int(authOffset) != 4+r.off {
		r.err = fmt.Errorf("%w: channel %v declares auth offset %d, found %d", ErrMalformedFrame, c.ChannelName(), authOffset, 4+r.off)
	}
	c.AuthKeyID = int32(r.u32())
	c.AuthValue = r.sized()
	if err := r.done(); err != nil {
		parent.err = err
	}
	return c
}
