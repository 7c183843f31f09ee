package cd11

import (
	"fmt"
	"time"
)

const (
	// ProtocolMajorVersion and ProtocolMinorVersion are sent in connection
	// requests and responses.
	ProtocolMajorVersion uint16 = 1
	ProtocolMinorVersion uint16 = 1

	stationTypeLen = 4
	serviceTypeLen = 4
	siteLen        = 5
	channelLen     = 3
	locationLen    = 2

	// OptionFramesetName is the only option type defined by the protocol:
	// it carries the frameset the requester wants to receive.
	OptionFramesetName uint32 = 1

	// maxListLen bounds counts read from the wire before allocating.
	maxListLen = 1 << 16
)

// ConnectionRequest opens a CD-1.1 session.
type ConnectionRequest struct {
	MajorVersion    uint16
	MinorVersion    uint16
	StationName     string
	StationType     string
	ServiceType     string
	IPAddress       uint32
	Port            uint16
	SecondIPAddress uint32
	SecondPort      uint16
}

func (*ConnectionRequest) FrameType() FrameType { return ConnectionRequestFrame }

func (b *ConnectionRequest) marshal(w *wireWriter) {
	w.u16(b.MajorVersion)
	w.u16(b.MinorVersion)
	w.text("station name", b.StationName, MaxNameLen)
	w.text("station type", b.StationType, stationTypeLen)
	w.text("service type", b.ServiceType, serviceTypeLen)
	w.u32(b.IPAddress)
	w.u16(b.Port)
	w.u32(b.SecondIPAddress)
	w.u16(b.SecondPort)
}

func decodeConnectionRequest(r *wireReader) *ConnectionRequest {
	return &ConnectionRequest{
		MajorVersion:    r.u16(),
		MinorVersion:    r.u16(),
		StationName:     r.text(MaxNameLen),
		StationType:     r.text(stationTypeLen),
		ServiceType:     r.text(serviceTypeLen),
		IPAddress:       r.u32(),
		Port:            r.u16(),
		SecondIPAddress: r.u32(),
		SecondPort:      r.u16(),
	}
}

// ConnectionResponse answers a ConnectionRequest with the address the
// provider should connect to for data.
type ConnectionResponse struct {
	MajorVersion    uint16
	MinorVersion    uint16
	ResponderName   string
	ResponderType   string
	ServiceType     string
	IPAddress       uint32
	Port            uint16
	SecondIPAddress uint32
	SecondPort      uint16
}

func (*ConnectionResponse) FrameType() FrameType { return ConnectionResponseFrame }

func (b *ConnectionResponse) marshal(w *wireWriter) {
	w.u16(b.MajorVersion)
	w.u16(b.MinorVersion)
	w.text("responder name", b.ResponderName, MaxNameLen)
	w.text("responder type", b.ResponderType, stationTypeLen)
	w.text("service type", b.ServiceType, serviceTypeLen)
	w.u32(b.IPAddress)
	w.u16(b.Port)
	w.u32(b.SecondIPAddress)
	w.u16(b.SecondPort)
}

func decodeConnectionResponse(r *wireReader) *ConnectionResponse {
	return &ConnectionResponse{
		MajorVersion:    r.u16(),
		MinorVersion:    r.u16(),
		ResponderName:   r.text(MaxNameLen),
		ResponderType:   r.text(stationTypeLen),
		ServiceType:     r.text(serviceTypeLen),
		IPAddress:       r.u32(),
		Port:            r.u16(),
		SecondIPAddress: r.u32(),
		SecondPort:      r.u16(),
	}
}

// Option is one entry of an option request or response.
type Option struct {
	Type  uint32
	Value []byte
}

// OptionRequest asks the peer to apply options, typically the frameset to
// send.
type OptionRequest struct {
	Options []Option
}

func (*OptionRequest) FrameType() FrameType { return OptionRequestFrame }

func (b *OptionRequest) marshal(w *wireWriter) { marshalOptions(w, b.Options) }

// OptionResponse echoes the options the peer accepted.
type OptionResponse struct {
	Options []Option
}

func (*OptionResponse) FrameType() FrameType { return OptionResponseFrame }

func (b *OptionResponse) marshal(w *wireWriter) { marshalOptions(w, b.Options) }

func marshalOptions(w *wireWriter, opts []Option) {
	w.u32(uint32(len(opts)))
	for _, o := range opts {
		w.u32(o.Type)
		w.sized(o.Value)
	}
}

func decodeOptions(r *wireReader) []Option {
	n := r.count(8)
	if n == 0 {
		return nil
	}
	opts := make([]Option, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		opts = append(opts, Option{Type: r.u32(), Value: r.sized()})
	}
	return opts
}

// Range is an inclusive range of sequence numbers.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// Acknack reports the sequence numbers the receiver has seen for one
// frameset and the gaps it is still waiting for.
type Acknack struct {
	// FramesetAcked names the frameset, creator:destination.
	FramesetAcked string
	LowestSeqNum  uint64
	HighestSeqNum uint64
	Gaps          []Range
}

func (*Acknack) FrameType() FrameType { return AcknackFrame }

func (b *Acknack) marshal(w *wireWriter) {
	w.text("frameset acked", b.FramesetAcked, MaxFramesetNameLen)
	w.u64(b.LowestSeqNum)
	w.u64(b.HighestSeqNum)
	w.u32(uint32(len(b.Gaps)))
	for _, g := range b.Gaps {
		w.u64(g.Start)
		w.u64(g.End)
	}
}

func decodeAcknack(r *wireReader) *Acknack {
	b := &Acknack{
		FramesetAcked: r.text(MaxFramesetNameLen),
		LowestSeqNum:  r.u64(),
		HighestSeqNum: r.u64(),
	}
	n := r.count(16)
	if n > 0 {
		b.Gaps = make([]Range, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			b.Gaps = append(b.Gaps, Range{Start: r.u64(), End: r.u64()})
		}
	}
	return b
}

// Alert carries a free text message, usually sent right before the sender
// closes the connection.
type Alert struct {
	Message string
}

func (*Alert) FrameType() FrameType { return AlertFrame }

func (b *Alert) marshal(w *wireWriter) { w.sized([]byte(b.Message)) }

func decodeAlert(r *wireReader) *Alert {
	return &Alert{Message: string(r.sized())}
}

// CommandRequest sends a command to a station or one of its channels. The
// command text is opaque to this package.
type CommandRequest struct {
	StationName string
	Site        string
	Channel     string
	Location    string
	Timestamp   time.Time
	Command     string
}

func (*CommandRequest) FrameType() FrameType { return CommandRequestFrame }

func (b *CommandRequest) marshal(w *wireWriter) {
	w.text("station name", b.StationName, MaxNameLen)
	marshalChannelID(w, b.Site, b.Channel, b.Location)
	w.zeros(2)
	w.julian(b.Timestamp)
	w.sized([]byte(b.Command))
}

func decodeCommandRequest(r *wireReader) *CommandRequest {
	b := &CommandRequest{StationName: r.text(MaxNameLen)}
	b.Site, b.Channel, b.Location = decodeChannelID(r)
	r.skip(2)
	b.Timestamp = r.julian()
	b.Command = string(r.sized())
	return b
}

// CommandResponse answers a CommandRequest, echoing the request.
type CommandResponse struct {
	ResponderStation string
	Site             string
	Channel          string
	Location         string
	Timestamp        time.Time
	CommandRequest   string
	Response         string
}

func (*CommandResponse) FrameType() FrameType { return CommandResponseFrame }

func (b *CommandResponse) marshal(w *wireWriter) {
	w.text("responder station", b.ResponderStation, MaxNameLen)
	marshalChannelID(w, b.Site, b.Channel, b.Location)
	w.zeros(2)
	w.julian(b.Timestamp)
	w.sized([]byte(b.CommandRequest))
	w.sized([]byte(b.Response))
}

func decodeCommandResponse(r *wireReader) *CommandResponse {
	b := &CommandResponse{ResponderStation: r.text(MaxNameLen)}
	b.Site, b.Channel, b.Location = decodeChannelID(r)
	r.skip(2)
	b.Timestamp = r.julian()
	b.CommandRequest = string(r.sized())
	b.Response = string(r.sized())
	return b
}

// marshalChannelID writes the 10 byte site/channel/location triple.
func marshalChannelID(w *wireWriter, site, channel, location string) {
	w.text("site", site, siteLen)
	w.text("channel", channel, channelLen)
	w.text("location", location, locationLen)
}

func decodeChannelID(r *wireReader) (site, channel, location string) {
	return r.text(siteLen), r.text(channelLen), r.text(locationLen)
}

// count reads a list length and checks that the list, at minSize bytes per
// element, can fit in what is left.
func (r *wireReader) count(minSize int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if n > maxListLen || int(n)*minSize > r.remaining() {
		r.err = fmt.Errorf("%w: count %d doesn't fit in %d remaining bytes", ErrMalformedFrame, n, r.remaining())
		return 0
	}
	return int(n)
}
