package cd11

import (
	"time"
)

// Create* build a frame from this Conn's identity; Send* build it and write
// it right away.

// CreateAcknack builds an ACKNACK reporting the range received for a
// frameset and the gaps in it.
func (c *Conn) CreateAcknack(framesetAcked string, lowest, highest uint64, gaps []Range) (*Frame, error) {
	if err := ValidateFramesetName(framesetAcked); err != nil {
		return nil, err
	}
	return c.builder.Build(&Acknack{FramesetAcked: framesetAcked, LowestSeqNum: lowest, HighestSeqNum: highest, Gaps: gaps}, 0)
}

func (c *Conn) SendAcknack(framesetAcked string, lowest, highest uint64, gaps []Range) error {
	return c.send(c.CreateAcknack(framesetAcked, lowest, highest, gaps))
}

// SendSessionAcknack sends an ACKNACK describing s, after dropping gaps that
// went unchanged for longer than Config.GapExpiryDays.
func (c *Conn) SendSessionAcknack(s *SessionGaps) error {
	if err := s.RemoveExpiredGaps(c.cfg.GapExpiryDays); err != nil {
		return err
	}
	ack := s.Acknack()
	return c.SendAcknack(ack.FramesetAcked, ack.LowestSeqNum, ack.HighestSeqNum, ack.Gaps)
}

func (c *Conn) CreateAlert(message string) (*Frame, error) {
	return c.builder.Build(&Alert{Message: message}, 0)
}

func (c *Conn) SendAlert(message string) error {
	return c.send(c.CreateAlert(message))
}

// CreateConnectionRequest builds a request announcing this Conn's creator
// as station, listening on ip:port.
func (c *Conn) CreateConnectionRequest(stationType, serviceType, ip string, port int) (*Frame, error) {
	addr, err := ParseIPv4(ip)
	if err != nil {
		return nil, err
	}
	if err := ValidatePort(port); err != nil {
		return nil, err
	}
	return c.builder.Build(&ConnectionRequest{
		MajorVersion: ProtocolMajorVersion,
		MinorVersion: ProtocolMinorVersion,
		StationName:  c.cfg.Creator,
		StationType:  stationType,
		ServiceType:  serviceType,
		IPAddress:    addr,
		Port:         uint16(port),
	}, 0)
}

func (c *Conn) SendConnectionRequest(stationType, serviceType, ip string, port int) error {
	return c.send(c.CreateConnectionRequest(stationType, serviceType, ip, port))
}

// CreateConnectionResponse builds a response telling the peer to send data
// to ip:port.
func (c *Conn) CreateConnectionResponse(responderType, serviceType, ip string, port int) (*Frame, error) {
	addr, err := ParseIPv4(ip)
	if err != nil {
		return nil, err
	}
	if err := ValidateRemotePort(port); err != nil {
		return nil, err
	}
	return c.builder.Build(&ConnectionResponse{
		MajorVersion:  ProtocolMajorVersion,
		MinorVersion:  ProtocolMinorVersion,
		ResponderName: c.cfg.Creator,
		ResponderType: responderType,
		ServiceType:   serviceType,
		IPAddress:     addr,
		Port:          uint16(port),
	}, 0)
}

func (c *Conn) SendConnectionResponse(responderType, serviceType, ip string, port int) error {
	return c.send(c.CreateConnectionResponse(responderType, serviceType, ip, port))
}

// CreateData builds a DATA frame with sequence number seq.
func (c *Conn) CreateData(seq uint64, frameTimeLength time.Duration, nominalTime time.Time, channels []ChannelSubframe) (*Frame, error) {
	if err := ValidateSequenceNumber(seq); err != nil {
		return nil, err
	}
	return c.builder.Build(&DataFrame{FrameTimeLength: frameTimeLength, NominalTime: nominalTime, Channels: channels}, seq)
}

func (c *Conn) SendData(seq uint64, frameTimeLength time.Duration, nominalTime time.Time, channels []ChannelSubframe) error {
	return c.send(c.CreateData(seq, frameTimeLength, nominalTime, channels))
}

func (c *Conn) CreateOptionRequest(opts ...Option) (*Frame, error) {
	return c.builder.Build(&OptionRequest{Options: opts}, 0)
}

func (c *Conn) SendOptionRequest(opts ...Option) error {
	return c.send(c.CreateOptionRequest(opts...))
}

func (c *Conn) CreateOptionResponse(opts ...Option) (*Frame, error) {
	return c.builder.Build(&OptionResponse{Options: opts}, 0)
}

func (c *Conn) SendOptionResponse(opts ...Option) error {
	return c.send(c.CreateOptionResponse(opts...))
}

// CreateCommandRequest builds a command addressed to this Conn's
// destination station.
func (c *Conn) CreateCommandRequest(site, channel, location string, timestamp time.Time, command string) (*Frame, error) {
	return c.builder.Build(&CommandRequest{
		StationName: c.cfg.Destination,
		Site:        site,
		Channel:     channel,
		Location:    location,
		Timestamp:   timestamp,
		Command:     command,
	}, 0)
}

func (c *Conn) SendCommandRequest(site, channel, location string, timestamp time.Time, command string) error {
	return c.send(c.CreateCommandRequest(site, channel, location, timestamp, command))
}

// CreateCommandResponse builds the answer to a command. Command responses
// are sequenced like data.
func (c *Conn) CreateCommandResponse(seq uint64, site, channel, location string, timestamp time.Time, request, response string) (*Frame, error) {
	if err := ValidateSequenceNumber(seq); err != nil {
		return nil, err
	}
	return c.builder.Build(&CommandResponse{
		ResponderStation: c.cfg.Creator,
		Site:             site,
		Channel:          channel,
		Location:         location,
		Timestamp:        timestamp,
		CommandRequest:   request,
		Response:         response,
	}, seq)
}

func (c *Conn) SendCommandResponse(seq uint64, site, channel, location string, timestamp time.Time, request, response string) error {
	return c.send(c.CreateCommandResponse(seq, site, channel, location, timestamp, request, response))
}

func (c *Conn) send(f *Frame, err error) error {
	if err != nil {
		return err
	}
	return c.Write(f)
}
