package cd11

import (
	"fmt"
	"net"
	"strings"
)

const (
	// MaxNameLen is the width of creator, destination and station names.
	MaxNameLen = 8
	// MaxFramesetNameLen is the width of the frameset acked field.
	MaxFramesetNameLen = 20
)

// ValidatePort checks that port fits in the 16 bit port field. Zero is
// allowed, it means "unused" for the secondary address of a connection
// request.
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: port %d is out of range", ErrInvalidField, port)
	}
	return nil
}

// ValidateRemotePort is like ValidatePort but rejects zero.
func ValidateRemotePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: remote port %d is out of range", ErrInvalidField, port)
	}
	return nil
}

// ParseIPv4 parses a dotted IPv4 address into its wire representation.
func ParseIPv4(addr string) (uint32, error) {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return 0, fmt.Errorf("%w: %q is not an IP address", ErrInvalidField, addr)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidField, addr)
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3]), nil
}

// FormatIPv4 is the reverse of ParseIPv4.
func FormatIPv4(ip uint32) string {
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).String()
}

// ValidateAddress checks that addr is either an IP address or a plausible
// host name.
func ValidateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidField)
	}
	if net.ParseIP(addr) != nil {
		return nil
	}
	if len(addr) > 253 || strings.ContainsAny(addr, " /:\\") {
		return fmt.Errorf("%w: %q is neither an IP address nor a host name", ErrInvalidField, addr)
	}
	return nil
}

// ValidateName checks a fixed width text field: at most maxLen bytes of
// printable ASCII. Empty names are rejected unless allowEmpty is set.
func ValidateName(field, name string, maxLen int, allowEmpty bool) error {
	if name == "" {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: %s is empty", ErrInvalidField, field)
	}
	if len(name) > maxLen {
		return fmt.Errorf("%w: %s %q is longer than %d characters", ErrInvalidField, field, name, maxLen)
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return fmt.Errorf("%w: %s %q contains non printable characters", ErrInvalidField, field, name)
		}
	}
	return nil
}

// ValidateSequenceNumber rejects sequence numbers that can't appear on a
// data bearing frame. Zero is reserved for frames that are not sequenced.
func ValidateSequenceNumber(seq uint64) error {
	if seq == 0 {
		return fmt.Errorf("%w: sequence number 0 is reserved", ErrInvalidField)
	}
	return nil
}

// FramesetName joins a creator and destination into the name used to
// identify a frameset, e.g. "TXAR:0".
func FramesetName(creator, destination string) string {
	return creator + ":" + destination
}

// ValidateFramesetName checks a creator:destination pair.
func ValidateFramesetName(name string) error {
	if err := ValidateName("frameset name", name, MaxFramesetNameLen, false); err != nil {
		return err
	}
	idx := strings.IndexByte(name, ':')
	if idx <= 0 || idx == len(name)-1 {
		return fmt.Errorf("%w: frameset name %q is not of the form creator:destination", ErrInvalidField, name)
	}
	return nil
}
