package cd11

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Dialer opens the byte stream a Conn runs over.
type Dialer interface {
	DialContext(ctx context.Context) (net.Conn, error)
	Label() string
}

type tcpDialer struct {
	remote string
	local  *net.TCPAddr
}

// TCPDialer returns a Dialer connecting to remoteAddr:remotePort over TCP.
// If localAddr is not empty or localPort is not 0, the stream is bound to
// that local address first.
func TCPDialer(remoteAddr string, remotePort int, localAddr string, localPort int) (Dialer, error) {
	if err := ValidateAddress(remoteAddr); err != nil {
		return nil, err
	}
	if err := ValidateRemotePort(remotePort); err != nil {
		return nil, err
	}
	d := &tcpDialer{remote: net.JoinHostPort(remoteAddr, strconv.Itoa(remotePort))}
	if localAddr != "" || localPort != 0 {
		if err := ValidatePort(localPort); err != nil {
			return nil, err
		}
		local := &net.TCPAddr{Port: localPort}
		if localAddr != "" {
			ip, err := ParseIPv4(localAddr)
			if err != nil {
				return nil, err
			}
			local.IP = net.ParseIP(FormatIPv4(ip))
		}
		d.local = local
	}
	return d, nil
}

func (d *tcpDialer) DialContext(ctx context.Context) (net.Conn, error) {
	nd := net.Dialer{KeepAlive: 30 * time.Second}
	if d.local != nil {
		nd.LocalAddr = d.local
	}
	return nd.DialContext(ctx, "tcp", d.remote)
}

func (d *tcpDialer) Label() string {
	if d.local != nil {
		return fmt.Sprintf("tcp dialer to %v from %v", d.remote, d.local)
	}
	return fmt.Sprintf("tcp dialer to %v", d.remote)
}
