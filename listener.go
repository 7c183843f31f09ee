package cd11

import (
	"net"
	"sync"
)

// Listener accepts CD-1.1 connections from data providers.
type Listener struct {
	l         net.Listener
	cfg       Config
	chClose   chan struct{}
	closeOnce sync.Once
}

// NewListener wraps l. Accepted connections send frames as cfg's creator
// and destination.
func NewListener(l net.Listener, cfg Config) (*Listener, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Listener{l: l, cfg: cfg, chClose: make(chan struct{})}, nil
}

// Accept waits for the next provider and returns a connected Conn for it.
// After Close it returns ErrClosed.
func (cl *Listener) Accept() (*Conn, error) {
	for {
		conn, err := cl.l.Accept()
		if err != nil {
			select {
			case <-cl.chClose:
				return nil, ErrClosed
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Debugf("failed to accept from %s: %v", cl.l.Addr(), err)
				continue
			}
			return nil, err
		}
		c, err := NewConn(cl.cfg)
		if err == nil {
			err = c.Adopt(conn)
		}
		if err != nil {
			log.Errorf("Unable to adopt connection from %v: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}
		log.Tracef("New connection %v from %v", c.ID(), conn.RemoteAddr())
		return c, nil
	}
}

// Close stops accepting. Connections already accepted stay open.
func (cl *Listener) Close() error {
	var err error
	cl.closeOnce.Do(func() {
		close(cl.chClose)
		err = cl.l.Close()
	})
	return err
}

func (cl *Listener) Addr() net.Addr {
	return cl.l.Addr()
}
