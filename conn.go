package cd11

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pool "github.com/libp2p/go-buffer-pool"
)

// readBufferSize is the initial size of the buffer a frame is read into.
// Larger frames grow it.
const readBufferSize = 4096

// errHalted is returned by haltingReader when the halt predicate fired.
var errHalted = errors.New("halted")

// Conn is one CD-1.1 connection. A single goroutine may read while another
// writes; concurrent readers are serialized against each other, and so are
// concurrent writers. The liveness accessors may be called from anywhere.
type Conn struct {
	// unix nanos, 0 when unset
	lastContact     int64
	lastAcknackSent int64
	lastDataSent    int64

	id      string
	cfg     Config
	builder *FrameBuilder
	stats   *statsTracker

	muRead  sync.Mutex
	muWrite sync.Mutex

	muConn sync.RWMutex
	conn   net.Conn
	// readShut and writeShut are set once a direction of conn failed.
	readShut  uint32
	writeShut uint32

	framesetAcked atomic.Value // string
}

// NewConn returns a disconnected Conn sending frames as cfg's creator and
// destination.
func NewConn(cfg Config) (*Conn, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Conn{
		id:      uuid.New().String(),
		cfg:     cfg,
		builder: cfg.frameBuilder(),
		stats:   newStatsTracker(),
	}
	c.framesetAcked.Store("")
	return c, nil
}

// ID identifies the Conn in logs.
func (c *Conn) ID() string {
	return c.id
}

// ConnectOption customizes Connect.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	localAddr string
	localPort int
	dialer    Dialer
}

// WithLocalAddr binds the outgoing stream to a local address and port.
func WithLocalAddr(addr string, port int) ConnectOption {
	return func(o *connectOptions) {
		o.localAddr, o.localPort = addr, port
	}
}

// WithDialer makes Connect open the stream with d instead of dialing TCP.
// The remote address and port are still validated.
func WithDialer(d Dialer) ConnectOption {
	return func(o *connectOptions) {
		o.dialer = d
	}
}

// Connect opens the stream to remoteAddr:remotePort. A negative maxWait
// retries until ctx is done, zero makes a single attempt and a positive
// maxWait keeps retrying until that much time has passed.
func (c *Conn) Connect(ctx context.Context, remoteAddr string, remotePort int, maxWait time.Duration, opts ...ConnectOption) error {
	var o connectOptions
	for _, opt := range opts {
		opt(&o)
	}
	d := o.dialer
	if d == nil {
		var err error
		d, err = TCPDialer(remoteAddr, remotePort, o.localAddr, o.localPort)
		if err != nil {
			return err
		}
	} else {
		if err := ValidateAddress(remoteAddr); err != nil {
			return err
		}
		if err := ValidateRemotePort(remotePort); err != nil {
			return err
		}
	}
	if c.currentConn() != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, c.id)
	}

	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	for attempt := 1; ; attempt++ {
		conn, err := d.DialContext(ctx)
		if err == nil {
			log.Debugf("Conn %v connected to %v after %d attempts", c.id, conn.RemoteAddr(), attempt)
			return c.attach(conn)
		}
		log.Debugf("failed to dial %v: %v", d.Label(), err)
		if maxWait == 0 {
			return fmt.Errorf("%w with %v: %v", ErrConnectFailed, d.Label(), err)
		}
		t := time.NewTimer(c.cfg.ConnectRetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w with %v after %d attempts: %v", ErrConnectFailed, d.Label(), attempt, err)
		case <-t.C:
		}
	}
}

// Adopt makes conn, typically accepted by a listener, the stream of c.
func (c *Conn) Adopt(conn net.Conn) error {
	if conn == nil {
		return fmt.Errorf("%w: nil stream", ErrNotConnected)
	}
	if conn.LocalAddr() == nil || conn.RemoteAddr() == nil {
		return fmt.Errorf("%w: stream is not bound", ErrNotConnected)
	}
	if c.currentConn() != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, c.id)
	}
	log.Debugf("Conn %v adopted stream from %v", c.id, conn.RemoteAddr())
	return c.attach(conn)
}

func (c *Conn) attach(conn net.Conn) error {
	c.muConn.Lock()
	defer c.muConn.Unlock()
	if c.conn != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, c.id)
	}
	c.conn = conn
	atomic.StoreUint32(&c.readShut, 0)
	atomic.StoreUint32(&c.writeShut, 0)
	now := time.Now().UnixNano()
	atomic.StoreInt64(&c.lastContact, now)
	atomic.StoreInt64(&c.lastAcknackSent, now)
	atomic.StoreInt64(&c.lastDataSent, now)
	return nil
}

func (c *Conn) currentConn() net.Conn {
	c.muConn.RLock()
	defer c.muConn.RUnlock()
	return c.conn
}

// IsConnected reports whether there is a stream and neither of its
// directions has failed.
func (c *Conn) IsConnected() bool {
	return c.currentConn() != nil &&
		atomic.LoadUint32(&c.readShut) == 0 &&
		atomic.LoadUint32(&c.writeShut) == 0
}

// Write sends f. Concurrent writes never interleave on the wire.
func (c *Conn) Write(f *Frame) error {
	n, err := c.write(f)
	if err != nil {
		return err
	}
	now := time.Now().UnixNano()
	switch f.Header.FrameType {
	case AcknackFrame:
		atomic.StoreInt64(&c.lastAcknackSent, now)
	case DataFrameType:
		atomic.StoreInt64(&c.lastDataSent, now)
	}
	c.stats.onWrite(n)
	return nil
}

func (c *Conn) write(f *Frame) (int, error) {
	c.muWrite.Lock()
	defer c.muWrite.Unlock()

	conn := c.currentConn()
	if conn == nil || !c.IsConnected() {
		return 0, ErrNotConnected
	}
	if err := f.checkLen(); err != nil {
		return 0, err
	}
	buf := pool.Get(f.Len())
	defer pool.Put(buf)
	b, err := f.AppendTo(buf[:0])
	if err != nil {
		return 0, err
	}
	if _, err := conn.Write(b); err != nil {
		atomic.StoreUint32(&c.writeShut, 1)
		return 0, fmt.Errorf("writing %v frame #%d: %w", f.Header.FrameType, f.Header.SequenceNumber, err)
	}
	log.Tracef("Conn %v wrote %v frame #%d of %v", c.id, f.Header.FrameType, f.Header.SequenceNumber, humanizeBytes(len(b)))
	return len(b), nil
}

// Read reads one frame, blocking until it arrives. halt is consulted each
// time the stream stayed silent for Config.ReadPollInterval; once it
// returns true Read gives up with ErrReadHalted if nothing of the frame had
// been read yet, or ErrStreamDesynchronized if part of it had. After the
// latter the Conn must be disconnected.
//
// ErrCRCMismatch, ErrMalformedFrame and ErrUnsupportedFrameType consume the
// whole frame, so reading can go on. A header or length that can't be
// parsed also yields ErrStreamDesynchronized and shuts the read side.
func (c *Conn) Read(halt func() bool) (*Frame, error) {
	c.muRead.Lock()
	defer c.muRead.Unlock()

	conn := c.currentConn()
	if conn == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if halt == nil {
		halt = func() bool { return false }
	}
	hr := &haltingReader{conn: conn, halt: halt, poll: c.cfg.ReadPollInterval}
	defer func() {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			log.Tracef("Conn %v unable to clear read deadline: %v", c.id, err)
		}
	}()

	buf := pool.Get(readBufferSize)
	b, h, err := readFrameBytes(hr, buf[:0], func(Header) {
		atomic.StoreInt64(&c.lastContact, time.Now().UnixNano())
	})
	if err != nil {
		pool.Put(buf)
		return nil, c.readError(conn, hr, err)
	}
	now := time.Now()
	f, err := DecodeFrame(b)
	// decoded frames share no memory with b
	pool.Put(b)
	c.stats.onRead(len(b), now)
	if err != nil {
		log.Debugf("Conn %v dropped %v frame #%d from %v: %v", c.id, h.FrameType, h.SequenceNumber, h.Creator, err)
		return nil, err
	}
	if ack, ok := f.Body.(*Acknack); ok && ack.FramesetAcked != "" {
		if old := c.framesetAcked.Swap(ack.FramesetAcked); old != ack.FramesetAcked {
			log.Debugf("Conn %v peer acknowledges frameset %v", c.id, ack.FramesetAcked)
		}
	}
	log.Tracef("Conn %v read %v frame #%d", c.id, f.Header.FrameType, f.Header.SequenceNumber)
	return f, nil
}

func (c *Conn) readError(conn net.Conn, hr *haltingReader, err error) error {
	switch {
	case errors.Is(err, errHalted):
		if hr.n == 0 {
			return ErrReadHalted
		}
		log.Errorf("Conn %v halted after reading %d bytes of a frame", c.id, hr.n)
		return ErrStreamDesynchronized
	case c.currentConn() != conn:
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case errors.Is(err, ErrMalformedFrame):
		// a bad header or length leaves no way to find the next frame
		atomic.StoreUint32(&c.readShut, 1)
		log.Errorf("Conn %v lost frame boundaries: %v", c.id, err)
		return fmt.Errorf("%w: %v", ErrStreamDesynchronized, err)
	}
	atomic.StoreUint32(&c.readShut, 1)
	if err == io.EOF {
		log.Debugf("Conn %v: peer closed the stream", c.id)
	}
	return err
}

// ReadContext is Read halting once ctx is done.
func (c *Conn) ReadContext(ctx context.Context) (*Frame, error) {
	return c.Read(func() bool { return ctx.Err() != nil })
}

// ReadTimeout is Read halting once d has passed.
func (c *Conn) ReadTimeout(d time.Duration) (*Frame, error) {
	deadline := time.Now().Add(d)
	return c.Read(func() bool { return !time.Now().Before(deadline) })
}

// Disconnect closes the stream. Failures closing any part of it are logged
// and the remaining parts are still closed. Disconnecting a disconnected
// Conn does nothing.
func (c *Conn) Disconnect() {
	c.muConn.Lock()
	conn := c.conn
	c.conn = nil
	c.muConn.Unlock()
	if conn == nil {
		return
	}

	if cr, ok := conn.(interface{ CloseRead() error }); ok {
		if err := cr.CloseRead(); err != nil {
			log.Errorf("Conn %v unable to close input: %v", c.id, err)
		}
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			log.Errorf("Conn %v unable to close output: %v", c.id, err)
		}
	}
	if err := conn.Close(); err != nil {
		log.Errorf("Conn %v unable to close stream: %v", c.id, err)
	}
	atomic.StoreInt64(&c.lastContact, 0)
	atomic.StoreInt64(&c.lastAcknackSent, 0)
	atomic.StoreInt64(&c.lastDataSent, 0)
	log.Debugf("Conn %v disconnected, %v", c.id, c.stats.snapshot())
}

// SecondsSinceLastContact is the time since the last frame header was
// received, 0 when disconnected.
func (c *Conn) SecondsSinceLastContact() int64 {
	return int64(since(&c.lastContact) / time.Second)
}

// SecondsSinceLastAcknackSent is 0 when disconnected.
func (c *Conn) SecondsSinceLastAcknackSent() int64 {
	return int64(since(&c.lastAcknackSent) / time.Second)
}

// MillisSinceLastDataSent is 0 when disconnected.
func (c *Conn) MillisSinceLastDataSent() int64 {
	return int64(since(&c.lastDataSent) / time.Millisecond)
}

func since(ts *int64) time.Duration {
	t := atomic.LoadInt64(ts)
	if t == 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() - t)
}

// FramesetAcked is the frameset name the peer reported in its last
// ACKNACK, empty before the first one.
func (c *Conn) FramesetAcked() string {
	return c.framesetAcked.Load().(string)
}

// Stats returns the traffic counters of c.
func (c *Conn) Stats() Stats {
	return c.stats.snapshot()
}

func (c *Conn) String() string {
	return fmt.Sprintf("cd11 conn %v (%v)", c.id, c.cfg.FramesetName())
}

// haltingReader reads from conn in slices of at most poll, asking halt
// whether to carry on each time a slice passes without data.
type haltingReader struct {
	conn net.Conn
	halt func() bool
	poll time.Duration
	n    int
}

func (hr *haltingReader) Read(p []byte) (int, error) {
	for {
		if err := hr.conn.SetReadDeadline(time.Now().Add(hr.poll)); err != nil {
			return 0, err
		}
		n, err := hr.conn.Read(p)
		hr.n += n
		if n > 0 {
			return n, nil
		}
		var ne net.Error
		switch {
		case err == nil:
		case errors.As(err, &ne) && ne.Timeout():
			if hr.halt() {
				return 0, errHalted
			}
		default:
			return 0, err
		}
	}
}
