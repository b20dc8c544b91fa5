package backends

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TCPDialer connects to a stream log collector such as a logstash tcp input.
type TCPDialer struct {
	Address      string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	KeepAlive    time.Duration
}

// NewTCPDialer creates a dialer for host:port with default timeouts.
func NewTCPDialer(address string) *TCPDialer {
	return &TCPDialer{
		Address:      address,
		DialTimeout:  DefaultDialTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Dial opens a TCP connection.
func (d *TCPDialer) Dial(ctx context.Context) (Backend, error) {
	dialer := net.Dialer{
		Timeout:   d.DialTimeout,
		KeepAlive: d.KeepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial tcp %s", d.Address)
	}
	tb := &TCPBackend{
		address:      d.Address,
		conn:         conn,
		writeTimeout: d.WriteTimeout,
	}
	go tb.watch(conn)
	return tb, nil
}

func (d *TCPDialer) String() string {
	return "tcp://" + d.Address
}

// TCPBackend writes frames to a TCP connection.
type TCPBackend struct {
	address      string
	conn         net.Conn
	writeTimeout time.Duration

	mu     sync.Mutex // Protects concurrent access to conn
	closed bool
	stats  statsTracker
}

// Write writes a frame. Any error marks the connection broken.
func (tb *TCPBackend) Write(frame []byte) (int, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.closed {
		return 0, errors.Errorf("write tcp %s: connection closed", tb.address)
	}

	if tb.writeTimeout > 0 {
		if err := tb.conn.SetWriteDeadline(time.Now().Add(tb.writeTimeout)); err != nil {
			tb.closed = true
			tb.stats.track(0, err)
			return 0, errors.Wrap(err, "set write deadline")
		}
	}

	n, err := tb.conn.Write(frame)
	tb.stats.track(n, err)
	if err != nil {
		tb.closed = true
		return n, errors.Wrapf(err, "write tcp %s", tb.address)
	}
	return n, nil
}

// Close closes the connection
func (tb *TCPBackend) Close() error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.conn == nil {
		return nil
	}
	tb.closed = true
	err := tb.conn.Close()
	tb.conn = nil
	if err != nil {
		return errors.Wrap(err, "close conn")
	}
	return nil
}

// Closed reports whether the connection was closed on either side or a write failed.
func (tb *TCPBackend) Closed() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.closed
}

// watch marks the backend closed once the peer closes or resets the
// connection. Collectors never write back, so anything read is discarded.
func (tb *TCPBackend) watch(conn net.Conn) {
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			tb.mu.Lock()
			tb.closed = true
			tb.mu.Unlock()
			return
		}
	}
}

// Stats returns backend statistics
func (tb *TCPBackend) Stats() BackendStats {
	return tb.stats.snapshot("tcp://" + tb.address)
}

// CheckTCP reports whether address accepts TCP connections within timeout.
func CheckTCP(ctx context.Context, address string, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return errors.Wrapf(err, "probe tcp %s", address)
	}
	return conn.Close()
}
