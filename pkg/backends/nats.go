package backends

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// DefaultNATSSubject is used when NATSDialer.Subject is empty.
const DefaultNATSSubject = "logs"

// NATSDialer publishes frames to a NATS subject. Reconnection is left to the
// caller's backoff, so the client's own reconnect logic is disabled.
type NATSDialer struct {
	URL          string
	Subject      string
	DialTimeout  time.Duration
	FlushTimeout time.Duration
	Options      []nats.Option
}

// NewNATSDialer creates a NATS dialer with default timeouts.
func NewNATSDialer(url, subject string) *NATSDialer {
	return &NATSDialer{
		URL:          url,
		Subject:      subject,
		DialTimeout:  DefaultDialTimeout,
		FlushTimeout: DefaultWriteTimeout,
	}
}

// Dial connects to the NATS server.
func (d *NATSDialer) Dial(ctx context.Context) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	url := d.URL
	if url == "" {
		url = nats.DefaultURL
	}
	subject := d.Subject
	if subject == "" {
		subject = DefaultNATSSubject
	}

	timeout := d.DialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	opts := []nats.Option{
		nats.Name("logship"),
		nats.NoReconnect(),
	}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(timeout))
	}
	opts = append(opts, d.Options...)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", url)
	}
	return &NATSBackend{
		url:          url,
		subject:      subject,
		conn:         conn,
		flushTimeout: d.FlushTimeout,
	}, nil
}

func (d *NATSDialer) String() string {
	subject := d.Subject
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return d.URL + "/" + subject
}

// NATSBackend publishes each frame as one NATS message without the NUL delimiter.
type NATSBackend struct {
	url          string
	subject      string
	conn         *nats.Conn
	flushTimeout time.Duration

	mu     sync.Mutex
	closed bool
	stats  statsTracker
}

// Write publishes frame.
func (n *NATSBackend) Write(frame []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || n.conn == nil {
		return 0, errors.New("NATS connection not established")
	}

	payload := trimFrame(frame)
	if err := n.conn.Publish(n.subject, payload); err != nil {
		n.stats.track(0, err)
		n.closed = true
		return 0, errors.Wrap(err, "failed to publish")
	}
	n.stats.track(len(frame), nil)
	return len(frame), nil
}

// Close flushes pending messages and closes the connection.
func (n *NATSBackend) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	n.closed = true

	var err error
	if n.conn.IsConnected() {
		timeout := n.flushTimeout
		if timeout <= 0 {
			timeout = DefaultWriteTimeout
		}
		if ferr := n.conn.FlushTimeout(timeout); ferr != nil {
			err = errors.Wrap(ferr, "flush nats")
		}
	}
	n.conn.Close()
	n.conn = nil
	return err
}

// Closed reports whether the connection is closed or was lost.
func (n *NATSBackend) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed || n.conn == nil || n.conn.IsClosed()
}

// Stats returns backend statistics
func (n *NATSBackend) Stats() BackendStats {
	return n.stats.snapshot(n.url + "/" + n.subject)
}
