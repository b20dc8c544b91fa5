package backends

import (
	"context"
	"time"
)

// Backend is one open connection to a log destination.
type Backend interface {
	// Write sends one frame. A frame is either fully written or an error is returned.
	Write(frame []byte) (int, error)

	// Close closes the connection. It is safe to call more than once.
	Close() error

	// Closed reports whether the connection is closed or known to be broken.
	Closed() bool
}

// Dialer opens Backends to a single destination.
type Dialer interface {
	Dial(ctx context.Context) (Backend, error)

	// String describes the destination for diagnostics.
	String() string
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Backend, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Backend, error) {
	return f(ctx)
}

func (f DialerFunc) String() string {
	return "func"
}

// BackendStats represents statistics for a backend
type BackendStats struct {
	Destination  string
	WriteCount   uint64
	BytesWritten uint64
	ErrorCount   uint64
	LastWrite    time.Time
	LastError    time.Time
}

// StatsProvider is implemented by backends that track their own statistics.
type StatsProvider interface {
	Stats() BackendStats
}

// Default timeouts shared by the network backends.
const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// trimFrame strips the NUL delimiter that message-oriented transports do not need.
func trimFrame(frame []byte) []byte {
	for len(frame) > 0 && frame[len(frame)-1] == 0 {
		frame = frame[:len(frame)-1]
	}
	return frame
}
