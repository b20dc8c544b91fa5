// Package collector is a minimal log collector that accepts NUL-delimited
// JSON frames over TCP. It backs the sink tests and the logship-collector
// debugging tool.
package collector

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// MaxFrameSize bounds a single frame.
const MaxFrameSize = 4 * 1024 * 1024

// Record is a decoded frame with the fields used for display and assertions.
type Record struct {
	Raw        []byte
	Timestamp  string
	Severity   string
	Level      int
	LoggerName string
	Message    string
	StackTrace string
	AppName    string
	IndexName  string
}

// Server accepts connections and records every frame it receives.
type Server struct {
	ln     net.Listener
	logger *zap.Logger
	parser fastjson.ParserPool

	// onRecord is called for every valid frame.
	onRecord func(Record)
	discard  bool

	mu       sync.Mutex
	records  []Record
	invalid  int
	accepted int
	conns    map[net.Conn]struct{}
	notify   chan struct{}
	closed   bool

	wg sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRecordHandler sets a callback invoked for every valid frame.
func WithRecordHandler(fn func(Record)) Option {
	return func(s *Server) {
		s.onRecord = fn
	}
}

// WithoutHistory stops the server from keeping received records. Only the
// record handler sees them.
func WithoutHistory() Option {
	return func(s *Server) {
		s.discard = true
	}
}

// Listen starts a server on addr. Use "127.0.0.1:0" for an ephemeral port.
func Listen(addr string, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		ln:     ln,
		logger: zap.NewNop(),
		conns:  make(map[net.Conn]struct{}),
		notify: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listening address as host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.accepted++
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.logger.Debug("connection accepted", zap.String("remote", conn.RemoteAddr().String()))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), MaxFrameSize)
	scanner.Split(ScanFrames)
	for scanner.Scan() {
		frame := scanner.Bytes()
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		s.ingest(frame)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("connection closed", zap.Error(err))
	}
}

func (s *Server) ingest(frame []byte) {
	rec, err := s.Decode(frame)
	if err != nil {
		s.mu.Lock()
		s.invalid++
		s.mu.Unlock()
		s.logger.Warn("invalid frame", zap.Error(err), zap.ByteString("frame", frame))
		return
	}

	// The handler runs before waiters are released so they observe its effects
	if s.onRecord != nil {
		s.onRecord(rec)
	}

	s.mu.Lock()
	if !s.discard {
		s.records = append(s.records, rec)
	}
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// Decode parses one frame body.
func (s *Server) Decode(frame []byte) (Record, error) {
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(frame)
	if err != nil {
		return Record{}, errors.Wrap(err, "parse frame")
	}
	if v.Type() != fastjson.TypeObject {
		return Record{}, errors.Errorf("frame is %s, not an object", v.Type())
	}

	raw := make([]byte, len(frame))
	copy(raw, frame)
	return Record{
		Raw:        raw,
		Timestamp:  string(v.GetStringBytes("@timestamp")),
		Severity:   string(v.GetStringBytes("Severity")),
		Level:      v.GetInt("level"),
		LoggerName: string(v.GetStringBytes("LoggerName")),
		Message:    string(v.GetStringBytes("message")),
		StackTrace: string(v.GetStringBytes("StackTrace")),
		AppName:    string(v.GetStringBytes("appName")),
		IndexName:  string(v.GetStringBytes("indexName")),
	}, nil
}

// Records returns a copy of everything received so far.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Invalid returns the number of frames that were not JSON objects.
func (s *Server) Invalid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// WaitFor blocks until at least n records arrived or timeout elapses.
func (s *Server) WaitFor(n int, timeout time.Duration) ([]Record, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if len(s.records) >= n {
			out := make([]Record, len(s.records))
			copy(out, s.records)
			s.mu.Unlock()
			return out, nil
		}
		got := len(s.records)
		notify := s.notify
		s.mu.Unlock()

		select {
		case <-notify:
		case <-deadline.C:
			return s.Records(), errors.Errorf("received %d of %d records", got, n)
		}
	}
}

// DropConnections closes every open connection, as a collector restart would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Close stops accepting, closes open connections and waits for handlers to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// ScanFrames is a bufio.SplitFunc that splits on NUL bytes. A trailing
// unterminated frame is returned at EOF.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
