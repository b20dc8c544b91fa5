package logship

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wayneeseguin/logship/internal/collector"
	"github.com/wayneeseguin/logship/pkg/backends"
	"github.com/wayneeseguin/logship/pkg/types"
)

var errRefused = errors.New("connection refused")

// memBackend records frames in memory. failOn marks frames whose write fails.
type memBackend struct {
	mu     sync.Mutex
	frames []string
	closed bool
	failOn func(frame []byte) bool
}

func (m *memBackend) Write(frame []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("write on closed backend")
	}
	if m.failOn != nil && m.failOn(frame) {
		m.closed = true
		return 0, errors.New("broken pipe")
	}
	m.frames = append(m.frames, string(frame))
	return len(frame), nil
}

func (m *memBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *memBackend) Frames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.frames...)
}

// scriptedDialer fails the first failures dials, then hands out new memBackends.
type scriptedDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	failOn   func(frame []byte) bool
	backends []*memBackend
}

func (d *scriptedDialer) Dial(ctx context.Context) (backends.Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errRefused
	}
	b := &memBackend{failOn: d.failOn}
	d.backends = append(d.backends, b)
	return b, nil
}

func (d *scriptedDialer) String() string {
	return "mem://scripted"
}

// Frames returns every frame written across all connections, in order.
func (d *scriptedDialer) Frames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, b := range d.backends {
		out = append(out, b.Frames()...)
	}
	return out
}

// sleepRecorder replaces the backoff sleep and remembers each requested delay.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func startCollector(t *testing.T) *collector.Server {
	t.Helper()
	srv, err := collector.Listen("127.0.0.1:0", collector.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// collectorConfig returns a config pointing at srv.
func collectorConfig(t *testing.T, srv *collector.Server) Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.AppName = "billing"
	cfg.LogIndexName = "Billing-Logs"
	cfg.InstanceDescriptor = "test-instance"
	cfg.LogLevel = "DEBUG"
	cfg.DialTimeout = 2 * time.Second
	return cfg
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return addr.IP.String(), addr.Port
}

func record(msg string) *types.LogRecord {
	return &types.LogRecord{
		Time:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:      types.LevelInfo,
		LoggerName: "billing.invoices",
		Message:    msg,
		Caller:     types.CallerInfo{Function: "create", Module: "invoices", File: "/srv/invoices.go", Line: 42},
	}
}

func frameMessage(t *testing.T, frame string) string {
	t.Helper()
	require.NotEmpty(t, frame)
	require.Equal(t, byte(0), frame[len(frame)-1])
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(frame[:len(frame)-1]), &wire))
	msg, _ := wire["message"].(string)
	return msg
}

func messages(records []collector.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Message
	}
	return out
}
