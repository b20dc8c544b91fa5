package logship

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wayneeseguin/logship/internal/metrics"
	"github.com/wayneeseguin/logship/pkg/backends"
	"github.com/wayneeseguin/logship/pkg/types"
)

// SyncSink writes each record directly to the destination on the caller's
// goroutine. There is no buffer and no backoff: failures are returned to the
// caller, and a failed connection is discarded so the next call dials again.
type SyncSink struct {
	cfg      Config
	opts     *options
	logger   *zap.Logger
	metrics  *metrics.Collector
	minLevel types.Level

	mu      sync.Mutex
	backend backends.Backend
	closed  bool
}

// NewSync validates cfg and builds a synchronous sink. The connection is
// opened on the first record.
func NewSync(cfg Config, opts ...Option) (*SyncSink, error) {
	o, err := resolve(&cfg, opts)
	if err != nil {
		return nil, err
	}

	s := &SyncSink{
		cfg:      cfg,
		opts:     o,
		logger:   o.logger.Named("sync_sink"),
		metrics:  o.metrics,
		minLevel: cfg.MinLevel(),
	}
	if o.registerer != nil {
		if err := s.Register(o.registerer); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WriteRecord formats rec and writes it before returning.
func (s *SyncSink) WriteRecord(rec *types.LogRecord) error {
	if rec == nil || rec.Level.Normalize() < s.minLevel {
		return nil
	}

	frame, err := s.opts.formatter.Format(rec)
	if err != nil {
		s.metrics.TrackDropped(metrics.DropFormatError)
		return errors.Wrap(err, "format record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.metrics.TrackDropped(metrics.DropClosed)
		return ErrClosed
	}
	s.metrics.TrackAccepted()

	if s.backend != nil && s.backend.Closed() {
		s.backend = nil
	}
	if s.backend == nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.dialTimeout())
		backend, derr := s.opts.dialer.Dial(ctx)
		cancel()
		s.metrics.TrackConnect(derr)
		if derr != nil {
			s.metrics.TrackDropped(metrics.DropNoConnection)
			return errors.Wrapf(ErrNoConnection, "dial %s: %v", s.opts.dialer, derr)
		}
		s.backend = backend
	}

	start := time.Now()
	n, err := s.backend.Write(frame)
	if err != nil {
		s.metrics.TrackDropped(metrics.DropSendFailed)
		_ = s.backend.Close()
		s.backend = nil
		return errors.Wrapf(err, "send to %s", s.opts.dialer)
	}
	s.metrics.TrackSent(n, time.Since(start))
	return nil
}

// Accept writes rec and logs any failure instead of returning it.
func (s *SyncSink) Accept(rec *types.LogRecord) {
	if err := s.WriteRecord(rec); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Error("write record", zap.Error(err))
	}
}

// Stats returns a snapshot of the sink's counters.
func (s *SyncSink) Stats() Stats {
	return s.metrics.Stats()
}

// Register exposes the sink's metrics on reg.
func (s *SyncSink) Register(reg prometheus.Registerer) error {
	return s.metrics.Register(reg, prometheus.Labels{
		"app":   s.cfg.AppName,
		"index": s.cfg.LogIndexName,
	})
}

// Close closes the connection. Later writes return ErrClosed.
func (s *SyncSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return errors.Wrap(err, "close connection")
}

// Shutdown closes the sink. Nothing is buffered, so there is nothing to drain.
func (s *SyncSink) Shutdown(_ context.Context) error {
	return s.Close()
}
