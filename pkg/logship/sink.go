package logship

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wayneeseguin/logship/internal/buffer"
	"github.com/wayneeseguin/logship/internal/metrics"
	"github.com/wayneeseguin/logship/pkg/backends"
	"github.com/wayneeseguin/logship/pkg/types"
)

// Stats is a point-in-time snapshot of a sink's counters.
type Stats = metrics.Stats

// Shipper is implemented by both Sink and SyncSink.
type Shipper interface {
	types.Sink
	types.RecordWriter
	Shutdown(ctx context.Context) error
	Stats() Stats
}

var (
	_ Shipper = (*Sink)(nil)
	_ Shipper = (*SyncSink)(nil)
)

// Open returns a buffered Sink when cfg.Async is set and a SyncSink otherwise.
func Open(cfg Config, opts ...Option) (Shipper, error) {
	if cfg.Async {
		sink, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	sink, err := NewSync(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Sink formats records and hands them to a pool of Senders through an
// in-memory queue. Accept never blocks on network I/O and never reports
// failures to the caller; they are counted in Stats and logged.
type Sink struct {
	cfg      Config
	opts     *options
	logger   *zap.Logger
	metrics  *metrics.Collector
	minLevel types.Level

	startOnce sync.Once
	queue     *buffer.Queue
	senders   []*Sender
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates cfg and builds a sink. Workers start on the first record.
func New(cfg Config, opts ...Option) (*Sink, error) {
	o, err := resolve(&cfg, opts)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		cfg:      cfg,
		opts:     o,
		logger:   o.logger.Named("sink"),
		metrics:  o.metrics,
		minLevel: cfg.MinLevel(),
	}

	if o.registerer != nil {
		if err := s.Register(o.registerer); err != nil {
			return nil, err
		}
	}

	if cfg.Probe {
		s.probe()
	}
	return s, nil
}

// probe checks once that the collector accepts connections. The result is
// only logged; an unreachable collector is retried by the senders.
func (s *Sink) probe() {
	if s.cfg.Transport != TransportTCP && s.cfg.Transport != "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.dialTimeout())
	defer cancel()

	if err := backends.CheckTCP(ctx, s.cfg.Address(), s.cfg.dialTimeout()); err != nil {
		s.logger.Warn("log collector unreachable", zap.String("address", s.cfg.Address()), zap.Error(err))
		return
	}
	s.logger.Info("log collector reachable", zap.String("address", s.cfg.Address()))
}

// start creates the queue and launches the senders. It runs exactly once.
func (s *Sink) start() {
	s.queue = buffer.New(buffer.Options{
		Capacity:     s.cfg.BufferSize,
		Policy:       s.cfg.OverflowPolicy,
		BlockTimeout: s.cfg.BlockTimeout,
		OnDrop: func(_ []byte, reason string) {
			s.metrics.TrackDropped(reason)
		},
	})
	s.metrics.SetQueueDepthFunc(s.queue.Len)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.senders = make([]*Sender, s.cfg.Concurrency)
	for i := range s.senders {
		snd := newSender(s.queue, s.cfg, s.opts)
		s.senders[i] = snd
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			snd.Run(ctx)
		}()
	}

	s.logger.Debug("sink started",
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Int("buffer_size", s.cfg.BufferSize),
		zap.Stringer("overflow_policy", s.cfg.OverflowPolicy),
		zap.Stringer("destination", s.opts.dialer))
}

// Accept formats rec and queues it for delivery.
func (s *Sink) Accept(rec *types.LogRecord) {
	_ = s.WriteRecord(rec)
}

// WriteRecord is Accept for callers that want to know the sink is shut down.
// It returns ErrClosed after Shutdown and nil otherwise.
func (s *Sink) WriteRecord(rec *types.LogRecord) (err error) {
	if rec == nil {
		return nil
	}
	if s.closed.Load() {
		s.metrics.TrackDropped(metrics.DropClosed)
		return ErrClosed
	}
	if rec.Level.Normalize() < s.minLevel {
		return nil
	}

	s.startOnce.Do(s.start)

	defer func() {
		if r := recover(); r != nil {
			s.metrics.TrackDropped(metrics.DropFormatError)
			s.logger.Error("recovered while formatting record",
				zap.Any("panic", r),
				zap.String("logger_name", rec.LoggerName))
			err = nil
		}
	}()

	frame, ferr := s.opts.formatter.Format(rec)
	if ferr != nil {
		s.metrics.TrackDropped(metrics.DropFormatError)
		s.logger.Error("format record", zap.String("logger_name", rec.LoggerName), zap.Error(ferr))
		return nil
	}
	s.metrics.TrackAccepted()

	if werr := s.queue.Write(frame); werr != nil {
		if errors.Is(werr, buffer.ErrClosed) {
			s.metrics.TrackDropped(metrics.DropClosed)
			return ErrClosed
		}
		// Overflow drops are counted by the queue's OnDrop hook
		s.logger.Debug("buffer full", zap.Error(werr))
	}
	return nil
}

// Len returns the number of frames waiting to be sent.
func (s *Sink) Len() int {
	return s.metrics.QueueDepth()
}

// Stats returns a snapshot of the sink's counters.
func (s *Sink) Stats() Stats {
	return s.metrics.Stats()
}

// Register exposes the sink's metrics on reg, labelled with the app and index names.
func (s *Sink) Register(reg prometheus.Registerer) error {
	return s.metrics.Register(reg, prometheus.Labels{
		"app":   s.cfg.AppName,
		"index": s.cfg.LogIndexName,
	})
}

// Shutdown stops accepting records and lets the senders drain the queue.
// Draining is bounded by ctx, or by Config.DrainTimeout when ctx has no
// deadline. Frames still queued when the bound expires are dropped. Shutdown
// is idempotent; later calls return the first call's result.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Sink) shutdown(ctx context.Context) error {
	s.closed.Store(true)
	// A concurrent first Accept may still be starting the workers
	s.startOnce.Do(s.start)
	s.queue.Close()

	if _, ok := ctx.Deadline(); !ok && s.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DrainTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "drain buffer")
		s.cancel()
		<-done
	}
	s.cancel()

	// The queue is closed, so Read returns buffered frames and then ErrClosed
	remaining := 0
	for {
		if _, rerr := s.queue.Read(context.Background()); rerr != nil {
			break
		}
		remaining++
		s.metrics.TrackDropped(metrics.DropClosed)
	}
	if remaining > 0 {
		s.logger.Warn("records dropped at shutdown", zap.Int("count", remaining))
	}

	for _, snd := range s.senders {
		err = multierr.Append(err, snd.Close())
	}
	return err
}
