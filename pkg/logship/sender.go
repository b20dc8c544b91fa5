package logship

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wayneeseguin/logship/internal/buffer"
	"github.com/wayneeseguin/logship/internal/metrics"
	"github.com/wayneeseguin/logship/pkg/backends"
)

// Sender drains frames from a shared queue and writes them to one backend
// connection. A Sender holds at most one connection at a time and reconnects
// on demand with capped exponential backoff. Delivery is at-most-once: a frame
// whose write fails is dropped, never retried.
type Sender struct {
	id      ulid.ULID
	queue   *buffer.Queue
	dialer  backends.Dialer
	backoff *backoff.ExponentialBackOff
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	backend backends.Backend
}

func newSender(queue *buffer.Queue, cfg Config, o *options) *Sender {
	id := newSenderID()
	return &Sender{
		id:      id,
		queue:   queue,
		dialer:  o.dialer,
		backoff: newBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		sleep:   o.sleep,
		logger:  o.logger.Named("sender").With(zap.String("sender_id", id.String())),
		metrics: o.metrics,
	}
}

// newBackoff returns a policy without jitter that never gives up. The delay
// after the k-th consecutive failure is min(initial*2^k, max).
func newBackoff(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	resetBackoff(b)
	return b
}

// resetBackoff rewinds b and doubles the interval once, so the first failure
// already waits twice the initial interval.
func resetBackoff(b *backoff.ExponentialBackOff) {
	b.Reset()
	b.NextBackOff()
}

// ID returns the sender's identity.
func (s *Sender) ID() string {
	return s.id.String()
}

// Connected reports whether the sender holds an open connection.
func (s *Sender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil && !s.backend.Closed()
}

// Connect dials the destination. On success the backoff is reset. On failure
// the interval doubles, up to the configured maximum, and Connect sleeps for
// it before returning the dial error.
func (s *Sender) Connect(ctx context.Context) error {
	backend, err := s.dialer.Dial(ctx)
	s.metrics.TrackConnect(err)
	if err == nil {
		s.mu.Lock()
		s.backend = backend
		s.mu.Unlock()
		resetBackoff(s.backoff)
		s.logger.Debug("connected", zap.Stringer("destination", s.dialer))
		return nil
	}

	delay := s.backoff.NextBackOff()
	s.logger.Warn("connect failed",
		zap.Stringer("destination", s.dialer),
		zap.Duration("retry_in", delay),
		zap.Error(err))

	if serr := s.sleep(ctx, delay); serr != nil {
		return errors.Wrapf(err, "connect %s (backoff interrupted: %v)", s.dialer, serr)
	}
	return errors.Wrapf(err, "connect %s", s.dialer)
}

// Send writes frame to the current connection, connecting first if needed.
// The frame is dropped, not retried, when no connection can be made or the
// write fails.
func (s *Sender) Send(ctx context.Context, frame []byte) error {
	backend := s.current()
	if backend == nil {
		if err := s.Connect(ctx); err != nil {
			s.metrics.TrackDropped(metrics.DropNoConnection)
			s.logger.Error("dropping record, no connection", zap.Int("bytes", len(frame)), zap.Error(err))
			return errors.Wrap(ErrNoConnection, err.Error())
		}
		backend = s.current()
	}

	start := time.Now()
	n, err := backend.Write(frame)
	if err != nil {
		s.metrics.TrackDropped(metrics.DropSendFailed)
		s.logger.Error("dropping record, send failed",
			zap.Stringer("destination", s.dialer),
			zap.Int("bytes", len(frame)),
			zap.Error(err))
		s.discard(backend)
		return errors.Wrapf(err, "send to %s", s.dialer)
	}
	s.metrics.TrackSent(n, time.Since(start))
	return nil
}

// current returns the open backend, discarding one that has closed underneath us.
func (s *Sender) current() backends.Backend {
	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()

	if backend != nil && backend.Closed() {
		s.discard(backend)
		return nil
	}
	return backend
}

func (s *Sender) discard(backend backends.Backend) {
	s.mu.Lock()
	if s.backend == backend {
		s.backend = nil
	}
	s.mu.Unlock()

	if err := backend.Close(); err != nil {
		s.logger.Debug("close after failure", zap.Error(err))
	}
}

// Close closes the connection if one is open. It is safe to call more than once.
func (s *Sender) Close() error {
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()

	if backend == nil {
		return nil
	}
	if err := backend.Close(); err != nil {
		return errors.Wrapf(err, "close %s", s.dialer)
	}
	return nil
}

// Run sends frames until the queue is closed and drained or ctx is done.
func (s *Sender) Run(ctx context.Context) {
	s.logger.Debug("sender started")
	defer s.logger.Debug("sender stopped")

	for ctx.Err() == nil {
		frame, err := s.queue.Read(ctx)
		if err != nil {
			return
		}
		// Failures are counted and logged by Send
		_ = s.Send(ctx, frame)
	}
}
