package logship

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wayneeseguin/logship/internal/metrics"
	"github.com/wayneeseguin/logship/pkg/backends"
	"github.com/wayneeseguin/logship/pkg/formatters"
	"github.com/wayneeseguin/logship/pkg/types"
)

// Option is a functional option applied when a sink is constructed.
type Option func(*options) error

type options struct {
	logger     *zap.Logger
	dialer     backends.Dialer
	formatter  formatters.Formatter
	registerer prometheus.Registerer
	metrics    *metrics.Collector
	sleep      func(ctx context.Context, d time.Duration) error

	concurrency int
	levelMap    *types.LevelMap
}

// WithLogger sets the logger used for the pipeline's own diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.Wrap(ErrInvalidConfig, "logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithDialer overrides the dialer derived from Config.Transport.
func WithDialer(dialer backends.Dialer) Option {
	return func(o *options) error {
		if dialer == nil {
			return errors.Wrap(ErrInvalidConfig, "dialer cannot be nil")
		}
		o.dialer = dialer
		return nil
	}
}

// WithFormatter overrides the formatter derived from the config.
func WithFormatter(formatter formatters.Formatter) Option {
	return func(o *options) error {
		if formatter == nil {
			return errors.Wrap(ErrInvalidConfig, "formatter cannot be nil")
		}
		o.formatter = formatter
		return nil
	}
}

// WithRegisterer registers the sink's metrics on reg at construction.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithConcurrency overrides Config.Concurrency.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.Wrapf(ErrInvalidConfig, "concurrency must be at least 1, got %d", n)
		}
		o.concurrency = n
		return nil
	}
}

// WithLevelMap overrides the severity mapping chosen by Config.LevelMap. It has
// no effect when WithFormatter is also given.
func WithLevelMap(m types.LevelMap) Option {
	return func(o *options) error {
		if err := m.Validate(); err != nil {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
		o.levelMap = &m
		return nil
	}
}

// withSleep replaces the backoff sleep, letting tests observe delays without waiting.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) error {
		o.sleep = sleep
		return nil
	}
}

// resolve applies opts over the components described by cfg.
func resolve(cfg *Config, opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if o.concurrency > 0 {
		cfg.Concurrency = o.concurrency
	}

	// An injected dialer replaces the transport, so its settings are not checked
	validate := cfg.Validate
	if o.dialer != nil {
		validate = cfg.validatePipeline
	}
	if err := validate(); err != nil {
		return nil, err
	}

	if cfg.InstanceDescriptor == "" {
		cfg.InstanceDescriptor = DefaultInstanceDescriptor()
	}

	if o.logger == nil {
		o.logger = defaultLogger()
	}
	if o.formatter == nil {
		fo := cfg.FormatOptions()
		if o.levelMap != nil {
			fo.LevelMap = *o.levelMap
		}
		f, err := formatters.CreateFormatter(cfg.FormatterName(), fo)
		if err != nil {
			return nil, errors.Wrap(err, "create formatter")
		}
		o.formatter = f
	}
	if o.dialer == nil {
		d, err := cfg.Dialer()
		if err != nil {
			return nil, err
		}
		o.dialer = d
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	o.metrics = metrics.NewCollector()
	return o, nil
}

// defaultLogger writes warnings and errors as JSON to stderr.
func defaultLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.Named("logship")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
