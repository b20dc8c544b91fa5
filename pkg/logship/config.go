package logship

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/logship/pkg/backends"
	"github.com/wayneeseguin/logship/pkg/formatters"
	"github.com/wayneeseguin/logship/pkg/types"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "LOGSHIP"

// Transport selects the destination a sink ships to.
type Transport string

const (
	// TransportTCP streams NUL-delimited JSON to host:port. This is the default.
	TransportTCP Transport = "tcp"
	// TransportNATS publishes one message per record to a NATS subject.
	TransportNATS Transport = "nats"
	// TransportRedis pushes records onto a Redis list.
	TransportRedis Transport = "redis"
	// TransportFile writes URL-escaped records, decoded to JSON lines, to a rotating file.
	TransportFile Transport = "file"
)

// Decode implements envconfig.Decoder.
func (t *Transport) Decode(value string) error {
	switch v := Transport(strings.ToLower(strings.TrimSpace(value))); v {
	case "":
		*t = TransportTCP
	case TransportTCP, TransportNATS, TransportRedis, TransportFile:
		*t = v
	default:
		return fmt.Errorf("unknown transport %q", value)
	}
	return nil
}

// Config contains every setting of a sink. It is normally populated from
// LOGSHIP_* environment variables by LoadConfig and adjusted with Options.
//
// Example:
//
//	cfg := logship.DefaultConfig()
//	cfg.Host = "logstash.internal"
//	cfg.Port = 5959
//	cfg.AppName = "billing"
//	cfg.LogIndexName = "billing-logs"
//	sink, err := logship.New(cfg)
type Config struct {
	// Destination
	Host      string    `envconfig:"HOST"`
	Port      int       `envconfig:"PORT"`
	Transport Transport `envconfig:"TRANSPORT" default:"tcp"`

	NATSURL     string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"logs"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisKey      string `envconfig:"REDIS_KEY" default:"logstash"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	FilePath       string `envconfig:"FILE_PATH" default:"/logs/app.log"`
	FileMaxSizeMB  int    `envconfig:"FILE_MAX_SIZE_MB" default:"25"`
	FileMaxBackups int    `envconfig:"FILE_MAX_BACKUPS" default:"0"`
	FileMaxAgeDays int    `envconfig:"FILE_MAX_AGE_DAYS" default:"0"`
	FileCompress   bool   `envconfig:"FILE_COMPRESS" default:"false"`

	// Record metadata
	AppName            string               `envconfig:"APP_NAME"`
	LogIndexName       string               `envconfig:"LOG_INDEX_NAME"`
	InstanceDescriptor string               `envconfig:"INSTANCE_DESCRIPTOR"`
	LevelMap           types.LevelMapPreset `envconfig:"LEVEL_MAP" default:"default"`
	// LogLevel is the minimum level a sink accepts.
	LogLevel     string   `envconfig:"LOG_LEVEL" default:"INFO"`
	StackMarkers []string `envconfig:"STACK_MARKERS"`

	// Workers and buffering
	Concurrency    int                  `envconfig:"CONCURRENCY" default:"1"`
	BufferSize     int                  `envconfig:"BUFFER_SIZE" default:"10000"`
	OverflowPolicy types.OverflowPolicy `envconfig:"OVERFLOW_POLICY" default:"drop-oldest"`
	BlockTimeout   time.Duration        `envconfig:"BLOCK_TIMEOUT" default:"100ms"`

	// Connection management
	BackoffInitial time.Duration `envconfig:"BACKOFF_INITIAL" default:"1s"`
	BackoffMax     time.Duration `envconfig:"BACKOFF_MAX" default:"16s"`
	DialTimeout    time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	DrainTimeout   time.Duration `envconfig:"DRAIN_TIMEOUT" default:"5s"`

	// Async selects the buffered Sink; when false Open returns a SyncSink.
	Async bool `envconfig:"ASYNC" default:"true"`
	// Probe checks TCP reachability once at construction and logs the result.
	Probe bool `envconfig:"PROBE" default:"false"`
}

// DefaultConfig returns a Config with the same defaults LoadConfig applies.
// Host and Port have no default and must be set for the TCP transport.
func DefaultConfig() Config {
	return Config{
		Transport:      TransportTCP,
		NATSURL:        "nats://127.0.0.1:4222",
		NATSSubject:    backends.DefaultNATSSubject,
		RedisAddr:      "127.0.0.1:6379",
		RedisKey:       backends.DefaultRedisKey,
		FilePath:       backends.DefaultFilePath,
		FileMaxSizeMB:  backends.DefaultFileMaxSizeMB,
		LevelMap:       types.LevelMapPresetDefault,
		LogLevel:       "INFO",
		Concurrency:    1,
		BufferSize:     10000,
		OverflowPolicy: types.DropOldest,
		BlockTimeout:   100 * time.Millisecond,
		BackoffInitial: time.Second,
		BackoffMax:     16 * time.Second,
		DialTimeout:    backends.DefaultDialTimeout,
		WriteTimeout:   backends.DefaultWriteTimeout,
		DrainTimeout:   5 * time.Second,
		Async:          true,
	}
}

// LoadConfig reads LOGSHIP_* environment variables and validates the result.
func LoadConfig() (Config, error) {
	cfg, err := ReadEnv()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ReadEnv reads LOGSHIP_* environment variables without validating the
// result, so callers can layer their own overrides before Validate.
func ReadEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return cfg, nil
}

// Validate checks that the configuration can produce a working sink.
func (c Config) Validate() error {
	if err := c.validateTransport(); err != nil {
		return err
	}
	return c.validatePipeline()
}

func (c Config) validateTransport() error {
	switch c.Transport {
	case TransportTCP, "":
		if c.Host == "" {
			return invalidConfig("host is required for the tcp transport")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return invalidConfig("port %d out of range", c.Port)
		}
	case TransportNATS:
		if c.NATSURL == "" {
			return invalidConfig("nats url is required for the nats transport")
		}
	case TransportRedis:
		if c.RedisAddr == "" {
			return invalidConfig("redis address is required for the redis transport")
		}
	case TransportFile:
		if c.FilePath == "" {
			return invalidConfig("file path is required for the file transport")
		}
	default:
		return invalidConfig("unknown transport %q", c.Transport)
	}
	return nil
}

func (c Config) validatePipeline() error {
	if c.Concurrency < 1 {
		return invalidConfig("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.BufferSize < 0 {
		return invalidConfig("buffer size must not be negative, got %d", c.BufferSize)
	}
	if c.BackoffInitial <= 0 {
		return invalidConfig("backoff initial interval must be positive")
	}
	if c.BackoffMax < c.BackoffInitial {
		return invalidConfig("backoff max %s is below initial %s", c.BackoffMax, c.BackoffInitial)
	}
	if err := c.LevelMap.LevelMap().Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// Address returns host:port for the TCP transport.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return backends.DefaultDialTimeout
	}
	return c.DialTimeout
}

// MinLevel returns the parsed LogLevel.
func (c Config) MinLevel() types.Level {
	if c.LogLevel == "" {
		return types.LevelDebug
	}
	return types.ParseLevel(c.LogLevel)
}

// FormatterName returns the formatter matching the transport.
func (c Config) FormatterName() string {
	if c.Transport == TransportFile {
		return formatters.FormatFilebeat
	}
	return formatters.FormatWire
}

// FormatOptions returns the formatter options described by the config.
func (c Config) FormatOptions() formatters.FormatOptions {
	opts := formatters.DefaultFormatOptions()
	opts.AppName = c.AppName
	opts.IndexName = c.LogIndexName
	opts.InstanceDescriptor = c.InstanceDescriptor
	opts.LevelMap = c.LevelMap.LevelMap()
	if len(c.StackMarkers) > 0 {
		opts.StackMarkers = append(opts.StackMarkers, c.StackMarkers...)
	}
	return opts
}

// Dialer returns the backend dialer for the configured transport.
func (c Config) Dialer() (backends.Dialer, error) {
	switch c.Transport {
	case TransportTCP, "":
		return &backends.TCPDialer{
			Address:      c.Address(),
			DialTimeout:  c.DialTimeout,
			WriteTimeout: c.WriteTimeout,
		}, nil
	case TransportNATS:
		return &backends.NATSDialer{
			URL:          c.NATSURL,
			Subject:      c.NATSSubject,
			DialTimeout:  c.DialTimeout,
			FlushTimeout: c.WriteTimeout,
		}, nil
	case TransportRedis:
		return &backends.RedisDialer{
			Addr:         c.RedisAddr,
			Password:     c.RedisPassword,
			DB:           c.RedisDB,
			Key:          c.RedisKey,
			DialTimeout:  c.DialTimeout,
			WriteTimeout: c.WriteTimeout,
		}, nil
	case TransportFile:
		return &backends.FileDialer{
			Path:       c.FilePath,
			MaxSizeMB:  c.FileMaxSizeMB,
			MaxBackups: c.FileMaxBackups,
			MaxAgeDays: c.FileMaxAgeDays,
			Compress:   c.FileCompress,
			Unescape:   true,
			MaxRetries: backends.DefaultDiskFullRetries,
		}, nil
	default:
		return nil, invalidConfig("unknown transport %q", c.Transport)
	}
}
