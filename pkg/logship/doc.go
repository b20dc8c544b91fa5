// Package logship ships structured log records to a remote log collector.
// A record handed to a Sink is formatted into a fixed-shape JSON object,
// terminated by a NUL byte, buffered in memory and written by a pool of
// sender goroutines over a plain TCP stream of the kind logstash and GELF
// TCP inputs accept.
//
// Logging never blocks on the network. When the collector is unreachable each
// sender retries with exponential backoff (1s doubling to 16s) and records
// that cannot be delivered are dropped and counted, never returned to the
// caller as errors.
//
// Key Features:
//
//   - Fixed wire schema with level to syslog severity mapping
//   - Stack trace extraction from messages and github.com/pkg/errors values
//   - Lazy start: no goroutines or connections until the first record
//   - Bounded buffer with drop-oldest, drop-newest or block overflow policies
//   - Graceful shutdown that drains buffered records within a deadline
//   - Alternative transports: NATS subject, Redis list, rotating file
//   - Prometheus counters for accepted, sent and dropped records
//   - A synchronous variant for short-lived programs
//
// Basic Usage:
//
//	cfg := logship.DefaultConfig()
//	cfg.Host = "logstash.internal"
//	cfg.Port = 5959
//	cfg.AppName = "billing"
//	cfg.LogIndexName = "billing-logs"
//
//	sink, err := logship.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sink.Shutdown(context.Background())
//
//	sink.Accept(&types.LogRecord{
//		Time:       time.Now(),
//		Level:      types.LevelInfo,
//		LoggerName: "billing.invoices",
//		Message:    "invoice created",
//	})
//
// Configuration From The Environment:
//
//	cfg, err := logship.LoadConfig() // LOGSHIP_HOST, LOGSHIP_PORT, LOGSHIP_CONCURRENCY, ...
//	if err != nil {
//		log.Fatal(err)
//	}
//	shipper, err := logship.Open(cfg, logship.WithLogger(zapLogger))
//
// Front-end loggers (log/slog, zap, zerolog) are connected through the
// adapters package.
package logship
