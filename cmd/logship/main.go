// Command logship forwards lines read from stdin to a log collector.
//
// Settings come from LOGSHIP_* environment variables; flags override them.
//
//	tail -F /var/log/app.log | logship -host logstash.internal -port 5959 -app billing -index billing-logs
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wayneeseguin/logship/pkg/logship"
	"github.com/wayneeseguin/logship/pkg/types"
)

// maxLineSize bounds a single forwarded line.
const maxLineSize = 1024 * 1024

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logship: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("logship failed", zap.Error(err))
		os.Exit(1)
	}
}

// forwarder holds the per-line record settings taken from flags.
type forwarder struct {
	level      types.Level
	loggerName string
	logType    string
}

func (f forwarder) record(line string) *types.LogRecord {
	rec := &types.LogRecord{
		Time:       time.Now(),
		Level:      f.level,
		LoggerName: f.loggerName,
		Message:    line,
		Thread:     "stdin",
	}
	if f.logType != "" {
		rec.Extra = map[string]interface{}{types.ExtraLogType: f.logType}
	}
	return rec
}

func run(ctx context.Context, args []string, in io.Reader, logger *zap.Logger) error {
	cfg, err := logship.ReadEnv()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("logship", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "collector host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "collector port")
	transport := fs.String("transport", string(cfg.Transport), "tcp, nats, redis or file")
	fs.StringVar(&cfg.AppName, "app", cfg.AppName, "application name written to every record")
	fs.StringVar(&cfg.LogIndexName, "index", cfg.LogIndexName, "log index name written to every record")
	fs.StringVar(&cfg.LogLevel, "min-level", cfg.LogLevel, "minimum level shipped")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of sender connections")
	fs.DurationVar(&cfg.DrainTimeout, "drain-timeout", cfg.DrainTimeout, "time allowed to flush buffered lines on exit")
	sync := fs.Bool("sync", !cfg.Async, "write each line before reading the next")

	level := fs.String("level", "INFO", "level of forwarded lines")
	fwd := forwarder{}
	fs.StringVar(&fwd.loggerName, "logger", "stdin", "logger name of forwarded lines")
	fs.StringVar(&fwd.logType, "log-type", "", "logType field of forwarded lines")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Transport.Decode(*transport); err != nil {
		return errors.Wrap(logship.ErrInvalidConfig, err.Error())
	}
	cfg.Async = !*sync
	fwd.level = types.ParseLevel(*level)

	if err := cfg.Validate(); err != nil {
		return err
	}

	sink, err := logship.Open(cfg, logship.WithLogger(logger))
	if err != nil {
		return err
	}
	logger.Info("forwarding stdin",
		zap.String("transport", string(cfg.Transport)),
		zap.String("app", cfg.AppName),
		zap.Bool("async", cfg.Async))

	forwardErr := forward(ctx, in, sink, fwd)

	// ctx may already be cancelled; Shutdown bounds the drain by DrainTimeout
	shutdownErr := sink.Shutdown(context.Background())

	stats := sink.Stats()
	logger.Info("logship stopped",
		zap.Uint64("accepted", stats.Accepted),
		zap.Uint64("sent", stats.Sent),
		zap.Uint64("dropped", stats.Dropped))

	if forwardErr != nil {
		return forwardErr
	}
	return shutdownErr
}

// forward accepts one record per input line until EOF or ctx is done.
func forward(ctx context.Context, in io.Reader, sink logship.Shipper, fwd forwarder) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return errors.Wrap(err, "read input")
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			sink.Accept(fwd.record(line))
		}
	}
}
