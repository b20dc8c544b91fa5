// Command logship-collector listens for NUL-delimited JSON records and prints
// them to stdout. It stands in for a logstash tcp input when debugging a sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wayneeseguin/logship/internal/collector"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logship-collector: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("collector failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, logger *zap.Logger) error {
	fs := flag.NewFlagSet("logship-collector", flag.ContinueOnError)
	listen := fs.String("listen", "127.0.0.1:5959", "address to listen on")
	raw := fs.Bool("raw", false, "print each frame as received instead of a summary line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv, err := collector.Listen(*listen,
		collector.WithLogger(logger),
		collector.WithoutHistory(),
		collector.WithRecordHandler(printer(out, *raw)))
	if err != nil {
		return err
	}
	logger.Info("collector listening", zap.String("addr", srv.Addr()))

	<-ctx.Done()
	logger.Info("collector stopping",
		zap.Int("connections", srv.Accepted()),
		zap.Int("invalid_frames", srv.Invalid()))
	return srv.Close()
}

// printer returns a record handler writing one line per record. Handlers run
// on per-connection goroutines, so writes are serialized.
func printer(out io.Writer, raw bool) func(collector.Record) {
	var mu sync.Mutex
	return func(r collector.Record) {
		mu.Lock()
		defer mu.Unlock()
		if raw {
			fmt.Fprintf(out, "%s\n", r.Raw)
			return
		}
		fmt.Fprintf(out, "%s %-13s %s/%s %s: %s\n",
			r.Timestamp, r.Severity, r.AppName, r.IndexName, r.LoggerName, r.Message)
		if r.StackTrace != "" {
			fmt.Fprintf(out, "%s\n", r.StackTrace)
		}
	}
}
