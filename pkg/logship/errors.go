package logship

import (
	"github.com/pkg/errors"
)

// Standard errors
var (
	// ErrClosed is returned when writing to a sink after Shutdown.
	ErrClosed = errors.New("sink is closed")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoConnection is returned by Sender.Send when a frame is dropped because
	// no connection could be established.
	ErrNoConnection = errors.New("no connection to log collector")
)

func invalidConfig(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}
