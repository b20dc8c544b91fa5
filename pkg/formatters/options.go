package formatters

import (
	"github.com/wayneeseguin/logship/pkg/types"
)

// Formatter turns a record into the bytes of one shipped message.
type Formatter interface {
	Format(rec *types.LogRecord) ([]byte, error)
}

// Default values used when FormatOptions leaves them empty.
const (
	DefaultFacility = "logship"
	WireVersion     = "1"
)

// PythonTracebackMarker starts a Python traceback embedded in a message.
const PythonTracebackMarker = "Traceback (most recent call last):"

// FormatOptions controls how records are projected onto the wire schema.
type FormatOptions struct {
	AppName string
	// IndexName routes records on the collector side; it is lowercased on output.
	IndexName string
	// InstanceDescriptor is used when a record does not carry its own.
	InstanceDescriptor string
	LevelMap           types.LevelMap
	// StackMarkers start an embedded stack trace inside a rendered message.
	// Go runtime stack headers ("goroutine N [running]:") are always recognized.
	StackMarkers []string
	Facility     string
}

// DefaultFormatOptions returns options with the default level map and stack markers.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		LevelMap:     types.DefaultLevelMap(),
		StackMarkers: []string{PythonTracebackMarker},
		Facility:     DefaultFacility,
	}
}

func (o FormatOptions) withDefaults() FormatOptions {
	if o.LevelMap == (types.LevelMap{}) {
		o.LevelMap = types.DefaultLevelMap()
	}
	if o.StackMarkers == nil {
		o.StackMarkers = []string{PythonTracebackMarker}
	}
	if o.Facility == "" {
		o.Facility = DefaultFacility
	}
	return o
}
