package formatters

import (
	"github.com/wayneeseguin/logship/pkg/types"
)

// FrameDelimiter terminates every message on a stream transport.
const FrameDelimiter byte = 0

// WireFormatter formats records as one JSON document followed by a NUL byte.
type WireFormatter struct {
	Options FormatOptions
}

// NewWireFormatter creates a wire formatter. Empty option fields take their defaults.
func NewWireFormatter(opts FormatOptions) *WireFormatter {
	return &WireFormatter{
		Options: opts.withDefaults(),
	}
}

// Format formats a record as a NUL-terminated JSON document
func (f *WireFormatter) Format(rec *types.LogRecord) ([]byte, error) {
	data, err := f.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(data, FrameDelimiter), nil
}

// Marshal returns the JSON document for rec without framing.
func (f *WireFormatter) Marshal(rec *types.LogRecord) ([]byte, error) {
	if rec == nil {
		rec = &types.LogRecord{}
	}
	return safeMarshal(buildWireRecord(rec, f.Options))
}

// Record returns the wire projection of rec.
func (f *WireFormatter) Record(rec *types.LogRecord) types.WireRecord {
	if rec == nil {
		rec = &types.LogRecord{}
	}
	return buildWireRecord(rec, f.Options)
}
