package formatters

import (
	"bytes"
	"net/url"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/logship/pkg/types"
)

// FilebeatFormatter formats records for a file that a log shipper tails.
// The JSON document is query-escaped so embedded newlines cannot split it.
type FilebeatFormatter struct {
	wire *WireFormatter
}

// NewFilebeatFormatter creates a file-oriented formatter.
func NewFilebeatFormatter(opts FormatOptions) *FilebeatFormatter {
	return &FilebeatFormatter{wire: NewWireFormatter(opts)}
}

// Format returns the URL-escaped JSON document.
func (f *FilebeatFormatter) Format(rec *types.LogRecord) ([]byte, error) {
	data, err := f.wire.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return []byte(url.QueryEscape(string(data))), nil
}

// UnescapeFrame reverses FilebeatFormatter.Format, returning the JSON document.
// A trailing NUL delimiter is ignored.
func UnescapeFrame(frame []byte) ([]byte, error) {
	frame = bytes.TrimRight(frame, "\x00")
	s, err := url.QueryUnescape(string(frame))
	if err != nil {
		return nil, errors.Wrap(err, "unescape frame")
	}
	return []byte(s), nil
}
