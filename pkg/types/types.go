package types

import (
	"time"
)

// LogRecord is a single log event handed to a sink by a logging front-end.
// Records are treated as immutable once passed to a sink; sinks never modify them.
type LogRecord struct {
	Time       time.Time
	Level      Level
	LoggerName string
	Message    string
	// Exception holds rendered exception text (typically a stack trace) appended to Message when formatting.
	Exception string
	// Err is an optional error; when it carries a pkg/errors stack trace the trace is rendered into the record.
	Err    error
	Caller CallerInfo
	Thread string
	Extra  map[string]interface{}
}

// CallerInfo describes the source location that produced a record.
type CallerInfo struct {
	Function string
	Module   string
	File     string
	Line     int
}

// Well-known keys of LogRecord.Extra understood by the formatters.
const (
	ExtraTraceID            = "trace_id"
	ExtraSpanID             = "span_id"
	ExtraParentID           = "parent_id"
	ExtraTraceSampled       = "trace_sampled"
	ExtraInstanceDescriptor = "instance_descriptor"
	ExtraClientIP           = "clientip"
	ExtraRequest            = "request"
	ExtraData               = "extraData"
	ExtraLogType            = "logType"
	ExtraLoggerName         = "logger_name"
)

// Get returns the extra value stored under key, or nil when absent.
func (r *LogRecord) Get(key string) interface{} {
	if r == nil || r.Extra == nil {
		return nil
	}
	return r.Extra[key]
}

// Sink accepts records without ever reporting failure to the caller.
type Sink interface {
	Accept(rec *LogRecord)
}

// RecordWriter accepts records and reports whether they were taken.
// Front-end adapters write through this interface so both buffered and
// synchronous sinks can back them.
type RecordWriter interface {
	WriteRecord(rec *LogRecord) error
}
