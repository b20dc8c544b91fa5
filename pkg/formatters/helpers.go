package formatters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/logship/pkg/types"
)

// timestampLayout renders UTC time with millisecond precision; the Z is appended separately.
const timestampLayout = "2006-01-02T15:04:05.000"

var (
	processDescriptor string

	goroutineHeader = regexp.MustCompile(`goroutine \d+ \[[^\]]*\]:`)
)

func init() {
	// Cache values that don't change
	processDescriptor = filepath.Base(os.Args[0]) + "-" + strconv.Itoa(os.Getpid())
}

// formatTimestamp renders t as an ISO-8601 UTC timestamp such as 2024-05-01T08:30:00.123Z.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout) + "Z"
}

// renderMessage joins the record message with its exception text.
func renderMessage(rec *types.LogRecord) string {
	if rec.Exception == "" {
		return rec.Message
	}
	if rec.Message == "" {
		return rec.Exception
	}
	return rec.Message + "\n" + rec.Exception
}

// splitStackTrace cuts msg at the earliest stack marker. Everything before
// the marker is the message; the marker onward is the stack trace.
func splitStackTrace(msg string, markers []string) (string, *string) {
	idx := -1
	for _, m := range markers {
		if m == "" {
			continue
		}
		if i := strings.Index(msg, m); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if loc := goroutineHeader.FindStringIndex(msg); loc != nil && (idx < 0 || loc[0] < idx) {
		idx = loc[0]
	}
	if idx < 0 {
		return msg, nil
	}
	stack := msg[idx:]
	return msg[:idx], &stack
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// errorStackTrace renders err with its pkg/errors stack, or nil if it has none.
func errorStackTrace(err error) *string {
	if err == nil {
		return nil
	}
	var st stackTracer
	if !errors.As(err, &st) {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// truthy mirrors how loosely typed producers express flags: true, "true",
// "1", non-zero numbers and non-empty collections all count.
func truthy(v interface{}) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// buildWireRecord projects rec onto the wire schema.
func buildWireRecord(rec *types.LogRecord, opts FormatOptions) types.WireRecord {
	message, stack := splitStackTrace(renderMessage(rec), opts.StackMarkers)
	if stack == nil {
		stack = errorStackTrace(rec.Err)
	}

	sev := opts.LevelMap.Resolve(rec.Level)

	loggerName := rec.LoggerName
	if override := stringValue(rec.Get(types.ExtraLoggerName)); override != "" {
		loggerName = override
	}

	instance := optionalString(stringValue(rec.Get(types.ExtraInstanceDescriptor)))
	if instance == nil {
		instance = optionalString(opts.InstanceDescriptor)
	}

	thread := rec.Thread
	if thread == "" {
		thread = "goroutine"
	}

	module := rec.Caller.Module
	if module == "" {
		module = loggerName
	}

	sampled := "false"
	if truthy(rec.Get(types.ExtraTraceSampled)) {
		sampled = "true"
	}

	request := rec.Get(types.ExtraRequest)
	isRequest := 0
	if truthy(request) {
		isRequest = 1
	}

	var loggerFile *string
	if rec.Caller.File != "" {
		loggerFile = optionalString(filepath.Base(rec.Caller.File))
	}

	return types.WireRecord{
		AppName:               opts.AppName,
		InstanceDescriptor:    instance,
		Timestamp:             formatTimestamp(rec.Time),
		LoggerName:            loggerName,
		SourceMethodName:      optionalString(rec.Caller.Function),
		SpanID:                rec.Get(types.ExtraSpanID),
		TraceID:               rec.Get(types.ExtraTraceID),
		Sampled:               sampled,
		SourceSimpleClassName: optionalString(rec.Caller.Module),
		Message:               message,
		ParentID:              rec.Get(types.ExtraParentID),
		SourceClassName:       optionalString(rec.Caller.Module),
		IndexName:             strings.ToLower(opts.IndexName),
		Facility:              opts.Facility,
		Severity:              sev.Name,
		Thread:                thread,
		Process:               processDescriptor,
		Line:                  module + "#" + strconv.Itoa(rec.Caller.Line),
		Level:                 sev.Rank,
		Version:               WireVersion,
		Host:                  rec.Get(types.ExtraClientIP),
		FilePath:              optionalString(rec.Caller.File),
		StackTrace:            stack,
		LoggerFile:            loggerFile,
		IsRequestLog:          isRequest,
		Request:               request,
		ExtraData:             rec.Get(types.ExtraData),
		LogType:               rec.Get(types.ExtraLogType),
	}
}

// safeMarshal marshals wr, replacing free-form values that cannot be
// encoded with their fmt rendering and retrying once.
func safeMarshal(wr types.WireRecord) ([]byte, error) {
	data, err := json.Marshal(wr)
	if err == nil {
		return data, nil
	}

	for _, field := range []*interface{}{
		&wr.SpanID, &wr.TraceID, &wr.ParentID, &wr.Host,
		&wr.Request, &wr.ExtraData, &wr.LogType,
	} {
		*field = makeSafe(*field)
	}

	data, err = json.Marshal(wr)
	if err != nil {
		return nil, errors.Wrap(err, "marshal wire record")
	}
	return data, nil
}

func makeSafe(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	if m, ok := v.(map[string]interface{}); ok {
		safe := make(map[string]interface{}, len(m))
		for k, val := range m {
			safe[k] = makeSafe(val)
		}
		return safe
	}
	return fmt.Sprintf("%v", v)
}
