package formatters

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayneeseguin/logship/pkg/types"
)

var wireKeys = []string{
	"appName", "instance_descriptor", "@timestamp", "LoggerName", "SourceMethodName",
	"spanId", "traceId", "sampled", "SourceSimpleClassName", "message", "parentId",
	"SourceClassName", "indexName", "facility", "Severity", "Thread", "Process", "line",
	"level", "@version", "host", "filepath", "StackTrace", "LoggerFile", "IsRequestLog",
	"request", "extraData", "logType",
}

func testRecord() *types.LogRecord {
	return &types.LogRecord{
		Time:       time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.FixedZone("CEST", 2*3600)),
		Level:      types.LevelWarning,
		LoggerName: "billing.invoices",
		Message:    "invoice 42 overdue",
		Caller: types.CallerInfo{
			Function: "Reconcile",
			Module:   "billing",
			File:     "/srv/app/billing/reconcile.go",
			Line:     87,
		},
		Extra: map[string]interface{}{
			types.ExtraTraceID:      "4bf92f3577b34da6a3ce929d0e0e4736",
			types.ExtraSpanID:       "00f067aa0ba902b7",
			types.ExtraTraceSampled: true,
			types.ExtraClientIP:     "10.1.2.3",
			types.ExtraData:         map[string]interface{}{"invoice": 42, "currency": "EUR"},
		},
	}
}

func testOptions() FormatOptions {
	opts := DefaultFormatOptions()
	opts.AppName = "billing"
	opts.IndexName = "Billing-Logs"
	opts.InstanceDescriptor = "host-1-abcd"
	return opts
}

func decodeFrame(t *testing.T, frame []byte) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, frame)
	require.Equal(t, FrameDelimiter, frame[len(frame)-1], "frame must end with NUL")

	body := frame[:len(frame)-1]
	require.False(t, bytes.Contains(body, []byte{0}), "NUL inside frame body")
	require.True(t, utf8.Valid(body))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &doc))
	return doc
}

func TestWireFormatterFormat(t *testing.T) {
	f := NewWireFormatter(testOptions())

	frame, err := f.Format(testRecord())
	require.NoError(t, err)
	doc := decodeFrame(t, frame)

	for _, key := range wireKeys {
		assert.Contains(t, doc, key)
	}
	assert.Len(t, doc, len(wireKeys))

	assert.Equal(t, "billing", doc["appName"])
	assert.Equal(t, "host-1-abcd", doc["instance_descriptor"])
	assert.Equal(t, "2024-05-01T08:30:00.123Z", doc["@timestamp"])
	assert.Equal(t, "billing.invoices", doc["LoggerName"])
	assert.Equal(t, "Reconcile", doc["SourceMethodName"])
	assert.Equal(t, "00f067aa0ba902b7", doc["spanId"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", doc["traceId"])
	assert.Equal(t, "true", doc["sampled"])
	assert.Equal(t, "invoice 42 overdue", doc["message"])
	assert.Equal(t, "billing-logs", doc["indexName"])
	assert.Equal(t, DefaultFacility, doc["facility"])
	assert.Equal(t, "Warning", doc["Severity"])
	assert.Equal(t, float64(4), doc["level"])
	assert.Equal(t, "goroutine", doc["Thread"])
	assert.Equal(t, processDescriptor, doc["Process"])
	assert.Equal(t, "billing#87", doc["line"])
	assert.Equal(t, "1", doc["@version"])
	assert.Equal(t, "10.1.2.3", doc["host"])
	assert.Equal(t, "/srv/app/billing/reconcile.go", doc["filepath"])
	assert.Equal(t, "reconcile.go", doc["LoggerFile"])
	assert.Nil(t, doc["StackTrace"])
	assert.Equal(t, float64(0), doc["IsRequestLog"])
	assert.Nil(t, doc["request"])
	assert.Equal(t, map[string]interface{}{"invoice": float64(42), "currency": "EUR"}, doc["extraData"])
}

func TestWireFormatterDeterministic(t *testing.T) {
	f := NewWireFormatter(testOptions())

	first, err := f.Format(testRecord())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := f.Format(testRecord())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestWireFormatterNullFields(t *testing.T) {
	f := NewWireFormatter(FormatOptions{})

	frame, err := f.Format(&types.LogRecord{
		Time:    time.Unix(0, 0),
		Level:   types.LevelInfo,
		Message: "bare",
	})
	require.NoError(t, err)
	doc := decodeFrame(t, frame)

	for _, key := range []string{
		"instance_descriptor", "SourceMethodName", "spanId", "traceId",
		"SourceSimpleClassName", "parentId", "SourceClassName", "host",
		"filepath", "StackTrace", "LoggerFile", "request", "extraData", "logType",
	} {
		v, ok := doc[key]
		assert.True(t, ok, "missing key %s", key)
		assert.Nil(t, v, "key %s", key)
	}
	assert.Equal(t, "false", doc["sampled"])
	assert.Equal(t, "1970-01-01T00:00:00.000Z", doc["@timestamp"])
}

func TestWireFormatterNilRecord(t *testing.T) {
	frame, err := NewWireFormatter(FormatOptions{}).Format(nil)
	require.NoError(t, err)
	doc := decodeFrame(t, frame)
	assert.Equal(t, "Informational", doc["Severity"])
}

func TestWireFormatterUnknownLevel(t *testing.T) {
	tests := []struct {
		name     string
		levelMap types.LevelMap
		level    types.Level
		severity string
		rank     float64
	}{
		{"zero", types.DefaultLevelMap(), types.Level(0), "Informational", 6},
		{"between", types.DefaultLevelMap(), types.Level(25), "Informational", 6},
		{"negative", types.DefaultLevelMap(), types.Level(-3), "Informational", 6},
		{"error as critical", types.ErrorAsCriticalLevelMap(), types.LevelError, "Critical", 2},
		{"debug", types.DefaultLevelMap(), types.LevelDebug, "Debug", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewWireFormatter(FormatOptions{LevelMap: tt.levelMap})
			rec := testRecord()
			rec.Level = tt.level

			frame, err := f.Format(rec)
			require.NoError(t, err)
			doc := decodeFrame(t, frame)
			assert.Equal(t, tt.severity, doc["Severity"])
			assert.Equal(t, tt.rank, doc["level"])
		})
	}
}

func TestWireFormatterStackTraceSplit(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		exception string
		message2  string
		stack     string
	}{
		{
			name:     "python traceback in message",
			message:  "payment failed\nTraceback (most recent call last):\n  File \"pay.py\", line 3",
			message2: "payment failed\n",
			stack:    "Traceback (most recent call last):\n  File \"pay.py\", line 3",
		},
		{
			name:      "go stack in exception",
			message:   "worker crashed",
			exception: "goroutine 7 [running]:\nmain.work()\n\t/app/main.go:12",
			message2:  "worker crashed\n",
			stack:     "goroutine 7 [running]:\nmain.work()\n\t/app/main.go:12",
		},
		{
			name:     "earliest marker wins",
			message:  "a goroutine 1 [chan receive]: b Traceback (most recent call last): c",
			message2: "a ",
			stack:    "goroutine 1 [chan receive]: b Traceback (most recent call last): c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord()
			rec.Message = tt.message
			rec.Exception = tt.exception

			frame, err := NewWireFormatter(testOptions()).Format(rec)
			require.NoError(t, err)
			doc := decodeFrame(t, frame)
			assert.Equal(t, tt.message2, doc["message"])
			assert.Equal(t, tt.stack, doc["StackTrace"])
		})
	}
}

func TestWireFormatterCustomStackMarker(t *testing.T) {
	opts := testOptions()
	opts.StackMarkers = []string{"Exception in thread"}
	rec := testRecord()
	rec.Message = "oops Exception in thread main"

	frame, err := NewWireFormatter(opts).Format(rec)
	require.NoError(t, err)
	doc := decodeFrame(t, frame)
	assert.Equal(t, "oops ", doc["message"])
	assert.Equal(t, "Exception in thread main", doc["StackTrace"])
}

func TestWireFormatterErrorStack(t *testing.T) {
	rec := testRecord()
	rec.Err = errors.Wrap(errors.New("disk full"), "flush ledger")

	frame, err := NewWireFormatter(testOptions()).Format(rec)
	require.NoError(t, err)
	doc := decodeFrame(t, frame)

	stack, ok := doc["StackTrace"].(string)
	require.True(t, ok)
	assert.Contains(t, stack, "disk full")
	assert.Contains(t, stack, "TestWireFormatterErrorStack")
	assert.Equal(t, "invoice 42 overdue", doc["message"])
}

func TestWireFormatterPlainErrorHasNoStack(t *testing.T) {
	rec := testRecord()
	rec.Err = json.Unmarshal([]byte("{"), &struct{}{})

	frame, err := NewWireFormatter(testOptions()).Format(rec)
	require.NoError(t, err)
	assert.Nil(t, decodeFrame(t, frame)["StackTrace"])
}

func TestWireFormatterUnmarshalableExtras(t *testing.T) {
	rec := testRecord()
	rec.Extra[types.ExtraData] = map[string]interface{}{
		"ok":    "fine",
		"ch":    make(chan int),
		"price": 9.5,
	}
	rec.Extra[types.ExtraRequest] = func() {}

	frame, err := NewWireFormatter(testOptions()).Format(rec)
	require.NoError(t, err)
	doc := decodeFrame(t, frame)

	extra, ok := doc["extraData"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "fine", extra["ok"])
	assert.Equal(t, 9.5, extra["price"])
	assert.IsType(t, "", extra["ch"])
	assert.IsType(t, "", doc["request"])
	assert.Equal(t, float64(1), doc["IsRequestLog"])
}

func TestWireFormatterRequestAndOverrides(t *testing.T) {
	rec := testRecord()
	rec.Thread = "worker-3"
	rec.Extra[types.ExtraRequest] = map[string]interface{}{"status": 201, "method": "POST"}
	rec.Extra[types.ExtraLoggerName] = "access"
	rec.Extra[types.ExtraInstanceDescriptor] = "pod-7"
	rec.Extra[types.ExtraLogType] = "access"
	rec.Extra[types.ExtraTraceSampled] = "false"

	frame, err := NewWireFormatter(testOptions()).Format(rec)
	require.NoError(t, err)
	doc := decodeFrame(t, frame)

	assert.Equal(t, float64(1), doc["IsRequestLog"])
	assert.Equal(t, map[string]interface{}{"status": float64(201), "method": "POST"}, doc["request"])
	assert.Equal(t, "access", doc["LoggerName"])
	assert.Equal(t, "pod-7", doc["instance_descriptor"])
	assert.Equal(t, "access", doc["logType"])
	assert.Equal(t, "worker-3", doc["Thread"])
	assert.Equal(t, "false", doc["sampled"])
}

func TestWireFormatterEmptyRequestIsNotRequestLog(t *testing.T) {
	rec := testRecord()
	rec.Extra[types.ExtraRequest] = map[string]interface{}{}

	frame, err := NewWireFormatter(testOptions()).Format(rec)
	require.NoError(t, err)
	assert.Equal(t, float64(0), decodeFrame(t, frame)["IsRequestLog"])
}

func TestWireFormatterInvalidUTF8(t *testing.T) {
	rec := testRecord()
	rec.Message = "bad \xff\xfe bytes"

	frame, err := NewWireFormatter(testOptions()).Format(rec)
	require.NoError(t, err)
	doc := decodeFrame(t, frame)
	assert.Contains(t, doc["message"], "bad ")
}
