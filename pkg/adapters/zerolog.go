package adapters

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"github.com/wayneeseguin/logship/pkg/types"
)

// ZerologWriter is a zerolog.LevelWriter that parses each JSON event and
// writes it to a sink as a record. Standard zerolog fields (level, time,
// message, error, stack, caller) map onto the record; the rest become extra
// fields.
//
// Example:
//
//	logger := zerolog.New(adapters.NewZerologWriter(sink, "billing")).With().Timestamp().Logger()
//	logger.Info().Int("invoice_id", 42).Msg("invoice created")
type ZerologWriter struct {
	w          types.RecordWriter
	loggerName string
	parsers    fastjson.ParserPool
}

var _ zerolog.LevelWriter = (*ZerologWriter)(nil)

// NewZerologWriter creates a writer whose records are named loggerName.
func NewZerologWriter(w types.RecordWriter, loggerName string) *ZerologWriter {
	return &ZerologWriter{w: w, loggerName: loggerName}
}

// Write takes the level from the event's level field.
func (z *ZerologWriter) Write(p []byte) (int, error) {
	return z.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel converts one JSON event.
func (z *ZerologWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	parser := z.parsers.Get()
	defer z.parsers.Put(parser)

	v, err := parser.ParseBytes(p)
	if err != nil {
		return 0, errors.Wrap(err, "parse zerolog event")
	}
	obj, err := v.Object()
	if err != nil {
		return 0, errors.Wrap(err, "parse zerolog event")
	}

	rec := &types.LogRecord{LoggerName: z.loggerName}
	extra := make(map[string]interface{})

	obj.Visit(func(key []byte, value *fastjson.Value) {
		k := string(key)
		switch k {
		case zerolog.LevelFieldName:
			if level == zerolog.NoLevel {
				if parsed, perr := zerolog.ParseLevel(string(value.GetStringBytes())); perr == nil {
					level = parsed
				}
			}
		case zerolog.MessageFieldName:
			rec.Message = stringOf(value)
		case zerolog.TimestampFieldName:
			rec.Time = parseTime(value)
		case zerolog.ErrorFieldName:
			rec.Err = eventError(stringOf(value))
		case zerolog.ErrorStackFieldName:
			rec.Exception = stringOf(value)
		case zerolog.CallerFieldName:
			rec.Caller = parseCaller(stringOf(value))
		default:
			addField(extra, k, jsonValue(value))
		}
	})

	rec.Level = FromZerologLevel(level)
	if len(extra) > 0 {
		rec.Extra = extra
	}
	if err := z.w.WriteRecord(rec); err != nil {
		return 0, err
	}
	return len(p), nil
}

// eventError is error text parsed from an event. It carries no stack, so the
// formatter never reports this writer's frames as the error's origin.
type eventError string

func (e eventError) Error() string { return string(e) }

// FromZerologLevel maps a zerolog level onto the five record levels.
// Events without a level are INFO.
func FromZerologLevel(l zerolog.Level) types.Level {
	switch l {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return types.LevelDebug
	case zerolog.WarnLevel:
		return types.LevelWarning
	case zerolog.ErrorLevel:
		return types.LevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return types.LevelCritical
	default:
		return types.LevelInfo
	}
}

func stringOf(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return string(v.MarshalTo(nil))
}

// jsonValue converts v to a Go value that marshals back to the same JSON.
func jsonValue(v *fastjson.Value) interface{} {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeNumber:
		if i, err := v.Int64(); err == nil {
			return i
		}
		return v.GetFloat64()
	default:
		return json.RawMessage(v.MarshalTo(nil))
	}
}

func parseTime(v *fastjson.Value) time.Time {
	switch v.Type() {
	case fastjson.TypeString:
		s := string(v.GetStringBytes())
		if t, err := time.Parse(zerolog.TimeFieldFormat, s); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	case fastjson.TypeNumber:
		n := v.GetInt64()
		switch zerolog.TimeFieldFormat {
		case zerolog.TimeFormatUnixMs:
			return time.UnixMilli(n)
		case zerolog.TimeFormatUnixMicro:
			return time.UnixMicro(n)
		case zerolog.TimeFormatUnixNano:
			return time.Unix(0, n)
		default:
			return time.Unix(n, 0)
		}
	}
	// The formatter stamps records without a time
	return time.Time{}
}

// parseCaller splits zerolog's "file:line" caller.
func parseCaller(caller string) types.CallerInfo {
	i := strings.LastIndex(caller, ":")
	if i < 0 {
		return types.CallerInfo{File: caller}
	}
	line, err := strconv.Atoi(caller[i+1:])
	if err != nil {
		return types.CallerInfo{File: caller}
	}
	return types.CallerInfo{File: caller[:i], Line: line}
}
