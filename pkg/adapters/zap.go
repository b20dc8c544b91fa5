package adapters

import (
	"go.uber.org/zap/zapcore"

	"github.com/wayneeseguin/logship/pkg/types"
)

// ZapCore is a zapcore.Core that writes entries to a sink. Combine it with
// other cores through zapcore.NewTee to ship alongside local output.
//
// Example:
//
//	core := adapters.NewZapCore(sink, zapcore.InfoLevel)
//	logger := zap.New(core, zap.AddCaller())
type ZapCore struct {
	zapcore.LevelEnabler
	w      types.RecordWriter
	fields []zapcore.Field
}

var _ zapcore.Core = (*ZapCore)(nil)

// NewZapCore creates a core writing entries enabled by enab to w.
func NewZapCore(w types.RecordWriter, enab zapcore.LevelEnabler) *ZapCore {
	return &ZapCore{LevelEnabler: enab, w: w}
}

// With returns a core that adds fields to every entry.
func (c *ZapCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

// Check adds the core to ce when ent's level is enabled.
func (c *ZapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write converts ent and fields into a record and writes it.
func (c *ZapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	var recErr error
	for _, group := range [][]zapcore.Field{c.fields, fields} {
		for _, f := range group {
			if f.Type == zapcore.ErrorType && recErr == nil {
				if err, ok := f.Interface.(error); ok {
					recErr = err
					enc.AddString(f.Key, err.Error())
					continue
				}
			}
			f.AddTo(enc)
		}
	}

	extra := make(map[string]interface{}, len(enc.Fields))
	addFields(extra, enc.Fields)
	if len(extra) == 0 {
		extra = nil
	}

	rec := &types.LogRecord{
		Time:       ent.Time,
		Level:      FromZapLevel(ent.Level),
		LoggerName: ent.LoggerName,
		Message:    ent.Message,
		Exception:  ent.Stack,
		Err:        recErr,
		Extra:      extra,
	}
	if ent.Caller.Defined {
		rec.Caller = callerInfo(ent.Caller.Function, ent.Caller.File, ent.Caller.Line)
	}
	return c.w.WriteRecord(rec)
}

// Sync is a no-op; Sink.Shutdown flushes buffered records.
func (c *ZapCore) Sync() error {
	return nil
}

// FromZapLevel maps a zap level onto the five record levels.
func FromZapLevel(l zapcore.Level) types.Level {
	switch l {
	case zapcore.DebugLevel:
		return types.LevelDebug
	case zapcore.InfoLevel:
		return types.LevelInfo
	case zapcore.WarnLevel:
		return types.LevelWarning
	case zapcore.ErrorLevel:
		return types.LevelError
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return types.LevelCritical
	default:
		if l < zapcore.DebugLevel {
			return types.LevelDebug
		}
		return types.LevelInfo
	}
}
