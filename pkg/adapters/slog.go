package adapters

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"github.com/wayneeseguin/logship/pkg/types"
)

// LevelCritical is the slog level that maps to CRITICAL.
const LevelCritical = slog.LevelError + 4

// SlogOptions configures a SlogHandler.
type SlogOptions struct {
	// Level is the minimum level handled. Defaults to slog.LevelInfo.
	Level slog.Leveler
	// LoggerName is the LoggerName of every record. An attribute named
	// "logger_name" overrides it per record.
	LoggerName string
}

// SlogHandler is a slog.Handler that writes records to a sink.
// Attributes with well-known names ("trace_id", "logType", "clientip", ...)
// fill their wire fields; all others are collected under extraData. An error
// attribute named "err" or "error" becomes the record's Err, so a
// github.com/pkg/errors stack trace ends up in StackTrace.
type SlogHandler struct {
	w      types.RecordWriter
	opts   SlogOptions
	attrs  map[string]interface{}
	err    error
	groups []string
}

var _ slog.Handler = (*SlogHandler)(nil)

// NewSlogHandler creates a handler writing to w.
//
// Example:
//
//	sink, _ := logship.New(cfg)
//	logger := slog.New(adapters.NewSlogHandler(sink, &adapters.SlogOptions{LoggerName: "billing"}))
//	logger.Info("invoice created", "invoice_id", 42)
func NewSlogHandler(w types.RecordWriter, opts *SlogOptions) *SlogHandler {
	h := &SlogHandler{w: w}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

// Enabled reports whether level is at or above the handler's minimum.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle converts r and writes it.
func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	extra := ContextExtra(ctx)
	if extra == nil {
		extra = make(map[string]interface{})
	}
	addFields(extra, h.attrs)

	rec := &types.LogRecord{
		Time:       r.Time,
		Level:      FromSlogLevel(r.Level),
		LoggerName: h.opts.LoggerName,
		Message:    r.Message,
		Err:        h.err,
		Extra:      extra,
	}
	if r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		rec.Caller = callerInfo(f.Function, f.File, f.Line)
	}

	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		if err := addAttr(extra, prefix, a); err != nil && rec.Err == nil {
			rec.Err = err
		}
		return true
	})

	if len(extra) == 0 {
		rec.Extra = nil
	}
	return h.w.WriteRecord(rec)
}

// WithAttrs returns a handler whose records carry attrs.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	prefix := h.prefix()
	for _, a := range attrs {
		if err := addAttr(h2.attrs, prefix, a); err != nil && h2.err == nil {
			h2.err = err
		}
	}
	return h2
}

// WithGroup returns a handler that qualifies later attribute keys with name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *SlogHandler) clone() *SlogHandler {
	h2 := *h
	h2.attrs = cloneExtra(h.attrs)
	h2.groups = append([]string(nil), h.groups...)
	return &h2
}

func (h *SlogHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// addAttr stores a into extra and returns the error it carries, if it is a
// top-level "err" or "error" attribute.
func addAttr(extra map[string]interface{}, prefix string, a slog.Attr) error {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return nil
	}

	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		var found error
		for _, ga := range a.Value.Group() {
			if err := addAttr(extra, groupPrefix, ga); err != nil && found == nil {
				found = err
			}
		}
		return found
	}

	key := prefix + a.Key
	value := a.Value.Any()
	switch a.Value.Kind() {
	case slog.KindDuration:
		value = a.Value.Duration().String()
	case slog.KindTime:
		value = a.Value.Time()
	}

	if err, ok := value.(error); ok {
		addField(extra, key, err.Error())
		if prefix == "" && (key == "err" || key == "error") {
			return err
		}
		return nil
	}
	addField(extra, key, value)
	return nil
}

// FromSlogLevel maps a slog level onto the five record levels.
func FromSlogLevel(l slog.Level) types.Level {
	switch {
	case l < slog.LevelInfo:
		return types.LevelDebug
	case l < slog.LevelWarn:
		return types.LevelInfo
	case l < slog.LevelError:
		return types.LevelWarning
	case l < LevelCritical:
		return types.LevelError
	default:
		return types.LevelCritical
	}
}
