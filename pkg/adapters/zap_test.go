package adapters

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wayneeseguin/logship/pkg/types"
)

func TestZapCoreRecord(t *testing.T) {
	rec := &recorder{}
	logger := zap.New(NewZapCore(rec, zapcore.InfoLevel), zap.AddCaller()).Named("billing")

	logger.Debug("hidden")
	assert.Empty(t, rec.Records())

	logger.Info("invoice created", zap.Int("invoice_id", 42), zap.String(types.ExtraLogType, "audit"))

	got := rec.Last(t)
	assert.Equal(t, types.LevelInfo, got.Level)
	assert.Equal(t, "billing", got.LoggerName)
	assert.Equal(t, "invoice created", got.Message)
	assert.False(t, got.Time.IsZero())
	assert.Equal(t, "audit", got.Extra[types.ExtraLogType])
	assert.Equal(t, map[string]interface{}{"invoice_id": int64(42)}, got.Extra[types.ExtraData])

	assert.Equal(t, "github.com/wayneeseguin/logship/pkg/adapters", got.Caller.Module)
	assert.Equal(t, "TestZapCoreRecord", got.Caller.Function)
	assert.Contains(t, got.Caller.File, "zap_test.go")
}

func TestZapCoreWithAndError(t *testing.T) {
	rec := &recorder{}
	logger := zap.New(NewZapCore(rec, zapcore.DebugLevel)).With(zap.String("tenant", "acme"))

	err := errors.New("card declined")
	logger.Error("charge failed", zap.Error(err), zap.Bool("retry", false))

	got := rec.Last(t)
	assert.Equal(t, types.LevelError, got.Level)
	assert.Equal(t, err, got.Err)
	assert.Equal(t, map[string]interface{}{
		"tenant": "acme",
		"error":  "card declined",
		"retry":  false,
	}, got.Extra[types.ExtraData])

	logger.Warn("no fields")
	assert.Equal(t, types.LevelWarning, rec.Last(t).Level)
}

func TestZapCoreStacktrace(t *testing.T) {
	rec := &recorder{}
	logger := zap.New(NewZapCore(rec, zapcore.DebugLevel), zap.AddStacktrace(zapcore.ErrorLevel))

	logger.Error("boom")
	assert.Contains(t, rec.Last(t).Exception, "TestZapCoreStacktrace")

	logger.Info("calm")
	assert.Empty(t, rec.Last(t).Exception)
	assert.Nil(t, rec.Last(t).Extra)
}

func TestZapCoreTee(t *testing.T) {
	rec := &recorder{}
	core := zapcore.NewTee(zapcore.NewNopCore(), NewZapCore(rec, zapcore.WarnLevel))
	logger := zap.New(core)

	logger.Info("skipped")
	logger.Warn("kept")

	records := rec.Records()
	if assert.Len(t, records, 1) {
		assert.Equal(t, "kept", records[0].Message)
	}
	assert.NoError(t, logger.Sync())
}

func TestFromZapLevel(t *testing.T) {
	tests := []struct {
		in   zapcore.Level
		want types.Level
	}{
		{zapcore.DebugLevel, types.LevelDebug},
		{zapcore.InfoLevel, types.LevelInfo},
		{zapcore.WarnLevel, types.LevelWarning},
		{zapcore.ErrorLevel, types.LevelError},
		{zapcore.DPanicLevel, types.LevelCritical},
		{zapcore.PanicLevel, types.LevelCritical},
		{zapcore.FatalLevel, types.LevelCritical},
		{zapcore.DebugLevel - 1, types.LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromZapLevel(tt.in), "level %v", tt.in)
	}
}
