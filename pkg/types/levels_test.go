package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelMapResolve(t *testing.T) {
	m := DefaultLevelMap()

	tests := []struct {
		level Level
		want  Severity
	}{
		{LevelCritical, SeverityCritical},
		{LevelError, SeverityError},
		{LevelWarning, SeverityWarning},
		{LevelInfo, SeverityInformational},
		{LevelDebug, SeverityDebug},
		{Level(0), SeverityInformational},
		{Level(25), SeverityInformational},
		{Level(-7), SeverityInformational},
		{Level(99), SeverityInformational},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, m.Resolve(tt.level))
		})
	}
}

func TestLevelMapUnknownFollowsInfoOverride(t *testing.T) {
	m := DefaultLevelMap()
	m.Info = SeverityWarning

	assert.Equal(t, SeverityWarning, m.Resolve(Level(35)))
}

func TestErrorAsCriticalLevelMap(t *testing.T) {
	m := ErrorAsCriticalLevelMap()

	assert.Equal(t, SeverityCritical, m.Resolve(LevelError))
	assert.Equal(t, SeverityCritical, m.Resolve(LevelCritical))
	assert.Equal(t, SeverityWarning, m.Resolve(LevelWarning))
	require.NoError(t, m.Validate())
}

func TestLevelMapValidate(t *testing.T) {
	m := DefaultLevelMap()
	require.NoError(t, m.Validate())

	m.Debug = Severity{Rank: 9, Name: "Trace"}
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEBUG")
}

func TestLevelMapPresetDecode(t *testing.T) {
	tests := []struct {
		in      string
		want    LevelMapPreset
		wantErr bool
	}{
		{"", LevelMapPresetDefault, false},
		{"default", LevelMapPresetDefault, false},
		{" Error-As-Critical ", LevelMapPresetErrorAsCritical, false},
		{"loud", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var p LevelMapPreset
			err := p.Decode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}

	assert.Equal(t, ErrorAsCriticalLevelMap(), LevelMapPresetErrorAsCritical.LevelMap())
	assert.Equal(t, DefaultLevelMap(), LevelMapPreset("").LevelMap())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarning, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelCritical, ParseLevel("fatal"))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestLogRecordGet(t *testing.T) {
	var nilRec *LogRecord
	assert.Nil(t, nilRec.Get(ExtraTraceID))

	rec := &LogRecord{}
	assert.Nil(t, rec.Get(ExtraTraceID))

	rec.Extra = map[string]interface{}{ExtraTraceID: "abc"}
	assert.Equal(t, "abc", rec.Get(ExtraTraceID))
}

func TestOverflowPolicyDecode(t *testing.T) {
	tests := []struct {
		in      string
		want    OverflowPolicy
		wantErr bool
	}{
		{"", DropOldest, false},
		{"drop-oldest", DropOldest, false},
		{"DROP_NEWEST", DropNewest, false},
		{"block", Block, false},
		{"spill", DropOldest, true},
	}
	for _, tt := range tests {
		var p OverflowPolicy
		err := p.Decode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, p, tt.in)
		assert.NotEmpty(t, p.String())
	}
}

func TestLevelNormalize(t *testing.T) {
	assert.Equal(t, LevelError, LevelError.Normalize())
	assert.Equal(t, LevelInfo, Level(0).Normalize())
	assert.Equal(t, LevelInfo, Level(45).Normalize())
	assert.True(t, LevelDebug.Known())
	assert.False(t, Level(11).Known())
}
