package types

import (
	"fmt"
	"strings"
)

// Level is a numeric record severity. The values line up with the classic
// logging levels so records coming from other ecosystems keep their numbers.
type Level int

const (
	LevelDebug    Level = 10
	LevelInfo     Level = 20
	LevelWarning  Level = 30
	LevelError    Level = 40
	LevelCritical Level = 50
)

// String returns the level name, or its number for levels outside the known set.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Known reports whether l is one of the five named levels.
func (l Level) Known() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical:
		return true
	}
	return false
}

// Normalize returns l for named levels and LevelInfo for any other value,
// matching how LevelMap.Resolve treats unknown levels.
func (l Level) Normalize() Level {
	if l.Known() {
		return l
	}
	return LevelInfo
}

// Severity is the rank/name pair written to the wire for a level.
type Severity struct {
	Rank int
	Name string
}

// The only severities a collector accepts.
var (
	SeverityCritical      = Severity{Rank: 2, Name: "Critical"}
	SeverityError         = Severity{Rank: 3, Name: "Error"}
	SeverityWarning       = Severity{Rank: 4, Name: "Warning"}
	SeverityInformational = Severity{Rank: 6, Name: "Informational"}
	SeverityDebug         = Severity{Rank: 7, Name: "Debug"}
)

var allowedSeverities = []Severity{
	SeverityCritical,
	SeverityError,
	SeverityWarning,
	SeverityInformational,
	SeverityDebug,
}

// LevelMap maps each level kind to the severity written on the wire.
type LevelMap struct {
	Critical Severity
	Error    Severity
	Warning  Severity
	Info     Severity
	Debug    Severity
}

// DefaultLevelMap maps every level to its natural severity.
func DefaultLevelMap() LevelMap {
	return LevelMap{
		Critical: SeverityCritical,
		Error:    SeverityError,
		Warning:  SeverityWarning,
		Info:     SeverityInformational,
		Debug:    SeverityDebug,
	}
}

// ErrorAsCriticalLevelMap reports errors as critical so they page like criticals do.
func ErrorAsCriticalLevelMap() LevelMap {
	m := DefaultLevelMap()
	m.Error = SeverityCritical
	return m
}

// Resolve returns the severity for level. Levels outside the known set
// resolve to the Info entry.
func (m LevelMap) Resolve(level Level) Severity {
	switch level {
	case LevelCritical:
		return m.Critical
	case LevelError:
		return m.Error
	case LevelWarning:
		return m.Warning
	case LevelDebug:
		return m.Debug
	case LevelInfo:
		return m.Info
	default:
		return m.Info
	}
}

// Validate checks that every entry is one of the allowed severities.
func (m LevelMap) Validate() error {
	entries := []struct {
		level Level
		sev   Severity
	}{
		{LevelCritical, m.Critical},
		{LevelError, m.Error},
		{LevelWarning, m.Warning},
		{LevelInfo, m.Info},
		{LevelDebug, m.Debug},
	}
	for _, e := range entries {
		if !isAllowedSeverity(e.sev) {
			return fmt.Errorf("%s: %v is not an allowed severity", e.level, e.sev)
		}
	}
	return nil
}

func isAllowedSeverity(s Severity) bool {
	for _, a := range allowedSeverities {
		if a == s {
			return true
		}
	}
	return false
}

// LevelMapPreset names a built-in LevelMap so it can be chosen from configuration.
type LevelMapPreset string

const (
	LevelMapPresetDefault         LevelMapPreset = "default"
	LevelMapPresetErrorAsCritical LevelMapPreset = "error-as-critical"
)

// Decode implements envconfig.Decoder.
func (p *LevelMapPreset) Decode(value string) error {
	switch v := LevelMapPreset(strings.ToLower(strings.TrimSpace(value))); v {
	case "", LevelMapPresetDefault:
		*p = LevelMapPresetDefault
	case LevelMapPresetErrorAsCritical:
		*p = v
	default:
		return fmt.Errorf("unknown level map preset %q", value)
	}
	return nil
}

// LevelMap returns the map the preset names.
func (p LevelMapPreset) LevelMap() LevelMap {
	if p == LevelMapPresetErrorAsCritical {
		return ErrorAsCriticalLevelMap()
	}
	return DefaultLevelMap()
}

// ParseLevel parses a level name such as "info" or "warn". Unknown names yield LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	case "critical", "fatal", "panic":
		return LevelCritical
	default:
		return LevelInfo
	}
}
