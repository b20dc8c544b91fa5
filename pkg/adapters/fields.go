package adapters

import (
	"strings"

	"github.com/wayneeseguin/logship/pkg/types"
)

// wellKnown are the extra keys the wire format has a dedicated field for.
var wellKnown = map[string]bool{
	types.ExtraTraceID:            true,
	types.ExtraSpanID:             true,
	types.ExtraParentID:           true,
	types.ExtraTraceSampled:       true,
	types.ExtraInstanceDescriptor: true,
	types.ExtraClientIP:           true,
	types.ExtraRequest:            true,
	types.ExtraLogType:            true,
	types.ExtraLoggerName:         true,
}

func addFields(extra, fields map[string]interface{}) {
	for k, v := range fields {
		addField(extra, k, v)
	}
}

// addField stores a well-known key at the top level of extra and anything
// else under extraData.
func addField(extra map[string]interface{}, key string, value interface{}) {
	if wellKnown[key] {
		extra[key] = value
		return
	}

	data := extraData(extra)
	if key == types.ExtraData {
		if m, ok := value.(map[string]interface{}); ok {
			for k, v := range m {
				data[k] = v
			}
			return
		}
	}
	data[key] = value
}

// extraData returns the extraData map of extra, creating it on first use.
// A non-map value already present is kept under its own key.
func extraData(extra map[string]interface{}) map[string]interface{} {
	switch existing := extra[types.ExtraData].(type) {
	case map[string]interface{}:
		return existing
	case nil:
	default:
		data := map[string]interface{}{types.ExtraData: existing}
		extra[types.ExtraData] = data
		return data
	}
	data := make(map[string]interface{})
	extra[types.ExtraData] = data
	return data
}

func cloneExtra(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(extra)+4)
	for k, v := range extra {
		if k == types.ExtraData {
			if m, ok := v.(map[string]interface{}); ok {
				data := make(map[string]interface{}, len(m))
				for dk, dv := range m {
					data[dk] = dv
				}
				out[k] = data
				continue
			}
		}
		out[k] = v
	}
	return out
}

// callerInfo splits a fully qualified Go function name such as
// "github.com/acme/billing/invoices.(*Service).Create" into its package path
// and function.
func callerInfo(function, file string, line int) types.CallerInfo {
	module, fn := "", function
	slash := strings.LastIndex(function, "/")
	if dot := strings.Index(function[slash+1:], "."); dot >= 0 {
		module = function[:slash+1+dot]
		fn = function[slash+1+dot+1:]
	}
	return types.CallerInfo{
		Function: fn,
		Module:   module,
		File:     file,
		Line:     line,
	}
}
