package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wayneeseguin/logship/pkg/types"
)

// ContextKey is a type for context value keys.
// Using a custom type prevents collisions with other packages.
type ContextKey string

// Context keys read by ContextExtra.
const (
	ContextKeyRequest  ContextKey = "logship_request"   // RequestInfo for access logs
	ContextKeyFields   ContextKey = "logship_fields"    // map[string]interface{} of extra fields
	ContextKeyParentID ContextKey = "logship_parent_id" // Parent span ID
	ContextKeyClientIP ContextKey = "logship_client_ip" // Client IP address
)

// RequestInfo describes a served request. A record carrying one is an
// access log: the wire record has IsRequestLog set and the info under "request".
type RequestInfo struct {
	Status        int    `json:"status"`
	Method        string `json:"method"`
	URI           string `json:"uri"`
	Arguments     string `json:"arguments"`
	RequestTimeMS int64  `json:"request_time_ms"`
	Body          string `json:"body"`
	RealIP        string `json:"real_ip"`
	UserAgent     string `json:"user_agent"`
}

// WithRequest returns a context carrying info. Records logged with this
// context become access logs.
//
// Example:
//
//	ctx = adapters.WithRequest(ctx, adapters.RequestInfo{
//		Status: 200,
//		Method: "GET",
//		URI:    "/invoices?page=2",
//	})
//	logger.InfoContext(ctx, "served")
func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, ContextKeyRequest, info)
}

// RequestFromContext returns the RequestInfo stored by WithRequest.
func RequestFromContext(ctx context.Context) (RequestInfo, bool) {
	if ctx == nil {
		return RequestInfo{}, false
	}
	info, ok := ctx.Value(ContextKeyRequest).(RequestInfo)
	return info, ok
}

// WithFields returns a context whose records carry fields as extra values.
// Well-known keys such as "logType" or "clientip" map to their wire fields;
// any other key is placed under "extraData". Fields accumulate across calls.
//
// Parameters:
//   - ctx: The parent context
//   - fields: Fields to add to the context
//
// Returns:
//   - context.Context: A new context with the fields
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	merged := make(map[string]interface{}, len(fields))
	if prev, ok := ctx.Value(ContextKeyFields).(map[string]interface{}); ok {
		for k, v := range prev {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, ContextKeyFields, merged)
}

// WithParentSpanID records the parent span for the wire record's parentId.
// OpenTelemetry span contexts do not expose their parent, so it is set explicitly.
func WithParentSpanID(ctx context.Context, parentID string) context.Context {
	return context.WithValue(ctx, ContextKeyParentID, parentID)
}

// WithClientIP records the client address for the wire record's clientip field.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// ContextExtra collects the extra values a record logged with ctx should carry:
// trace and span IDs of the active OpenTelemetry span, the request of an
// access log, and fields added with WithFields.
//
// Parameters:
//   - ctx: The context to extract fields from
//
// Returns:
//   - map[string]interface{}: Extra values keyed as types.LogRecord.Extra expects, or nil
func ContextExtra(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	extra := make(map[string]interface{})

	if fields, ok := ctx.Value(ContextKeyFields).(map[string]interface{}); ok {
		addFields(extra, fields)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		extra[types.ExtraTraceID] = sc.TraceID().String()
		extra[types.ExtraSpanID] = sc.SpanID().String()
		extra[types.ExtraTraceSampled] = sc.IsSampled()
	}
	if parent, ok := ctx.Value(ContextKeyParentID).(string); ok && parent != "" {
		extra[types.ExtraParentID] = parent
	}
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok && ip != "" {
		extra[types.ExtraClientIP] = ip
	}
	if info, ok := RequestFromContext(ctx); ok {
		extra[types.ExtraRequest] = info
	}

	if len(extra) == 0 {
		return nil
	}
	return extra
}

// RequestLevel maps an HTTP status to the level of its access log:
// below 400 is INFO, below 500 is WARNING, anything else is ERROR.
func RequestLevel(status int) types.Level {
	switch {
	case status < http.StatusBadRequest:
		return types.LevelInfo
	case status < http.StatusInternalServerError:
		return types.LevelWarning
	default:
		return types.LevelError
	}
}

// AccessMessage renders the tab-separated access log line.
func (r RequestInfo) AccessMessage() string {
	return fmt.Sprintf("ACCESS: %d\t%s\t%s\t%s\t%s\t%dms",
		r.Status, r.Method, r.URI, r.Arguments, r.Body, r.RequestTimeMS)
}

// AccessRecord builds the access log record for info, leveled by its status.
func AccessRecord(ctx context.Context, loggerName string, info RequestInfo) *types.LogRecord {
	extra := ContextExtra(ctx)
	if extra == nil {
		extra = make(map[string]interface{})
	}
	extra[types.ExtraRequest] = info

	return &types.LogRecord{
		Time:       time.Now(),
		Level:      RequestLevel(info.Status),
		LoggerName: loggerName,
		Message:    info.AccessMessage(),
		Extra:      extra,
	}
}
