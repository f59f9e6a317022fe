package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

type contextKey string

// Keys double as the log field names emitted by ContextFields.
const (
	TraceIDKey   contextKey = "trace_id"
	SpanIDKey    contextKey = "span_id"
	RequestIDKey contextKey = "request_id"
	ToolKey      contextKey = "tool"
	ModelKey     contextKey = "model"
)

// fieldKeys is the order ContextFields emits values in.
//
//nolint:gochecknoglobals // Fixed table
var fieldKeys = []contextKey{TraceIDKey, SpanIDKey, RequestIDKey, ToolKey, ModelKey}

// W3C trace-context sizes.
const (
	traceIDBytes = 16
	spanIDBytes  = 8
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

// WithTraceID tags ctx with a trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, TraceIDKey, traceID)
}

// WithSpanID tags ctx with a span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return withValue(ctx, SpanIDKey, spanID)
}

// WithRequestID tags ctx with a request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, RequestIDKey, requestID)
}

// WithTool tags ctx with the MCP tool being served.
func WithTool(ctx context.Context, tool string) context.Context {
	return withValue(ctx, ToolKey, tool)
}

// WithModel tags ctx with the completion model in use.
func WithModel(ctx context.Context, model string) context.Context {
	return withValue(ctx, ModelKey, model)
}

// Getters return "" when ctx carries no value for the key.

func GetTraceID(ctx context.Context) string   { return stringValue(ctx, TraceIDKey) }
func GetSpanID(ctx context.Context) string    { return stringValue(ctx, SpanIDKey) }
func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }
func GetTool(ctx context.Context) string      { return stringValue(ctx, ToolKey) }
func GetModel(ctx context.Context) string     { return stringValue(ctx, ModelKey) }

func randomHex(n int) (string, bool) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", false
	}
	return hex.EncodeToString(buf), true
}

// GenerateTraceID returns 32 hex characters.
func GenerateTraceID() string {
	if id, ok := randomHex(traceIDBytes); ok {
		return id
	}
	return uuid.New().String()
}

// GenerateSpanID returns 16 hex characters.
func GenerateSpanID() string {
	if id, ok := randomHex(spanIDBytes); ok {
		return id
	}
	return uuid.New().String()[:16]
}

// GenerateRequestID returns a random UUID.
func GenerateRequestID() string {
	return uuid.New().String()
}
