// internal/logging/context.go
package logging

import (
	"context"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := AccountIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("account.id", id))
	}
	if id := SessionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("session.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := GenerationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("generation.id", id))
	}

	return fields
}

type accountCtxKey struct{}
type sessionCtxKey struct{}
type requestCtxKey struct{}
type generationCtxKey struct{}

const maxIDLen = 128

// Identifiers reach the context from request headers and token claims, so
// anything that is not a plain identifier is dropped rather than logged.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@:-]+$`)

func validID(id string) bool {
	return id != "" &&
		len(id) <= maxIDLen &&
		utf8.ValidString(id) &&
		idPattern.MatchString(id)
}

func withID(ctx context.Context, key any, id string) context.Context {
	if !validID(id) {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFromContext(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// WithAccountID adds the caller's account ID to context. Invalid IDs are
// ignored.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return withID(ctx, accountCtxKey{}, accountID)
}

// AccountIDFromContext extracts the account ID from context.
func AccountIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, accountCtxKey{})
}

// WithSessionID adds session ID to context. Invalid IDs are ignored.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withID(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext extracts session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, sessionCtxKey{})
}

// WithRequestID adds request ID to context. Invalid IDs are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withID(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, requestCtxKey{})
}

// WithGenerationID adds a plan generation ID to context. Invalid IDs are
// ignored.
func WithGenerationID(ctx context.Context, generationID string) context.Context {
	return withID(ctx, generationCtxKey{}, generationID)
}

// GenerationIDFromContext extracts the generation ID from context.
func GenerationIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, generationCtxKey{})
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
