package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func fieldMap(fields []zap.Field) map[string]zap.Field {
	m := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_OTELTracing(t *testing.T) {
	provider := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithSyncer(tracetest.NewInMemoryExporter()),
	)
	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	fields := fieldMap(ContextFields(ctx))
	require.Contains(t, fields, "trace_id")
	require.Contains(t, fields, "span_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"].String)
	assert.Contains(t, fields, "trace_sampled")
}

func TestContextFields_Identifiers(t *testing.T) {
	ctx := context.Background()
	ctx = WithAccountID(ctx, "user@example.com")
	ctx = WithSessionID(ctx, "sess_123")
	ctx = WithRequestID(ctx, "req-456")
	ctx = WithGenerationID(ctx, "6f1c9a3e-6d0b-4d8f-9a53-0c7c4d1f2b11")

	fields := fieldMap(ContextFields(ctx))
	assert.Len(t, fields, 4)
	assert.Equal(t, "user@example.com", fields["account.id"].String)
	assert.Equal(t, "sess_123", fields["session.id"].String)
	assert.Equal(t, "req-456", fields["request.id"].String)
	assert.Equal(t, "6f1c9a3e-6d0b-4d8f-9a53-0c7c4d1f2b11", fields["generation.id"].String)
}

func TestContextIDs_InvalidValuesDropped(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"newline injection", "abc\n{\"level\":\"error\"}"},
		{"spaces", "not an id"},
		{"too long", strings.Repeat("a", maxIDLen+1)},
		{"invalid utf8", "\xff\xfe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithAccountID(context.Background(), tt.id)
			ctx = WithSessionID(ctx, tt.id)
			assert.Empty(t, AccountIDFromContext(ctx))
			assert.Empty(t, SessionIDFromContext(ctx))
		})
	}
}

func TestWithAccountID_KeepsPreviousOnInvalid(t *testing.T) {
	ctx := WithAccountID(context.Background(), "acct_1")
	ctx = WithAccountID(ctx, "bad id")
	assert.Equal(t, "acct_1", AccountIDFromContext(ctx))
}
