package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/launchplan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func metricAttrs(tier string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("tier", tier))
}

func TestNew_DisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, ""},
		{"local insecure ok", func(c *Config) { c.Enabled = true }, ""},
		{"ipv6 loopback ok", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, ""},
		{"remote insecure rejected", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, "insecure connections"},
		{"remote tls ok", func(c *Config) { c.Enabled = true; c.Insecure = false; c.Endpoint = "otel.example.com:4317" }, ""},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol"},
		{"bad rate", func(c *Config) { c.Enabled = true; c.Sampling.Rate = 1.5 }, "sampling rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:        true,
		Endpoint:       "http://localhost:4318",
		Protocol:       "http/protobuf",
		Insecure:       true,
		SamplingRate:   0.25,
		MetricsEnabled: false,
		ExportInterval: config.Duration(time.Minute),
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "launchplan", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, 0.25, cfg.Sampling.Rate)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, time.Minute, cfg.Metrics.ExportInterval.Duration())
	assert.NoError(t, cfg.Validate())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		tel.SetLoggerProvider(nil)
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})

	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_Shutdown(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestTelemetry_SetDegraded(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	tel.setDegraded("exporter failed: %s", "boom")
	health := tel.Health()
	assert.True(t, health.Degraded)
	assert.Equal(t, []string{"exporter failed: boom"}, health.Problems)
}

func TestNewResource(t *testing.T) {
	res := newResource(NewDefaultConfig())

	v, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "launchplan", v.AsString())
}

func TestTestTelemetry_SpanRecording(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("test").Start(context.Background(), "sections.overview")
	span.SetAttributes(attribute.String("section.kind", "overview"), attribute.Int64("attempt", 1))
	span.End()

	tt.AssertSpanExists(t, "sections.overview")
	tt.AssertSpanAttribute(t, "sections.overview", "section.kind", "overview")
	tt.AssertSpanAttribute(t, "sections.overview", "attempt", int64(1))
	assert.Nil(t, tt.SpanByName("missing"))
}

func TestTestTelemetry_CounterValue(t *testing.T) {
	tt := NewTestTelemetry()

	counter, err := tt.Meter("test").Int64Counter("quota.denied")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 1, metricAttrs("basic"))
	counter.Add(ctx, 2, metricAttrs("pro"))

	assert.Equal(t, int64(3), tt.CounterValue(t, "quota.denied"))
	assert.Equal(t, int64(2), tt.CounterValue(t, "quota.denied", attribute.String("tier", "pro")))
	assert.Equal(t, int64(0), tt.CounterValue(t, "never.recorded"))
}
