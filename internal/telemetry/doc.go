// Package telemetry provides OpenTelemetry instrumentation for launchplan.
//
// Tracing and metrics are exported over OTLP (gRPC or HTTP) to a collector.
// Export is off by default; when off, Tracer and Meter fall back to the
// global no-op providers so instrumented code needs no special casing.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry and pass its providers to the component under
// test:
//
//	tt := telemetry.NewTestTelemetry()
//	gen := sections.New(client, sections.WithTracerProvider(tt.TracerProvider()))
//	tt.AssertSpanExists(t, "sections.overview")
package telemetry
