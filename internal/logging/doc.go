// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - A custom Trace level (-2, below Debug)
//   - Dual output (stdout and the OpenTelemetry log bridge)
//   - Context field injection (trace_id, account, session, request, generation)
//   - Secret redaction by field name and value pattern
//   - Sampling below error level
//
// # Usage
//
//	cfg, err := logging.FromSettings(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithAccountID(ctx, "acct_42")
//	ctx = logging.WithGenerationID(ctx, gen.ID)
//	logger.Info(ctx, "plan assembled", zap.Int("sections", n))
//
// Identifiers that arrive from clients are validated when they are placed
// in a context; invalid ones are dropped, never logged.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	svc := NewService(tl.Logger)
//	tl.AssertLogged(t, zapcore.WarnLevel, "section failed")
package logging
