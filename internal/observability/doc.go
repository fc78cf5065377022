// Package observability provides logging and tracing functionality for the
// credential and vendor-key services.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("credential issued",
//	    observability.String("tenant_id", "acme"),
//	    observability.String("credential_id", id),
//	)
//
// Raw credentials and vendor secrets must never be passed to a logger; log
// identifiers or short hash prefixes instead.
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP export:
//
//	tracer, err := observability.NewTracer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
