// Package observability provides OpenTelemetry tracing for the gateway and
// bridge, plus an in-memory audit timeline for session-level inspection.
//
// Initialize tracing at application startup:
//
//	provider, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "yakserv",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1,
//	})
//	defer provider.Shutdown(ctx)
//
// Create spans manually:
//
//	ctx, span := provider.StartSpan(ctx, "handshake.round")
//	defer span.End()
//
// Record gateway-specific attributes with the helpers in attrs.go:
//
//	span.SetAttributes(observability.DataOperation(sessionID, subject, target, columnName)...)
package observability
