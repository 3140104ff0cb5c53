// Package observability provides gateway-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gateway-specific semantic convention attributes.
var (
	AttrSessionID  = attribute.Key("yak.session.id")
	AttrSubject    = attribute.Key("yak.subject")
	AttrTarget     = attribute.Key("yak.target")
	AttrColumnName = attribute.Key("yak.column_name")

	AttrHandshakeRound = attribute.Key("yak.handshake.round")

	AttrPolicyDigest = attribute.Key("yak.policy.digest")
)

// HandshakeOperation creates attributes for a handshake round.
func HandshakeOperation(sessionID string, round int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSessionID.String(sessionID),
		AttrHandshakeRound.Int(round),
	}
}

// DataOperation creates attributes for a DoGet/DoPut call.
func DataOperation(sessionID, subject, target, columnName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSessionID.String(sessionID),
		AttrSubject.String(subject),
		AttrTarget.String(target),
		AttrColumnName.String(columnName),
	}
}

// PolicyOperation creates attributes carrying a policy document's canonical
// digest, for audit correlation without logging the document itself.
func PolicyOperation(digest string) []attribute.KeyValue {
	return []attribute.KeyValue{AttrPolicyDigest.String(digest)}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err (if any) against the current span.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
