package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartConnectSpan starts a span covering one connection handshake: dial,
// CONNECT/CONNACK, and the subscribe round trip when the worker consumes.
func StartConnectSpan(ctx context.Context, tracer trace.Tracer, addr, clientID, topic string, qos byte) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "mqtt connect "+addr,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("messaging.system", "mqtt"),
		attribute.String("network.peer.address", addr),
		attribute.String("messaging.client.id", clientID),
		attribute.String("messaging.destination.name", topic),
		attribute.Int("messaging.mqtt.qos", int(qos)),
	)
	return ctx, span
}

// StartPublishSpan starts a span for a single outbound PUBLISH.
func StartPublishSpan(ctx context.Context, tracer trace.Tracer, addr, topic string, qos byte) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "mqtt publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	span.SetAttributes(
		attribute.String("messaging.system", "mqtt"),
		attribute.String("messaging.operation.name", "publish"),
		attribute.String("network.peer.address", addr),
		attribute.String("messaging.destination.name", topic),
		attribute.Int("messaging.mqtt.qos", int(qos)),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
