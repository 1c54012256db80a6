package wsadapters

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WebsocketConnectionAdapterInstrumentationDecorator opens one client span per adapter call and
// forwards the call to the wrapped adapter.
type WebsocketConnectionAdapterInstrumentationDecorator struct {
	decorated WebsocketConnectionAdapterInterface
	tracer    trace.Tracer
}

// # Description
//
// Wrap decorated so its calls are traced with tracers from tracerProvider. The global tracer
// provider is used when tracerProvider is nil.
func NewWebsocketConnectionAdapterInstrumentationDecorator(
	decorated WebsocketConnectionAdapterInterface,
	tracerProvider trace.TracerProvider,
) *WebsocketConnectionAdapterInstrumentationDecorator {
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &WebsocketConnectionAdapterInstrumentationDecorator{
		decorated: decorated,
		tracer:    tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}
}

func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	ctx, span := decorator.start(ctx, spanDial, attribute.String(attrUrl, target.String()))
	defer span.End()
	resp, err := decorator.decorated.Dial(ctx, target)
	if resp != nil {
		span.SetAttributes(attribute.Int(attrResponseStatus, resp.StatusCode))
	}
	return resp, recordError(span, err)
}

func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Close(ctx context.Context, code StatusCode, reason string) error {
	ctx, span := decorator.start(ctx, spanClose,
		attribute.Int(attrCloseCode, int(code)),
		attribute.String(attrCloseReason, reason))
	defer span.End()
	return recordError(span, decorator.decorated.Close(ctx, code, reason))
}

func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Ping(ctx context.Context) error {
	ctx, span := decorator.start(ctx, spanPing)
	defer span.End()
	return recordError(span, decorator.decorated.Ping(ctx))
}

// Read adds a received event to its span once a message is available.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Read(ctx context.Context) (MessageType, []byte, error) {
	ctx, span := decorator.start(ctx, spanRead)
	defer span.End()
	msgType, msg, err := decorator.decorated.Read(ctx)
	if err == nil {
		span.AddEvent(eventReceived, trace.WithAttributes(messageAttributes(msgType, msg)...))
	}
	return msgType, msg, recordError(span, err)
}

func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Write(ctx context.Context, msgType MessageType, msg []byte) error {
	ctx, span := decorator.start(ctx, spanWrite, messageAttributes(msgType, msg)...)
	defer span.End()
	return recordError(span, decorator.decorated.Write(ctx, msgType, msg))
}

func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) GetUnderlyingWebsocketConnection() any {
	return decorator.decorated.GetUnderlyingWebsocketConnection()
}

// Unwrap returns the decorated adapter.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Unwrap() WebsocketConnectionAdapterInterface {
	return decorator.decorated
}

func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return decorator.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func messageAttributes(msgType MessageType, msg []byte) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(attrMessageByteSize, len(msg)),
		attribute.Int(attrMessageType, int(msgType)),
	}
}

// recordError marks span as failed when err is not nil and returns err unchanged.
func recordError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
	}
	return err
}
