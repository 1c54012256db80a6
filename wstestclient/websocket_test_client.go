// Package wstestclient contains a WebSocket client meant to be used as a probe by test
// harnesses: it connects to a ws:// or wss:// endpoint, sends text messages and exposes the
// last text message received from the server.
//
// All protocol work (TLS, HTTP upgrade, framing, permessage-deflate) is delegated to one of the
// supported websocket libraries through a connection adapter.
package wstestclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	coder "github.com/coder/websocket"
	"github.com/gbdevw/gowstestclient/wstestclient/wsadapters"
	wsadaptercoder "github.com/gbdevw/gowstestclient/wstestclient/wsadapters/coder"
	wsadaptergorilla "github.com/gbdevw/gowstestclient/wstestclient/wsadapters/gorilla"
	wsadapternhooyr "github.com/gbdevw/gowstestclient/wstestclient/wsadapters/nhooyr"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	nhooyr "nhooyr.io/websocket"
)

// Reason sent in the close message when the client shuts down.
const shutdownReason = "client shutdown"

// WebSocket client used by tests to open one connection, send text messages and observe the
// last text message sent by the server.
//
// A client manages a single connection: once shut down, it cannot be reused.
type WebsocketTestClient struct {
	// Target URI, parsed when Handshake is called.
	rawURL string
	// Configuration options used by the client.
	opts *WebsocketTestClientConfigurationOptions
	// Logger used by the client.
	logger *zap.Logger
	// Tracer provider used to instrument the client and its connection adapter.
	tracerProvider trace.TracerProvider
	// Tracer used to instrument client code.
	tracer trace.Tracer
	// Client counters.
	metrics *clientMetrics
	// Current ConnectionState.
	state atomic.Int32
	// Mutex used to serialize Handshake and ShutDown.
	lifecycleMu sync.Mutex
	// Set once ShutDown has been called.
	shutdown bool
	// Parsed target. Set by Handshake.
	endpoint *Endpoint
	// Connection adapter. Set by a successful Handshake.
	conn wsadapters.WebsocketConnectionAdapterInterface
	// ID of the current connection. Set by a successful Handshake.
	sessionId uuid.UUID
	// Last received text message.
	received *receivedText
	// Cancel function of the receive loop context.
	recvCancel context.CancelFunc
	// Closed when the receive loop exits.
	recvDone chan struct{}
}

// # Description
//
// Factory - Return a new, not connected websocket test client.
//
// # Inputs
//
//   - rawURL: Target URI (ws://host[:port]/path or wss://host[:port]/path). The URI is only
//     validated when Handshake is called.
//   - opts: Client configuration options. If nil, default options are used.
//   - logger: Logger used by the client. If nil, a no-op logger is used.
//   - tracerProvider: OpenTelemetry tracer provider to use. If nil, global TracerProvider is used.
//   - meterProvider: OpenTelemetry meter provider to use. If nil, global MeterProvider is used.
//
// # Return
//
// Factory returns a new client in case of success. If provided options are invalid, factory will
// return nil and an error.
func NewWebsocketTestClient(
	rawURL string,
	opts *WebsocketTestClientConfigurationOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*WebsocketTestClient, error) {
	// Use default options if not set
	if opts == nil {
		opts = NewWebsocketTestClientConfigurationOptions()
	}
	// Validate options
	err := Validate(opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Get providers from global providers if not provided
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	metrics, err := newClientMetrics(
		meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion)))
	if err != nil {
		return nil, err
	}
	return &WebsocketTestClient{
		rawURL:         rawURL,
		opts:           opts,
		logger:         logger.With(zap.String("url", rawURL)),
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		metrics:        metrics,
		received:       newReceivedText(),
		recvCancel:     func() {},
		recvDone:       nil,
	}, nil
}

// Return the current state of the client connection.
func (client *WebsocketTestClient) State() ConnectionState {
	return ConnectionState(client.state.Load())
}

// Return the endpoint parsed by Handshake or nil if Handshake has not parsed the target URI yet.
func (client *WebsocketTestClient) Endpoint() *Endpoint {
	client.lifecycleMu.Lock()
	defer client.lifecycleMu.Unlock()
	return client.endpoint
}

// Return the ID of the connection opened by Handshake or uuid.Nil.
func (client *WebsocketTestClient) SessionId() uuid.UUID {
	client.lifecycleMu.Lock()
	defer client.lifecycleMu.Unlock()
	return client.sessionId
}

func (client *WebsocketTestClient) setState(state ConnectionState) {
	client.state.Store(int32(state))
}

// # Description
//
// Connect to the target server and perform the websocket opening handshake. The method blocks
// until the handshake completes, fails or times out (HandshakeTimeoutMs). On success, the client
// is OPEN and starts a goroutine which reads incoming messages.
//
// # Return
//
// The method returns true if the handshake has completed. Configuration errors (unsupported
// scheme, invalid URI) and handshake failures (server unreachable, TLS failure, upgrade
// rejected, timeout) are logged and reported as false with a nil error. No connection is
// attempted when the URI is invalid.
//
// The method returns false and the context error if the provided context is done before the
// handshake completes.
//
// The method returns false when the client is not UNCONNECTED (already connected, shut down).
func (client *WebsocketTestClient) Handshake(ctx context.Context) (bool, error) {
	// Lock lifecycle mutex
	client.lifecycleMu.Lock()
	defer client.lifecycleMu.Unlock()
	// Start handshake span
	ctx, span := client.tracer.Start(ctx, spanHandshake,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrUrl, client.rawURL),
			attribute.String(attrLibrary, client.library()),
			attribute.String(attrState, client.State().String()),
		))
	defer span.End()
	// Check client state
	if state := client.State(); state != Unconnected {
		err := fmt.Errorf("handshake refused while %s: %w", state, ErrInvalidState)
		client.logger.Warn("handshake refused", zap.Stringer("state", state), zap.Error(err))
		handleError(err, span, codes.Error, codes.Error.String())
		return false, nil
	}
	// Parse target
	endpoint, err := ParseEndpoint(client.rawURL)
	if err != nil {
		if errors.Is(err, ErrUnsupportedScheme) {
			client.logger.Error("only WS(S) is supported", zap.Error(err))
		} else {
			client.logger.Error("invalid target URI", zap.Error(err))
		}
		client.metrics.recordHandshake(ctx, client.library(), outcomeRejected)
		handleError(err, span, codes.Error, codes.Error.String())
		return false, nil
	}
	client.endpoint = endpoint
	// Shortcut if context is already done
	select {
	case <-ctx.Done():
		client.metrics.recordHandshake(ctx, client.library(), outcomeInterrupted)
		return false, handleError(ctx.Err(), span, codes.Error, codes.Error.String())
	default:
	}
	// Build connection adapter
	conn := client.buildConnectionAdapter(endpoint)
	// Dial & handshake
	client.setState(Handshaking)
	dialCtx := ctx
	if client.opts.HandshakeTimeoutMs > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, time.Duration(client.opts.HandshakeTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	target := endpoint.URL()
	client.logger.Debug("opening websocket connection",
		zap.String("target", target.String()),
		zap.String("library", client.library()))
	resp, err := conn.Dial(dialCtx, target)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		client.setState(Unconnected)
		if ctx.Err() != nil {
			// Interrupted by the caller
			client.metrics.recordHandshake(ctx, client.library(), outcomeInterrupted)
			return false, handleError(ctx.Err(), span, codes.Error, codes.Error.String())
		}
		herr := HandshakeError{Err: err}
		if resp != nil {
			herr.StatusCode = resp.StatusCode
		}
		client.logger.Error("websocket handshake failed", zap.Error(herr))
		client.metrics.recordHandshake(ctx, client.library(), outcomeFailure)
		handleError(herr, span, codes.Error, codes.Error.String())
		return false, nil
	}
	// Connection is open: start the receive loop
	client.conn = conn
	client.sessionId = uuid.New()
	span.SetAttributes(attribute.String(attrSessionId, client.sessionId.String()))
	recvCtx, recvCancel := context.WithCancel(context.Background())
	client.recvCancel = recvCancel
	client.recvDone = make(chan struct{})
	client.setState(Open)
	go client.receive(recvCtx, conn, client.sessionId, span.SpanContext(), client.recvDone)
	client.metrics.recordHandshake(ctx, client.library(), outcomeSuccess)
	client.logger.Info("websocket handshake completed",
		zap.String("session_id", client.sessionId.String()),
		zap.String("library", client.library()))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return true, nil
}

// # Description
//
// Send the provided text as a single text message. The method blocks until the message has been
// written or until the context is done or SendTimeoutMs has elapsed.
//
// # Return
//
// The method returns an error wrapping ErrInvalidState when the client is not OPEN (nothing is
// sent), the context error or the error returned by the connection adapter.
func (client *WebsocketTestClient) SendText(ctx context.Context, text string) error {
	// Start span
	ctx, span := client.tracer.Start(ctx, spanSendText,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.Int(attrMsgLength, len(text)),
			attribute.String(attrState, client.State().String()),
		))
	defer span.End()
	// Check state
	if state := client.State(); state != Open {
		return handleError(
			fmt.Errorf("cannot send text while %s: %w", state, ErrInvalidState),
			span, codes.Error, codes.Error.String())
	}
	span.SetAttributes(attribute.String(attrSessionId, client.sessionId.String()))
	if client.opts.SendTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(client.opts.SendTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	err := client.conn.Write(ctx, wsadapters.Text, []byte(text))
	if err != nil {
		client.logger.Error("failed to send text message", zap.Error(err), zap.Int("size", len(text)))
		return handleError(err, span, codes.Error, codes.Error.String())
	}
	client.metrics.recordSent(ctx, client.library())
	client.logger.Debug("text message sent", zap.Int("size", len(text)))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// # Description
//
// Send a ping and wait for the server pong. The method blocks until the pong is received or until
// the context is done or SendTimeoutMs has elapsed.
//
// # Return
//
// The method returns an error wrapping ErrInvalidState when the client is not OPEN, the context
// error or the error returned by the connection adapter.
func (client *WebsocketTestClient) Ping(ctx context.Context) error {
	ctx, span := client.tracer.Start(ctx, spanPing,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(attrState, client.State().String())))
	defer span.End()
	if state := client.State(); state != Open {
		return handleError(
			fmt.Errorf("cannot ping while %s: %w", state, ErrInvalidState),
			span, codes.Error, codes.Error.String())
	}
	if client.opts.SendTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(client.opts.SendTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	return handlePotentialError(client.conn.Ping(ctx), span)
}

// Return the payload of the last text message received from the server or an empty string if no
// text message has been received yet. Messages received between two calls are overwritten: only
// the last one is kept.
func (client *WebsocketTestClient) GetTextReceived() string {
	value, _ := client.received.Load()
	return value
}

// Return the number of text messages received so far.
func (client *WebsocketTestClient) ReceivedCount() uint64 {
	_, seq := client.received.Load()
	return seq
}

// # Description
//
// Block until more than after text messages have been received, then return the last received
// text message. Use ReceivedCount before sending a message to get the value of after.
//
// # Return
//
// The last received text message or an error wrapping ErrConnectionClosed if the connection ends
// before a new message is received, or the context error.
func (client *WebsocketTestClient) WaitTextReceived(ctx context.Context, after uint64) (string, error) {
	value, _, err := client.received.WaitNewer(ctx, after)
	if err != nil {
		return "", err
	}
	return value, nil
}

// # Description
//
// Close the connection and release the client resources. The client is CLOSED when the method
// returns and cannot be used anymore.
//
// When the client is OPEN, a close message (1000 - client shutdown) is sent and the method waits
// for the server close message and for the receive loop to exit, within ShutdownTimeoutMs.
//
// Repeated calls are a no-op which returns nil.
//
// # Return
//
// nil on success or a ShutdownError if the closing handshake failed or timed out.
func (client *WebsocketTestClient) ShutDown(ctx context.Context) error {
	// Lock lifecycle mutex
	client.lifecycleMu.Lock()
	defer client.lifecycleMu.Unlock()
	if client.shutdown {
		return nil
	}
	client.shutdown = true
	ctx, span := client.tracer.Start(ctx, spanShutdown,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(attrState, client.State().String())))
	defer span.End()
	// The receive loop may have moved the client to CLOSED concurrently
	if !client.state.CompareAndSwap(int32(Open), int32(Closing)) {
		client.setState(Closed)
		client.recvCancel()
		client.received.Close(ErrConnectionClosed)
		client.logger.Info("websocket test client shut down")
		span.SetStatus(codes.Ok, codes.Ok.String())
		return nil
	}
	span.SetAttributes(attribute.String(attrSessionId, client.sessionId.String()))
	if client.opts.ShutdownTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(client.opts.ShutdownTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	// Closing handshake
	err := client.conn.Close(ctx, wsadapters.NormalClosure, shutdownReason)
	if err != nil {
		client.logger.Warn("failed to close websocket connection", zap.Error(err))
	}
	// Wait for the receive loop to exit
	select {
	case <-client.recvDone:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
		client.logger.Warn("receive loop did not exit in time", zap.Error(ctx.Err()))
	}
	// Release the receive loop in any case
	client.recvCancel()
	client.setState(Closed)
	client.received.Close(ErrConnectionClosed)
	if err != nil {
		return handleError(ShutdownError{Err: err}, span, codes.Error, codes.Error.String())
	}
	client.logger.Info("websocket test client shut down",
		zap.String("session_id", client.sessionId.String()))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// # Description
//
// Receive loop of a connection: read messages until the connection closes or fails. Text
// messages are stored in the received text cell, other messages are dropped.
//
// When the loop exits while the client is OPEN (server closed the connection, read failure),
// the client moves to CLOSED.
func (client *WebsocketTestClient) receive(
	ctx context.Context,
	conn wsadapters.WebsocketConnectionAdapterInterface,
	sessionId uuid.UUID,
	handshake trace.SpanContext,
	done chan struct{}) {
	defer close(done)
	logger := client.logger.With(zap.String("session_id", sessionId.String()))
	ctx, span := client.tracer.Start(ctx, spanReceive,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithLinks(trace.Link{SpanContext: handshake}),
		trace.WithAttributes(attribute.String(attrSessionId, sessionId.String())))
	defer span.End()
	for {
		msgType, msg, err := conn.Read(ctx)
		if err != nil {
			client.received.Close(err)
			closeErr := new(wsadapters.WebsocketCloseError)
			isCloseErr := errors.As(err, closeErr)
			if isCloseErr {
				span.AddEvent(eventConnectionClosed, trace.WithAttributes(
					attribute.Int(attrCloseCode, int(closeErr.Code)),
					attribute.String(attrCloseReason, closeErr.Reason)))
			}
			if !client.state.CompareAndSwap(int32(Open), int32(Closed)) {
				// Shutdown in progress
				span.SetStatus(codes.Ok, codes.Ok.String())
				return
			}
			if isCloseErr {
				logger.Info("connection closed by server",
					zap.Int("code", int(closeErr.Code)),
					zap.String("reason", closeErr.Reason))
				span.SetStatus(codes.Ok, codes.Ok.String())
				return
			}
			logger.Error("failed to read message", zap.Error(err))
			handleError(err, span, codes.Error, codes.Error.String())
			// Connection is unusable: release it
			closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if cerr := conn.Close(closeCtx, wsadapters.InternalError, "read failure"); cerr != nil {
				logger.Debug("failed to close connection after read failure", zap.Error(cerr))
			}
			return
		}
		switch msgType {
		case wsadapters.Text:
			seq := client.received.Store(string(msg))
			client.metrics.recordReceived(ctx, client.library())
			span.AddEvent(eventTextReceived, trace.WithAttributes(
				attribute.Int(attrMsgLength, len(msg)),
				attribute.Int64(attrMsgSeq, int64(seq))))
			logger.Debug("text message received", zap.Int("size", len(msg)))
		default:
			span.AddEvent(eventBinaryDropped, trace.WithAttributes(attribute.Int(attrMsgLength, len(msg))))
			logger.Debug("non text message dropped",
				zap.Stringer("type", msgType),
				zap.Int("size", len(msg)))
		}
	}
}

// Name of the library used by the client. Injected adapters are reported as custom.
func (client *WebsocketTestClient) library() string {
	if client.opts.connectionAdapter != nil {
		return "custom"
	}
	return client.opts.Library
}

// # Description
//
// Return the connection adapter used to connect to the endpoint: either the adapter injected
// with WithConnectionAdapter or a new adapter for the configured library. The adapter is wrapped
// in an instrumentation decorator if it is not already.
func (client *WebsocketTestClient) buildConnectionAdapter(endpoint *Endpoint) wsadapters.WebsocketConnectionAdapterInterface {
	conn := client.opts.connectionAdapter
	if conn == nil {
		conn = client.newLibraryAdapter(client.tlsConfig(endpoint))
	}
	if _, ok := conn.(*wsadapters.WebsocketConnectionAdapterInstrumentationDecorator); !ok {
		conn = wsadapters.NewWebsocketConnectionAdapterInstrumentationDecorator(conn, client.tracerProvider)
	}
	return conn
}

// Return the TLS configuration used for wss endpoints or nil for ws endpoints.
func (client *WebsocketTestClient) tlsConfig(endpoint *Endpoint) *tls.Config {
	if !endpoint.Secure() {
		return nil
	}
	cfg := &tls.Config{
		ServerName: endpoint.Host,
		MinVersion: tls.VersionTLS12,
	}
	if client.opts.AllowInsecureTLS {
		client.logger.Warn("TLS certificate verification is disabled: do not use against production servers")
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// Build a connection adapter for the configured library.
func (client *WebsocketTestClient) newLibraryAdapter(tlsConfig *tls.Config) wsadapters.WebsocketConnectionAdapterInterface {
	opts := client.opts
	var httpClient *http.Client
	if tlsConfig != nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsConfig,
			},
		}
	}
	switch opts.Library {
	case LibraryGorilla:
		dialer := &gorilla.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			TLSClientConfig:   tlsConfig,
			Subprotocols:      opts.Subprotocols,
			EnableCompression: opts.CompressionEnabled,
		}
		return wsadaptergorilla.NewGorillaWebsocketConnectionAdapter(dialer, opts.HTTPHeader.Clone(), opts.ReadLimitBytes)
	case LibraryCoder:
		mode := coder.CompressionDisabled
		if opts.CompressionEnabled {
			mode = coder.CompressionNoContextTakeover
		}
		return wsadaptercoder.NewCoderWebsocketConnectionAdapter(&coder.DialOptions{
			HTTPClient:      httpClient,
			HTTPHeader:      opts.HTTPHeader.Clone(),
			Subprotocols:    opts.Subprotocols,
			CompressionMode: mode,
		}, opts.ReadLimitBytes)
	default:
		mode := nhooyr.CompressionDisabled
		if opts.CompressionEnabled {
			mode = nhooyr.CompressionNoContextTakeover
		}
		return wsadapternhooyr.NewNhooyrWebsocketConnectionAdapter(&nhooyr.DialOptions{
			HTTPClient:      httpClient,
			HTTPHeader:      opts.HTTPHeader.Clone(),
			Subprotocols:    opts.Subprotocols,
			CompressionMode: mode,
		}, opts.ReadLimitBytes)
	}
}
