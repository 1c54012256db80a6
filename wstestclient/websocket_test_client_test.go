package wstestclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gbdevw/gowstestclient/echowsserver"
	"github.com/gbdevw/gowstestclient/wstestclient/wsadapters"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

/*************************************************************************************************/
/* UNIT TEST SUITE                                                                               */
/*************************************************************************************************/

// Unit test suite for WebsocketTestClient. Tests use a mocked connection adapter.
type WebsocketTestClientUnitTestSuite struct {
	suite.Suite
	// Observed logs
	logs *observer.ObservedLogs
	// Logger which records logs in logs
	logger *zap.Logger
	// Recorded spans
	recorder *tracetest.SpanRecorder
	// Tracer provider which uses recorder
	tracerProvider *sdktrace.TracerProvider
	// Metric reader
	reader *sdkmetric.ManualReader
	// Meter provider which uses reader
	meterProvider *sdkmetric.MeterProvider
}

// Run WebsocketTestClientUnitTestSuite test suite
func TestWebsocketTestClientUnitTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketTestClientUnitTestSuite))
}

// Fresh logger, tracer provider and meter provider for each test
func (suite *WebsocketTestClientUnitTestSuite) SetupTest() {
	core, logs := observer.New(zap.DebugLevel)
	suite.logs = logs
	suite.logger = zap.New(core)
	suite.recorder = tracetest.NewSpanRecorder()
	suite.tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(suite.recorder))
	suite.reader = sdkmetric.NewManualReader()
	suite.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(suite.reader))
}

// Build a client which uses the provided adapter.
func (suite *WebsocketTestClientUnitTestSuite) newClient(rawURL string, adapter wsadapters.WebsocketConnectionAdapterInterface) *WebsocketTestClient {
	opts := NewWebsocketTestClientConfigurationOptions().
		WithShutdownTimeoutMs(5000).
		WithConnectionAdapter(adapter)
	client, err := NewWebsocketTestClient(rawURL, opts, suite.logger, suite.tracerProvider, suite.meterProvider)
	require.NoError(suite.T(), err)
	return client
}

// Mocked adapter whose Read blocks until unblock is closed and then reports a normal closure.
func newBlockingAdapterMock(unblock chan struct{}) *wsadapters.WebsocketConnectionAdapterInterfaceMock {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, mock.Anything).Return(nil, nil)
	adapter.On("Read", mock.Anything).
		Run(func(args mock.Arguments) { <-unblock }).
		Return(-1, nil, wsadapters.WebsocketCloseError{Code: wsadapters.NormalClosure, Reason: "bye"})
	return adapter
}

// Sum of the int64 counter with the provided name, for data points which match attr when set.
func (suite *WebsocketTestClientUnitTestSuite) counterValue(name string, attr *attribute.KeyValue) int64 {
	rm := metricdata.ResourceMetrics{}
	require.NoError(suite.T(), suite.reader.Collect(context.Background(), &rm))
	total := int64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(suite.T(), ok)
			for _, dp := range sum.DataPoints {
				if attr != nil {
					value, found := dp.Attributes.Value(attr.Key)
					if !found || value.Emit() != attr.Value.Emit() {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

// Return the names of ended spans.
func (suite *WebsocketTestClientUnitTestSuite) endedSpanNames() []string {
	names := []string{}
	for _, span := range suite.recorder.Ended() {
		names = append(names, span.Name())
	}
	return names
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test the factory uses defaults and rejects invalid options.
func (suite *WebsocketTestClientUnitTestSuite) TestFactory() {
	client, err := NewWebsocketTestClient("ws://localhost", nil, nil, nil, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), Unconnected, client.State())
	require.Equal(suite.T(), LibraryNhooyr, client.opts.Library)
	require.Empty(suite.T(), client.GetTextReceived())
	require.Zero(suite.T(), client.ReceivedCount())
	require.Nil(suite.T(), client.Endpoint())
	// Invalid options
	_, err = NewWebsocketTestClient("ws://localhost",
		NewWebsocketTestClientConfigurationOptions().WithLibrary("unknown"), nil, nil, nil)
	require.Error(suite.T(), err)
}

// Test a http URI is rejected without any network activity.
func (suite *WebsocketTestClientUnitTestSuite) TestHandshakeUnsupportedScheme() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	client := suite.newClient("http://localhost:8080", adapter)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.False(suite.T(), ok)
	require.Equal(suite.T(), Unconnected, client.State())
	adapter.AssertNotCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
	require.Equal(suite.T(), 1, suite.logs.FilterMessage("only WS(S) is supported").Len())
	outcome := attribute.String(attrOutcome, outcomeRejected)
	require.Equal(suite.T(), int64(1), suite.counterValue(metricHandshakes, &outcome))
}

// Test a failed handshake is reported as false and the client goes back to UNCONNECTED.
func (suite *WebsocketTestClientUnitTestSuite) TestHandshakeFailure() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, mock.Anything).
		Return(&http.Response{StatusCode: http.StatusForbidden}, errors.New("upgrade rejected")).Once()
	client := suite.newClient("ws://localhost:8080/echo", adapter)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.False(suite.T(), ok)
	require.Equal(suite.T(), Unconnected, client.State())
	// Dial targets the URL with the resolved port
	adapter.AssertCalled(suite.T(), "Dial", mock.Anything, mock.MatchedBy(func(target url.URL) bool {
		return target.Scheme == "ws" && target.Host == "localhost:8080" && target.Path == "/echo"
	}))
	entries := suite.logs.FilterMessage("websocket handshake failed").All()
	require.Len(suite.T(), entries, 1)
	require.Contains(suite.T(), entries[0].ContextMap()["error"], "HTTP 403")
	outcome := attribute.String(attrOutcome, outcomeFailure)
	require.Equal(suite.T(), int64(1), suite.counterValue(metricHandshakes, &outcome))
	require.Contains(suite.T(), suite.endedSpanNames(), spanHandshake)
}

// Test a done context interrupts the handshake before dialing.
func (suite *WebsocketTestClientUnitTestSuite) TestHandshakeInterrupted() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	client := suite.newClient("ws://localhost:8080", adapter)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := client.Handshake(ctx)
	require.False(suite.T(), ok)
	require.ErrorIs(suite.T(), err, context.Canceled)
	require.Equal(suite.T(), Unconnected, client.State())
	adapter.AssertNotCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
}

// Test a context cancelled while dialing is returned to the caller.
func (suite *WebsocketTestClientUnitTestSuite) TestHandshakeInterruptedWhileDialing() {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)
	client := suite.newClient("ws://localhost:8080", adapter)
	ok, err := client.Handshake(ctx)
	require.False(suite.T(), ok)
	require.ErrorIs(suite.T(), err, context.Canceled)
	require.Equal(suite.T(), Unconnected, client.State())
}

// Test SendText and Ping fail before the handshake and nothing is written.
func (suite *WebsocketTestClientUnitTestSuite) TestSendTextBeforeHandshake() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	client := suite.newClient("ws://localhost:8080", adapter)
	err := client.SendText(context.Background(), "hello")
	require.ErrorIs(suite.T(), err, ErrInvalidState)
	require.Contains(suite.T(), err.Error(), "UNCONNECTED")
	require.ErrorIs(suite.T(), client.Ping(context.Background()), ErrInvalidState)
	adapter.AssertNotCalled(suite.T(), "Write", mock.Anything, mock.Anything, mock.Anything)
	adapter.AssertNotCalled(suite.T(), "Ping", mock.Anything)
}

// Test the full lifecycle with a mocked connection: handshake, send, receive, shutdown.
func (suite *WebsocketTestClientUnitTestSuite) TestLifecycle() {
	unblock := make(chan struct{})
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, mock.Anything).Return(nil, nil)
	adapter.On("Read", mock.Anything).Return(wsadapters.Text, []byte("hello"), nil).Once()
	adapter.On("Read", mock.Anything).Return(wsadapters.Binary, []byte{0x01}, nil).Once()
	adapter.On("Read", mock.Anything).
		Run(func(args mock.Arguments) { <-unblock }).
		Return(-1, nil, wsadapters.WebsocketCloseError{Code: wsadapters.NormalClosure, Reason: shutdownReason})
	adapter.On("Write", mock.Anything, wsadapters.Text, []byte("hi")).Return(nil)
	adapter.On("Ping", mock.Anything).Return(nil)
	adapter.On("Close", mock.Anything, wsadapters.NormalClosure, shutdownReason).
		Run(func(args mock.Arguments) { close(unblock) }).
		Return(nil)
	client := suite.newClient("ws://localhost:8080", adapter)
	// Handshake
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), Open, client.State())
	require.NotEqual(suite.T(), uuid.Nil, client.SessionId())
	// Receive
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := client.WaitTextReceived(ctx, 0)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "hello", text)
	require.Equal(suite.T(), "hello", client.GetTextReceived())
	// Send & ping
	require.NoError(suite.T(), client.SendText(context.Background(), "hi"))
	require.NoError(suite.T(), client.Ping(context.Background()))
	// A second handshake is refused
	ok, err = client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.False(suite.T(), ok)
	// Shutdown
	require.NoError(suite.T(), client.ShutDown(context.Background()))
	require.Equal(suite.T(), Closed, client.State())
	require.ErrorIs(suite.T(), client.SendText(context.Background(), "hi"), ErrInvalidState)
	// Repeated shutdown is a no-op
	require.NoError(suite.T(), client.ShutDown(context.Background()))
	adapter.AssertNumberOfCalls(suite.T(), "Close", 1)
	adapter.AssertNumberOfCalls(suite.T(), "Write", 1)
	// Binary message was dropped
	require.Equal(suite.T(), uint64(1), client.ReceivedCount())
	// Instrumentation
	require.Equal(suite.T(), int64(1), suite.counterValue(metricMessagesSent, nil))
	require.Equal(suite.T(), int64(1), suite.counterValue(metricMessagesReceived, nil))
	outcome := attribute.String(attrOutcome, outcomeSuccess)
	require.Equal(suite.T(), int64(1), suite.counterValue(metricHandshakes, &outcome))
	names := suite.endedSpanNames()
	for _, name := range []string{spanHandshake, spanSendText, spanPing, spanShutdown, spanReceive} {
		require.Contains(suite.T(), names, name)
	}
}

// Test the client is CLOSED when the server closes the connection and waiters are released.
func (suite *WebsocketTestClientUnitTestSuite) TestServerClose() {
	unblock := make(chan struct{})
	adapter := newBlockingAdapterMock(unblock)
	client := suite.newClient("ws://localhost:8080", adapter)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	// Server closes the connection while a caller waits for a message
	errCh := make(chan error, 1)
	go func() {
		_, err := client.WaitTextReceived(context.Background(), 0)
		errCh <- err
	}()
	close(unblock)
	select {
	case err := <-errCh:
		require.ErrorIs(suite.T(), err, ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		suite.FailNow("waiter was not released")
	}
	require.Eventually(suite.T(), func() bool { return client.State() == Closed }, 5*time.Second, 10*time.Millisecond)
	require.Equal(suite.T(), 1, suite.logs.FilterMessage("connection closed by server").Len())
	// Shutdown does not close the connection again
	require.NoError(suite.T(), client.ShutDown(context.Background()))
	adapter.AssertNotCalled(suite.T(), "Close", mock.Anything, mock.Anything, mock.Anything)
}

// Test a read failure closes the connection and moves the client to CLOSED.
func (suite *WebsocketTestClientUnitTestSuite) TestReadFailure() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	adapter.On("Dial", mock.Anything, mock.Anything).Return(nil, nil)
	adapter.On("Read", mock.Anything).Return(-1, nil, errors.New("message too big"))
	closed := make(chan struct{})
	adapter.On("Close", mock.Anything, wsadapters.InternalError, "read failure").
		Run(func(args mock.Arguments) { close(closed) }).
		Return(nil)
	client := suite.newClient("ws://localhost:8080", adapter)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		suite.FailNow("connection was not closed after read failure")
	}
	require.Equal(suite.T(), Closed, client.State())
	require.Equal(suite.T(), 1, suite.logs.FilterMessage("failed to read message").Len())
	require.ErrorIs(suite.T(), client.SendText(context.Background(), "hi"), ErrInvalidState)
	require.NoError(suite.T(), client.ShutDown(context.Background()))
}

// Test a close failure during shutdown is reported and the client is CLOSED anyway.
func (suite *WebsocketTestClientUnitTestSuite) TestShutdownError() {
	unblock := make(chan struct{})
	adapter := newBlockingAdapterMock(unblock)
	adapter.On("Close", mock.Anything, wsadapters.NormalClosure, shutdownReason).
		Run(func(args mock.Arguments) { close(unblock) }).
		Return(errors.New("broken pipe"))
	client := suite.newClient("ws://localhost:8080", adapter)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	err = client.ShutDown(context.Background())
	require.ErrorAs(suite.T(), err, new(ShutdownError))
	require.Contains(suite.T(), err.Error(), "broken pipe")
	require.Equal(suite.T(), Closed, client.State())
	require.NoError(suite.T(), client.ShutDown(context.Background()))
}

// Test shutdown gives up waiting for the receive loop once the timeout has elapsed.
func (suite *WebsocketTestClientUnitTestSuite) TestShutdownTimeout() {
	unblock := make(chan struct{})
	defer close(unblock)
	adapter := newBlockingAdapterMock(unblock)
	adapter.On("Close", mock.Anything, wsadapters.NormalClosure, shutdownReason).Return(nil)
	opts := NewWebsocketTestClientConfigurationOptions().
		WithShutdownTimeoutMs(50).
		WithConnectionAdapter(adapter)
	client, err := NewWebsocketTestClient("ws://localhost:8080", opts, suite.logger, suite.tracerProvider, suite.meterProvider)
	require.NoError(suite.T(), err)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	err = client.ShutDown(context.Background())
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
	require.ErrorAs(suite.T(), err, new(ShutdownError))
	require.Equal(suite.T(), Closed, client.State())
}

// Test shutdown of a client which never connected and handshake after shutdown.
func (suite *WebsocketTestClientUnitTestSuite) TestShutdownBeforeHandshake() {
	adapter := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	client := suite.newClient("ws://localhost:8080", adapter)
	require.NoError(suite.T(), client.ShutDown(context.Background()))
	require.Equal(suite.T(), Closed, client.State())
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.False(suite.T(), ok)
	adapter.AssertNotCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
	// The refusal is logged with the state and the invalid state error
	entries := suite.logs.FilterMessage("handshake refused").All()
	require.Len(suite.T(), entries, 1)
	require.Equal(suite.T(), Closed.String(), entries[0].ContextMap()["state"])
	require.Contains(suite.T(), entries[0].ContextMap()["error"], ErrInvalidState.Error())
}

/*************************************************************************************************/
/* INTEGRATION TEST SUITE                                                                        */
/*************************************************************************************************/

// Integration test suite for WebsocketTestClient. Tests use a local echo server.
type WebsocketTestClientIntegrationTestSuite struct {
	suite.Suite
	// Plain echo server
	srv *echowsserver.EchoWebsocketServer
	// Echo server with a self-signed certificate
	tlsSrv *echowsserver.EchoWebsocketServer
}

// Run WebsocketTestClientIntegrationTestSuite test suite
func TestWebsocketTestClientIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketTestClientIntegrationTestSuite))
}

// Start echo servers
func (suite *WebsocketTestClientIntegrationTestSuite) SetupSuite() {
	suite.srv = echowsserver.NewEchoWebsocketServer(&http.Server{Addr: "127.0.0.1:0"}, zap.NewNop())
	require.NoError(suite.T(), suite.srv.Start())
	cert, err := echowsserver.GenerateSelfSignedCertificate()
	require.NoError(suite.T(), err)
	suite.tlsSrv = echowsserver.NewEchoWebsocketServer(&http.Server{
		Addr:      "127.0.0.1:0",
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}, zap.NewNop())
	require.NoError(suite.T(), suite.tlsSrv.Start())
}

// Stop echo servers
func (suite *WebsocketTestClientIntegrationTestSuite) TearDownSuite() {
	suite.srv.Stop()
	suite.tlsSrv.Stop()
}

// Connect a client which uses the provided options to the provided URL.
func (suite *WebsocketTestClientIntegrationTestSuite) connect(rawURL string, opts *WebsocketTestClientConfigurationOptions) *WebsocketTestClient {
	client, err := NewWebsocketTestClient(rawURL, opts, zap.NewNop(), nil, nil)
	require.NoError(suite.T(), err)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), Open, client.State())
	return client
}

// Send text and wait for the echo.
func (suite *WebsocketTestClientIntegrationTestSuite) roundTrip(client *WebsocketTestClient, text string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	count := client.ReceivedCount()
	require.NoError(suite.T(), client.SendText(ctx, text))
	echoed, err := client.WaitTextReceived(ctx, count)
	require.NoError(suite.T(), err)
	return echoed
}

// Test handshake, round trip and shutdown with every supported library.
func (suite *WebsocketTestClientIntegrationTestSuite) TestRoundTripWithEveryLibrary() {
	payloads := []string{"hello", "héllo wörld ✓", strings.Repeat("websocket ", 2000)}
	for _, lib := range []string{LibraryNhooyr, LibraryGorilla, LibraryCoder} {
		for _, compression := range []bool{true, false} {
			opts := NewWebsocketTestClientConfigurationOptions().
				WithLibrary(lib).
				WithCompressionEnabled(compression)
			client := suite.connect(suite.srv.URL(), opts)
			for _, payload := range payloads {
				require.Equal(suite.T(), payload, suite.roundTrip(client, payload), lib)
			}
			require.Equal(suite.T(), payloads[len(payloads)-1], client.GetTextReceived())
			require.NoError(suite.T(), client.Ping(context.Background()), lib)
			require.NoError(suite.T(), client.ShutDown(context.Background()), lib)
			require.Equal(suite.T(), Closed, client.State())
			require.ErrorIs(suite.T(), client.SendText(context.Background(), "late"), ErrInvalidState)
			require.NoError(suite.T(), client.ShutDown(context.Background()))
		}
	}
}

// Test messages sent back to back are all received and the last one is kept.
func (suite *WebsocketTestClientIntegrationTestSuite) TestLastWriteWins() {
	client := suite.connect(suite.srv.URL(), nil)
	defer client.ShutDown(context.Background())
	for _, text := range []string{"first", "second", "third"} {
		require.NoError(suite.T(), client.SendText(context.Background(), text))
	}
	require.Eventually(suite.T(), func() bool { return client.ReceivedCount() == 3 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(suite.T(), "third", client.GetTextReceived())
}

// Test wss against a self-signed certificate: fails by default and succeeds when insecure TLS is
// allowed.
func (suite *WebsocketTestClientIntegrationTestSuite) TestSelfSignedCertificate() {
	for _, lib := range []string{LibraryNhooyr, LibraryGorilla, LibraryCoder} {
		// Default options verify the certificate
		client, err := NewWebsocketTestClient(suite.tlsSrv.URL(),
			NewWebsocketTestClientConfigurationOptions().WithLibrary(lib), zap.NewNop(), nil, nil)
		require.NoError(suite.T(), err)
		ok, err := client.Handshake(context.Background())
		require.NoError(suite.T(), err)
		require.False(suite.T(), ok, lib)
		require.Equal(suite.T(), Unconnected, client.State())
		require.NoError(suite.T(), client.ShutDown(context.Background()))
		// Insecure TLS
		client = suite.connect(suite.tlsSrv.URL(),
			NewWebsocketTestClientConfigurationOptions().WithLibrary(lib).WithAllowInsecureTLS(true))
		require.True(suite.T(), client.Endpoint().Secure())
		require.Equal(suite.T(), "hello", suite.roundTrip(client, "hello"), lib)
		require.NoError(suite.T(), client.ShutDown(context.Background()))
	}
}

// Test an unreachable server is reported as a failed handshake.
func (suite *WebsocketTestClientIntegrationTestSuite) TestUnreachableServer() {
	// Get a free port by starting and stopping a server
	srv := echowsserver.NewEchoWebsocketServer(&http.Server{Addr: "127.0.0.1:0"}, zap.NewNop())
	require.NoError(suite.T(), srv.Start())
	target := srv.URL()
	require.NoError(suite.T(), srv.Stop())
	client, err := NewWebsocketTestClient(target,
		NewWebsocketTestClientConfigurationOptions().WithHandshakeTimeoutMs(2000), zap.NewNop(), nil, nil)
	require.NoError(suite.T(), err)
	ok, err := client.Handshake(context.Background())
	require.NoError(suite.T(), err)
	require.False(suite.T(), ok)
	require.Equal(suite.T(), Unconnected, client.State())
}

// Test the client moves to CLOSED when the server closes the connection.
func (suite *WebsocketTestClientIntegrationTestSuite) TestServerClosesConnection() {
	srv := echowsserver.NewEchoWebsocketServer(&http.Server{Addr: "127.0.0.1:0"}, zap.NewNop())
	require.NoError(suite.T(), srv.Start())
	defer srv.Stop()
	for _, lib := range []string{LibraryNhooyr, LibraryGorilla, LibraryCoder} {
		client := suite.connect(srv.URL(), NewWebsocketTestClientConfigurationOptions().WithLibrary(lib))
		require.Equal(suite.T(), "ping", suite.roundTrip(client, "ping"))
		srv.CloseClientConnections(1001, "server shutdown")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := client.WaitTextReceived(ctx, client.ReceivedCount())
		cancel()
		require.ErrorIs(suite.T(), err, ErrConnectionClosed, lib)
		require.Eventually(suite.T(), func() bool { return client.State() == Closed }, 5*time.Second, 10*time.Millisecond)
		// Last message is still available
		require.Equal(suite.T(), "ping", client.GetTextReceived())
		require.NoError(suite.T(), client.ShutDown(context.Background()))
		require.Eventually(suite.T(), func() bool { return srv.SessionCount() == 0 }, 10*time.Second, 10*time.Millisecond)
	}
}
