// Package wsadapternhooyr contains a WebsocketConnectionAdapterInterface implementation for
// nhooyr/websocket library (https://github.com/nhooyr/websocket).
package wsadapternhooyr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gbdevw/gowstestclient/wstestclient/wsadapters"
	"nhooyr.io/websocket"
)

// NhooyrWebsocketConnectionAdapter drives a single nhooyr connection at a time.
type NhooyrWebsocketConnectionAdapter struct {
	// Current connection, nil when none is open
	conn *websocket.Conn
	// Options passed to websocket.Dial. Can be nil.
	opts *websocket.DialOptions
	// Maximum message size. 0 keeps the library default (32768 bytes).
	readLimit int64
	// Protects conn
	mu sync.Mutex
}

// # Description
//
// Build a new adapter with no open connection.
//
// # Inputs
//
//   - opts: Options forwarded to websocket.Dial. Can be nil.
//   - readLimit: Maximum size of a received message in bytes. 0 keeps the library default.
func NewNhooyrWebsocketConnectionAdapter(opts *websocket.DialOptions, readLimit int64) *NhooyrWebsocketConnectionAdapter {
	return &NhooyrWebsocketConnectionAdapter{opts: opts, readLimit: readLimit}
}

// # Description
//
// Open the connection and run the opening handshake. The HTTP response is returned as is, also
// when the server rejects the upgrade.
func (adapter *NhooyrWebsocketConnectionAdapter) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn != nil {
		return nil, fmt.Errorf("dial failed: a connection is already open")
	}
	conn, res, err := websocket.Dial(ctx, target.String(), adapter.opts)
	if err != nil {
		return res, err
	}
	if adapter.readLimit > 0 {
		conn.SetReadLimit(adapter.readLimit)
	}
	adapter.conn = conn
	return res, nil
}

// # Description
//
// Run the closing handshake with the provided code and reason and forget the connection. The
// library waits up to 5 seconds for the server close message.
func (adapter *NhooyrWebsocketConnectionAdapter) Close(ctx context.Context, code wsadapters.StatusCode, reason string) error {
	adapter.mu.Lock()
	conn := adapter.conn
	adapter.conn = nil
	adapter.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("close failed: %w", wsadapters.ErrNoConnection)
	}
	err := conn.Close(convertToNhooyrStatusCodes(code), reason)
	if err != nil && strings.Contains(err.Error(), "already wrote close") {
		return fmt.Errorf("close failed: %w", net.ErrClosed)
	}
	return err
}

// # Description
//
// Send a ping and wait for the pong. Pongs are only processed while another goroutine is
// blocked in Read.
func (adapter *NhooyrWebsocketConnectionAdapter) Ping(ctx context.Context) error {
	conn, err := adapter.usable(ctx, "ping")
	if err != nil {
		return err
	}
	return conn.Ping(ctx)
}

// # Description
//
// Wait for the next data message. Close frames and lost connections are reported as
// wsadapters.WebsocketCloseError and the connection is forgotten.
//
// Cancelling ctx while Read is blocked makes the library close the connection.
func (adapter *NhooyrWebsocketConnectionAdapter) Read(ctx context.Context) (wsadapters.MessageType, []byte, error) {
	conn, err := adapter.usable(ctx, "read")
	if err != nil {
		return -1, nil, err
	}
	msgType, payload, err := conn.Read(ctx)
	if err == nil {
		return convertFromNhooyrMsgTypes(msgType), payload, nil
	}
	status := websocket.CloseStatus(err)
	if status == -1 && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		return -1, nil, err
	}
	adapter.forget(conn)
	closeErr := wsadapters.WebsocketCloseError{
		Code:   wsadapters.AbnormalClosure,
		Reason: "websocket connection abnormal closure",
		Err:    err,
	}
	if status != -1 {
		closeErr.Code = convertFromNhooyrStatusCodes(status)
		closeErr.Reason = err.Error()
	}
	return -1, nil, closeErr
}

// # Description
//
// Send one data message. The call returns once the frame is written.
func (adapter *NhooyrWebsocketConnectionAdapter) Write(ctx context.Context, msgType wsadapters.MessageType, msg []byte) error {
	conn, err := adapter.usable(ctx, "write")
	if err != nil {
		return err
	}
	return conn.Write(ctx, convertToNhooyrMsgTypes(msgType), msg)
}

// Return the open *websocket.Conn or nil.
func (adapter *NhooyrWebsocketConnectionAdapter) GetUnderlyingWebsocketConnection() any {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return nil
	}
	return adapter.conn
}

// Check ctx and return the open connection. The lock is not held while the caller uses it.
func (adapter *NhooyrWebsocketConnectionAdapter) usable(ctx context.Context, op string) (*websocket.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return nil, fmt.Errorf("%s failed: %w", op, wsadapters.ErrNoConnection)
	}
	return adapter.conn, nil
}

// Forget conn unless a newer connection replaced it.
func (adapter *NhooyrWebsocketConnectionAdapter) forget(conn *websocket.Conn) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == conn {
		adapter.conn = nil
	}
}

// Close codes shared by both enums.
var nhooyrStatusCodes = map[wsadapters.StatusCode]websocket.StatusCode{
	wsadapters.NormalClosure:           websocket.StatusNormalClosure,
	wsadapters.GoingAway:               websocket.StatusGoingAway,
	wsadapters.ProtocolError:           websocket.StatusProtocolError,
	wsadapters.UnsupportedData:         websocket.StatusUnsupportedData,
	wsadapters.NoStatusReceived:        websocket.StatusNoStatusRcvd,
	wsadapters.AbnormalClosure:         websocket.StatusAbnormalClosure,
	wsadapters.InvalidFramePayloadData: websocket.StatusInvalidFramePayloadData,
	wsadapters.PolicyViolation:         websocket.StatusPolicyViolation,
	wsadapters.MessageTooBig:           websocket.StatusMessageTooBig,
	wsadapters.MandatoryExtension:      websocket.StatusMandatoryExtension,
	wsadapters.InternalError:           websocket.StatusInternalError,
	wsadapters.TLSHandshake:            websocket.StatusTLSHandshake,
}

// Unknown codes become websocket.StatusAbnormalClosure.
func convertToNhooyrStatusCodes(code wsadapters.StatusCode) websocket.StatusCode {
	if converted, ok := nhooyrStatusCodes[code]; ok {
		return converted
	}
	return websocket.StatusAbnormalClosure
}

// Unknown codes become wsadapters.AbnormalClosure.
func convertFromNhooyrStatusCodes(code websocket.StatusCode) wsadapters.StatusCode {
	for ours, theirs := range nhooyrStatusCodes {
		if theirs == code {
			return ours
		}
	}
	return wsadapters.AbnormalClosure
}

func convertToNhooyrMsgTypes(msgType wsadapters.MessageType) websocket.MessageType {
	if msgType == wsadapters.Text {
		return websocket.MessageText
	}
	return websocket.MessageBinary
}

func convertFromNhooyrMsgTypes(msgType websocket.MessageType) wsadapters.MessageType {
	if msgType == websocket.MessageText {
		return wsadapters.Text
	}
	return wsadapters.Binary
}
