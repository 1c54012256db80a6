// Package wsadaptercoder contains a WebsocketConnectionAdapterInterface implementation for
// coder/websocket library (https://github.com/coder/websocket), the maintained fork of
// nhooyr/websocket.
package wsadaptercoder

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

	"github.com/coder/websocket"
	"github.com/gbdevw/gowstestclient/wstestclient/wsadapters"
)

// Adapter for coder/websocket library
type CoderWebsocketConnectionAdapter struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Dial options to use when opening a connection
	opts *websocket.DialOptions
	// Maximum message size. 0 keeps the library default (32768 bytes).
	readLimit int64
	// Internal mutex
	mu sync.Mutex
}

// # Description
//
// Factory which creates a new CoderWebsocketConnectionAdapter.
//
// # Inputs
//
//   - opts: Optional dial options to use when calling Dial method. Can be nil.
//   - readLimit: Maximum size of a received message in bytes. 0 keeps the library default.
//
// # Returns
//
// New CoderWebsocketConnectionAdapter
func NewCoderWebsocketConnectionAdapter(opts *websocket.DialOptions, readLimit int64) *CoderWebsocketConnectionAdapter {
	return &CoderWebsocketConnectionAdapter{
		opts:      opts,
		readLimit: readLimit,
	}
}

// # Description
//
// Dial opens a connection to the websocket server and performs a WebSocket handshake.
//
// # Returns
//
// The server response to websocket handshake or an error if any.
func (adapter *CoderWebsocketConnectionAdapter) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	select {
	case <-ctx.Done():
		// Shortcut if context is done (timeout/cancel)
		return nil, ctx.Err()
	default:
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		if adapter.conn != nil {
			return nil, fmt.Errorf("a connection has already been established")
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
}

// # Description
//
// Send a close message with the provided status code and reason, wait for the server close
// message and drop the connection.
func (adapter *CoderWebsocketConnectionAdapter) Close(ctx context.Context, code wsadapters.StatusCode, reason string) error {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return fmt.Errorf("close failed: %w", wsadapters.ErrNoConnection)
	}
	conn := adapter.conn
	adapter.conn = nil
	err := conn.Close(convertToCoderStatusCodes(code), reason)
	if err != nil {
		// Release the socket even if the close handshake did not complete
		conn.CloseNow()
		if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "already wrote close") {
			return fmt.Errorf("failed to close WebSocket: %w", net.ErrClosed)
		}
	}
	return err
}

// # Description
//
// Send a Ping message and block until the Pong is received. A concurrent goroutine must call Read
// so control frames are processed.
func (adapter *CoderWebsocketConnectionAdapter) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("ping failed: %w", wsadapters.ErrNoConnection)
		}
		return conn.Ping(ctx)
	}
}

// # Description
//
// Read a single message from the websocket server. Read blocks until a message is received or
// until the connection closes.
//
// Cancelling the provided context while Read is blocked closes the connection (library
// behaviour).
func (adapter *CoderWebsocketConnectionAdapter) Read(ctx context.Context) (wsadapters.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return -1, nil, fmt.Errorf("read failed: %w", wsadapters.ErrNoConnection)
		}
		coderMsgType, msg, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				// Error is not because connection was closed
				return -1, nil, err
			}
			// Drop the existing connection so a new one can be established
			adapter.drop(conn)
			if status != -1 {
				return -1, nil, wsadapters.WebsocketCloseError{
					Code:   convertFromCoderStatusCodes(status),
					Reason: err.Error(),
					Err:    err,
				}
			}
			return -1, nil, wsadapters.WebsocketCloseError{
				Code:   wsadapters.AbnormalClosure,
				Reason: "websocket connection abnormal closure",
				Err:    err,
			}
		}
		return convertFromCoderMsgTypes(coderMsgType), msg, nil
	}
}

// # Description
//
// Write a single message to the websocket server. Write blocks until message is sent to the
// server or until an error occurs.
func (adapter *CoderWebsocketConnectionAdapter) Write(ctx context.Context, msgType wsadapters.MessageType, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("write failed: %w", wsadapters.ErrNoConnection)
		}
		return conn.Write(ctx, convertToCoderMsgTypes(msgType), msg)
	}
}

// Return the underlying *websocket.Conn if any.
func (adapter *CoderWebsocketConnectionAdapter) GetUnderlyingWebsocketConnection() any {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return nil
	}
	return adapter.conn
}

// Return current connection under lock so other goroutines can keep using the adapter while
// a call is blocked on the connection.
func (adapter *CoderWebsocketConnectionAdapter) current() *websocket.Conn {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

// Drop the provided connection if it is still the current one.
func (adapter *CoderWebsocketConnectionAdapter) drop(conn *websocket.Conn) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == conn {
		adapter.conn = nil
	}
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Convert a status code to coder enum. Unknown codes become websocket.StatusAbnormalClosure.
func convertToCoderStatusCodes(code wsadapters.StatusCode) websocket.StatusCode {
	switch code {
	case wsadapters.NormalClosure:
		return websocket.StatusNormalClosure
	case wsadapters.GoingAway:
		return websocket.StatusGoingAway
	case wsadapters.ProtocolError:
		return websocket.StatusProtocolError
	case wsadapters.UnsupportedData:
		return websocket.StatusUnsupportedData
	case wsadapters.NoStatusReceived:
		return websocket.StatusNoStatusRcvd
	case wsadapters.InvalidFramePayloadData:
		return websocket.StatusInvalidFramePayloadData
	case wsadapters.PolicyViolation:
		return websocket.StatusPolicyViolation
	case wsadapters.MessageTooBig:
		return websocket.StatusMessageTooBig
	case wsadapters.MandatoryExtension:
		return websocket.StatusMandatoryExtension
	case wsadapters.InternalError:
		return websocket.StatusInternalError
	case wsadapters.TLSHandshake:
		return websocket.StatusTLSHandshake
	default:
		return websocket.StatusAbnormalClosure
	}
}

// Convert a status code from coder enum. Unknown codes become wsadapters.AbnormalClosure.
func convertFromCoderStatusCodes(code websocket.StatusCode) wsadapters.StatusCode {
	switch code {
	case websocket.StatusNormalClosure:
		return wsadapters.NormalClosure
	case websocket.StatusGoingAway:
		return wsadapters.GoingAway
	case websocket.StatusProtocolError:
		return wsadapters.ProtocolError
	case websocket.StatusUnsupportedData:
		return wsadapters.UnsupportedData
	case websocket.StatusNoStatusRcvd:
		return wsadapters.NoStatusReceived
	case websocket.StatusInvalidFramePayloadData:
		return wsadapters.InvalidFramePayloadData
	case websocket.StatusPolicyViolation:
		return wsadapters.PolicyViolation
	case websocket.StatusMessageTooBig:
		return wsadapters.MessageTooBig
	case websocket.StatusMandatoryExtension:
		return wsadapters.MandatoryExtension
	case websocket.StatusInternalError:
		return wsadapters.InternalError
	case websocket.StatusTLSHandshake:
		return wsadapters.TLSHandshake
	default:
		return wsadapters.AbnormalClosure
	}
}

// Convert message types to coder types. Defaults to binary.
func convertToCoderMsgTypes(msgType wsadapters.MessageType) websocket.MessageType {
	if msgType == wsadapters.Text {
		return websocket.MessageText
	}
	return websocket.MessageBinary
}

// Convert message types from coder types. Defaults to binary.
func convertFromCoderMsgTypes(msgType websocket.MessageType) wsadapters.MessageType {
	if msgType == websocket.MessageText {
		return wsadapters.Text
	}
	return wsadapters.Binary
}
