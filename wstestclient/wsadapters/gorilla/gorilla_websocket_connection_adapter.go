// Package wsadaptergorilla contains a WebsocketConnectionAdapterInterface implementation for
// gorilla/websocket library (https://github.com/gorilla/websocket).
package wsadaptergorilla

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
	"time"

	"github.com/gbdevw/gowstestclient/wstestclient/wsadapters"
	"github.com/gorilla/websocket"
)

// Delay granted to the server to answer a close message before the socket is released.
const closeGracePeriod = 5 * time.Second

// Adapter for gorilla/websocket library
type GorillaWebsocketConnectionAdapter struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Dialer to use when opening a connection
	dialer *websocket.Dialer
	// Headers to use when opening a connection
	requestHeader http.Header
	// Maximum message size. 0 means no limit.
	readLimit int64
	// Internal mutex
	mu sync.Mutex
	// Gorilla connections support one concurrent writer
	writeMu sync.Mutex
	// Internal channel of channels used to manage ping/pong
	//
	// The channel that is sent is used to wait for pong or an error.
	pingRequests chan chan error
}

// # Description
//
// Factory which creates a new GorillaWebsocketConnectionAdapter.
//
// # Inputs
//
//   - dialer: Optional dialer to use. If nil, websocket.DefaultDialer is used.
//   - requestHeader: Headers used during Dial (Origin, Cookie, ...). Can be nil.
//   - readLimit: Maximum size of a received message in bytes. 0 means no limit.
//
// # Returns
//
// New GorillaWebsocketConnectionAdapter
func NewGorillaWebsocketConnectionAdapter(dialer *websocket.Dialer, requestHeader http.Header, readLimit int64) *GorillaWebsocketConnectionAdapter {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &GorillaWebsocketConnectionAdapter{
		dialer:        dialer,
		requestHeader: requestHeader,
		readLimit:     readLimit,
		// Use a chan with capacity so ping requests can be recorded before sending ping message.
		pingRequests: make(chan chan error, 10),
	}
}

// # Description
//
// Dial opens a connection to the websocket server and performs a WebSocket handshake.
func (adapter *GorillaWebsocketConnectionAdapter) Dial(ctx context.Context, target url.URL) (*http.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		if adapter.conn != nil {
			return nil, fmt.Errorf("a connection has already been established")
		}
		conn, res, err := adapter.dialer.DialContext(ctx, target.String(), adapter.requestHeader)
		if err != nil {
			return res, err
		}
		if adapter.readLimit > 0 {
			conn.SetReadLimit(adapter.readLimit)
		}
		conn.SetPongHandler(func(string) error {
			// Unlock one pending Ping call
			propagateToFirstActiveListener(adapter.pingRequests, nil)
			return nil
		})
		adapter.conn = conn
		return res, nil
	}
}

// # Description
//
// Send a close message and drop the connection. The socket is released once the reader observes
// the server close message or after a grace period, whichever comes first.
func (adapter *GorillaWebsocketConnectionAdapter) Close(ctx context.Context, code wsadapters.StatusCode, reason string) error {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return fmt.Errorf("close failed: %w", wsadapters.ErrNoConnection)
	}
	conn := adapter.conn
	adapter.conn = nil
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(closeGracePeriod)
	}
	err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(int(code), reason), deadline)
	// Pending Ping calls return the close error
	propagateToAllActiveListener(adapter.pingRequests, wsadapters.WebsocketCloseError{
		Code:   code,
		Reason: reason,
		Err:    fmt.Errorf("client closed the connection"),
	})
	time.AfterFunc(closeGracePeriod, func() { conn.Close() })
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to send close message: %w", err)
	}
	return nil
}

// # Description
//
// Send a Ping message to the server and block until a Pong is received. A separate goroutine
// must continuously call Read so the pong handler runs.
func (adapter *GorillaWebsocketConnectionAdapter) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("ping failed: %w", wsadapters.ErrNoConnection)
		}
		// Capacity of 1 so a pong processed before the select below is not lost
		pong := make(chan error, 1)
		adapter.pingRequests <- pong
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(60*time.Second))
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-pong:
			return err
		}
	}
}

// # Description
//
// Read a single message from the websocket server. Control frames are processed by gorilla
// handlers. The provided context is only checked before reading: gorilla reads cannot be
// interrupted by a context.
func (adapter *GorillaWebsocketConnectionAdapter) Read(ctx context.Context) (wsadapters.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return -1, nil, fmt.Errorf("read failed: %w", wsadapters.ErrNoConnection)
		}
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			var closeErr wsadapters.WebsocketCloseError
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				closeErr = wsadapters.WebsocketCloseError{
					Code:   wsadapters.StatusCode(ce.Code),
					Reason: err.Error(),
					Err:    err,
				}
			case isConnectionLost(err):
				closeErr = wsadapters.WebsocketCloseError{
					Code:   wsadapters.AbnormalClosure,
					Reason: err.Error(),
					Err:    err,
				}
			default:
				return -1, nil, err
			}
			// Connection is unusable: release it and notify pending Ping calls
			conn.Close()
			adapter.drop(conn)
			propagateToAllActiveListener(adapter.pingRequests, closeErr)
			return -1, nil, closeErr
		}
		if msgType == websocket.TextMessage {
			return wsadapters.Text, msg, nil
		}
		return wsadapters.Binary, msg, nil
	}
}

// # Description
//
// Write a single message to the websocket server. The context deadline, if any, is used as write
// deadline.
func (adapter *GorillaWebsocketConnectionAdapter) Write(ctx context.Context, msgType wsadapters.MessageType, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("write failed: %w", wsadapters.ErrNoConnection)
		}
		adapter.writeMu.Lock()
		defer adapter.writeMu.Unlock()
		deadline, _ := ctx.Deadline()
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		gorillaMsgType := websocket.BinaryMessage
		if msgType == wsadapters.Text {
			gorillaMsgType = websocket.TextMessage
		}
		return conn.WriteMessage(gorillaMsgType, msg)
	}
}

// Return the underlying *websocket.Conn if any.
func (adapter *GorillaWebsocketConnectionAdapter) GetUnderlyingWebsocketConnection() any {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return nil
	}
	return adapter.conn
}

func (adapter *GorillaWebsocketConnectionAdapter) current() *websocket.Conn {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

func (adapter *GorillaWebsocketConnectionAdapter) drop(conn *websocket.Conn) {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == conn {
		adapter.conn = nil
	}
}

// Check whether the error means the underlying connection is gone.
func isConnectionLost(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(strings.ToLower(err.Error()), "use of closed network connection")
}

// Propagate a notification to the first writeable (non-blocking write) channel received.
//
// The function returns false if the notification could not be propagated: either because no
// channel was received or because all received channels were not writeable.
func propagateToFirstActiveListener(listeners chan chan error, notification error) bool {
	for {
		select {
		case listener := <-listeners:
			select {
			case listener <- notification:
				return true
			default:
				// Listener already notified - try the next one
				continue
			}
		default:
			return false
		}
	}
}

// Propagate a notification to all writeable (non-blocking write) channels received through
// the provided channel.
func propagateToAllActiveListener(listeners chan chan error, notification error) {
	for {
		select {
		case listener := <-listeners:
			select {
			case listener <- notification:
			default:
			}
		default:
			return
		}
	}
}
