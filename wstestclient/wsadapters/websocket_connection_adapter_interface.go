// Package wsadapters defines the contract the test client expects from the third party websocket
// library it delegates the protocol to, plus the library-neutral types shared by the adapters.
package wsadapters

import (
	"context"
	"net/http"
	"net/url"
)

// Interface which describes what the test client needs from the underlying websocket library.
//
// Adapters must be safe for concurrent use: the test client reads from one goroutine while the
// caller writes, pings or closes from another one.
type WebsocketConnectionAdapterInterface interface {
	// # Description
	//
	// Dial opens a connection to the websocket server and performs the websocket handshake.
	//
	// # Expected behaviour
	//
	//	- Dial MUST block until the handshake completes or fails. TLS and the HTTP upgrade are
	//	  handled by the underlying library.
	//
	//	- Dial MUST keep the connection internally. It is used later by the other methods.
	//
	//	- Dial MUST return an error when a connection is already up.
	//
	// # Inputs
	//
	//	- ctx: Context used for tracing/timeout purpose
	//	- target: Target server URL
	//
	// # Returns
	//
	// The server response to the handshake (can be set on failure) or an error if any.
	Dial(ctx context.Context, target url.URL) (*http.Response, error)
	// # Description
	//
	// Send a close message with the provided status code and reason and drop the connection.
	//
	// # Expected behaviour
	//
	//	- Close MUST block until the close message has been sent.
	//	- Close MUST return an error wrapping ErrNoConnection when no connection is up.
	//
	// # Returns
	//
	// nil in case of success, an error otherwise.
	Close(ctx context.Context, code StatusCode, reason string) error
	// # Description
	//
	// Send a ping and block until the pong is received, the context is done or the connection
	// closes. A concurrent goroutine MUST be calling Read so the pong gets processed.
	Ping(ctx context.Context) error
	// # Description
	//
	// Read a single data message. Control frames and fragmentation are handled by the library.
	//
	// # Expected behaviour
	//
	//	- Read MUST return a WebsocketCloseError when a close message is read or when the
	//	  connection is lost. In the latter case, 1006 is used as code.
	//
	//	- Read MUST drop the connection when it returns a WebsocketCloseError.
	//
	// # Returns
	//
	// The message type, the message payload and an error if any.
	Read(ctx context.Context) (MessageType, []byte, error)
	// # Description
	//
	// Write a single data message. Write blocks until the message is flushed or an error occurs.
	Write(ctx context.Context, msgType MessageType, msg []byte) error
	// # Description
	//
	// Return the underlying library connection if any. Returned value has to be type asserted.
	GetUnderlyingWebsocketConnection() any
}
