// Package echowsserver contains a websocket server which echoes every data message it receives.
// It is the peer used to exercise the websocket test client.
package echowsserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Default address used when no HTTP server is provided.
const DefaultAddr = "localhost:8080"

// Structure for the websocket server
type EchoWebsocketServer struct {
	// Underlying http.Server
	httpServer *http.Server
	// Websocket upgrader
	upgrader websocket.Upgrader
	// Indicates that server has started
	started bool
	// Listener bound when server starts
	listener net.Listener
	// Whether the running server serves TLS. Set by Start before serving begins.
	secure bool
	// Context bound to websocket server lifetime
	serverCtx context.Context
	// Cancel function used to stop server
	cancelServerCtx context.CancelFunc
	// Internal mutex used to coordinate start/stop
	startMu *sync.Mutex
	// Active client sessions
	sessions map[uuid.UUID]*websocket.Conn
	// Mutex which protects sessions
	sessionsMu *sync.Mutex
	// Logger
	logger *zap.Logger
}

// # Description
//
// Factory which creates a new, non-started EchoWebsocketServer.
//
// # Inputs
//
//   - httpServer: The underlying HTTP Server to use. Its handler is overridden with the echo
//     server. If nil, a server listening on localhost:8080 is used. Use ":0" or "localhost:0" as
//     address to get a random port. If TLSConfig carries certificates, the server serves TLS.
//
//   - logger: Logger to use. Nop logger is used if nil.
//
// # Returns
//
// A new, non-started EchoWebsocketServer.
func NewEchoWebsocketServer(httpServer *http.Server, logger *zap.Logger) *EchoWebsocketServer {
	if httpServer == nil {
		httpServer = &http.Server{Addr: DefaultAddr}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	wssrv := &EchoWebsocketServer{
		httpServer: httpServer,
		upgrader: websocket.Upgrader{
			// Negotiate permessage-deflate when the client asks for it
			EnableCompression: true,
		},
		startMu:    &sync.Mutex{},
		sessions:   map[uuid.UUID]*websocket.Conn{},
		sessionsMu: &sync.Mutex{},
		logger:     logger,
	}
	httpServer.Handler = wssrv
	return wssrv
}

// # Description
//
// Bind the server address and start accepting incoming websocket connections.
//
// # Returns
//
// An error if the server has already started or if the address cannot be bound.
func (srv *EchoWebsocketServer) Start() error {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.started {
		return fmt.Errorf("server already started")
	}
	ln, err := net.Listen("tcp", srv.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.httpServer.Addr, err)
	}
	// Serve mutates httpServer.TLSConfig: read it only before serving starts
	srv.secure = srv.httpServer.TLSConfig != nil && len(srv.httpServer.TLSConfig.Certificates) > 0
	if srv.secure {
		cfg := srv.httpServer.TLSConfig.Clone()
		// Websocket upgrade needs HTTP/1.1
		cfg.NextProtos = []string{"http/1.1"}
		ln = tls.NewListener(ln, cfg)
	}
	srv.listener = ln
	srv.serverCtx, srv.cancelServerCtx = context.WithCancel(context.Background())
	srv.started = true
	go func() {
		err := srv.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error("echo server stopped unexpectedly", zap.Error(err))
		}
	}()
	srv.logger.Info("echo server started", zap.String("addr", ln.Addr().String()), zap.Bool("tls", srv.secure))
	return nil
}

// # Description
//
// Stop the websocket server and close all client connections.
//
// # Returns
//
// Nil in case of success, an error otherwise.
func (srv *EchoWebsocketServer) Stop() error {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return fmt.Errorf("server not started")
	}
	// Cancel server context so close watchdogs drop hijacked connections
	srv.cancelServerCtx()
	srv.started = false
	srv.logger.Info("echo server stopped")
	return srv.httpServer.Close()
}

// # Description
//
// Return the address the server listens on or an empty string if the server is not started.
func (srv *EchoWebsocketServer) Addr() string {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return ""
	}
	return srv.listener.Addr().String()
}

// # Description
//
// Return the websocket URL clients can use to reach the server (ws:// or wss://).
func (srv *EchoWebsocketServer) URL() string {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return ""
	}
	if srv.secure {
		return "wss://" + srv.listener.Addr().String()
	}
	return "ws://" + srv.listener.Addr().String()
}

// # Description
//
// Send a close message with the provided code and reason to all connected clients.
func (srv *EchoWebsocketServer) CloseClientConnections(code int, reason string) {
	srv.sessionsMu.Lock()
	defer srv.sessionsMu.Unlock()
	for id, conn := range srv.sessions {
		err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(5*time.Second))
		if err != nil {
			srv.logger.Warn("failed to send close message", zap.Stringer("session_id", id), zap.Error(err))
		}
	}
}

// # Description
//
// Return the number of connected clients.
func (srv *EchoWebsocketServer) SessionCount() int {
	srv.sessionsMu.Lock()
	defer srv.sessionsMu.Unlock()
	return len(srv.sessions)
}

// # Description
//
// Server handler which accepts incoming websocket connections.
func (srv *EchoWebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader has already replied to the client
		srv.logger.Warn("an error occured while accepting client connection", zap.Error(err))
		return
	}
	id := uuid.New()
	srv.sessionsMu.Lock()
	srv.sessions[id] = c
	srv.sessionsMu.Unlock()
	srv.logger.Debug("new client connection", zap.Stringer("session_id", id), zap.String("remote", r.RemoteAddr))
	done := make(chan struct{})
	go srv.closeWatchdog(srv.serverCtx, c, done)
	go srv.runClientSession(id, c, done)
}

// Manage the client session and echo messages until the connection is closed.
func (srv *EchoWebsocketServer) runClientSession(id uuid.UUID, conn *websocket.Conn, done chan struct{}) {
	logger := srv.logger.With(zap.Stringer("session_id", id))
	defer func() {
		srv.sessionsMu.Lock()
		delete(srv.sessions, id)
		srv.sessionsMu.Unlock()
		close(done)
		conn.Close()
	}()
	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) ||
				errors.Is(err, io.EOF) ||
				strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				logger.Debug("connection closed", zap.Error(err))
				return
			}
			logger.Warn("read error", zap.Error(err))
			return
		}
		logger.Debug("message received", zap.Int("type", mt), zap.Int("size", len(message)))
		err = conn.WriteMessage(mt, message)
		if err != nil {
			logger.Warn("write error", zap.Error(err))
			return
		}
	}
}

// Wait for the server context to be canceled or the session to end and close the connection.
func (srv *EchoWebsocketServer) closeWatchdog(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	select {
	case <-ctx.Done():
		conn.Close()
	case <-done:
	}
}
