package wstestclient

import (
	"errors"
	"fmt"
)

/*************************************************************************************************/
/* SENTINEL ERRORS                                                                               */
/*************************************************************************************************/

var (
	// Error returned when an operation is called while the client is not in the required state.
	ErrInvalidState = errors.New("invalid client state")
	// Error returned when the connection ends while a caller waits for a message.
	ErrConnectionClosed = errors.New("connection is closed")
	// Error wrapped by ConfigurationError when the URI scheme is not ws or wss.
	ErrUnsupportedScheme = errors.New("only WS(S) is supported")
)

/*************************************************************************************************/
/* CONFIGURATION ERROR                                                                           */
/*************************************************************************************************/

// Specific error type for errors caused by the client configuration (target URI, options).
// Configuration errors are terminal: retrying with the same configuration will fail again.
type ConfigurationError struct {
	// Embedded error
	Err error
}

func (err ConfigurationError) Error() string {
	return fmt.Sprintf("invalid websocket test client configuration: %v", err.Err)
}

func (err ConfigurationError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* HANDSHAKE ERROR                                                                               */
/*************************************************************************************************/

// Specific error type for errors which occur while the client connects to the server and performs
// the opening handshake.
type HandshakeError struct {
	// HTTP status code of the server response if one was received, 0 otherwise.
	StatusCode int
	// Embedded error
	Err error
}

func (err HandshakeError) Error() string {
	if err.StatusCode != 0 {
		return fmt.Sprintf("websocket handshake failed (HTTP %d): %v", err.StatusCode, err.Err)
	}
	return fmt.Sprintf("websocket handshake failed: %v", err.Err)
}

func (err HandshakeError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* SHUTDOWN ERROR                                                                                */
/*************************************************************************************************/

// Specific error type for errors which occur while the client closes the connection. The client
// is CLOSED when such an error is returned.
type ShutdownError struct {
	// Embedded error
	Err error
}

func (err ShutdownError) Error() string {
	return fmt.Sprintf("websocket test client shutdown failed: %v", err.Err)
}

func (err ShutdownError) Unwrap() error {
	return err.Err
}
