package wsadapters

import (
	"errors"
	"fmt"
)

// Error returned by adapter methods which need an established connection.
var ErrNoConnection = errors.New("no connection is up")

/*************************************************************************************************/
/* WEBSOCKET CLOSE ERROR                                                                         */
/*************************************************************************************************/

// Error used by adapters to signal the connection has been closed.
type WebsocketCloseError struct {
	// Status code received or used when the connection was closed. 1006 when no close message
	// has been received.
	//
	// https://www.rfc-editor.org/rfc/rfc6455.html#section-7.1.5
	Code StatusCode
	// Optional close reason.
	//
	// https://www.rfc-editor.org/rfc/rfc6455.html#section-7.1.6
	Reason string
	// Error returned by the underlying library, if any.
	Err error
}

func (err WebsocketCloseError) Error() string {
	return fmt.Sprintf("connection has been closed: %d - %s", err.Code, err.Reason)
}

func (err WebsocketCloseError) Unwrap() error {
	return err.Err
}
