package wstestclient

// Lifecycle state of the connection managed by a WebsocketTestClient.
//
//	UNCONNECTED -> HANDSHAKING -> OPEN -> CLOSING -> CLOSED
//
// A failed handshake goes back to UNCONNECTED. ShutDown moves any state to CLOSED.
type ConnectionState int32

const (
	Unconnected ConnectionState = iota
	Handshaking
	Open
	Closing
	Closed
)

func (state ConnectionState) String() string {
	switch state {
	case Unconnected:
		return "UNCONNECTED"
	case Handshaking:
		return "HANDSHAKING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
