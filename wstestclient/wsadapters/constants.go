package wsadapters

/*************************************************************************************************/
/* WEBSOCKET RELATED CONSTANTS                                                                   */
/*************************************************************************************************/

// Close status codes defined by RFC6455.
//
// https://www.rfc-editor.org/rfc/rfc6455.html#section-7.4.1
type StatusCode int

const (
	// Purpose of the connection has been fulfilled.
	NormalClosure StatusCode = 1000
	// Endpoint is going away (server shutdown, page left, ...).
	GoingAway StatusCode = 1001
	// Endpoint terminates the connection because of a protocol error.
	ProtocolError StatusCode = 1002
	// Endpoint received a type of data it cannot accept.
	UnsupportedData StatusCode = 1003
	// Reserved. No status code was present in the close message.
	NoStatusReceived StatusCode = 1005
	// Reserved. Connection was closed without a close message.
	AbnormalClosure StatusCode = 1006
	// Message payload was not consistent with its type (non UTF-8 text, ...).
	InvalidFramePayloadData StatusCode = 1007
	// Generic code for messages which violate the endpoint policy.
	PolicyViolation StatusCode = 1008
	// Message is too big to be processed.
	MessageTooBig StatusCode = 1009
	// Client expected the server to negotiate an extension it did not negotiate.
	MandatoryExtension StatusCode = 1010
	// Server hit an unexpected condition.
	InternalError StatusCode = 1011
	// Reserved. TLS handshake failed.
	TLSHandshake StatusCode = 1015
)

// Data message types. Values mimic RFC6455 opcodes. Control frames are handled by the adapters.
//
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
type MessageType int

const (
	// Text message (opcode 0x1)
	Text MessageType = iota + 1
	// Binary message (opcode 0x2)
	Binary
)

// Return a human readable name for the message type.
func (msgType MessageType) String() string {
	switch msgType {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}
