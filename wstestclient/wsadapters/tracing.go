package wsadapters

// Constants used for tracing purpose
const (
	// Instrumentation library package name
	pkgName = "gowstestclient.wsadapters"
	// Instrumentation library package version
	pkgVersion = "0.0.0"
	// Namespace used by the spans, attributes and events
	namespace = "websocket"

	spanDial  = namespace + ".dial"
	spanClose = namespace + ".close"
	spanPing  = namespace + ".ping"
	spanWrite = namespace + ".write"
	spanRead  = namespace + ".read"

	// Name of event used when a message has been received
	eventReceived = namespace + ".message.received"

	attrUrl             = "url.full"
	attrCloseCode       = namespace + ".close.code"
	attrCloseReason     = namespace + ".close.reason"
	attrMessageByteSize = namespace + ".message.size"
	attrMessageType     = namespace + ".message.opcode"
	attrResponseStatus  = "http.response.status_code"
)
