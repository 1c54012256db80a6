package wstestclient

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer and meter
	pkgName = "gowstestclient.wstestclient"
	// Package version
	pkgVersion = "0.0.0"

	// Namespace used by spans, events and attributes
	namespace = "wstestclient"

	// Name of span used to trace Handshake public method
	spanHandshake = namespace + ".handshake"
	// Name of span used to trace SendText public method
	spanSendText = namespace + ".send_text"
	// Name of span used to trace Ping public method
	spanPing = namespace + ".ping"
	// Name of span used to trace ShutDown public method
	spanShutdown = namespace + ".shutdown"
	// Name of span used to trace the receive loop of a connection
	spanReceive = namespace + ".receive"

	// Event used in receive span when a text message is stored
	eventTextReceived = namespace + ".text_received"
	// Event used in receive span when a binary message is dropped
	eventBinaryDropped = namespace + ".binary_dropped"
	// Event used in receive span when the connection is closed
	eventConnectionClosed = namespace + ".connection_closed"

	// Attribute used to store target URL
	attrUrl = namespace + ".url"
	// Attribute used to store client state when an operation starts
	attrState = namespace + ".state"
	// Attribute used to store websocket library name
	attrLibrary = namespace + ".library"
	// Attribute used to store connection session ID
	attrSessionId = namespace + ".session_id"
	// Attribute used to indicate message length
	attrMsgLength = namespace + ".message.length"
	// Attribute used to indicate received message sequence number
	attrMsgSeq = namespace + ".message.seq"
	// Attribute used to indicate close code
	attrCloseCode = namespace + ".close_code"
	// Attribute used to indicate close reason
	attrCloseReason = namespace + ".close_reason"
)

// # Description
//
// The function records the input error in the provided span using span.RecordError(err) and set
// the span status with the provided code and description. The function returns the provided error.
//
// # Usage tips
//
// The function is meant to replace code blocks like this one:
//
//	if err != nil {
//			span.RecordError(err)
//			span.SetStatus(code, description)
//			return err
//	}
//
// By:
//
//	if err != nil {
//			return handleError(err, span, code, description)
//	}
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}

// Same as handleError but sets an Ok status when err is nil.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		return handleError(err, span, codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
