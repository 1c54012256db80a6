package wstestclient

import (
	"net/http"

	"github.com/gbdevw/gowstestclient/wstestclient/wsadapters"
	"github.com/go-playground/validator/v10"
)

// Names of the websocket libraries a test client can use.
const (
	// nhooyr.io/websocket
	LibraryNhooyr = "nhooyr"
	// github.com/gorilla/websocket
	LibraryGorilla = "gorilla"
	// github.com/coder/websocket
	LibraryCoder = "coder"
)

// Defines configuration options for the websocket test client.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type WebsocketTestClientConfigurationOptions struct {
	// Websocket library used to connect to the server: nhooyr, gorilla or coder.
	//
	// Defaults to nhooyr.
	Library string `validate:"oneof=nhooyr gorilla coder"`
	// If true, the client does not verify the server certificate chain and host name when it
	// connects to a wss endpoint. Only meant for tests against servers with self-signed
	// certificates.
	//
	// Defaults to false.
	AllowInsecureTLS bool
	// If true, the client offers the permessage-deflate extension during the handshake.
	//
	// Defaults to true.
	CompressionEnabled bool
	// Subprotocols offered to the server during the handshake.
	//
	// Defaults to none.
	Subprotocols []string
	// Additional headers sent with the HTTP upgrade request.
	//
	// Defaults to none.
	HTTPHeader http.Header
	// Maximum size (bytes) of a received message. Larger messages close the connection.
	//
	// Defaults to 32768. 0 uses the library default.
	ReadLimitBytes int64 `validate:"gte=0"`
	// Delay (milliseconds) to connect and complete the opening handshake.
	//
	// Defaults to 30000 - 0 disables the timeout.
	HandshakeTimeoutMs int64 `validate:"gte=0"`
	// Delay (milliseconds) to write a message.
	//
	// Defaults to 30000 - 0 disables the timeout.
	SendTimeoutMs int64 `validate:"gte=0"`
	// Delay (milliseconds) to complete the closing handshake and stop the receive loop.
	//
	// Defaults to 10000 - 0 disables the timeout.
	ShutdownTimeoutMs int64 `validate:"gte=0"`
	// Connection adapter used instead of the one built for Library. Not validated.
	connectionAdapter wsadapters.WebsocketConnectionAdapterInterface
}

// # Description
//
// Set opts.Library and return the modified object. Method does not validate inputs.
//
// # Library
//
// Websocket library used by the client: nhooyr (default), gorilla or coder.
//
// # Return
//
// The modified options.
func (opts *WebsocketTestClientConfigurationOptions) WithLibrary(
	value string) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.Library = value
	return opts
}

// # Description
//
// Set opts.AllowInsecureTLS and return the modified object.
//
// # AllowInsecureTLS
//
// When true, server certificates are not verified for wss endpoints. This must only be enabled
// against test servers.
//
// Defaults to false.
//
// # Return
//
// The modified options.
func (opts *WebsocketTestClientConfigurationOptions) WithAllowInsecureTLS(
	value bool) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.AllowInsecureTLS = value
	return opts
}

// Set opts.CompressionEnabled (permessage-deflate) and return the modified object.
func (opts *WebsocketTestClientConfigurationOptions) WithCompressionEnabled(
	value bool) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.CompressionEnabled = value
	return opts
}

// Set opts.Subprotocols and return the modified object.
func (opts *WebsocketTestClientConfigurationOptions) WithSubprotocols(
	value ...string) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.Subprotocols = value
	return opts
}

// Set opts.HTTPHeader and return the modified object.
func (opts *WebsocketTestClientConfigurationOptions) WithHTTPHeader(
	value http.Header) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.HTTPHeader = value
	return opts
}

// # Description
//
// Set opts.ReadLimitBytes and return the modified object. Method does not validate inputs.
//
// # ReadLimitBytes
//
// Maximum size of a received message. 0 keeps the library default.
//
// Must be greater or equal to 0. Defaults to 32768.
//
// # Return
//
// The modified options.
func (opts *WebsocketTestClientConfigurationOptions) WithReadLimitBytes(
	value int64) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.ReadLimitBytes = value
	return opts
}

// # Description
//
// Set opts.HandshakeTimeoutMs and return the modified object. Method does not validate inputs.
//
// # HandshakeTimeoutMs
//
// This option defines the maximum delay (milliseconds) to connect to the server and complete the
// opening handshake. A value of 0 disables the timeout.
//
// Must be greater or equal to 0. Defaults to 30 seconds (= 30000).
//
// # Return
//
// The modified options.
func (opts *WebsocketTestClientConfigurationOptions) WithHandshakeTimeoutMs(
	value int64) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.HandshakeTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.SendTimeoutMs and return the modified object. Method does not validate inputs.
//
// # SendTimeoutMs
//
// This option defines the maximum delay (milliseconds) to write a message. A value of 0
// disables the timeout.
//
// Must be greater or equal to 0. Defaults to 30 seconds (= 30000).
//
// # Return
//
// The modified options.
func (opts *WebsocketTestClientConfigurationOptions) WithSendTimeoutMs(
	value int64) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.SendTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.ShutdownTimeoutMs and return the modified object. Method does not validate inputs.
//
// # ShutdownTimeoutMs
//
// This option defines the maximum delay (milliseconds) to complete the closing handshake and
// wait for the receive loop to exit. A value of 0 disables the timeout.
//
// Must be greater or equal to 0. Defaults to 10 seconds (= 10000).
//
// # Return
//
// The modified options.
func (opts *WebsocketTestClientConfigurationOptions) WithShutdownTimeoutMs(
	value int64) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.ShutdownTimeoutMs = value
	return opts
}

// # Description
//
// Use the provided connection adapter instead of building one for opts.Library. Library
// specific options (compression, headers, subprotocols, TLS, read limit) are then up to the
// provided adapter. A nil value restores the default behavior.
//
// # Return
//
// The modified options.
func (opts *WebsocketTestClientConfigurationOptions) WithConnectionAdapter(
	value wsadapters.WebsocketConnectionAdapterInterface) *WebsocketTestClientConfigurationOptions {
	// Set and return
	opts.connectionAdapter = value
	return opts
}

// # Description
//
// Factory which creates a new WebsocketTestClientConfigurationOptions object with nice defaults.
// Settings can then be modified by the user by using With*** methods.
//
// # Default settings
//
//   - Library = nhooyr
//   - AllowInsecureTLS = false , server certificates are verified.
//   - CompressionEnabled = true , permessage-deflate is offered to the server.
//   - ReadLimitBytes = 32768
//   - HandshakeTimeoutMs = 30000 (30 seconds).
//   - SendTimeoutMs = 30000 (30 seconds).
//   - ShutdownTimeoutMs = 10000 (10 seconds).
func NewWebsocketTestClientConfigurationOptions() *WebsocketTestClientConfigurationOptions {
	return &WebsocketTestClientConfigurationOptions{
		Library:            LibraryNhooyr,
		AllowInsecureTLS:   false,
		CompressionEnabled: true,
		ReadLimitBytes:     32768,
		HandshakeTimeoutMs: 30000,
		SendTimeoutMs:      30000,
		ShutdownTimeoutMs:  10000,
	}
}

// # Description
//
// Helper function which validates WebsocketTestClientConfigurationOptions. Options are valid if:
//   - opts is not nil
//   - opts.Library is one of nhooyr, gorilla or coder
//   - opts.ReadLimitBytes is greater or equal to 0
//   - opts.HandshakeTimeoutMs, opts.SendTimeoutMs and opts.ShutdownTimeoutMs are greater or equal
//     to 0
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
// You will need to assert the error if it's not nil eg. err.(validator.ValidationErrors) to access
// the array of errors.
func Validate(opts *WebsocketTestClientConfigurationOptions) error {
	// Validate
	return validator.New().Struct(opts)
}
