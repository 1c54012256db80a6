package wstestclient

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// Scheme used when the target URI has none
	defaultScheme = "ws"
	// Host used when the target URI has none
	defaultHost = "127.0.0.1"
	// Default port for ws
	defaultWsPort = 80
	// Default port for wss
	defaultWssPort = 443
)

// Target of a websocket test client, parsed from a ws:// or wss:// URI. Endpoint is immutable
// once parsed.
type Endpoint struct {
	// Lower-cased scheme: ws or wss
	Scheme string
	// Host name or IP address, without brackets for IPv6 addresses
	Host string
	// Explicit port or the scheme default (80 for ws, 443 for wss)
	Port int
	// Path (may be empty)
	Path string
	// Encoded query without the leading '?'
	RawQuery string
}

// # Description
//
// Parse the provided URI into an Endpoint.
//
// A URI without scheme is treated as a ws URI and a URI without host targets 127.0.0.1. The
// port defaults to 80 for ws and 443 for wss.
//
// # Return
//
// The parsed endpoint or a ConfigurationError if the URI cannot be parsed, has an unsupported
// scheme (wraps ErrUnsupportedScheme) or an invalid port.
func ParseEndpoint(rawURL string) (*Endpoint, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		rawURL = defaultScheme + "://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ConfigurationError{Err: err}
	}
	// url.Parse already lower-cases the scheme
	scheme := u.Scheme
	if scheme == "" {
		scheme = defaultScheme
	}
	var port int
	switch scheme {
	case "ws":
		port = defaultWsPort
	case "wss":
		port = defaultWssPort
	default:
		return nil, ConfigurationError{Err: fmt.Errorf("%w: got %q", ErrUnsupportedScheme, scheme)}
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, ConfigurationError{Err: fmt.Errorf("invalid port %q", p)}
		}
	}
	host := u.Hostname()
	if host == "" {
		host = defaultHost
	}
	return &Endpoint{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		Path:     u.EscapedPath(),
		RawQuery: u.RawQuery,
	}, nil
}

// Return true if the endpoint uses TLS (wss).
func (e *Endpoint) Secure() bool {
	return e.Scheme == "wss"
}

// Return host:port, with brackets around IPv6 hosts.
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Return the endpoint as a URL with an explicit port.
func (e *Endpoint) URL() url.URL {
	u := url.URL{
		Scheme:   e.Scheme,
		Host:     e.Address(),
		RawQuery: e.RawQuery,
	}
	// Keep the path as it was received
	if path, err := url.PathUnescape(e.Path); err == nil {
		u.Path = path
		if path != e.Path {
			u.RawPath = e.Path
		}
	} else {
		u.Path = e.Path
	}
	return u
}

func (e *Endpoint) String() string {
	u := e.URL()
	return u.String()
}
