package transport

import (
	"context"
	"errors"
	"net/http"
)

// ErrConnClosed is returned when a closed connection is used or closed again.
var ErrConnClosed = errors.New("connection closed")

// Request is one HTTP request prepared by a script.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   string
	// Synchronous records the mode requested by the script. Send always blocks.
	Synchronous bool
}

// Response is the decoded result of a round trip.
type Response struct {
	Status int
	Header http.Header
	// Body is the response body converted to UTF-8.
	Body string
}

// Conn is a connection owned by exactly one CouchHTTP object.
type Conn interface {
	// Send performs the request and blocks until a response or error.
	Send(ctx context.Context, req *Request) (*Response, error)
	// Close releases the connection. It returns ErrConnClosed on reuse.
	Close() error
}

// Transport opens connections.
type Transport interface {
	Open() (Conn, error)
}
