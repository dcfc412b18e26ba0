package couchhttp

import "errors"

var (
	// ErrInstall is returned when the CouchHTTP class cannot be defined.
	ErrInstall = errors.New("failed to initialize CouchHTTP class")

	ErrNotOpen       = errors.New("request has not been opened")
	ErrNoResponse    = errors.New("no response has been received")
	ErrInvalidMethod = errors.New("invalid request method")
	ErrInvalidURL    = errors.New("invalid request url")
)
