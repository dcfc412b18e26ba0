package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInitialized is returned by Initialize while an engine is live.
	ErrAlreadyInitialized = errors.New("engine already initialized")
	// ErrNotInitialized is returned when an engine is used after Shutdown.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrRootExists is returned by a second NewRootContext call.
	ErrRootExists = errors.New("root context already exists")
	// ErrLiveContexts is returned by Shutdown while contexts are open.
	ErrLiveContexts = errors.New("engine has live contexts")
	// ErrClosed is returned when a closed context or released namespace is used.
	ErrClosed = errors.New("context closed")

	ErrPermissionDenied = errors.New("sandboxed evaluation is not permitted")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidSandbox   = errors.New("invalid sandbox handle")
	ErrNotTransferable  = errors.New("value cannot be transferred out of the sandbox")
	ErrSandboxTimeout   = errors.New("sandbox time budget exceeded")
)

// ExitError is returned by Run after a script called quit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("quit(%d)", e.Code)
}
