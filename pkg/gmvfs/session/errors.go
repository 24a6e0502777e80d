package session

import (
	"errors"
	"fmt"

	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// ErrSessionClosed is returned by round trips on a session that has shut
// down or crashed, and by round trips still waiting when that happens.
var ErrSessionClosed = errors.New("session closed")

// ErrAlreadyShuttingDown is returned by Shutdown when another caller is
// already shutting the session down and ctx ends before it finishes.
var ErrAlreadyShuttingDown = errors.New("session is already shutting down")

// StartupError is returned by Start when the server could not be launched or
// did not complete the handshake. Detail is set when the server itself
// reported the failure.
type StartupError struct {
	Detail *protocol.ErrorDetail
	Err    error
}

func (e *StartupError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("project server failed to start: %s", e.Detail)
	}
	return fmt.Sprintf("project server failed to start: %v", e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
