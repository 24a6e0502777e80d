package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// ErrDeclined is returned when the host did not confirm a destructive
// operation. Nothing was sent to the server.
var ErrDeclined = errors.New("operation declined")

// Reason says why a request was rejected before anything was dispatched.
type Reason string

const (
	ReasonEmptyName       Reason = "EmptyName"
	ReasonNameUnavailable Reason = "NameUnavailable"
	ReasonNamesExhausted  Reason = "NamesExhausted"
	ReasonUnknownEvent    Reason = "UnknownEvent"
	ReasonWrongNode       Reason = "WrongNode"
)

// ValidationError rejects a request before its primary command is sent,
// except for NamesExhausted which ends the folder naming loop.
type ValidationError struct {
	Reason Reason
	Name   string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonEmptyName:
		return "name must not be empty"
	case ReasonNameUnavailable:
		return fmt.Sprintf("name %q is invalid or already in use", e.Name)
	case ReasonNamesExhausted:
		return fmt.Sprintf("no free folder name based on %q", e.Name)
	case ReasonUnknownEvent:
		return fmt.Sprintf("unknown event %q", e.Name)
	case ReasonWrongNode:
		return fmt.Sprintf("%s is not valid here", e.Name)
	}
	return string(e.Reason)
}

// Category groups errors by how a user interface should react to them.
type Category int

const (
	CategoryOther Category = iota
	// CategoryValidation: re-prompt.
	CategoryValidation
	// CategoryServer: show the server's message.
	CategoryServer
	// CategoryTransport: offer to restart the session.
	CategoryTransport
	// CategoryDeclined: do nothing.
	CategoryDeclined
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryServer:
		return "server"
	case CategoryTransport:
		return "transport"
	case CategoryDeclined:
		return "declined"
	}
	return "other"
}

// Classify maps err to its Category. A nil error is CategoryOther.
func Classify(err error) Category {
	var ve *ValidationError
	var se *protocol.ServerError
	switch {
	case err == nil:
		return CategoryOther
	case errors.Is(err, ErrDeclined):
		return CategoryDeclined
	case errors.As(err, &ve):
		return CategoryValidation
	case errors.As(err, &se):
		return CategoryServer
	case protocol.IsTransport(err):
		return CategoryTransport
	}
	return CategoryOther
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
