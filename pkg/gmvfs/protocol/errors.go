package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a server-reported failure.
type ErrorKind string

const (
	ErrorKindNameTaken        ErrorKind = "NameTaken"
	ErrorKindInvalidName      ErrorKind = "InvalidName"
	ErrorKindFolderNotFound   ErrorKind = "FolderNotFound"
	ErrorKindResourceNotFound ErrorKind = "ResourceNotFound"
	ErrorKindEventNotFound    ErrorKind = "EventNotFound"
	ErrorKindBadCommand       ErrorKind = "BadCommand"
	ErrorKindStartup          ErrorKind = "Startup"
	ErrorKindInternal         ErrorKind = "Internal"
)

// ErrorDetail is the structured error carried by a failed result.
type ErrorDetail struct {
	Kind    ErrorKind `json:"type"`
	Name    string    `json:"name,omitempty"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message,omitempty"`
}

func (d ErrorDetail) String() string {
	var s string
	switch d.Kind {
	case ErrorKindNameTaken:
		s = fmt.Sprintf("name %q is already taken", d.Name)
	case ErrorKindInvalidName:
		s = fmt.Sprintf("name %q is not valid", d.Name)
	case ErrorKindFolderNotFound:
		s = fmt.Sprintf("folder %q does not exist", d.Path)
	case ErrorKindResourceNotFound:
		s = fmt.Sprintf("resource %q does not exist", d.Name)
	case ErrorKindEventNotFound:
		s = fmt.Sprintf("event %q does not exist", d.Name)
	default:
		s = string(d.Kind)
	}
	if d.Message != "" {
		s += ": " + d.Message
	}
	return s
}

// ServerError is returned when the server understood a command but refused
// or failed it.
type ServerError struct {
	Command Kind
	Detail  ErrorDetail
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Detail)
}

// ErrMalformedResponse is wrapped by a TransportError when a response cannot
// be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// TransportError is returned when a command could not complete a round trip:
// the session is closed, the process died, or the response was unreadable.
type TransportError struct {
	Command Kind
	Err     error
}

func (e *TransportError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsErrorKind reports whether err is a ServerError of the given kind.
func IsErrorKind(err error, kind ErrorKind) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Detail.Kind == kind
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
