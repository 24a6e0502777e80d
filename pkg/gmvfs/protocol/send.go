package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Transport carries one encoded command to the server and returns the
// encoded response correlated with it. Implementations must not reorder
// round trips and must not wait past their own closure.
type Transport interface {
	RoundTrip(ctx context.Context, request []byte) ([]byte, error)
}

// RawResult is the wire form of a command result. Success selects which of
// Payload and Error is meaningful.
type RawResult struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// Send performs one round trip of cmd over t. The response is decoded as the
// result type bound to the command; a failed result becomes a *ServerError,
// anything that prevented the round trip becomes a *TransportError. Send
// never retries.
func Send[R any](ctx context.Context, t Transport, cmd Command[R]) (R, error) {
	var zero R

	req, err := Encode(cmd)
	if err != nil {
		return zero, err
	}

	resp, err := t.RoundTrip(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		var te *TransportError
		if errors.As(err, &te) {
			if te.Command == "" {
				return zero, &TransportError{Command: cmd.Kind(), Err: te.Err}
			}
			return zero, te
		}
		return zero, &TransportError{Command: cmd.Kind(), Err: err}
	}

	return DecodeResult[R](cmd.Kind(), resp)
}

// DecodeResult narrows an encoded RawResult to R or to a *ServerError.
func DecodeResult[R any](kind Kind, data []byte) (R, error) {
	var zero R

	var raw RawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return zero, &TransportError{Command: kind, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	if !raw.Success {
		detail := ErrorDetail{Kind: ErrorKindInternal, Message: "server reported failure without detail"}
		if raw.Error != nil {
			detail = *raw.Error
		}
		return zero, &ServerError{Command: kind, Detail: detail}
	}

	if _, ok := any(zero).(Empty); ok {
		return zero, nil
	}

	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return zero, &TransportError{Command: kind, Err: fmt.Errorf("%w: missing payload", ErrMalformedResponse)}
	}

	var out R
	if err := json.Unmarshal(raw.Payload, &out); err != nil {
		return zero, &TransportError{Command: kind, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return out, nil
}

// EncodeSuccess builds the wire form of a successful result. Servers and
// test doubles use it; payload may be nil for Empty results.
func EncodeSuccess(payload any) ([]byte, error) {
	raw := RawResult{Success: true}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw.Payload = data
	}
	return json.Marshal(raw)
}

// EncodeFailure builds the wire form of a failed result.
func EncodeFailure(detail ErrorDetail) ([]byte, error) {
	return json.Marshal(RawResult{Success: false, Error: &detail})
}
