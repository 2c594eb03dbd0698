package traffic

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is wrapped by ProtocolError when no registered kind matches.
var ErrUnknownKind = errors.New("unknown traffic kind")

// ProtocolError is returned by Decode when text matches no registered kind.
type ProtocolError struct {
	Text string
}

func (e *ProtocolError) Error() string {
	text := e.Text
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	return fmt.Sprintf("%v: %q", ErrUnknownKind, text)
}

func (e *ProtocolError) Unwrap() error {
	return ErrUnknownKind
}

// ForwardingError is returned when the real destination of a unit could not be
// reached or failed before producing a response.
type ForwardingError struct {
	Kind Kind
	Err  error
}

func (e *ForwardingError) Error() string {
	return "forwarding " + e.Kind.String() + " traffic: " + e.Err.Error()
}

func (e *ForwardingError) Unwrap() error {
	return e.Err
}
