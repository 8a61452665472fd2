package api

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLoginResponse is returned when a login reports success without a token or user.
	ErrMalformedLoginResponse = errors.New("api: login response missing token or user")
	// ErrDemoToken is returned instead of sending a demo token to the server.
	ErrDemoToken = errors.New("api: demo tokens are never sent to the server")
)

// TransportError means no HTTP response came back: DNS, refused connection, timeout.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError is a server rejection carrying the failure envelope.
type ResponseError struct {
	Status  int
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
