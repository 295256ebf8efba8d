package models

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure for the HTTP layer.
type ErrorKind int

const (
	KindClientInput ErrorKind = iota + 1
	KindTooLarge
	KindUpstreamValidation
	KindConversion
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindTooLarge:
		return "too_large"
	case KindUpstreamValidation:
		return "upstream_validation"
	case KindConversion:
		return "conversion"
	case KindNotFound:
		return "not_found"
	}
	return "unknown"
}

// Error carries a client-visible message and the HTTP class of a failure.
// Err, when set, is the underlying cause and is only logged.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindClientInput:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUpstreamValidation:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func ClientInput(format string, args ...any) *Error {
	return &Error{Kind: KindClientInput, Message: fmt.Sprintf(format, args...)}
}

func TooLarge(format string, args ...any) *Error {
	return &Error{Kind: KindTooLarge, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Unusable reports that an external engine finished but its output cannot be served.
func Unusable(msg string, err error) *Error {
	return &Error{Kind: KindUpstreamValidation, Message: msg, Err: err}
}

// ConversionFailed reports that the external call itself failed. The cause's
// text is appended to the client message.
func ConversionFailed(msg string, err error) *Error {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Error{Kind: KindConversion, Message: msg, Err: err}
}
