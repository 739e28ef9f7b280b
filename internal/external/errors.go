package external

import (
	"errors"
	"fmt"
)

// Code classifies an upstream failure.
type Code string

const (
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeUpstreamRateLimited Code = "upstream_rate_limited"
	CodeUpstreamNotFound    Code = "upstream_not_found"
	CodeUpstreamRejected    Code = "upstream_rejected"
	CodeInternalUnexpected  Code = "internal_unexpected"
)

// Error is the error returned by Client for failed upstream calls.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
