package service

import (
	"errors"
	"fmt"
)

// Code identifies which step of project creation failed.
type Code string

const (
	CodeInvalidInput     Code = "ERR001"
	CodeStoreProject     Code = "ERR002"
	CodeStoreSites       Code = "ERR003"
	CodeStoreRequirement Code = "ERR004"
	CodeEnqueue          Code = "ERR005"
)

// Error is a coded failure returned by the orchestrator.
// Message is safe to show to API callers; Err carries the detail for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsInvalidInput reports whether err is a validation failure.
func IsInvalidInput(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeInvalidInput
}
