// Package simerr defines the structured error type used for
// configuration and validation failures across the simulator.
package simerr

import "fmt"

// Code classifies the kind of failure: the closed set of configuration
// mistakes a caller can make (unknown fetch policy, malformed sizes,
// etc).
type Code string

const (
	CodeInvalidFetchKind Code = "invalid_fetch_kind"
	CodeInvalidSize      Code = "invalid_size"
	CodeInvalidThreads   Code = "invalid_threads"
	CodeInvalidCores     Code = "invalid_cores"
	CodeConfigLoad       Code = "config_load"
)

// Error is a structured configuration/validation error, modeled on
// ehrlich-b-go-ublk's errors.go: an operation name, a code, a message,
// and an optional wrapped cause.
type Error struct {
	Op    string
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Code, e.Msg, e.Inner)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// New builds an *Error with no wrapped cause.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap builds an *Error wrapping an underlying cause.
func Wrap(op string, code Code, msg string, inner error) *Error {
	return &Error{Op: op, Code: code, Msg: msg, Inner: inner}
}
