// Package errs provides a small error-code type with parent chaining,
// compatible with the standard errors package's Is/As/Unwrap.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an error roughly like an HTTP status: 0 is unknown,
// 1xxx/4xx/5xx style values are free for callers to define.
type Code uint16

const (
	Unknown Code = 0

	ErrConfigLoad     Code = 1001
	ErrConfigValidate Code = 1002
	ErrBind           Code = 1101
	ErrListen         Code = 1102
	ErrTLSContext     Code = 1103
	ErrPoolCreate     Code = 1104
	ErrAsyncIO        Code = 1105

	ErrHandshake  Code = 2001
	ErrParse      Code = 2002
	ErrRouteMiss  Code = 2003
	ErrBackend    Code = 2004
	ErrSubmit     Code = 2005
	ErrStreamSend Code = 2006
)

// Error is a Code-carrying error with an optional parent (wrapped) error.
type Error struct {
	code   Code
	msg    string
	parent error
}

// New builds an Error with the given code, message and optional parent.
func New(code Code, msg string, parent error) *Error {
	return &Error{code: code, msg: msg, parent: parent}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.parent != nil {
		return fmt.Sprintf("[%d] %s: %v", e.code, e.msg, e.parent)
	}
	return fmt.Sprintf("[%d] %s", e.code, e.msg)
}

// Unwrap allows errors.Is/errors.As to walk into the parent error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.parent
}

// Code returns the classification code of this error.
func (e *Error) Code() Code {
	if e == nil {
		return Unknown
	}
	return e.code
}

// Is reports whether target is an *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.code == e.code
	}
	return false
}
