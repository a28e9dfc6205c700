package dberr

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type Code uint64

const (
	CodeNotFound     Code = iota + 1 // 1: No live record for the key.
	CodeIntegrity                    // 2: Checksum or signature verification failed.
	CodeIO                           // 3: File-level failure, escalates to the bot sentinel.
	CodeTimeout                      // 4: No reply within the configured bound.
	CodeUnhealthy                    // 5: The addressed bot's sentinel is tripped.
	CodeShuttingDown                 // 6: The addressed bot is draining, mutation refused.
	CodeConfig                       // 7: Invalid or missing configuration.
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeIntegrity:
		return "IntegrityFailure"
	case CodeIO:
		return "IoFailure"
	case CodeTimeout:
		return "Timeout"
	case CodeUnhealthy:
		return "Unhealthy"
	case CodeShuttingDown:
		return "ShuttingDown"
	case CodeConfig:
		return "ConfigurationError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned across the engine. It wraps a return
// code, a message and an optional cause.
type Error struct {
	Code  Code   // The return code
	Msg   string // The error message
	Cause error  // Optional underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ozone (%s): %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("ozone (%s): %s", e.Code, e.Msg)
}

// Unwrap exposes the cause to errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error with the given code, cause and formatted message.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		Cause: cause,
	}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		err = e.Cause
		if err == nil {
			return false
		}
	}
	return false
}
