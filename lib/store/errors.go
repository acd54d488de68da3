package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and (optionally) the underlying cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same code.
// This makes the sentinel errors (ErrConnection, ...) usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// wrapError creates a new Error with the given code, message and cause
func wrapError(code RetCode, err error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// Sentinel errors for errors.Is
var (
	ErrConnection       = NewError(RetCConnectionError, "storage unavailable")
	ErrSerialization    = NewError(RetCSerializationError, "document can not be encoded or decoded")
	ErrInvalidOperation = NewError(RetCInvalidOperation, "invalid operation")
	ErrInternal         = NewError(RetCInternalError, "internal error")
)

// errShutDown is the cause of all errors returned after Shutdown
var errShutDown = errors.New("server is shut down")

// IsConnectionError reports whether err is (or wraps) a ConnectionError
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsSerializationError reports whether err is (or wraps) a SerializationError
func IsSerializationError(err error) bool {
	return errors.Is(err, ErrSerialization)
}

// IsInvalidOperation reports whether err is (or wraps) an InvalidOperation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess            RetCode = iota // 0: Command executed successfully.
	RetCInternalError                     // 1: Command failed due to an internal error.
	RetCInvalidOperation                  // 2: Invalid operation (bad name, type mismatch).
	RetCConnectionError                   // 3: Storage can not be created, read, written or deleted, or the server is shut down.
	RetCSerializationError                // 4: Document can not be encoded or decoded.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConnectionError:
		return "ConnectionError"
	case RetCSerializationError:
		return "SerializationError"
	default:
		return "Unknown"
	}
}
