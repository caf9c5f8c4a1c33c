package saw

import "fmt"

// Code distinguishes the recoverable/critical axis of an [Error], plus a
// handful of well-known conditions that callers commonly branch on.
//
// The numeric values are part of the logged/serialized surface and must
// stay stable across releases.
type Code int16

const (
	// CodeGenericCritical is any critical failure without a more specific code.
	CodeGenericCritical Code = -1
	// CodeGenericRecoverable is any recoverable failure without a more specific code.
	CodeGenericRecoverable Code = 1
	// CodeDisconnected means the peer (stream, signal source, etc) is gone.
	CodeDisconnected Code = -99
	// CodeExhausted means the value behind a one-shot producer was already taken.
	CodeExhausted Code = -98
	// CodeWouldBlock is the recoverable condition behind a non-blocking
	// read/write that has no bytes to transfer right now; stream helpers
	// translate the OS's EAGAIN/EWOULDBLOCK to this and never surface it
	// past their own retry loop.
	CodeWouldBlock Code = 2
)

// IsCritical reports whether code represents a critical error, i.e. one a
// chain cannot recover from locally.
func (c Code) IsCritical() bool {
	return c < 0
}

// IsRecoverable reports whether code represents a recoverable condition.
func (c Code) IsRecoverable() bool {
	return c > 0
}

func (c Code) String() string {
	switch c {
	case CodeGenericCritical:
		return "generic-critical"
	case CodeGenericRecoverable:
		return "generic-recoverable"
	case CodeDisconnected:
		return "disconnected"
	case CodeExhausted:
		return "exhausted"
	case CodeWouldBlock:
		return "would-block"
	default:
		return fmt.Sprintf("code(%d)", int16(c))
	}
}

// Error is the sum type carried at every conveyor node boundary: a message
// plus a [Code] distinguishing recoverable from critical failures.
type Error struct {
	message string
	code    Code
}

// Error implements the standard error interface.
func (e Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return e.message
}

// Code returns the error's code.
func (e Error) Code() Code { return e.code }

// Critical reports whether this error is critical.
func (e Error) Critical() bool { return e.code.IsCritical() }

// Recoverable reports whether this error is recoverable.
func (e Error) Recoverable() bool { return e.code.IsRecoverable() }

// Failed reports whether e represents any failure (it always does; Error
// values are never constructed for the success case, see [Result]).
func (e Error) Failed() bool { return true }

// MakeError constructs an Error with an explicit message and code.
func MakeError(message string, code Code) Error {
	return Error{message: message, code: code}
}

// CriticalError constructs a critical Error, defaulting to
// [CodeGenericCritical] when no more specific code applies.
func CriticalError(message string, code ...Code) Error {
	c := CodeGenericCritical
	if len(code) > 0 {
		c = code[0]
	}
	return Error{message: message, code: c}
}

// CriticalErrorf is CriticalError with fmt.Sprintf-style formatting.
func CriticalErrorf(format string, args ...any) Error {
	return Error{message: fmt.Sprintf(format, args...), code: CodeGenericCritical}
}

// RecoverableError constructs a recoverable Error, defaulting to
// [CodeGenericRecoverable].
func RecoverableError(message string, code ...Code) Error {
	c := CodeGenericRecoverable
	if len(code) > 0 {
		c = code[0]
	}
	return Error{message: message, code: c}
}

// RecoverableErrorf is RecoverableError with fmt.Sprintf-style formatting.
func RecoverableErrorf(format string, args ...any) Error {
	return Error{message: fmt.Sprintf(format, args...), code: CodeGenericRecoverable}
}

// ExhaustedError is the distinguished critical error meaning "the value was
// already taken".
func ExhaustedError() Error {
	return Error{message: "value already taken", code: CodeExhausted}
}

// DisconnectedError is the distinguished critical error meaning "the peer
// went away".
func DisconnectedError(detail string) Error {
	return Error{message: detail, code: CodeDisconnected}
}

// errAgain is used internally by stream helpers to signal would-block;
// it is never surfaced to conveyor consumers directly.
var errAgain = RecoverableError("resource temporarily unavailable", CodeWouldBlock)

// IsWouldBlock reports whether err is the distinguished would-block
// condition a non-blocking read/write raises when there is nothing to
// transfer right now.
func IsWouldBlock(err error) bool {
	var e Error
	if se, ok := err.(Error); ok {
		e = se
	} else {
		return false
	}
	return e.Code() == CodeWouldBlock
}
