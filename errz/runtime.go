package errz

import (
	"fmt"
)

// ErrorKind represents the category of a runtime fault.
type ErrorKind int

const (
	// ErrType indicates an operation applied to operands of the wrong kind.
	ErrType ErrorKind = iota
	// ErrValue indicates an invalid value for an operation.
	ErrValue
	// ErrName indicates a reference to a slot that holds nothing.
	ErrName
	// ErrRuntime indicates a general runtime error.
	ErrRuntime
	// ErrFormat indicates malformed bytecode.
	ErrFormat
	// ErrMemory indicates an allocation failure.
	ErrMemory
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrType:
		return "type error"
	case ErrValue:
		return "value error"
	case ErrName:
		return "name error"
	case ErrRuntime:
		return "runtime error"
	case ErrFormat:
		return "format error"
	case ErrMemory:
		return "memory error"
	default:
		return "error"
	}
}

// RuntimeError describes a VM fault at a specific instruction.
type RuntimeError struct {
	Code    ErrorCode
	Kind    ErrorKind
	Message string
	IP      int
	Opcode  string
	Cause   error
}

// NewRuntimeError creates a RuntimeError with a formatted message.
func NewRuntimeError(code ErrorCode, kind ErrorKind, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		IP:      -1,
	}
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.IP < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Opcode == "" {
		return fmt.Sprintf("%s: %s (ip %d)", e.Kind, e.Message, e.IP)
	}
	return fmt.Sprintf("%s: %s (ip %d, %s)", e.Kind, e.Message, e.IP, e.Opcode)
}

// Unwrap returns the underlying cause of the error.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// WithCause wraps the error with a cause.
func (e *RuntimeError) WithCause(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// At records the instruction that faulted. Positions already set are kept.
func (e *RuntimeError) At(ip int, opcode string) *RuntimeError {
	if e.IP < 0 {
		e.IP = ip
		e.Opcode = opcode
	}
	return e
}

// FriendlyErrorMessage returns a human-friendly error message.
func (e *RuntimeError) FriendlyErrorMessage() string {
	return NewFormatter(false).Format(e.ToFormatted())
}

// ToFormatted converts to the FormattedError type for display.
func (e *RuntimeError) ToFormatted() *FormattedError {
	fe := &FormattedError{
		Code:    e.Code,
		Kind:    e.Kind.String(),
		Message: e.Message,
	}
	if e.IP >= 0 {
		fe.Note = fmt.Sprintf("at ip %d", e.IP)
		if e.Opcode != "" {
			fe.Note += " (" + e.Opcode + ")"
		}
	}
	if e.Cause != nil {
		fe.Hint = "caused by: " + e.Cause.Error()
	}
	return fe
}

// FriendlyError is an interface for errors that have a human friendly message
// in addition to the lower level default error message.
type FriendlyError interface {
	Error() string
	FriendlyErrorMessage() string
}

// FormattableError is an interface for errors that can be formatted with
// colors by a Formatter.
type FormattableError interface {
	Error() string
	ToFormatted() *FormattedError
}
