package vm

import (
	"errors"

	"github.com/deepnoodle-ai/regvm/bytecode"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/gc"
)

var (
	// ErrTypeMismatch is the cause of faults on operands of the wrong kind.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrDivisionByZero is the cause of integer division and modulo by zero.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrEmptyValue is the cause of faults reading an Empty operand.
	ErrEmptyValue = errors.New("read of empty value")
	// ErrFrameDepth is the cause of faults pushing past the frame limit.
	ErrFrameDepth = errors.New("frame depth exceeded")
	// ErrFrameRange is the cause of faults addressing past a frame.
	ErrFrameRange = errors.New("slot outside frame")
	// ErrHalted is the cause of faults requested by an observer.
	ErrHalted = errors.New("halted by observer")
	// ErrNoFrame is the cause of faults popping the entry frame.
	ErrNoFrame = errors.New("no frame to pop")
)

func typeError(format string, args ...any) *errz.RuntimeError {
	return errz.NewRuntimeError(errz.E3001, errz.ErrType, format, args...).WithCause(ErrTypeMismatch)
}

func emptyError(format string, args ...any) *errz.RuntimeError {
	return errz.NewRuntimeError(errz.E3005, errz.ErrName, format, args...).WithCause(ErrEmptyValue)
}

// asRuntimeError converts errors from the decoder and the heap into faults.
func asRuntimeError(err error) *errz.RuntimeError {
	var rt *errz.RuntimeError
	if errors.As(err, &rt) {
		return rt
	}
	var fe *bytecode.FormatError
	switch {
	case errors.As(err, &fe) && errors.Is(fe, bytecode.ErrTruncated):
		return errz.NewRuntimeError(errz.E4001, errz.ErrFormat, "%s", fe.Error()).WithCause(err)
	case errors.As(err, &fe):
		return errz.NewRuntimeError(errz.E4002, errz.ErrFormat, "%s", fe.Error()).WithCause(err)
	case errors.Is(err, gc.ErrOutOfMemory):
		return errz.NewRuntimeError(errz.E5001, errz.ErrMemory, "register stack: %v", err).WithCause(err)
	case errors.Is(err, gc.ErrInvalidCapacity):
		return errz.NewRuntimeError(errz.E5002, errz.ErrMemory, "register stack: %v", err).WithCause(err)
	default:
		return errz.NewRuntimeError(errz.E3007, errz.ErrRuntime, "%v", err).WithCause(err)
	}
}
