package errz

import (
	"fmt"
	"strings"
)

// CompileError is returned when a syntax tree cannot be lowered.
type CompileError struct {
	Code        ErrorCode
	Message     string
	Filename    string
	Suggestions []Suggestion
	Note        string
}

// NewCompileError creates a CompileError with a formatted message.
func NewCompileError(code ErrorCode, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile error: ")
	b.WriteString(e.Message)
	if e.Filename != "" {
		b.WriteString(" (")
		b.WriteString(e.Filename)
		b.WriteString(")")
	}
	return b.String()
}

// FriendlyErrorMessage returns a human-friendly error message.
func (e *CompileError) FriendlyErrorMessage() string {
	return NewFormatter(false).Format(e.ToFormatted())
}

// ToFormatted converts to the FormattedError type for display.
func (e *CompileError) ToFormatted() *FormattedError {
	return &FormattedError{
		Code:     e.Code,
		Kind:     "compile error",
		Message:  e.Message,
		Filename: e.Filename,
		Hint:     FormatSuggestions(e.Suggestions),
		Note:     e.Note,
	}
}
