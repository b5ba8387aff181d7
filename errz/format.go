package errz

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Formatter renders errors in a compact, optionally colored form:
//
//	compile error[E2001]: undefined symbol "x"
//	  --> prog.json
//	   = hint: Did you mean 'y'?
type Formatter struct {
	// UseColor enables ANSI color codes in output.
	UseColor bool
}

// NewFormatter creates a new error formatter.
func NewFormatter(useColor bool) *Formatter {
	return &Formatter{UseColor: useColor}
}

var (
	colorErrorBold = []color.Attribute{color.FgHiRed, color.Bold}
	colorCode      = []color.Attribute{color.FgHiBlack}
	colorLocation  = []color.Attribute{color.FgCyan}
	colorHint      = []color.Attribute{color.FgHiYellow}
	colorNote      = []color.Attribute{color.FgHiBlue}
)

// FormattedError represents an error ready for display.
type FormattedError struct {
	Code     ErrorCode
	Kind     string // "compile error", "type error", etc.
	Message  string
	Filename string
	Hint     string
	Note     string
}

func (f *Formatter) paint(attrs []color.Attribute, s string) string {
	if !f.UseColor {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

// Format formats a single error.
func (f *Formatter) Format(err *FormattedError) string {
	var b strings.Builder
	label := err.Kind
	if label == "" {
		label = "error"
	}
	b.WriteString(f.paint(colorErrorBold, label))
	if err.Code != "" {
		b.WriteString(f.paint(colorCode, fmt.Sprintf("[%s]", err.Code)))
	}
	b.WriteString(": ")
	b.WriteString(err.Message)
	b.WriteString("\n")
	if err.Filename != "" {
		b.WriteString("  --> ")
		b.WriteString(f.paint(colorLocation, err.Filename))
		b.WriteString("\n")
	}
	if err.Hint != "" {
		b.WriteString("   = ")
		b.WriteString(f.paint(colorHint, "hint"))
		b.WriteString(": ")
		b.WriteString(err.Hint)
		b.WriteString("\n")
	}
	if err.Note != "" {
		b.WriteString("   = ")
		b.WriteString(f.paint(colorNote, "note"))
		b.WriteString(": ")
		b.WriteString(err.Note)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatError formats err if it is formattable and falls back to its
// message otherwise.
func (f *Formatter) FormatError(err error) string {
	if fe, ok := err.(FormattableError); ok {
		return f.Format(fe.ToFormatted())
	}
	return f.Format(&FormattedError{Message: err.Error()})
}
