// Package errz defines the error codes and error types produced by the
// compiler, the bytecode decoder and the VM.
package errz

// ErrorCode represents a unique identifier for error types.
// Codes are organized by category:
//   - E2xxx: Compile errors
//   - E3xxx: Runtime errors
//   - E4xxx: Bytecode format errors
//   - E5xxx: Allocation errors
type ErrorCode string

const (
	// Compile errors (E2xxx)
	E2001 ErrorCode = "E2001" // Undefined symbol
	E2003 ErrorCode = "E2003" // Break outside of a loop
	E2007 ErrorCode = "E2007" // Too many registers
	E2008 ErrorCode = "E2008" // Too many constants
	E2009 ErrorCode = "E2009" // Too many local slots
	E2011 ErrorCode = "E2011" // Assignment to an immutable symbol
	E2012 ErrorCode = "E2012" // Parameter captured from an outer frame
	E2013 ErrorCode = "E2013" // Invalid literal
	E2014 ErrorCode = "E2014" // Unsupported operator
	E2015 ErrorCode = "E2015" // Too many arguments
	E2016 ErrorCode = "E2016" // Malformed syntax tree
	E2017 ErrorCode = "E2017" // Code too large

	// Runtime errors (E3xxx)
	E3001 ErrorCode = "E3001" // Type error
	E3002 ErrorCode = "E3002" // Division by zero
	E3005 ErrorCode = "E3005" // Empty value read
	E3006 ErrorCode = "E3006" // Frame depth exceeded
	E3007 ErrorCode = "E3007" // Invalid operation
	E3011 ErrorCode = "E3011" // Slot out of frame range
	E3012 ErrorCode = "E3012" // Halted by observer

	// Format errors (E4xxx)
	E4001 ErrorCode = "E4001" // Truncated instruction
	E4002 ErrorCode = "E4002" // Invalid opcode
	E4003 ErrorCode = "E4003" // Operand out of range

	// Allocation errors (E5xxx)
	E5001 ErrorCode = "E5001" // Out of memory
	E5002 ErrorCode = "E5002" // Invalid capacity
)

var codeDescriptions = map[ErrorCode]string{
	E2001: "undefined symbol",
	E2003: "break outside of a loop",
	E2007: "too many registers",
	E2008: "too many constants",
	E2009: "too many local slots",
	E2011: "assignment to immutable symbol",
	E2012: "parameter used outside its frame",
	E2013: "invalid literal",
	E2014: "unsupported operator",
	E2015: "too many arguments",
	E2016: "malformed syntax tree",
	E2017: "code too large",

	E3001: "type error",
	E3002: "division by zero",
	E3005: "read of empty value",
	E3006: "frame depth exceeded",
	E3007: "invalid operation",
	E3011: "slot out of frame range",
	E3012: "halted by observer",

	E4001: "truncated instruction",
	E4002: "invalid opcode",
	E4003: "operand out of range",

	E5001: "out of memory",
	E5002: "invalid capacity",
}

// Description returns the short description for an error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// Category returns the error category based on the code prefix.
func (c ErrorCode) Category() string {
	if len(c) < 2 {
		return "unknown"
	}
	switch c[1] {
	case '2':
		return "compile"
	case '3':
		return "runtime"
	case '4':
		return "format"
	case '5':
		return "memory"
	default:
		return "unknown"
	}
}
