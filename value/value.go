// Package value defines Value, the tagged union stored in VM registers,
// local slots and the constant pool.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/deepnoodle-ai/regvm/gc"
)

// Kind identifies which member of the union a Value holds.
type Kind uint8

const (
	// KindEmpty marks an uninitialized or cleared slot.
	KindEmpty Kind = iota
	KindInt
	KindFloat
	KindBool
	KindChar
	KindHandle
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindHandle:
		return "handle"
	default:
		return "unknown"
	}
}

// Value is a register-sized tagged value. The zero Value is Empty.
type Value struct {
	kind Kind
	bits uint64
	h    gc.Handle
}

// Empty is the cleared value.
var Empty = Value{}

// Int returns an integer value.
func Int(i int64) Value {
	return Value{kind: KindInt, bits: uint64(i)}
}

// Float returns a floating point value.
func Float(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// Char returns a character value.
func Char(r rune) Value {
	return Value{kind: KindChar, bits: uint64(uint32(r))}
}

// Ref returns a value referring to a heap object.
func Ref(h gc.Handle) Value {
	return Value{kind: KindHandle, h: h}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind {
	return v.kind
}

// IsEmpty reports whether the value is Empty.
func (v Value) IsEmpty() bool {
	return v.kind == KindEmpty
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) {
	return int64(v.bits), v.kind == KindInt
}

// AsFloat returns the floating point payload.
func (v Value) AsFloat() (float64, bool) {
	return math.Float64frombits(v.bits), v.kind == KindFloat
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	return v.bits != 0, v.kind == KindBool
}

// AsChar returns the character payload.
func (v Value) AsChar() (rune, bool) {
	return rune(uint32(v.bits)), v.kind == KindChar
}

// AsHandle returns the heap handle payload.
func (v Value) AsHandle() (gc.Handle, bool) {
	return v.h, v.kind == KindHandle
}

// Equal reports structural equality: same kind and identical payload.
// Floats compare by bit pattern, so NaN equals an identical NaN and 0.0
// differs from -0.0. Use this for interning, not for language-level
// comparison.
func Equal(a, b Value) bool {
	return a.kind == b.kind && a.bits == b.bits && a.h == b.h
}

// TraceHandles implements gc.Tracer.
func (v Value) TraceHandles(visit func(gc.Handle)) {
	if v.kind == KindHandle && !v.h.IsNil() {
		visit(v.h)
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.bits != 0)
	case KindChar:
		return strconv.QuoteRune(rune(uint32(v.bits)))
	case KindHandle:
		return fmt.Sprintf("<handle %s>", v.h)
	default:
		return "<empty>"
	}
}

// MarshalJSON encodes the payload as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(int64(v.bits))
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return json.Marshal(v.String())
		}
		return json.Marshal(f)
	case KindBool:
		return json.Marshal(v.bits != 0)
	case KindChar:
		return json.Marshal(string(rune(uint32(v.bits))))
	case KindHandle:
		return json.Marshal(v.h.String())
	default:
		return []byte("null"), nil
	}
}
