package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/regvm/op"
)

var (
	// ErrTruncated indicates the buffer ended in the middle of an instruction.
	ErrTruncated = errors.New("truncated instruction")
	// ErrInvalidOpcode indicates a byte that is not a defined opcode.
	ErrInvalidOpcode = errors.New("invalid opcode")
)

// FormatError describes malformed bytecode at a specific offset.
type FormatError struct {
	// Kind is ErrTruncated or ErrInvalidOpcode.
	Kind   error
	Offset int
	Opcode op.Code
	// Need and Have are the bytes the instruction requires and the bytes
	// that remained, for truncation errors.
	Need, Have int
}

func (e *FormatError) Error() string {
	if errors.Is(e.Kind, ErrTruncated) {
		return fmt.Sprintf("bytecode: truncated %s at offset %d (need %d bytes, have %d)",
			e.Opcode, e.Offset, e.Need, e.Have)
	}
	return fmt.Sprintf("bytecode: invalid opcode 0x%02x at offset %d", uint8(e.Opcode), e.Offset)
}

func (e *FormatError) Unwrap() error {
	return e.Kind
}

// Instruction is one decoded instruction.
type Instruction struct {
	Offset   int
	Op       op.Code
	Operands [op.MaxOperands]uint32
	// Count is the number of operands in use.
	Count int
	// Size is the encoded size in bytes, opcode included.
	Size int
}

// Next returns the offset of the following instruction.
func (i Instruction) Next() int {
	return i.Offset + i.Size
}

// Register returns operand n as a register index.
func (i Instruction) Register(n int) op.Register {
	return op.Register(i.Operands[n])
}

// Decode decodes the instruction starting at offset. It is stateless: the
// same bytes always decode to the same instruction.
func Decode(code []byte, offset int) (Instruction, error) {
	if offset < 0 || offset >= len(code) {
		return Instruction{}, &FormatError{Kind: ErrTruncated, Offset: offset, Need: 1, Have: 0}
	}
	opcode := op.Code(code[offset])
	info := op.GetInfo(opcode)
	if !info.Valid() {
		return Instruction{}, &FormatError{Kind: ErrInvalidOpcode, Offset: offset, Opcode: opcode}
	}
	if have := len(code) - offset; have < info.Size {
		return Instruction{}, &FormatError{
			Kind:   ErrTruncated,
			Offset: offset,
			Opcode: opcode,
			Need:   info.Size,
			Have:   have,
		}
	}
	ins := Instruction{Offset: offset, Op: opcode, Count: len(info.Operands), Size: info.Size}
	pos := offset + 1
	for n, kind := range info.Operands {
		switch kind.Width() {
		case 1:
			ins.Operands[n] = uint32(code[pos])
		case 2:
			ins.Operands[n] = uint32(binary.LittleEndian.Uint16(code[pos:]))
		case 4:
			ins.Operands[n] = binary.LittleEndian.Uint32(code[pos:])
		}
		pos += kind.Width()
	}
	return ins, nil
}
