package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/deepnoodle-ai/regvm/op"
)

// Append encodes opcode with its operands and appends it to code. The
// number of operands must match the opcode and each must fit its width.
func Append(code []byte, opcode op.Code, operands ...uint32) ([]byte, error) {
	info := op.GetInfo(opcode)
	if !info.Valid() {
		return code, fmt.Errorf("bytecode: cannot encode opcode 0x%02x", uint8(opcode))
	}
	if len(operands) != len(info.Operands) {
		return code, fmt.Errorf("bytecode: %s takes %d operands, got %d",
			opcode, len(info.Operands), len(operands))
	}
	start := len(code)
	code = append(code, byte(opcode))
	for n, kind := range info.Operands {
		v := operands[n]
		switch kind.Width() {
		case 1:
			if v > 0xff {
				return code[:start], fmt.Errorf("bytecode: %s operand %d does not fit a %s", opcode, v, kind)
			}
			code = append(code, byte(v))
		case 2:
			if v > 0xffff {
				return code[:start], fmt.Errorf("bytecode: %s operand %d does not fit a %s", opcode, v, kind)
			}
			code = binary.LittleEndian.AppendUint16(code, uint16(v))
		case 4:
			code = binary.LittleEndian.AppendUint32(code, v)
		}
	}
	return code, nil
}

// TargetOffset returns the byte offset of the target operand of the jump
// instruction at offset.
func TargetOffset(opcode op.Code, offset int) (int, error) {
	switch opcode {
	case op.Jump:
		return offset + 1, nil
	case op.JumpIfFalse:
		return offset + 2, nil
	default:
		return 0, fmt.Errorf("bytecode: %s has no jump target", opcode)
	}
}

// PutTarget overwrites the target of the jump instruction at offset.
func PutTarget(code []byte, offset int, target uint32) error {
	ins, err := Decode(code, offset)
	if err != nil {
		return err
	}
	at, err := TargetOffset(ins.Op, offset)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(code[at:], target)
	return nil
}
