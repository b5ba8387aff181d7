package bytecode

import (
	"fmt"

	"github.com/deepnoodle-ai/regvm/op"
	"github.com/hashicorp/go-multierror"
)

// Verify walks the whole chunk and reports every problem it finds: format
// errors, constant indexes outside the pool, local slots outside the local
// area and jump targets that do not land on an instruction boundary.
func Verify(c *Chunk) error {
	var result *multierror.Error
	starts := map[int]bool{}
	var jumps []Instruction

	pos := 0
	for pos < len(c.code) {
		ins, err := Decode(c.code, pos)
		if err != nil {
			result = multierror.Append(result, err)
			// Nothing after a bad opcode or truncation can be trusted.
			break
		}
		starts[pos] = true
		switch ins.Op {
		case op.Const:
			if int(ins.Operands[1]) >= len(c.constants) {
				result = multierror.Append(result, fmt.Errorf(
					"offset %d: constant %d out of range (pool has %d)",
					pos, ins.Operands[1], len(c.constants)))
			}
		case op.Load:
			if int(ins.Operands[1]) >= c.localCount {
				result = multierror.Append(result, fmt.Errorf(
					"offset %d: local slot %d out of range (%d locals)",
					pos, ins.Operands[1], c.localCount))
			}
		case op.Store:
			if int(ins.Operands[0]) >= c.localCount {
				result = multierror.Append(result, fmt.Errorf(
					"offset %d: local slot %d out of range (%d locals)",
					pos, ins.Operands[0], c.localCount))
			}
		case op.Jump, op.JumpIfFalse:
			jumps = append(jumps, ins)
		}
		pos = ins.Next()
	}

	for _, ins := range jumps {
		target := int(ins.Operands[ins.Count-1])
		// A jump to the end of the buffer falls off the end and is only
		// valid if the last instruction returns; the VM reports it.
		if target != len(c.code) && !starts[target] {
			result = multierror.Append(result, fmt.Errorf(
				"offset %d: %s target %d is not an instruction boundary",
				ins.Offset, ins.Op, target))
		}
	}
	return result.ErrorOrNil()
}
