// Package dis supports analysis of regvm bytecode by disassembling it.
// This works with the opcodes defined in the `op` package and the decoder
// in the `bytecode` package.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/deepnoodle-ai/regvm/bytecode"
	"github.com/deepnoodle-ai/regvm/internal/table"
	"github.com/deepnoodle-ai/regvm/op"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/fatih/color"
)

// Instruction represents a single bytecode instruction and its operands.
type Instruction struct {
	Offset     int
	Name       string
	Opcode     op.Code
	Operands   []uint32
	Kinds      []op.OperandKind
	Annotation string
	Constant   *value.Value
}

// Disassemble returns a parsed representation of the chunk's code.
func Disassemble(chunk *bytecode.Chunk) ([]Instruction, error) {
	var instructions []Instruction
	it := bytecode.NewIter(chunk.Code())
	for it.Next() {
		ins := it.Instruction()
		info := op.GetInfo(ins.Op)
		instr := Instruction{
			Offset:   ins.Offset,
			Name:     info.Name,
			Opcode:   ins.Op,
			Operands: append([]uint32(nil), ins.Operands[:ins.Count]...),
			Kinds:    info.Operands,
		}
		switch ins.Op {
		case op.Const:
			idx := int(ins.Operands[1])
			if idx >= chunk.ConstantCount() {
				return nil, fmt.Errorf("constant index out of range: %d", idx)
			}
			c := chunk.ConstantAt(idx)
			instr.Constant = &c
			instr.Annotation = c.String()
		case op.Load:
			name, err := localName(chunk, int(ins.Operands[1]))
			if err != nil {
				return nil, err
			}
			instr.Annotation = name
		case op.Store:
			name, err := localName(chunk, int(ins.Operands[0]))
			if err != nil {
				return nil, err
			}
			instr.Annotation = name
		case op.Jump:
			instr.Annotation = fmt.Sprintf("-> %d", ins.Operands[0])
		case op.JumpIfFalse:
			instr.Annotation = fmt.Sprintf("-> %d", ins.Operands[1])
		}
		instructions = append(instructions, instr)
	}
	if err := it.Err(); err != nil {
		return instructions, err
	}
	return instructions, nil
}

func localName(chunk *bytecode.Chunk, index int) (string, error) {
	if chunk.LocalCount() <= index {
		return "", fmt.Errorf("local variable index out of range: %d", index)
	}
	if name := chunk.LocalNameAt(index); name != "" {
		return name, nil
	}
	return fmt.Sprintf("local_%d", index), nil
}

var (
	bold    = color.New(color.Bold).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	cyan    = color.New(color.FgHiCyan).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	dimmed  = color.New(color.Italic).SprintFunc()
)

// Print a string representation of the given instructions to the given writer.
func Print(instructions []Instruction, writer io.Writer) {
	var lines [][]string
	for _, instr := range instructions {
		var values []string
		values = append(values, fmt.Sprintf("%d", instr.Offset))
		values = append(values, bold(instr.Name))
		values = append(values, formatOperands(instr.Operands, instr.Kinds))
		if instr.Constant != nil {
			switch instr.Constant.Kind() {
			case value.KindInt, value.KindFloat:
				values = append(values, yellow(instr.Annotation))
			case value.KindChar:
				values = append(values, green(instr.Annotation))
			case value.KindEmpty:
				values = append(values, dimmed(instr.Annotation))
			default:
				values = append(values, magenta(instr.Annotation))
			}
		} else if instr.Annotation != "" {
			values = append(values, cyan(instr.Annotation))
		} else {
			values = append(values, "")
		}
		lines = append(lines, values)
	}

	table.NewTable(writer).
		WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

// formatOperands prints registers as rN and everything else as a number.
func formatOperands(operands []uint32, kinds []op.OperandKind) string {
	var sb strings.Builder
	for i, v := range operands {
		if i > 0 {
			sb.WriteString(", ")
		}
		if i < len(kinds) && kinds[i] == op.KindRegister {
			sb.WriteString(fmt.Sprintf("r%d", v))
		} else {
			sb.WriteString(fmt.Sprintf("%d", v))
		}
	}
	return sb.String()
}
