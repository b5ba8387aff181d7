// Package op defines the opcodes and operand encodings used by the regvm
// compiler and virtual machine.
package op

// Code is a one-byte opcode that indicates an operation to execute.
type Code uint8

// Register is an index into the current stack frame.
type Register uint8

const (
	Invalid Code = 0

	// Execution
	Return Code = 1
	Const  Code = 2

	// Arithmetic and logic: dst, a, b
	Add    Code = 10
	Sub    Code = 11
	Mul    Code = 12
	Div    Code = 13
	Mod    Code = 14
	Eq     Code = 15
	NotEq  Code = 16
	Less   Code = 17
	LessEq Code = 18
	And    Code = 19
	Or     Code = 20

	// Jump
	Jump        Code = 30
	JumpIfFalse Code = 31

	// Unit-wide local area
	Load  Code = 40
	Store Code = 41

	// Current frame
	LoadLocal  Code = 42
	StoreLocal Code = 43

	// Frames
	PushFrame Code = 50
	PopFrame  Code = 51
)

// OperandKind describes how a single operand is encoded.
type OperandKind uint8

const (
	// KindRegister is a one byte frame register.
	KindRegister OperandKind = iota + 1
	// KindCount is a one byte unsigned count.
	KindCount
	// KindConst is a two byte little-endian constant pool index.
	KindConst
	// KindSlot is a two byte little-endian local slot index.
	KindSlot
	// KindTarget is a four byte little-endian absolute byte offset.
	KindTarget
)

// Width returns the number of bytes used to encode the operand.
func (k OperandKind) Width() int {
	switch k {
	case KindRegister, KindCount:
		return 1
	case KindConst, KindSlot:
		return 2
	case KindTarget:
		return 4
	default:
		return 0
	}
}

// String returns a short name for the operand kind.
func (k OperandKind) String() string {
	switch k {
	case KindRegister:
		return "reg"
	case KindCount:
		return "count"
	case KindConst:
		return "const"
	case KindSlot:
		return "slot"
	case KindTarget:
		return "target"
	default:
		return "?"
	}
}

// MaxOperands is the largest number of operands any opcode takes.
const MaxOperands = 3

// TargetWidth is the encoded width of a jump target in bytes.
const TargetWidth = 4

// Info contains information about an opcode.
type Info struct {
	Code     Code
	Name     string
	Operands []OperandKind
	// Size is the total encoded size of the instruction, opcode included.
	Size int
}

// Valid reports whether the info describes a defined opcode.
func (i Info) Valid() bool {
	return i.Code != Invalid && i.Name != ""
}

// OperandCount returns the number of operands the opcode takes.
func (i Info) OperandCount() int {
	return len(i.Operands)
}

var infos [256]Info

func init() {
	type opInfo struct {
		op       Code
		name     string
		operands []OperandKind
	}
	binary := []OperandKind{KindRegister, KindRegister, KindRegister}
	ops := []opInfo{
		{Return, "RETURN", []OperandKind{KindRegister}},
		{Const, "CONST", []OperandKind{KindRegister, KindConst}},
		{Add, "ADD", binary},
		{Sub, "SUB", binary},
		{Mul, "MUL", binary},
		{Div, "DIV", binary},
		{Mod, "MOD", binary},
		{Eq, "EQ", binary},
		{NotEq, "NOT_EQ", binary},
		{Less, "LESS", binary},
		{LessEq, "LESS_EQ", binary},
		{And, "AND", binary},
		{Or, "OR", binary},
		{Jump, "JUMP", []OperandKind{KindTarget}},
		{JumpIfFalse, "JUMP_IF_FALSE", []OperandKind{KindRegister, KindTarget}},
		{Load, "LOAD", []OperandKind{KindRegister, KindSlot}},
		{Store, "STORE", []OperandKind{KindSlot, KindRegister}},
		{LoadLocal, "LOAD_LOCAL", []OperandKind{KindRegister, KindSlot}},
		{StoreLocal, "STORE_LOCAL", []OperandKind{KindSlot, KindRegister}},
		{PushFrame, "PUSH_FRAME", []OperandKind{KindRegister, KindCount}},
		{PopFrame, "POP_FRAME", []OperandKind{KindRegister, KindRegister}},
	}
	for _, o := range ops {
		size := 1
		for _, k := range o.operands {
			size += k.Width()
		}
		infos[o.op] = Info{
			Code:     o.op,
			Name:     o.name,
			Operands: o.operands,
			Size:     size,
		}
	}
}

// GetInfo returns information about the given opcode. The returned Info is
// not Valid for undefined opcodes.
func GetInfo(code Code) Info {
	return infos[code]
}

// IsBinary reports whether the opcode is one of the eleven dst/a/b
// arithmetic and logic operations.
func IsBinary(code Code) bool {
	return code >= Add && code <= Or
}

// IsJump reports whether the opcode carries a jump target.
func IsJump(code Code) bool {
	return code == Jump || code == JumpIfFalse
}

// String returns the opcode name.
func (c Code) String() string {
	if info := infos[c]; info.Name != "" {
		return info.Name
	}
	return "INVALID"
}
