// Package bytecode defines the compiled form of a program and its binary
// encoding.
//
// A [Chunk] holds an instruction byte buffer, a deduplicated constant pool
// and the size of the unit-wide local area. Chunks are immutable once
// built: constructors copy their inputs and accessors return copies or
// scalar values.
//
// # Encoding
//
// Every instruction is a one byte opcode followed by fixed-width operands
// determined by the opcode (see [op.GetInfo]). Multi-byte operands are
// little-endian:
//
//	Register  1 byte   frame register index
//	Count     1 byte   argument count
//	Const     2 bytes  constant pool index
//	Slot      2 bytes  local slot index
//	Target    4 bytes  absolute byte offset of a jump destination
//
// [Decode] reads one instruction at an offset. Running out of bytes in the
// middle of an instruction is reported as a [FormatError] wrapping
// [ErrTruncated]; an undefined opcode wraps [ErrInvalidOpcode]. Neither is
// ever treated as the end of the stream.
//
// Example:
//
//	it := bytecode.NewIter(chunk.Code())
//	for it.Next() {
//	    ins := it.Instruction()
//	    fmt.Println(ins.Offset, ins.Op)
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
package bytecode
