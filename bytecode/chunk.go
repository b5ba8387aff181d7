package bytecode

import (
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/gofrs/uuid"
)

// Chunk is an immutable compiled unit.
type Chunk struct {
	id         uuid.UUID
	filename   string
	code       []byte
	constants  []value.Value
	localCount int
	localNames []string
}

// ChunkParams contains parameters for creating a new Chunk.
type ChunkParams struct {
	// ID identifies the chunk. A random id is generated when it is nil.
	ID         uuid.UUID
	Filename   string
	Code       []byte
	Constants  []value.Value
	LocalCount int
	// LocalNames maps local slots to the names they were declared with,
	// for disassembly.
	LocalNames []string
}

// NewChunk creates a new immutable Chunk. Input slices are copied.
func NewChunk(params ChunkParams) *Chunk {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV4())
	}
	code := make([]byte, len(params.Code))
	copy(code, params.Code)
	constants := make([]value.Value, len(params.Constants))
	copy(constants, params.Constants)
	names := make([]string, len(params.LocalNames))
	copy(names, params.LocalNames)
	return &Chunk{
		id:         id,
		filename:   params.Filename,
		code:       code,
		constants:  constants,
		localCount: params.LocalCount,
		localNames: names,
	}
}

// ID returns the chunk's unique identifier.
func (c *Chunk) ID() uuid.UUID {
	return c.id
}

// Filename returns the name of the source the chunk was compiled from.
func (c *Chunk) Filename() string {
	return c.filename
}

// Code returns a copy of the instruction buffer.
func (c *Chunk) Code() []byte {
	code := make([]byte, len(c.code))
	copy(code, c.code)
	return code
}

// CodeSize returns the length of the instruction buffer in bytes.
func (c *Chunk) CodeSize() int {
	return len(c.code)
}

// Decode decodes the instruction at offset without copying the buffer.
func (c *Chunk) Decode(offset int) (Instruction, error) {
	return Decode(c.code, offset)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.constants)
}

// ConstantAt returns the constant at index i.
func (c *Chunk) ConstantAt(i int) value.Value {
	return c.constants[i]
}

// LocalCount returns the number of unit-wide local slots.
func (c *Chunk) LocalCount() int {
	return c.localCount
}

// LocalNameAt returns the declared name of local slot i, or "" if unknown.
func (c *Chunk) LocalNameAt(i int) string {
	if i < 0 || i >= len(c.localNames) {
		return ""
	}
	return c.localNames[i]
}
