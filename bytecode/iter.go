package bytecode

// Iter walks the instructions of a buffer in order.
type Iter struct {
	code []byte
	pos  int
	cur  Instruction
	err  error
}

// NewIter creates an iterator positioned before the first instruction.
func NewIter(code []byte) *Iter {
	return &Iter{code: code}
}

// Next decodes the next instruction. It returns false at the end of the
// buffer or on the first format error; check Err to tell them apart.
func (it *Iter) Next() bool {
	if it.err != nil || it.pos >= len(it.code) {
		return false
	}
	ins, err := Decode(it.code, it.pos)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = ins
	it.pos = ins.Next()
	return true
}

// Instruction returns the instruction decoded by the last call to Next.
func (it *Iter) Instruction() Instruction {
	return it.cur
}

// Err returns the format error that stopped the walk, if any.
func (it *Iter) Err() error {
	return it.err
}

// All decodes every instruction in code.
func All(code []byte) ([]Instruction, error) {
	var out []Instruction
	it := NewIter(code)
	for it.Next() {
		out = append(out, it.Instruction())
	}
	return out, it.Err()
}
