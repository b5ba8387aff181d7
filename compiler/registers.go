package compiler

import (
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/op"
)

const (
	// FrameSize is the number of registers in a VM frame.
	FrameSize = 256

	// MaxRegisters is the number of registers the compiler hands out per
	// frame. The last register index is reserved for NoValue.
	MaxRegisters = FrameSize - 1

	// NoValue is returned by Lower for nodes that produce no value, such
	// as declarations and loops. It never names an allocated register.
	NoValue = op.Register(MaxRegisters)
)

// frame is the compile-time register state of one VM frame.
type frame struct {
	next   int
	high   int
	params int
}

// RegisterMark is a saved register watermark.
type RegisterMark struct {
	frame int
	next  int
}

func (c *Compiler) frame() *frame {
	return &c.frames[len(c.frames)-1]
}

// AllocRegister reserves the next free register of the current frame.
func (c *Compiler) AllocRegister() (op.Register, error) {
	f := c.frame()
	if f.next >= MaxRegisters {
		return 0, c.Errorf(errz.E2007, "expression needs more than %d registers", MaxRegisters)
	}
	r := op.Register(f.next)
	f.next++
	if f.next > f.high {
		f.high = f.next
	}
	return r, nil
}

// AllocRegisters reserves n consecutive registers and returns the first.
func (c *Compiler) AllocRegisters(n int) (op.Register, error) {
	f := c.frame()
	if f.next+n > MaxRegisters {
		return 0, c.Errorf(errz.E2007, "expression needs more than %d registers", MaxRegisters)
	}
	first := op.Register(f.next)
	f.next += n
	if f.next > f.high {
		f.high = f.next
	}
	return first, nil
}

// Mark returns the current register watermark.
func (c *Compiler) Mark() RegisterMark {
	return RegisterMark{frame: len(c.frames) - 1, next: c.frame().next}
}

// Release frees every register allocated since mark. The mark must belong
// to the current frame.
func (c *Compiler) Release(mark RegisterMark) {
	f := c.frame()
	if mark.frame != len(c.frames)-1 || mark.next > f.next {
		panic("compiler: register mark released out of order")
	}
	if mark.next < f.params {
		panic("compiler: register mark releases frame parameters")
	}
	f.next = mark.next
}

// EnterFrame starts allocating registers from a fresh call frame.
func (c *Compiler) EnterFrame() {
	c.frames = append(c.frames, frame{})
}

// ExitFrame returns to the parent frame. Exiting the entry frame panics.
func (c *Compiler) ExitFrame() {
	if len(c.frames) <= 1 {
		panic("compiler: ExitFrame without EnterFrame")
	}
	c.frames = c.frames[:len(c.frames)-1]
}

// FrameDepth returns the number of frames entered; the entry frame is 0.
func (c *Compiler) FrameDepth() int {
	return len(c.frames) - 1
}
