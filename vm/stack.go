package vm

import (
	"fmt"

	"github.com/deepnoodle-ai/regvm/gc"
	"github.com/deepnoodle-ai/regvm/value"
)

// FrameSize is the number of registers in every frame.
const FrameSize = 256

// Stack is the register stack: one growable run of values on the heap.
// The bottom holds the unit-wide local area; above it each open frame owns
// a window of FrameSize registers. The underlying array roots itself, so
// handles held in registers keep their objects alive.
type Stack struct {
	heap   gc.Collector
	values *gc.Array[value.Value]
	locals int
	depth  int
	top    *Frame
	frames int
}

// NewStack allocates an empty stack on heap.
func NewStack(heap gc.Collector) (*Stack, error) {
	values, err := gc.NewArray[value.Value](heap)
	if err != nil {
		return nil, err
	}
	return &Stack{heap: heap, values: values}, nil
}

// ReserveLocals sets aside n local slots, rounded up to a multiple of
// FrameSize so frame bases stay aligned. It must be called before the first
// frame is pushed.
func (s *Stack) ReserveLocals(n int) error {
	if s.top != nil {
		panic("vm: locals reserved with frames open")
	}
	if n < 0 {
		return fmt.Errorf("vm: negative local count %d", n)
	}
	size := (n + FrameSize - 1) / FrameSize * FrameSize
	if err := s.values.Resize(size, value.Empty); err != nil {
		return err
	}
	s.locals = size
	s.depth = size
	return nil
}

// LocalArea returns the size of the reserved local area.
func (s *Stack) LocalArea() int {
	return s.locals
}

// Base returns the base index of the innermost frame.
func (s *Stack) Base() int {
	return s.depth
}

// Len returns the number of values on the stack.
func (s *Stack) Len() (int, error) {
	return s.values.Len()
}

// Frames returns the number of open frames.
func (s *Stack) Frames() int {
	return s.frames
}

// Top returns the innermost frame, or nil.
func (s *Stack) Top() *Frame {
	return s.top
}

// View returns the whole stack as a slice valid while g is.
func (s *Stack) View(g *gc.Guard) ([]value.Value, error) {
	return s.values.Slice(g)
}

// Push opens a new frame above the current one, with every register Empty.
// It allocates, so guards issued before the call may be stale afterwards.
func (s *Stack) Push() (*Frame, error) {
	base, err := s.values.Len()
	if err != nil {
		return nil, err
	}
	if base%FrameSize != 0 {
		panic(fmt.Sprintf("vm: misaligned frame base %d", base))
	}
	if err := s.values.Resize(base+FrameSize, value.Empty); err != nil {
		return nil, err
	}
	f := &Frame{stack: s, base: base, parent: s.top}
	s.top = f
	s.depth = base
	s.frames++
	return f, nil
}

// Release drops the stack's root. The stack must not be used afterwards.
func (s *Stack) Release() {
	s.values.Release()
}

// Frame is a view of one register window. Only the innermost frame is
// accessible; using a suspended or popped frame panics.
type Frame struct {
	stack  *Stack
	base   int
	parent *Frame
	popped bool
}

// Base returns the stack index of register 0.
func (f *Frame) Base() int {
	return f.base
}

func (f *Frame) check() {
	if f.popped {
		panic("vm: use of a popped frame")
	}
	if f.stack.top != f {
		panic("vm: access through a suspended frame")
	}
}

// Get returns register r.
func (f *Frame) Get(g *gc.Guard, r int) (value.Value, error) {
	f.check()
	if r < 0 || r >= FrameSize {
		return value.Empty, fmt.Errorf("vm: register %d outside frame", r)
	}
	return f.stack.values.Get(g, f.base+r)
}

// Set overwrites register r.
func (f *Frame) Set(g *gc.Guard, r int, v value.Value) error {
	f.check()
	if r < 0 || r >= FrameSize {
		return fmt.Errorf("vm: register %d outside frame", r)
	}
	return f.stack.values.Set(g, f.base+r, v)
}

// Registers returns the frame's window valid while g is.
func (f *Frame) Registers(g *gc.Guard) ([]value.Value, error) {
	f.check()
	all, err := f.stack.values.Slice(g)
	if err != nil {
		return nil, err
	}
	return all[f.base : f.base+FrameSize], nil
}

// Pop closes the frame and resumes its parent. Frames pop strictly in
// reverse order of pushing.
func (f *Frame) Pop() error {
	f.check()
	if err := f.stack.values.Truncate(f.base); err != nil {
		return err
	}
	f.popped = true
	s := f.stack
	s.top = f.parent
	s.frames--
	if f.parent != nil {
		s.depth = f.parent.base
	} else {
		s.depth = s.locals
	}
	return nil
}
