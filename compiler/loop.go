package compiler

import "github.com/deepnoodle-ai/regvm/errz"

// loop tracks the pending break jumps of one enclosing loop.
type loop struct {
	breaks []JumpMark
	frame  int
}

// EnterLoop opens a loop context for EmitBreak.
func (c *Compiler) EnterLoop() {
	c.loops = append(c.loops, &loop{frame: c.FrameDepth()})
}

// EmitBreak emits a forward jump to the end of the innermost loop. Outside
// of any loop, or from a call body nested in the loop, it fails with E2003
// and emits nothing.
func (c *Compiler) EmitBreak() error {
	if len(c.loops) == 0 {
		return c.Errorf(errz.E2003, "break statement outside of a loop")
	}
	l := c.loops[len(c.loops)-1]
	if l.frame != c.FrameDepth() {
		// The jump would skip the PopFrame of the enclosing call.
		return c.Errorf(errz.E2003, "break cannot leave the body of a call")
	}
	l.breaks = append(l.breaks, c.EmitUncondJump())
	return nil
}

// ExitLoop closes the innermost loop and patches its breaks to the current
// position. Calling it without a matching EnterLoop panics.
func (c *Compiler) ExitLoop() error {
	if len(c.loops) == 0 {
		panic("compiler: ExitLoop without EnterLoop")
	}
	l := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, mark := range l.breaks {
		if err := c.PatchJump(mark); err != nil {
			return err
		}
	}
	return nil
}
