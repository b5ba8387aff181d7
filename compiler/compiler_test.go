package compiler

import (
	"errors"
	"math"
	"testing"

	"github.com/deepnoodle-ai/regvm/bytecode"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/op"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/stretchr/testify/require"
)

// nodeFunc adapts a function to the Node interface.
type nodeFunc func(c *Compiler) (op.Register, error)

func (f nodeFunc) Lower(c *Compiler) (op.Register, error) { return f(c) }

func decodeAll(t *testing.T, code []byte) []bytecode.Instruction {
	t.Helper()
	ins, err := bytecode.All(code)
	require.NoError(t, err)
	return ins
}

func requireCode(t *testing.T, err error, code errz.ErrorCode) {
	t.Helper()
	var ce *errz.CompileError
	require.True(t, errors.As(err, &ce), "expected a compile error, got %v", err)
	require.Equal(t, code, ce.Code)
}

func TestEmitConstDeduplicates(t *testing.T) {
	tests := []struct {
		name   string
		values []value.Value
		pool   int
	}{
		{"same int", []value.Value{value.Int(1), value.Int(1)}, 1},
		{"int and float", []value.Value{value.Int(1), value.Float(1)}, 2},
		{"repeated float", []value.Value{value.Float(0.5), value.Float(0.5)}, 1},
		{"zero signs differ", []value.Value{value.Float(0), value.Float(math.Copysign(0, -1))}, 2},
		{"nan by bits", []value.Value{value.Float(math.NaN()), value.Float(math.NaN())}, 1},
		{"mixed", []value.Value{value.Bool(true), value.Char('a'), value.Bool(true), value.Char('a'), value.Empty}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			for _, v := range tt.values {
				_, err := c.EmitConst(v)
				require.NoError(t, err)
			}
			require.Equal(t, tt.pool, c.ConstantCount())
		})
	}
}

func TestEmitConstFirstUseOrder(t *testing.T) {
	c := New()
	for _, v := range []value.Value{value.Int(3), value.Int(1), value.Int(3), value.Int(2)} {
		_, err := c.EmitConst(v)
		require.NoError(t, err)
	}
	chunk := c.Chunk()
	require.Equal(t, 3, chunk.ConstantCount())
	require.Equal(t, value.Int(3), chunk.ConstantAt(0))
	require.Equal(t, value.Int(1), chunk.ConstantAt(1))
	require.Equal(t, value.Int(2), chunk.ConstantAt(2))

	ins := decodeAll(t, chunk.Code())
	require.Len(t, ins, 4)
	require.Equal(t, uint32(0), ins[2].Operands[1])
}

func TestDeclareAssignsDistinctSlots(t *testing.T) {
	c := New()
	seen := map[uint16]bool{}
	declare := func(name string) {
		s, err := c.Declare(name, true)
		require.NoError(t, err)
		require.False(t, seen[s.Slot()], "slot %d reused", s.Slot())
		seen[s.Slot()] = true
	}
	declare("a")
	declare("a") // shadowing in the same scope
	require.NoError(t, c.NewScope(func() error {
		declare("a")
		declare("b")
		return nil
	}))
	require.NoError(t, c.NewScope(func() error {
		declare("b")
		return nil
	}))
	require.Equal(t, 5, c.LocalCount())
	require.Len(t, seen, 5)
}

func TestShadowingResolvesInnermost(t *testing.T) {
	c := New()
	outer, err := c.Declare("x", true)
	require.NoError(t, err)

	var inner *Symbol
	require.NoError(t, c.NewScope(func() error {
		inner, err = c.Declare("x", true)
		require.NoError(t, err)
		s, ok := c.Scope().Resolve("x")
		require.True(t, ok)
		require.Same(t, inner, s)
		return nil
	}))
	s, ok := c.Scope().Resolve("x")
	require.True(t, ok)
	require.Same(t, outer, s)
	require.NotEqual(t, outer.Slot(), inner.Slot())
}

func TestNewScopeBalancedOnError(t *testing.T) {
	c := New()
	root := c.Scope()
	boom := errors.New("boom")
	err := c.NewScope(func() error {
		return c.NewScope(func() error { return boom })
	})
	require.ErrorIs(t, err, boom)
	require.Same(t, root, c.Scope())

	require.Panics(t, func() {
		_ = c.NewScope(func() error { panic("inner") })
	})
	require.Same(t, root, c.Scope())
}

func TestEmitLoadUndefined(t *testing.T) {
	c := New()
	_, err := c.Declare("counter", true)
	require.NoError(t, err)
	_, err = c.EmitLoad("countr")
	requireCode(t, err, errz.E2001)
	var ce *errz.CompileError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Suggestions, 1)
	require.Equal(t, "counter", ce.Suggestions[0].Value)
}

func TestEmitLoadAndStore(t *testing.T) {
	c := New()
	s, err := c.Declare("a", true)
	require.NoError(t, err)
	r, err := c.EmitConst(value.Int(5))
	require.NoError(t, err)
	require.NoError(t, c.EmitStore("a", r))
	dst, err := c.EmitLoad("a")
	require.NoError(t, err)

	ins := decodeAll(t, c.Code())
	require.Len(t, ins, 3)
	require.Equal(t, op.Store, ins[1].Op)
	require.Equal(t, uint32(s.Slot()), ins[1].Operands[0])
	require.Equal(t, op.Load, ins[2].Op)
	require.Equal(t, dst, ins[2].Register(0))
}

func TestStoreImmutable(t *testing.T) {
	c := New()
	s, err := c.Declare("k", false)
	require.NoError(t, err)
	r, err := c.EmitConst(value.Int(1))
	require.NoError(t, err)
	c.EmitStoreSymbol(s, r)
	requireCode(t, c.EmitStore("k", r), errz.E2011)
}

func TestBreakOutsideLoop(t *testing.T) {
	c := New()
	_, err := c.EmitConst(value.Int(1))
	require.NoError(t, err)
	before := c.Code()
	requireCode(t, c.EmitBreak(), errz.E2003)
	require.Equal(t, before, c.Code())
}

func TestBreakPatchedAtLoopExit(t *testing.T) {
	c := New()
	c.EnterLoop()
	require.NoError(t, c.EmitBreak())
	_, err := c.EmitConst(value.Int(1))
	require.NoError(t, err)
	require.NoError(t, c.EmitBreak())
	end := c.Position()
	require.NoError(t, c.ExitLoop())

	for _, ins := range decodeAll(t, c.Code()) {
		if ins.Op == op.Jump {
			require.Equal(t, uint32(end), ins.Operands[0])
		}
	}
	require.Panics(t, func() { _ = c.ExitLoop() })
}

func TestPatchJumpRoundTrip(t *testing.T) {
	c := New()
	cond, err := c.EmitConst(value.Bool(true))
	require.NoError(t, err)
	jf := c.EmitCondJump(cond)
	j := c.EmitUncondJump()

	ins := decodeAll(t, c.Code())
	require.Equal(t, Placeholder, ins[1].Operands[1])
	require.Equal(t, Placeholder, ins[2].Operands[0])

	_, err = c.EmitConst(value.Int(1))
	require.NoError(t, err)
	require.NoError(t, c.PatchJump(jf))
	target := c.Position()
	c.EmitReturn(0)
	require.NoError(t, c.PatchJump(j))

	ins = decodeAll(t, c.Code())
	require.Equal(t, uint32(target), ins[1].Operands[1])
	require.Equal(t, uint32(c.Position()), ins[2].Operands[0])
	require.Equal(t, jf.Offset(), ins[1].Offset)
}

func TestPatchJumpErrors(t *testing.T) {
	c := New(WithFilename("jumps.json"))
	_, err := c.EmitConst(value.Int(1))
	require.NoError(t, err)

	// Offset 0 holds a Const, not a jump.
	err = c.PatchJump(JumpMark{})
	requireCode(t, err, errz.E2016)

	_, err = c.jumpTarget(math.MaxUint32 + 1)
	requireCode(t, err, errz.E2017)
	var ce *errz.CompileError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "jumps.json", ce.Filename)

	target, err := c.jumpTarget(math.MaxUint32)
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), target)
}

func TestDirectDeclarationsAreNotJournaled(t *testing.T) {
	c := New()
	for i := 0; i < 100; i++ {
		_, err := c.Declare("x", true)
		require.NoError(t, err)
		require.NoError(t, c.EmitStore("x", 0))
	}
	require.Empty(t, c.journal)

	_, err := c.Lower(nodeFunc(func(c *Compiler) (op.Register, error) {
		_, err := c.Declare("y", false)
		require.Len(t, c.journal, 1)
		return NoValue, err
	}))
	require.NoError(t, err)
	require.Empty(t, c.journal)
}

func TestRegisterExhaustion(t *testing.T) {
	c := New()
	for i := 0; i < MaxRegisters; i++ {
		_, err := c.AllocRegister()
		require.NoError(t, err)
	}
	_, err := c.AllocRegister()
	requireCode(t, err, errz.E2007)
}

func TestMarkAndRelease(t *testing.T) {
	c := New()
	mark := c.Mark()
	a, err := c.AllocRegister()
	require.NoError(t, err)
	_, err = c.AllocRegister()
	require.NoError(t, err)
	c.Release(mark)
	b, err := c.AllocRegister()
	require.NoError(t, err)
	require.Equal(t, a, b)

	later := c.Mark()
	c.Release(mark)
	require.Panics(t, func() { c.Release(later) })
}

func TestFramesAndParams(t *testing.T) {
	c := New()
	_, err := c.AllocRegister()
	require.NoError(t, err)

	c.EnterFrame()
	require.Equal(t, 1, c.FrameDepth())
	p, err := c.DeclareParam("n")
	require.NoError(t, err)
	require.Equal(t, uint16(0), p.Slot())
	require.Equal(t, SymbolParam, p.Kind())

	r, err := c.EmitLoad("n")
	require.NoError(t, err)
	require.Equal(t, op.Register(1), r)
	require.Panics(t, func() { _, _ = c.DeclareParam("late") })

	c.EnterFrame()
	_, err = c.EmitLoad("n")
	requireCode(t, err, errz.E2012)
	c.ExitFrame()
	c.ExitFrame()
	require.Panics(t, c.ExitFrame)
}

func TestLowerRollsBackOnError(t *testing.T) {
	c := New()
	_, err := c.Declare("keep", true)
	require.NoError(t, err)
	_, err = c.EmitConst(value.Int(1))
	require.NoError(t, err)
	c.EnterLoop()
	require.NoError(t, c.EmitBreak())

	code := c.Code()
	consts := c.ConstantCount()
	root := c.Scope()
	mark := c.Mark()

	boom := errors.New("boom")
	_, err = c.Lower(nodeFunc(func(c *Compiler) (op.Register, error) {
		if _, err := c.EmitConst(value.Int(99)); err != nil {
			return 0, err
		}
		if _, err := c.Declare("tmp", true); err != nil {
			return 0, err
		}
		if err := c.EmitBreak(); err != nil {
			return 0, err
		}
		c.EnterFrame()
		return 0, c.NewScope(func() error { return boom })
	}))
	require.ErrorIs(t, err, boom)

	require.Equal(t, code, c.Code())
	require.Equal(t, consts, c.ConstantCount())
	require.Same(t, root, c.Scope())
	require.Equal(t, mark, c.Mark())
	require.Equal(t, 0, c.FrameDepth())
	_, ok := c.Scope().Resolve("tmp")
	require.False(t, ok)
	_, ok = c.Scope().Resolve("keep")
	require.True(t, ok)

	// Interning 99 again must create a fresh pool entry.
	_, err = c.EmitConst(value.Int(99))
	require.NoError(t, err)
	require.Equal(t, consts+1, c.ConstantCount())

	// Only the break emitted before the failed lowering is patched.
	require.NoError(t, c.ExitLoop())
}

func TestLowerRestoresShadowedSymbol(t *testing.T) {
	c := New()
	outer, err := c.Declare("x", true)
	require.NoError(t, err)
	_, err = c.Lower(nodeFunc(func(c *Compiler) (op.Register, error) {
		if _, err := c.Declare("x", false); err != nil {
			return 0, err
		}
		return 0, errors.New("fail")
	}))
	require.Error(t, err)
	s, ok := c.Scope().Get("x")
	require.True(t, ok)
	require.Same(t, outer, s)
}

func TestCompileAddsReturn(t *testing.T) {
	chunk, err := Compile(nodeFunc(func(c *Compiler) (op.Register, error) {
		a, err := c.EmitConst(value.Int(5))
		if err != nil {
			return 0, err
		}
		b, err := c.EmitConst(value.Int(3))
		if err != nil {
			return 0, err
		}
		return c.EmitBinary(op.Add, a, b)
	}), WithFilename("sum.json"))
	require.NoError(t, err)
	require.Equal(t, "sum.json", chunk.Filename())

	ins := decodeAll(t, chunk.Code())
	require.Len(t, ins, 4)
	require.Equal(t, op.Add, ins[2].Op)
	require.Equal(t, op.Return, ins[3].Op)
	require.Equal(t, ins[2].Register(0), ins[3].Register(0))
	require.NoError(t, bytecode.Verify(chunk))
}

func TestCompileWithoutValueReturnsEmpty(t *testing.T) {
	chunk, err := Compile(nodeFunc(func(c *Compiler) (op.Register, error) {
		return NoValue, nil
	}))
	require.NoError(t, err)
	require.Equal(t, 1, chunk.ConstantCount())
	require.Equal(t, value.Empty, chunk.ConstantAt(0))
}

func TestCompileErrorCarriesFilename(t *testing.T) {
	_, err := Compile(nodeFunc(func(c *Compiler) (op.Register, error) {
		return c.EmitLoad("missing")
	}), WithFilename("prog.json"))
	var ce *errz.CompileError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "prog.json", ce.Filename)
}

func TestEmitMoveSkipsSelf(t *testing.T) {
	c := New()
	c.EmitMove(3, 3)
	require.Empty(t, c.Code())
	c.EmitMove(1, 2)
	ins := decodeAll(t, c.Code())
	require.Equal(t, op.StoreLocal, ins[0].Op)
	require.Equal(t, [op.MaxOperands]uint32{1, 2, 0}, ins[0].Operands)
}

func TestEmitBinaryRejectsNonBinary(t *testing.T) {
	c := New()
	require.Panics(t, func() { _, _ = c.EmitBinary(op.Jump, 0, 0) })
}

func TestBreakCannotLeaveCallFrame(t *testing.T) {
	c := New()
	c.EnterLoop()
	c.EnterFrame()
	before := c.Code()
	requireCode(t, c.EmitBreak(), errz.E2003)
	require.Equal(t, before, c.Code())
	c.ExitFrame()
	require.NoError(t, c.EmitBreak())
	require.NoError(t, c.ExitLoop())
}
