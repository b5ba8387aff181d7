package ast

import (
	"github.com/deepnoodle-ai/regvm/compiler"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/op"
	"github.com/deepnoodle-ai/regvm/value"
)

var binaryOps = map[string]op.Code{
	"+":  op.Add,
	"-":  op.Sub,
	"*":  op.Mul,
	"/":  op.Div,
	"%":  op.Mod,
	"==": op.Eq,
	"!=": op.NotEq,
	"<":  op.Less,
	"<=": op.LessEq,
	"&&": op.And,
	"||": op.Or,
}

// swappedOps are lowered as their mirror with the operands exchanged.
var swappedOps = map[string]op.Code{
	">":  op.Less,
	">=": op.LessEq,
}

func malformed(c *compiler.Compiler, format string, args ...any) error {
	return c.Errorf(errz.E2016, format, args...)
}

// lowerValue lowers n and fails if it produces no value.
func lowerValue(c *compiler.Compiler, n Node, context string) (op.Register, error) {
	if n == nil {
		return 0, malformed(c, "%s is missing", context)
	}
	r, err := c.Lower(n)
	if err != nil {
		return 0, err
	}
	if r == compiler.NoValue {
		return 0, malformed(c, "%s %s does not produce a value", context, n)
	}
	return r, nil
}

// lowerStmts lowers a statement list, releasing the registers of every
// statement but the last, whose value becomes the value of the list.
func lowerStmts(c *compiler.Compiler, stmts []Node) (op.Register, error) {
	result := compiler.NoValue
	for i, stmt := range stmts {
		mark := c.Mark()
		r, err := c.Lower(stmt)
		if err != nil {
			return 0, err
		}
		if i < len(stmts)-1 {
			c.Release(mark)
		} else {
			result = r
		}
	}
	return result, nil
}

// lowerInto lowers n in its own scope and moves its value, or Empty, into dst.
func lowerInto(c *compiler.Compiler, n Node, dst op.Register) error {
	return c.NewScope(func() error {
		r, err := c.Lower(n)
		if err != nil {
			return err
		}
		if r == compiler.NoValue {
			if r, err = c.EmitConst(value.Empty); err != nil {
				return err
			}
		}
		c.EmitMove(dst, r)
		return nil
	})
}

func (x *Int) Lower(c *compiler.Compiler) (op.Register, error) {
	return c.EmitConst(value.Int(x.Value))
}

func (x *Float) Lower(c *compiler.Compiler) (op.Register, error) {
	return c.EmitConst(value.Float(x.Value))
}

func (x *Bool) Lower(c *compiler.Compiler) (op.Register, error) {
	return c.EmitConst(value.Bool(x.Value))
}

func (x *Char) Lower(c *compiler.Compiler) (op.Register, error) {
	return c.EmitConst(value.Char(x.Value))
}

func (x *Ident) Lower(c *compiler.Compiler) (op.Register, error) {
	return c.EmitLoad(x.Name)
}

func (x *Binary) Lower(c *compiler.Compiler) (op.Register, error) {
	opcode, swap := swappedOps[x.Op]
	if !swap {
		var ok bool
		if opcode, ok = binaryOps[x.Op]; !ok {
			return 0, c.Errorf(errz.E2014, "unsupported binary operator %q", x.Op)
		}
	}
	a, err := lowerValue(c, x.Left, "left operand of "+x.Op)
	if err != nil {
		return 0, err
	}
	b, err := lowerValue(c, x.Right, "right operand of "+x.Op)
	if err != nil {
		return 0, err
	}
	if swap {
		a, b = b, a
	}
	return c.EmitBinary(opcode, a, b)
}

func (x *Unary) Lower(c *compiler.Compiler) (op.Register, error) {
	switch x.Op {
	case "-":
		switch lit := x.Operand.(type) {
		case *Int:
			return c.EmitConst(value.Int(-lit.Value))
		case *Float:
			return c.EmitConst(value.Float(-lit.Value))
		}
		r, err := lowerValue(c, x.Operand, "operand of -")
		if err != nil {
			return 0, err
		}
		return lowerNegate(c, r)
	case "!":
		r, err := lowerValue(c, x.Operand, "operand of !")
		if err != nil {
			return 0, err
		}
		// And with true faults unless r is a bool.
		t, err := c.EmitConst(value.Bool(true))
		if err != nil {
			return 0, err
		}
		b, err := c.EmitBinary(op.And, r, t)
		if err != nil {
			return 0, err
		}
		f, err := c.EmitConst(value.Bool(false))
		if err != nil {
			return 0, err
		}
		return c.EmitBinary(op.Eq, b, f)
	default:
		return 0, c.Errorf(errz.E2014, "unsupported unary operator %q", x.Op)
	}
}

func (x *Var) Lower(c *compiler.Compiler) (op.Register, error) {
	r, err := lowerValue(c, x.Value, "value of "+x.Name)
	if err != nil {
		return 0, err
	}
	// Declared after the value so the initializer sees any outer binding.
	sym, err := c.Declare(x.Name, x.Mutable)
	if err != nil {
		return 0, err
	}
	c.EmitStoreSymbol(sym, r)
	return compiler.NoValue, nil
}

func (x *Assign) Lower(c *compiler.Compiler) (op.Register, error) {
	r, err := lowerValue(c, x.Value, "value of "+x.Name)
	if err != nil {
		return 0, err
	}
	if err := c.EmitStore(x.Name, r); err != nil {
		return 0, err
	}
	return compiler.NoValue, nil
}

func (x *Block) Lower(c *compiler.Compiler) (op.Register, error) {
	result := compiler.NoValue
	err := c.NewScope(func() error {
		r, err := lowerStmts(c, x.Stmts)
		result = r
		return err
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func (x *If) Lower(c *compiler.Compiler) (op.Register, error) {
	cond, err := lowerValue(c, x.Cond, "if condition")
	if err != nil {
		return 0, err
	}
	if x.Then == nil {
		return 0, malformed(c, "if without a body")
	}
	result, err := c.AllocRegister()
	if err != nil {
		return 0, err
	}
	skipThen := c.EmitCondJump(cond)
	mark := c.Mark()
	if err := lowerInto(c, x.Then, result); err != nil {
		return 0, err
	}
	c.Release(mark)
	skipElse := c.EmitUncondJump()
	if err := c.PatchJump(skipThen); err != nil {
		return 0, err
	}
	if x.Else != nil {
		err = lowerInto(c, x.Else, result)
	} else {
		err = lowerInto(c, &Block{}, result)
	}
	if err != nil {
		return 0, err
	}
	c.Release(mark)
	if err := c.PatchJump(skipElse); err != nil {
		return 0, err
	}
	return result, nil
}

func (x *While) Lower(c *compiler.Compiler) (op.Register, error) {
	if x.Body == nil {
		return 0, malformed(c, "while without a body")
	}
	head := c.Position()
	mark := c.Mark()
	cond, err := lowerValue(c, x.Cond, "while condition")
	if err != nil {
		return 0, err
	}
	exit := c.EmitCondJump(cond)
	c.Release(mark)

	c.EnterLoop()
	err = c.NewScope(func() error {
		_, err := c.Lower(x.Body)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.Release(mark)
	c.EmitJumpTo(head)
	if err := c.PatchJump(exit); err != nil {
		return 0, err
	}
	if err := c.ExitLoop(); err != nil {
		return 0, err
	}
	return compiler.NoValue, nil
}

func (x *Break) Lower(c *compiler.Compiler) (op.Register, error) {
	if err := c.EmitBreak(); err != nil {
		return 0, err
	}
	return compiler.NoValue, nil
}

func (x *Call) Lower(c *compiler.Compiler) (op.Register, error) {
	if len(x.Params) != len(x.Args) {
		return 0, malformed(c, "call binds %d parameters to %d arguments", len(x.Params), len(x.Args))
	}
	if x.Body == nil {
		return 0, malformed(c, "call without a body")
	}
	argc := len(x.Args)
	if argc > compiler.MaxRegisters {
		return 0, c.Errorf(errz.E2015, "call with %d arguments exceeds %d", argc, compiler.MaxRegisters)
	}
	var base op.Register
	if argc > 0 {
		var err error
		if base, err = c.AllocRegisters(argc); err != nil {
			return 0, err
		}
	}
	for i, arg := range x.Args {
		mark := c.Mark()
		r, err := lowerValue(c, arg, "argument")
		if err != nil {
			return 0, err
		}
		c.EmitMove(base+op.Register(i), r)
		c.Release(mark)
	}
	if err := c.EmitPushFrame(base, argc); err != nil {
		return 0, err
	}

	c.EnterFrame()
	var result op.Register
	err := c.NewScope(func() error {
		for _, name := range x.Params {
			if _, err := c.DeclareParam(name); err != nil {
				return err
			}
		}
		r, err := c.Lower(x.Body)
		if err != nil {
			return err
		}
		if r == compiler.NoValue {
			if r, err = c.EmitConst(value.Empty); err != nil {
				return err
			}
		}
		result = r
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.ExitFrame()

	dst, err := c.AllocRegister()
	if err != nil {
		return 0, err
	}
	c.EmitPopFrame(result, dst)
	return dst, nil
}

func (x *Program) Lower(c *compiler.Compiler) (op.Register, error) {
	return lowerStmts(c, x.Stmts)
}

// lowerNegate negates r without a dedicated opcode. The kind is only known
// at run time: r - r is Int(0) for ints and a float (or NaN) for floats, and
// faults for every other kind. Ints compute 0 - r; floats multiply by -1.0,
// which flips the sign of zeros and infinities exactly.
func lowerNegate(c *compiler.Compiler, r op.Register) (op.Register, error) {
	diff, err := c.EmitBinary(op.Sub, r, r)
	if err != nil {
		return 0, err
	}
	zero, err := c.EmitConst(value.Int(0))
	if err != nil {
		return 0, err
	}
	isInt, err := c.EmitBinary(op.Eq, diff, zero)
	if err != nil {
		return 0, err
	}
	dst, err := c.AllocRegister()
	if err != nil {
		return 0, err
	}
	toFloat := c.EmitCondJump(isInt)
	n, err := c.EmitBinary(op.Sub, zero, r)
	if err != nil {
		return 0, err
	}
	c.EmitMove(dst, n)
	toEnd := c.EmitUncondJump()
	if err := c.PatchJump(toFloat); err != nil {
		return 0, err
	}
	minusOne, err := c.EmitConst(value.Float(-1))
	if err != nil {
		return 0, err
	}
	n, err = c.EmitBinary(op.Mul, r, minusOne)
	if err != nil {
		return 0, err
	}
	c.EmitMove(dst, n)
	if err := c.PatchJump(toEnd); err != nil {
		return 0, err
	}
	return dst, nil
}
