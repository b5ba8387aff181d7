// Package ast defines the syntax tree consumed by the compiler. Every node
// implements compiler.Node and lowers itself into register bytecode.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/regvm/compiler"
)

// Node is a syntax tree node.
type Node interface {
	compiler.Node

	// String returns a human friendly representation of the node.
	String() string
}

// Int is an integer literal.
type Int struct {
	Value int64
}

func (x *Int) String() string { return strconv.FormatInt(x.Value, 10) }

// Float is a floating point literal.
type Float struct {
	Value float64
}

func (x *Float) String() string { return strconv.FormatFloat(x.Value, 'g', -1, 64) }

// Bool is a boolean literal.
type Bool struct {
	Value bool
}

func (x *Bool) String() string { return strconv.FormatBool(x.Value) }

// Char is a character literal.
type Char struct {
	Value rune
}

func (x *Char) String() string { return strconv.QuoteRune(x.Value) }

// Ident is a reference to a declared name.
type Ident struct {
	Name string
}

func (x *Ident) String() string { return x.Name }

// Binary applies an infix operator: + - * / % == != < <= > >= && ||.
type Binary struct {
	Op    string
	Left  Node
	Right Node
}

func (x *Binary) String() string {
	return "(" + x.Left.String() + " " + x.Op + " " + x.Right.String() + ")"
}

// Unary applies a prefix operator: - or !.
type Unary struct {
	Op      string
	Operand Node
}

func (x *Unary) String() string { return "(" + x.Op + x.Operand.String() + ")" }

// Var declares a name in the current scope and initializes it.
type Var struct {
	Name    string
	Value   Node
	Mutable bool
}

func (x *Var) String() string {
	if x.Mutable {
		return "var " + x.Name + " = " + x.Value.String()
	}
	return "const " + x.Name + " = " + x.Value.String()
}

// Assign stores a new value into a mutable name.
type Assign struct {
	Name  string
	Value Node
}

func (x *Assign) String() string { return x.Name + " = " + x.Value.String() }

// Block is a sequence of statements in a nested scope. Its value is the
// value of its last statement.
type Block struct {
	Stmts []Node
}

func (x *Block) String() string { return "{ " + joinNodes(x.Stmts, "; ") + " }" }

// If evaluates Then when Cond is true and Else otherwise. As an expression
// it yields the value of the branch taken, or Empty.
type If struct {
	Cond Node
	Then Node
	Else Node // optional
}

func (x *If) String() string {
	s := "if " + x.Cond.String() + " " + x.Then.String()
	if x.Else != nil {
		s += " else " + x.Else.String()
	}
	return s
}

// While repeats Body as long as Cond is true.
type While struct {
	Cond Node
	Body Node
}

func (x *While) String() string { return "while " + x.Cond.String() + " " + x.Body.String() }

// Break leaves the innermost loop.
type Break struct{}

func (x *Break) String() string { return "break" }

// Call evaluates Body in a new frame with Params bound to the values of
// Args. Parameters are visible only inside Body's own frame.
type Call struct {
	Params []string
	Args   []Node
	Body   Node
}

func (x *Call) String() string {
	return fmt.Sprintf("call(%s)(%s) %s", strings.Join(x.Params, ", "), joinNodes(x.Args, ", "), x.Body)
}

// Program is the top-level statement list. Declarations live in the root
// scope.
type Program struct {
	Stmts []Node
}

func (x *Program) String() string { return joinNodes(x.Stmts, "\n") }

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}
