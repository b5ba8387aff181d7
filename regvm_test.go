package regvm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/deepnoodle-ai/regvm/ast"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/gc"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/deepnoodle-ai/regvm/vm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const sumTree = `{"type": "binary", "op": "+",
	"left": {"type": "int", "value": 5},
	"right": {"type": "int", "value": 3}}`

func TestEval(t *testing.T) {
	result, err := Eval([]byte(sumTree), WithHeap(gc.NewRegion(gc.DefaultConfig())))
	require.NoError(t, err)
	require.Equal(t, value.Int(8), result)
}

func TestEvalProgram(t *testing.T) {
	tree := `{"type": "program", "stmts": [
		{"type": "var", "name": "n", "mutable": true, "value": {"type": "int", "value": 10}},
		{"type": "var", "name": "acc", "mutable": true, "value": {"type": "int", "value": 1}},
		{"type": "while",
		 "cond": {"type": "binary", "op": ">", "left": {"type": "ident", "name": "n"}, "right": {"type": "int", "value": 1}},
		 "body": {"type": "block", "stmts": [
			{"type": "assign", "name": "acc", "value": {"type": "binary", "op": "*",
				"left": {"type": "ident", "name": "acc"}, "right": {"type": "ident", "name": "n"}}},
			{"type": "assign", "name": "n", "value": {"type": "binary", "op": "-",
				"left": {"type": "ident", "name": "n"}, "right": {"type": "int", "value": 1}}}
		 ]}},
		{"type": "ident", "name": "acc"}
	]}`
	result, err := Eval([]byte(tree), WithVerify(true), WithHeap(gc.NewRegion(gc.DefaultConfig())))
	require.NoError(t, err)
	require.Equal(t, value.Int(3628800), result)
}

func TestCompileOnceRunTwice(t *testing.T) {
	chunk, err := Compile([]byte(sumTree), WithFilename("sum.json"))
	require.NoError(t, err)
	require.Equal(t, "sum.json", chunk.Filename())
	for i := 0; i < 2; i++ {
		result, err := Run(chunk, WithHeap(gc.NewRegion(gc.DefaultConfig())))
		require.NoError(t, err)
		require.Equal(t, value.Int(8), result)
	}
}

func TestCompileErrorFilename(t *testing.T) {
	_, err := Compile([]byte(`{"type": "ident", "name": "missing"}`), WithFilename("prog.json"))
	var ce *errz.CompileError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, errz.E2001, ce.Code)
	require.Equal(t, "prog.json", ce.Filename)

	_, err = Compile([]byte(`{"type": "int", "value": 0.5}`), WithFilename("lit.json"))
	require.True(t, errors.As(err, &ce))
	require.Equal(t, errz.E2013, ce.Code)
	require.Equal(t, "lit.json", ce.Filename)
}

func TestCompileNode(t *testing.T) {
	chunk, err := CompileNode(&ast.Char{Value: 'q'})
	require.NoError(t, err)
	result, err := Run(chunk, WithHeap(gc.NewRegion(gc.DefaultConfig())))
	require.NoError(t, err)
	require.Equal(t, value.Char('q'), result)
}

func TestRuntimeFault(t *testing.T) {
	tree := `{"type": "binary", "op": "+",
		"left": {"type": "int", "value": 1},
		"right": {"type": "float", "value": 2}}`
	_, err := Eval([]byte(tree), WithHeap(gc.NewRegion(gc.DefaultConfig())))
	var rt *errz.RuntimeError
	require.True(t, errors.As(err, &rt))
	require.Equal(t, errz.E3001, rt.Code)
	require.ErrorIs(t, err, vm.ErrTypeMismatch)
}

func TestLoggerOption(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	_, err := Eval([]byte(sumTree), WithLogger(logger), WithHeap(gc.NewRegion(gc.DefaultConfig())))
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"message":"compiled"`)
	require.Contains(t, buf.String(), `"message":"run finished"`)
}

func TestMaxFrameDepthOption(t *testing.T) {
	tree := `{"type": "call", "args": [], "body":
		{"type": "call", "args": [], "body": {"type": "int", "value": 1}}}`
	_, err := Eval([]byte(tree), WithMaxFrameDepth(2), WithHeap(gc.NewRegion(gc.DefaultConfig())))
	var rt *errz.RuntimeError
	require.True(t, errors.As(err, &rt))
	require.Equal(t, errz.E3006, rt.Code)
}
