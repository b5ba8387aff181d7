package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const sumTree = `{"type": "binary", "op": "+",
	"left": {"type": "int", "value": 5},
	"right": {"type": "int", "value": 3}}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	noColor := color.NoColor
	t.Cleanup(func() { color.NoColor = noColor })
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--no-color", "--log-level", "disabled"))
	err := cmd.Execute()
	return out.String(), err
}

func writeTree(t *testing.T, tree string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte(tree), 0o644))
	return path
}

func TestRunFile(t *testing.T) {
	out, err := execute(t, "", "run", writeTree(t, sumTree))
	require.NoError(t, err)
	require.Equal(t, "8\n", out)
}

func TestRunStdin(t *testing.T) {
	out, err := execute(t, `{"type": "char", "value": "x"}`, "run", "-o", "text")
	require.NoError(t, err)
	require.Equal(t, "'x'\n", out)
}

func TestRunEmptyResultPrintsNothing(t *testing.T) {
	tree := `{"type": "var", "name": "a", "value": {"type": "int", "value": 1}}`
	out, err := execute(t, tree, "run", "-")
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestRunFault(t *testing.T) {
	tree := `{"type": "binary", "op": "/",
		"left": {"type": "int", "value": 1},
		"right": {"type": "int", "value": 0}}`
	_, err := execute(t, tree, "run", "--verify")
	var rt *errz.RuntimeError
	require.ErrorAs(t, err, &rt)
	require.Equal(t, errz.E3002, rt.Code)
}

func TestRunHeapTooSmall(t *testing.T) {
	_, err := execute(t, sumTree, "run", "--heap-size", "64")
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of memory")
}

func TestRunConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "regvm.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("heap-size: 64\n"), 0o644))
	_, err := execute(t, sumTree, "run", "--config", cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of memory")
}

func TestDis(t *testing.T) {
	out, err := execute(t, sumTree, "dis")
	require.NoError(t, err)
	require.Contains(t, out, "| OFFSET |")
	require.Contains(t, out, "ADD")
	require.Contains(t, out, "RETURN")
}

func TestDisCompileError(t *testing.T) {
	_, err := execute(t, `{"type": "ident", "name": "nope"}`, "dis")
	require.Error(t, err)
	require.Contains(t, err.Error(), `undefined symbol "nope"`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version", "-o", "json")
	require.NoError(t, err)
	require.Contains(t, out, `"version": "dev"`)
}

func TestGetOutput(t *testing.T) {
	noColor := color.NoColor
	t.Cleanup(func() { color.NoColor = noColor })
	color.NoColor = true
	tests := []struct {
		name     string
		value    value.Value
		format   string
		expected string
	}{
		{"default int", value.Int(3), "", "3"},
		{"default empty", value.Empty, "", ""},
		{"json bool", value.Bool(true), "json", "true"},
		{"json char", value.Char('a'), "json", `"a"`},
		{"text float", value.Float(0.5), "text", "0.5"},
		{"text empty", value.Empty, "text", "<empty>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := getOutput(tt.value, tt.format)
			require.NoError(t, err)
			require.Equal(t, tt.expected, out)
		})
	}
	_, err := getOutput(value.Int(1), "yaml")
	require.Error(t, err)
}
