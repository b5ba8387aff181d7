package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/deepnoodle-ai/regvm/errz"
)

// rawNode is the tagged JSON form of a node:
//
//	{"type": "binary", "op": "+", "left": {"type": "int", "value": 5},
//	 "right": {"type": "int", "value": 3}}
//
// Statement lists use "stmts"; single bodies use "body".
type rawNode struct {
	Type    string            `json:"type"`
	Value   json.RawMessage   `json:"value,omitempty"`
	Name    string            `json:"name,omitempty"`
	Op      string            `json:"op,omitempty"`
	Mutable bool              `json:"mutable,omitempty"`
	Left    json.RawMessage   `json:"left,omitempty"`
	Right   json.RawMessage   `json:"right,omitempty"`
	Operand json.RawMessage   `json:"operand,omitempty"`
	Cond    json.RawMessage   `json:"cond,omitempty"`
	Then    json.RawMessage   `json:"then,omitempty"`
	Else    json.RawMessage   `json:"else,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Stmts   []json.RawMessage `json:"stmts,omitempty"`
	Params  []string          `json:"params,omitempty"`
	Args    []json.RawMessage `json:"args,omitempty"`
}

// Decode parses a syntax tree from its tagged JSON form. Literal values
// that do not fit their node type fail with E2013; unknown node types and
// missing children fail with E2016.
func Decode(data []byte) (Node, error) {
	return decodeNode(data, "$")
}

func treeError(path, format string, args ...any) *errz.CompileError {
	err := errz.NewCompileError(errz.E2016, format, args...)
	err.Note = "at " + path
	return err
}

func literalError(path, format string, args ...any) *errz.CompileError {
	err := errz.NewCompileError(errz.E2013, format, args...)
	err.Note = "at " + path
	return err
}

func decodeNode(data []byte, path string) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, treeError(path, "missing node")
	}
	var raw rawNode
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, treeError(path, "invalid node: %v", err)
	}
	switch raw.Type {
	case "int":
		n, err := number(raw.Value, path)
		if err != nil {
			return nil, err
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return nil, literalError(path, "%s is not a 64-bit integer", n)
		}
		return &Int{Value: i}, nil
	case "float":
		n, err := number(raw.Value, path)
		if err != nil {
			return nil, err
		}
		f, err := n.Float64()
		if err != nil {
			return nil, literalError(path, "%s is not a float", n)
		}
		return &Float{Value: f}, nil
	case "bool":
		var b bool
		if err := json.Unmarshal(raw.Value, &b); err != nil {
			return nil, literalError(path, "bool literal needs true or false")
		}
		return &Bool{Value: b}, nil
	case "char":
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return nil, literalError(path, "char literal needs a string")
		}
		if utf8.RuneCountInString(s) != 1 {
			return nil, literalError(path, "char literal %q must be exactly one character", s)
		}
		r, _ := utf8.DecodeRuneInString(s)
		return &Char{Value: r}, nil
	case "ident":
		if raw.Name == "" {
			return nil, treeError(path, "ident without a name")
		}
		return &Ident{Name: raw.Name}, nil
	case "binary":
		left, err := decodeNode(raw.Left, path+".left")
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(raw.Right, path+".right")
		if err != nil {
			return nil, err
		}
		return &Binary{Op: raw.Op, Left: left, Right: right}, nil
	case "unary":
		operand, err := decodeNode(raw.Operand, path+".operand")
		if err != nil {
			return nil, err
		}
		return &Unary{Op: raw.Op, Operand: operand}, nil
	case "var":
		if raw.Name == "" {
			return nil, treeError(path, "var without a name")
		}
		v, err := decodeNode(raw.Value, path+".value")
		if err != nil {
			return nil, err
		}
		return &Var{Name: raw.Name, Value: v, Mutable: raw.Mutable}, nil
	case "assign":
		if raw.Name == "" {
			return nil, treeError(path, "assign without a name")
		}
		v, err := decodeNode(raw.Value, path+".value")
		if err != nil {
			return nil, err
		}
		return &Assign{Name: raw.Name, Value: v}, nil
	case "block":
		stmts, err := decodeList(raw.Stmts, path+".stmts")
		if err != nil {
			return nil, err
		}
		return &Block{Stmts: stmts}, nil
	case "if":
		cond, err := decodeNode(raw.Cond, path+".cond")
		if err != nil {
			return nil, err
		}
		then, err := decodeNode(raw.Then, path+".then")
		if err != nil {
			return nil, err
		}
		node := &If{Cond: cond, Then: then}
		if len(raw.Else) > 0 {
			if node.Else, err = decodeNode(raw.Else, path+".else"); err != nil {
				return nil, err
			}
		}
		return node, nil
	case "while":
		cond, err := decodeNode(raw.Cond, path+".cond")
		if err != nil {
			return nil, err
		}
		body, err := decodeNode(raw.Body, path+".body")
		if err != nil {
			return nil, err
		}
		return &While{Cond: cond, Body: body}, nil
	case "break":
		return &Break{}, nil
	case "call":
		args, err := decodeList(raw.Args, path+".args")
		if err != nil {
			return nil, err
		}
		body, err := decodeNode(raw.Body, path+".body")
		if err != nil {
			return nil, err
		}
		return &Call{Params: raw.Params, Args: args, Body: body}, nil
	case "program":
		stmts, err := decodeList(raw.Stmts, path+".stmts")
		if err != nil {
			return nil, err
		}
		return &Program{Stmts: stmts}, nil
	case "":
		return nil, treeError(path, "node without a type")
	default:
		return nil, treeError(path, "unknown node type %q", raw.Type)
	}
}

func decodeList(items []json.RawMessage, path string) ([]Node, error) {
	nodes := make([]Node, 0, len(items))
	for i, item := range items {
		n, err := decodeNode(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func number(data json.RawMessage, path string) (json.Number, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", literalError(path, "missing numeric value")
	}
	n, ok := v.(json.Number)
	if !ok {
		return "", literalError(path, "value %v is not a number", v)
	}
	return n, nil
}
