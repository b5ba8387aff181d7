// Package regvm compiles syntax trees to register bytecode and runs them on
// a virtual machine backed by a garbage-collected heap.
//
// Trees are given either as compiler.Node values or in the tagged JSON form
// understood by ast.Decode:
//
//	result, err := regvm.Eval([]byte(`{"type": "binary", "op": "+",
//	    "left": {"type": "int", "value": 5},
//	    "right": {"type": "int", "value": 3}}`))
package regvm

import (
	"errors"

	"github.com/deepnoodle-ai/regvm/ast"
	"github.com/deepnoodle-ai/regvm/bytecode"
	"github.com/deepnoodle-ai/regvm/compiler"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/gc"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/deepnoodle-ai/regvm/vm"
	"github.com/rs/zerolog"
)

// Option configures a compilation or execution.
type Option func(*options)

type options struct {
	filename  string
	observer  vm.Observer
	heap      gc.Collector
	logger    *zerolog.Logger
	verify    bool
	maxFrames int
}

func collectOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) compilerOpts() []compiler.Option {
	var opts []compiler.Option
	if o.filename != "" {
		opts = append(opts, compiler.WithFilename(o.filename))
	}
	if o.logger != nil {
		opts = append(opts, compiler.WithLogger(*o.logger))
	}
	return opts
}

func (o *options) vmOpts() []vm.Option {
	var opts []vm.Option
	if o.heap != nil {
		opts = append(opts, vm.WithHeap(o.heap))
	}
	if o.observer != nil {
		opts = append(opts, vm.WithObserver(o.observer))
	}
	if o.logger != nil {
		opts = append(opts, vm.WithLogger(*o.logger))
	}
	if o.verify {
		opts = append(opts, vm.WithVerify(true))
	}
	if o.maxFrames > 0 {
		opts = append(opts, vm.WithMaxFrameDepth(o.maxFrames))
	}
	return opts
}

// WithFilename sets the name of the tree being compiled. It appears in
// compile errors and in the chunk.
func WithFilename(filename string) Option {
	return func(o *options) {
		o.filename = filename
	}
}

// WithObserver sets an observer for VM execution events.
func WithObserver(observer vm.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithHeap runs on the given collector instead of gc.Default().
func WithHeap(heap gc.Collector) Option {
	return func(o *options) {
		o.heap = heap
	}
}

// WithLogger sends compiler and VM diagnostics to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithVerify checks the whole chunk before executing it.
func WithVerify(verify bool) Option {
	return func(o *options) {
		o.verify = verify
	}
}

// WithMaxFrameDepth limits the number of nested call frames.
func WithMaxFrameDepth(n int) Option {
	return func(o *options) {
		o.maxFrames = n
	}
}

// Compile decodes a JSON syntax tree and compiles it. The returned chunk is
// immutable and may be run any number of times.
func Compile(tree []byte, opts ...Option) (*bytecode.Chunk, error) {
	node, err := ast.Decode(tree)
	if err != nil {
		var ce *errz.CompileError
		if errors.As(err, &ce) && ce.Filename == "" {
			ce.Filename = collectOptions(opts...).filename
		}
		return nil, err
	}
	return CompileNode(node, opts...)
}

// CompileNode compiles an already built syntax tree.
func CompileNode(node compiler.Node, opts ...Option) (*bytecode.Chunk, error) {
	o := collectOptions(opts...)
	return compiler.Compile(node, o.compilerOpts()...)
}

// Run executes a chunk on a fresh VM and returns its result.
func Run(chunk *bytecode.Chunk, opts ...Option) (value.Value, error) {
	o := collectOptions(opts...)
	return vm.New(chunk, o.vmOpts()...).Run()
}

// Eval is a convenience function that compiles and runs a JSON syntax tree.
// It is equivalent to Compile() followed by Run().
func Eval(tree []byte, opts ...Option) (value.Value, error) {
	chunk, err := Compile(tree, opts...)
	if err != nil {
		return value.Empty, err
	}
	return Run(chunk, opts...)
}
