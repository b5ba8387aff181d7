package vm

import (
	"github.com/deepnoodle-ai/regvm/gc"
	"github.com/rs/zerolog"
)

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithHeap sets the collector the register stack is allocated on. The
// default is gc.Default().
func WithHeap(heap gc.Collector) Option {
	return func(vm *VirtualMachine) {
		vm.heap = heap
	}
}

// WithLogger sets the logger for run and fault diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VirtualMachine) {
		vm.logger = logger
	}
}

// WithObserver sets an observer for execution events.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}

// WithVerify makes Run check the whole chunk with bytecode.Verify before
// executing anything.
func WithVerify(verify bool) Option {
	return func(vm *VirtualMachine) {
		vm.verify = verify
	}
}

// WithMaxFrameDepth limits the number of simultaneously open frames. The
// default is MaxFrameDepth.
func WithMaxFrameDepth(n int) Option {
	return func(vm *VirtualMachine) {
		vm.maxFrames = n
	}
}
