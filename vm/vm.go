// Package vm provides a VirtualMachine that executes compiled regvm chunks.
//
// The machine is a register machine. Each frame is a window of FrameSize
// registers on a Stack whose storage lives on a gc heap; the bottom of the
// stack holds the unit-wide local area addressed by Load and Store. A run
// is a single uninterrupted pass that ends either Returned, with a value,
// or Faulted, with an *errz.RuntimeError naming the offending instruction.
package vm

import (
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/regvm/bytecode"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/gc"
	"github.com/deepnoodle-ai/regvm/op"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/rs/zerolog"
)

// MaxFrameDepth is the default limit on simultaneously open frames.
const MaxFrameDepth = 256

// State is the execution state of a VirtualMachine.
type State uint8

const (
	// Ready means Run has not been called yet.
	Ready State = iota
	// Running means the machine is executing instructions.
	Running
	// Returned is terminal: a Return instruction produced the result.
	Returned
	// Faulted is terminal: execution stopped with a runtime error.
	Faulted
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Returned:
		return "returned"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// ErrAlreadyRun is returned by Run on a machine that has already run.
var ErrAlreadyRun = errors.New("vm has already run")

type VirtualMachine struct {
	ip        int // instruction pointer
	state     State
	result    value.Value
	fault     *errz.RuntimeError
	chunk     *bytecode.Chunk
	heap      gc.Collector
	stack     *Stack
	frame     *Frame
	steps     int64
	logger    zerolog.Logger
	observer  Observer
	obsConfig ObserverConfig
	verify    bool
	maxFrames int
}

// New creates a new Virtual Machine for chunk.
func New(chunk *bytecode.Chunk, options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		chunk:     chunk,
		logger:    zerolog.Nop(),
		maxFrames: MaxFrameDepth,
	}
	for _, opt := range options {
		opt(vm)
	}
	if vm.heap == nil {
		vm.heap = gc.Default()
	}
	if vm.maxFrames <= 0 {
		vm.maxFrames = MaxFrameDepth
	}
	if vm.observer != nil {
		vm.obsConfig = NormalizeConfig(vm.observer.Config())
	}
	return vm
}

// State returns the current execution state.
func (vm *VirtualMachine) State() State {
	return vm.state
}

// Result returns the value produced by Return. It is Empty unless the state
// is Returned.
func (vm *VirtualMachine) Result() value.Value {
	return vm.result
}

// Fault returns the error that stopped execution, or nil.
func (vm *VirtualMachine) Fault() *errz.RuntimeError {
	return vm.fault
}

// IP returns the instruction pointer. After a fault it is the offset of the
// faulting instruction.
func (vm *VirtualMachine) IP() int {
	return vm.ip
}

// Steps returns the number of instructions executed.
func (vm *VirtualMachine) Steps() int64 {
	return vm.steps
}

// Run executes the chunk to completion. It returns the result on Return
// and the fault otherwise. A machine runs at most once.
func (vm *VirtualMachine) Run() (result value.Value, err error) {
	if vm.state != Ready {
		return value.Empty, ErrAlreadyRun
	}
	if vm.chunk == nil {
		return value.Empty, fmt.Errorf("no chunk to run")
	}
	vm.state = Running
	vm.logger.Debug().
		Str("chunk", vm.chunk.ID().String()).
		Int("code_size", vm.chunk.CodeSize()).
		Int("locals", vm.chunk.LocalCount()).
		Msg("run started")

	defer func() {
		// Invariant violations panic deep inside the stack and gc layers;
		// surface them as a fault rather than crashing the host.
		if r := recover(); r != nil {
			vm.setFault(errz.NewRuntimeError(errz.E3007, errz.ErrRuntime, "panic: %v", r))
		}
		if vm.state == Faulted {
			result, err = value.Empty, vm.fault
			vm.logger.Warn().
				Err(vm.fault).
				Int("ip", vm.ip).
				Str("code", vm.fault.Code.String()).
				Msg("run faulted")
			return
		}
		result, err = vm.result, nil
		vm.logger.Debug().
			Int64("steps", vm.steps).
			Str("result", vm.result.String()).
			Msg("run finished")
	}()

	if vm.verify {
		if verr := bytecode.Verify(vm.chunk); verr != nil {
			vm.setFault(errz.NewRuntimeError(errz.E4003, errz.ErrFormat,
				"chunk failed verification").WithCause(verr))
			return
		}
	}

	if rerr := vm.heap.RegisterThread(); rerr != nil {
		vm.setFault(asRuntimeError(rerr))
		return
	}
	defer vm.heap.UnregisterThread()

	// exit copes with a partially entered machine.
	defer vm.exit()
	if ferr := vm.enter(); ferr != nil {
		vm.setFault(ferr)
		return
	}

	if ferr := vm.eval(); ferr != nil {
		vm.setFault(ferr)
	}
	return
}

func (vm *VirtualMachine) setFault(err *errz.RuntimeError) {
	vm.state = Faulted
	vm.fault = err
}

// enter allocates the stack, reserves the local area and opens the entry
// frame.
func (vm *VirtualMachine) enter() *errz.RuntimeError {
	stack, err := NewStack(vm.heap)
	if err != nil {
		return asRuntimeError(err)
	}
	vm.stack = stack
	if err := stack.ReserveLocals(vm.chunk.LocalCount()); err != nil {
		return asRuntimeError(err)
	}
	frame, err := stack.Push()
	if err != nil {
		return asRuntimeError(err)
	}
	vm.frame = frame
	return nil
}

// exit pops every open frame and releases the stack.
func (vm *VirtualMachine) exit() {
	if vm.stack == nil {
		return
	}
	for top := vm.stack.Top(); top != nil; top = vm.stack.Top() {
		if err := top.Pop(); err != nil {
			vm.logger.Warn().Err(err).Msg("frame pop failed during exit")
			break
		}
	}
	vm.frame = nil
	vm.stack.Release()
}

// Evaluate the chunk starting at vm.ip until it returns or faults.
func (vm *VirtualMachine) eval() *errz.RuntimeError {
	codeSize := vm.chunk.CodeSize()
	for vm.state == Running {
		if vm.ip >= codeSize {
			return errz.NewRuntimeError(errz.E3007, errz.ErrRuntime,
				"execution ran past the end of the code without returning").At(vm.ip, "")
		}
		ins, err := vm.chunk.Decode(vm.ip)
		if err != nil {
			return asRuntimeError(err).At(vm.ip, "")
		}
		if vm.observer != nil && vm.shouldObserveStep() {
			event := StepEvent{
				IP:         vm.ip,
				Opcode:     ins.Op,
				OpcodeName: ins.Op.String(),
				FrameDepth: vm.stack.Frames(),
			}
			if !vm.observer.OnStep(event) {
				return halted().At(vm.ip, ins.Op.String())
			}
		}
		vm.steps++
		if ferr := vm.step(ins); ferr != nil {
			return ferr.At(ins.Offset, ins.Op.String())
		}
	}
	return nil
}

func (vm *VirtualMachine) shouldObserveStep() bool {
	switch vm.obsConfig.StepMode {
	case StepAll:
		return true
	case StepSampled:
		return vm.steps%int64(vm.obsConfig.SampleInterval) == 0
	default:
		return false
	}
}

func halted() *errz.RuntimeError {
	return errz.NewRuntimeError(errz.E3012, errz.ErrRuntime,
		"execution halted by observer").WithCause(ErrHalted)
}

// step executes one decoded instruction. The guard issued here covers every
// register access up to the first operation that can allocate.
func (vm *VirtualMachine) step(ins bytecode.Instruction) *errz.RuntimeError {
	g := gc.IssueGuard(vm.heap)
	defer g.Retire()

	regs, err := vm.frame.Registers(g)
	if err != nil {
		return asRuntimeError(err)
	}
	next := ins.Next()

	switch ins.Op {
	case op.Return:
		vm.result = regs[ins.Register(0)]
		vm.state = Returned
		return nil
	case op.Const:
		idx := int(ins.Operands[1])
		if idx >= vm.chunk.ConstantCount() {
			return errz.NewRuntimeError(errz.E4003, errz.ErrFormat,
				"constant index %d out of range (pool has %d)", idx, vm.chunk.ConstantCount())
		}
		regs[ins.Register(0)] = vm.chunk.ConstantAt(idx)
	case op.Add, op.Sub, op.Mul, op.Div, op.Mod,
		op.Eq, op.NotEq, op.Less, op.LessEq, op.And, op.Or:
		result, ferr := binaryOp(ins.Op, regs[ins.Register(1)], regs[ins.Register(2)])
		if ferr != nil {
			return ferr
		}
		regs[ins.Register(0)] = result
	case op.Jump:
		target, ferr := vm.jumpTarget(ins.Operands[0])
		if ferr != nil {
			return ferr
		}
		next = target
	case op.JumpIfFalse:
		cond := regs[ins.Register(0)]
		if cond.IsEmpty() {
			return emptyError("jump condition is empty")
		}
		b, ok := cond.AsBool()
		if !ok {
			return typeError("jump condition must be a bool (got %s)", cond.Kind())
		}
		if !b {
			target, ferr := vm.jumpTarget(ins.Operands[1])
			if ferr != nil {
				return ferr
			}
			next = target
		}
	case op.Load:
		locals, ferr := vm.locals(g, int(ins.Operands[1]))
		if ferr != nil {
			return ferr
		}
		v := locals[ins.Operands[1]]
		if v.IsEmpty() {
			return emptyError("load of uninitialized %s", vm.localName(int(ins.Operands[1])))
		}
		regs[ins.Register(0)] = v
	case op.Store:
		locals, ferr := vm.locals(g, int(ins.Operands[0]))
		if ferr != nil {
			return ferr
		}
		locals[ins.Operands[0]] = regs[ins.Register(1)]
	case op.LoadLocal:
		slot := int(ins.Operands[1])
		if slot >= FrameSize {
			return frameRange(slot)
		}
		regs[ins.Register(0)] = regs[slot]
	case op.StoreLocal:
		slot := int(ins.Operands[0])
		if slot >= FrameSize {
			return frameRange(slot)
		}
		regs[slot] = regs[ins.Register(1)]
	case op.PushFrame:
		// Copy the arguments out before Push allocates; regs is only
		// valid under g.
		start, count := int(ins.Operands[0]), int(ins.Operands[1])
		if start+count > FrameSize {
			return frameRange(start + count - 1)
		}
		args := make([]value.Value, count)
		copy(args, regs[start:start+count])
		g.Retire()
		if ferr := vm.pushFrame(ins.Offset, args); ferr != nil {
			return ferr
		}
	case op.PopFrame:
		v := regs[ins.Register(0)]
		if ferr := vm.popFrame(ins.Offset, ins.Register(1), v); ferr != nil {
			return ferr
		}
	default:
		return errz.NewRuntimeError(errz.E4002, errz.ErrFormat, "unhandled opcode %s", ins.Op)
	}
	vm.ip = next
	return nil
}

func (vm *VirtualMachine) jumpTarget(target uint32) (int, *errz.RuntimeError) {
	if int64(target) > int64(vm.chunk.CodeSize()) {
		return 0, errz.NewRuntimeError(errz.E4003, errz.ErrFormat,
			"jump target %d beyond end of code (%d bytes)", target, vm.chunk.CodeSize())
	}
	return int(target), nil
}

// locals returns the unit-wide local area after checking slot against the
// chunk's local count.
func (vm *VirtualMachine) locals(g *gc.Guard, slot int) ([]value.Value, *errz.RuntimeError) {
	if slot >= vm.chunk.LocalCount() {
		return nil, errz.NewRuntimeError(errz.E3011, errz.ErrRuntime,
			"local slot %d out of range (%d locals)", slot, vm.chunk.LocalCount()).WithCause(ErrFrameRange)
	}
	all, err := vm.stack.View(g)
	if err != nil {
		return nil, asRuntimeError(err)
	}
	return all[:vm.stack.LocalArea()], nil
}

func (vm *VirtualMachine) localName(slot int) string {
	if name := vm.chunk.LocalNameAt(slot); name != "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("slot %d", slot)
}

func frameRange(slot int) *errz.RuntimeError {
	return errz.NewRuntimeError(errz.E3011, errz.ErrRuntime,
		"slot %d outside a %d register frame", slot, FrameSize).WithCause(ErrFrameRange)
}

func (vm *VirtualMachine) pushFrame(ip int, args []value.Value) *errz.RuntimeError {
	if vm.stack.Frames() >= vm.maxFrames {
		return errz.NewRuntimeError(errz.E3006, errz.ErrRuntime,
			"more than %d frames open", vm.maxFrames).WithCause(ErrFrameDepth)
	}
	frame, err := vm.stack.Push()
	if err != nil {
		return asRuntimeError(err)
	}
	vm.frame = frame
	// Push may have collected, so the arguments need a fresh guard.
	err = gc.WithGuard(vm.heap, func(g *gc.Guard) error {
		regs, err := frame.Registers(g)
		if err != nil {
			return err
		}
		copy(regs, args)
		return nil
	})
	if err != nil {
		return asRuntimeError(err)
	}
	if vm.observer != nil && vm.obsConfig.ObserveCalls {
		event := CallEvent{IP: ip, ArgCount: len(args), FrameDepth: vm.stack.Frames()}
		if !vm.observer.OnCall(event) {
			return halted()
		}
	}
	return nil
}

func (vm *VirtualMachine) popFrame(ip int, dst op.Register, v value.Value) *errz.RuntimeError {
	child := vm.frame
	parent := child.parent
	if parent == nil {
		return errz.NewRuntimeError(errz.E3007, errz.ErrRuntime,
			"pop of the entry frame").WithCause(ErrNoFrame)
	}
	if err := child.Pop(); err != nil {
		return asRuntimeError(err)
	}
	vm.frame = parent
	err := gc.WithGuard(vm.heap, func(g *gc.Guard) error {
		return parent.Set(g, int(dst), v)
	})
	if err != nil {
		return asRuntimeError(err)
	}
	if vm.observer != nil && vm.obsConfig.ObserveReturns {
		event := ReturnEvent{IP: ip, FrameDepth: vm.stack.Frames()}
		if !vm.observer.OnReturn(event) {
			return halted()
		}
	}
	return nil
}
