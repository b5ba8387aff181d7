// Package compiler lowers a syntax tree into register bytecode.
//
// # Registers
//
// Every value an expression produces lives in a register of the current VM
// frame. Registers are handed out from a watermark that statements reset
// with Mark and Release, so temporaries are reused between statements.
// A program that needs more than MaxRegisters live registers at once fails
// with E2007.
//
// # Symbols
//
// Names resolve lexically through a chain of SymbolTable scopes. Declared
// variables get a slot in the unit-wide local area; slot numbers increase
// monotonically for the lifetime of the Compiler, so two declarations never
// share a slot even in sibling scopes. Call parameters are bound to
// registers of the frame that declares them and cannot be reached from a
// nested frame (E2012).
//
// # Jumps
//
// Forward jumps are emitted with a placeholder target and return a
// JumpMark; PatchJump later writes the current position as an absolute byte
// offset. Breaks are collected per loop and patched by ExitLoop.
//
// # Rollback
//
// Lower restores the byte buffer, constant pool, scopes, loops and register
// watermark when a node fails to lower, so partial output is never left
// behind.
package compiler

import (
	"fmt"
	"math"

	"github.com/deepnoodle-ai/regvm/bytecode"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/op"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/rs/zerolog"
)

const (
	// Placeholder is the target written into jumps before they are patched.
	Placeholder = uint32(math.MaxUint32)

	// MaxConstants is the size limit of the constant pool.
	MaxConstants = math.MaxUint16 + 1

	// MaxLocals is the size limit of the unit-wide local area.
	MaxLocals = math.MaxUint16 + 1
)

// Node is a syntax tree node that knows how to lower itself. Lower returns
// the register holding the node's value, or NoValue.
type Node interface {
	Lower(c *Compiler) (op.Register, error)
}

// JumpMark identifies an emitted jump whose target is not yet known.
type JumpMark struct {
	offset int
	opcode op.Code
}

// Offset returns the byte offset of the jump instruction.
func (m JumpMark) Offset() int {
	return m.offset
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithFilename sets the source name reported in compile errors.
func WithFilename(name string) Option {
	return func(c *Compiler) {
		c.filename = name
	}
}

// WithLogger sets the logger used for compilation diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// Compiler accumulates bytecode for one compilation unit.
type Compiler struct {
	filename string
	logger   zerolog.Logger

	code       []byte
	constants  []value.Value
	constIndex map[value.Value]int
	localNames []string
	scope      *SymbolTable
	loops      []*loop
	frames     []frame

	// journal records scope insertions so that a failed Lower can undo them.
	journal []scopeEntry
	depth   int
}

type scopeEntry struct {
	table *SymbolTable
	name  string
	prev  *Symbol
}

// New creates a Compiler with an empty root scope.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		logger:     zerolog.Nop(),
		constIndex: map[value.Value]int{},
		scope:      NewSymbolTable(),
		frames:     []frame{{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile lowers node into a new Compiler and returns the finished chunk.
func Compile(node Node, opts ...Option) (*bytecode.Chunk, error) {
	return New(opts...).Compile(node)
}

// Errorf returns a compile error carrying the compiler's filename.
func (c *Compiler) Errorf(code errz.ErrorCode, format string, args ...any) *errz.CompileError {
	err := errz.NewCompileError(code, format, args...)
	err.Filename = c.filename
	return err
}

// Position returns the current length of the byte buffer, which is the
// offset the next instruction will be emitted at.
func (c *Compiler) Position() int {
	return len(c.code)
}

// Scope returns the innermost scope.
func (c *Compiler) Scope() *SymbolTable {
	return c.scope
}

func (c *Compiler) emit(opcode op.Code, operands ...uint32) int {
	pos := len(c.code)
	code, err := bytecode.Append(c.code, opcode, operands...)
	if err != nil {
		panic(fmt.Sprintf("compiler: %v", err))
	}
	c.code = code
	return pos
}

// EmitConst interns v in the constant pool and loads it into a new
// register. Equal values share one pool entry.
func (c *Compiler) EmitConst(v value.Value) (op.Register, error) {
	idx, ok := c.constIndex[v]
	if !ok {
		if len(c.constants) >= MaxConstants {
			return 0, c.Errorf(errz.E2008, "constant pool exceeds %d entries", MaxConstants)
		}
		idx = len(c.constants)
		c.constants = append(c.constants, v)
		c.constIndex[v] = idx
	}
	dst, err := c.AllocRegister()
	if err != nil {
		return 0, err
	}
	c.emit(op.Const, uint32(dst), uint32(idx))
	return dst, nil
}

func (c *Compiler) bind(s *Symbol) {
	prev := c.scope.insert(s)
	// Only a Lower in progress can be rolled back.
	if c.depth > 0 {
		c.journal = append(c.journal, scopeEntry{table: c.scope, name: s.name, prev: prev})
	}
}

// Declare binds name in the current scope to a fresh local slot. A second
// declaration in the same scope shadows the first.
func (c *Compiler) Declare(name string, mutable bool) (*Symbol, error) {
	slot := len(c.localNames)
	if slot >= MaxLocals {
		return nil, c.Errorf(errz.E2009, "more than %d local variables", MaxLocals)
	}
	c.localNames = append(c.localNames, name)
	s := &Symbol{
		name:    name,
		slot:    uint16(slot),
		kind:    SymbolLocal,
		mutable: mutable,
		frame:   c.FrameDepth(),
	}
	c.bind(s)
	return s, nil
}

// DeclareParam binds name to the next register of the current frame. All
// parameters of a frame must be declared before any other register of that
// frame is allocated.
func (c *Compiler) DeclareParam(name string) (*Symbol, error) {
	f := c.frame()
	if f.next != f.params {
		panic("compiler: parameter declared after frame registers were allocated")
	}
	r, err := c.AllocRegister()
	if err != nil {
		return nil, err
	}
	f.params++
	s := &Symbol{
		name:    name,
		slot:    uint16(r),
		kind:    SymbolParam,
		mutable: true,
		frame:   c.FrameDepth(),
	}
	c.bind(s)
	return s, nil
}

func (c *Compiler) resolve(name string) (*Symbol, error) {
	s, ok := c.scope.Resolve(name)
	if !ok {
		err := c.Errorf(errz.E2001, "undefined symbol %q", name)
		err.Suggestions = errz.SuggestSimilar(name, c.scope.Names())
		return nil, err
	}
	if s.kind == SymbolParam && s.frame != c.FrameDepth() {
		return nil, c.Errorf(errz.E2012,
			"parameter %q belongs to an enclosing call and cannot be used here", name)
	}
	return s, nil
}

// EmitLoad loads the value bound to name into a new register.
func (c *Compiler) EmitLoad(name string) (op.Register, error) {
	s, err := c.resolve(name)
	if err != nil {
		return 0, err
	}
	dst, err := c.AllocRegister()
	if err != nil {
		return 0, err
	}
	if s.kind == SymbolParam {
		c.emit(op.LoadLocal, uint32(dst), uint32(s.slot))
	} else {
		c.emit(op.Load, uint32(dst), uint32(s.slot))
	}
	return dst, nil
}

// EmitStore stores src into the storage bound to name. Storing to an
// immutable symbol fails with E2011.
func (c *Compiler) EmitStore(name string, src op.Register) error {
	s, err := c.resolve(name)
	if err != nil {
		return err
	}
	if !s.mutable {
		return c.Errorf(errz.E2011, "cannot assign to immutable %q", name)
	}
	c.EmitStoreSymbol(s, src)
	return nil
}

// EmitStoreSymbol stores src into a symbol without checking mutability. It
// initializes declarations.
func (c *Compiler) EmitStoreSymbol(s *Symbol, src op.Register) {
	if s.kind == SymbolParam {
		c.emit(op.StoreLocal, uint32(s.slot), uint32(src))
		return
	}
	c.emit(op.Store, uint32(s.slot), uint32(src))
}

// NewScope runs body in a nested scope. The scope is popped on every exit
// path, including panics.
func (c *Compiler) NewScope(body func() error) error {
	parent := c.scope
	c.scope = parent.NewChild()
	defer func() { c.scope = parent }()
	return body()
}

// EmitCondJump emits a jump taken when cond is false.
func (c *Compiler) EmitCondJump(cond op.Register) JumpMark {
	pos := c.emit(op.JumpIfFalse, uint32(cond), Placeholder)
	return JumpMark{offset: pos, opcode: op.JumpIfFalse}
}

// EmitUncondJump emits an unconditional jump.
func (c *Compiler) EmitUncondJump() JumpMark {
	pos := c.emit(op.Jump, Placeholder)
	return JumpMark{offset: pos, opcode: op.Jump}
}

// PatchJump points the jump at mark to the current position.
func (c *Compiler) PatchJump(mark JumpMark) error {
	target, err := c.jumpTarget(len(c.code))
	if err != nil {
		return err
	}
	if err := bytecode.PutTarget(c.code, mark.offset, target); err != nil {
		return c.Errorf(errz.E2016, "cannot patch jump at %d: %v", mark.offset, err)
	}
	return nil
}

func (c *Compiler) jumpTarget(pos int) (uint32, error) {
	if uint64(pos) > math.MaxUint32 {
		return 0, c.Errorf(errz.E2017, "jump target %d exceeds the encodable range", pos)
	}
	return uint32(pos), nil
}

// EmitJumpTo emits an unconditional jump to a known position.
func (c *Compiler) EmitJumpTo(target int) {
	c.emit(op.Jump, uint32(target))
}

// EmitBinary applies a two-operand opcode and returns the result register.
func (c *Compiler) EmitBinary(opcode op.Code, a, b op.Register) (op.Register, error) {
	if !op.IsBinary(opcode) {
		panic(fmt.Sprintf("compiler: %s is not a binary operation", opcode))
	}
	dst, err := c.AllocRegister()
	if err != nil {
		return 0, err
	}
	c.emit(opcode, uint32(dst), uint32(a), uint32(b))
	return dst, nil
}

// EmitMove copies src into dst within the current frame.
func (c *Compiler) EmitMove(dst, src op.Register) {
	if dst == src {
		return
	}
	c.emit(op.StoreLocal, uint32(dst), uint32(src))
}

// EmitPushFrame opens a call frame whose first count registers receive the
// registers starting at argStart.
func (c *Compiler) EmitPushFrame(argStart op.Register, count int) error {
	if count < 0 || count > MaxRegisters {
		return c.Errorf(errz.E2015, "call with %d arguments exceeds %d", count, MaxRegisters)
	}
	c.emit(op.PushFrame, uint32(argStart), uint32(count))
	return nil
}

// EmitPopFrame closes the current call frame, copying the child register
// src into the parent register dst.
func (c *Compiler) EmitPopFrame(src, dst op.Register) {
	c.emit(op.PopFrame, uint32(src), uint32(dst))
}

// EmitReturn ends execution with the value in src.
func (c *Compiler) EmitReturn(src op.Register) {
	c.emit(op.Return, uint32(src))
}

type snapshot struct {
	code      int
	constants int
	scope     *SymbolTable
	journal   int
	loops     int
	breaks    []int
	frames    []frame
}

func (c *Compiler) snapshot() snapshot {
	s := snapshot{
		code:      len(c.code),
		constants: len(c.constants),
		scope:     c.scope,
		journal:   len(c.journal),
		loops:     len(c.loops),
		breaks:    make([]int, len(c.loops)),
		frames:    append([]frame(nil), c.frames...),
	}
	for i, l := range c.loops {
		s.breaks[i] = len(l.breaks)
	}
	return s
}

func (c *Compiler) restore(s snapshot) {
	c.code = c.code[:s.code]
	for _, v := range c.constants[s.constants:] {
		delete(c.constIndex, v)
	}
	c.constants = c.constants[:s.constants]
	for i := len(c.journal) - 1; i >= s.journal; i-- {
		e := c.journal[i]
		e.table.restore(e.name, e.prev)
	}
	c.journal = c.journal[:s.journal]
	c.scope = s.scope
	c.loops = c.loops[:s.loops]
	for i, n := range s.breaks {
		c.loops[i].breaks = c.loops[i].breaks[:n]
	}
	c.frames = s.frames
}

// Lower lowers node. On failure every change node made is rolled back,
// leaving the compiler exactly as it was before the call. Local slot
// numbers already handed out are not reused.
func (c *Compiler) Lower(node Node) (op.Register, error) {
	snap := c.snapshot()
	c.depth++
	r, err := node.Lower(c)
	c.depth--
	if err != nil {
		c.restore(snap)
		return 0, err
	}
	if c.depth == 0 {
		c.journal = c.journal[:0]
	}
	return r, nil
}

// Compile lowers node as the whole program, emits a Return of its value and
// returns the chunk. A program that produces no value returns Empty.
func (c *Compiler) Compile(node Node) (*bytecode.Chunk, error) {
	r, err := c.Lower(node)
	if err != nil {
		c.logger.Debug().Err(err).Str("filename", c.filename).Msg("compile failed")
		return nil, err
	}
	if r == NoValue {
		if r, err = c.EmitConst(value.Empty); err != nil {
			return nil, err
		}
	}
	c.EmitReturn(r)
	chunk := c.Chunk()
	c.logger.Debug().
		Str("chunk", chunk.ID().String()).
		Int("code_size", chunk.CodeSize()).
		Int("constants", chunk.ConstantCount()).
		Int("locals", chunk.LocalCount()).
		Msg("compiled")
	return chunk, nil
}

// Chunk returns the code emitted so far as an immutable chunk. Constants
// appear in first-use order.
func (c *Compiler) Chunk() *bytecode.Chunk {
	return bytecode.NewChunk(bytecode.ChunkParams{
		Filename:   c.filename,
		Code:       c.code,
		Constants:  c.constants,
		LocalCount: len(c.localNames),
		LocalNames: c.localNames,
	})
}

// Code returns a copy of the bytes emitted so far.
func (c *Compiler) Code() []byte {
	return append([]byte(nil), c.code...)
}

// ConstantCount returns the size of the constant pool.
func (c *Compiler) ConstantCount() int {
	return len(c.constants)
}

// LocalCount returns the number of local slots declared.
func (c *Compiler) LocalCount() int {
	return len(c.localNames)
}
