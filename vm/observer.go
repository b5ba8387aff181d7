package vm

import "github.com/deepnoodle-ai/regvm/op"

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N instructions.
	StepSampled
)

// ObserverConfig specifies what events an observer wants to receive.
// Use NewObserverConfig() to create configs with safe defaults.
type ObserverConfig struct {
	// StepMode controls OnStep callback frequency.
	StepMode StepMode

	// SampleInterval is the number of instructions between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	// ObserveCalls enables OnCall callbacks on PushFrame.
	ObserveCalls bool

	// ObserveReturns enables OnReturn callbacks on PopFrame.
	ObserveReturns bool
}

// NewObserverConfig creates a config with ObserveCalls and ObserveReturns
// enabled.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

// NormalizeConfig clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives execution events. Callbacks run synchronously on the
// VM's goroutine; returning false from any of them faults the VM with
// E3012.
//
// Implementations can embed NoOpObserver and override what they need.
type Observer interface {
	// Config is called once when the run starts.
	Config() ObserverConfig

	// OnStep is called before an instruction executes.
	OnStep(event StepEvent) bool

	// OnCall is called after PushFrame opens a frame.
	OnCall(event CallEvent) bool

	// OnReturn is called after PopFrame closes a frame.
	OnReturn(event ReturnEvent) bool
}

// StepEvent describes the instruction about to execute.
type StepEvent struct {
	// IP is the byte offset of the instruction.
	IP int

	// Opcode is the operation being executed.
	Opcode op.Code

	// OpcodeName is the human-readable name of the opcode.
	OpcodeName string

	// FrameDepth is the number of open frames.
	FrameDepth int
}

// CallEvent describes a frame push.
type CallEvent struct {
	IP int

	// ArgCount is the number of registers copied into the new frame.
	ArgCount int

	// FrameDepth is the number of open frames after the push.
	FrameDepth int
}

// ReturnEvent describes a frame pop.
type ReturnEvent struct {
	IP int

	// FrameDepth is the number of open frames after the pop.
	FrameDepth int
}

// NoOpObserver is an Observer implementation that does nothing.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return NewObserverConfig(StepAll)
}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

var _ Observer = NoOpObserver{}
