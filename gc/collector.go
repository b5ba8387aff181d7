// Package gc is the safety layer between the virtual machine and a
// garbage-collected heap.
//
// The heap itself is reached through the Collector interface, which models
// the external allocator primitive: allocate by size and type descriptor,
// register trace callbacks for roots, and register threads before they
// allocate. Region is the in-process implementation.
//
// # Guards
//
// Heap objects are addressed through stable handles (Handle, Cell). A handle
// carries no temporal guarantee. To read or write the object behind a handle
// you need a Guard: a token that is valid only while no collection has run
// since it was issued. Pairing a Cell with a live Guard yields a Ptr, the only
// way to dereference heap data.
//
// The contract, which Go cannot enforce statically:
//
//   - a Ptr must never be used after the Guard that produced it was retired
//     or invalidated;
//   - a Guard must never be held across an operation that can allocate,
//     since any allocation may run a collection.
//
// Violations are detected at run time. Cell.Get with a stale guard returns
// ErrStaleGuard, and using a Ptr whose guard went stale panics.
package gc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when the heap budget cannot satisfy an
	// allocation. The layer never retries; callers may Collect and retry.
	ErrOutOfMemory = errors.New("gc: out of memory")

	// ErrStaleGuard is returned when a guard is used after a collection ran
	// or after its scope ended.
	ErrStaleGuard = errors.New("gc: stale guard")

	// ErrFreed is returned when a handle refers to a reclaimed object.
	ErrFreed = errors.New("gc: object has been reclaimed")

	// ErrInvalidCapacity is returned when an array capacity cannot be
	// represented as a byte size.
	ErrInvalidCapacity = errors.New("gc: invalid array capacity")

	// ErrThreadNotRegistered is returned when allocating without a
	// registered thread.
	ErrThreadNotRegistered = errors.New("gc: thread not registered")

	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("gc: already initialized")

	// ErrWrongType is returned when a handle is dereferenced as a type other
	// than the one it was allocated with.
	ErrWrongType = errors.New("gc: wrong object type")
)

// Handle is a stable reference to a heap object. Handles survive compaction;
// the zero Handle refers to nothing.
type Handle struct {
	index uint32
	gen   uint32
}

// IsNil reports whether the handle refers to nothing.
func (h Handle) IsNil() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	if h.IsNil() {
		return "#nil"
	}
	return fmt.Sprintf("#%d.%d", h.index, h.gen)
}

// TraceFunc enumerates heap handles by calling visit for each one. Root
// callbacks must not call back into the collector.
type TraceFunc func(visit func(Handle))

// Resolver looks up the storage of objects while finalizers run. Objects
// reclaimed in the same cycle are still resolvable.
type Resolver interface {
	Resolve(h Handle) (any, bool)
}

// TypeDescriptor describes how the collector treats objects of one type.
type TypeDescriptor struct {
	Name string

	// Size computes the heap size of the object from its storage. When nil
	// the size requested at allocation is used.
	Size func(obj any) int

	// Trace enumerates outgoing heap references. Nil for leaf types.
	Trace func(obj any, visit func(Handle))

	// NeedsFinalize marks types whose Finalize must run at reclamation.
	NeedsFinalize bool

	// Finalize runs exactly once when the object is reclaimed. It must not
	// allocate.
	Finalize func(obj any, r Resolver)
}

func (d *TypeDescriptor) String() string {
	if d == nil {
		return "<nil descriptor>"
	}
	return d.Name
}

// Collector is the allocator primitive the safety layer is built on.
type Collector interface {
	// Allocate reserves storage of the given size for an object described
	// by desc. The storage is empty until Store is called. Allocation may
	// run a collection.
	Allocate(size int, desc *TypeDescriptor) (Handle, error)

	// Load returns the storage of a live object.
	Load(h Handle) (any, error)

	// Store replaces the storage of a live object.
	Store(h Handle, obj any) error

	// Collect runs a full collection cycle.
	Collect()

	// AddRoot registers a trace callback consulted at every collection.
	// The returned function removes it.
	AddRoot(fn TraceFunc) (remove func())

	// RegisterThread must be called before the current thread allocates.
	RegisterThread() error

	// UnregisterThread undoes one RegisterThread.
	UnregisterThread()

	// Epoch counts completed collections. Guards compare against it.
	Epoch() uint64
}
