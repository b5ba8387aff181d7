package gc

import (
	"fmt"
	"reflect"
	"sync"
)

// Guard is a proof that no collection has run since it was issued. Guards
// are cheap; issue one per allocation-free window and drop it before
// allocating.
type Guard struct {
	c       Collector
	epoch   uint64
	retired bool
}

// IssueGuard returns a guard valid until the next collection of c.
func IssueGuard(c Collector) *Guard {
	return &Guard{c: c, epoch: c.Epoch()}
}

// Valid reports whether the guard still proves the absence of a collection.
func (g *Guard) Valid() bool {
	return g != nil && !g.retired && g.c != nil && g.c.Epoch() == g.epoch
}

// Retire ends the guard's window early. Pointers obtained through it become
// unusable.
func (g *Guard) Retire() {
	g.retired = true
}

// WithGuard runs fn with a guard that is retired when fn returns. fn must
// not allocate while it holds pointers derived from the guard.
func WithGuard(c Collector, fn func(g *Guard) error) error {
	g := IssueGuard(c)
	defer g.Retire()
	return fn(g)
}

// Tracer is implemented by values that hold heap handles.
type Tracer interface {
	TraceHandles(visit func(Handle))
}

// Finalizer is implemented by pointer types whose values need cleanup when
// the heap reclaims them.
type Finalizer interface {
	Finalize()
}

// Cell is a stable, copyable handle to a heap object of type T.
type Cell[T any] struct {
	c Collector
	h Handle
}

// CellOf wraps an existing handle. The handle must have been allocated for
// a T.
func CellOf[T any](c Collector, h Handle) Cell[T] {
	return Cell[T]{c: c, h: h}
}

// Handle returns the underlying heap handle.
func (c Cell[T]) Handle() Handle {
	return c.h
}

// IsNil reports whether the cell refers to nothing.
func (c Cell[T]) IsNil() bool {
	return c.c == nil || c.h.IsNil()
}

// Get pairs the cell with a live guard. It is the only way to reach the
// object's storage.
func (c Cell[T]) Get(g *Guard) (Ptr[T], error) {
	if !g.Valid() {
		return Ptr[T]{}, ErrStaleGuard
	}
	if c.IsNil() {
		return Ptr[T]{}, fmt.Errorf("%w: nil cell", ErrFreed)
	}
	obj, err := c.c.Load(c.h)
	if err != nil {
		return Ptr[T]{}, err
	}
	p, ok := obj.(*T)
	if !ok {
		return Ptr[T]{}, fmt.Errorf("%w: %s holds %T", ErrWrongType, c.h, obj)
	}
	return Ptr[T]{p: p, g: g}, nil
}

// Ptr is a dereferenceable pointer bound to the guard that produced it.
type Ptr[T any] struct {
	p *T
	g *Guard
}

func (p Ptr[T]) check() {
	if p.p == nil {
		panic("gc: dereference of empty pointer")
	}
	if !p.g.Valid() {
		panic("gc: pointer used after its guard went stale")
	}
}

// Load returns a copy of the object.
func (p Ptr[T]) Load() T {
	p.check()
	return *p.p
}

// Store overwrites the object.
func (p Ptr[T]) Store(v T) {
	p.check()
	*p.p = v
}

// Addr returns the object's address for in-place access. The address is
// subject to the same guard contract as the Ptr itself.
func (p Ptr[T]) Addr() *T {
	p.check()
	return p.p
}

var descriptors sync.Map // reflect.Type -> *TypeDescriptor

// DescriptorFor returns the static descriptor used for single objects of
// type T. Types implementing Tracer are traced; pointer types implementing
// Finalizer are finalized.
func DescriptorFor[T any]() *TypeDescriptor {
	typ := reflect.TypeFor[T]()
	if d, ok := descriptors.Load(typ); ok {
		return d.(*TypeDescriptor)
	}
	size := int(typ.Size())
	d := &TypeDescriptor{
		Name: typ.String(),
		Size: func(any) int { return size },
	}
	var zero T
	if _, ok := any(zero).(Tracer); ok {
		d.Trace = func(obj any, visit func(Handle)) {
			any(*obj.(*T)).(Tracer).TraceHandles(visit)
		}
	}
	if _, ok := any(&zero).(Finalizer); ok {
		d.NeedsFinalize = true
		d.Finalize = func(obj any, _ Resolver) {
			any(obj.(*T)).(Finalizer).Finalize()
		}
	}
	actual, _ := descriptors.LoadOrStore(typ, d)
	return actual.(*TypeDescriptor)
}

// Allocate requests raw storage from the collector. It fails with
// ErrOutOfMemory when the collector has no space and never retries.
func Allocate(c Collector, size int, desc *TypeDescriptor) (Handle, error) {
	return c.Allocate(size, desc)
}

// AllocateSingle allocates storage sized for T and moves v into it.
func AllocateSingle[T any](c Collector, v T) (Cell[T], error) {
	desc := DescriptorFor[T]()
	h, err := c.Allocate(desc.Size(nil), desc)
	if err != nil {
		return Cell[T]{}, err
	}
	box := new(T)
	*box = v
	if err := c.Store(h, box); err != nil {
		return Cell[T]{}, err
	}
	return Cell[T]{c: c, h: h}, nil
}
