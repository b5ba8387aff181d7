package gc

import (
	"fmt"
	"math"
	"reflect"
	"sync"
)

// MinArrayCapacity is the capacity of an array's first buffer.
const MinArrayCapacity = 8

type arrayHeader struct {
	capacity int
	used     int
	buffer   Handle
}

type arrayBuffer[T any] struct {
	elems []T
}

type arrayDescriptors struct {
	header *TypeDescriptor
	buffer *TypeDescriptor
	elem   int
}

var arrayTypes sync.Map // reflect.Type -> *arrayDescriptors

func descriptorsFor[T any]() *arrayDescriptors {
	typ := reflect.TypeFor[T]()
	if d, ok := arrayTypes.Load(typ); ok {
		return d.(*arrayDescriptors)
	}
	elemSize := int(typ.Size())
	var zero T
	_, traced := any(zero).(Tracer)
	_, finalized := any(&zero).(Finalizer)

	buffer := &TypeDescriptor{
		Name: "array buffer of " + typ.String(),
		Size: func(obj any) int {
			return len(obj.(*arrayBuffer[T]).elems) * elemSize
		},
	}
	if traced {
		buffer.Trace = func(obj any, visit func(Handle)) {
			for _, e := range obj.(*arrayBuffer[T]).elems {
				any(e).(Tracer).TraceHandles(visit)
			}
		}
	}
	header := &TypeDescriptor{
		Name: "array of " + typ.String(),
		Size: func(any) int { return int(reflect.TypeFor[arrayHeader]().Size()) },
		Trace: func(obj any, visit func(Handle)) {
			if h := obj.(*arrayHeader); !h.buffer.IsNil() {
				visit(h.buffer)
			}
		},
	}
	if finalized {
		header.NeedsFinalize = true
		header.Finalize = func(obj any, r Resolver) {
			h := obj.(*arrayHeader)
			if h.buffer.IsNil() {
				return
			}
			storage, ok := r.Resolve(h.buffer)
			if !ok {
				return
			}
			elems := storage.(*arrayBuffer[T]).elems
			for i := 0; i < h.used && i < len(elems); i++ {
				any(&elems[i]).(Finalizer).Finalize()
			}
		}
	}
	d := &arrayDescriptors{header: header, buffer: buffer, elem: elemSize}
	actual, _ := arrayTypes.LoadOrStore(typ, d)
	return actual.(*arrayDescriptors)
}

// capacityBytes computes the byte size of a buffer holding n elements.
func capacityBytes(n, elemSize int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCapacity, n)
	}
	if elemSize > 0 && n > math.MaxInt/elemSize {
		return 0, fmt.Errorf("%w: %d elements of %d bytes overflows", ErrInvalidCapacity, n, elemSize)
	}
	return n * elemSize, nil
}

// growCapacity returns the capacity to grow to so that at least need
// elements fit: 1.5x steps starting at MinArrayCapacity.
func growCapacity(current, need int) int {
	c := current
	if c < MinArrayCapacity {
		c = MinArrayCapacity
	}
	for c < need {
		next := c + c/2
		if next <= c {
			return need
		}
		c = next
	}
	return c
}

// Array is a growable array whose header and element buffer both live on
// the heap. The array roots its own header until Release is called, after
// which a collection reclaims it and destroys the first Len elements.
type Array[T any] struct {
	c      Collector
	header Cell[arrayHeader]
	desc   *arrayDescriptors
	unroot func()
}

// NewArray allocates an empty array. No buffer is allocated until the first
// push.
func NewArray[T any](c Collector) (*Array[T], error) {
	desc := descriptorsFor[T]()
	h, err := c.Allocate(desc.header.Size(nil), desc.header)
	if err != nil {
		return nil, err
	}
	if err := c.Store(h, &arrayHeader{}); err != nil {
		return nil, err
	}
	a := &Array[T]{c: c, header: CellOf[arrayHeader](c, h), desc: desc}
	a.unroot = c.AddRoot(func(visit func(Handle)) { visit(h) })
	return a, nil
}

// Handle returns the heap handle of the array header.
func (a *Array[T]) Handle() Handle {
	return a.header.Handle()
}

// Release drops the array's root. The array must not be used afterwards.
func (a *Array[T]) Release() {
	if a.unroot != nil {
		a.unroot()
		a.unroot = nil
	}
}

func (a *Array[T]) headerPtr(g *Guard) (Ptr[arrayHeader], error) {
	return a.header.Get(g)
}

func (a *Array[T]) elems(g *Guard, hdr *arrayHeader) ([]T, error) {
	if hdr.buffer.IsNil() {
		return nil, nil
	}
	buf, err := CellOf[arrayBuffer[T]](a.c, hdr.buffer).Get(g)
	if err != nil {
		return nil, err
	}
	return buf.Addr().elems, nil
}

// Len returns the number of elements in use.
func (a *Array[T]) Len() (int, error) {
	hdr, err := a.headerPtr(IssueGuard(a.c))
	if err != nil {
		return 0, err
	}
	return hdr.Load().used, nil
}

// Cap returns the capacity of the current buffer.
func (a *Array[T]) Cap() (int, error) {
	hdr, err := a.headerPtr(IssueGuard(a.c))
	if err != nil {
		return 0, err
	}
	return hdr.Load().capacity, nil
}

// reserve makes room for at least need elements. It allocates and may run
// a collection, so it acquires its own guards.
func (a *Array[T]) reserve(need int) error {
	hdr, err := a.headerPtr(IssueGuard(a.c))
	if err != nil {
		return err
	}
	current := hdr.Load()
	if !current.buffer.IsNil() && need <= current.capacity {
		return nil
	}
	newCap := growCapacity(current.capacity, need)
	size, err := capacityBytes(newCap, a.desc.elem)
	if err != nil {
		return err
	}
	bh, err := a.c.Allocate(size, a.desc.buffer)
	if err != nil {
		return err
	}
	// The allocation may have collected; every earlier guard is stale.
	g := IssueGuard(a.c)
	hdr, err = a.headerPtr(g)
	if err != nil {
		return err
	}
	h := hdr.Addr()
	old, err := a.elems(g, h)
	if err != nil {
		return err
	}
	next := &arrayBuffer[T]{elems: make([]T, newCap)}
	copy(next.elems, old[:h.used])
	if err := a.c.Store(bh, next); err != nil {
		return err
	}
	h.buffer = bh
	h.capacity = newCap
	return nil
}

// Push appends item, growing the buffer first when it is absent or full.
func (a *Array[T]) Push(item T) error {
	hdr, err := a.headerPtr(IssueGuard(a.c))
	if err != nil {
		return err
	}
	if h := hdr.Load(); h.buffer.IsNil() || h.used >= h.capacity {
		if err := a.reserve(h.used + 1); err != nil {
			return err
		}
	}
	g := IssueGuard(a.c)
	hdr, err = a.headerPtr(g)
	if err != nil {
		return err
	}
	h := hdr.Addr()
	elems, err := a.elems(g, h)
	if err != nil {
		return err
	}
	if h.used >= h.capacity || h.used >= len(elems) {
		panic("gc: array push past capacity")
	}
	elems[h.used] = item
	h.used++
	return nil
}

// Pop removes and returns the last element. Ownership moves to the caller,
// so no destructor runs.
func (a *Array[T]) Pop() (T, bool, error) {
	var zero T
	g := IssueGuard(a.c)
	hdr, err := a.headerPtr(g)
	if err != nil {
		return zero, false, err
	}
	h := hdr.Addr()
	if h.used == 0 {
		return zero, false, nil
	}
	elems, err := a.elems(g, h)
	if err != nil {
		return zero, false, err
	}
	h.used--
	item := elems[h.used]
	elems[h.used] = zero
	if h.used == 0 {
		h.buffer = Handle{}
		h.capacity = 0
	}
	return item, true, nil
}

// Get returns the element at i.
func (a *Array[T]) Get(g *Guard, i int) (T, error) {
	var zero T
	s, err := a.Slice(g)
	if err != nil {
		return zero, err
	}
	if i < 0 || i >= len(s) {
		return zero, fmt.Errorf("gc: array index %d out of range [0:%d]", i, len(s))
	}
	return s[i], nil
}

// Set overwrites the element at i.
func (a *Array[T]) Set(g *Guard, i int, v T) error {
	s, err := a.Slice(g)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(s) {
		return fmt.Errorf("gc: array index %d out of range [0:%d]", i, len(s))
	}
	s[i] = v
	return nil
}

// Slice returns the elements in use. The slice aliases heap storage and is
// valid only while g is.
func (a *Array[T]) Slice(g *Guard) ([]T, error) {
	hdr, err := a.headerPtr(g)
	if err != nil {
		return nil, err
	}
	h := hdr.Addr()
	elems, err := a.elems(g, h)
	if err != nil {
		return nil, err
	}
	return elems[:h.used], nil
}

// Truncate shrinks the array to n elements, destroying the dropped ones.
// Truncating to zero releases the buffer.
func (a *Array[T]) Truncate(n int) error {
	g := IssueGuard(a.c)
	hdr, err := a.headerPtr(g)
	if err != nil {
		return err
	}
	h := hdr.Addr()
	if n < 0 || n > h.used {
		return fmt.Errorf("gc: truncate to %d with %d elements", n, h.used)
	}
	elems, err := a.elems(g, h)
	if err != nil {
		return err
	}
	var zero T
	for i := n; i < h.used; i++ {
		if f, ok := any(&elems[i]).(Finalizer); ok {
			f.Finalize()
		}
		elems[i] = zero
	}
	h.used = n
	if n == 0 {
		h.buffer = Handle{}
		h.capacity = 0
	}
	return nil
}

// Resize grows the array to n elements filled with fill, or truncates it.
func (a *Array[T]) Resize(n int, fill T) error {
	used, err := a.Len()
	if err != nil {
		return err
	}
	if n <= used {
		return a.Truncate(n)
	}
	if err := a.reserve(n); err != nil {
		return err
	}
	g := IssueGuard(a.c)
	hdr, err := a.headerPtr(g)
	if err != nil {
		return err
	}
	h := hdr.Addr()
	elems, err := a.elems(g, h)
	if err != nil {
		return err
	}
	for i := h.used; i < n; i++ {
		elems[i] = fill
	}
	h.used = n
	return nil
}
