package gc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	// DefaultHeapSize is the live byte budget of a region.
	DefaultHeapSize = 64 << 20

	// DefaultGrowthBudget is the number of bytes allocated between
	// automatic collections.
	DefaultGrowthBudget = 4 << 20
)

// Config holds region settings.
type Config struct {
	// HeapSize is the maximum number of live bytes. Zero means unlimited.
	HeapSize int

	// GrowthBudget is the number of bytes that may be allocated before the
	// next allocation runs a collection. Zero disables automatic collection.
	GrowthBudget int

	// OnOutOfMemory is called with the requested size when an allocation
	// fails for lack of space.
	OnOutOfMemory func(requested int)

	// Logger receives collection events at debug level.
	Logger *zerolog.Logger
}

// DefaultConfig returns the configuration used by Default.
func DefaultConfig() Config {
	return Config{
		HeapSize:     DefaultHeapSize,
		GrowthBudget: DefaultGrowthBudget,
	}
}

// Stats summarizes region activity.
type Stats struct {
	Collections uint64
	LiveObjects int
	LiveBytes   int
	Allocated   uint64
	Reclaimed   uint64
	Finalized   uint64
}

type entry struct {
	gen  uint32
	slot int // index into objects, -1 when free
}

type object struct {
	index  uint32
	desc   *TypeDescriptor
	obj    any
	size   int
	marked bool
}

// Region is an arena heap. Objects live in one compact storage slice and are
// addressed through a handle table, so collection can move them without
// invalidating handles.
type Region struct {
	mu       sync.Mutex
	cfg      Config
	log      zerolog.Logger
	entries  []entry
	free     []uint32
	objects  []object
	roots    map[int]TraceFunc
	nextRoot int
	threads  int
	live     int
	sinceGC  int
	epoch    atomic.Uint64
	stats    Stats
}

// NewRegion returns an empty region.
func NewRegion(cfg Config) *Region {
	r := &Region{
		cfg:   cfg,
		log:   zerolog.Nop(),
		roots: map[int]TraceFunc{},
	}
	if cfg.Logger != nil {
		r.log = cfg.Logger.With().Str("component", "gc").Logger()
	}
	return r
}

// Allocate implements Collector.
func (r *Region) Allocate(size int, desc *TypeDescriptor) (Handle, error) {
	if size < 0 {
		return Handle{}, fmt.Errorf("%w: negative size %d", ErrInvalidCapacity, size)
	}
	if desc == nil {
		return Handle{}, fmt.Errorf("gc: allocate requires a type descriptor")
	}
	r.mu.Lock()
	if r.threads == 0 {
		r.mu.Unlock()
		return Handle{}, ErrThreadNotRegistered
	}
	if r.cfg.GrowthBudget > 0 && r.sinceGC+size > r.cfg.GrowthBudget {
		r.collectLocked()
	}
	if r.cfg.HeapSize > 0 && r.live+size > r.cfg.HeapSize {
		onOOM := r.cfg.OnOutOfMemory
		live := r.live
		r.mu.Unlock()
		r.log.Warn().Int("requested", size).Int("live", live).Msg("allocation failed")
		if onOOM != nil {
			onOOM(size)
		}
		return Handle{}, fmt.Errorf("%w: requested %d bytes with %d live", ErrOutOfMemory, size, live)
	}
	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		index = uint32(len(r.entries))
		r.entries = append(r.entries, entry{})
	}
	e := &r.entries[index]
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	e.slot = len(r.objects)
	r.objects = append(r.objects, object{index: index, desc: desc, size: size})
	r.live += size
	r.sinceGC += size
	r.stats.Allocated++
	h := Handle{index: index, gen: e.gen}
	r.mu.Unlock()
	return h, nil
}

func (r *Region) lookupLocked(h Handle) (*object, bool) {
	if h.IsNil() || int(h.index) >= len(r.entries) {
		return nil, false
	}
	e := r.entries[h.index]
	if e.gen != h.gen || e.slot < 0 {
		return nil, false
	}
	return &r.objects[e.slot], true
}

// Load implements Collector.
func (r *Region) Load(h Handle) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.lookupLocked(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFreed, h)
	}
	return o.obj, nil
}

// Store implements Collector.
func (r *Region) Store(h Handle, obj any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.lookupLocked(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFreed, h)
	}
	o.obj = obj
	return nil
}

// Descriptor returns the type descriptor of a live object.
func (r *Region) Descriptor(h Handle) (*TypeDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.lookupLocked(h)
	if !ok {
		return nil, false
	}
	return o.desc, true
}

// Live reports whether h refers to a live object.
func (r *Region) Live(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lookupLocked(h)
	return ok
}

// AddRoot implements Collector.
func (r *Region) AddRoot(fn TraceFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextRoot
	r.nextRoot++
	r.roots[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.roots, id)
	}
}

// RegisterThread implements Collector.
func (r *Region) RegisterThread() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads++
	return nil
}

// UnregisterThread implements Collector.
func (r *Region) UnregisterThread() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.threads == 0 {
		panic("gc: unregister without matching register")
	}
	r.threads--
}

// Epoch implements Collector.
func (r *Region) Epoch() uint64 {
	return r.epoch.Load()
}

// Stats returns a snapshot of region counters.
func (r *Region) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.LiveObjects = len(r.objects)
	s.LiveBytes = r.live
	return s
}

// Collect implements Collector.
func (r *Region) Collect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectLocked()
}

func (r *Region) collectLocked() {
	for i := range r.objects {
		r.objects[i].marked = false
	}

	// Mark
	var work []Handle
	visit := func(h Handle) {
		if o, ok := r.lookupLocked(h); ok && !o.marked {
			o.marked = true
			work = append(work, h)
		}
	}
	for _, root := range r.roots {
		root(visit)
	}
	for len(work) > 0 {
		h := work[len(work)-1]
		work = work[:len(work)-1]
		o, _ := r.lookupLocked(h)
		if o.desc.Trace != nil && o.obj != nil {
			o.desc.Trace(o.obj, visit)
		}
	}

	// Finalize while every dead object is still resolvable
	view := sweepView{r}
	var finalized uint64
	for i := range r.objects {
		o := &r.objects[i]
		if o.marked || !o.desc.NeedsFinalize || o.desc.Finalize == nil || o.obj == nil {
			continue
		}
		o.desc.Finalize(o.obj, view)
		finalized++
	}

	// Sweep and compact
	survivors := r.objects[:0]
	var reclaimed uint64
	live := 0
	for _, o := range r.objects {
		if !o.marked {
			r.entries[o.index].slot = -1
			r.free = append(r.free, o.index)
			reclaimed++
			continue
		}
		if o.desc.Size != nil && o.obj != nil {
			o.size = o.desc.Size(o.obj)
		}
		live += o.size
		r.entries[o.index].slot = len(survivors)
		survivors = append(survivors, o)
	}
	for i := len(survivors); i < len(r.objects); i++ {
		r.objects[i] = object{}
	}
	r.objects = survivors
	r.live = live
	r.sinceGC = 0
	r.stats.Collections++
	r.stats.Reclaimed += reclaimed
	r.stats.Finalized += finalized
	epoch := r.epoch.Add(1)

	r.log.Debug().
		Uint64("epoch", epoch).
		Uint64("reclaimed", reclaimed).
		Uint64("finalized", finalized).
		Int("live_objects", len(survivors)).
		Int("live_bytes", live).
		Msg("collection finished")
}

// sweepView resolves handles during finalization. The region lock is held by
// the caller.
type sweepView struct {
	r *Region
}

func (v sweepView) Resolve(h Handle) (any, bool) {
	o, ok := v.r.lookupLocked(h)
	if !ok {
		return nil, false
	}
	return o.obj, true
}
