// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package gc implements the tracing mark-and-sweep collector that owns every
// heap object.Object a script VM allocates. It mirrors the phase structure
// of BifrostVM's GC (mark roots, mark transitively, sweep, finalize,
// sweep the finalized list, run script dtors, update the heap budget) but
// represents the intrusive all-objects list as index links into a Go slice
// rather than raw pointers, since Go's collector would not let us thread a
// pointer-based list through GC-managed memory ourselves.
package gc

import (
	"errors"
	"log/slog"

	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/value"
)

// ErrOutOfMemory names the out-of-memory condition. No function in this
// package returns it: the NewX allocators back onto the Go runtime's own
// allocator and never report a failure.
var ErrOutOfMemory = errors.New("gc: out of memory")

const tempRootsCapacity = 64

// RootProvider supplies the Values the owning VM can reach directly: every
// live slot-stack entry, every call frame's function, every registered
// module and every live handle's Value. The heap cannot see
// the VM's stack or frames itself (that would create an import cycle), so
// the VM installs this callback once at construction time.
type RootProvider func() []value.Value

// Invoker runs a script-level callable with the given arguments, used only
// to invoke a class's script `dtor` during finalization. The result is
// ignored by the collector other than for error propagation.
type Invoker func(fn value.Value, args []value.Value) (value.Value, error)

// Heap owns every heap-allocated object.Object and the state a garbage
// collection cycle needs: the intrusive all-objects list (by index), the
// bounded temp-roots stack parsers push/pop around allocations not yet
// stored into a rooted container, and the finalized list of not-yet-freed
// objects whose script dtor has run but may still be observed for one more
// cycle.
type Heap struct {
	objects   []object.Object
	free      []int
	head      int // index of the first live object, -1 if empty
	symbols   *symbol.Table
	dtorID    symbol.ID
	dtorReady bool

	bytesAllocated int64
	heapSize       int64
	minHeapSize    int64
	growthFactor   float64

	running bool

	tempRoots []value.Value

	finalized []int // indices into objects, kept alive one extra cycle

	roots   RootProvider
	invoke  Invoker
	strings map[string]int // content -> object index, for String interning

	log *slog.Logger
}

// Config carries the tunable collector parameters (see config.Config, which
// populates this from TOML).
type Config struct {
	MinHeapSize  int64
	GrowthFactor float64
}

// NewHeap creates an empty heap. Roots and an invoker are wired in
// separately via SetRootFunc/SetInvoker once the owning VM exists, breaking
// what would otherwise be a gc<->vm import cycle.
func NewHeap(symbols *symbol.Table, cfg Config) *Heap {
	if cfg.MinHeapSize <= 0 {
		cfg.MinHeapSize = 1 << 20
	}
	if cfg.GrowthFactor <= 0 {
		cfg.GrowthFactor = 1.0
	}
	h := &Heap{
		head:         -1,
		symbols:      symbols,
		minHeapSize:  cfg.MinHeapSize,
		heapSize:     cfg.MinHeapSize,
		growthFactor: cfg.GrowthFactor,
		strings:      make(map[string]int),
	}
	h.dtorID, h.dtorReady = symbols.Intern("dtor"), true
	h.SetLogger(nil)
	return h
}

// SetRootFunc installs the callback the collector uses to find VM-owned
// roots (stack slots, frame functions) during mark.
func (h *Heap) SetRootFunc(fn RootProvider) { h.roots = fn }

// SetInvoker installs the callback used to run a script dtor during
// finalization.
func (h *Heap) SetInvoker(fn Invoker) { h.invoke = fn }

// SetLogger installs the logger used for per-cycle collection stats. Defaults
// to a no-op discard logger so Collect never needs a nil check.
func (h *Heap) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	h.log = l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// BytesAllocated reports the collector's running allocation estimate.
func (h *Heap) BytesAllocated() int64 { return h.bytesAllocated }

// HeapSize reports the current collection threshold.
func (h *Heap) HeapSize() int64 { return h.heapSize }

// Get resolves a pointer Value's handle to its object.Object. Panics if the
// Value is not a pointer or its handle is stale; callers only invoke this on
// Values already known to satisfy IsPointer().
func (h *Heap) Get(v value.Value) object.Object {
	idx := int(v.AsHandle())
	return h.objects[idx]
}

// Kind reports the object.Kind of a pointer Value without the caller needing
// its own type switch.
func (h *Heap) Kind(v value.Value) object.Kind {
	return h.Get(v).GCHeader().Kind
}

func (h *Heap) alloc(obj object.Object, size int64) value.Value {
	idx := h.insert(obj)
	obj.GCHeader().Size = size
	h.bytesAllocated += size
	return value.FromHandle(uint64(idx))
}

func (h *Heap) insert(obj object.Object) int {
	var idx int
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[idx] = obj
	} else {
		idx = len(h.objects)
		h.objects = append(h.objects, obj)
	}
	obj.GCHeader().Next = h.head
	h.head = idx
	return idx
}

// NewString allocates (or returns an existing, de-duplicated) String object
// with the given content.
func (h *Heap) NewString(s string) value.Value {
	if idx, ok := h.strings[s]; ok {
		if h.objects[idx] != nil {
			return value.FromHandle(uint64(idx))
		}
	}
	obj := &object.String{Header: object.Header{Kind: object.KindString}, Data: s, Hash: fnv1a(s)}
	v := h.alloc(obj, int64(len(s))+32)
	h.strings[s] = int(v.AsHandle())
	return v
}

// fnv1a computes the 32-bit FNV-1a hash spec.md §2 specifies for String's
// precomputed hash (offset basis 2166136261, prime 16777619).
func fnv1a(s string) uint32 {
	const offsetBasis uint32 = 2166136261
	const prime uint32 = 16777619
	h := offsetBasis
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// NewModule allocates an empty Module.
func (h *Heap) NewModule(name string) (value.Value, *object.Module) {
	m := &object.Module{
		Header:  object.Header{Kind: object.KindModule},
		Name:    name,
		Globals: make(map[symbol.ID]value.Value),
	}
	return h.alloc(m, 64), m
}

// NewClass allocates a Class, optionally derived from base.
func (h *Heap) NewClass(name string, base *object.Class, mod *object.Module) (value.Value, *object.Class) {
	c := &object.Class{
		Header:  object.Header{Kind: object.KindClass},
		Name:    name,
		Base:    base,
		Module:  mod,
		Methods: make(map[symbol.ID]value.Value),
		Statics: make(map[symbol.ID]value.Value),
	}
	if id, ok := h.symbols.Lookup("dtor"); ok {
		_, hasDtor := c.Methods[id]
		c.HasDtor = hasDtor
	}
	return h.alloc(c, 96), c
}

// NewInstance allocates an Instance of cls. The header's HasDtor flag is
// copied from the class chain so sweep can decide finalization without
// walking Base again.
func (h *Heap) NewInstance(cls *object.Class) (value.Value, *object.Instance) {
	inst := &object.Instance{
		Header: object.Header{Kind: object.KindInstance, HasDtor: classHasDtor(cls, h.dtorID)},
		Class:  cls,
		Fields: make(map[symbol.ID]value.Value, cls.NumFields),
	}
	return h.alloc(inst, int64(64+cls.NumFields*16)), inst
}

func classHasDtor(cls *object.Class, dtorID symbol.ID) bool {
	for c := cls; c != nil; c = c.Base {
		if _, ok := c.Methods[dtorID]; ok {
			return true
		}
	}
	return false
}

// NewFunction allocates a compiled Function.
func (h *Heap) NewFunction(fn *object.Function) value.Value {
	fn.Header = object.Header{Kind: object.KindFunction}
	return h.alloc(fn, int64(64+len(fn.Code)*4+len(fn.Constants)*8))
}

// NewNativeFn allocates a host-registered native callable.
func (h *Heap) NewNativeFn(name string, arity int, impl object.NativeFunc) value.Value {
	nf := &object.NativeFn{
		Header: object.Header{Kind: object.KindNativeFn},
		Name:   name,
		Arity:  arity,
		Fn:     impl,
	}
	return h.alloc(nf, 48)
}

// NewReference allocates a host-rooted Reference bound to cls.
func (h *Heap) NewReference(cls *object.Class, target value.Value) value.Value {
	ref := &object.Reference{
		Header: object.Header{Kind: object.KindReference, HasDtor: classHasDtor(cls, h.dtorID)},
		Class:  cls,
		Target: target,
	}
	return h.alloc(ref, 48)
}

// NewWeakRef allocates a WeakRef bound to cls, observing target without
// rooting it.
func (h *Heap) NewWeakRef(cls *object.Class, target value.Value) value.Value {
	wr := &object.WeakRef{
		Header: object.Header{Kind: object.KindWeakRef},
		Class:  cls,
		Target: target,
	}
	return h.alloc(wr, 48)
}

// PushRoot temporarily roots v so it survives a GC triggered by an
// allocation whose result is not yet stored into a rooted container
// (spec §4.8's "temp-roots" stack). Mirrors the Parser's push_root/pop_root.
func (h *Heap) PushRoot(v value.Value) error {
	if len(h.tempRoots) >= tempRootsCapacity {
		return errors.New("gc: temp-roots overflow")
	}
	h.tempRoots = append(h.tempRoots, v)
	return nil
}

// PopRoot releases the most recently pushed temp root.
func (h *Heap) PopRoot() {
	if n := len(h.tempRoots); n > 0 {
		h.tempRoots = h.tempRoots[:n-1]
	}
}

// MaybeCollect runs a collection cycle if bytes_allocated has reached
// heap_size and a cycle isn't already running, per spec §4.8's trigger rule.
func (h *Heap) MaybeCollect() {
	if h.running || h.bytesAllocated < h.heapSize {
		return
	}
	h.Collect()
}

// Collect forces an immediate collection cycle.
func (h *Heap) Collect() {
	if h.running {
		return
	}
	h.running = true
	defer func() { h.running = false }()

	h.markTransitive()
	garbage := h.sweep()
	toFinalize, rest := h.chooseFinalize(garbage)
	h.finalized = append(h.finalized, toFinalize...)
	h.freeAll(rest)
	h.sweepFinalized()
	h.runScriptDtors()
	h.updateBudget()

	h.log.Info("gc cycle complete",
		"freed", len(rest), "pendingFinalize", len(toFinalize),
		"bytesAllocated", h.bytesAllocated, "heapSize", h.heapSize)
}
