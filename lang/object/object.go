// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package object defines the heap-allocated object kinds that a pointer
// Value can reference: Module, Class, Instance, Function, NativeFn, String,
// Reference, and WeakRef. Every kind embeds Header, the bookkeeping the
// tracing collector in package gc needs (mark state, intrusive list link,
// finalizer flag).
//
// object does not import gc or vm: NativeFunc is an interface a host
// implements, and it reaches the VM only through NativeContext, an
// interface implemented by the vm package, so the dependency runs
// one way (gc and vm import object, object imports neither).
package object

import (
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/value"
)

// Value is an alias so the object kinds below read naturally without every
// file importing package value under its own name.
type Value = value.Value

// Kind identifies which of the eight heap object shapes a Header belongs to.
type Kind uint8

const (
	KindModule Kind = iota
	KindClass
	KindInstance
	KindFunction
	KindNativeFn
	KindString
	KindReference
	KindWeakRef
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindFunction:
		return "function"
	case KindNativeFn:
		return "native_fn"
	case KindString:
		return "string"
	case KindReference:
		return "reference"
	case KindWeakRef:
		return "weak_ref"
	default:
		return "unknown"
	}
}

// GCMark is the tri-state mark a collection cycle assigns to every object.
type GCMark uint8

const (
	MarkUnreachable GCMark = iota
	MarkReachable
	MarkPendingFinalize
)

// Header is embedded in every heap object kind. It is the fields the
// collector touches directly rather than through a type switch: the kind tag,
// the current mark, the intrusive all-objects link (an index into the heap's
// object slice, since Go values cannot be threaded through a raw-pointer
// linked list the way the original C runtime does), and whether the script
// author registered a dtor for this object's class.
type Header struct {
	Kind     Kind
	Mark     GCMark
	Next     int   // index of the next object in the heap's all-objects list, -1 if none
	Size     int64 // bytes charged against Heap.bytesAllocated at alloc time
	HasDtor  bool
	Finalize bool // set once the dtor has run so sweep only frees
}

// Object is implemented by every heap object kind. GCHeader gives package gc
// uniform access to the mark state without a type switch on every visit.
type Object interface {
	GCHeader() *Header
}

func (h *Header) GCHeader() *Header { return h }

// Module is a namespace of interned-symbol-keyed globals, the result of
// compiling and running one script file or one host-registered unit.
type Module struct {
	Header
	Name    string
	Globals map[symbol.ID]Value
}

// Class describes a script-level type: its static storage, its method table,
// and its base class link (traced, not weak — see DESIGN.md on the base
// class open question).
type Class struct {
	Header
	Name      string
	Base      *Class
	Module    *Module
	Methods   map[symbol.ID]Value
	Statics   map[symbol.ID]Value
	Ctor      symbol.ID
	HasCtor   bool
	Dtor      symbol.ID
	HasDtorID bool
	NumFields int
}

// Instance is a live object of some Class, carrying its own field slots.
type Instance struct {
	Header
	Class  *Class
	Fields map[symbol.ID]Value
}

// Function is a script-compiled closure: its bytecode, constant pool, and
// the statics it closes over by reference.
type Function struct {
	Header
	Name      string
	Arity     int
	Code      []uint32
	Lines     []int // Lines[i] is the source line instruction i compiled from
	Constants []Value
	NumLocals int
	Module    *Module
	Statics   []*Value
}

// NativeFunc is implemented by Go code registered as a callable from script.
// It receives a NativeContext bound to the calling VM's slot stack rather
// than a direct VM reference, so this package never imports vm.
type NativeFunc interface {
	Call(ctx NativeContext) error
}

// NativeContext is the slice of VM behavior a NativeFunc needs: reading its
// arguments and returning a result, both through the numbered slot stack the
// host embedding API also uses.
type NativeContext interface {
	ArgCount() int
	Slot(i int) Value
	SetReturn(v Value)
	NewString(s string) Value
	RaiseError(msg string)
}

// NativeFn wraps a NativeFunc with the bookkeeping the runtime needs to treat
// it like any other callable Value. Statics holds whatever script Values the
// native closure captured (e.g. a module it was registered against); the
// collector marks through it the same way it marks a Function's constants.
type NativeFn struct {
	Header
	Name    string
	Arity   int
	Fn      NativeFunc
	Statics []Value
}

// String is an immutable, GC-owned string value. It is interned against the
// engine so that identical content shares one allocation.
type String struct {
	Header
	Data string
	Hash uint32 // precomputed FNV-1a over Data, for hash-then-content equality
}

// Reference is a GC-rooted handle a host embedder can hold across calls
// without it moving or being collected as long as the Reference is live.
// It marks its Class but, unlike an Instance, has no field map of its own.
type Reference struct {
	Header
	Class  *Class
	Target Value
}

// WeakRef observes a target without keeping it alive. It marks its Class (so
// method dispatch through a weak ref still works) but never marks Target.
// Target is not cleared when the object it names is collected.
type WeakRef struct {
	Header
	Class  *Class
	Target Value
}
