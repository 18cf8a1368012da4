// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package value implements the NaN-boxed 64-bit tagged value used throughout
// the PROBE script runtime. A Value is either a non-NaN IEEE-754 double, or a
// quiet NaN carrying a 2-bit tag (True / False / Null) in its payload, or a
// quiet NaN with the sign bit set whose low 48 bits are a heap object handle.
//
// The bit layout mirrors BifrostScript's bfVMValue (bifrost_vm_value.h):
// double bits when not a NaN, k_QuietNan|tag for singletons, and
// k_Float64SignBit|k_QuietNan|handle for heap pointers. Go has no raw
// pointers a tracing GC can safely NaN-box, so the "pointer" here is an index
// into a gc.Heap's object table rather than a machine address.
package value

import "math"

const (
	signBit    uint64 = 1 << 63
	quietNaN   uint64 = 0x7FFC000000000000
	ptrMask    uint64 = signBit | quietNaN
	tagMask    uint64 = 0x3
	tagNull    uint64 = 0x1
	tagTrue    uint64 = 0x2
	tagFalse   uint64 = 0x3
	handleMask uint64 = (1 << 48) - 1
)

// Value is a trivially-copyable 64-bit NaN-boxed quantity.
type Value uint64

// Null is the singleton null value.
var Null = Value(quietNaN | tagNull)

// True is the singleton boolean true value.
var True = Value(quietNaN | tagTrue)

// False is the singleton boolean false value.
var False = Value(quietNaN | tagFalse)

// Number constructs a Value wrapping a float64. Every non-NaN float
// round-trips bit-exactly through Number/AsNumber; every NaN is replaced by
// the one canonical quiet NaN (tag bits 0), so its payload and sign are not
// kept and it never collides with a tagged singleton's bit pattern — see
// IsNumber.
func Number(f float64) Value {
	if math.IsNaN(f) {
		// Canonicalize all NaNs to a single bit pattern so that a computed
		// NaN never accidentally decodes as Null/True/False.
		return Value(quietNaN)
	}
	return Value(math.Float64bits(f))
}

// Bool constructs a Value from a Go bool.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromHandle constructs a pointer Value wrapping a heap handle (an index into
// a gc.Heap's object table).
func FromHandle(handle uint64) Value {
	return Value(ptrMask | (handle & handleMask))
}

// isSingleton reports whether v is a tagged Null/True/False: sign bit clear,
// quiet-NaN prefix present, and a nonzero 2-bit tag. A nonzero tag
// distinguishes these from a plain (untagged, tag==0) float NaN.
func (v Value) isSingleton() bool {
	return uint64(v)&quietNaN == quietNaN && uint64(v)&signBit == 0 && uint64(v)&tagMask != 0
}

// IsNumber reports whether v holds a double: anything that is neither a
// heap-pointer handle nor a tagged Null/True/False singleton. This includes
// ordinary finite numbers, ±∞, and the canonical NaN produced by Number().
func (v Value) IsNumber() bool {
	return !v.IsPointer() && !v.isSingleton()
}

// IsNull reports whether v is the Null singleton.
func (v Value) IsNull() bool {
	return v == Null
}

// IsBool reports whether v is the True or False singleton.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// IsPointer reports whether v encodes a heap object handle.
func (v Value) IsPointer() bool {
	return uint64(v)&ptrMask == ptrMask
}

// AsNumber returns the float64 encoded by v. Defined only when IsNumber(v).
func (v Value) AsNumber() float64 {
	return math.Float64frombits(uint64(v))
}

// AsBool returns the boolean encoded by v. Defined only when IsBool(v).
func (v Value) AsBool() bool {
	return v == True
}

// AsHandle returns the heap handle encoded by v. Defined only when
// IsPointer(v).
func (v Value) AsHandle() uint64 {
	return uint64(v) & handleMask
}

// IsTruthy implements the language's truthiness rule: not null, not false.
// A live pointer Value (including a zero handle, which is a valid object
// index 0) is always truthy — there is no "null pointer" representation
// distinct from Null itself.
func (v Value) IsTruthy() bool {
	return v != Null && v != False
}

// KindName classifies v for string formatting purposes ("number", "bool",
// "null") without consulting the heap. Pointer values are classified by
// their caller using the heap's own Kind lookup.
func (v Value) KindName() string {
	switch {
	case v.IsNumber():
		return "number"
	case v.IsBool():
		return "bool"
	case v.IsNull():
		return "null"
	case v.IsPointer():
		return "object"
	default:
		return "unknown"
	}
}
