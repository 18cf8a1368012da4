// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package gc

import (
	"fmt"

	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/value"
)

// Format renders any Value, pointer or not, the way "+" string-concat and
// std:io.print do: numbers/bools/null via value.FormatPrimitive, Strings by
// their content, any other heap kind as "<kind name>".
func (h *Heap) Format(v value.Value) string {
	if !v.IsPointer() {
		return value.FormatPrimitive(v)
	}
	if s, ok := h.Get(v).(*object.String); ok {
		return s.Data
	}
	return "<" + h.Kind(v).String() + ">"
}

// Add implements spec §4.1's "+": numeric add on two numbers, or a new
// heap String holding the concatenation of both operands' printed forms
// when at least one operand is a String.
func (h *Heap) Add(lhs, rhs value.Value) (value.Value, error) {
	if lhs.IsNumber() && rhs.IsNumber() {
		return value.Number(lhs.AsNumber() + rhs.AsNumber()), nil
	}
	_, lStr := h.stringOf(lhs)
	_, rStr := h.stringOf(rhs)
	if lStr || rStr {
		return h.NewString(h.Format(lhs) + h.Format(rhs)), nil
	}
	return value.Null, fmt.Errorf("'+' operator of two incompatible types")
}

func (h *Heap) stringOf(v value.Value) (*object.String, bool) {
	if !v.IsPointer() {
		return nil, false
	}
	s, ok := h.Get(v).(*object.String)
	return s, ok
}

// Eq implements "==": numbers by value, Strings by content, any other
// object by identity (same handle), differing kinds are false.
func (h *Heap) Eq(lhs, rhs value.Value) bool {
	if !lhs.IsPointer() && !rhs.IsPointer() {
		return value.EqPrimitive(lhs, rhs)
	}
	if !lhs.IsPointer() || !rhs.IsPointer() {
		return false
	}
	if lhs.AsHandle() == rhs.AsHandle() {
		return true
	}
	ls, lok := h.Get(lhs).(*object.String)
	rs, rok := h.Get(rhs).(*object.String)
	return lok && rok && ls.Hash == rs.Hash && ls.Data == rs.Data
}
