// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package value

import (
	"errors"
	"strconv"
)

// ErrInvalidOpOnType is returned by the purely-numeric operators below when
// at least one operand is not a number. String-aware "+" is implemented one
// layer up (package gc), since concatenation must allocate a heap String.
var ErrInvalidOpOnType = errors.New("value: operation not defined for operand type")

// Sub computes lhs - rhs. Both operands must be numbers.
func Sub(lhs, rhs Value) (Value, error) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		return Null, ErrInvalidOpOnType
	}
	return Number(lhs.AsNumber() - rhs.AsNumber()), nil
}

// Mul computes lhs * rhs. Both operands must be numbers.
func Mul(lhs, rhs Value) (Value, error) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		return Null, ErrInvalidOpOnType
	}
	return Number(lhs.AsNumber() * rhs.AsNumber()), nil
}

// Div computes lhs / rhs. Both operands must be numbers. Division by zero
// follows IEEE-754 (±Inf or NaN), it is not a runtime error.
func Div(lhs, rhs Value) (Value, error) {
	if !lhs.IsNumber() || !rhs.IsNumber() {
		return Null, ErrInvalidOpOnType
	}
	return Number(lhs.AsNumber() / rhs.AsNumber()), nil
}

// Lt, Gt, Le, Ge compare two numbers. Any non-number operand makes the
// comparison false (per spec.md §4.1), not an error.
func Lt(lhs, rhs Value) bool {
	return lhs.IsNumber() && rhs.IsNumber() && lhs.AsNumber() < rhs.AsNumber()
}

func Gt(lhs, rhs Value) bool {
	return lhs.IsNumber() && rhs.IsNumber() && lhs.AsNumber() > rhs.AsNumber()
}

func Le(lhs, rhs Value) bool {
	return lhs.IsNumber() && rhs.IsNumber() && lhs.AsNumber() <= rhs.AsNumber()
}

func Ge(lhs, rhs Value) bool {
	return lhs.IsNumber() && rhs.IsNumber() && lhs.AsNumber() >= rhs.AsNumber()
}

// EqPrimitive implements "==" for the two value kinds that don't require
// heap access: numbers compare by value, Null/True/False compare by
// identity (they are singletons), and any mixed-kind comparison is false.
// Pointer-to-pointer equality (identity or string content) is implemented in
// package gc, which is the layer that can dereference a handle.
func EqPrimitive(lhs, rhs Value) bool {
	switch {
	case lhs.IsNumber() && rhs.IsNumber():
		return lhs.AsNumber() == rhs.AsNumber()
	case lhs.IsPointer() || rhs.IsPointer():
		return false
	default:
		return lhs == rhs
	}
}

// FormatPrimitive renders a non-pointer Value the way "+" string-concat and
// std:io.print do: numbers with a %g-equivalent, bools as true/false, null
// as null. Pointer values are formatted by the gc package, which can look up
// the object's kind and (for Strings) content.
func FormatPrimitive(v Value) string {
	switch {
	case v.IsNumber():
		return strconv.FormatFloat(v.AsNumber(), 'g', -1, 64)
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNull():
		return "null"
	default:
		return "<unknown>"
	}
}
