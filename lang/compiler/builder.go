// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package compiler implements the single-pass Pratt parser and the
// per-function compile-time builder it emits bytecode directly through —
// there is no intermediate AST or IR stage (spec.md §2/§4.5).
package compiler

import (
	"github.com/probechain/probescript/lang/bytecode"
	"github.com/probechain/probescript/lang/gc"
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/value"
)

// functionBuilder is the compile-time state for one function body: its
// local-variable array, the parallel scope-size stack, the emitted
// instruction/line streams, and the constant pool. Grounded on
// bifrost_vm_function_builder.c's locals array + scope-size stack +
// max_local_idx tracking.
type functionBuilder struct {
	heap *gc.Heap

	name   string
	locals []string // declared local names, in slot order
	scopes []int    // count of locals declared in each open scope

	tempTop int // temp registers occupy [len(locals)+0, len(locals)+tempTop)
	maxReg  int

	code []uint32
	lines []int

	constants []value.Value

	parent *functionBuilder // enclosing function, for diagnostics only; no closures over outer locals
}

func newFunctionBuilder(heap *gc.Heap, name string, parent *functionBuilder) *functionBuilder {
	return &functionBuilder{heap: heap, name: name, parent: parent}
}

func (b *functionBuilder) pushScope() { b.scopes = append(b.scopes, 0) }

func (b *functionBuilder) popScope() {
	n := len(b.scopes)
	count := b.scopes[n-1]
	b.scopes = b.scopes[:n-1]
	b.locals = b.locals[:len(b.locals)-count]
}

// declLocal appends name to the current scope and returns its register
// index, or -1 if name is already declared in this exact scope (the caller
// reports the redeclaration error).
func (b *functionBuilder) declLocal(name string) int {
	top := len(b.scopes) - 1
	start := len(b.locals) - b.scopes[top]
	for i := start; i < len(b.locals); i++ {
		if b.locals[i] == name {
			return -1
		}
	}
	b.locals = append(b.locals, name)
	b.scopes[top]++
	idx := len(b.locals) - 1
	b.bump(idx)
	return idx
}

// lookup searches locals from innermost scope outward (or, if
// currentScopeOnly, just the top scope) and returns the register index.
func (b *functionBuilder) lookup(name string, currentScopeOnly bool) (int, bool) {
	start := 0
	if currentScopeOnly && len(b.scopes) > 0 {
		start = len(b.locals) - b.scopes[len(b.scopes)-1]
	}
	for i := len(b.locals) - 1; i >= start; i-- {
		if b.locals[i] == name {
			return i, true
		}
	}
	return 0, false
}

// pushTemp reserves n contiguous anonymous registers above the named
// locals and returns the base register. mark (the prior tempTop) is what
// the caller passes back to popTemp/releaseTemp to release them.
func (b *functionBuilder) pushTemp(n int) (base, mark int) {
	mark = b.tempTop
	base = len(b.locals) + b.tempTop
	b.tempTop += n
	b.bump(base + n - 1)
	return base, mark
}

func (b *functionBuilder) releaseTemp(mark int) { b.tempTop = mark }

func (b *functionBuilder) bump(reg int) {
	if reg > b.maxReg {
		b.maxReg = reg
	}
}

// addConstant dedups v against the existing pool (linear scan, per spec
// §4.4) and returns its index.
func (b *functionBuilder) addConstant(v value.Value) int {
	for i, c := range b.constants {
		if c == v {
			return i
		}
	}
	b.constants = append(b.constants, v)
	return len(b.constants) - 1
}

// emit appends a pre-encoded instruction word, recording line for the
// instruction-index -> source-line table, and returns the word's index so
// callers can patch it later (forward jumps).
func (b *functionBuilder) emit(word uint32, line int) int {
	b.code = append(b.code, word)
	b.lines = append(b.lines, line)
	return len(b.code) - 1
}

// patchSBx rewrites the sBx field of an already-emitted jump instruction
// once its target is known.
func (b *functionBuilder) patchSBx(ip int, disp int) {
	in := bytecode.Decode(b.code[ip])
	b.code[ip] = bytecode.EncodeSBx(in.Op, in.A, disp, in.C)
}

func (b *functionBuilder) here() int { return len(b.code) }

// patchBreak overwrites a break statement's all-ones placeholder word with
// a real forward JUMP now that the loop's exit point is known. Unlike
// patchSBx, it cannot decode the placeholder (it is not a valid
// instruction), so it reconstructs the word from scratch.
func (b *functionBuilder) patchBreak(ip int, disp int) {
	b.code[ip] = bytecode.EncodeSBx(bytecode.OpJump, 0, disp, 0)
}

// finish builds the object.Function, computing needed_stack_space as
// maxReg + 1 with a floor of arity + 1 (arity is already reflected in
// maxReg since parameters are locals 0..arity-1, but empty-body functions
// with arity>0 and no other locals still need the +1 floor).
func (b *functionBuilder) finish(arity int) *object.Function {
	needed := b.maxReg + 1
	if floor := arity + 1; floor > needed {
		needed = floor
	}
	return &object.Function{
		Name:      b.name,
		Arity:     arity,
		Code:      b.code,
		Lines:     b.lines,
		Constants: b.constants,
		NumLocals: needed,
	}
}
