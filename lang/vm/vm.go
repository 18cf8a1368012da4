// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"log/slog"

	"github.com/probechain/probescript/lang/gc"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/token"
	"github.com/probechain/probescript/lang/value"
)

// ErrorCallback is invoked once per compile error and once per runtime
// error, with the line of the failing instruction. No stack trace is
// emitted: there is no per-frame call and no begin/end marker kind.
type ErrorCallback func(kind ErrorKind, line int, message string)

// PrintCallback backs std:io.print.
type PrintCallback func(s string)

// ModuleLookupCallback resolves an import by name to source text.
type ModuleLookupCallback func(importingModule, importedModule string) (source string, err error)

// Params configures a new VM.
type Params struct {
	MinHeapSize  int64
	GrowthFactor float64
	Keywords     token.KeywordTable // defaults to token.DefaultKeywords()
	OnError      ErrorCallback
	OnPrint      PrintCallback
	OnModule     ModuleLookupCallback
	UserData     interface{}
	Logger       *slog.Logger
}

// VM is a self-contained interpreter instance: its own heap, stack, frames,
// modules, and handle table. No state is shared between VM instances, and a
// VM instance is not safe for concurrent use (spec §5: strictly
// single-threaded cooperative scheduling).
type VM struct {
	heap    *gc.Heap
	symbols *symbol.Table
	kw      token.KeywordTable

	callSymbol symbol.ID
	dtorSymbol symbol.ID
	ctorSymbol symbol.ID

	stack []value.Value
	top   int

	frames []Frame

	modules map[string]value.Value

	handles     []value.Value
	freeHandles []int

	lastError string

	onError  ErrorCallback
	onPrint  PrintCallback
	onModule ModuleLookupCallback
	userData interface{}
	log      *slog.Logger
}

// New constructs a VM, wiring the heap's root provider and finalizer
// invoker back to this instance so the gc package never needs to import vm.
func New(p Params) *VM {
	if p.Keywords == nil {
		p.Keywords = token.DefaultKeywords()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	syms := symbol.NewTable()
	m := &VM{
		heap:    gc.NewHeap(syms, gc.Config{MinHeapSize: p.MinHeapSize, GrowthFactor: p.GrowthFactor}),
		symbols: syms,
		kw:      p.Keywords,
		stack:   make([]value.Value, 256),
		modules: make(map[string]value.Value),
		onError: p.OnError, onPrint: p.OnPrint, onModule: p.OnModule,
		userData: p.UserData,
		log:      p.Logger,
	}
	m.callSymbol = syms.Intern("call")
	m.dtorSymbol = syms.Intern("dtor")
	m.ctorSymbol = syms.Intern("ctor")
	m.heap.SetRootFunc(m.collectRoots)
	m.heap.SetInvoker(m.invokeForGC)
	m.heap.SetLogger(p.Logger)
	m.registerStdIO()
	return m
}

// Delete releases the VM. Present for host-API symmetry with spec's
// new/delete pair; Go's GC reclaims the VM itself once unreferenced.
func (m *VM) Delete() {}

func (m *VM) collectRoots() []value.Value {
	roots := make([]value.Value, 0, m.top+len(m.frames)+len(m.modules)+len(m.handles))
	roots = append(roots, m.stack[:m.top]...)
	for _, f := range m.frames {
		roots = append(roots, f.FnValue)
	}
	for _, mv := range m.modules {
		roots = append(roots, mv)
	}
	for _, h := range m.handles {
		roots = append(roots, h)
	}
	return roots
}

func (m *VM) invokeForGC(fn value.Value, args []value.Value) (value.Value, error) {
	return m.Invoke(fn, args)
}

func (m *VM) raise(kind ErrorKind, line int, format string, args ...interface{}) *Error {
	e := newError(kind, line, format, args...)
	m.lastError = e.Error()
	if m.onError != nil {
		m.onError(kind, line, e.Message)
	}
	return e
}

// ErrorString returns the last error message recorded by the VM.
func (m *VM) ErrorString() string { return m.lastError }

// UserData returns the opaque pointer the host supplied at construction.
func (m *VM) UserData() interface{} { return m.userData }

// stackEnsure grows the stack so that index top+n-1 is valid.
func (m *VM) stackEnsure(n int) {
	needed := m.top + n
	if needed <= len(m.stack) {
		return
	}
	grown := make([]value.Value, needed*2)
	copy(grown, m.stack)
	m.stack = grown
}
