// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package probescript is the embedding surface a host program links
// against: it wires a config.Config's tuning knobs into a lang/vm.VM and
// wraps the slot-stack host API (lang/vm/hostapi.go) behind the same
// New/Exec/Call shape integration/engine.go used to wrap the chain VM.
package probescript

import (
	"fmt"
	"log/slog"

	"github.com/probechain/probescript/config"
	"github.com/probechain/probescript/lang/vm"
)

// ErrorEvent is one entry of a run's accumulated compile/runtime errors,
// reported through Options.OnError.
type ErrorEvent struct {
	Kind    vm.ErrorKind
	Line    int
	Message string
}

// Options configures an Engine beyond what lives in config.Config: host
// callbacks the language has no opinion about (how print reaches a
// terminal, how an import's source text is found).
type Options struct {
	Config   config.Config
	OnPrint  func(s string)
	OnModule func(importingModule, importedModule string) (source string, err error)
	OnError  func(ErrorEvent)
	Logger   *slog.Logger
}

// Engine is one self-contained script runtime: its own heap, modules, and
// call stack. Not safe for concurrent use (spec: strictly single-threaded
// cooperative scheduling), matching lang/vm.VM itself.
type Engine struct {
	vm *vm.VM
}

// New constructs an Engine from Options, translating config.Config's VM
// knobs into vm.Params the way integration/engine.go built a probevm.VM
// from a Contract and an ExecutionContext.
func New(opts Options) *Engine {
	var onError vm.ErrorCallback
	if opts.OnError != nil {
		onError = func(kind vm.ErrorKind, line int, message string) {
			opts.OnError(ErrorEvent{Kind: kind, Line: line, Message: message})
		}
	}
	var onModule vm.ModuleLookupCallback
	if opts.OnModule != nil {
		onModule = vm.ModuleLookupCallback(opts.OnModule)
	}
	return &Engine{
		vm: vm.New(vm.Params{
			MinHeapSize:  opts.Config.VM.MinHeapSize,
			GrowthFactor: opts.Config.VM.GrowthFactor,
			OnError:      onError,
			OnPrint:      opts.OnPrint,
			OnModule:     onModule,
			Logger:       opts.Logger,
		}),
	}
}

// Exec compiles and runs source as the top-level module named name,
// creating that module if it does not already exist.
func (e *Engine) Exec(name, source string) error {
	if err := e.vm.ExecInModule(name, source); err != nil {
		return fmt.Errorf("probescript: %w", err)
	}
	return nil
}

// Call loads name from module modName and invokes it with args, returning
// its result. This is the Go-native convenience wrapper around the
// slot-stack Call primitive (lang/vm/hostapi.go) for hosts that don't need
// direct slot control.
func (e *Engine) Call(modName, name string, args ...float64) (float64, error) {
	e.vm.StackResize(1 + len(args))
	if err := e.vm.ModuleLoad(0, modName); err != nil {
		return 0, fmt.Errorf("probescript: %w", err)
	}
	if err := e.vm.LoadVariable(0, 0, name); err != nil {
		return 0, fmt.Errorf("probescript: %w", err)
	}
	for i, a := range args {
		e.vm.SetNumber(1+i, a)
	}
	if err := e.vm.Call(0, 1, len(args)); err != nil {
		return 0, fmt.Errorf("probescript: %w", err)
	}
	return e.vm.ReadNumber(0), nil
}

// GC forces an immediate collection cycle.
func (e *Engine) GC() { e.vm.GC() }

// VM exposes the underlying slot-stack host API (lang/vm/hostapi.go)
// directly, for hosts that need more control than Exec/Call/GC give.
func (e *Engine) VM() *vm.VM { return e.vm }
