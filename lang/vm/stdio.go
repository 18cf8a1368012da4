// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package vm

import (
	"strings"

	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/value"
)

// stdioPrint is std:io.print's NativeFunc: it renders every argument with
// the same value-to-string routine the "+" concat rule uses and hands the
// joined result to the host's PrintCallback.
type stdioPrint struct{ vm *VM }

func (p *stdioPrint) Call(ctx object.NativeContext) error {
	parts := make([]string, ctx.ArgCount())
	for i := range parts {
		parts[i] = p.vm.heap.Format(ctx.Slot(i))
	}
	if p.vm.onPrint != nil {
		p.vm.onPrint(strings.Join(parts, " "))
	}
	ctx.SetReturn(value.Null)
	return nil
}

// registerStdIO installs the one built-in stdlib module, std:io, exposing a
// variadic print(...) bound to the VM's PrintCallback.
func (m *VM) registerStdIO() {
	modVal := m.moduleOrCreate("std:io")
	mod := m.heap.Get(modVal).(*object.Module)
	sym := m.symbols.Intern("print")
	mod.Globals[sym] = m.heap.NewNativeFn("print", -1, &stdioPrint{vm: m})
}
