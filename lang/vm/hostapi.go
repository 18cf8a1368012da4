// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// hostapi.go implements the numbered-slot embedding surface (spec §6.3): the
// host addresses slots relative to the VM's current stack top, producing
// calls write into a slot and consuming calls read from one.
package vm

import (
	"github.com/probechain/probescript/lang/compiler"
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/value"
)

// StackSize reports the number of slots currently visible to the host.
func (m *VM) StackSize() int { return len(m.stack) - m.top }

// StackResize grows the host-visible slot window so that n slots are
// addressable from the current top. Shrinking is a no-op: the backing array
// is never released mid-call, only reclaimed when top itself drops.
func (m *VM) StackResize(n int) { m.stackEnsure(n) }

func (m *VM) slot(i int) int { return m.top + i }

// SetNumber, SetString, SetBool, SetNil are the stack_set_* producing calls.
func (m *VM) SetNumber(slotIdx int, n float64) { m.stack[m.slot(slotIdx)] = value.Number(n) }
func (m *VM) SetBool(slotIdx int, b bool)       { m.stack[m.slot(slotIdx)] = value.Bool(b) }
func (m *VM) SetNil(slotIdx int)                { m.stack[m.slot(slotIdx)] = value.Null }
func (m *VM) SetString(slotIdx int, s string) {
	m.stack[m.slot(slotIdx)] = m.heap.NewString(s)
}

// ReadNumber, ReadBool are the matching stack_read_* consuming calls.
func (m *VM) ReadNumber(slotIdx int) float64 { return m.stack[m.slot(slotIdx)].AsNumber() }
func (m *VM) ReadBool(slotIdx int) bool      { return m.stack[m.slot(slotIdx)].AsBool() }

// ReadString reads slotIdx as a String's content; ok is false if the slot
// does not hold a String.
func (m *VM) ReadString(slotIdx int) (string, bool) {
	v := m.stack[m.slot(slotIdx)]
	if !v.IsPointer() {
		return "", false
	}
	s, ok := m.heap.Get(v).(*object.String)
	if !ok {
		return "", false
	}
	return s.Data, true
}

// GetType reports slotIdx's wire-visible Value kind.
func (m *VM) GetType(slotIdx int) string {
	v := m.stack[m.slot(slotIdx)]
	if v.IsPointer() {
		return m.heap.Kind(v).String()
	}
	return v.KindName()
}

// MakeInstance allocates an Instance of the Class held in clzSlot into
// dstSlot.
func (m *VM) MakeInstance(clzSlot, dstSlot int) error {
	clsVal := m.stack[m.slot(clzSlot)]
	cls, ok := m.heap.Get(clsVal).(*object.Class)
	if !ok {
		return newError(ErrInvalidArgument, -1, "slot %d is not a class", clzSlot)
	}
	instVal, _ := m.heap.NewInstance(cls)
	m.stack[m.slot(dstSlot)] = instVal
	return nil
}

// MakeReference allocates a host-rooted Reference bound to the class in
// clzSlot into dstSlot, returning a handle that keeps it alive.
func (m *VM) MakeReference(clzSlot, dstSlot int) (Handle, error) {
	clsVal := m.stack[m.slot(clzSlot)]
	cls, ok := m.heap.Get(clsVal).(*object.Class)
	if !ok {
		return 0, newError(ErrInvalidArgument, -1, "slot %d is not a class", clzSlot)
	}
	refVal := m.heap.NewReference(cls, value.Null)
	m.stack[m.slot(dstSlot)] = refVal
	return m.MakeHandle(dstSlot), nil
}

// LoadVariable loads container[name] into dstSlot (stack_load_variable).
func (m *VM) LoadVariable(dstSlot, containerSlot int, name string) error {
	sym, ok := m.symbols.Lookup(name)
	if !ok {
		m.stack[m.slot(dstSlot)] = value.Null
		return nil
	}
	v, err := m.loadSymbol(&Frame{Line: -1}, m.stack[m.slot(containerSlot)], sym)
	if err != nil {
		return err
	}
	m.stack[m.slot(dstSlot)] = v
	return nil
}

// StoreVariable writes valueSlot into container[name] (stack_store_variable).
func (m *VM) StoreVariable(containerSlot int, name string, valueSlot int) error {
	sym := m.symbols.Intern(name)
	return m.storeSymbol(&Frame{Line: -1}, m.stack[m.slot(containerSlot)], sym, m.stack[m.slot(valueSlot)])
}

// StoreNativeFn registers a Go-implemented callable under name on container
// (stack_store_native_fn). arity<0 means variadic (no arity check).
func (m *VM) StoreNativeFn(containerSlot int, name string, arity int, fn object.NativeFunc) error {
	nativeVal := m.heap.NewNativeFn(name, arity, fn)
	return m.StoreVariable(containerSlot, name, m.pushTemp(nativeVal))
}

// pushTemp writes v into a fresh slot beyond the current top and returns its
// slot index relative to top, for host API calls that need to stage a Value
// before a StoreVariable-style call. The stack grows by one slot per call and
// the slot is never reclaimed: StackResize does not shrink the stack.
func (m *VM) pushTemp(v value.Value) int {
	m.stack = append(m.stack, v)
	return len(m.stack) - 1 - m.top
}

// Handle is a long-lived, GC-rooted reference to a Value, stable across
// StackResize.
type Handle int

// MakeHandle roots the Value currently in slotIdx and returns a Handle to
// it. The host must call DestroyHandle on every handle it creates.
func (m *VM) MakeHandle(slotIdx int) Handle {
	v := m.stack[m.slot(slotIdx)]
	if n := len(m.freeHandles); n > 0 {
		idx := m.freeHandles[n-1]
		m.freeHandles = m.freeHandles[:n-1]
		m.handles[idx] = v
		return Handle(idx)
	}
	m.handles = append(m.handles, v)
	return Handle(len(m.handles) - 1)
}

// LoadHandle reads a handle's Value into dstSlot.
func (m *VM) LoadHandle(dstSlot int, h Handle) {
	m.stack[m.slot(dstSlot)] = m.handles[h]
}

// DestroyHandle releases a handle, unrooting its Value.
func (m *VM) DestroyHandle(h Handle) {
	m.handles[h] = value.Null
	m.freeHandles = append(m.freeHandles, int(h))
}

// ModuleMake allocates an empty Module named name into dstSlot and registers
// it, returning ModuleAlreadyDefined if name is taken.
func (m *VM) ModuleMake(dstSlot int, name string) error {
	if _, exists := m.modules[name]; exists {
		return newError(ErrModuleAlreadyDefined, -1, "module %q already defined", name)
	}
	modVal, _ := m.heap.NewModule(name)
	m.modules[name] = modVal
	m.stack[m.slot(dstSlot)] = modVal
	return nil
}

// moduleOrCreate returns the registered module named name, creating it first
// if necessary.
func (m *VM) moduleOrCreate(name string) value.Value {
	if modVal, ok := m.modules[name]; ok {
		return modVal
	}
	modVal, _ := m.heap.NewModule(name)
	m.modules[name] = modVal
	return modVal
}

// ModuleLoad looks an already-registered module up by name into dstSlot.
func (m *VM) ModuleLoad(dstSlot int, name string) error {
	modVal, ok := m.modules[name]
	if !ok {
		return newError(ErrModuleNotFound, -1, "module %q not loaded", name)
	}
	m.stack[m.slot(dstSlot)] = modVal
	return nil
}

// ModuleUnload drops a module from the registry; live references to objects
// it owns are unaffected until the next GC finds them unreachable.
func (m *VM) ModuleUnload(name string) {
	delete(m.modules, name)
	m.log.Info("module unloaded", "module", name)
}

// ModuleUnloadAll drops every registered module.
func (m *VM) ModuleUnloadAll() {
	m.log.Info("all modules unloaded", "count", len(m.modules))
	m.modules = make(map[string]value.Value)
}

// Call invokes the callable in slot and returns its result written into
// the same slot, mirroring spec's call(callable_slot, args_start_slot,
// num_args).
func (m *VM) Call(callableSlot, argsStartSlot, numArgs int) error {
	args := make([]value.Value, numArgs)
	copy(args, m.stack[m.slot(argsStartSlot):m.slot(argsStartSlot)+numArgs])
	result, err := m.Invoke(m.stack[m.slot(callableSlot)], args)
	if err != nil {
		return err
	}
	m.stack[m.slot(callableSlot)] = result
	return nil
}

// ExecInModule compiles and runs source as module name, creating it if it
// does not already exist.
func (m *VM) ExecInModule(name, source string) error {
	modVal := m.moduleOrCreate(name)
	mod := m.heap.Get(modVal).(*object.Module)

	fn, errs := compiler.Compile(source, m.kw, m.symbols, m.heap, mod, m.resolverFor(name))
	if len(errs) > 0 {
		for _, ce := range errs {
			m.raise(ErrCompile, ce.Line, "%s", ce.Message)
		}
		m.log.Warn("module load failed", "module", name, "errors", len(errs))
		return newError(ErrCompile, -1, "%d compile error(s) in module %q", len(errs), name)
	}
	fnVal := m.heap.NewFunction(fn)
	_, err := m.Invoke(fnVal, nil)
	if err != nil {
		m.log.Warn("module init raised", "module", name, "err", err)
	} else {
		m.log.Info("module loaded", "module", name)
	}
	return err
}

// resolverFor builds the compiler.ImportResolver an import statement inside
// importingModule uses to resolve "import \"x\" for ...;": already-loaded
// modules are returned as-is, otherwise the host's OnModule callback is
// asked for source text, which is compiled and run before its globals
// become visible to the importer.
func (m *VM) resolverFor(importingModule string) compiler.ImportResolver {
	return func(importedModule string) (*object.Module, error) {
		if modVal, ok := m.modules[importedModule]; ok {
			return m.heap.Get(modVal).(*object.Module), nil
		}
		if m.onModule == nil {
			return nil, newError(ErrModuleNotFound, -1, "module %q not loaded and no module lookup callback configured", importedModule)
		}
		source, err := m.onModule(importingModule, importedModule)
		if err != nil {
			return nil, err
		}
		if err := m.ExecInModule(importedModule, source); err != nil {
			return nil, err
		}
		return m.heap.Get(m.modules[importedModule]).(*object.Module), nil
	}
}

// GC forces an immediate collection cycle.
func (m *VM) GC() { m.heap.Collect() }

// BuildInSymbolStr resolves a well-known interned symbol's spelling (the
// C API's build_in_symbol_str, e.g. "ctor"/"dtor"/"call"), used by
// embedders that want to probe a class without hardcoding the name.
func (m *VM) BuildInSymbolStr(id symbol.ID) string { return m.symbols.Name(id) }
