// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package vm

import (
	"testing"

	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/value"
	"github.com/stretchr/testify/assert"
)

// collectorFn is a NativeFunc that appends every Number argument it receives
// to a slice, standing in for a host-side "keep track of finalized instances"
// callback a dtor would call out to.
type collectorFn struct {
	got *[]float64
}

func (c *collectorFn) Call(ctx object.NativeContext) error {
	*c.got = append(*c.got, ctx.Slot(0).AsNumber())
	ctx.SetReturn(value.Null)
	return nil
}

func TestScenarioFibonacci(t *testing.T) {
	m := New(Params{})
	err := m.ExecInModule("main", `
func fib(n) {
  if (n < 2) return n;
  return fib(n-1) + fib(n-2);
}
`)
	assert.NoError(t, err)

	m.StackResize(1)
	assert.NoError(t, m.ModuleLoad(0, "main"))
	fnSlot := m.pushTemp(value.Null)
	assert.NoError(t, m.LoadVariable(fnSlot, 0, "fib"))

	for _, tc := range []struct {
		n, want float64
	}{{10, 55}, {0, 0}, {1, 1}} {
		callSlot := m.pushTemp(m.stack[m.slot(fnSlot)])
		argSlot := m.pushTemp(value.Number(tc.n))
		assert.NoError(t, m.Call(callSlot, argSlot, 1))
		assert.Equal(t, tc.want, m.ReadNumber(callSlot))
	}
}

func TestScenarioClassCtorDtorGC(t *testing.T) {
	m := New(Params{})
	var collected []float64
	m.StackResize(1)
	assert.NoError(t, m.ModuleMake(0, "res"))
	assert.NoError(t, m.StoreNativeFn(0, "collect", 1, &collectorFn{got: &collected}))

	err := m.ExecInModule("res", `
class Res {
  var id = 0;
  func ctor(v) { self.id = v; }
  func dtor() { collect(self.id); }
}
static var i = 0;
func make(v) { return new Res(v); }
`)
	assert.NoError(t, err)

	modSlot := m.pushTemp(value.Null)
	assert.NoError(t, m.ModuleLoad(modSlot, "res"))
	makeSlot := m.pushTemp(value.Null)
	assert.NoError(t, m.LoadVariable(makeSlot, modSlot, "make"))

	for i := 0; i < 100; i++ {
		callSlot := m.pushTemp(m.stack[m.slot(makeSlot)])
		argSlot := m.pushTemp(value.Number(float64(i)))
		assert.NoError(t, m.Call(callSlot, argSlot, 1))
		// the result overwrites callSlot, a host scratch slot above m.top,
		// which collectRoots never walks -- nothing roots this instance
		// past the call that produced it.
	}

	m.GC() // instances become garbage -> finalized, dtor runs
	m.GC() // nothing re-roots them -> freed

	assert.Len(t, collected, 100)
	seen := make(map[float64]bool, len(collected))
	for _, v := range collected {
		assert.False(t, seen[v], "dtor ran twice for id %v", v)
		seen[v] = true
	}
}

func TestScenarioImport(t *testing.T) {
	m := New(Params{
		OnModule: func(importingModule, importedModule string) (string, error) {
			if importedModule == "m" {
				return `static var k = 5; func f(x) { return x*k; }`, nil
			}
			return "", newError(ErrModuleNotFound, -1, "unknown module %q", importedModule)
		},
	})

	err := m.ExecInModule("main", `
import "m" for f;
static var y = f(3);
`)
	assert.NoError(t, err)

	m.StackResize(1)
	assert.NoError(t, m.ModuleLoad(0, "main"))
	ySlot := m.pushTemp(value.Null)
	assert.NoError(t, m.LoadVariable(ySlot, 0, "y"))
	assert.Equal(t, float64(15), m.ReadNumber(ySlot))
}

func TestScenarioArityMismatchHostCall(t *testing.T) {
	m := New(Params{})
	assert.NoError(t, m.ExecInModule("main", `func f(a, b) { return a+b; }`))

	m.StackResize(1)
	assert.NoError(t, m.ModuleLoad(0, "main"))
	fnSlot := m.pushTemp(value.Null)
	assert.NoError(t, m.LoadVariable(fnSlot, 0, "f"))

	callSlot := m.pushTemp(m.stack[m.slot(fnSlot)])
	argSlot := m.pushTemp(value.Number(1))
	err := m.Call(callSlot, argSlot, 1) // f wants 2 args, gave 1
	if assert.Error(t, err) {
		verr, ok := err.(*Error)
		if assert.True(t, ok, "error is not *vm.Error") {
			assert.Equal(t, ErrFunctionArityMismatch, verr.Kind)
		}
	}
}

func TestScenarioArityMismatchScriptCall(t *testing.T) {
	m := New(Params{})
	var lastKind ErrorKind
	var lastLine int
	m.onError = func(kind ErrorKind, line int, message string) {
		lastKind = kind
		lastLine = line
	}

	err := m.ExecInModule("main", `
func f(a, b) { return a+b; }
func g() { return f(1); }
var x = g();
`)
	assert.Error(t, err)
	assert.Equal(t, ErrFunctionArityMismatch, lastKind)
	assert.True(t, lastLine > 0, "expected a positive source line, got %d", lastLine)
}

func TestScenarioStringConcatWithNumber(t *testing.T) {
	m := New(Params{})
	var captured *object.String
	m.StackResize(1)
	assert.NoError(t, m.ModuleMake(0, "str"))
	assert.NoError(t, m.StoreNativeFn(0, "capture", 1, nativeFunc(func(ctx object.NativeContext) error {
		nc := ctx.(*nativeCtx)
		captured = nc.vm.heap.Get(nc.Slot(0)).(*object.String)
		ctx.SetReturn(value.Null)
		return nil
	})))

	err := m.ExecInModule("str", `
var s = "n=" + 42;
capture(s);
`)
	assert.NoError(t, err)
	if assert.NotNil(t, captured) {
		assert.Equal(t, "n=42", captured.Data)

		var want uint32 = 2166136261
		for _, b := range []byte("n=42") {
			want ^= uint32(b)
			want *= 16777619
		}
		assert.Equal(t, want, captured.Hash)
	}
}

// nativeFunc adapts a plain function literal to object.NativeFunc.
type nativeFunc func(ctx object.NativeContext) error

func (f nativeFunc) Call(ctx object.NativeContext) error { return f(ctx) }

// TestScenarioNativeRaiseErrorFailsCall confirms a native function that
// signals failure via RaiseError (rather than returning a Go error) actually
// fails the call at the invoking call site instead of silently succeeding.
func TestScenarioNativeRaiseErrorFailsCall(t *testing.T) {
	m := New(Params{})
	m.StackResize(1)
	assert.NoError(t, m.ModuleMake(0, "chk"))
	assert.NoError(t, m.StoreNativeFn(0, "mustPositive", 1, nativeFunc(func(ctx object.NativeContext) error {
		if ctx.Slot(0).AsNumber() < 0 {
			ctx.RaiseError("value must be positive")
			return nil
		}
		ctx.SetReturn(ctx.Slot(0))
		return nil
	})))

	assert.NoError(t, m.ExecInModule("chk", `var ok = mustPositive(1);`))

	err := m.ExecInModule("chk", `var bad = mustPositive(-1);`)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "value must be positive")
	}
}
