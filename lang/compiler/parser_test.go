// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package compiler

import (
	"testing"

	"github.com/probechain/probescript/lang/gc"
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/token"
)

func newTestCompileEnv(t *testing.T) (*gc.Heap, *symbol.Table, *object.Module) {
	t.Helper()
	syms := symbol.NewTable()
	h := gc.NewHeap(syms, gc.Config{MinHeapSize: 1, GrowthFactor: 1})
	_, mod := h.NewModule("test")
	return h, syms, mod
}

func TestCompileFibonacciHasNoErrors(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	src := `func fib(n) { if (n < 2) return n; return fib(n-1) + fib(n-2); }`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %+v", errs)
	}
	sym, ok := syms.Lookup("fib")
	if !ok {
		t.Fatalf("fib was never interned")
	}
	if _, ok := mod.Globals[sym]; !ok {
		t.Errorf("fib was not stored as a module global")
	}
}

func TestCompileClassWithCtorDtor(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	src := `
class C {
  var x = 0;
  func ctor(v) { self.x = v; }
  func dtor() { }
}
var c = new C(5);
`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %+v", errs)
	}
	sym, _ := syms.Lookup("C")
	cv, ok := mod.Globals[sym]
	if !ok {
		t.Fatalf("class C not stored as a module global")
	}
	cls, ok := h.Get(cv).(*object.Class)
	if !ok {
		t.Fatalf("global C is not a *object.Class")
	}
	if !cls.HasCtor {
		t.Errorf("HasCtor = false, want true")
	}
	if !cls.HasDtorID {
		t.Errorf("HasDtorID = false, want true")
	}
	if cls.NumFields != 1 {
		t.Errorf("NumFields = %d, want 1", cls.NumFields)
	}
}

func TestCompileRecoversAfterSyntaxError(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	src := `var = ; func good() { return 1; }`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, nil)
	if len(errs) == 0 {
		t.Fatalf("expected at least one error from the malformed var statement")
	}
	sym, ok := syms.Lookup("good")
	if !ok {
		t.Fatalf("good was never interned")
	}
	if _, ok := mod.Globals[sym]; !ok {
		t.Errorf("good was not compiled after the parser recovered from the earlier error")
	}
}

func TestImportWithoutResolverRecordsError(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	src := `import "m" for f;`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, nil)
	if len(errs) == 0 {
		t.Fatalf("expected an error importing with no resolver configured")
	}
}

func TestImportCopiesSelectedGlobals(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	_, importedMod := h.NewModule("m")
	resolver := func(name string) (*object.Module, error) {
		if name != "m" {
			t.Fatalf("resolver asked for %q, want \"m\"", name)
		}
		return importedMod, nil
	}
	kSym := syms.Intern("k")
	importedMod.Globals[kSym] = 0 // placeholder value just needs to exist

	src := `import "m" for k as j;`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, resolver)
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %+v", errs)
	}
	jSym, _ := syms.Lookup("j")
	if _, ok := mod.Globals[jSym]; !ok {
		t.Errorf("import ... as j did not bind j in the importing module")
	}
}

func TestWhileLoopWithBreakCompiles(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	src := `
func f() {
  var i = 0;
  while (i < 10) {
    if (i == 5) break;
    i += 1;
  }
  return i;
}
`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %+v", errs)
	}
}

func TestForLoopCompiles(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	src := `
func sum() {
  var total = 0;
  for (var i = 0; i < 5; i += 1) {
    total += i;
  }
  return total;
}
`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %+v", errs)
	}
}

func TestBreakOutsideLoopIsError(t *testing.T) {
	h, syms, mod := newTestCompileEnv(t)
	src := `func f() { break; }`
	_, errs := Compile(src, token.DefaultKeywords(), syms, h, mod, nil)
	if len(errs) == 0 {
		t.Fatalf("expected an error for break outside a loop")
	}
}
