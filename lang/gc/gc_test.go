// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package gc

import (
	"testing"

	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/value"
)

func newTestHeap() *Heap {
	return NewHeap(symbol.NewTable(), Config{MinHeapSize: 1, GrowthFactor: 1})
}

// TestGCConservatism: a rooted object survives any number of collections.
func TestGCConservatism(t *testing.T) {
	h := newTestHeap()
	s := h.NewString("kept")
	h.SetRootFunc(func() []value.Value { return []value.Value{s} })

	for i := 0; i < 5; i++ {
		h.Collect()
	}
	if h.objects[int(s.AsHandle())] == nil {
		t.Fatalf("rooted object was collected")
	}
}

// TestGCProgress: an unrooted object is reclaimed by the next collection.
func TestGCProgress(t *testing.T) {
	h := newTestHeap()
	h.SetRootFunc(func() []value.Value { return nil })

	h.NewString("garbage")
	h.Collect()

	if len(h.free) == 0 {
		t.Errorf("unrooted object was not reclaimed: free list empty")
	}
}

// TestGCReallocatesFreedSlot confirms freed indices are reused rather than
// growing the table unboundedly.
func TestGCReallocatesFreedSlot(t *testing.T) {
	h := newTestHeap()
	h.SetRootFunc(func() []value.Value { return nil })

	h.NewString("a")
	h.Collect()
	sizeAfterFirstCollect := len(h.objects)

	h.NewString("b")
	if len(h.objects) > sizeAfterFirstCollect {
		t.Errorf("new allocation grew the table instead of reusing a freed slot")
	}
}

// TestInstanceKeepsClassAlive exercises the transitive-mark rule that an
// instance marks its class even when nothing else roots the class directly.
func TestInstanceKeepsClassAlive(t *testing.T) {
	h := newTestHeap()
	_, mod := h.NewModule("m")
	classVal, cls := h.NewClass("Point", nil, mod)
	instVal, _ := h.NewInstance(cls)

	h.SetRootFunc(func() []value.Value { return []value.Value{instVal} })
	h.Collect()

	if h.objects[int(classVal.AsHandle())] == nil {
		t.Fatalf("class object was collected while a live instance referenced it")
	}
}

// TestDtorRunsOnceBeforeFreeing exercises the finalization pipeline end to
// end: an unrooted instance whose class defines dtor survives one extra
// cycle, runs its dtor exactly once, then is freed on the following cycle.
func TestDtorRunsOnceBeforeFreeing(t *testing.T) {
	h := newTestHeap()
	_, mod := h.NewModule("m")
	classVal, cls := h.NewClass("Res", nil, mod)
	dtorSym := h.symbols.Intern("dtor")
	cls.Methods[dtorSym] = classVal // any callable Value stands in for this test
	instVal, _ := h.NewInstance(cls)

	var calls int
	h.SetInvoker(func(fn value.Value, args []value.Value) (value.Value, error) {
		calls++
		return value.Null, nil
	})
	h.SetRootFunc(func() []value.Value { return nil })

	h.Collect() // instance becomes garbage, dtor-bearing -> finalized, dtor runs
	if calls != 1 {
		t.Fatalf("dtor ran %d times after first collection, want 1", calls)
	}
	if h.objects[int(instVal.AsHandle())] == nil {
		t.Fatalf("finalized instance was freed too early")
	}

	h.Collect() // nothing re-rooted it -> freed now
	if calls != 1 {
		t.Fatalf("dtor ran again on the second collection: %d calls", calls)
	}
	if h.objects[int(instVal.AsHandle())] != nil {
		t.Errorf("finalized instance was never freed")
	}
}

// TestHeapBudgetFormula confirms step 7's
// heap_size = max(min_heap_size, bytes_allocated*(1+growth_factor)) update.
func TestHeapBudgetFormula(t *testing.T) {
	h := NewHeap(symbol.NewTable(), Config{MinHeapSize: 1, GrowthFactor: 2})
	kept := h.NewString("kept-across-cycle")
	h.SetRootFunc(func() []value.Value { return []value.Value{kept} })

	h.Collect()

	want := int64(float64(h.BytesAllocated()) * 3)
	if h.HeapSize() != want {
		t.Errorf("HeapSize() = %d, want %d (bytesAllocated=%d, growthFactor=2)",
			h.HeapSize(), want, h.BytesAllocated())
	}
}

// TestBytesAllocatedShrinksOnFree confirms spec.md §8 testable property 4:
// bytes_allocated monotonically decreases or stays equal over a cycle that
// reclaims garbage, rather than only ever growing.
func TestBytesAllocatedShrinksOnFree(t *testing.T) {
	h := newTestHeap()
	h.SetRootFunc(func() []value.Value { return nil })

	h.NewString("garbage")
	before := h.BytesAllocated()
	if before == 0 {
		t.Fatalf("allocation did not charge bytesAllocated")
	}

	h.Collect()
	if h.BytesAllocated() >= before {
		t.Errorf("BytesAllocated() = %d after collecting garbage, want < %d", h.BytesAllocated(), before)
	}
}

// TestStringHashIsFNV1a confirms NewString precomputes the 32-bit FNV-1a
// hash spec.md §2 calls for, offset basis 2166136261 / prime 16777619.
func TestStringHashIsFNV1a(t *testing.T) {
	h := newTestHeap()
	v := h.NewString("n=42")

	s := h.Get(v).(*object.String)
	if got, want := s.Hash, uint32(2166136261); got == want {
		t.Fatalf("Hash wasn't mixed at all, still the offset basis")
	}

	var want uint32 = 2166136261
	for _, b := range []byte("n=42") {
		want ^= uint32(b)
		want *= 16777619
	}
	if s.Hash != want {
		t.Errorf("Hash = %d, want %d (FNV-1a of %q)", s.Hash, want, "n=42")
	}
}

// TestStringEqualityIsHashThenContent: two distinct String objects with equal
// content hash equal and compare equal via Heap.Eq, matching spec §3's
// "strings by hash-then-content" rule. NewString interns, so the second
// object is allocated directly to keep Eq from matching on identity.
func TestStringEqualityIsHashThenContent(t *testing.T) {
	h := newTestHeap()
	a := h.NewString("same")
	b := h.alloc(&object.String{Header: object.Header{Kind: object.KindString}, Data: "same", Hash: fnv1a("same")}, 0)
	if a == b {
		t.Fatalf("expected two distinct String objects")
	}
	if !h.Eq(a, b) {
		t.Errorf("two Strings with identical content were not Eq")
	}
}

// TestAddConcatenatesOnlyWithString: spec.md §4.1's "+" allocates a String
// on any pair where at least one operand actually is a String; any other
// non-number pair is an error, not a silent stringified concatenation.
func TestAddConcatenatesOnlyWithString(t *testing.T) {
	h := newTestHeap()

	n := value.Number(3)
	s := h.NewString("x=")
	if v, err := h.Add(s, n); err != nil {
		t.Fatalf("Add(string, number) returned error: %v", err)
	} else if got := h.Get(v).(*object.String).Data; got != "x=3" {
		t.Errorf("Add(string, number) = %q, want %q", got, "x=3")
	}

	_, mod := h.NewModule("m")
	_, cls := h.NewClass("C", nil, mod)
	instVal, _ := h.NewInstance(cls)
	if _, err := h.Add(instVal, value.Null); err == nil {
		t.Errorf("Add(instance, null) should fail: neither operand is a number or String")
	}
}
