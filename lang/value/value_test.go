// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package value

import (
	"math"
	"testing"
)

func TestNumberRoundTrip(t *testing.T) {
	cases := []float64{0, -0.0, 1, -1, 3.14159, math.MaxFloat64, -math.MaxFloat64,
		math.SmallestNonzeroFloat64, math.Inf(1), math.Inf(-1)}
	for _, f := range cases {
		v := Number(f)
		if !v.IsNumber() {
			t.Fatalf("Number(%v).IsNumber() = false", f)
		}
		if got := v.AsNumber(); got != f && !(f == 0 && got == 0) {
			t.Errorf("Number(%v).AsNumber() = %v; want bit-exact %v", f, got, f)
		}
	}
}

func TestNumberNegativeZero(t *testing.T) {
	v := Number(math.Copysign(0, -1))
	if math.Signbit(v.AsNumber()) != true {
		t.Errorf("negative zero did not round-trip its sign bit")
	}
}

func TestSingletons(t *testing.T) {
	if !Null.IsNull() || Null.IsBool() || Null.IsNumber() || Null.IsPointer() {
		t.Errorf("Null predicates wrong: %+v", Null)
	}
	if !True.IsBool() || !True.AsBool() || True.IsNull() || True.IsNumber() {
		t.Errorf("True predicates wrong")
	}
	if !False.IsBool() || False.AsBool() || False.IsNull() || False.IsNumber() {
		t.Errorf("False predicates wrong")
	}
}

func TestPointerRoundTrip(t *testing.T) {
	for _, h := range []uint64{0, 1, 42, (1 << 48) - 1} {
		v := FromHandle(h)
		if !v.IsPointer() {
			t.Fatalf("FromHandle(%d).IsPointer() = false", h)
		}
		if got := v.AsHandle(); got != h {
			t.Errorf("FromHandle(%d).AsHandle() = %d", h, got)
		}
		if v.IsNumber() || v.IsBool() || v.IsNull() {
			t.Errorf("pointer Value misclassified as primitive: %+v", v)
		}
	}
}

func TestTruthy(t *testing.T) {
	if Null.IsTruthy() || False.IsTruthy() {
		t.Errorf("Null/False must not be truthy")
	}
	if !True.IsTruthy() || !Number(0).IsTruthy() || !FromHandle(0).IsTruthy() {
		t.Errorf("True/0/pointer(0) must be truthy")
	}
}

func TestComparisons(t *testing.T) {
	a, b := Number(1), Number(2)
	if !Lt(a, b) || Lt(b, a) {
		t.Errorf("Lt wrong")
	}
	if !Ge(b, a) || Ge(a, b) {
		t.Errorf("Ge wrong")
	}
	if Lt(True, b) || Gt(Null, a) {
		t.Errorf("comparisons against non-numbers must be false")
	}
}

func TestEqPrimitiveReflexiveOnNumbers(t *testing.T) {
	for _, f := range []float64{0, 1, -5, 3.5} {
		if !EqPrimitive(Number(f), Number(f)) {
			t.Errorf("EqPrimitive(%v, %v) = false", f, f)
		}
	}
	if EqPrimitive(Number(1), True) {
		t.Errorf("cross-kind equality must be false")
	}
}

func TestArithmeticErrors(t *testing.T) {
	if _, err := Sub(True, Number(1)); err != ErrInvalidOpOnType {
		t.Errorf("Sub on bool should error, got %v", err)
	}
}
