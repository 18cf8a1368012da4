// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package bytecode

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	word := Encode(OpStoreMove, 3, 200000&((1<<18)-1), 7)
	in := Decode(word)
	if in.Op != OpStoreMove || in.A != 3 || in.C != 7 {
		t.Fatalf("round trip mismatch: %+v", in)
	}
}

func TestEncodeSBxRoundTrip(t *testing.T) {
	for _, disp := range []int{0, 1, -1, 500, -500, 131071, -131072} {
		word := EncodeSBx(OpJump, 0, disp, 0)
		in := Decode(word)
		if got := in.SBx(); got != disp {
			t.Errorf("SBx round trip for %d: got %d", disp, got)
		}
	}
}

func TestBreakPlaceholderNotAValidOp(t *testing.T) {
	if !IsBreakPlaceholder(BreakPlaceholder) {
		t.Fatalf("BreakPlaceholder must report IsBreakPlaceholder")
	}
	in := Decode(BreakPlaceholder)
	if int(in.Op) < len(opNames) && opNames[in.Op] != "" {
		t.Errorf("all-ones word decoded to a named opcode %v; it must stay reserved", in.Op)
	}
}

func TestEncodeBxRoundTrip(t *testing.T) {
	word := EncodeBx(OpLoadBasic, 5, 12345, 0)
	in := Decode(word)
	if in.A != 5 || in.Bx() != 12345 {
		t.Fatalf("Bx round trip mismatch: %+v", in)
	}
}
