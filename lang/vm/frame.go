// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package vm

import (
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/value"
)

// Frame is one active call's bookkeeping: its instruction pointer, the
// Function it is executing, and where its registers begin in the VM's
// shared stack. FnValue duplicates Fn as a pointer Value so the collector's
// root walk ("every call frame's fn") can mark it without a reverse lookup
// from *object.Function back to a heap index.
type Frame struct {
	IP       int
	Fn       *object.Function
	FnValue  value.Value
	Base     int
	SavedTop int
	Line     int // source line of the instruction currently executing, for traces

	// retVal is only used by the synthetic frame Invoke builds when there is
	// no enclosing bytecode register file to write a call's result into.
	retVal value.Value
}
