// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package vm

import (
	"errors"

	"github.com/probechain/probescript/lang/value"
)

// nativeCtx implements object.NativeContext, binding a NativeFunc's view of
// arguments/return to one call's slice of the VM's shared stack.
type nativeCtx struct {
	vm   *VM
	base int
	argc int
	ret  value.Value
	err  error
}

func (c *nativeCtx) ArgCount() int { return c.argc }

func (c *nativeCtx) Slot(i int) value.Value {
	if i < 0 || i >= c.argc {
		return value.Null
	}
	return c.vm.stack[c.base+i]
}

func (c *nativeCtx) SetReturn(v value.Value) { c.ret = v }

func (c *nativeCtx) NewString(s string) value.Value { return c.vm.heap.NewString(s) }

func (c *nativeCtx) RaiseError(msg string) { c.err = errors.New(msg) }
