// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package vm

import (
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/value"
)

// Invoke calls a script or native callable with args already materialized
// as Go Values, used by the host `call` API and by the GC's dtor dispatch.
// It is equivalent to CALL_FN but owns its own frame-window setup since
// there is no enclosing bytecode frame to borrow registers from.
func (m *VM) Invoke(fn value.Value, args []value.Value) (value.Value, error) {
	base := m.top
	m.stackEnsure(len(args))
	copy(m.stack[base:base+len(args)], args)
	m.top = base + len(args)

	tmp := Frame{Base: base}
	if err := m.invokeCallSite(&tmp, -1, fn, base, len(args)); err != nil {
		m.top = base
		return value.Null, err
	}
	// invokeCallSite either ran a native fn to completion (result sits in
	// the synthetic frame's retVal via setCallResult's destA<0 path) or
	// pushed a bytecode frame that the run loop below must drain.
	if len(m.frames) > 0 && m.frames[len(m.frames)-1].Base == base {
		depth := len(m.frames)
		result, err := m.run(depth)
		m.top = base
		return result, err
	}
	result := tmp.retVal
	m.top = base
	return result, nil
}

// invokeCallSite implements CALL_FN's dispatch rule, including the
// instance/class/reference rewrite to their class's `call` method. destA<0
// means "no enclosing register file" (the Invoke path); destA>=0 writes the
// result into cur's register a (the CALL_FN-from-bytecode path).
func (m *VM) invokeCallSite(cur *Frame, destA int, calleeVal value.Value, argBase, numArgs int) *Error {
	if !calleeVal.IsPointer() {
		return m.raise(ErrInvalidArgument, cur.Line, "call target is not callable")
	}
	switch o := m.heap.Get(calleeVal).(type) {
	case *object.Function:
		if numArgs != o.Arity {
			return m.raise(ErrFunctionArityMismatch, cur.Line, "function %s expects %d args, got %d", o.Name, o.Arity, numArgs)
		}
		needed := o.NumLocals
		if needed < o.Arity+1 {
			needed = o.Arity + 1
		}
		if argBase+needed > len(m.stack) {
			m.stackEnsure(argBase + needed - m.top)
		}
		if m.top < argBase+needed {
			m.top = argBase + needed
		}
		m.frames = append(m.frames, Frame{IP: 0, Fn: o, FnValue: calleeVal, Base: argBase, SavedTop: argBase})
		return nil

	case *object.NativeFn:
		if o.Arity >= 0 && numArgs != o.Arity {
			return m.raise(ErrFunctionArityMismatch, cur.Line, "native fn %s expects %d args, got %d", o.Name, o.Arity, numArgs)
		}
		ctx := &nativeCtx{vm: m, base: argBase, argc: numArgs}
		if err := o.Fn.Call(ctx); err != nil {
			return m.raise(ErrRuntime, cur.Line, "%v", err)
		}
		if ctx.err != nil {
			return m.raise(ErrRuntime, cur.Line, "%v", ctx.err)
		}
		m.setCallResult(cur, destA, ctx.ret)
		return nil

	case *object.Instance:
		return m.dispatchReceiverCall(cur, destA, calleeVal, o.Class, argBase, numArgs)
	case *object.Reference:
		return m.dispatchReceiverCall(cur, destA, calleeVal, o.Class, argBase, numArgs)
	case *object.Class:
		return m.dispatchReceiverCall(cur, destA, calleeVal, o, argBase, numArgs)
	default:
		return m.raise(ErrInvalidArgument, cur.Line, "value of kind %s is not callable", o.GCHeader().Kind)
	}
}

// dispatchReceiverCall rewrites a call through an instance/reference/class
// into a call to its class's "call" method with the receiver prepended as
// arg0 (spec §4.6 CALL_FN).
func (m *VM) dispatchReceiverCall(cur *Frame, destA int, receiver value.Value, cls *object.Class, argBase, numArgs int) *Error {
	method, ok := lookupMethod(cls, m.callSymbol)
	if !ok {
		return m.raise(ErrRuntime, cur.Line, "class %s has no call method", cls.Name)
	}
	m.stackEnsure(1)
	copy(m.stack[argBase+1:argBase+1+numArgs], m.stack[argBase:argBase+numArgs])
	m.stack[argBase] = receiver
	if m.top < argBase+1+numArgs {
		m.top = argBase + 1 + numArgs
	}
	return m.invokeCallSite(cur, destA, method, argBase, numArgs+1)
}

func (m *VM) setCallResult(cur *Frame, destA int, v value.Value) {
	if destA < 0 {
		cur.retVal = v
		return
	}
	m.stack[cur.Base+destA] = v
}

// lookupMethod walks the class's base chain looking for sym.
func lookupMethod(cls *object.Class, sym symbol.ID) (value.Value, bool) {
	for c := cls; c != nil; c = c.Base {
		if v, ok := c.Methods[sym]; ok {
			return v, true
		}
	}
	return value.Null, false
}
