// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package vm

import (
	"github.com/probechain/probescript/lang/bytecode"
	"github.com/probechain/probescript/lang/gc"
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/value"
)

func isCallable(h *gc.Heap, v value.Value) bool {
	if !v.IsPointer() {
		return false
	}
	switch h.Get(v).(type) {
	case *object.Function, *object.NativeFn:
		return true
	default:
		return false
	}
}

func (m *VM) reg(f *Frame, i int) value.Value { return m.stack[f.Base+i] }

func (m *VM) setReg(f *Frame, i int, v value.Value) { m.stack[f.Base+i] = v }

func lineAt(fn *object.Function, ip int) int {
	if ip >= 0 && ip < len(fn.Lines) {
		return fn.Lines[ip]
	}
	return -1
}

// run drains the dispatch loop until the frame stack unwinds below depth,
// i.e. until the frame Invoke pushed itself returns.
func (m *VM) run(depth int) (value.Value, error) {
	for {
		f := &m.frames[len(m.frames)-1]
		if f.IP >= len(f.Fn.Code) {
			return value.Null, m.raise(ErrRuntime, f.Line, "fell off the end of %s without RETURN", f.Fn.Name)
		}
		word := f.Fn.Code[f.IP]
		if bytecode.IsBreakPlaceholder(word) {
			return value.Null, m.raise(ErrRuntime, f.Line, "unresolved break placeholder executed")
		}
		in := bytecode.Decode(word)
		f.IP++
		f.Line = lineAt(f.Fn, f.IP-1)

		switch in.Op {
		case bytecode.OpReturn:
			result := m.reg(f, in.Bx())
			base := f.Base
			m.frames = m.frames[:len(m.frames)-1]
			m.stack[base] = result
			if len(m.frames) < depth {
				return result, nil
			}

		case bytecode.OpLoadSymbol:
			v, err := m.loadSymbol(f, m.reg(f, in.B), symbol.ID(in.C))
			if err != nil {
				return value.Null, err
			}
			m.setReg(f, in.A, v)

		case bytecode.OpStoreSymbol:
			if err := m.storeSymbol(f, m.reg(f, in.A), symbol.ID(in.B), m.reg(f, in.C)); err != nil {
				return value.Null, err
			}

		case bytecode.OpLoadBasic:
			m.setReg(f, in.A, m.loadBasic(f, in.Bx()))

		case bytecode.OpNewClz:
			clsVal := m.reg(f, in.Bx())
			if !clsVal.IsPointer() {
				return value.Null, m.raise(ErrInvalidArgument, f.Line, "new target is not a class")
			}
			cls, ok := m.heap.Get(clsVal).(*object.Class)
			if !ok {
				return value.Null, m.raise(ErrInvalidArgument, f.Line, "new target is not a class")
			}
			instVal, _ := m.heap.NewInstance(cls)
			m.setReg(f, in.A, instVal)

		case bytecode.OpNot:
			m.setReg(f, in.A, value.Bool(!m.reg(f, in.Bx()).IsTruthy()))

		case bytecode.OpStoreMove:
			m.setReg(f, in.A, m.reg(f, in.Bx()))

		case bytecode.OpCallFn:
			callee := m.reg(f, in.B)
			argBase := f.Base + in.A
			if err := m.invokeCallSite(f, in.A, callee, argBase, in.C); err != nil {
				return value.Null, err
			}

		case bytecode.OpMathAdd:
			res, err := m.heap.Add(m.reg(f, in.B), m.reg(f, in.C))
			if err != nil {
				return value.Null, m.raise(ErrInvalidOpOnType, f.Line, "%v", err)
			}
			m.setReg(f, in.A, res)

		case bytecode.OpMathSub, bytecode.OpMathMul, bytecode.OpMathDiv:
			res, err := mathOp(in.Op, m.reg(f, in.B), m.reg(f, in.C))
			if err != nil {
				return value.Null, m.raise(ErrInvalidOpOnType, f.Line, "%v", err)
			}
			m.setReg(f, in.A, res)

		case bytecode.OpCmpEq:
			m.setReg(f, in.A, value.Bool(m.heap.Eq(m.reg(f, in.B), m.reg(f, in.C))))
		case bytecode.OpCmpNe:
			m.setReg(f, in.A, value.Bool(!m.heap.Eq(m.reg(f, in.B), m.reg(f, in.C))))
		case bytecode.OpCmpLt:
			m.setReg(f, in.A, value.Bool(value.Lt(m.reg(f, in.B), m.reg(f, in.C))))
		case bytecode.OpCmpGt:
			m.setReg(f, in.A, value.Bool(value.Gt(m.reg(f, in.B), m.reg(f, in.C))))
		case bytecode.OpCmpLe:
			m.setReg(f, in.A, value.Bool(value.Le(m.reg(f, in.B), m.reg(f, in.C))))
		case bytecode.OpCmpGe:
			m.setReg(f, in.A, value.Bool(value.Ge(m.reg(f, in.B), m.reg(f, in.C))))
		case bytecode.OpCmpAnd:
			m.setReg(f, in.A, value.Bool(m.reg(f, in.B).IsTruthy() && m.reg(f, in.C).IsTruthy()))
		case bytecode.OpCmpOr:
			m.setReg(f, in.A, value.Bool(m.reg(f, in.B).IsTruthy() || m.reg(f, in.C).IsTruthy()))

		case bytecode.OpJump:
			f.IP += in.SBx()

		case bytecode.OpJumpIf:
			if m.reg(f, in.A).IsTruthy() {
				f.IP += in.SBx()
			}

		case bytecode.OpJumpIfNot:
			if !m.reg(f, in.A).IsTruthy() {
				f.IP += in.SBx()
			}

		default:
			return value.Null, m.raise(ErrRuntime, f.Line, "unknown opcode %v", in.Op)
		}

		m.heap.MaybeCollect()
	}
}

func mathOp(op bytecode.Opcode, lhs, rhs value.Value) (value.Value, error) {
	switch op {
	case bytecode.OpMathSub:
		return value.Sub(lhs, rhs)
	case bytecode.OpMathMul:
		return value.Mul(lhs, rhs)
	default:
		return value.Div(lhs, rhs)
	}
}

// loadBasic implements LOAD_BASIC's bx-keyed dispatch: the low values select
// True/False/Null/CurrentModule, anything else indexes the constant pool
// offset by 4.
func (m *VM) loadBasic(f *Frame, bx int) value.Value {
	switch bx {
	case 0:
		return value.True
	case 1:
		return value.False
	case 2:
		return value.Null
	case 3:
		if f.Fn.Module != nil {
			return m.modules[f.Fn.Module.Name]
		}
		return value.Null
	default:
		idx := bx - 4
		if idx >= 0 && idx < len(f.Fn.Constants) {
			return f.Fn.Constants[idx]
		}
		return value.Null
	}
}

// loadSymbol implements LOAD_SYMBOL's container-kind-dependent resolution.
func (m *VM) loadSymbol(f *Frame, container value.Value, sym symbol.ID) (value.Value, error) {
	if !container.IsPointer() {
		return value.Null, m.raise(ErrRuntime, f.Line, "cannot read %s from a non-object", m.symbols.Name(sym))
	}
	switch o := m.heap.Get(container).(type) {
	case *object.Instance:
		if v, ok := o.Fields[sym]; ok {
			return v, nil
		}
		return m.loadFromClass(f, o.Class, sym)
	case *object.Class:
		return m.loadFromClass(f, o, sym)
	case *object.Module:
		if v, ok := o.Globals[sym]; ok {
			return v, nil
		}
		return value.Null, nil
	default:
		return value.Null, m.raise(ErrRuntime, f.Line, "value of kind %s has no members", o.GCHeader().Kind)
	}
}

// loadFromClass walks the base chain for a method/static; unlike an
// instance field miss, a miss here all the way up the chain is a runtime
// error (spec §4.6: "Runtime error if not found on class+base chain").
func (m *VM) loadFromClass(f *Frame, cls *object.Class, sym symbol.ID) (value.Value, error) {
	for c := cls; c != nil; c = c.Base {
		if v, ok := c.Methods[sym]; ok {
			return v, nil
		}
		if v, ok := c.Statics[sym]; ok {
			return v, nil
		}
	}
	return value.Null, m.raise(ErrRuntime, f.Line, "%s has no member %s", cls.Name, m.symbols.Name(sym))
}

// storeSymbol implements STORE_SYMBOL: write to an instance's field map, a
// class's method/static table, or a module's globals.
func (m *VM) storeSymbol(f *Frame, container value.Value, sym symbol.ID, v value.Value) error {
	if !container.IsPointer() {
		return m.raise(ErrRuntime, f.Line, "cannot write %s on a non-object", m.symbols.Name(sym))
	}
	switch o := m.heap.Get(container).(type) {
	case *object.Instance:
		o.Fields[sym] = v
		return nil
	case *object.Class:
		if isCallable(m.heap, v) {
			o.Methods[sym] = v
			if sym == m.dtorSymbol {
				o.HasDtor = true
			}
		} else {
			o.Statics[sym] = v
		}
		return nil
	case *object.Module:
		o.Globals[sym] = v
		return nil
	default:
		return m.raise(ErrRuntime, f.Line, "value of kind %s cannot be written to", o.GCHeader().Kind)
	}
}
