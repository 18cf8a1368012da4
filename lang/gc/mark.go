// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package gc

import (
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/value"
)

// markRoots marks everything directly reachable per spec §4.8 step 1: the
// VM-supplied roots (stack slots, frame functions, registered modules, live
// handle Values) and every entry on the temp-roots stack.
func (h *Heap) markRoots() (worklist []int) {
	mark := func(v value.Value) {
		if v.IsPointer() {
			idx := int(v.AsHandle())
			if idx >= 0 && idx < len(h.objects) && h.objects[idx] != nil {
				hdr := h.objects[idx].GCHeader()
				if hdr.Mark != object.MarkReachable {
					hdr.Mark = object.MarkReachable
					worklist = append(worklist, idx)
				}
			}
		}
	}

	if h.roots != nil {
		for _, v := range h.roots() {
			mark(v)
		}
	}
	for _, v := range h.tempRoots {
		mark(v)
	}
	return worklist
}

// markTransitive drains the mark worklist, visiting each newly-marked
// object's owned references per spec §4.8 step 2.
func (h *Heap) markTransitive() {
	worklist := h.markRoots()

	mark := func(v value.Value) {
		if !v.IsPointer() {
			return
		}
		idx := int(v.AsHandle())
		if idx < 0 || idx >= len(h.objects) || h.objects[idx] == nil {
			return
		}
		hdr := h.objects[idx].GCHeader()
		if hdr.Mark != object.MarkReachable {
			hdr.Mark = object.MarkReachable
			worklist = append(worklist, idx)
		}
	}
	markClass := func(c *object.Class) {
		if c != nil {
			mark(value.FromHandle(uint64(h.indexOf(c))))
		}
	}

	for len(worklist) > 0 {
		idx := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		switch o := h.objects[idx].(type) {
		case *object.Module:
			for _, v := range o.Globals {
				mark(v)
			}
		case *object.Class:
			markClass(o.Base)
			if o.Module != nil {
				mark(value.FromHandle(uint64(h.indexOf(o.Module))))
			}
			for _, v := range o.Methods {
				mark(v)
			}
			for _, v := range o.Statics {
				mark(v)
			}
		case *object.Instance:
			markClass(o.Class)
			for _, v := range o.Fields {
				mark(v)
			}
		case *object.Function:
			for _, v := range o.Constants {
				mark(v)
			}
			for _, sv := range o.Statics {
				if sv != nil {
					mark(*sv)
				}
			}
		case *object.NativeFn:
			for _, v := range o.Statics {
				mark(v)
			}
		case *object.Reference:
			markClass(o.Class)
			mark(o.Target)
		case *object.WeakRef:
			markClass(o.Class)
			// weak refs never mark their target
		case *object.String:
			// no owned references
		}
	}
}

// indexOf recovers the object table index for a pointer already known to
// live in this heap. Objects don't carry their own index, so this does a
// linear scan; it is only used on the (rare, already-marked) class/module
// back-references during mark, never on a hot path.
func (h *Heap) indexOf(o object.Object) int {
	for i, cur := range h.objects {
		if cur == o {
			return i
		}
	}
	return -1
}
