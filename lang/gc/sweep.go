// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package gc

import (
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/value"
)

// sweep walks the all-objects list (spec §4.8 step 3): each Unreachable
// object is unlinked and collected into the returned garbage list; each
// Reachable object is reset to Unreachable for the next cycle.
func (h *Heap) sweep() []int {
	var garbage []int
	var kept []int
	for idx := h.head; idx != -1; {
		obj := h.objects[idx]
		hdr := obj.GCHeader()
		next := hdr.Next
		if hdr.Mark == object.MarkReachable {
			hdr.Mark = object.MarkUnreachable
			kept = append(kept, idx)
		} else {
			garbage = append(garbage, idx)
		}
		idx = next
	}
	h.relink(kept)
	return garbage
}

// relink rebuilds the intrusive all-objects list from the surviving indices,
// newest-first to match the allocation-order convention insert() uses.
func (h *Heap) relink(kept []int) {
	h.head = -1
	for i := len(kept) - 1; i >= 0; i-- {
		idx := kept[i]
		h.objects[idx].GCHeader().Next = h.head
		h.head = idx
	}
}

// chooseFinalize implements spec §4.8 step 4: garbage with a dtor-bearing
// class is marked PendingFinalize and held one more cycle on the finalized
// list instead of being freed immediately, so its script dtor can still
// observe its fields. Everything else is returned as-is for immediate
// freeing.
func (h *Heap) chooseFinalize(garbage []int) (toFinalize, rest []int) {
	for _, idx := range garbage {
		hdr := h.objects[idx].GCHeader()
		if hdr.HasDtor {
			hdr.Mark = object.MarkPendingFinalize
			toFinalize = append(toFinalize, idx)
		} else {
			rest = append(rest, idx)
		}
	}
	return toFinalize, rest
}

// freeAll removes the given objects from the table immediately (spec §4.8
// step 4's "for others... free").
func (h *Heap) freeAll(indices []int) {
	for _, idx := range indices {
		h.bytesAllocated -= h.objects[idx].GCHeader().Size
		h.forgetString(idx)
		h.objects[idx] = nil
		h.free = append(h.free, idx)
	}
}

func (h *Heap) forgetString(idx int) {
	if s, ok := h.objects[idx].(*object.String); ok {
		if cur, ok2 := h.strings[s.Data]; ok2 && cur == idx {
			delete(h.strings, s.Data)
		}
	}
}

// sweepFinalized implements spec §4.8 step 5: objects already on the
// finalized list from a prior cycle are freed once they come back
// Unreachable (nothing re-rooted them while their dtor ran); everything
// else on the list, including entries chooseFinalize just added this cycle
// at MarkPendingFinalize, has its mark reset to Unreachable so it is
// judged fresh next cycle.
func (h *Heap) sweepFinalized() {
	var survivors []int
	for _, idx := range h.finalized {
		hdr := h.objects[idx].GCHeader()
		if hdr.Mark == object.MarkUnreachable {
			h.freeAll([]int{idx})
			continue
		}
		hdr.Mark = object.MarkUnreachable
		survivors = append(survivors, idx)
	}
	h.finalized = survivors
}

// runScriptDtors implements spec §4.8 step 6: for every object still on the
// finalized list, invoke its class's script-level dtor with the object
// itself as arg0, via the installed Invoker. Native finalizers are not
// modeled separately: this runtime only exposes a script-level dtor hook
// (spec.md names no separate native-finalizer registration API beyond the
// class finalizer callback in §6.2, which embedders wire through dtor
// itself).
func (h *Heap) runScriptDtors() {
	if h.invoke == nil {
		return
	}
	for _, idx := range h.finalized {
		obj := h.objects[idx]
		hdr := obj.GCHeader()
		if hdr.Finalize {
			continue // already ran once, awaiting its final sweep
		}
		var cls *object.Class
		var self value.Value
		switch o := obj.(type) {
		case *object.Instance:
			cls, self = o.Class, value.FromHandle(uint64(idx))
		case *object.Reference:
			cls, self = o.Class, value.FromHandle(uint64(idx))
		}
		if cls == nil {
			hdr.Finalize = true
			continue
		}
		for c := cls; c != nil; c = c.Base {
			if dtor, ok := c.Methods[h.dtorID]; ok {
				if _, err := h.invoke(dtor, []value.Value{self}); err != nil {
					h.log.Warn("finalizer raised", "class", cls.Name, "err", err)
				}
				break
			}
		}
		hdr.Finalize = true
	}
}

func (h *Heap) updateBudget() {
	budget := float64(h.bytesAllocated) * (1 + h.growthFactor)
	if int64(budget) < h.minHeapSize {
		h.heapSize = h.minHeapSize
	} else {
		h.heapSize = int64(budget)
	}
}
