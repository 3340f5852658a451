package codegen

import (
	"fmt"

	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/mir"
)

// FrameLayout assigns every MIR Value of one function a frame-pointer-
// relative slot, computed once per function ahead of instruction
// emission. The target has no registers, so every Value maps to a frame
// slot for the lifetime of the function.
//
// Slot order, most-negative to FP:
//
//	[arguments][return values][old_fp][return_pc] FP [locals / block params / temporaries...]
type FrameLayout struct {
	NumArgSlots    int
	NumReturnSlots int

	// ArgOffset(i) / slot offsets for everything else.
	argOffset     []int // per parameter index
	returnOffset  int   // offset of the first return slot
	valueOffset   map[mir.Value]int
	NumLocalSlots int

	// allocData maps a FrameAlloc instruction's destination (pointer)
	// Value to the offset of the data region it points at, distinct from
	// valueOffset[dest], which holds the 1-cell slot storing the pointer
	// itself.
	allocData map[mir.Value]int
}

const (
	oldFPOffset    = -2
	returnPCOffset = -1
)

// OldFPOffset and ReturnPCOffset are the fixed fp-relative slots every
// frame reserves for the caller's saved state.
func OldFPOffset() int    { return oldFPOffset }
func ReturnPCOffset() int { return returnPCOffset }

// BuildFrameLayout computes the slot assignment for fn using oracle to
// size every aggregate type.
func BuildFrameLayout(fn *mir.Function, oracle *layout.Oracle) (*FrameLayout, error) {
	fl := &FrameLayout{valueOffset: map[mir.Value]int{}, allocData: map[mir.Value]int{}}

	argSlotCounts := make([]int, len(fn.Params))
	for i, t := range fn.Params {
		n, err := oracle.SlotCount(t)
		if err != nil {
			return nil, err
		}
		argSlotCounts[i] = n
		fl.NumArgSlots += n
	}
	retSlotCounts, err := returnSlotCounts(fn.ReturnType, oracle)
	if err != nil {
		return nil, err
	}
	for _, n := range retSlotCounts {
		fl.NumReturnSlots += n
	}

	// most-negative to least-negative: args, then returns, then the
	// reserved old_fp/return_pc pair immediately below FP. This is the
	// mirror image of the caller's outgoing layout: the caller writes
	// arguments at the top of its own frame, the callee's return region
	// sits directly above them, and CallAbsImm's frame delta lines the
	// two views up cell-for-cell.
	base := -(2 + fl.NumArgSlots + fl.NumReturnSlots)
	cursor := base
	fl.argOffset = make([]int, len(fn.Params))
	for i, n := range argSlotCounts {
		fl.argOffset[i] = cursor
		cursor += n
	}
	fl.returnOffset = cursor

	// The entry block declares no parameters of its own; the builder
	// binds each formal parameter's Value directly, so those Values get
	// the argument-region slots here.
	for i := range fn.Params {
		fl.valueOffset[entryParamValue(fn, i)] = fl.argOffset[i]
	}

	locals := 0
	for _, b := range fn.Blocks() {
		if !b.Valid {
			continue
		}
		for i := 0; i < b.Params(); i++ {
			v := b.Param(i)
			n, err := oracle.SlotCount(b.ParamType(i))
			if err != nil {
				return nil, err
			}
			fl.valueOffset[v] = locals
			locals += n
		}
		for _, instr := range b.Instructions() {
			if instr.Kind == mir.InstFrameAlloc {
				n, err := oracle.SlotCount(instr.AggType)
				if err != nil {
					return nil, err
				}
				total := n * instr.Count
				fl.allocData[instr.Dest] = locals
				locals += total
				fl.valueOffset[instr.Dest] = locals
				locals++
				continue
			}
			for _, d := range instr.Defs() {
				if _, already := fl.valueOffset[d]; already {
					continue
				}
				t := fn.ValueType(d)
				n, err := oracle.SlotCount(t)
				if err != nil {
					return nil, err
				}
				fl.valueOffset[d] = locals
				locals += n
			}
		}
	}
	fl.NumLocalSlots = locals
	return fl, nil
}

// entryParamValue recovers the Value bound to the i-th formal parameter.
// Parameters are the first len(fn.Params) Values allocated by
// NewFunction's caller (mir.Builder.buildFunction calls fn.NewValue once
// per parameter, in order, before lowering the body), so they are simply
// Values 0..len(Params)-1.
func entryParamValue(fn *mir.Function, i int) mir.Value { return mir.Value(i) }

func returnSlotCounts(t layout.Type, oracle *layout.Oracle) ([]int, error) {
	if t.Kind == layout.KindUnit {
		return nil, nil
	}
	if t.Kind == layout.KindTuple {
		counts := make([]int, len(t.Elems))
		for i, e := range t.Elems {
			n, err := oracle.SlotCount(e)
			if err != nil {
				return nil, err
			}
			counts[i] = n
		}
		return counts, nil
	}
	n, err := oracle.SlotCount(t)
	if err != nil {
		return nil, err
	}
	return []int{n}, nil
}

// ValueOffset returns v's assigned fp-relative slot offset. A value with
// no assignment is a structural bug (a use not dominated by a layout
// visit); the panic is converted to an *Error at the Generate
// boundary.
func (fl *FrameLayout) ValueOffset(v mir.Value) int {
	off, ok := fl.valueOffset[v]
	if !ok {
		panic(fmt.Sprintf("codegen: value %s has no frame slot", v))
	}
	return off
}

// AllocDataOffset returns the fp-relative offset of the data region
// reserved by the FrameAlloc instruction whose destination pointer is v.
func (fl *FrameLayout) AllocDataOffset(v mir.Value) (int, bool) {
	off, ok := fl.allocData[v]
	return off, ok
}

// ReturnOffset returns the fp-relative offset of the first return slot.
func (fl *FrameLayout) ReturnOffset() int { return fl.returnOffset }

// ArgOffset returns the i-th parameter's fp-relative offset.
func (fl *FrameLayout) ArgOffset(i int) int { return fl.argOffset[i] }

// FrameSize is the total number of cells this frame reserves above FP
// (locals, temporaries and block parameters only — the negative region is
// sized by the caller's own slot bookkeeping, not by the callee's frame).
func (fl *FrameLayout) FrameSize() int { return fl.NumLocalSlots }
