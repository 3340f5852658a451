package codegen

import (
	"fmt"

	"github.com/cairo-m/cairom/internal/felt"
	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/mir"
)

// Error is a fatal codegen failure. Codegen errors are structural and
// fatal; no partial program is ever emitted.
type Error struct {
	Function string
	Msg      string
}

func (e *Error) Error() string { return fmt.Sprintf("codegen: in %s: %s", e.Function, e.Msg) }

// cell is one not-yet-relocated instruction-stream word: either a literal
// field element or a reference to a block's (or function's) eventual
// absolute PC, fixed up in a second pass once every function's length is
// known.
type cell struct {
	isLabel bool
	label   mir.BlockID
	funcRef mir.FunctionID
	isFunc  bool
	value   felt.Felt
}

func lit(f felt.Felt) cell           { return cell{value: f} }
func litU(n uint64) cell             { return cell{value: felt.New(n)} }
func labelRef(b mir.BlockID) cell    { return cell{isLabel: true, label: b} }
func funcRef(id mir.FunctionID) cell { return cell{isFunc: true, funcRef: id} }

// funcBuffer accumulates one function's unresolved instruction stream and
// the local-block-id -> cell-offset map needed to resolve its own
// internal jumps.
type funcBuffer struct {
	fn          *mir.Function
	layout      *FrameLayout
	cells       []cell
	blockOffset map[mir.BlockID]int
	labelSeq    uint32
}

// newLabel allocates a synthetic local label for codegen-internal control
// flow (compare-to-bool materialisation, edge-argument stubs). Synthetic
// ids live in the top half of the BlockID space so they can never collide
// with a real block's id.
func (fb *funcBuffer) newLabel() mir.BlockID {
	fb.labelSeq++
	return mir.BlockID(1<<31 + fb.labelSeq)
}

func (fb *funcBuffer) emit(op Opcode, operands ...cell) {
	fb.cells = append(fb.cells, lit(felt.New(uint64(op))))
	fb.cells = append(fb.cells, operands...)
	if len(operands)+1 != op.Width() {
		panic(fmt.Sprintf("codegen: opcode %s width mismatch: got %d operands, want %d", op, len(operands), op.Width()-1))
	}
}

// Generate lowers an entire optimized mir.Module into a linked Program.
// Structural failures deep in the lowering (an unassigned value slot, a
// width mismatch) surface as a single fatal Error; no partial program is
// ever returned.
func Generate(m *mir.Module, oracle *layout.Oracle) (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			prog = nil
			err = &Error{Function: "<module>", Msg: fmt.Sprint(r)}
		}
	}()
	buffers := make([]*funcBuffer, len(m.Functions))
	for i, fn := range m.Functions {
		fl, err := BuildFrameLayout(fn, oracle)
		if err != nil {
			return nil, &Error{Function: fn.Name, Msg: err.Error()}
		}
		fb := &funcBuffer{fn: fn, layout: fl, blockOffset: map[mir.BlockID]int{}}
		if err := lowerFunction(fb); err != nil {
			return nil, err
		}
		buffers[i] = fb
	}

	// Concatenate buffers, recording each function's start offset.
	funcStart := make([]int, len(buffers))
	var total int
	for i, fb := range buffers {
		funcStart[i] = total
		total += len(fb.cells)
	}

	instructions := make([]felt.Felt, total)
	for i, fb := range buffers {
		base := funcStart[i]
		for j, c := range fb.cells {
			switch {
			case c.isLabel:
				instructions[base+j] = felt.New(uint64(funcStart[i] + fb.blockOffset[c.label]))
			case c.isFunc:
				instructions[base+j] = felt.New(uint64(funcStart[c.funcRef]))
			default:
				instructions[base+j] = c.value
			}
		}
	}

	entries := make([]FunctionEntry, len(buffers))
	entrypoints := map[string]int{}
	for i, fb := range buffers {
		entries[i] = FunctionEntry{
			Name:       fb.fn.Name,
			StartPC:    uint32(funcStart[i]),
			NumArgs:    uint32(fb.layout.NumArgSlots),
			NumReturns: uint32(fb.layout.NumReturnSlots),
		}
		if fb.fn.Exported {
			entrypoints[fb.fn.Name] = i
		}
	}

	return &Program{Functions: entries, Instructions: instructions, Entrypoints: entrypoints}, nil
}

// lowerFunction walks fn's blocks in id order (block 0, the entry, first;
// the builder already emits blocks in a structured, roughly-reverse-
// postorder sequence, so no separate sort is needed) and expands every
// instruction and terminator into CASM cells.
func lowerFunction(fb *funcBuffer) error {
	for _, b := range fb.fn.Blocks() {
		if !b.Valid {
			continue
		}
		fb.blockOffset[b.ID] = len(fb.cells)
		if err := lowerBlockParams(fb, b); err != nil {
			return err
		}
		for _, instr := range b.Instructions() {
			if err := lowerInstruction(fb, &instr); err != nil {
				return err
			}
		}
		if err := lowerTerminator(fb, b); err != nil {
			return err
		}
	}
	return nil
}

// lowerBlockParams is a no-op at the definition site: a block parameter's
// value already lives at its assigned frame slot by construction. It is
// the predecessor's Jump/BranchBool/BranchOp edge-argument lowering that
// writes into that slot before transferring control.
func lowerBlockParams(fb *funcBuffer, b *mir.BasicBlock) error { return nil }

func (fb *funcBuffer) off(v mir.Value) int { return fb.layout.ValueOffset(v) }

func (fb *funcBuffer) offCell(v mir.Value) cell { return lit(felt.SignedOffset(fb.off(v))) }

func isU32(t layout.Type) bool { return t.Kind == layout.KindU32 }

func lowerInstruction(fb *funcBuffer, instr *mir.Instruction) error {
	switch instr.Kind {
	case mir.InstAssign:
		dst := fb.off(instr.Dest)
		if instr.HasImm {
			if isU32(instr.Type) {
				v := felt.FromUint32(uint32(instr.Imm))
				fb.emit(OpStoreU32Imm, lit(felt.SignedOffset(dst)), lit(v.Lo), lit(v.Hi))
			} else {
				fb.emit(OpStoreImm, lit(felt.SignedOffset(dst)), lit(felt.New(instr.Imm)))
			}
			return nil
		}
		fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(dst)), fb.offCell(instr.Src))
		return nil

	case mir.InstUnaryOp:
		dst := lit(felt.SignedOffset(fb.off(instr.Dest)))
		switch instr.UOp {
		case mir.OpNeg:
			fb.emit(OpStoreNegFp, dst, fb.offCell(instr.Src))
		case mir.OpNot:
			fb.emit(OpStoreNotFp, dst, fb.offCell(instr.Src))
		}
		return nil

	case mir.InstBinaryOp:
		return lowerBinaryOp(fb, instr)

	case mir.InstMakeTuple:
		return lowerAggregateBuild(fb, instr.Dest, instr.Args)

	case mir.InstMakeStruct:
		return lowerAggregateBuild(fb, instr.Dest, instr.FieldSrcs)

	case mir.InstExtractTuple, mir.InstExtractField:
		// Both project a contiguous sub-range of an SSA aggregate's slot
		// range to a fresh value; the aggregate's own layout gives the
		// sub-offset. Since aggregates are stored as contiguous slot
		// ranges, extraction is a pure frame-to-frame copy of N cells.
		return lowerExtract(fb, instr)

	case mir.InstInsertTuple, mir.InstInsertField:
		return lowerInsert(fb, instr)

	case mir.InstFrameAlloc:
		dataOff, ok := fb.layout.AllocDataOffset(instr.Dest)
		if !ok {
			return &Error{Function: fb.fn.Name, Msg: "frame allocation missing a reserved data region"}
		}
		dst := lit(felt.SignedOffset(fb.off(instr.Dest)))
		fb.emit(OpFrameAllocFp, dst, lit(felt.SignedOffset(dataOff)))
		return nil

	case mir.InstHeapAllocCells:
		dst := lit(felt.SignedOffset(fb.off(instr.Dest)))
		elemSize, err := slotCountOfType(instr.AggType)
		if err != nil {
			return &Error{Function: fb.fn.Name, Msg: err.Error()}
		}
		if instr.Src.Valid() {
			// Dynamic element count: the VM scales by the element size so
			// the cursor always advances a whole number of elements.
			fb.emit(OpHeapAllocCellsFp, dst, fb.offCell(instr.Src), litU(uint64(elemSize)))
		} else {
			fb.emit(OpHeapAllocCellsImm, dst, litU(uint64(instr.Count*elemSize)))
		}
		return nil

	case mir.InstLoad:
		return lowerLoad(fb, instr)

	case mir.InstStore:
		return lowerStore(fb, instr)

	case mir.InstGetElementPtr:
		return lowerGEP(fb, instr)

	case mir.InstAddressOf:
		dst := lit(felt.SignedOffset(fb.off(instr.Dest)))
		fb.emit(OpFrameAllocFp, dst, lit(felt.SignedOffset(fb.off(instr.Src))))
		return nil

	case mir.InstCall:
		return lowerCall(fb, instr)

	case mir.InstCast:
		dst := lit(felt.SignedOffset(fb.off(instr.Dest)))
		fb.emit(OpCastU32Felt, dst, fb.offCell(instr.Src))
		return nil

	case mir.InstDebug:
		return nil

	default:
		return &Error{Function: fb.fn.Name, Msg: fmt.Sprintf("unhandled instruction kind %s", instr.Kind)}
	}
}

func lowerBinaryOp(fb *funcBuffer, instr *mir.Instruction) error {
	dst := lit(felt.SignedOffset(fb.off(instr.Dest)))
	lhs, rhs := fb.offCell(instr.Src), fb.offCell(instr.Src2)
	u32 := isU32(fb.fn.ValueType(instr.Src))
	if instr.BOp.IsComparison() {
		var op Opcode
		var ok bool
		if u32 {
			op, ok = u32CompareOpcode(instr.BOp)
		} else {
			switch instr.BOp {
			case mir.OpEq:
				op, ok = OpJEqFpFpImm, true
			case mir.OpNeq:
				op, ok = OpJNeFpFpImm, true
			default:
				return &Error{Function: fb.fn.Name, Msg: "felt supports only equality comparisons"}
			}
		}
		if !ok {
			return &Error{Function: fb.fn.Name, Msg: fmt.Sprintf("unsupported comparison op %s", instr.BOp)}
		}
		return lowerCompareToBool(fb, instr, op, lhs, rhs)
	}
	if u32 {
		op, ok := u32BinOpcode(instr.BOp)
		if !ok {
			return &Error{Function: fb.fn.Name, Msg: fmt.Sprintf("unsupported u32 op %s", instr.BOp)}
		}
		fb.emit(op, dst, lhs, rhs)
		return nil
	}
	switch instr.BOp {
	case mir.OpAdd:
		fb.emit(OpStoreAddFpFp, dst, lhs, rhs)
	case mir.OpSub:
		fb.emit(OpStoreSubFpFp, dst, lhs, rhs)
	case mir.OpMul:
		fb.emit(OpStoreMulFpFp, dst, lhs, rhs)
	case mir.OpDiv:
		fb.emit(OpStoreDivFpFp, dst, lhs, rhs)
	default:
		return &Error{Function: fb.fn.Name, Msg: fmt.Sprintf("unsupported felt op %s", instr.BOp)}
	}
	return nil
}

// lowerCompareToBool materialises a fused-compare-jump op's truth value as
// a plain 0/1 bool at instr.Dest, using a local 4-instruction sequence:
// the compare-jump goes to a store of 1, the fall-through stores 0, and an
// unconditional jump skips the true-case store. The ISA has no direct compare-to-bool opcode, so the
// same fused compare-jump opcodes the terminator path uses are reused
// here whenever a comparison feeds a value (`let b = x == y;`) rather
// than an if/while condition.
func lowerCompareToBool(fb *funcBuffer, instr *mir.Instruction, op Opcode, lhs, rhs cell) error {
	trueLbl := fb.newLabel()
	joinLbl := fb.newLabel()
	fb.emit(op, lhs, rhs, labelRef(trueLbl))
	fb.emit(OpStoreImm, lit(felt.SignedOffset(fb.off(instr.Dest))), litU(0))
	fb.emit(OpJmpAbsImm, labelRef(joinLbl))
	fb.blockOffset[trueLbl] = len(fb.cells)
	fb.emit(OpStoreImm, lit(felt.SignedOffset(fb.off(instr.Dest))), litU(1))
	fb.blockOffset[joinLbl] = len(fb.cells)
	return nil
}

func u32BinOpcode(op mir.BinaryOp) (Opcode, bool) {
	switch op {
	case mir.OpAdd:
		return OpStoreU32AddFpFp, true
	case mir.OpSub:
		return OpStoreU32SubFpFp, true
	case mir.OpMul:
		return OpStoreU32MulFpFp, true
	case mir.OpDiv:
		return OpStoreU32DivFpFp, true
	case mir.OpAnd:
		return OpStoreU32AndFpFp, true
	case mir.OpOr:
		return OpStoreU32OrFpFp, true
	case mir.OpXor:
		return OpStoreU32XorFpFp, true
	case mir.OpShl:
		return OpStoreU32ShlFpFp, true
	case mir.OpShr:
		return OpStoreU32ShrFpFp, true
	default:
		return 0, false
	}
}

func u32CompareOpcode(op mir.BinaryOp) (Opcode, bool) {
	switch op {
	case mir.OpEq:
		return OpJU32EqFpFpImm, true
	case mir.OpNeq:
		return OpJU32NeFpFpImm, true
	case mir.OpLt:
		return OpJU32LtFpFpImm, true
	case mir.OpLe:
		return OpJU32LeFpFpImm, true
	case mir.OpGt:
		return OpJU32GtFpFpImm, true
	case mir.OpGe:
		return OpJU32GeFpFpImm, true
	default:
		return 0, false
	}
}

// lowerAggregateBuild copies each source value's slot range into the
// contiguous destination range, in field order — MakeTuple/MakeStruct are
// pure data movement once the Data-Layout Oracle has fixed every field's
// sub-offset.
func lowerAggregateBuild(fb *funcBuffer, dst mir.Value, elems []mir.Value) error {
	base := fb.off(dst)
	cursor := base
	for _, e := range elems {
		n, err := cellCountOf(fb, e)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(cursor+i)), lit(felt.SignedOffset(fb.off(e)+i)))
		}
		cursor += n
	}
	return nil
}

func cellCountOf(fb *funcBuffer, v mir.Value) (int, error) {
	t := fb.fn.ValueType(v)
	return slotCountOfType(t)
}

// slotCountOfType mirrors the Oracle's own sizing for the handful of
// shapes codegen needs to re-derive locally (avoiding a second Oracle
// handle threaded through every helper). It uses the Oracle's per-kind
// sizes (felt, bool and pointer 1 cell, u32 2 cells); function types,
// which the Oracle sizes at zero cells, are rejected here.
func slotCountOfType(t layout.Type) (int, error) {
	switch t.Kind {
	case layout.KindFelt, layout.KindBool, layout.KindPointer:
		return 1, nil
	case layout.KindU32:
		return 2, nil
	case layout.KindUnit:
		return 0, nil
	case layout.KindTuple, layout.KindStruct:
		total := 0
		for _, e := range t.Elems {
			n, err := slotCountOfType(e)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case layout.KindArray:
		n, err := slotCountOfType(*t.Elem)
		if err != nil {
			return 0, err
		}
		return n * t.Len, nil
	default:
		return 0, fmt.Errorf("codegen: cannot size type %s", t)
	}
}

func fieldSubOffset(t layout.Type, index int) (int, error) {
	off := 0
	for i := 0; i < index; i++ {
		n, err := slotCountOfType(t.Elems[i])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

func lowerExtract(fb *funcBuffer, instr *mir.Instruction) error {
	baseTy := fb.fn.ValueType(instr.Src)
	sub, err := fieldSubOffset(baseTy, instr.Index)
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	n, err := slotCountOfType(instr.Type)
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	baseOff := fb.off(instr.Src)
	dstOff := fb.off(instr.Dest)
	for i := 0; i < n; i++ {
		fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(dstOff+i)), lit(felt.SignedOffset(baseOff+sub+i)))
	}
	return nil
}

func lowerInsert(fb *funcBuffer, instr *mir.Instruction) error {
	baseTy := instr.Type
	sub, err := fieldSubOffset(baseTy, instr.Index)
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	total, err := slotCountOfType(baseTy)
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	fieldN, err := slotCountOfType(baseTy.Elems[instr.Index])
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	baseOff := fb.off(instr.Src)
	dstOff := fb.off(instr.Dest)
	valOff := fb.off(instr.Src2)
	for i := 0; i < total; i++ {
		if i >= sub && i < sub+fieldN {
			fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(dstOff+i)), lit(felt.SignedOffset(valOff+(i-sub))))
		} else {
			fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(dstOff+i)), lit(felt.SignedOffset(baseOff+i)))
		}
	}
	return nil
}

func lowerLoad(fb *funcBuffer, instr *mir.Instruction) error {
	n, err := slotCountOfType(instr.Type)
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	ptrOff := lit(felt.SignedOffset(fb.off(instr.Src)))
	dstOff := fb.off(instr.Dest)
	for i := 0; i < n; i++ {
		fb.emit(OpLoadIndirectFp, lit(felt.SignedOffset(dstOff+i)), ptrOff, litU(uint64(i)))
	}
	return nil
}

func lowerStore(fb *funcBuffer, instr *mir.Instruction) error {
	n, err := slotCountOfType(instr.Type)
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	ptrOff := lit(felt.SignedOffset(fb.off(instr.Src)))
	valOff := fb.off(instr.Src2)
	for i := 0; i < n; i++ {
		fb.emit(OpStoreIndirectFp, ptrOff, litU(uint64(i)), lit(felt.SignedOffset(valOff+i)))
	}
	return nil
}

func lowerGEP(fb *funcBuffer, instr *mir.Instruction) error {
	dst := lit(felt.SignedOffset(fb.off(instr.Dest)))
	base := fb.offCell(instr.Src)
	// The index operand is in units of AggType elements; the VM scales it
	// by the element's slot count. Struct-field projections arrive here
	// with AggType == felt and the index already a slot offset, so the
	// scale factor degenerates to 1.
	n, err := slotCountOfType(instr.AggType)
	if err != nil {
		return &Error{Function: fb.fn.Name, Msg: err.Error()}
	}
	fb.emit(OpGepFpFp, dst, base, fb.offCell(instr.Src2), litU(uint64(n)))
	return nil
}

func lowerCall(fb *funcBuffer, instr *mir.Instruction) error {
	// Caller writes arguments into the callee's argument region: the
	// outgoing-argument window
	// starts at the top of the caller's own local range, the callee's
	// return region sits directly above it, and CallAbsImm's frame delta
	// places the callee's FP so that its fixed negative offsets land
	// exactly on those cells.
	argBase := fb.layout.FrameSize()
	cursor := argBase

	// Argument pass-through peephole: when the argument values already
	// occupy the exact outgoing window (single values whose assigned
	// slots happen to sit contiguously at the frame top), the copies are
	// elided. The single-argument tail coincidence is the N=1 case of
	// the same check.
	passThrough := len(instr.Args) > 0
	checkOff := argBase
	for _, a := range instr.Args {
		n, err := cellCountOf(fb, a)
		if err != nil {
			return err
		}
		if fb.off(a) != checkOff {
			passThrough = false
			break
		}
		checkOff += n
	}
	if !passThrough {
		for _, a := range instr.Args {
			n, err := cellCountOf(fb, a)
			if err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(cursor+i)), lit(felt.SignedOffset(fb.off(a)+i)))
			}
			cursor += n
		}
	} else {
		cursor = checkOff
	}

	var argSlots, retSlots int
	for _, a := range instr.Args {
		n, err := cellCountOf(fb, a)
		if err != nil {
			return err
		}
		argSlots += n
	}
	for _, d := range instr.Dests {
		n, err := cellCountOf(fb, d)
		if err != nil {
			return err
		}
		retSlots += n
	}
	delta := argBase + argSlots + retSlots + 2
	fb.emit(OpCallAbsImm, litU(uint64(delta)), funcRef(instr.Callee))

	// Copy return values out of the window the callee filled, back into
	// this Call's destination Values.
	retBase := argBase + argSlots
	for _, d := range instr.Dests {
		n, err := cellCountOf(fb, d)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(fb.off(d)+i)), lit(felt.SignedOffset(retBase+i)))
		}
		retBase += n
	}
	return nil
}

func lowerTerminator(fb *funcBuffer, b *mir.BasicBlock) error {
	t := b.Terminator()
	switch t.Kind {
	case mir.TermReturn:
		return lowerReturn(fb, t)
	case mir.TermJump:
		lowerEdgeArgs(fb, t.Target)
		fb.emit(OpJmpAbsImm, labelRef(t.Target.Target))
		return nil
	case mir.TermBranchBool:
		emitCond := func(target cell) {
			fb.emit(OpJnzFpImm, fb.offCell(t.Cond), target)
		}
		lowerCondEdges(fb, emitCond, t.Then, t.Else)
		return nil
	case mir.TermBranchOp:
		lhsTy := fb.fn.ValueType(t.Lhs)
		var op Opcode
		var ok bool
		if isU32(lhsTy) {
			op, ok = u32CompareOpcode(t.BOp)
		} else {
			switch t.BOp {
			case mir.OpEq:
				op, ok = OpJEqFpFpImm, true
			case mir.OpNeq:
				op, ok = OpJNeFpFpImm, true
			default:
				return &Error{Function: fb.fn.Name, Msg: "felt supports only equality comparisons in branches"}
			}
		}
		if !ok {
			return &Error{Function: fb.fn.Name, Msg: fmt.Sprintf("unsupported fused-compare op %s", t.BOp)}
		}
		lhs, rhs := fb.offCell(t.Lhs), fb.offCell(t.Rhs)
		emitCond := func(target cell) {
			fb.emit(op, lhs, rhs, target)
		}
		lowerCondEdges(fb, emitCond, t.Then, t.Else)
		return nil
	case mir.TermUnreachable:
		// Dead code the builder could not statically prune; jump far past
		// the instruction region so an errant transfer here fails loudly
		// as OutOfBoundsPc instead of executing whatever follows.
		fb.emit(OpJmpAbsImm, litU(uint64(felt.P-1)))
		return nil
	default:
		return &Error{Function: fb.fn.Name, Msg: "block has no terminator"}
	}
}

// lowerCondEdges lowers a two-way conditional transfer. When neither edge
// carries block arguments the compare jumps straight at the then-target
// and falls through to an unconditional jump at the else-target. When
// either edge does carry arguments, each edge gets a private stub that
// performs that edge's parameter writes before jumping, so the untaken
// edge's writes never execute.
func lowerCondEdges(fb *funcBuffer, emitCond func(target cell), then, els mir.Edge) {
	if len(then.Args) == 0 && len(els.Args) == 0 {
		emitCond(labelRef(then.Target))
		fb.emit(OpJmpAbsImm, labelRef(els.Target))
		return
	}
	thenStub := fb.newLabel()
	emitCond(labelRef(thenStub))
	lowerEdgeArgs(fb, els)
	fb.emit(OpJmpAbsImm, labelRef(els.Target))
	fb.blockOffset[thenStub] = len(fb.cells)
	lowerEdgeArgs(fb, then)
	fb.emit(OpJmpAbsImm, labelRef(then.Target))
}

// lowerEdgeArgs writes an edge's jump arguments into the target block's
// parameter slots before the jump executes. The
// copy goes through a scratch window above the frame's local watermark:
// a jump argument may itself be one of the target's parameters (a loop
// header passing permuted carried values back to itself), so writing the
// parameter slots directly would read already-clobbered cells. The
// scratch window overlaps the outgoing-call-argument window, which is
// safe — no call is in flight while an edge transfers.
func lowerEdgeArgs(fb *funcBuffer, e mir.Edge) {
	target := fb.fn.Block(e.Target)
	scratch := fb.layout.FrameSize()
	cursor := scratch
	for i, arg := range e.Args {
		if i >= target.Params() {
			break
		}
		n, _ := cellCountOf(fb, arg)
		if n == 0 {
			n = 1
		}
		for c := 0; c < n; c++ {
			fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(cursor+c)), lit(felt.SignedOffset(fb.off(arg)+c)))
		}
		cursor += n
	}
	cursor = scratch
	for i, arg := range e.Args {
		if i >= target.Params() {
			break
		}
		paramOff := fb.off(target.Param(i))
		n, _ := cellCountOf(fb, arg)
		if n == 0 {
			n = 1
		}
		for c := 0; c < n; c++ {
			fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(paramOff+c)), lit(felt.SignedOffset(cursor+c)))
		}
		cursor += n
	}
}

func lowerReturn(fb *funcBuffer, t *mir.Terminator) error {
	cursor := fb.layout.ReturnOffset()
	for _, v := range t.Values {
		n, err := cellCountOf(fb, v)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			fb.emit(OpStoreAssignFp, lit(felt.SignedOffset(cursor+i)), lit(felt.SignedOffset(fb.off(v)+i)))
		}
		cursor += n
	}
	fb.emit(OpRet)
	return nil
}
