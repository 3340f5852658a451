// Package codegen lowers optimized MIR into the fixed CASM instruction
// set and assembles the JSON-serializable compiled-program artifact.
package codegen

// Opcode identifies one CASM instruction. Names follow the
// `Op<Dst><Lhs><Rhs>` convention, where a slot is frame-pointer-relative
// (`Fp`) or an embedded immediate (`Imm`). Every opcode has a fixed,
// compile-time-known width in M31 cells (the leading cell is always the
// opcode itself).
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Felt arithmetic and data movement.
	OpStoreImm      // StoreImm        [fp+dst] <- imm
	OpStoreAddFpFp  // arith +, both operands fp-relative
	OpStoreAddFpImm // arith +, rhs immediate
	OpStoreSubFpFp  // arith -
	OpStoreSubFpImm //
	OpStoreMulFpFp  // arith *
	OpStoreMulFpImm //
	OpStoreDivFpFp  // field division (Fermat inverse)
	OpStoreDivFpImm //
	OpStoreNegFp    // dst <- -src
	OpStoreNotFp    // dst <- 1-src (boolean not)
	OpStoreAssignFp // dst <- src (plain copy / widening move)

	// u32 two-limb arithmetic, operands are fp-relative two-cell slots.
	OpStoreU32Imm
	OpStoreU32AddFpFp
	OpStoreU32SubFpFp
	OpStoreU32MulFpFp
	OpStoreU32DivFpFp
	OpStoreU32AndFpFp
	OpStoreU32OrFpFp
	OpStoreU32XorFpFp
	OpStoreU32ShlFpFp
	OpStoreU32ShrFpFp

	// Control flow.
	OpJmpAbsImm // PC <- imm
	OpJnzFpImm  // if [fp+off] != 0: PC <- imm

	// Fused compare-and-branch: felt only supports equality/inequality;
	// u32 supports the full relational set.
	OpJEqFpFpImm
	OpJEqFpImmImm
	OpJNeFpFpImm
	OpJNeFpImmImm
	OpJU32EqFpFpImm
	OpJU32NeFpFpImm
	OpJU32LtFpFpImm
	OpJU32LeFpFpImm
	OpJU32GtFpFpImm
	OpJU32GeFpFpImm

	// Calls and returns.
	OpCallAbsImm // [fp+delta-2] <- fp; [fp+delta-1] <- pc+W; fp += delta; pc <- imm
	OpRet

	// Aggregates, pointers, and memory.
	OpFrameAllocFp      // dst <- fp + slot_offset (address of a reserved frame range)
	OpHeapAllocCellsImm // dst <- heap cursor; cursor += imm
	OpHeapAllocCellsFp  // dst <- heap cursor; cursor += [fp+count_off] * size_imm
	OpGepFpImm          // dst <- [fp+base] + imm
	OpGepFpFp           // dst <- [fp+base] + [fp+index]*elem_size
	OpLoadIndirectFp    // [fp+dst] <- mem[ [fp+ptr] + elem_index ]
	OpStoreIndirectFp   // mem[ [fp+ptr] + elem_index ] <- [fp+value]

	// Assertions and casts.
	OpAssertEq    // abort unless [fp+lhs] == [fp+rhs]
	OpCastU32Felt // dst <- recombined u32 value, aborting unless it is < P
)

// Width returns op's fixed size in M31 cells, including the leading
// opcode cell.
func (op Opcode) Width() int {
	switch op {
	case OpRet:
		return 1
	case OpJmpAbsImm:
		return 2
	case OpStoreImm, OpJnzFpImm, OpStoreNegFp, OpStoreNotFp, OpStoreAssignFp,
		OpAssertEq, OpCastU32Felt, OpHeapAllocCellsImm, OpFrameAllocFp,
		OpCallAbsImm:
		return 3
	case OpStoreAddFpFp, OpStoreAddFpImm, OpStoreSubFpFp, OpStoreSubFpImm,
		OpStoreMulFpFp, OpStoreMulFpImm, OpStoreDivFpFp, OpStoreDivFpImm,
		OpJEqFpFpImm, OpJEqFpImmImm, OpJNeFpFpImm, OpJNeFpImmImm,
		OpStoreU32AddFpFp, OpStoreU32SubFpFp, OpStoreU32MulFpFp, OpStoreU32DivFpFp,
		OpStoreU32AndFpFp, OpStoreU32OrFpFp, OpStoreU32XorFpFp, OpStoreU32ShlFpFp, OpStoreU32ShrFpFp,
		OpJU32EqFpFpImm, OpJU32NeFpFpImm, OpJU32LtFpFpImm, OpJU32LeFpFpImm, OpJU32GtFpFpImm, OpJU32GeFpFpImm,
		OpGepFpImm, OpStoreU32Imm, OpLoadIndirectFp, OpStoreIndirectFp,
		OpHeapAllocCellsFp:
		return 4
	case OpGepFpFp:
		return 5
	default:
		return 0
	}
}

func (op Opcode) String() string {
	names := map[Opcode]string{
		OpStoreImm: "StoreImm", OpStoreAddFpFp: "StoreAddFpFp", OpStoreAddFpImm: "StoreAddFpImm",
		OpStoreSubFpFp: "StoreSubFpFp", OpStoreSubFpImm: "StoreSubFpImm",
		OpStoreMulFpFp: "StoreMulFpFp", OpStoreMulFpImm: "StoreMulFpImm",
		OpStoreDivFpFp: "StoreDivFpFp", OpStoreDivFpImm: "StoreDivFpImm",
		OpStoreNegFp: "StoreNegFp", OpStoreNotFp: "StoreNotFp", OpStoreAssignFp: "StoreAssignFp",
		OpStoreU32Imm:     "StoreU32Imm",
		OpStoreU32AddFpFp: "StoreU32AddFpFp", OpStoreU32SubFpFp: "StoreU32SubFpFp",
		OpStoreU32MulFpFp: "StoreU32MulFpFp", OpStoreU32DivFpFp: "StoreU32DivFpFp",
		OpStoreU32AndFpFp: "StoreU32AndFpFp", OpStoreU32OrFpFp: "StoreU32OrFpFp", OpStoreU32XorFpFp: "StoreU32XorFpFp",
		OpStoreU32ShlFpFp: "StoreU32ShlFpFp", OpStoreU32ShrFpFp: "StoreU32ShrFpFp",
		OpJmpAbsImm: "JmpAbsImm", OpJnzFpImm: "JnzFpImm",
		OpJEqFpFpImm: "JEqFpFpImm", OpJEqFpImmImm: "JEqFpImmImm",
		OpJNeFpFpImm: "JNeFpFpImm", OpJNeFpImmImm: "JNeFpImmImm",
		OpJU32EqFpFpImm: "JU32EqFpFpImm", OpJU32NeFpFpImm: "JU32NeFpFpImm",
		OpJU32LtFpFpImm: "JU32LtFpFpImm", OpJU32LeFpFpImm: "JU32LeFpFpImm",
		OpJU32GtFpFpImm: "JU32GtFpFpImm", OpJU32GeFpFpImm: "JU32GeFpFpImm",
		OpCallAbsImm: "CallAbsImm", OpRet: "Ret",
		OpFrameAllocFp:      "FrameAllocFp",
		OpHeapAllocCellsImm: "HeapAllocCellsImm", OpHeapAllocCellsFp: "HeapAllocCellsFp",
		OpGepFpImm: "GepFpImm", OpGepFpFp: "GepFpFp",
		OpLoadIndirectFp: "LoadIndirectFp", OpStoreIndirectFp: "StoreIndirectFp",
		OpAssertEq: "AssertEq", OpCastU32Felt: "CastU32Felt",
	}
	if n, ok := names[op]; ok {
		return n
	}
	return "<invalid-opcode>"
}
