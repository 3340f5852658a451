package mir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/testprog"
	"github.com/cairo-m/cairom/internal/typedast"
)

func TestConstantFoldFeltArith(t *testing.T) {
	// return 2 + 3*4 folds to a single literal 14.
	prog := testprog.Program(testprog.Fn("main", nil, layout.Felt, true,
		testprog.Ret(testprog.Bin(typedast.BinAdd, layout.Felt,
			testprog.FeltLit(2),
			testprog.Bin(typedast.BinMul, layout.Felt, testprog.FeltLit(3), testprog.FeltLit(4)))),
	))
	m := build(t, prog)
	RunPipeline(m, StandardPipeline())
	entry := m.Functions[0].Entry()
	require.Len(t, entry.Instructions(), 1)
	instr := entry.Instructions()[0]
	require.Equal(t, InstAssign, instr.Kind)
	require.True(t, instr.HasImm)
	require.Equal(t, uint64(14), instr.Imm)
}

func TestConstantFoldFeltWrapsAtP(t *testing.T) {
	// (P-1) + 1 folds to 0 with field semantics (B3 at compile time).
	p := uint64(1<<31 - 1)
	prog := testprog.Program(testprog.Fn("main", nil, layout.Felt, true,
		testprog.Ret(testprog.Bin(typedast.BinAdd, layout.Felt,
			testprog.FeltLit(p-1), testprog.FeltLit(1))),
	))
	m := build(t, prog)
	RunPipeline(m, StandardPipeline())
	instr := m.Functions[0].Entry().Instructions()[0]
	require.True(t, instr.HasImm)
	require.Equal(t, uint64(0), instr.Imm)
}

func TestConstantFoldU32Wraps(t *testing.T) {
	// 0xFFFFFFFF + 1 folds to 0 with wrapping u32 semantics, not field
	// semantics (B1 at compile time).
	prog := testprog.Program(testprog.Fn("main", nil, layout.U32, true,
		testprog.Ret(testprog.Bin(typedast.BinAdd, layout.U32,
			testprog.U32Lit(0xFFFFFFFF), testprog.U32Lit(1))),
	))
	m := build(t, prog)
	RunPipeline(m, StandardPipeline())
	instr := m.Functions[0].Entry().Instructions()[0]
	require.Equal(t, InstAssign, instr.Kind)
	require.True(t, instr.HasImm)
	require.Equal(t, uint64(0), instr.Imm)
	require.Equal(t, layout.KindU32, instr.Type.Kind)
}

func TestConstantFoldLeavesDivisionByZero(t *testing.T) {
	m := build(t, testprog.DivByZero())
	RunPipeline(m, StandardPipeline())
	var sawDiv bool
	for _, b := range m.Functions[0].Blocks() {
		if !b.Valid {
			continue
		}
		for i := range b.Instructions() {
			instr := b.Instructions()[i]
			if instr.Kind == InstBinaryOp && instr.BOp == OpDiv {
				sawDiv = true
			}
		}
	}
	require.True(t, sawDiv, "division by zero must stay a runtime trap")
}

func TestBranchFoldRemovesConstantBranches(t *testing.T) {
	// if 0 == 1 { return 1 } return 2 — the branch folds away entirely.
	prog := testprog.Program(testprog.Fn("main", nil, layout.Felt, true,
		&typedast.IfStmt{
			Cond: testprog.Bin(typedast.BinEq, layout.Bool, testprog.FeltLit(0), testprog.FeltLit(1)),
			Then: []typedast.Stmt{testprog.Ret(testprog.FeltLit(1))},
		},
		testprog.Ret(testprog.FeltLit(2)),
	))
	m := build(t, prog)
	RunPipeline(m, StandardPipeline())
	for _, b := range m.Functions[0].Blocks() {
		if !b.Valid {
			continue
		}
		k := b.Terminator().Kind
		require.NotEqual(t, TermBranchBool, k)
		require.NotEqual(t, TermBranchOp, k)
	}
}

func TestDCERemovesUnusedPureCode(t *testing.T) {
	// let a = 1 + 2; return 5 — a and its operands disappear.
	prog := testprog.Program(testprog.Fn("main", nil, layout.Felt, true,
		testprog.Let("a", layout.Felt,
			testprog.Bin(typedast.BinAdd, layout.Felt, testprog.FeltLit(1), testprog.FeltLit(2))),
		testprog.Ret(testprog.FeltLit(5)),
	))
	m := build(t, prog)
	RunPipeline(m, StandardPipeline())
	entry := m.Functions[0].Entry()
	require.Len(t, entry.Instructions(), 1)
	require.Equal(t, uint64(5), entry.Instructions()[0].Imm)
}

func TestDCEKeepsSideEffects(t *testing.T) {
	// Heap allocation and stores survive even when the program's result
	// ignores them.
	prog := testprog.Program(testprog.Fn("main", nil, layout.Felt, true,
		testprog.Let("p", layout.Pointer(layout.U32), func() typedast.Expr {
			e := &typedast.NewExpr{ElemType: layout.U32, Count: testprog.FeltLit(1)}
			e.Type = layout.Pointer(layout.U32)
			return e
		}()),
		&typedast.AssignStmt{
			Target: func() typedast.Expr {
				e := &typedast.IndexExpr{Base: testprog.Name("p", layout.Pointer(layout.U32)), Index: testprog.FeltLit(0)}
				e.Type = layout.U32
				return e
			}(),
			Value: testprog.U32Lit(7),
		},
		testprog.Ret(testprog.FeltLit(0)),
	))
	m := build(t, prog)
	RunPipeline(m, StandardPipeline())
	var kinds []InstKind
	for _, b := range m.Functions[0].Blocks() {
		if !b.Valid {
			continue
		}
		for i := range b.Instructions() {
			kinds = append(kinds, b.Instructions()[i].Kind)
		}
	}
	require.Contains(t, kinds, InstHeapAllocCells)
	require.Contains(t, kinds, InstStore)
}

func TestMem2RegPromotesBlockLocalSlot(t *testing.T) {
	f := NewFunction(0, "t", nil, nil, layout.Felt, false)
	entry := f.Entry()
	ptr := f.NewValue(layout.Pointer(layout.Felt))
	entry.Append(NewFrameAlloc(ptr, layout.Felt, 1))
	val := f.NewValue(layout.Felt)
	entry.Append(NewAssignImm(val, layout.Felt, 42))
	entry.Append(NewStore(layout.Felt, ptr, val))
	loaded := f.NewValue(layout.Felt)
	entry.Append(NewLoad(loaded, layout.Felt, ptr))
	entry.SetTerminator(NewReturn([]Value{loaded}))

	Mem2Reg(f)

	for i := range entry.Instructions() {
		instr := entry.Instructions()[i]
		require.NotEqual(t, InstStore, instr.Kind)
		require.NotEqual(t, InstLoad, instr.Kind)
	}
}

func TestMem2RegLeavesCrossBlockSlot(t *testing.T) {
	f := NewFunction(0, "t", nil, nil, layout.Felt, false)
	entry := f.Entry()
	other := f.AddBlock()
	ptr := f.NewValue(layout.Pointer(layout.Felt))
	entry.Append(NewFrameAlloc(ptr, layout.Felt, 1))
	val := f.NewValue(layout.Felt)
	entry.Append(NewAssignImm(val, layout.Felt, 42))
	entry.Append(NewStore(layout.Felt, ptr, val))
	entry.SetTerminator(NewJump(other.ID, nil))
	loaded := f.NewValue(layout.Felt)
	other.Append(NewLoad(loaded, layout.Felt, ptr))
	other.SetTerminator(NewReturn([]Value{loaded}))

	Mem2Reg(f)

	var sawStore, sawLoad bool
	for _, b := range f.Blocks() {
		for i := range b.Instructions() {
			switch b.Instructions()[i].Kind {
			case InstStore:
				sawStore = true
			case InstLoad:
				sawLoad = true
			}
		}
	}
	require.True(t, sawStore)
	require.True(t, sawLoad)
}

func TestMem2RegSkipsMemoryFreeFunctions(t *testing.T) {
	m := build(t, testprog.InPlaceMutation())
	require.False(t, m.Functions[0].TouchesMemory())
	Mem2Reg(m.Functions[0]) // must be a no-op, not a crash
}

func TestPipelineIdempotent(t *testing.T) {
	progs := map[string]func() *typedast.Program{
		"fib":       testprog.Fib,
		"inPlace":   testprog.InPlaceMutation,
		"arraySum":  testprog.ArraySum,
		"ackermann": testprog.Ackermann,
		"heap":      testprog.HeapAlloc,
		"addressOf": testprog.AddressOf,
		"forLoop":   testprog.ForLoop,
		"tupleRet":  testprog.TupleReturn,
	}
	for name, mk := range progs {
		t.Run(name, func(t *testing.T) {
			m := build(t, mk())
			RunPipeline(m, StandardPipeline())
			first := Print(m)
			RunPipeline(m, StandardPipeline())
			require.Equal(t, first, Print(m))
		})
	}
}

func TestParallelPipelineMatchesSequential(t *testing.T) {
	seq := build(t, testprog.Fib())
	par := build(t, testprog.Fib())
	RunPipeline(seq, StandardPipeline())
	require.NoError(t, RunPipelineParallel(par, StandardPipeline()))
	require.Equal(t, Print(seq), Print(par))
}
