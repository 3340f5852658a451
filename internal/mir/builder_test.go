package mir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/testprog"
	"github.com/cairo-m/cairom/internal/typedast"
)

func build(t *testing.T, prog *typedast.Program) *Module {
	t.Helper()
	m, err := NewBuilder(layout.NewOracle()).Build(prog)
	require.NoError(t, err)
	return m
}

// verifyFunction checks the structural invariants every built function
// must satisfy: one terminator per block, single definition per value,
// and edge arguments matching target block parameters in arity and type.
func verifyFunction(t *testing.T, f *Function) {
	t.Helper()
	defined := map[Value]bool{}
	define := func(v Value) {
		require.False(t, defined[v], "%s: value %s defined twice", f.Name, v)
		defined[v] = true
	}
	for i := range f.Params {
		define(Value(i))
	}
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		for i := 0; i < b.Params(); i++ {
			define(b.Param(i))
		}
	}
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		require.True(t, b.HasTerminator(), "%s: block %s has no terminator", f.Name, b.Name)
		for i := range b.Instructions() {
			for _, d := range b.Instructions()[i].Defs() {
				define(d)
			}
		}
	}
	// Every use must refer to a defined value, and every edge must match
	// its target's parameter list.
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		for i := range b.Instructions() {
			for _, u := range b.Instructions()[i].Uses() {
				require.True(t, defined[u], "%s: use of undefined %s", f.Name, u)
			}
		}
		for _, e := range b.Terminator().Successors() {
			target := f.Block(e.Target)
			require.True(t, target.Valid, "%s: edge to invalid block %s", f.Name, target.Name)
			require.Equal(t, target.Params(), len(e.Args),
				"%s: edge %s->%s argument arity", f.Name, b.Name, target.Name)
			for i, a := range e.Args {
				require.Equal(t, target.ParamType(i).String(), f.ValueType(a).String(),
					"%s: edge %s->%s arg %d type", f.Name, b.Name, target.Name, i)
			}
		}
	}
}

func verifyModule(t *testing.T, m *Module) {
	t.Helper()
	for _, f := range m.Functions {
		verifyFunction(t, f)
	}
}

func TestBuildScenarios(t *testing.T) {
	progs := map[string]*typedast.Program{
		"fib":        testprog.Fib(),
		"structCopy": testprog.StructCopy(),
		"inPlace":    testprog.InPlaceMutation(),
		"ackermann":  testprog.Ackermann(),
		"arraySum":   testprog.ArraySum(),
		"cast":       testprog.Cast(7),
		"heap":       testprog.HeapAlloc(),
		"addressOf":  testprog.AddressOf(),
		"countLoop":  testprog.CountLoop(),
		"forLoop":    testprog.ForLoop(),
		"tupleRet":   testprog.TupleReturn(),
		"tupleIns":   testprog.TupleInsert(),
	}
	for name, prog := range progs {
		t.Run(name, func(t *testing.T) {
			m := build(t, prog)
			verifyModule(t, m)
			RunPipeline(m, StandardPipeline())
			verifyModule(t, m)
		})
	}
}

func TestEntryBlockIsBlockZero(t *testing.T) {
	m := build(t, testprog.Fib())
	for _, f := range m.Functions {
		require.Equal(t, BlockID(0), f.Entry().ID)
	}
}

func TestDirectComparisonFusesIntoBranchOp(t *testing.T) {
	m := build(t, testprog.Fib())
	fib := m.Functions[0]
	term := fib.Entry().Terminator()
	require.Equal(t, TermBranchOp, term.Kind)
	require.Equal(t, OpEq, term.BOp)
}

func TestWhileLoopCarriesAssignedNames(t *testing.T) {
	m := build(t, testprog.ArraySum())
	main := m.Functions[0]
	// The loop header carries i (felt) and sum (u32), in sorted name
	// order; it is the first block with parameters.
	var header *BasicBlock
	for _, b := range main.Blocks() {
		if b.Valid && b.Params() > 0 {
			header = b
			break
		}
	}
	require.NotNil(t, header)
	require.Equal(t, 2, header.Params())
	require.Equal(t, "felt", header.ParamType(0).String())
	require.Equal(t, "u32", header.ParamType(1).String())
}

func TestAddressOfMaterialises(t *testing.T) {
	m := build(t, testprog.AddressOf())
	main := m.Functions[0]
	var kinds []InstKind
	for _, b := range main.Blocks() {
		for i := range b.Instructions() {
			kinds = append(kinds, b.Instructions()[i].Kind)
		}
	}
	require.Contains(t, kinds, InstFrameAlloc)
	require.Contains(t, kinds, InstStore)
	require.Contains(t, kinds, InstLoad)
}

func TestStructAssignStaysSSA(t *testing.T) {
	// S2 never takes an address, so its struct stays a first-class SSA
	// aggregate: no memory instructions at all.
	m := build(t, testprog.StructCopy())
	require.False(t, m.Functions[0].TouchesMemory())
}

func TestBreakOutsideLoopFails(t *testing.T) {
	prog := testprog.Program(testprog.Fn("main", nil, layout.Felt, true,
		&typedast.BreakStmt{},
		testprog.Ret(testprog.FeltLit(0)),
	))
	_, err := NewBuilder(layout.NewOracle()).Build(prog)
	require.Error(t, err)
	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
}

func TestExportedFunctionsBecomeEntrypoints(t *testing.T) {
	m := build(t, testprog.Fib())
	require.Contains(t, m.Entrypoints, "main")
	require.NotContains(t, m.Entrypoints, "fib")
}
