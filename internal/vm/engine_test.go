package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/codegen"
	"github.com/cairo-m/cairom/internal/felt"
	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/mir"
	"github.com/cairo-m/cairom/internal/testprog"
	"github.com/cairo-m/cairom/internal/typedast"
)

func compile(t *testing.T, prog *typedast.Program) *codegen.Program {
	t.Helper()
	oracle := layout.NewOracle()
	m, err := mir.NewBuilder(oracle).Build(prog)
	require.NoError(t, err)
	mir.RunPipeline(m, mir.StandardPipeline())
	p, err := codegen.Generate(m, oracle)
	require.NoError(t, err)
	return p
}

func run(t *testing.T, prog *typedast.Program, args ...felt.Felt) []felt.Felt {
	t.Helper()
	p := compile(t, prog)
	res, err := NewEngine(p, DefaultLimits()).Call("main", args...)
	require.NoError(t, err)
	return res.Returns
}

func rets(vals ...uint32) []felt.Felt {
	out := make([]felt.Felt, len(vals))
	for i, v := range vals {
		out[i] = felt.Felt(v)
	}
	return out
}

func TestFib(t *testing.T) {
	// S1: fib(10) == 55.
	require.Equal(t, rets(55), run(t, testprog.Fib()))
}

func TestStructCopy(t *testing.T) {
	// S2: U32Pair{100,200} copied, field sum == 300 (low limb 300, high 0).
	require.Equal(t, rets(300, 0), run(t, testprog.StructCopy()))
}

func TestInPlaceMutation(t *testing.T) {
	// S3: a=5; a=a+1; b=10; b=b+a == 16.
	require.Equal(t, rets(16), run(t, testprog.InPlaceMutation()))
}

func TestAckermann(t *testing.T) {
	// S4: ack(2,2) == 7.
	require.Equal(t, rets(7), run(t, testprog.Ackermann()))
}

func TestArraySum(t *testing.T) {
	// S5: sum of [1,2,3,4,5] as u32 == [15, 0].
	require.Equal(t, rets(15, 0), run(t, testprog.ArraySum()))
}

func TestCastOverflowAborts(t *testing.T) {
	// S6 / B4: u32(2^31-1) as felt aborts with AssertionFailed.
	p := compile(t, testprog.Cast(1<<31-1))
	res, err := NewEngine(p, DefaultLimits()).Call("main")
	require.Error(t, err)
	require.True(t, IsKind(err, KindAssertionFailed))
	require.NotNil(t, res)
	require.NotNil(t, res.Trace) // truncated trace survives the trap
}

func TestCastInRangeSucceeds(t *testing.T) {
	// S6: u32(2^31-2) as felt == 2147483646.
	require.Equal(t, rets(1<<31-2), run(t, testprog.Cast(1<<31-2)))
}

func TestU32AddWrapsAtRuntime(t *testing.T) {
	// B1 end to end: both operands are literals, so the folder computes
	// the wrapped sum and the VM returns it.
	require.Equal(t, rets(0, 0), run(t, testprog.U32Wrap(0xFFFFFFFF, 1, false)))
}

func TestU32SubWrapsAtRuntime(t *testing.T) {
	// B2: 0 - 1 == 0xFFFFFFFF == limbs [0xFFFF, 0xFFFF].
	require.Equal(t, rets(0xFFFF, 0xFFFF), run(t, testprog.U32Wrap(0, 1, true)))
}

func TestDivisionByZero(t *testing.T) {
	p := compile(t, testprog.DivByZero())
	_, err := NewEngine(p, DefaultLimits()).Call("main")
	require.Error(t, err)
	require.True(t, IsKind(err, KindDivisionByZero))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestInstructionLimit(t *testing.T) {
	// B5: the break condition never holds, so the step budget trips.
	p := compile(t, testprog.InfiniteLoop())
	limits := DefaultLimits()
	limits.MaxInstructions = 10_000
	_, err := NewEngine(p, limits).Call("main")
	require.Error(t, err)
	require.True(t, IsKind(err, KindInstructionLimit))
}

func TestLoopTerminatesWhenConditionHolds(t *testing.T) {
	// B5's terminating case.
	require.Equal(t, rets(4), run(t, testprog.CountLoop()))
}

func TestHeapAllocation(t *testing.T) {
	require.Equal(t, rets(15, 0), run(t, testprog.HeapAlloc()))
}

func TestAddressOfReadsThroughPointer(t *testing.T) {
	require.Equal(t, rets(7), run(t, testprog.AddressOf()))
}

func TestEntrypointArguments(t *testing.T) {
	// fib exported directly: main-less entry with one argument cell.
	n := func() *typedast.NameExpr { return testprog.Name("n", layout.Felt) }
	fib := testprog.Fn("fib", []typedast.Param{{Name: "n", Type: layout.Felt}}, layout.Felt, true,
		&typedast.IfStmt{
			Cond: testprog.Bin(typedast.BinEq, layout.Bool, n(), testprog.FeltLit(0)),
			Then: []typedast.Stmt{testprog.Ret(testprog.FeltLit(0))},
		},
		&typedast.IfStmt{
			Cond: testprog.Bin(typedast.BinEq, layout.Bool, n(), testprog.FeltLit(1)),
			Then: []typedast.Stmt{testprog.Ret(testprog.FeltLit(1))},
		},
		testprog.Ret(testprog.Bin(typedast.BinAdd, layout.Felt,
			testprog.CallF("fib", layout.Felt, testprog.Bin(typedast.BinSub, layout.Felt, n(), testprog.FeltLit(1))),
			testprog.CallF("fib", layout.Felt, testprog.Bin(typedast.BinSub, layout.Felt, n(), testprog.FeltLit(2))))),
	)
	p := compile(t, testprog.Program(fib))
	res, err := NewEngine(p, DefaultLimits()).Call("fib", felt.Felt(12))
	require.NoError(t, err)
	require.Equal(t, rets(144), res.Returns)
}

func TestUnknownEntrypoint(t *testing.T) {
	p := compile(t, testprog.Fib())
	_, err := NewEngine(p, DefaultLimits()).Call("nope")
	require.Error(t, err)
}

func TestArgumentArityMismatch(t *testing.T) {
	p := compile(t, testprog.Fib())
	_, err := NewEngine(p, DefaultLimits()).Call("main", felt.Felt(1))
	require.Error(t, err)
}

// TestStepDeterminism is property P7: identical inputs produce identical
// outputs and identical traces.
func TestStepDeterminism(t *testing.T) {
	p := compile(t, testprog.Fib())
	a, err := NewEngine(p, DefaultLimits()).Call("main")
	require.NoError(t, err)
	b, err := NewEngine(p, DefaultLimits()).Call("main")
	require.NoError(t, err)
	require.Equal(t, a.Returns, b.Returns)
	require.Equal(t, a.Trace.Entries, b.Trace.Entries)
}

// TestTraceFaithfulness is property P8: replaying the trace entry by
// entry against a shadow memory must reproduce every (old value, old
// clock) pair, and clocks must be strictly increasing per entry.
func TestTraceFaithfulness(t *testing.T) {
	p := compile(t, testprog.InPlaceMutation())
	res, err := NewEngine(p, DefaultLimits()).Call("main")
	require.NoError(t, err)
	require.NotEmpty(t, res.Trace.Entries)

	type shadow struct {
		value felt.Felt
		clock uint64
	}
	mem := map[uint32]shadow{}
	var lastClock uint64
	for i, e := range res.Trace.Entries {
		prev := mem[e.Addr]
		require.Equal(t, prev.value, e.OldValue, "entry %d addr %d old value", i, e.Addr)
		require.Equal(t, prev.clock, e.OldClock, "entry %d addr %d old clock", i, e.Addr)
		require.Greater(t, e.NewClock, e.OldClock, "entry %d clock order", i)
		require.Greater(t, e.NewClock, lastClock, "entry %d global clock order", i)
		lastClock = e.NewClock
		mem[e.Addr] = shadow{value: e.NewValue, clock: e.NewClock}
	}
}

func TestDiagnosticCarriesFrames(t *testing.T) {
	p := compile(t, testprog.DivByZero())
	_, err := NewEngine(p, DefaultLimits()).Call("main")
	require.Error(t, err)
	var ve *Error
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Error(), "DivisionByZero")
	require.Contains(t, ve.Error(), "main")
}

func TestFeltDivisionRoundTrips(t *testing.T) {
	// P9 at the VM level: (a/d)*d == a for a handful of pairs.
	x := func() *typedast.NameExpr { return testprog.Name("x", layout.Felt) }
	d := func() *typedast.NameExpr { return testprog.Name("d", layout.Felt) }
	params := []typedast.Param{{Name: "x", Type: layout.Felt}, {Name: "d", Type: layout.Felt}}
	main := testprog.Fn("main", params, layout.Felt, true,
		testprog.Ret(testprog.Bin(typedast.BinMul, layout.Felt,
			testprog.Bin(typedast.BinDiv, layout.Felt, x(), d()), d())),
	)
	p := compile(t, testprog.Program(main))
	engine := NewEngine(p, DefaultLimits())
	pairs := [][2]uint32{{6, 3}, {7, 3}, {1, felt.P - 1}, {felt.P - 1, 2}}
	for _, pair := range pairs {
		res, err := engine.Call("main", felt.Felt(pair[0]), felt.Felt(pair[1]))
		require.NoError(t, err)
		require.Equal(t, rets(pair[0]), res.Returns, "a=%d d=%d", pair[0], pair[1])
	}
}

func TestHeapCapExceeded(t *testing.T) {
	p := compile(t, testprog.HeapAlloc())
	limits := DefaultLimits()
	limits.HeapCap = 2 // needs six cells
	_, err := NewEngine(p, limits).Call("main")
	require.Error(t, err)
	require.True(t, IsKind(err, KindMemoryExhausted))
}

func TestForLoop(t *testing.T) {
	require.Equal(t, rets(10), run(t, testprog.ForLoop()))
}

func TestTupleReturn(t *testing.T) {
	require.Equal(t, rets(7), run(t, testprog.TupleReturn()))
}

func TestTupleInsert(t *testing.T) {
	require.Equal(t, rets(6), run(t, testprog.TupleInsert()))
}

func TestUnaryNegation(t *testing.T) {
	// -5 + 6 == 1 in the field.
	require.Equal(t, rets(1), run(t, testprog.Negate()))
}
