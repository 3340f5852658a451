package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/mir"
	"github.com/cairo-m/cairom/internal/testprog"
)

func TestFrameLayoutArgAndReturnRegions(t *testing.T) {
	oracle := layout.NewOracle()
	m, err := mir.NewBuilder(oracle).Build(testprog.Fib())
	require.NoError(t, err)
	fib := m.Functions[0]

	fl, err := BuildFrameLayout(fib, oracle)
	require.NoError(t, err)
	// One felt argument, one felt return: [arg][ret][old_fp][ret_pc] FP.
	require.Equal(t, 1, fl.NumArgSlots)
	require.Equal(t, 1, fl.NumReturnSlots)
	require.Equal(t, -4, fl.ArgOffset(0))
	require.Equal(t, -3, fl.ReturnOffset())
	require.Equal(t, -4, fl.ValueOffset(mir.Value(0)))
}

func TestFrameLayoutU32ReturnWidth(t *testing.T) {
	oracle := layout.NewOracle()
	m, err := mir.NewBuilder(oracle).Build(testprog.StructCopy())
	require.NoError(t, err)
	main := m.Functions[0]
	fl, err := BuildFrameLayout(main, oracle)
	require.NoError(t, err)
	require.Equal(t, 0, fl.NumArgSlots)
	require.Equal(t, 2, fl.NumReturnSlots) // u32 return
	require.Equal(t, -4, fl.ReturnOffset())
}

// TestFrameSlotsDoNotAlias is property P5: every value's assigned range
// is disjoint from every other live value's range.
func TestFrameSlotsDoNotAlias(t *testing.T) {
	oracle := layout.NewOracle()
	m, err := mir.NewBuilder(oracle).Build(testprog.ArraySum())
	require.NoError(t, err)
	mir.RunPipeline(m, mir.StandardPipeline())
	main := m.Functions[0]
	fl, err := BuildFrameLayout(main, oracle)
	require.NoError(t, err)

	type rng struct {
		v          mir.Value
		start, end int
	}
	var ranges []rng
	addRange := func(v mir.Value) {
		n, err := oracle.SlotCount(main.ValueType(v))
		require.NoError(t, err)
		if n == 0 {
			return
		}
		off := fl.ValueOffset(v)
		ranges = append(ranges, rng{v, off, off + n})
	}
	for _, b := range main.Blocks() {
		if !b.Valid {
			continue
		}
		for i := 0; i < b.Params(); i++ {
			addRange(b.Param(i))
		}
		for i := range b.Instructions() {
			for _, d := range b.Instructions()[i].Defs() {
				addRange(d)
			}
		}
	}
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			overlap := a.start < b.end && b.start < a.end
			require.False(t, overlap, "values %s and %s alias (%d..%d vs %d..%d)",
				a.v, b.v, a.start, a.end, b.start, b.end)
		}
	}
}

func TestFrameAllocReservesDataRegion(t *testing.T) {
	oracle := layout.NewOracle()
	m, err := mir.NewBuilder(oracle).Build(testprog.ArraySum())
	require.NoError(t, err)
	main := m.Functions[0]
	fl, err := BuildFrameLayout(main, oracle)
	require.NoError(t, err)

	var allocDest mir.Value
	found := false
	for _, b := range main.Blocks() {
		for i := range b.Instructions() {
			if b.Instructions()[i].Kind == mir.InstFrameAlloc {
				allocDest = b.Instructions()[i].Dest
				found = true
			}
		}
	}
	require.True(t, found)
	dataOff, ok := fl.AllocDataOffset(allocDest)
	require.True(t, ok)
	// Five u32 elements: a ten-cell data region, plus a separate one-cell
	// slot holding the pointer itself.
	ptrOff := fl.ValueOffset(allocDest)
	require.Equal(t, dataOff+10, ptrOff)
}
