package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrimitiveSizes(t *testing.T) {
	o := NewOracle()
	tests := []struct {
		ty   Type
		want int
	}{
		{Felt, 1},
		{Bool, 1},
		{U32, 2},
		{Unit, 0},
		{Pointer(U32), 1},
		{Pointer(Array(U32, 100)), 1}, // a pointer is one slot regardless of pointee size
		{Func([]Type{Felt}, Felt), 0},
	}
	for _, tc := range tests {
		n, err := o.SlotCount(tc.ty)
		require.NoError(t, err, "%s", tc.ty)
		require.Equal(t, tc.want, n, "%s", tc.ty)
	}
}

func TestTupleLayout(t *testing.T) {
	o := NewOracle()
	l, err := o.Layout(Tuple(Felt, U32, Bool))
	require.NoError(t, err)
	require.Equal(t, 4, l.SlotCount)
	require.Equal(t, []int{0, 1, 3}, l.Offsets)
}

func TestStructLayout(t *testing.T) {
	o := NewOracle()
	pair := Struct("U32Pair", []string{"a", "b"}, []Type{U32, U32})
	l, err := o.Layout(pair)
	require.NoError(t, err)
	require.Equal(t, 4, l.SlotCount)
	require.Equal(t, 0, l.FieldOffset(0))
	require.Equal(t, 2, l.FieldOffset(1))
}

func TestNestedAggregateLayout(t *testing.T) {
	o := NewOracle()
	inner := Struct("Inner", []string{"x", "y"}, []Type{Felt, U32})
	outer := Struct("Outer", []string{"a", "b", "c"}, []Type{inner, Felt, inner})
	l, err := o.Layout(outer)
	require.NoError(t, err)
	require.Equal(t, 7, l.SlotCount)
	require.Equal(t, []int{0, 3, 4}, l.Offsets)
}

func TestArrayLayout(t *testing.T) {
	o := NewOracle()
	n, err := o.SlotCount(Array(U32, 5))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	n, err = o.SlotCount(Array(Tuple(Felt, Felt), 3))
	require.NoError(t, err)
	require.Equal(t, 6, n)
}

func TestLayoutDeterminism(t *testing.T) {
	// P4: size/offsets are a pure function of the type, across oracles.
	ty := Struct("S", []string{"a", "b"}, []Type{Tuple(Felt, U32), Array(Bool, 3)})
	a, err := NewOracle().Layout(ty)
	require.NoError(t, err)
	b, err := NewOracle().Layout(ty)
	require.NoError(t, err)
	require.Equal(t, a.SlotCount, b.SlotCount)
	require.Equal(t, a.Offsets, b.Offsets)
}

func TestCacheReturnsSameLayout(t *testing.T) {
	o := NewOracle()
	ty := Tuple(Felt, U32)
	first, err := o.Layout(ty)
	require.NoError(t, err)
	// Interleave other queries; the original answer must be unaffected
	// (monotone cache).
	_, err = o.Layout(Array(ty, 7))
	require.NoError(t, err)
	second, err := o.Layout(Tuple(Felt, U32))
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestUnresolvedType(t *testing.T) {
	o := NewOracle()
	_, err := o.Layout(Type{Kind: KindInvalid})
	require.Error(t, err)
	var unresolved *ErrUnresolved
	require.ErrorAs(t, err, &unresolved)
}

func TestTypeStringCanonical(t *testing.T) {
	tests := []struct {
		ty   Type
		want string
	}{
		{Felt, "felt"},
		{Tuple(Felt, U32), "(felt,u32)"},
		{Pointer(Felt), "*felt"},
		{Array(U32, 5), "[u32;5]"},
		{Struct("P", []string{"a"}, []Type{Felt}), "struct P{a:felt}"},
		{Func([]Type{Felt, U32}, Bool), "fn(felt,u32)->bool"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, tc.ty.String())
	}
}
