package felt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddWrapsAtP(t *testing.T) {
	// (P-1) + 1 == 0.
	require.Equal(t, Zero, Felt(P-1).Add(One))
	require.Equal(t, Felt(P-2), Felt(P-1).Add(Felt(P-1)))
}

func TestSubWraps(t *testing.T) {
	require.Equal(t, Felt(P-1), Zero.Sub(One))
	require.Equal(t, Felt(3), Felt(5).Sub(Felt(2)))
}

func TestNeg(t *testing.T) {
	require.Equal(t, Zero, Zero.Neg())
	require.Equal(t, Felt(P-7), Felt(7).Neg())
	require.Equal(t, Zero, Felt(7).Add(Felt(7).Neg()))
}

func TestMulMod(t *testing.T) {
	tests := []struct {
		a, b, want uint64
	}{
		{0, 12345, 0},
		{1, 12345, 12345},
		{2, uint64(P-1) / 2, uint64(P) - 1},
		{uint64(P) - 1, uint64(P) - 1, 1}, // (-1)*(-1) == 1
	}
	for _, tc := range tests {
		require.Equal(t, New(tc.want), New(tc.a).Mul(New(tc.b)))
	}
}

func TestDivRoundTrips(t *testing.T) {
	// For nonzero d, (a/d)*d == a.
	vals := []Felt{1, 2, 3, 1000, Felt(P - 1), Felt(P / 2)}
	for _, a := range vals {
		for _, d := range vals {
			require.Equal(t, a, a.Div(d).Mul(d), "a=%s d=%s", a, d)
		}
	}
}

func TestInv(t *testing.T) {
	require.Equal(t, One, One.Inv())
	for _, f := range []Felt{2, 3, 65537, Felt(P - 1)} {
		require.Equal(t, One, f.Mul(f.Inv()))
	}
	require.Panics(t, func() { Zero.Inv() })
}

func TestFromInt64(t *testing.T) {
	require.Equal(t, Felt(P-3), FromInt64(-3))
	require.Equal(t, Felt(3), FromInt64(3))
	require.Equal(t, Zero, FromInt64(int64(P)))
}

func TestSignedOffsetRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, -1, -4, 1000, -1000} {
		require.Equal(t, n, SignedOffset(n).AsSignedOffset())
	}
}

func TestU32AddWrap(t *testing.T) {
	// B1: 0xFFFFFFFF + 1 == 0.
	require.Equal(t, uint32(0), FromUint32(0xFFFFFFFF).Add(FromUint32(1)).Uint32())
	require.Equal(t, uint32(300), FromUint32(100).Add(FromUint32(200)).Uint32())
}

func TestU32SubWrap(t *testing.T) {
	// B2: 0 - 1 == 0xFFFFFFFF.
	got := FromUint32(0).Sub(FromUint32(1))
	require.Equal(t, uint32(0xFFFFFFFF), got.Uint32())
	require.Equal(t, Felt(0xFFFF), got.Lo)
	require.Equal(t, Felt(0xFFFF), got.Hi)
}

func TestU32MulWrap(t *testing.T) {
	// 2^16 * 2^16 == 2^32 wraps to 0.
	require.Equal(t, uint32(0), FromUint32(1<<16).Mul(FromUint32(1<<16)).Uint32())
	require.Equal(t, uint32(0xFFFF0000), FromUint32(1<<16).Mul(FromUint32(0xFFFF)).Uint32())
}

func TestU32DivMod(t *testing.T) {
	q, r := FromUint32(17).DivMod(FromUint32(5))
	require.Equal(t, uint32(3), q.Uint32())
	require.Equal(t, uint32(2), r.Uint32())
}

func TestU32Bitwise(t *testing.T) {
	a, b := FromUint32(0xF0F0F0F0), FromUint32(0x0FF00FF0)
	require.Equal(t, uint32(0xF0F0F0F0&0x0FF00FF0), a.And(b).Uint32())
	require.Equal(t, uint32(0xF0F0F0F0|0x0FF00FF0), a.Or(b).Uint32())
	require.Equal(t, uint32(0xF0F0F0F0^0x0FF00FF0), a.Xor(b).Uint32())
}

func TestU32Shifts(t *testing.T) {
	require.Equal(t, uint32(1<<4), FromUint32(1).Shl(FromUint32(4)).Uint32())
	require.Equal(t, uint32(0x80000000>>8), FromUint32(0x80000000).Shr(FromUint32(8)).Uint32())
	// Shift amount is taken mod 32.
	require.Equal(t, uint32(2), FromUint32(1).Shl(FromUint32(33)).Uint32())
}

func TestU32Compare(t *testing.T) {
	lo, hi := FromUint32(5), FromUint32(0x80000000)
	require.True(t, lo.Lt(hi))
	require.True(t, hi.Gt(lo))
	require.True(t, lo.Le(lo))
	require.True(t, lo.Ge(lo))
	require.True(t, lo.Eq(FromUint32(5)))
}

func TestU32ToFelt(t *testing.T) {
	// B4: 2^31-1 (== P) aborts; 2^31-2 succeeds.
	_, ok := FromUint32(1<<31 - 1).ToFelt()
	require.False(t, ok)
	f, ok := FromUint32(1<<31 - 2).ToFelt()
	require.True(t, ok)
	require.Equal(t, Felt(1<<31-2), f)
	_, ok = FromUint32(0xFFFFFFFF).ToFelt()
	require.False(t, ok)
}
