package felt

// U32 is a logical 32-bit unsigned integer stored as two field-element
// limbs, little-endian: Lo holds bits [0,16), Hi holds bits [16,32). Each
// limb is itself a Felt (so it trivially fits in a single memory slot),
// but only its low 16 bits are ever meaningful.
type U32 struct {
	Lo Felt
	Hi Felt
}

// FromUint32 splits a native uint32 into its two limbs.
func FromUint32(v uint32) U32 {
	return U32{Lo: Felt(v & 0xffff), Hi: Felt(v >> 16)}
}

// Uint32 recombines the two limbs into a native uint32.
func (u U32) Uint32() uint32 {
	return uint32(u.Lo)&0xffff | (uint32(u.Hi)&0xffff)<<16
}

// Add returns u+v mod 2^32 (B1: 0xFFFFFFFF + 1 == 0).
func (u U32) Add(v U32) U32 { return FromUint32(u.Uint32() + v.Uint32()) }

// Sub returns u-v mod 2^32 (B2: 0 - 1 == 0xFFFFFFFF).
func (u U32) Sub(v U32) U32 { return FromUint32(u.Uint32() - v.Uint32()) }

// Mul returns u*v mod 2^32.
func (u U32) Mul(v U32) U32 { return FromUint32(u.Uint32() * v.Uint32()) }

// DivMod returns (u/v, u%v) using unsigned 32-bit division. The caller
// must reject v == 0 before calling.
func (u U32) DivMod(v U32) (U32, U32) {
	a, b := u.Uint32(), v.Uint32()
	return FromUint32(a / b), FromUint32(a % b)
}

// And, Or, Xor implement bitwise operations over the recombined value.
func (u U32) And(v U32) U32 { return FromUint32(u.Uint32() & v.Uint32()) }
func (u U32) Or(v U32) U32  { return FromUint32(u.Uint32() | v.Uint32()) }
func (u U32) Xor(v U32) U32 { return FromUint32(u.Uint32() ^ v.Uint32()) }

// Shl, Shr are logical shifts, shift amount taken mod 32.
func (u U32) Shl(v U32) U32 { return FromUint32(u.Uint32() << (v.Uint32() % 32)) }
func (u U32) Shr(v U32) U32 { return FromUint32(u.Uint32() >> (v.Uint32() % 32)) }

// Eq, Lt, Le, Gt and Ge implement the full u32 relational set.
func (u U32) Eq(v U32) bool { return u.Uint32() == v.Uint32() }
func (u U32) Lt(v U32) bool { return u.Uint32() < v.Uint32() }
func (u U32) Le(v U32) bool { return u.Uint32() <= v.Uint32() }
func (u U32) Gt(v U32) bool { return u.Uint32() > v.Uint32() }
func (u U32) Ge(v U32) bool { return u.Uint32() >= v.Uint32() }

// ToFelt implements the checked u32->felt cast (B4): succeeds only when
// the recombined value Lo + Hi*2^16 is strictly less than P. ok is false when the assertion would
// fail, letting the caller raise AssertionFailed with full context.
func (u U32) ToFelt() (f Felt, ok bool) {
	v := u.Uint32()
	if v >= P {
		return 0, false
	}
	return Felt(v), true
}
