package felt

// SignedOffset encodes a small signed frame/pc offset as a field element
// via two's-complement-style wraparound (n>=0 stored as-is; n<0 stored as
// P+n), so a CASM operand is always a single cell even when it denotes a
// negative fp-relative offset.
func SignedOffset(n int) Felt {
	if n >= 0 {
		return New(uint64(n))
	}
	return Felt(uint32(int64(P) + int64(n)))
}

// AsSignedOffset decodes a value produced by SignedOffset back to a small
// signed int, treating any value past the field's midpoint as negative.
func (f Felt) AsSignedOffset() int {
	if uint32(f) > P/2 {
		return int(f) - int(P)
	}
	return int(f)
}
