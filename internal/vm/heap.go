package vm

// heapCursorAddr is the well-known global address holding the heap bump
// cursor. Placed at the very bottom of the upper (heap) region; heapBase
// sits one cell above it so the cursor's own slot is never mistaken for
// allocatable heap space.
const (
	heapCursorAddr uint32 = 1 << 24
	heapBase       uint32 = heapCursorAddr + 1
)

// heapCursor returns the current bump cursor, initializing it to heapBase on
// first use.
func (m *Memory) heapCursor() uint32 {
	v, ok := m.peek(heapCursorAddr)
	if !ok {
		return heapBase
	}
	return v.Uint32()
}

// allocCells advances the bump cursor by n cells and returns the
// pre-advance cursor value (the new allocation's base address), failing
// with MemoryExhausted if the heap cap would be exceeded.
func (m *Memory) allocCells(n uint32, clock uint64, limits Limits) (uint32, error) {
	cur := m.heapCursor()
	next := cur + n
	if uint64(next-heapBase) > limits.HeapCap {
		return 0, newError(KindMemoryExhausted, 0, 0, clock, "heap cursor cap exceeded")
	}
	m.write(heapCursorAddr, fromU32(next), clock)
	return cur, nil
}
