package vm

import "github.com/cairo-m/cairom/internal/felt"

// memCell is one address's current value plus the clock of the access
// that last touched it, kept so every later access can report its
// previous clock in the trace.
type memCell struct {
	value felt.Felt
	clock uint64
}

// Memory is the VM's flat cell store, grown on demand up to
// Limits.MaxMemoryCells. Cells never written read as zero. Every read
// and write funnels through here so the trace is complete by
// construction.
type Memory struct {
	cells  map[uint32]memCell
	limits Limits
	trace  *Trace
}

func newMemory(limits Limits, trace *Trace) *Memory {
	return &Memory{cells: map[uint32]memCell{}, limits: limits, trace: trace}
}

func fromU32(v uint32) felt.Felt { return felt.New(uint64(v)) }

// grow admits addr into the cell store, failing when the configured cap
// would be exceeded.
func (m *Memory) grow(addr uint32, clock uint64) {
	if _, ok := m.cells[addr]; ok {
		return
	}
	if uint64(len(m.cells)) >= m.limits.MaxMemoryCells {
		panic(newError(KindMemoryExhausted, 0, 0, clock, "memory cell cap exceeded"))
	}
}

// read returns the cell at addr and logs the access: a read leaves the
// value unchanged but still advances the cell's clock, which is exactly
// the read/update discipline the AIR's memory argument checks.
func (m *Memory) read(addr uint32, clock uint64) felt.Felt {
	m.grow(addr, clock)
	c := m.cells[addr]
	m.trace.record(addr, c.value, c.value, c.clock, clock)
	m.cells[addr] = memCell{value: c.value, clock: clock}
	return c.value
}

// write replaces the cell at addr and logs old value, new value, and both
// clocks.
func (m *Memory) write(addr uint32, v felt.Felt, clock uint64) {
	m.grow(addr, clock)
	c := m.cells[addr]
	m.trace.record(addr, c.value, v, c.clock, clock)
	m.cells[addr] = memCell{value: v, clock: clock}
}

// peek reads without logging or clock movement; used only by the VM's own
// bookkeeping (heap cursor inspection, diagnostic frame walking), never by
// executed instructions.
func (m *Memory) peek(addr uint32) (felt.Felt, bool) {
	c, ok := m.cells[addr]
	return c.value, ok
}

// seed installs a value at clock zero with no trace entry, used once at
// startup to place the instruction stream into low memory.
func (m *Memory) seed(addr uint32, v felt.Felt) {
	m.cells[addr] = memCell{value: v}
}
