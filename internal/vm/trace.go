package vm

import "github.com/cairo-m/cairom/internal/felt"

// TraceEntry is one memory access record: the address touched, its value
// before and after, and the clock of this access and of the access that
// last touched this address. The prior clock is what the proving layer's
// read/update memory argument keys on.
type TraceEntry struct {
	Addr     uint32
	OldValue felt.Felt
	NewValue felt.Felt
	OldClock uint64
	NewClock uint64
}

// Trace is the ordered sequence of memory accesses a run produced, the
// artifact downstream STARK/AIR tooling consumes. On a fatal error it is
// truncated at the failing step, not discarded.
type Trace struct {
	Entries []TraceEntry
}

func (t *Trace) record(addr uint32, old, new_ felt.Felt, oldClock, newClock uint64) {
	t.Entries = append(t.Entries, TraceEntry{
		Addr: addr, OldValue: old, NewValue: new_, OldClock: oldClock, NewClock: newClock,
	})
}
