package layout

import (
	"fmt"
	"sync"
)

// ErrUnresolved is returned when a layout is requested for a type that
// cannot be resolved structurally. It is a hard compilation error; no
// caller recovers from it.
type ErrUnresolved struct {
	Type Type
}

func (e *ErrUnresolved) Error() string {
	return fmt.Sprintf("layout: unresolved type %s", e.Type)
}

// Layout is the Oracle's answer for a given Type: its total slot count and,
// for aggregates, the prefix-sum offset of each component.
type Layout struct {
	Type      Type
	SlotCount int
	// Offsets holds one entry per Elems component, for KindTuple/KindStruct.
	Offsets []int
}

// FieldOffset returns the slot offset of the i-th field/component. Panics
// if i is out of range or the type is not an aggregate — callers only ask
// for field offsets on types they already know to be aggregates.
func (l *Layout) FieldOffset(i int) int {
	return l.Offsets[i]
}

// Oracle computes and caches Layouts, keyed by type identity. It is the
// single source of truth consulted by the MIR builder and the code
// generator.
type Oracle struct {
	mu    sync.RWMutex
	cache map[string]*Layout
}

// NewOracle returns an Oracle with an empty, ready-to-use cache.
func NewOracle() *Oracle {
	return &Oracle{cache: map[string]*Layout{}}
}

// Layout returns the Layout for t, computing and caching it on first
// request. The cache is monotone: once a type has an answer, later queries
// for structurally distinct types never invalidate it.
func (o *Oracle) Layout(t Type) (*Layout, error) {
	key := t.key()

	o.mu.RLock()
	if l, ok := o.cache[key]; ok {
		o.mu.RUnlock()
		return l, nil
	}
	o.mu.RUnlock()

	l, err := o.compute(t, map[string]bool{})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.cache[key] = l
	o.mu.Unlock()
	return l, nil
}

// SlotCount is a convenience wrapper returning just the slot count.
func (o *Oracle) SlotCount(t Type) (int, error) {
	l, err := o.Layout(t)
	if err != nil {
		return 0, err
	}
	return l.SlotCount, nil
}

// compute derives a Layout structurally, detecting cycles through the
// `visiting` set (a cyclic non-pointer type cannot have a finite size and
// is a hard error; pointers break cycles because they always occupy
// exactly one slot regardless of pointee size).
func (o *Oracle) compute(t Type, visiting map[string]bool) (*Layout, error) {
	switch t.Kind {
	case KindFelt, KindBool:
		return &Layout{Type: t, SlotCount: 1}, nil
	case KindUnit, KindFunc:
		return &Layout{Type: t, SlotCount: 0}, nil
	case KindU32:
		return &Layout{Type: t, SlotCount: 2}, nil
	case KindPointer:
		// One slot regardless of pointee size; the pointee's layout is not
		// required to exist yet (it may be the cyclic type a linked
		// structure points back to), which is exactly why pointers break
		// the cycle-detection recursion below.
		return &Layout{Type: t, SlotCount: 1}, nil
	case KindTuple, KindStruct:
		key := t.key()
		if visiting[key] {
			return nil, &ErrUnresolved{Type: t}
		}
		visiting[key] = true
		defer delete(visiting, key)

		offsets := make([]int, len(t.Elems))
		total := 0
		for i, e := range t.Elems {
			offsets[i] = total
			el, err := o.compute(e, visiting)
			if err != nil {
				return nil, err
			}
			total += el.SlotCount
		}
		return &Layout{Type: t, SlotCount: total, Offsets: offsets}, nil
	case KindArray:
		key := t.key()
		if visiting[key] {
			return nil, &ErrUnresolved{Type: t}
		}
		visiting[key] = true
		defer delete(visiting, key)

		el, err := o.compute(*t.Elem, visiting)
		if err != nil {
			return nil, err
		}
		return &Layout{Type: t, SlotCount: el.SlotCount * t.Len}, nil
	default:
		return nil, &ErrUnresolved{Type: t}
	}
}
