package mir

import "fmt"

// Value is an opaque dense id identifying an SSA value. Each id is
// written exactly once; the id space is function-local and invalidated
// only when the owning Function is destroyed.
type Value uint32

// ValueInvalid is never a valid value id; used as a sentinel in optional
// fields (e.g. an instruction with no destination).
const ValueInvalid Value = 1<<32 - 1

// Valid reports whether v is a real value id.
func (v Value) Valid() bool { return v != ValueInvalid }

func (v Value) String() string {
	if !v.Valid() {
		return "<invalid>"
	}
	return fmt.Sprintf("v%d", uint32(v))
}

// BlockID is a dense id for a BasicBlock, local to its owning Function.
type BlockID uint32

func (b BlockID) String() string { return fmt.Sprintf("block%d", uint32(b)) }

// FunctionID indexes a Function within its owning Module.
type FunctionID uint32
