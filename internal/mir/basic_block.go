package mir

import (
	"fmt"
	"strings"

	"github.com/cairo-m/cairom/internal/layout"
)

// blockParam is one block parameter, the phi-by-parameter replacement
// for traditional PHI nodes: control-flow merges receive values through
// these instead of PHI instructions.
type blockParam struct {
	value Value
	typ   layout.Type
}

// BasicBlock is an ordered list of non-terminator Instructions followed by
// exactly one Terminator, plus a list of typed parameters that its
// predecessors' jump arguments must match positionally.
type BasicBlock struct {
	ID   BlockID
	Name string

	params  []blockParam
	instrs  []Instruction
	term    Terminator
	hasTerm bool

	preds []BlockID

	// Valid is false once a pass removes this block (CFG simplification);
	// the block stays as a tombstone rather than compacting ids.
	Valid bool
}

func newBlock(id BlockID, name string) *BasicBlock {
	return &BasicBlock{ID: id, Name: name, Valid: true}
}

// AddParam appends a new typed parameter and returns the Value that
// represents it within this block.
func (b *BasicBlock) AddParam(f *Function, t layout.Type) Value {
	v := f.NewValue(t)
	b.params = append(b.params, blockParam{value: v, typ: t})
	return v
}

// Params returns the number of parameters this block declares.
func (b *BasicBlock) Params() int { return len(b.params) }

// Param returns the i-th parameter's Value.
func (b *BasicBlock) Param(i int) Value { return b.params[i].value }

// ParamType returns the i-th parameter's declared type.
func (b *BasicBlock) ParamType(i int) layout.Type { return b.params[i].typ }

// Append inserts instr at the tail of this block's instruction list. Must
// not be called after SetTerminator.
func (b *BasicBlock) Append(instr Instruction) {
	if b.hasTerm {
		panic("mir: appended instruction after terminator")
	}
	b.instrs = append(b.instrs, instr)
}

// Instructions returns the block's non-terminator instructions in order.
func (b *BasicBlock) Instructions() []Instruction { return b.instrs }

// SetTerminator installs t as this block's (only) terminator.
func (b *BasicBlock) SetTerminator(t Terminator) {
	b.term = t
	b.hasTerm = true
}

// Terminator returns the block's terminator. Panics if none has been set
// yet; every well-formed block has exactly one.
func (b *BasicBlock) Terminator() *Terminator {
	if !b.hasTerm {
		panic("mir: block has no terminator")
	}
	return &b.term
}

// HasTerminator reports whether SetTerminator has been called yet.
func (b *BasicBlock) HasTerminator() bool { return b.hasTerm }

// AddPred records pred as a predecessor of this block. The builder does
// not record predecessors; SimplifyCFG recomputes every block's list
// wholesale.
func (b *BasicBlock) AddPred(pred BlockID) {
	b.preds = append(b.preds, pred)
}

// Preds returns this block's known predecessors.
func (b *BasicBlock) Preds() []BlockID { return b.preds }

// String renders the block header and body in the canonical textual form.
func (b *BasicBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", b.Name)
	if len(b.params) > 0 {
		parts := make([]string, len(b.params))
		for i, p := range b.params {
			parts[i] = fmt.Sprintf("%s: %s", p.value, p.typ)
		}
		fmt.Fprintf(&sb, "(%s)", strings.Join(parts, ", "))
	}
	sb.WriteString(":\n")
	for _, instr := range b.instrs {
		fmt.Fprintf(&sb, "  %s\n", instr.String())
	}
	if b.hasTerm {
		fmt.Fprintf(&sb, "  %s\n", b.term.String())
	}
	return sb.String()
}
