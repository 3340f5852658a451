package mir

import (
	"fmt"
	"strings"
)

// TermKind tags the terminator variant, mirroring InstKind's flattened
// idiom but kept as a separate type since terminators are a distinct
// instruction category: exactly one per block, the only instruction that
// transfers control.
type TermKind uint8

const (
	TermInvalid TermKind = iota
	TermReturn
	TermJump
	TermBranchBool
	TermBranchOp
	TermUnreachable
)

func (k TermKind) String() string {
	switch k {
	case TermReturn:
		return "Return"
	case TermJump:
		return "Jump"
	case TermBranchBool:
		return "BranchBool"
	case TermBranchOp:
		return "BranchOp"
	case TermUnreachable:
		return "Unreachable"
	default:
		return "<invalid>"
	}
}

// Edge is a jump to a target block with arguments positionally matched
// to the target's block parameters.
type Edge struct {
	Target BlockID
	Args   []Value
}

// Terminator is the single control-transfer instruction ending a block.
type Terminator struct {
	Kind TermKind

	// TermReturn
	Values []Value

	// TermJump
	Target Edge

	// TermBranchBool
	Cond       Value
	Then, Else Edge

	// TermBranchOp: a fused compare-and-branch, `BranchOp(lhs, op, rhs, ...)`.
	BOp      BinaryOp
	Lhs, Rhs Value
}

// NewReturn creates `Return([values])`.
func NewReturn(values []Value) Terminator {
	return Terminator{Kind: TermReturn, Values: values}
}

// NewJump creates `Jump(target, [args])`.
func NewJump(target BlockID, args []Value) Terminator {
	return Terminator{Kind: TermJump, Target: Edge{Target: target, Args: args}}
}

// NewBranchBool creates `BranchBool(cond, then, else)`.
func NewBranchBool(cond Value, then, els Edge) Terminator {
	return Terminator{Kind: TermBranchBool, Cond: cond, Then: then, Else: els}
}

// NewBranchOp creates the fused `BranchOp(lhs, op, rhs, then, else)`,
// used whenever an if/while condition is a direct comparison: the
// separate boolean materialisation is elided.
func NewBranchOp(op BinaryOp, lhs, rhs Value, then, els Edge) Terminator {
	return Terminator{Kind: TermBranchOp, BOp: op, Lhs: lhs, Rhs: rhs, Then: then, Else: els}
}

// NewUnreachable creates `Unreachable`.
func NewUnreachable() Terminator {
	return Terminator{Kind: TermUnreachable}
}

// Successors returns every Edge this terminator may jump through, in a
// stable order (Then before Else where both exist). Used by the CFG
// passes to compute reachability and predecessor lists.
func (t *Terminator) Successors() []Edge {
	switch t.Kind {
	case TermJump:
		return []Edge{t.Target}
	case TermBranchBool, TermBranchOp:
		return []Edge{t.Then, t.Else}
	default:
		return nil
	}
}

func edgeString(e Edge) string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Target, strings.Join(parts, ", "))
}

func (t *Terminator) String() string {
	switch t.Kind {
	case TermReturn:
		parts := make([]string, len(t.Values))
		for i, v := range t.Values {
			parts[i] = v.String()
		}
		return fmt.Sprintf("return %s", strings.Join(parts, ", "))
	case TermJump:
		return fmt.Sprintf("jump %s", edgeString(t.Target))
	case TermBranchBool:
		return fmt.Sprintf("br_bool %s, %s, %s", t.Cond, edgeString(t.Then), edgeString(t.Else))
	case TermBranchOp:
		return fmt.Sprintf("br_op %s %s, %s, then %s, else %s", t.BOp, t.Lhs, t.Rhs, edgeString(t.Then), edgeString(t.Else))
	case TermUnreachable:
		return "unreachable"
	default:
		return "<invalid terminator>"
	}
}
