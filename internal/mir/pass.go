package mir

import (
	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/cairo-m/cairom/internal/felt"
	"github.com/cairo-m/cairom/internal/layout"
)

// Pass is one optimization pass over a single Function. Every pass is
// idempotent: running it twice in a row leaves the function unchanged.
type Pass func(f *Function)

// StandardPipeline is the fixed pass order: constant folding, copy
// propagation, branch folding, dead-code elimination, conditional
// Mem2Reg, then CFG simplification.
func StandardPipeline() []Pass {
	return []Pass{
		ConstantFold,
		CopyPropagate,
		FoldBranches,
		EliminateDeadCode,
		Mem2Reg,
		SimplifyCFG,
	}
}

// RunPipeline applies every pass in order to every function of m.
func RunPipeline(m *Module, passes []Pass) {
	for _, fn := range m.Functions {
		for _, p := range passes {
			p(fn)
		}
	}
}

// RunPipelineParallel applies the pipeline to each function of m
// concurrently via golang.org/x/sync/errgroup; passes never observe
// another function's IR, so per-function fan-out is safe and never
// observable in the output.
func RunPipelineParallel(m *Module, passes []Pass) error {
	var g errgroup.Group
	for _, fn := range m.Functions {
		fn := fn
		g.Go(func() error {
			for _, p := range passes {
				p(fn)
			}
			return nil
		})
	}
	return g.Wait()
}

// constFold holds an instruction's folded compile-time value, when known.
type constFold struct {
	isFelt bool
	feltV  felt.Felt
	isU32  bool
	u32V   felt.U32
}

// ConstantFold replaces every copy, unary and binary operation all of
// whose operands are compile-time literals with a direct
// `Assign(dst, literal)`, evaluating felt arithmetic with the same mod-P
// semantics the VM uses. Comparisons fold to a 0/1 felt boolean. Other
// instructions (aggregate construction, extract/insert, casts) are not
// folded.
func ConstantFold(f *Function) {
	known := map[Value]constFold{}
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		for i := range b.instrs {
			instr := &b.instrs[i]
			cf, ok := tryFold(instr, known)
			if !ok {
				continue
			}
			*instr = foldedAssign(instr.Dest, instr.Type, cf)
			known[instr.Dest] = cf
		}
	}
}

func literalOf(known map[Value]constFold, v Value) (constFold, bool) {
	cf, ok := known[v]
	return cf, ok
}

func tryFold(instr *Instruction, known map[Value]constFold) (constFold, bool) {
	switch instr.Kind {
	case InstAssign:
		if instr.HasImm {
			if instr.Type.Kind == layout.KindU32 {
				return constFold{isU32: true, u32V: felt.FromUint32(uint32(instr.Imm))}, true
			}
			return constFold{isFelt: true, feltV: felt.New(instr.Imm)}, true
		}
		if cf, ok := literalOf(known, instr.Src); ok {
			return cf, true
		}
		return constFold{}, false

	case InstUnaryOp:
		x, ok := literalOf(known, instr.Src)
		if !ok || !x.isFelt {
			return constFold{}, false
		}
		switch instr.UOp {
		case OpNeg:
			return constFold{isFelt: true, feltV: x.feltV.Neg()}, true
		case OpNot:
			return constFold{isFelt: true, feltV: felt.FromBool(!x.feltV.Bool())}, true
		}
		return constFold{}, false

	case InstBinaryOp:
		x, xok := literalOf(known, instr.Src)
		y, yok := literalOf(known, instr.Src2)
		if !xok || !yok {
			return constFold{}, false
		}
		if x.isU32 && y.isU32 {
			return foldBinaryU32(instr.BOp, x.u32V, y.u32V)
		}
		if !x.isFelt || !y.isFelt {
			return constFold{}, false
		}
		return foldBinary(instr.BOp, x.feltV, y.feltV)

	default:
		return constFold{}, false
	}
}

// foldBinaryU32 evaluates a u32 operation on two compile-time constants
// with the same wrapping-at-2^32 semantics the VM's two-limb opcodes
// implement.
func foldBinaryU32(op BinaryOp, x, y felt.U32) (constFold, bool) {
	u32Result := func(v felt.U32) (constFold, bool) { return constFold{isU32: true, u32V: v}, true }
	boolResult := func(b bool) (constFold, bool) { return constFold{isFelt: true, feltV: felt.FromBool(b)}, true }
	switch op {
	case OpAdd:
		return u32Result(x.Add(y))
	case OpSub:
		return u32Result(x.Sub(y))
	case OpMul:
		return u32Result(x.Mul(y))
	case OpDiv:
		if y.Uint32() == 0 {
			return constFold{}, false // runtime trap, not a fold
		}
		q, _ := x.DivMod(y)
		return u32Result(q)
	case OpAnd:
		return u32Result(x.And(y))
	case OpOr:
		return u32Result(x.Or(y))
	case OpXor:
		return u32Result(x.Xor(y))
	case OpShl:
		return u32Result(x.Shl(y))
	case OpShr:
		return u32Result(x.Shr(y))
	case OpEq:
		return boolResult(x.Eq(y))
	case OpNeq:
		return boolResult(!x.Eq(y))
	case OpLt:
		return boolResult(x.Lt(y))
	case OpLe:
		return boolResult(x.Le(y))
	case OpGt:
		return boolResult(x.Gt(y))
	case OpGe:
		return boolResult(x.Ge(y))
	default:
		return constFold{}, false
	}
}

func foldBinary(op BinaryOp, x, y felt.Felt) (constFold, bool) {
	boolResult := func(b bool) (constFold, bool) { return constFold{isFelt: true, feltV: felt.FromBool(b)}, true }
	switch op {
	case OpAdd:
		return constFold{isFelt: true, feltV: x.Add(y)}, true
	case OpSub:
		return constFold{isFelt: true, feltV: x.Sub(y)}, true
	case OpMul:
		return constFold{isFelt: true, feltV: x.Mul(y)}, true
	case OpDiv:
		if y == felt.Zero {
			return constFold{}, false // division by zero is a runtime trap, not a fold
		}
		return constFold{isFelt: true, feltV: x.Div(y)}, true
	case OpEq:
		return boolResult(x == y)
	case OpNeq:
		return boolResult(x != y)
	case OpLt:
		return boolResult(x.Uint32() < y.Uint32())
	case OpLe:
		return boolResult(x.Uint32() <= y.Uint32())
	case OpGt:
		return boolResult(x.Uint32() > y.Uint32())
	case OpGe:
		return boolResult(x.Uint32() >= y.Uint32())
	default:
		return constFold{}, false
	}
}

func foldedAssign(dst Value, t layout.Type, cf constFold) Instruction {
	if cf.isU32 {
		return NewAssignImm(dst, t, uint64(cf.u32V.Uint32()))
	}
	return NewAssignImm(dst, t, uint64(cf.feltV))
}

// CopyPropagate rewrites every use of a plain `Assign(dst, src)`'s
// destination to use src directly, then leaves the (now potentially dead)
// Assign for EliminateDeadCode to remove.
func CopyPropagate(f *Function) {
	copyOf := map[Value]Value{}
	resolve := func(v Value) Value {
		for {
			r, ok := copyOf[v]
			if !ok {
				return v
			}
			v = r
		}
	}
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		for i := range b.instrs {
			instr := &b.instrs[i]
			if instr.Kind == InstAssign && !instr.HasImm {
				copyOf[instr.Dest] = instr.Src
			}
			rewriteUses(instr, resolve)
		}
		if b.hasTerm {
			rewriteTermUses(&b.term, resolve)
		}
	}
}

func rewriteUses(instr *Instruction, resolve func(Value) Value) {
	if instr.Src.Valid() {
		instr.Src = resolve(instr.Src)
	}
	if instr.Src2.Valid() {
		instr.Src2 = resolve(instr.Src2)
	}
	if instr.Src3.Valid() {
		instr.Src3 = resolve(instr.Src3)
	}
	for i, a := range instr.Args {
		instr.Args[i] = resolve(a)
	}
	for i, a := range instr.FieldSrcs {
		instr.FieldSrcs[i] = resolve(a)
	}
}

func rewriteTermUses(t *Terminator, resolve func(Value) Value) {
	switch t.Kind {
	case TermReturn:
		for i, v := range t.Values {
			t.Values[i] = resolve(v)
		}
	case TermJump:
		for i, v := range t.Target.Args {
			t.Target.Args[i] = resolve(v)
		}
	case TermBranchBool:
		t.Cond = resolve(t.Cond)
		for i, v := range t.Then.Args {
			t.Then.Args[i] = resolve(v)
		}
		for i, v := range t.Else.Args {
			t.Else.Args[i] = resolve(v)
		}
	case TermBranchOp:
		t.Lhs = resolve(t.Lhs)
		t.Rhs = resolve(t.Rhs)
		for i, v := range t.Then.Args {
			t.Then.Args[i] = resolve(v)
		}
		for i, v := range t.Else.Args {
			t.Else.Args[i] = resolve(v)
		}
	}
}

// FoldBranches rewrites a BranchBool/BranchOp whose condition is now a
// known compile-time constant (after ConstantFold) into an unconditional
// Jump, removing the untaken edge.
func FoldBranches(f *Function) {
	for _, b := range f.Blocks() {
		if !b.Valid || !b.hasTerm {
			continue
		}
		t := &b.term
		switch t.Kind {
		case TermBranchBool:
			lit, ok := constBoolOf(f, b, t.Cond)
			if !ok {
				continue
			}
			if lit {
				b.term = NewJump(t.Then.Target, t.Then.Args)
			} else {
				b.term = NewJump(t.Else.Target, t.Else.Args)
			}
		case TermBranchOp:
			lx, lok := constImmOf(f, b, t.Lhs)
			rx, rok := constImmOf(f, b, t.Rhs)
			if !lok || !rok {
				continue
			}
			var cf constFold
			var ok bool
			if f.ValueType(t.Lhs).Kind == layout.KindU32 {
				cf, ok = foldBinaryU32(t.BOp, felt.FromUint32(uint32(lx)), felt.FromUint32(uint32(rx)))
			} else {
				cf, ok = foldBinary(t.BOp, felt.New(lx), felt.New(rx))
			}
			if !ok {
				continue
			}
			if cf.feltV.Bool() {
				b.term = NewJump(t.Then.Target, t.Then.Args)
			} else {
				b.term = NewJump(t.Else.Target, t.Else.Args)
			}
		}
	}
}

// constImmOf finds a literal Assign defining v within b, if any; a
// shallow, single-block lookback sufficient for the common fused-compare
// case.
func constImmOf(f *Function, b *BasicBlock, v Value) (uint64, bool) {
	for _, instr := range b.instrs {
		if instr.Dest == v && instr.Kind == InstAssign && instr.HasImm {
			return instr.Imm, true
		}
	}
	return 0, false
}

func constBoolOf(f *Function, b *BasicBlock, v Value) (bool, bool) {
	imm, ok := constImmOf(f, b, v)
	if !ok {
		return false, false
	}
	return imm != 0, true
}

// EliminateDeadCode removes every pure instruction with no remaining uses
// and prunes unreachable blocks, using a bitset to track live values and
// reachable blocks.
func EliminateDeadCode(f *Function) {
	live := bitset.New(uint(len(f.valTypes)))
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		if b.hasTerm {
			markTermUses(&b.term, live)
		}
	}
	changed := true
	for changed {
		changed = false
		for _, b := range f.Blocks() {
			if !b.Valid {
				continue
			}
			for i := range b.instrs {
				instr := &b.instrs[i]
				if !instructionLive(instr, live) {
					continue
				}
				for _, u := range instr.Uses() {
					if !live.Test(uint(u)) {
						live.Set(uint(u))
						changed = true
					}
				}
			}
		}
	}

	reachable := reachableBlocks(f)
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		if !reachable.Test(uint(b.ID)) {
			b.Valid = false
			continue
		}
		kept := b.instrs[:0]
		for _, instr := range b.instrs {
			if instructionLive(&instr, live) {
				kept = append(kept, instr)
			}
		}
		b.instrs = kept
	}
}

func instructionLive(instr *Instruction, live *bitset.BitSet) bool {
	if !instr.IsPure() {
		return true
	}
	for _, d := range instr.Defs() {
		if live.Test(uint(d)) {
			return true
		}
	}
	return len(instr.Defs()) == 0
}

func markTermUses(t *Terminator, live *bitset.BitSet) {
	mark := func(v Value) {
		if v.Valid() {
			live.Set(uint(v))
		}
	}
	switch t.Kind {
	case TermReturn:
		for _, v := range t.Values {
			mark(v)
		}
	case TermJump:
		for _, v := range t.Target.Args {
			mark(v)
		}
	case TermBranchBool:
		mark(t.Cond)
		for _, v := range t.Then.Args {
			mark(v)
		}
		for _, v := range t.Else.Args {
			mark(v)
		}
	case TermBranchOp:
		mark(t.Lhs)
		mark(t.Rhs)
		for _, v := range t.Then.Args {
			mark(v)
		}
		for _, v := range t.Else.Args {
			mark(v)
		}
	}
}

// reachableBlocks computes the set of blocks reachable from block 0 via a
// simple worklist walk over Successors().
func reachableBlocks(f *Function) *bitset.BitSet {
	reach := bitset.New(uint(len(f.blocks)))
	if len(f.blocks) == 0 {
		return reach
	}
	work := []BlockID{0}
	reach.Set(0)
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		b := f.blocks[id]
		if !b.Valid || !b.hasTerm {
			continue
		}
		for _, e := range b.term.Successors() {
			if !reach.Test(uint(e.Target)) {
				reach.Set(uint(e.Target))
				work = append(work, e.Target)
			}
		}
	}
	return reach
}

// Mem2Reg promotes FrameAlloc slots back into SSA values, gated on
// Function.TouchesMemory so functions that never touch memory skip the
// analysis entirely. A slot
// is promotable when its pointer never escapes (no GetElementPtr, no use
// as a call argument, no appearance as a stored *value*) and every
// Load/Store through it happens in the block that allocated it — the
// deliberately conservative subset where per-slot SSA reconstruction
// needs no block-parameter insertion at all. Slots whose accesses
// straddle block boundaries stay on the memory path.
func Mem2Reg(f *Function) {
	if !f.TouchesMemory() {
		return
	}

	// Function-wide escape and block-locality analysis per alloc.
	allocBlock := map[Value]BlockID{}
	escaped := map[Value]bool{}
	usedIn := map[Value]map[BlockID]bool{}
	noteUse := func(v Value, b BlockID) {
		if usedIn[v] == nil {
			usedIn[v] = map[BlockID]bool{}
		}
		usedIn[v][b] = true
	}
	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		for _, instr := range b.instrs {
			switch instr.Kind {
			case InstFrameAlloc:
				allocBlock[instr.Dest] = b.ID
			case InstGetElementPtr:
				escaped[instr.Src] = true
			case InstAddressOf:
				escaped[instr.Src] = true
			case InstLoad:
				noteUse(instr.Src, b.ID)
			case InstStore:
				noteUse(instr.Src, b.ID)
				escaped[instr.Src2] = true // pointer stored as a value
			case InstCall:
				for _, a := range instr.Args {
					escaped[a] = true
				}
			case InstAssign:
				if !instr.HasImm {
					escaped[instr.Src] = true // pointer copied under a new name
				}
			}
		}
		if b.hasTerm {
			for _, e := range b.term.Successors() {
				for _, a := range e.Args {
					escaped[a] = true
				}
			}
			if b.term.Kind == TermReturn {
				for _, v := range b.term.Values {
					escaped[v] = true
				}
			}
		}
	}

	promotable := map[Value]bool{}
	for dest, blk := range allocBlock {
		if escaped[dest] {
			continue
		}
		local := true
		for useBlk := range usedIn[dest] {
			if useBlk != blk {
				local = false
				break
			}
		}
		if local {
			promotable[dest] = true
		}
	}
	if len(promotable) == 0 {
		return
	}

	for _, b := range f.Blocks() {
		if !b.Valid {
			continue
		}
		promoteBlock(b, promotable)
	}
}

func promoteBlock(b *BasicBlock, promotable map[Value]bool) {
	// slot -> current SSA value occupying it. A Load before any Store
	// reads an undefined cell in source programs; such Loads are left on
	// the memory path untouched.
	slotVal := map[Value]Value{}
	kept := b.instrs[:0]
	for _, instr := range b.instrs {
		switch instr.Kind {
		case InstStore:
			if promotable[instr.Src] {
				slotVal[instr.Src] = instr.Src2
				continue
			}
			kept = append(kept, instr)
		case InstLoad:
			if v, ok := slotVal[instr.Src]; ok {
				kept = append(kept, NewAssign(instr.Dest, instr.Type, v))
				continue
			}
			kept = append(kept, instr)
		default:
			kept = append(kept, instr)
		}
	}
	b.instrs = kept
}

// SimplifyCFG removes empty jump-only blocks by splicing their single
// successor's edge directly into predecessors, and re-derives each
// block's Preds() list. It runs last so it sees the final post-DCE CFG
// shape.
func SimplifyCFG(f *Function) {
	for _, b := range f.blocks {
		if !b.Valid {
			continue
		}
		b.preds = nil
	}
	for _, b := range f.blocks {
		if !b.Valid || !b.hasTerm {
			continue
		}
		for _, e := range b.term.Successors() {
			if tgt := f.blocks[e.Target]; tgt.Valid {
				tgt.AddPred(b.ID)
			}
		}
	}

	for _, b := range f.blocks {
		if !b.Valid || b.ID == 0 {
			continue
		}
		if len(b.instrs) != 0 || b.Params() != 0 || !b.hasTerm || b.term.Kind != TermJump {
			continue
		}
		target := b.term.Target
		for _, pred := range b.preds {
			pb := f.blocks[pred]
			if !pb.Valid || !pb.hasTerm {
				continue
			}
			retarget(&pb.term, b.ID, target)
		}
	}

	// A retargeted jump may now point straight past what used to be a
	// single-predecessor empty block; recompute reachability and drop
	// anything no longer reachable from the entry.
	reach := reachableBlocks(f)
	for _, b := range f.blocks {
		if b.Valid && !reach.Test(uint(b.ID)) {
			b.Valid = false
		}
	}
}

func retarget(t *Terminator, from BlockID, to Edge) {
	switch t.Kind {
	case TermJump:
		if t.Target.Target == from {
			t.Target = to
		}
	case TermBranchBool:
		if t.Then.Target == from {
			t.Then = to
		}
		if t.Else.Target == from {
			t.Else = to
		}
	case TermBranchOp:
		if t.Then.Target == from {
			t.Then = to
		}
		if t.Else.Target == from {
			t.Else = to
		}
	}
}
