package mir

import (
	"fmt"

	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/typedast"
)

// BuilderError is a fatal error raised while lowering a typed AST to
// MIR. It is surfaced as a diagnostic and never recovered internally.
type BuilderError struct {
	Function string
	Msg      string
}

func (e *BuilderError) Error() string {
	return fmt.Sprintf("mir builder: in %s: %s", e.Function, e.Msg)
}

// binding is one name's current binding in the lexical environment. Most
// bindings are pure SSA (mem==false): the name simply denotes a Value.
// Once `&name` is taken the binding is permanently materialised into a
// frame slot (mem==true, val==the slot pointer) and every later
// read/write goes through Load/Store; address-of is the only way a named
// variable leaves SSA.
type binding struct {
	mem bool
	val Value
	typ layout.Type
}

// scope is one lexical frame: a flat map of name -> binding. The whole
// statement tree is visible up front, so a direct lexical-scope walk
// suffices; no sealed-block or unknown-value machinery is needed.
type scope struct {
	vars map[string]binding
}

type env struct {
	frames []*scope
}

func newEnv() *env {
	e := &env{}
	e.push()
	return e
}

func (e *env) push() { e.frames = append(e.frames, &scope{vars: map[string]binding{}}) }

func (e *env) pop() { e.frames = e.frames[:len(e.frames)-1] }

func (e *env) declare(name string, b binding) {
	e.frames[len(e.frames)-1].vars[name] = b
}

func (e *env) find(name string) (*scope, binding, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if b, ok := e.frames[i].vars[name]; ok {
			return e.frames[i], b, true
		}
	}
	return nil, binding{}, false
}

// set overwrites name's binding wherever it currently lives; if it is not
// yet bound anywhere (shouldn't happen against a well-formed typed AST) it
// declares it in the current frame.
func (e *env) set(name string, b binding) {
	if s, _, ok := e.find(name); ok {
		s.vars[name] = b
		return
	}
	e.declare(name, b)
}

// get returns name's current binding, panicking if unbound — the typed
// AST is assumed fully resolved, so an unbound name is a builder bug, not
// a user error.
func (e *env) get(name string) binding {
	_, b, ok := e.find(name)
	if !ok {
		panic(fmt.Sprintf("mir builder: unbound name %q", name))
	}
	return b
}

// loopScope tracks the header/exit blocks and loop-carried variable order
// for break/continue lowering.
type loopScope struct {
	header, exit BlockID
	names        []string
	types        []layout.Type
}

// Builder lowers a typedast.Program into a mir.Module, one MIR Function
// per source function.
type Builder struct {
	oracle    *layout.Oracle
	funcIndex map[string]FunctionID

	module *Module
	fn     *Function
	cur    *BasicBlock
	env    *env
	loops  []*loopScope
}

// NewBuilder returns a Builder backed by the given Data-Layout Oracle.
func NewBuilder(oracle *layout.Oracle) *Builder {
	return &Builder{oracle: oracle, funcIndex: map[string]FunctionID{}}
}

// Build lowers an entire program to a mir.Module.
func (b *Builder) Build(prog *typedast.Program) (*Module, error) {
	b.module = NewModule()
	for i, f := range prog.Functions {
		b.funcIndex[f.Name] = FunctionID(i)
	}
	for i, f := range prog.Functions {
		mf, err := b.buildFunction(FunctionID(i), f)
		if err != nil {
			return nil, err
		}
		b.module.AddFunction(mf)
	}
	return b.module, nil
}

func (b *Builder) buildFunction(id FunctionID, f *typedast.Function) (*Function, error) {
	paramTypes := make([]layout.Type, len(f.Params))
	paramNames := make([]string, len(f.Params))
	for i, p := range f.Params {
		paramTypes[i] = p.Type
		paramNames[i] = p.Name
	}
	fn := NewFunction(id, f.Name, paramTypes, paramNames, f.ReturnType, f.Exported)

	b.fn = fn
	b.cur = fn.Entry()
	b.env = newEnv()
	b.loops = nil

	for _, p := range f.Params {
		v := fn.NewValue(p.Type)
		b.env.set(p.Name, binding{val: v, typ: p.Type})
	}

	if err := b.lowerStmts(f.Body); err != nil {
		return nil, err
	}
	b.finalize()
	return fn, nil
}

// finalize installs Unreachable on any block a statement sequence left
// without a terminator (dead code past an always-terminating branch) so
// every block ends in exactly one terminator before the optimizer runs.
func (b *Builder) finalize() {
	for _, blk := range b.fn.Blocks() {
		if blk.Valid && !blk.HasTerminator() {
			blk.SetTerminator(NewUnreachable())
		}
	}
}

func (b *Builder) emit(instr Instruction) Value {
	b.cur.Append(instr)
	return instr.Dest
}

func (b *Builder) lowerStmts(stmts []typedast.Stmt) error {
	for _, s := range stmts {
		if b.cur.HasTerminator() {
			// Unreachable tail of a block that already returned/broke/
			// continued; keep lowering into a fresh dead block so later
			// statements still have somewhere to append (pruned later by
			// CFG simplification).
			b.cur = b.fn.AddBlock()
		}
		if err := b.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) lowerStmt(s typedast.Stmt) error {
	switch st := s.(type) {
	case *typedast.ExprStmt:
		_, err := b.lowerExpr(st.Expr)
		return err

	case *typedast.LetStmt:
		v, err := b.lowerExpr(st.Init)
		if err != nil {
			return err
		}
		b.env.declare(st.Name, binding{val: v, typ: st.Type})
		return nil

	case *typedast.AssignStmt:
		return b.lowerAssign(st)

	case *typedast.IfStmt:
		return b.lowerIf(st)

	case *typedast.WhileStmt:
		return b.lowerWhile(st)

	case *typedast.LoopStmt:
		return b.lowerLoop(st)

	case *typedast.ForStmt:
		return b.lowerFor(st)

	case *typedast.BreakStmt:
		if len(b.loops) == 0 {
			return &BuilderError{Function: b.fn.Name, Msg: "break outside loop"}
		}
		ls := b.loops[len(b.loops)-1]
		args := b.currentLoopArgs(ls)
		b.cur.SetTerminator(NewJump(ls.exit, args))
		return nil

	case *typedast.ContinueStmt:
		if len(b.loops) == 0 {
			return &BuilderError{Function: b.fn.Name, Msg: "continue outside loop"}
		}
		ls := b.loops[len(b.loops)-1]
		args := b.currentLoopArgs(ls)
		b.cur.SetTerminator(NewJump(ls.header, args))
		return nil

	case *typedast.ReturnStmt:
		vals := make([]Value, len(st.Values))
		for i, e := range st.Values {
			v, err := b.lowerExpr(e)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		b.cur.SetTerminator(NewReturn(vals))
		return nil

	default:
		return &BuilderError{Function: b.fn.Name, Msg: fmt.Sprintf("unhandled statement %T", s)}
	}
}

func (b *Builder) currentLoopArgs(ls *loopScope) []Value {
	args := make([]Value, len(ls.names))
	for i, n := range ls.names {
		args[i] = b.readName(n)
	}
	return args
}

// readName returns the current Value for name, emitting a Load if the
// binding has been materialised to memory by an earlier address-of.
func (b *Builder) readName(name string) Value {
	bind := b.env.get(name)
	if !bind.mem {
		return bind.val
	}
	dst := b.fn.NewValue(bind.typ)
	b.emit(NewLoad(dst, bind.typ, bind.val))
	return dst
}

// writeName rebinds name to v, or Stores through the materialised slot if
// address-of has forced it to memory.
func (b *Builder) writeName(name string, v Value, t layout.Type) {
	bind, _, ok := b.env.find(name)
	if ok {
		if cur := bind.vars[name]; cur.mem {
			b.emit(NewStore(cur.typ, cur.val, v))
			return
		}
	}
	b.env.set(name, binding{val: v, typ: t})
}

func (b *Builder) lowerAssign(st *typedast.AssignStmt) error {
	val, err := b.lowerExpr(st.Value)
	if err != nil {
		return err
	}
	switch target := st.Target.(type) {
	case *typedast.NameExpr:
		b.writeName(target.Name, val, target.ExprType())
		return nil
	case *typedast.FieldExpr:
		return b.lowerFieldWrite(target, val)
	case *typedast.IndexExpr:
		return b.lowerIndexWrite(target, val)
	default:
		return &BuilderError{Function: b.fn.Name, Msg: fmt.Sprintf("illegal assignment target %T", st.Target)}
	}
}

// lowerFieldWrite writes a struct field: for an SSA struct value,
// InsertField plus a rebind of the root name; for a pointer or
// address-taken base, GetElementPtr + Store (handled by
// lowerMemoryPlace).
func (b *Builder) lowerFieldWrite(target *typedast.FieldExpr, val Value) error {
	if name, ok := rootName(target.Base); ok {
		if bind, _, found := b.env.find(name); found && !bind.vars[name].mem {
			baseBind := bind.vars[name]
			idx := fieldIndex(baseBind.typ, target.Field)
			dst := b.fn.NewValue(baseBind.typ)
			b.emit(NewInsertField(dst, baseBind.typ, baseBind.val, idx, target.Field, val))
			b.env.set(name, binding{val: dst, typ: baseBind.typ})
			return nil
		}
	}
	ptr, elemTy, err := b.lowerMemoryPlace(target)
	if err != nil {
		return err
	}
	b.emit(NewStore(elemTy, ptr, val))
	return nil
}

func (b *Builder) lowerIndexWrite(target *typedast.IndexExpr, val Value) error {
	if name, ok := rootName(target.Base); ok {
		if bind, _, found := b.env.find(name); found && !bind.vars[name].mem && bind.vars[name].typ.Kind == layout.KindTuple {
			baseBind := bind.vars[name]
			lit, ok := constIndex(target.Index)
			if !ok {
				return &BuilderError{Function: b.fn.Name, Msg: "tuple index must be a compile-time constant"}
			}
			dst := b.fn.NewValue(baseBind.typ)
			b.emit(NewInsertTuple(dst, baseBind.typ, baseBind.val, lit, val))
			b.env.set(name, binding{val: dst, typ: baseBind.typ})
			return nil
		}
	}
	ptr, elemTy, err := b.lowerMemoryPlace(target)
	if err != nil {
		return err
	}
	b.emit(NewStore(elemTy, ptr, val))
	return nil
}

// lowerMemoryPlace lowers the addressing chain of a Field/Index expression
// whose base is a pointer/array (the memory path: GetElementPtr chains
// down to a base pointer), returning the final element pointer and type.
func (b *Builder) lowerMemoryPlace(e typedast.Expr) (ptr Value, elemTy layout.Type, err error) {
	switch ex := e.(type) {
	case *typedast.NameExpr:
		bind := b.env.get(ex.Name)
		if bind.mem {
			return bind.val, bind.typ, nil
		}
		// Array literals and heap allocations bind the name to a pointer
		// value directly; both live on the memory path without an
		// address-of ever being taken.
		if bind.typ.Kind == layout.KindArray || bind.typ.Kind == layout.KindPointer {
			return bind.val, bind.typ, nil
		}
		return ValueInvalid, layout.Type{}, &BuilderError{Function: b.fn.Name, Msg: fmt.Sprintf("%s is not addressable", ex.Name)}
	case *typedast.FieldExpr:
		basePtr, baseTy, err := b.lowerMemoryPlace(ex.Base)
		if err != nil {
			return ValueInvalid, layout.Type{}, err
		}
		if baseTy.Kind == layout.KindPointer {
			baseTy = *baseTy.Elem
		}
		idx := fieldIndex(baseTy, ex.Field)
		l, err := b.oracle.Layout(baseTy)
		if err != nil {
			return ValueInvalid, layout.Type{}, &BuilderError{Function: b.fn.Name, Msg: err.Error()}
		}
		fieldTy := baseTy.Elems[idx]
		offConst := b.constValue(layout.Felt, uint64(l.FieldOffset(idx)))
		dst := b.fn.NewValue(layout.Pointer(fieldTy))
		// The index is already a slot offset, so the GEP's scaling element
		// is felt (one slot); the pointer's pointee type is still the
		// field's own type.
		gep := NewGetElementPtr(dst, layout.Felt, basePtr, offConst)
		gep.Type = layout.Pointer(fieldTy)
		b.emit(gep)
		return dst, fieldTy, nil
	case *typedast.IndexExpr:
		basePtr, baseTy, err := b.lowerMemoryPlace(ex.Base)
		if err != nil {
			return ValueInvalid, layout.Type{}, err
		}
		elemT := baseTy
		if baseTy.Kind == layout.KindArray || baseTy.Kind == layout.KindPointer {
			elemT = *baseTy.Elem
		}
		idxVal, err := b.lowerExpr(ex.Index)
		if err != nil {
			return ValueInvalid, layout.Type{}, err
		}
		dst := b.fn.NewValue(layout.Pointer(elemT))
		b.emit(NewGetElementPtr(dst, elemT, basePtr, idxVal))
		return dst, elemT, nil
	default:
		return ValueInvalid, layout.Type{}, &BuilderError{Function: b.fn.Name, Msg: fmt.Sprintf("not an addressable place: %T", e)}
	}
}

// rootName walks through a Field/Index chain to find the NameExpr at its
// base, used to decide whether a write targets an SSA aggregate (rebind)
// or a memory place (Store).
func rootName(e typedast.Expr) (string, bool) {
	switch ex := e.(type) {
	case *typedast.NameExpr:
		return ex.Name, true
	case *typedast.FieldExpr:
		return rootName(ex.Base)
	case *typedast.IndexExpr:
		return rootName(ex.Base)
	default:
		return "", false
	}
}

func fieldIndex(t layout.Type, field string) int {
	for i, n := range t.FieldNames {
		if n == field {
			return i
		}
	}
	panic(fmt.Sprintf("mir builder: unknown field %q on %s", field, t))
}

func constIndex(e typedast.Expr) (int, bool) {
	lit, ok := e.(*typedast.LiteralExpr)
	if !ok {
		return 0, false
	}
	return int(lit.Value), true
}

func (b *Builder) constValue(t layout.Type, imm uint64) Value {
	dst := b.fn.NewValue(t)
	b.emit(NewAssignImm(dst, t, imm))
	return dst
}

// lowerIf lowers an if/else, fusing the condition into a BranchOp
// terminator when it is a direct comparison. A merge block is emitted
// only when at least one arm falls through.
func (b *Builder) lowerIf(st *typedast.IfStmt) error {
	names, types := b.outerNames()
	before := b.snapshot(names)

	condBlock := b.cur
	thenBlock := b.fn.AddBlock()
	elseBlock := b.fn.AddBlock()

	fusedOp, lhs, rhs, fused := b.tryFuseCompare(st.Cond)
	if !fused {
		cond, err := b.lowerExpr(st.Cond)
		if err != nil {
			return err
		}
		condBlock.SetTerminator(NewBranchBool(cond, Edge{Target: thenBlock.ID}, Edge{Target: elseBlock.ID}))
	} else {
		condBlock.SetTerminator(NewBranchOp(fusedOp, lhs, rhs, Edge{Target: thenBlock.ID}, Edge{Target: elseBlock.ID}))
	}

	b.cur = thenBlock
	b.env.push()
	if err := b.lowerStmts(st.Then); err != nil {
		return err
	}
	thenTerminated := b.cur.HasTerminator()
	thenEnd := b.cur
	var thenVals []Value
	if !thenTerminated {
		thenVals = b.snapshot(names)
	}
	b.env.pop()
	b.restore(names, before)

	b.cur = elseBlock
	b.env.push()
	if st.Else != nil {
		if err := b.lowerStmts(st.Else); err != nil {
			return err
		}
	}
	elseTerminated := b.cur.HasTerminator()
	elseEnd := b.cur
	var elseVals []Value
	if !elseTerminated {
		elseVals = b.snapshot(names)
	}
	b.env.pop()

	if thenTerminated && elseTerminated {
		b.cur = b.fn.AddBlock()
		return nil
	}

	mergeBlock := b.fn.AddBlock()
	mergeVals := make([]Value, len(names))
	var thenArgs, elseArgs []Value

	for i := range names {
		switch {
		case !thenTerminated && !elseTerminated && thenVals[i] == elseVals[i]:
			mergeVals[i] = thenVals[i]
		case !thenTerminated && elseTerminated:
			mergeVals[i] = thenVals[i]
		case thenTerminated && !elseTerminated:
			mergeVals[i] = elseVals[i]
		default:
			p := mergeBlock.AddParam(b.fn, types[i])
			mergeVals[i] = p
			thenArgs = append(thenArgs, thenVals[i])
			elseArgs = append(elseArgs, elseVals[i])
		}
	}

	if !thenTerminated {
		thenEnd.SetTerminator(NewJump(mergeBlock.ID, thenArgs))
	}
	if !elseTerminated {
		elseEnd.SetTerminator(NewJump(mergeBlock.ID, elseArgs))
	}

	b.cur = mergeBlock
	for i, n := range names {
		if b.env.get(n).mem {
			continue
		}
		b.env.set(n, binding{val: mergeVals[i], typ: types[i]})
	}
	return nil
}

// tryFuseCompare reports whether cond is a direct comparison that can
// lower straight into a BranchOp terminator instead of materialising a
// bool.
func (b *Builder) tryFuseCompare(cond typedast.Expr) (op BinaryOp, lhs, rhs Value, ok bool) {
	bin, isBin := cond.(*typedast.BinaryExpr)
	if !isBin || !toBinOp(bin.Op).IsComparison() {
		return 0, 0, 0, false
	}
	l, err := b.lowerExpr(bin.X)
	if err != nil {
		return 0, 0, 0, false
	}
	r, err := b.lowerExpr(bin.Y)
	if err != nil {
		return 0, 0, 0, false
	}
	return toBinOp(bin.Op), l, r, true
}

// outerNames returns every name currently visible as a pure SSA binding,
// in a stable order, used as the candidate set of loop-carried/merged
// values. Memory-materialised bindings are excluded: their storage is a
// frame slot, so branch arms communicate through Load/Store rather than
// block parameters.
func (b *Builder) outerNames() ([]string, []layout.Type) {
	var names []string
	var types []layout.Type
	seen := map[string]bool{}
	for i := len(b.env.frames) - 1; i >= 0; i-- {
		for n, bd := range b.env.frames[i].vars {
			if !seen[n] {
				seen[n] = true
				if !bd.mem {
					names = append(names, n)
				}
			}
		}
	}
	// Stabilize iteration order (Go map order is random) so codegen and
	// printer output stay deterministic.
	sortStrings(names)
	for _, n := range names {
		types = append(types, b.env.get(n).typ)
	}
	return names, types
}

func (b *Builder) snapshot(names []string) []Value {
	vals := make([]Value, len(names))
	for i, n := range names {
		vals[i] = b.readName(n)
	}
	return vals
}

func (b *Builder) restore(names []string, vals []Value) {
	for i, n := range names {
		cur := b.env.get(n)
		if cur.mem {
			// An address-of inside the branch arm materialised this name;
			// materialisation is permanent, so the memory binding wins
			// over the pre-branch SSA snapshot.
			continue
		}
		b.env.set(n, binding{val: vals[i], typ: cur.typ})
	}
}

// lowerWhile lowers a while loop: header/body/exit blocks, with the
// assigned names of the body as loop-carried header parameters.
func (b *Builder) lowerWhile(st *typedast.WhileStmt) error {
	assigned := assignedNames(st.Body)
	names, types := b.filterKnown(assigned)

	preheaderArgs := b.snapshot(names)
	header := b.fn.AddBlock()
	b.cur.SetTerminator(NewJump(header.ID, preheaderArgs))

	for i := range names {
		header.AddParam(b.fn, types[i])
	}
	b.cur = header
	for i, n := range names {
		b.env.set(n, binding{val: header.Param(i), typ: types[i]})
	}

	body := b.fn.AddBlock()
	exit := b.fn.AddBlock()
	for _, t := range types {
		exit.AddParam(b.fn, t)
	}

	fusedOp, lhs, rhs, fused := b.tryFuseCompare(st.Cond)
	if fused {
		header.SetTerminator(NewBranchOp(fusedOp, lhs, rhs, Edge{Target: body.ID}, Edge{Target: exit.ID, Args: b.snapshot(names)}))
	} else {
		cond, err := b.lowerExpr(st.Cond)
		if err != nil {
			return err
		}
		header.SetTerminator(NewBranchBool(cond, Edge{Target: body.ID}, Edge{Target: exit.ID, Args: b.snapshot(names)}))
	}

	b.loops = append(b.loops, &loopScope{header: header.ID, exit: exit.ID, names: names, types: types})
	b.cur = body
	b.env.push()
	if err := b.lowerStmts(st.Body); err != nil {
		return err
	}
	if !b.cur.HasTerminator() {
		b.cur.SetTerminator(NewJump(header.ID, b.snapshot(names)))
	}
	b.env.pop()
	b.loops = b.loops[:len(b.loops)-1]

	b.cur = exit
	for i, n := range names {
		if b.env.get(n).mem {
			continue
		}
		b.env.set(n, binding{val: exit.Param(i), typ: types[i]})
	}
	return nil
}

// lowerFor desugars a counted loop into the while shape: Init runs in
// its own scope ahead of the header, and Post becomes the body's final
// statement. A `continue` therefore jumps to the header without running
// Post, the documented behaviour of this lowering.
func (b *Builder) lowerFor(st *typedast.ForStmt) error {
	b.env.push()
	defer b.env.pop()
	if st.Init != nil {
		if err := b.lowerStmt(st.Init); err != nil {
			return err
		}
	}
	body := st.Body
	if st.Post != nil {
		body = append(append([]typedast.Stmt{}, st.Body...), st.Post)
	}
	return b.lowerWhile(&typedast.WhileStmt{Cond: st.Cond, Body: body})
}

// lowerLoop lowers an unconditional `loop`: identical to while except
// the header has no condition test, falling straight into the body; the
// only exit is `break`.
func (b *Builder) lowerLoop(st *typedast.LoopStmt) error {
	assigned := assignedNames(st.Body)
	names, types := b.filterKnown(assigned)

	preheaderArgs := b.snapshot(names)
	header := b.fn.AddBlock()
	b.cur.SetTerminator(NewJump(header.ID, preheaderArgs))
	for i := range names {
		header.AddParam(b.fn, types[i])
	}

	exit := b.fn.AddBlock()
	for _, t := range types {
		exit.AddParam(b.fn, t)
	}

	b.loops = append(b.loops, &loopScope{header: header.ID, exit: exit.ID, names: names, types: types})
	b.cur = header
	for i, n := range names {
		b.env.set(n, binding{val: header.Param(i), typ: types[i]})
	}
	b.env.push()
	if err := b.lowerStmts(st.Body); err != nil {
		return err
	}
	if !b.cur.HasTerminator() {
		b.cur.SetTerminator(NewJump(header.ID, b.snapshot(names)))
	}
	b.env.pop()
	b.loops = b.loops[:len(b.loops)-1]

	b.cur = exit
	for i, n := range names {
		if b.env.get(n).mem {
			continue
		}
		b.env.set(n, binding{val: exit.Param(i), typ: types[i]})
	}
	return nil
}

// filterKnown keeps only the names that are actually currently bound as
// pure SSA values (defensive against a pre-scan that over-approximates
// across shadowed inner lets it cannot see; memory-materialised names are
// carried through their frame slot, not a block parameter).
func (b *Builder) filterKnown(names []string) ([]string, []layout.Type) {
	var outNames []string
	var outTypes []layout.Type
	for _, n := range names {
		if _, bd, ok := b.env.find(n); ok && !bd.mem {
			outNames = append(outNames, n)
			outTypes = append(outTypes, bd.typ)
		}
	}
	return outNames, outTypes
}

// assignedNames statically collects every root name assigned anywhere in
// stmts (including nested if/while/loop bodies; nested function bodies
// do not exist at the statement level), the candidate set of loop-carried
// values.
func assignedNames(stmts []typedast.Stmt) []string {
	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	var walkStmts func([]typedast.Stmt)
	walkStmts = func(ss []typedast.Stmt) {
		for _, s := range ss {
			switch st := s.(type) {
			case *typedast.AssignStmt:
				if n, ok := rootName(st.Target); ok {
					add(n)
				}
			case *typedast.IfStmt:
				walkStmts(st.Then)
				walkStmts(st.Else)
			case *typedast.WhileStmt:
				walkStmts(st.Body)
			case *typedast.LoopStmt:
				walkStmts(st.Body)
			case *typedast.ForStmt:
				if st.Init != nil {
					walkStmts([]typedast.Stmt{st.Init})
				}
				if st.Post != nil {
					walkStmts([]typedast.Stmt{st.Post})
				}
				walkStmts(st.Body)
			}
		}
	}
	walkStmts(stmts)
	sortStrings(names)
	return names
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func toBinOp(op typedast.BinaryOp) BinaryOp {
	switch op {
	case typedast.BinAdd:
		return OpAdd
	case typedast.BinSub:
		return OpSub
	case typedast.BinMul:
		return OpMul
	case typedast.BinDiv:
		return OpDiv
	case typedast.BinEq:
		return OpEq
	case typedast.BinNeq:
		return OpNeq
	case typedast.BinLt:
		return OpLt
	case typedast.BinLe:
		return OpLe
	case typedast.BinGt:
		return OpGt
	case typedast.BinGe:
		return OpGe
	case typedast.BinAnd:
		return OpAnd
	case typedast.BinOr:
		return OpOr
	case typedast.BinXor:
		return OpXor
	case typedast.BinShl:
		return OpShl
	case typedast.BinShr:
		return OpShr
	default:
		panic("mir builder: unknown binary op")
	}
}

func toUnOp(op typedast.UnaryOp) UnaryOp {
	if op == typedast.UnaryNeg {
		return OpNeg
	}
	return OpNot
}

func (b *Builder) lowerExpr(e typedast.Expr) (Value, error) {
	switch ex := e.(type) {
	case *typedast.LiteralExpr:
		return b.constValue(ex.ExprType(), ex.Value), nil

	case *typedast.NameExpr:
		return b.readName(ex.Name), nil

	case *typedast.UnaryExpr:
		x, err := b.lowerExpr(ex.X)
		if err != nil {
			return ValueInvalid, err
		}
		dst := b.fn.NewValue(ex.ExprType())
		b.emit(NewUnaryOp(dst, ex.ExprType(), toUnOp(ex.Op), x))
		return dst, nil

	case *typedast.BinaryExpr:
		x, err := b.lowerExpr(ex.X)
		if err != nil {
			return ValueInvalid, err
		}
		y, err := b.lowerExpr(ex.Y)
		if err != nil {
			return ValueInvalid, err
		}
		dst := b.fn.NewValue(ex.ExprType())
		b.emit(NewBinaryOp(dst, ex.ExprType(), toBinOp(ex.Op), x, y))
		return dst, nil

	case *typedast.CallExpr:
		calleeID, ok := b.funcIndex[ex.Callee]
		if !ok {
			return ValueInvalid, &BuilderError{Function: b.fn.Name, Msg: fmt.Sprintf("unknown callee %q", ex.Callee)}
		}
		args := make([]Value, len(ex.Args))
		for i, a := range ex.Args {
			v, err := b.lowerExpr(a)
			if err != nil {
				return ValueInvalid, err
			}
			args[i] = v
		}
		retTy := ex.ExprType()
		var retTypes []layout.Type
		if retTy.Kind == layout.KindTuple {
			retTypes = retTy.Elems
		} else if retTy.Kind != layout.KindUnit {
			retTypes = []layout.Type{retTy}
		}
		dests := make([]Value, len(retTypes))
		for i, t := range retTypes {
			dests[i] = b.fn.NewValue(t)
		}
		instr := NewCall(dests, retTypes, calleeID, args)
		b.cur.Append(instr)
		if len(dests) == 1 {
			return dests[0], nil
		}
		if len(dests) == 0 {
			return ValueInvalid, nil
		}
		dst := b.fn.NewValue(retTy)
		b.emit(NewMakeTuple(dst, retTy, dests))
		return dst, nil

	case *typedast.TupleExpr:
		elems := make([]Value, len(ex.Elems))
		for i, e2 := range ex.Elems {
			v, err := b.lowerExpr(e2)
			if err != nil {
				return ValueInvalid, err
			}
			elems[i] = v
		}
		dst := b.fn.NewValue(ex.ExprType())
		b.emit(NewMakeTuple(dst, ex.ExprType(), elems))
		return dst, nil

	case *typedast.StructExpr:
		vals := make([]Value, len(ex.Values))
		for i, e2 := range ex.Values {
			v, err := b.lowerExpr(e2)
			if err != nil {
				return ValueInvalid, err
			}
			vals[i] = v
		}
		dst := b.fn.NewValue(ex.ExprType())
		b.emit(NewMakeStruct(dst, ex.ExprType(), vals))
		return dst, nil

	case *typedast.ArrayExpr:
		t := ex.ExprType()
		ptr := b.fn.NewValue(layout.Pointer(*t.Elem))
		b.emit(NewFrameAlloc(ptr, *t.Elem, t.Len))
		for i, e2 := range ex.Elems {
			v, err := b.lowerExpr(e2)
			if err != nil {
				return ValueInvalid, err
			}
			idxConst := b.constValue(layout.Felt, uint64(i))
			elemPtr := b.fn.NewValue(layout.Pointer(*t.Elem))
			b.emit(NewGetElementPtr(elemPtr, *t.Elem, ptr, idxConst))
			b.emit(NewStore(*t.Elem, elemPtr, v))
		}
		return ptr, nil

	case *typedast.FieldExpr:
		if name, ok := rootName(ex.Base); ok {
			if bind, _, found := b.env.find(name); found && !bind.vars[name].mem {
				baseBind := bind.vars[name]
				idx := fieldIndex(baseBind.typ, ex.Field)
				dst := b.fn.NewValue(ex.ExprType())
				b.emit(NewExtractField(dst, ex.ExprType(), baseBind.val, idx, ex.Field))
				return dst, nil
			}
		}
		ptr, elemTy, err := b.lowerMemoryPlace(ex)
		if err != nil {
			return ValueInvalid, err
		}
		dst := b.fn.NewValue(elemTy)
		b.emit(NewLoad(dst, elemTy, ptr))
		return dst, nil

	case *typedast.IndexExpr:
		if name, ok := rootName(ex.Base); ok {
			if bind, _, found := b.env.find(name); found && !bind.vars[name].mem && bind.vars[name].typ.Kind == layout.KindTuple {
				baseBind := bind.vars[name]
				lit, ok := constIndex(ex.Index)
				if ok {
					dst := b.fn.NewValue(ex.ExprType())
					b.emit(NewExtractTuple(dst, ex.ExprType(), baseBind.val, lit))
					return dst, nil
				}
			}
		}
		ptr, elemTy, err := b.lowerMemoryPlace(ex)
		if err != nil {
			return ValueInvalid, err
		}
		dst := b.fn.NewValue(elemTy)
		b.emit(NewLoad(dst, elemTy, ptr))
		return dst, nil

	case *typedast.AddrOfExpr:
		name := ex.Operand.Name
		bind := b.env.get(name)
		if bind.mem {
			return bind.val, nil
		}
		ptr := b.fn.NewValue(layout.Pointer(bind.typ))
		b.emit(NewFrameAlloc(ptr, bind.typ, 1))
		b.emit(NewStore(bind.typ, ptr, bind.val))
		b.env.set(name, binding{mem: true, val: ptr, typ: bind.typ})
		return ptr, nil

	case *typedast.NewExpr:
		count, err := b.lowerExpr(ex.Count)
		if err != nil {
			return ValueInvalid, err
		}
		dst := b.fn.NewValue(layout.Pointer(ex.ElemType))
		b.emit(NewHeapAllocCells(dst, ex.ElemType, 0, count))
		return dst, nil

	case *typedast.CastExpr:
		x, err := b.lowerExpr(ex.X)
		if err != nil {
			return ValueInvalid, err
		}
		dst := b.fn.NewValue(ex.ExprType())
		b.emit(NewCast(dst, x, ex.X.ExprType(), ex.ExprType()))
		return dst, nil

	default:
		return ValueInvalid, &BuilderError{Function: b.fn.Name, Msg: fmt.Sprintf("unhandled expression %T", e)}
	}
}
