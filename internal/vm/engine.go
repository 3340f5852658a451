package vm

import (
	"fmt"

	"github.com/cairo-m/cairom/internal/codegen"
	"github.com/cairo-m/cairom/internal/felt"
)

// haltSentinel is the synthetic return_pc the entry frame carries: when
// Ret is about to jump there, the run is complete. It sits at the very
// top of the field, far past any address the instruction region can
// reach.
const haltSentinel uint32 = felt.P - 1

// Engine holds one compiled program plus the resource limits every run
// inherits. Engine is shared and immutable; callEngine below carries the
// mutable per-run state.
type Engine struct {
	prog   *codegen.Program
	limits Limits
}

// NewEngine wraps a compiled program with the given limits.
func NewEngine(p *codegen.Program, limits Limits) *Engine {
	return &Engine{prog: p, limits: limits}
}

// Result is a completed run's output: the entry function's return slots
// and the full memory trace.
type Result struct {
	Returns []felt.Felt
	Trace   *Trace
}

// Call executes entrypoint with the given argument cells. On a fatal VM
// error the returned error is a *Error carrying the failing position and
// a frame trail, and the Result still holds the trace truncated at the
// failing step.
func (e *Engine) Call(entrypoint string, args ...felt.Felt) (res *Result, err error) {
	entry, ok := e.prog.FunctionByName(entrypoint)
	if !ok {
		return nil, fmt.Errorf("vm: unknown entrypoint %q", entrypoint)
	}
	if len(args) != int(entry.NumArgs) {
		return nil, fmt.Errorf("vm: entrypoint %q expects %d argument cells, got %d",
			entrypoint, entry.NumArgs, len(args))
	}

	trace := &Trace{}
	ce := &callEngine{
		prog:   e.prog,
		limits: e.limits,
		trace:  trace,
		mem:    newMemory(e.limits, trace),
	}

	// Instructions occupy low memory; the stack begins immediately after.
	for i, cell := range e.prog.Instructions {
		ce.mem.seed(uint32(i), cell)
	}
	stackBase := uint32(len(e.prog.Instructions))

	// Synthetic caller frame: arguments, then the (empty-for-now) return
	// region, then saved (old_fp, return_pc) with the halt sentinel.
	ce.fp = stackBase + entry.NumArgs + entry.NumReturns + 2
	for i, a := range args {
		ce.clock++
		ce.mem.write(stackBase+uint32(i), a, ce.clock)
	}
	ce.clock++
	ce.mem.write(ce.fp-2, 0, ce.clock)
	ce.clock++
	ce.mem.write(ce.fp-1, fromU32(haltSentinel), ce.clock)
	ce.pc = entry.StartPC

	// Traps propagate as a panicked *Error, recovered only here; nothing
	// below this boundary returns a trap as an ordinary error.
	defer func() {
		if r := recover(); r != nil {
			ve, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			ve.PC, ve.FP, ve.Clock = ce.pc, ce.fp, ce.clock
			ce.describeFrames(ve)
			res = &Result{Trace: trace}
			err = ve
		}
	}()

	ce.run()

	rets := make([]felt.Felt, entry.NumReturns)
	for i := range rets {
		ce.clock++
		rets[i] = ce.mem.read(stackBase+entry.NumArgs+uint32(i), ce.clock)
	}
	return &Result{Returns: rets, Trace: trace}, nil
}

// callEngine is the mutable per-run half: PC, FP, clock, step counter, and
// the flat memory. Strictly sequential; one instruction per loop
// iteration, no shared state.
type callEngine struct {
	prog   *codegen.Program
	limits Limits
	mem    *Memory
	trace  *Trace

	pc    uint32
	fp    uint32
	clock uint64
	steps uint64
}

func (ce *callEngine) trap(kind Kind, msg string) {
	panic(newError(kind, ce.pc, ce.fp, ce.clock, msg))
}

func (ce *callEngine) fpAddr(off int) uint32 {
	return uint32(int64(ce.fp) + int64(off))
}

func (ce *callEngine) readFp(off int) felt.Felt {
	ce.clock++
	return ce.mem.read(ce.fpAddr(off), ce.clock)
}

func (ce *callEngine) writeFp(off int, v felt.Felt) {
	ce.clock++
	ce.mem.write(ce.fpAddr(off), v, ce.clock)
}

func (ce *callEngine) readAbs(addr uint32) felt.Felt {
	ce.clock++
	return ce.mem.read(addr, ce.clock)
}

func (ce *callEngine) writeAbs(addr uint32, v felt.Felt) {
	ce.clock++
	ce.mem.write(addr, v, ce.clock)
}

// readU32 assembles a two-limb u32 from the cells at off and off+1.
func (ce *callEngine) readU32(off int) felt.U32 {
	return felt.U32{Lo: ce.readFp(off), Hi: ce.readFp(off + 1)}
}

func (ce *callEngine) writeU32(off int, u felt.U32) {
	ce.writeFp(off, u.Lo)
	ce.writeFp(off+1, u.Hi)
}

// run is the dispatch loop: fetch a variable-width instruction at PC,
// switch on the opcode, perform the effect, advance PC by the
// instruction's width or to the jump target.
func (ce *callEngine) run() {
	instrs := ce.prog.Instructions
	limit := uint32(len(instrs))
	for {
		if ce.steps >= ce.limits.MaxInstructions {
			ce.trap(KindInstructionLimit, fmt.Sprintf("exceeded %d steps", ce.limits.MaxInstructions))
		}
		ce.steps++
		if ce.pc >= limit {
			ce.trap(KindOutOfBoundsPc, "")
		}
		op := codegen.Opcode(instrs[ce.pc].Uint32())
		w := uint32(op.Width())
		if w == 0 {
			ce.trap(KindInvalidOpcode, fmt.Sprintf("opcode %d", instrs[ce.pc].Uint32()))
		}
		if ce.pc+w > limit {
			ce.trap(KindOutOfBoundsPc, "instruction extends past the instruction region")
		}
		operand := func(i uint32) felt.Felt { return instrs[ce.pc+i] }
		off := func(i uint32) int { return operand(i).AsSignedOffset() }
		next := ce.pc + w

		switch op {
		case codegen.OpStoreImm:
			ce.writeFp(off(1), operand(2))
		case codegen.OpStoreAssignFp:
			ce.writeFp(off(1), ce.readFp(off(2)))
		case codegen.OpStoreNegFp:
			ce.writeFp(off(1), ce.readFp(off(2)).Neg())
		case codegen.OpStoreNotFp:
			ce.writeFp(off(1), felt.FromBool(!ce.readFp(off(2)).Bool()))

		case codegen.OpStoreAddFpFp:
			ce.writeFp(off(1), ce.readFp(off(2)).Add(ce.readFp(off(3))))
		case codegen.OpStoreAddFpImm:
			ce.writeFp(off(1), ce.readFp(off(2)).Add(operand(3)))
		case codegen.OpStoreSubFpFp:
			ce.writeFp(off(1), ce.readFp(off(2)).Sub(ce.readFp(off(3))))
		case codegen.OpStoreSubFpImm:
			ce.writeFp(off(1), ce.readFp(off(2)).Sub(operand(3)))
		case codegen.OpStoreMulFpFp:
			ce.writeFp(off(1), ce.readFp(off(2)).Mul(ce.readFp(off(3))))
		case codegen.OpStoreMulFpImm:
			ce.writeFp(off(1), ce.readFp(off(2)).Mul(operand(3)))
		case codegen.OpStoreDivFpFp:
			d := ce.readFp(off(3))
			if d == felt.Zero {
				ce.trap(KindDivisionByZero, "")
			}
			ce.writeFp(off(1), ce.readFp(off(2)).Div(d))
		case codegen.OpStoreDivFpImm:
			d := operand(3)
			if d == felt.Zero {
				ce.trap(KindDivisionByZero, "")
			}
			ce.writeFp(off(1), ce.readFp(off(2)).Div(d))

		case codegen.OpStoreU32Imm:
			ce.writeU32(off(1), felt.U32{Lo: operand(2), Hi: operand(3)})
		case codegen.OpStoreU32AddFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).Add(ce.readU32(off(3))))
		case codegen.OpStoreU32SubFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).Sub(ce.readU32(off(3))))
		case codegen.OpStoreU32MulFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).Mul(ce.readU32(off(3))))
		case codegen.OpStoreU32DivFpFp:
			d := ce.readU32(off(3))
			if d.Uint32() == 0 {
				ce.trap(KindDivisionByZero, "")
			}
			q, _ := ce.readU32(off(2)).DivMod(d)
			ce.writeU32(off(1), q)
		case codegen.OpStoreU32AndFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).And(ce.readU32(off(3))))
		case codegen.OpStoreU32OrFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).Or(ce.readU32(off(3))))
		case codegen.OpStoreU32XorFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).Xor(ce.readU32(off(3))))
		case codegen.OpStoreU32ShlFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).Shl(ce.readU32(off(3))))
		case codegen.OpStoreU32ShrFpFp:
			ce.writeU32(off(1), ce.readU32(off(2)).Shr(ce.readU32(off(3))))

		case codegen.OpJmpAbsImm:
			next = operand(1).Uint32()
		case codegen.OpJnzFpImm:
			if ce.readFp(off(1)) != felt.Zero {
				next = operand(2).Uint32()
			}
		case codegen.OpJEqFpFpImm:
			if ce.readFp(off(1)) == ce.readFp(off(2)) {
				next = operand(3).Uint32()
			}
		case codegen.OpJEqFpImmImm:
			if ce.readFp(off(1)) == operand(2) {
				next = operand(3).Uint32()
			}
		case codegen.OpJNeFpFpImm:
			if ce.readFp(off(1)) != ce.readFp(off(2)) {
				next = operand(3).Uint32()
			}
		case codegen.OpJNeFpImmImm:
			if ce.readFp(off(1)) != operand(2) {
				next = operand(3).Uint32()
			}
		case codegen.OpJU32EqFpFpImm:
			if ce.readU32(off(1)).Eq(ce.readU32(off(2))) {
				next = operand(3).Uint32()
			}
		case codegen.OpJU32NeFpFpImm:
			if !ce.readU32(off(1)).Eq(ce.readU32(off(2))) {
				next = operand(3).Uint32()
			}
		case codegen.OpJU32LtFpFpImm:
			if ce.readU32(off(1)).Lt(ce.readU32(off(2))) {
				next = operand(3).Uint32()
			}
		case codegen.OpJU32LeFpFpImm:
			if ce.readU32(off(1)).Le(ce.readU32(off(2))) {
				next = operand(3).Uint32()
			}
		case codegen.OpJU32GtFpFpImm:
			if ce.readU32(off(1)).Gt(ce.readU32(off(2))) {
				next = operand(3).Uint32()
			}
		case codegen.OpJU32GeFpFpImm:
			if ce.readU32(off(1)).Ge(ce.readU32(off(2))) {
				next = operand(3).Uint32()
			}

		case codegen.OpCallAbsImm:
			delta := operand(1).Uint32()
			newFP := ce.fp + delta
			ce.writeAbs(newFP-2, fromU32(ce.fp))
			ce.writeAbs(newFP-1, fromU32(ce.pc+w))
			ce.fp = newFP
			next = operand(2).Uint32()
		case codegen.OpRet:
			oldFP := ce.readFp(codegen.OldFPOffset())
			retPC := ce.readFp(codegen.ReturnPCOffset())
			if retPC.Uint32() == haltSentinel {
				return
			}
			ce.fp = oldFP.Uint32()
			next = retPC.Uint32()

		case codegen.OpFrameAllocFp:
			ce.writeFp(off(1), fromU32(ce.fpAddr(off(2))))
		case codegen.OpHeapAllocCellsImm:
			base, err := ce.mem.allocCells(operand(2).Uint32(), ce.bumpClock(), ce.limits)
			if err != nil {
				panic(err)
			}
			ce.writeFp(off(1), fromU32(base))
		case codegen.OpHeapAllocCellsFp:
			count := ce.readFp(off(2)).Uint32() * operand(3).Uint32()
			base, err := ce.mem.allocCells(count, ce.bumpClock(), ce.limits)
			if err != nil {
				panic(err)
			}
			ce.writeFp(off(1), fromU32(base))
		case codegen.OpGepFpImm:
			ce.writeFp(off(1), ce.readFp(off(2)).Add(operand(3)))
		case codegen.OpGepFpFp:
			scaled := ce.readFp(off(3)).Mul(operand(4))
			ce.writeFp(off(1), ce.readFp(off(2)).Add(scaled))
		case codegen.OpLoadIndirectFp:
			addr := ce.readFp(off(2)).Uint32() + operand(3).Uint32()
			ce.writeFp(off(1), ce.readAbs(addr))
		case codegen.OpStoreIndirectFp:
			addr := ce.readFp(off(1)).Uint32() + operand(2).Uint32()
			ce.writeAbs(addr, ce.readFp(off(3)))

		case codegen.OpAssertEq:
			if ce.readFp(off(1)) != ce.readFp(off(2)) {
				ce.trap(KindAssertionFailed, "assert_eq")
			}
		case codegen.OpCastU32Felt:
			f, ok := ce.readU32(off(2)).ToFelt()
			if !ok {
				ce.trap(KindAssertionFailed, "u32 to felt cast out of field range")
			}
			ce.writeFp(off(1), f)

		default:
			ce.trap(KindInvalidOpcode, op.String())
		}

		ce.pc = next
	}
}

func (ce *callEngine) bumpClock() uint64 {
	ce.clock++
	return ce.clock
}

// describeFrames walks the saved-FP chain, innermost first, attaching one
// line per live frame to the error.
func (ce *callEngine) describeFrames(e *Error) {
	fp := ce.fp
	pc := ce.pc
	for depth := 0; depth < 64; depth++ {
		e.WithFrame(fmt.Sprintf("%s (pc=%d, fp=%d)", ce.funcNameAt(pc), pc, fp))
		retPC, ok := ce.mem.peek(fp - 1)
		if !ok || retPC.Uint32() == haltSentinel {
			return
		}
		oldFP, _ := ce.mem.peek(fp - 2)
		pc = retPC.Uint32()
		fp = oldFP.Uint32()
	}
}

// funcNameAt maps a pc to the function whose body contains it: the entry
// with the greatest start_pc not past pc.
func (ce *callEngine) funcNameAt(pc uint32) string {
	best := "<unknown>"
	var bestStart uint32
	found := false
	for _, f := range ce.prog.Functions {
		if f.StartPC <= pc && (!found || f.StartPC >= bestStart) {
			best, bestStart, found = f.Name, f.StartPC, true
		}
	}
	return best
}
