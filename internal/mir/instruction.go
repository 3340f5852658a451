package mir

import (
	"fmt"
	"strings"

	"github.com/cairo-m/cairom/internal/layout"
)

// InstKind tags which variant of the flattened Instruction struct is in
// play. Rather than one interface implementation per instruction kind,
// every instruction is the same struct shape with a kind tag and a set
// of opaque, kind-dependent fields. This keeps the Function's
// instruction arena a single flat, cache-friendly slice and keeps
// rewriting (as the optimizer does) a matter of overwriting fields
// rather than allocating a new node of a different Go type.
type InstKind uint8

const (
	InstInvalid InstKind = iota
	InstAssign
	InstUnaryOp
	InstBinaryOp
	InstMakeTuple
	InstExtractTuple
	InstInsertTuple
	InstMakeStruct
	InstExtractField
	InstInsertField
	InstFrameAlloc
	InstHeapAllocCells
	InstLoad
	InstStore
	InstGetElementPtr
	InstAddressOf
	InstCall
	InstCast
	InstDebug
)

func (k InstKind) String() string {
	switch k {
	case InstAssign:
		return "Assign"
	case InstUnaryOp:
		return "UnaryOp"
	case InstBinaryOp:
		return "BinaryOp"
	case InstMakeTuple:
		return "MakeTuple"
	case InstExtractTuple:
		return "ExtractTuple"
	case InstInsertTuple:
		return "InsertTuple"
	case InstMakeStruct:
		return "MakeStruct"
	case InstExtractField:
		return "ExtractField"
	case InstInsertField:
		return "InsertField"
	case InstFrameAlloc:
		return "FrameAlloc"
	case InstHeapAllocCells:
		return "HeapAllocCells"
	case InstLoad:
		return "Load"
	case InstStore:
		return "Store"
	case InstGetElementPtr:
		return "GetElementPtr"
	case InstAddressOf:
		return "AddressOf"
	case InstCall:
		return "Call"
	case InstCast:
		return "Cast"
	case InstDebug:
		return "Debug"
	default:
		return "<invalid>"
	}
}

// UnaryOp/BinaryOp mirror typedast's operator sets one-to-one; kept as a
// distinct type so MIR does not depend on typedast.
type UnaryOp = opUnary
type opUnary uint8

const (
	OpNeg opUnary = iota
	OpNot
)

func (o opUnary) String() string {
	if o == OpNeg {
		return "neg"
	}
	return "not"
}

type BinaryOp = opBinary
type opBinary uint8

const (
	OpAdd opBinary = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
)

var binaryOpNames = [...]string{
	"add", "sub", "mul", "div", "eq", "neq", "lt", "le", "gt", "ge",
	"and", "or", "xor", "shl", "shr",
}

func (o opBinary) String() string {
	if int(o) < len(binaryOpNames) {
		return binaryOpNames[o]
	}
	return "<invalid-op>"
}

// IsComparison reports whether o produces a bool result, used both by the
// MIR builder (to decide whether an if-condition can fuse into BranchOp)
// and by the optimizer's constant folder.
func (o opBinary) IsComparison() bool {
	return o >= OpEq && o <= OpGe
}

// Instruction is one non-terminator MIR instruction. Only the fields
// relevant to Kind are meaningful; see the comment on each Kind's
// constructor for which fields it reads.
type Instruction struct {
	Kind InstKind
	Dest Value // ValueInvalid if this instruction has no destination
	Type layout.Type

	// Operands. Not every field is used by every Kind; see New* helpers.
	Src, Src2, Src3 Value
	Args            []Value
	Imm             uint64
	HasImm          bool

	UOp UnaryOp
	BOp BinaryOp

	Index int
	Field string

	AggType   layout.Type // struct type for MakeStruct; element type for FrameAlloc/HeapAllocCells/GetElementPtr
	FieldSrcs []Value     // parallel to AggType.FieldNames for MakeStruct
	Count     int         // element count for FrameAlloc

	Callee FunctionID
	Dests  []Value // multi-value destinations for Call

	FromType, ToType layout.Type

	Comment string
}

// NewAssign creates `Assign(dst, src)`.
func NewAssign(dst Value, t layout.Type, src Value) Instruction {
	return Instruction{Kind: InstAssign, Dest: dst, Type: t, Src: src}
}

// NewAssignImm creates `Assign(dst, literal)`.
func NewAssignImm(dst Value, t layout.Type, imm uint64) Instruction {
	return Instruction{Kind: InstAssign, Dest: dst, Type: t, Imm: imm, HasImm: true}
}

// NewUnaryOp creates `UnaryOp(dst, op, src)`.
func NewUnaryOp(dst Value, t layout.Type, op UnaryOp, src Value) Instruction {
	return Instruction{Kind: InstUnaryOp, Dest: dst, Type: t, UOp: op, Src: src}
}

// NewBinaryOp creates `BinaryOp(dst, op, lhs, rhs)`.
func NewBinaryOp(dst Value, t layout.Type, op BinaryOp, lhs, rhs Value) Instruction {
	return Instruction{Kind: InstBinaryOp, Dest: dst, Type: t, BOp: op, Src: lhs, Src2: rhs}
}

// NewMakeTuple creates `MakeTuple(dst, [src...])`.
func NewMakeTuple(dst Value, t layout.Type, elems []Value) Instruction {
	return Instruction{Kind: InstMakeTuple, Dest: dst, Type: t, Args: elems}
}

// NewExtractTuple creates `ExtractTuple(dst, src, index)`.
func NewExtractTuple(dst Value, t layout.Type, src Value, index int) Instruction {
	return Instruction{Kind: InstExtractTuple, Dest: dst, Type: t, Src: src, Index: index}
}

// NewInsertTuple creates `InsertTuple(dst, src, index, value)`.
func NewInsertTuple(dst Value, t layout.Type, src Value, index int, value Value) Instruction {
	return Instruction{Kind: InstInsertTuple, Dest: dst, Type: t, Src: src, Index: index, Src2: value}
}

// NewMakeStruct creates `MakeStruct(dst, struct_ty, [field->src])`.
func NewMakeStruct(dst Value, structTy layout.Type, fieldSrcs []Value) Instruction {
	return Instruction{Kind: InstMakeStruct, Dest: dst, Type: structTy, AggType: structTy, FieldSrcs: fieldSrcs}
}

// NewExtractField creates `ExtractField(dst, src, field)`.
func NewExtractField(dst Value, t layout.Type, src Value, fieldIndex int, fieldName string) Instruction {
	return Instruction{Kind: InstExtractField, Dest: dst, Type: t, Src: src, Index: fieldIndex, Field: fieldName}
}

// NewInsertField creates `InsertField(dst, src, field, value)`.
func NewInsertField(dst Value, t layout.Type, src Value, fieldIndex int, fieldName string, value Value) Instruction {
	return Instruction{Kind: InstInsertField, Dest: dst, Type: t, Src: src, Index: fieldIndex, Field: fieldName, Src2: value}
}

// NewFrameAlloc creates `FrameAlloc(dst_ptr, element_ty, count)`.
func NewFrameAlloc(dst Value, elemTy layout.Type, count int) Instruction {
	return Instruction{Kind: InstFrameAlloc, Dest: dst, Type: layout.Pointer(elemTy), AggType: elemTy, Count: count}
}

// NewHeapAllocCells creates `HeapAllocCells(dst_ptr, count)`. Count is a
// compile-time constant element count; a `new T[n]` with non-constant n
// passes n through Src as a dynamic element-count operand instead. Both
// forms are scaled to cells by the element size during codegen.
func NewHeapAllocCells(dst Value, elemTy layout.Type, cellCountImm int, dynamicCount Value) Instruction {
	return Instruction{Kind: InstHeapAllocCells, Dest: dst, Type: layout.Pointer(elemTy), AggType: elemTy, Count: cellCountImm, Src: dynamicCount}
}

// NewLoad creates `Load(dst, place, ty)`. A place is a base pointer
// value; projection offsets are folded into the pointer ahead of time by
// GetElementPtr lowering.
func NewLoad(dst Value, t layout.Type, base Value) Instruction {
	return Instruction{Kind: InstLoad, Dest: dst, Type: t, Src: base}
}

// NewStore creates `Store(place, value, ty)`.
func NewStore(t layout.Type, base Value, value Value) Instruction {
	return Instruction{Kind: InstStore, Dest: ValueInvalid, Type: t, Src: base, Src2: value}
}

// NewGetElementPtr creates `GetElementPtr(dst_ptr, base_ptr, index, element_ty)`.
func NewGetElementPtr(dst Value, elemTy layout.Type, basePtr Value, index Value) Instruction {
	return Instruction{Kind: InstGetElementPtr, Dest: dst, Type: layout.Pointer(elemTy), AggType: elemTy, Src: basePtr, Src2: index}
}

// NewAddressOf creates `AddressOf(dst_ptr, value)`.
func NewAddressOf(dst Value, t layout.Type, value Value) Instruction {
	return Instruction{Kind: InstAddressOf, Dest: dst, Type: t, Src: value}
}

// NewCall creates `Call(dsts, callee_id, [args])`.
func NewCall(dests []Value, retTypes []layout.Type, callee FunctionID, args []Value) Instruction {
	var t layout.Type
	if len(retTypes) == 1 {
		t = retTypes[0]
	} else {
		t = layout.Tuple(retTypes...)
	}
	return Instruction{Kind: InstCall, Dest: ValueInvalid, Type: t, Dests: dests, Callee: callee, Args: args}
}

// NewCast creates `Cast(dst, src, from_ty, to_ty)`. Only u32->felt is a
// legal cast; the builder enforces that upstream.
func NewCast(dst Value, src Value, from, to layout.Type) Instruction {
	return Instruction{Kind: InstCast, Dest: dst, Type: to, Src: src, FromType: from, ToType: to}
}

// NewDebug creates a non-semantic debug/comment marker.
func NewDebug(comment string) Instruction {
	return Instruction{Kind: InstDebug, Dest: ValueInvalid, Comment: comment}
}

// Defs returns every Value this instruction defines (zero or one for all
// kinds except Call, which may define multiple destinations for tuple
// returns).
func (i *Instruction) Defs() []Value {
	if i.Kind == InstCall {
		return i.Dests
	}
	if i.Dest.Valid() {
		return []Value{i.Dest}
	}
	return nil
}

// Uses returns every Value this instruction reads, in a freshly allocated
// slice (safe for callers to mutate). Kind-aware: a Value id of 0 is
// legitimate, so unused operand fields (which default to 0) must not be
// reported.
func (i *Instruction) Uses() []Value {
	var uses []Value
	add := func(vs ...Value) {
		for _, v := range vs {
			if v.Valid() {
				uses = append(uses, v)
			}
		}
	}
	switch i.Kind {
	case InstAssign:
		if !i.HasImm {
			add(i.Src)
		}
	case InstUnaryOp, InstExtractTuple, InstExtractField, InstAddressOf, InstLoad, InstCast:
		add(i.Src)
	case InstBinaryOp, InstInsertTuple, InstInsertField, InstStore, InstGetElementPtr:
		add(i.Src, i.Src2)
	case InstMakeTuple:
		add(i.Args...)
	case InstMakeStruct:
		add(i.FieldSrcs...)
	case InstHeapAllocCells:
		add(i.Src)
	case InstCall:
		add(i.Args...)
	}
	return uses
}

// IsPure reports whether this instruction may be removed by DCE when it
// has no uses: stores, calls, and heap allocations are never pure.
func (i *Instruction) IsPure() bool {
	switch i.Kind {
	case InstStore, InstCall, InstHeapAllocCells, InstDebug:
		return false
	default:
		return true
	}
}

// String renders a single instruction in the canonical textual MIR form
// consumed by the pretty-printer's snapshot tests.
func (i *Instruction) String() string {
	var b strings.Builder
	if i.Dest.Valid() {
		fmt.Fprintf(&b, "%s = ", i.Dest)
	} else if len(i.Dests) > 0 {
		parts := make([]string, len(i.Dests))
		for j, d := range i.Dests {
			parts[j] = d.String()
		}
		fmt.Fprintf(&b, "(%s) = ", strings.Join(parts, ", "))
	}
	switch i.Kind {
	case InstAssign:
		if i.HasImm {
			fmt.Fprintf(&b, "assign %d", i.Imm)
		} else {
			fmt.Fprintf(&b, "assign %s", i.Src)
		}
	case InstUnaryOp:
		fmt.Fprintf(&b, "%s %s", i.UOp, i.Src)
	case InstBinaryOp:
		fmt.Fprintf(&b, "%s %s, %s", i.BOp, i.Src, i.Src2)
	case InstMakeTuple:
		fmt.Fprintf(&b, "make_tuple %s", valueList(i.Args))
	case InstExtractTuple:
		fmt.Fprintf(&b, "extract_tuple %s, %d", i.Src, i.Index)
	case InstInsertTuple:
		fmt.Fprintf(&b, "insert_tuple %s, %d, %s", i.Src, i.Index, i.Src2)
	case InstMakeStruct:
		fmt.Fprintf(&b, "make_struct %s %s", i.AggType.StructName, valueList(i.FieldSrcs))
	case InstExtractField:
		fmt.Fprintf(&b, "extract_field %s, %s", i.Src, i.Field)
	case InstInsertField:
		fmt.Fprintf(&b, "insert_field %s, %s, %s", i.Src, i.Field, i.Src2)
	case InstFrameAlloc:
		fmt.Fprintf(&b, "frame_alloc %s, %d", i.AggType, i.Count)
	case InstHeapAllocCells:
		if i.Src.Valid() {
			fmt.Fprintf(&b, "heap_alloc_cells %s", i.Src)
		} else {
			fmt.Fprintf(&b, "heap_alloc_cells %d", i.Count)
		}
	case InstLoad:
		fmt.Fprintf(&b, "load %s, %s", i.Src, i.Type)
	case InstStore:
		fmt.Fprintf(&b, "store %s, %s, %s", i.Src, i.Src2, i.Type)
	case InstGetElementPtr:
		fmt.Fprintf(&b, "gep %s, %s, %s", i.Src, i.Src2, i.AggType)
	case InstAddressOf:
		fmt.Fprintf(&b, "address_of %s", i.Src)
	case InstCall:
		fmt.Fprintf(&b, "call fn%d %s", i.Callee, valueList(i.Args))
	case InstCast:
		fmt.Fprintf(&b, "cast %s, %s -> %s", i.Src, i.FromType, i.ToType)
	case InstDebug:
		fmt.Fprintf(&b, "// %s", i.Comment)
	}
	return b.String()
}

func valueList(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
