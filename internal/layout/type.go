// Package layout implements the Data-Layout Oracle: the single source of
// truth mapping a semantic Cairo-M type to its slot size and field offsets,
// consulted by both the MIR builder and the code generator.
package layout

import (
	"fmt"
	"strings"
)

// Kind distinguishes the semantic type categories of the language.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFelt
	KindU32
	KindBool
	KindUnit
	KindTuple
	KindStruct
	KindArray
	KindPointer
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindFelt:
		return "felt"
	case KindU32:
		return "u32"
	case KindBool:
		return "bool"
	case KindUnit:
		return "unit"
	case KindTuple:
		return "tuple"
	case KindStruct:
		return "struct"
	case KindArray:
		return "array"
	case KindPointer:
		return "pointer"
	case KindFunc:
		return "fn"
	default:
		return "invalid"
	}
}

// Type is an immutable description of a semantic Cairo-M type. Composite
// types carry their component types so the Oracle can compute layouts
// structurally. Type holds slices and so is not comparable; the Oracle
// caches layouts under the canonical string from key().
type Type struct {
	Kind Kind

	// StructName/FieldNames are set for KindStruct; Elems holds field types
	// in declaration order (parallel to FieldNames).
	StructName string
	FieldNames []string

	// Elems holds tuple component types (KindTuple) or struct field types
	// (KindStruct), in declaration order.
	Elems []Type

	// Elem is the element type for KindArray/KindPointer.
	Elem *Type

	// Len is the array length for KindArray.
	Len int

	// Params/Result describe a KindFunc type; functions occupy zero slots.
	Params []Type
	Result *Type
}

// Felt, U32, Bool, Unit are the primitive type singletons.
var (
	Felt = Type{Kind: KindFelt}
	U32  = Type{Kind: KindU32}
	Bool = Type{Kind: KindBool}
	Unit = Type{Kind: KindUnit}
)

// Tuple builds a tuple type from its component types.
func Tuple(elems ...Type) Type {
	return Type{Kind: KindTuple, Elems: elems}
}

// Struct builds a struct type from parallel field-name/field-type slices.
func Struct(name string, fieldNames []string, fieldTypes []Type) Type {
	return Type{Kind: KindStruct, StructName: name, FieldNames: fieldNames, Elems: fieldTypes}
}

// Array builds a fixed-length array type.
func Array(elem Type, n int) Type {
	return Type{Kind: KindArray, Elem: &elem, Len: n}
}

// Pointer builds a pointer-to-elem type. The pointee type is retained so
// GetElementPtr index arithmetic can scale by the pointee's slot size.
func Pointer(elem Type) Type {
	return Type{Kind: KindPointer, Elem: &elem}
}

// Func builds a function-signature type. Functions have zero runtime
// footprint; the type exists for type-checking call sites.
func Func(params []Type, result Type) Type {
	return Type{Kind: KindFunc, Params: params, Result: &result}
}

// key returns a canonical string identity for this type, used as the
// Oracle cache key. Two structurally-equal Type values always produce the
// same key, satisfying the "layout is a pure function of type" invariant.
func (t Type) key() string {
	var b strings.Builder
	t.writeKey(&b)
	return b.String()
}

func (t Type) writeKey(b *strings.Builder) {
	switch t.Kind {
	case KindTuple:
		b.WriteString("(")
		for i, e := range t.Elems {
			if i > 0 {
				b.WriteByte(',')
			}
			e.writeKey(b)
		}
		b.WriteString(")")
	case KindStruct:
		fmt.Fprintf(b, "struct %s{", t.StructName)
		for i, e := range t.Elems {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%s:", t.FieldNames[i])
			e.writeKey(b)
		}
		b.WriteString("}")
	case KindArray:
		b.WriteString("[")
		t.Elem.writeKey(b)
		fmt.Fprintf(b, ";%d]", t.Len)
	case KindPointer:
		b.WriteString("*")
		t.Elem.writeKey(b)
	case KindFunc:
		b.WriteString("fn(")
		for i, p := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			p.writeKey(b)
		}
		b.WriteString(")->")
		t.Result.writeKey(b)
	default:
		b.WriteString(t.Kind.String())
	}
}

// String implements fmt.Stringer with the same canonical form as key().
func (t Type) String() string { return t.key() }

// IsAggregate reports whether t is a tuple or struct (the two "first-class
// aggregate" kinds that MakeTuple/MakeStruct/Extract*/Insert* operate on).
func (t Type) IsAggregate() bool {
	return t.Kind == KindTuple || t.Kind == KindStruct
}
