// Package testprog builds the small typed-AST programs shared by the
// compiler and VM test suites — the Cairo-M analogue of keeping reusable
// test fixtures in an internal testing package rather than duplicating
// hand-built trees in every _test.go file.
package testprog

import (
	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/typedast"
)

func lit(t layout.Type, v uint64) *typedast.LiteralExpr {
	e := &typedast.LiteralExpr{Value: v}
	e.Type = t
	return e
}

// FeltLit is a felt literal.
func FeltLit(v uint64) *typedast.LiteralExpr { return lit(layout.Felt, v) }

// U32Lit is a u32 literal holding the full 32-bit value.
func U32Lit(v uint64) *typedast.LiteralExpr { return lit(layout.U32, v) }

// Name references a binding.
func Name(n string, t layout.Type) *typedast.NameExpr {
	e := &typedast.NameExpr{Name: n}
	e.Type = t
	return e
}

// Bin builds a binary expression of result type t.
func Bin(op typedast.BinaryOp, t layout.Type, x, y typedast.Expr) *typedast.BinaryExpr {
	e := &typedast.BinaryExpr{Op: op, X: x, Y: y}
	e.Type = t
	return e
}

// CallF builds a call returning type t.
func CallF(callee string, t layout.Type, args ...typedast.Expr) *typedast.CallExpr {
	e := &typedast.CallExpr{Callee: callee, Args: args}
	e.Type = t
	return e
}

// Let binds name to init.
func Let(name string, t layout.Type, init typedast.Expr) *typedast.LetStmt {
	return &typedast.LetStmt{Name: name, Type: t, Init: init}
}

// AssignName rebinds a plain name.
func AssignName(name string, t layout.Type, v typedast.Expr) *typedast.AssignStmt {
	return &typedast.AssignStmt{Target: Name(name, t), Value: v}
}

// Ret returns the given values.
func Ret(values ...typedast.Expr) *typedast.ReturnStmt {
	return &typedast.ReturnStmt{Values: values}
}

// Fn builds a function.
func Fn(name string, params []typedast.Param, ret layout.Type, exported bool, body ...typedast.Stmt) *typedast.Function {
	return &typedast.Function{Name: name, Params: params, ReturnType: ret, Exported: exported, Body: body}
}

// Program wraps functions into a program.
func Program(fns ...*typedast.Function) *typedast.Program {
	return &typedast.Program{Functions: fns}
}

// Fib is scenario S1: recursive fib with main returning fib(10) == 55.
func Fib() *typedast.Program {
	n := func() *typedast.NameExpr { return Name("n", layout.Felt) }
	fib := Fn("fib", []typedast.Param{{Name: "n", Type: layout.Felt}}, layout.Felt, false,
		&typedast.IfStmt{
			Cond: Bin(typedast.BinEq, layout.Bool, n(), FeltLit(0)),
			Then: []typedast.Stmt{Ret(FeltLit(0))},
		},
		&typedast.IfStmt{
			Cond: Bin(typedast.BinEq, layout.Bool, n(), FeltLit(1)),
			Then: []typedast.Stmt{Ret(FeltLit(1))},
		},
		Ret(Bin(typedast.BinAdd, layout.Felt,
			CallF("fib", layout.Felt, Bin(typedast.BinSub, layout.Felt, n(), FeltLit(1))),
			CallF("fib", layout.Felt, Bin(typedast.BinSub, layout.Felt, n(), FeltLit(2))))),
	)
	main := Fn("main", nil, layout.Felt, true, Ret(CallF("fib", layout.Felt, FeltLit(10))))
	return Program(fib, main)
}

// U32PairType is the struct used by scenario S2.
func U32PairType() layout.Type {
	return layout.Struct("U32Pair", []string{"a", "b"}, []layout.Type{layout.U32, layout.U32})
}

// StructCopy is scenario S2: build a U32Pair{100,200}, copy it, return
// the field sum == 300.
func StructCopy() *typedast.Program {
	pair := U32PairType()
	mk := &typedast.StructExpr{FieldNames: []string{"a", "b"}, Values: []typedast.Expr{U32Lit(100), U32Lit(200)}}
	mk.Type = pair
	qa := &typedast.FieldExpr{Base: Name("q", pair), Field: "a"}
	qa.Type = layout.U32
	qb := &typedast.FieldExpr{Base: Name("q", pair), Field: "b"}
	qb.Type = layout.U32
	main := Fn("main", nil, layout.U32, true,
		Let("p", pair, mk),
		Let("q", pair, Name("p", pair)),
		Ret(Bin(typedast.BinAdd, layout.U32, qa, qb)),
	)
	return Program(main)
}

// InPlaceMutation is scenario S3: rebinding through assignments == 16.
func InPlaceMutation() *typedast.Program {
	a := func() *typedast.NameExpr { return Name("a", layout.Felt) }
	b := func() *typedast.NameExpr { return Name("b", layout.Felt) }
	main := Fn("main", nil, layout.Felt, true,
		Let("a", layout.Felt, FeltLit(5)),
		AssignName("a", layout.Felt, Bin(typedast.BinAdd, layout.Felt, a(), FeltLit(1))),
		Let("b", layout.Felt, FeltLit(10)),
		AssignName("b", layout.Felt, Bin(typedast.BinAdd, layout.Felt, b(), a())),
		Ret(b()),
	)
	return Program(main)
}

// Ackermann is scenario S4: ack(2,2) == 7.
func Ackermann() *typedast.Program {
	m := func() *typedast.NameExpr { return Name("m", layout.Felt) }
	n := func() *typedast.NameExpr { return Name("n", layout.Felt) }
	params := []typedast.Param{{Name: "m", Type: layout.Felt}, {Name: "n", Type: layout.Felt}}
	ack := Fn("ack", params, layout.Felt, false,
		&typedast.IfStmt{
			Cond: Bin(typedast.BinEq, layout.Bool, m(), FeltLit(0)),
			Then: []typedast.Stmt{Ret(Bin(typedast.BinAdd, layout.Felt, n(), FeltLit(1)))},
		},
		&typedast.IfStmt{
			Cond: Bin(typedast.BinEq, layout.Bool, n(), FeltLit(0)),
			Then: []typedast.Stmt{Ret(CallF("ack", layout.Felt,
				Bin(typedast.BinSub, layout.Felt, m(), FeltLit(1)), FeltLit(1)))},
		},
		Ret(CallF("ack", layout.Felt,
			Bin(typedast.BinSub, layout.Felt, m(), FeltLit(1)),
			CallF("ack", layout.Felt, m(), Bin(typedast.BinSub, layout.Felt, n(), FeltLit(1))))),
	)
	main := Fn("main", nil, layout.Felt, true, Ret(CallF("ack", layout.Felt, FeltLit(2), FeltLit(2))))
	return Program(ack, main)
}

// ArraySum is scenario S5: sum a five-element u32 array with a while
// loop == [15, 0].
func ArraySum() *typedast.Program {
	arrTy := layout.Array(layout.U32, 5)
	arr := &typedast.ArrayExpr{Elems: []typedast.Expr{U32Lit(1), U32Lit(2), U32Lit(3), U32Lit(4), U32Lit(5)}}
	arr.Type = arrTy
	i := func() *typedast.NameExpr { return Name("i", layout.Felt) }
	sum := func() *typedast.NameExpr { return Name("sum", layout.U32) }
	elem := &typedast.IndexExpr{Base: Name("arr", arrTy), Index: i()}
	elem.Type = layout.U32
	main := Fn("main", nil, layout.U32, true,
		Let("arr", arrTy, arr),
		Let("i", layout.Felt, FeltLit(0)),
		Let("sum", layout.U32, U32Lit(0)),
		&typedast.WhileStmt{
			Cond: Bin(typedast.BinNeq, layout.Bool, i(), FeltLit(5)),
			Body: []typedast.Stmt{
				AssignName("sum", layout.U32, Bin(typedast.BinAdd, layout.U32, sum(), elem)),
				AssignName("i", layout.Felt, Bin(typedast.BinAdd, layout.Felt, i(), FeltLit(1))),
			},
		},
		Ret(sum()),
	)
	return Program(main)
}

// Cast is scenario S6: a u32 literal cast to felt; v == 2^31-1 aborts,
// anything below P succeeds.
func Cast(v uint64) *typedast.Program {
	cast := &typedast.CastExpr{X: Name("x", layout.U32)}
	cast.Type = layout.Felt
	main := Fn("main", nil, layout.Felt, true,
		Let("x", layout.U32, U32Lit(v)),
		Ret(cast),
	)
	return Program(main)
}

// DivByZero divides by a literal zero, which constant folding must leave
// for the VM to trap on.
func DivByZero() *typedast.Program {
	main := Fn("main", nil, layout.Felt, true,
		Ret(Bin(typedast.BinDiv, layout.Felt, FeltLit(1), FeltLit(0))),
	)
	return Program(main)
}

// InfiniteLoop is boundary B5's non-terminating case: the break condition
// never holds.
func InfiniteLoop() *typedast.Program {
	main := Fn("main", nil, layout.Felt, true,
		&typedast.LoopStmt{Body: []typedast.Stmt{
			&typedast.IfStmt{
				Cond: Bin(typedast.BinEq, layout.Bool, FeltLit(0), FeltLit(1)),
				Then: []typedast.Stmt{&typedast.BreakStmt{}},
			},
		}},
		Ret(FeltLit(0)),
	)
	return Program(main)
}

// CountLoop is boundary B5's terminating case: loop with a break once a
// counter reaches its bound.
func CountLoop() *typedast.Program {
	i := func() *typedast.NameExpr { return Name("i", layout.Felt) }
	main := Fn("main", nil, layout.Felt, true,
		Let("i", layout.Felt, FeltLit(0)),
		&typedast.LoopStmt{Body: []typedast.Stmt{
			&typedast.IfStmt{
				Cond: Bin(typedast.BinEq, layout.Bool, i(), FeltLit(4)),
				Then: []typedast.Stmt{&typedast.BreakStmt{}},
			},
			AssignName("i", layout.Felt, Bin(typedast.BinAdd, layout.Felt, i(), FeltLit(1))),
		}},
		Ret(i()),
	)
	return Program(main)
}

// HeapAlloc allocates a three-element u32 buffer on the heap, writes two
// elements through the pointer, and returns their sum.
func HeapAlloc() *typedast.Program {
	ptrTy := layout.Pointer(layout.U32)
	alloc := &typedast.NewExpr{ElemType: layout.U32, Count: FeltLit(3)}
	alloc.Type = ptrTy
	idx := func(i uint64) *typedast.IndexExpr {
		e := &typedast.IndexExpr{Base: Name("p", ptrTy), Index: FeltLit(i)}
		e.Type = layout.U32
		return e
	}
	main := Fn("main", nil, layout.U32, true,
		Let("p", ptrTy, alloc),
		&typedast.AssignStmt{Target: idx(0), Value: U32Lit(7)},
		&typedast.AssignStmt{Target: idx(1), Value: U32Lit(8)},
		Ret(Bin(typedast.BinAdd, layout.U32, idx(0), idx(1))),
	)
	return Program(main)
}

// AddressOf materialises a local with &x, mutates it through the name,
// and reads it back through the pointer.
func AddressOf() *typedast.Program {
	ptrTy := layout.Pointer(layout.Felt)
	addr := &typedast.AddrOfExpr{Operand: Name("x", layout.Felt)}
	addr.Type = ptrTy
	deref := &typedast.IndexExpr{Base: Name("p", ptrTy), Index: FeltLit(0)}
	deref.Type = layout.Felt
	main := Fn("main", nil, layout.Felt, true,
		Let("x", layout.Felt, FeltLit(5)),
		Let("p", ptrTy, addr),
		AssignName("x", layout.Felt, FeltLit(7)),
		Ret(deref),
	)
	return Program(main)
}

// U32Wrap exercises boundaries B1 and B2: 0xFFFFFFFF+1 and 0-1.
func U32Wrap(base, delta uint64, sub bool) *typedast.Program {
	op := typedast.BinAdd
	if sub {
		op = typedast.BinSub
	}
	x := func() *typedast.NameExpr { return Name("x", layout.U32) }
	main := Fn("main", nil, layout.U32, true,
		Let("x", layout.U32, U32Lit(base)),
		Ret(Bin(op, layout.U32, x(), U32Lit(delta))),
	)
	return Program(main)
}

// ForLoop sums 0..4 with a counted for loop == 10.
func ForLoop() *typedast.Program {
	i := func() *typedast.NameExpr { return Name("i", layout.Felt) }
	sum := func() *typedast.NameExpr { return Name("sum", layout.Felt) }
	main := Fn("main", nil, layout.Felt, true,
		Let("sum", layout.Felt, FeltLit(0)),
		&typedast.ForStmt{
			Init: Let("i", layout.Felt, FeltLit(0)),
			Cond: Bin(typedast.BinNeq, layout.Bool, i(), FeltLit(5)),
			Post: AssignName("i", layout.Felt, Bin(typedast.BinAdd, layout.Felt, i(), FeltLit(1))),
			Body: []typedast.Stmt{
				AssignName("sum", layout.Felt, Bin(typedast.BinAdd, layout.Felt, sum(), i())),
			},
		},
		Ret(sum()),
	)
	return Program(main)
}

// TupleReturn calls a function returning (felt, felt) and sums the
// components == 7.
func TupleReturn() *typedast.Program {
	pairTy := layout.Tuple(layout.Felt, layout.Felt)
	pair := Fn("pair", nil, pairTy, false,
		Ret(FeltLit(3), FeltLit(4)),
	)
	idx := func(i uint64) *typedast.IndexExpr {
		e := &typedast.IndexExpr{Base: Name("t", pairTy), Index: FeltLit(i)}
		e.Type = layout.Felt
		return e
	}
	main := Fn("main", nil, layout.Felt, true,
		Let("t", pairTy, CallF("pair", pairTy)),
		Ret(Bin(typedast.BinAdd, layout.Felt, idx(0), idx(1))),
	)
	return Program(pair, main)
}

// TupleInsert writes one component of an SSA tuple and sums == 6.
func TupleInsert() *typedast.Program {
	pairTy := layout.Tuple(layout.Felt, layout.Felt)
	mk := &typedast.TupleExpr{Elems: []typedast.Expr{FeltLit(1), FeltLit(2)}}
	mk.Type = pairTy
	idx := func(i uint64) *typedast.IndexExpr {
		e := &typedast.IndexExpr{Base: Name("t", pairTy), Index: FeltLit(i)}
		e.Type = layout.Felt
		return e
	}
	main := Fn("main", nil, layout.Felt, true,
		Let("t", pairTy, mk),
		&typedast.AssignStmt{Target: idx(1), Value: FeltLit(5)},
		Ret(Bin(typedast.BinAdd, layout.Felt, idx(0), idx(1))),
	)
	return Program(main)
}

// Negate negates a let-bound felt and adds 6, == 1. The operand is a
// literal, so the optimizer folds the whole expression to a constant.
func Negate() *typedast.Program {
	neg := &typedast.UnaryExpr{Op: typedast.UnaryNeg, X: Name("x", layout.Felt)}
	neg.Type = layout.Felt
	main := Fn("main", nil, layout.Felt, true,
		Let("x", layout.Felt, FeltLit(5)),
		Ret(Bin(typedast.BinAdd, layout.Felt, neg, FeltLit(6))),
	)
	return Program(main)
}
