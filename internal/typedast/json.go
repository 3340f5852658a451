package typedast

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/cairo-m/cairom/internal/layout"
)

// The on-disk typed-AST format the CLI's compile command consumes: the
// out-of-scope frontend (lexer/parser/resolver/type checker) emits this
// after resolution, and the MIR builder trusts it completely. Statements
// and expressions share one flat tagged node shape — the same
// union-via-one-struct idiom the MIR instruction arena uses — so the
// codec stays a pair of small recursive walks instead of one decoder per
// node type.

type node struct {
	Kind string       `json:"kind"`
	Type *layout.Type `json:"type,omitempty"`

	Name   string `json:"name,omitempty"`
	Field  string `json:"field,omitempty"`
	Callee string `json:"callee,omitempty"`
	Op     string `json:"op,omitempty"`
	Value  uint64 `json:"value,omitempty"`

	X      *node        `json:"x,omitempty"`
	Y      *node        `json:"y,omitempty"`
	Base   *node        `json:"base,omitempty"`
	Index  *node        `json:"index,omitempty"`
	Count  *node        `json:"count,omitempty"`
	Target *node        `json:"target,omitempty"`
	Init   *node        `json:"init,omitempty"`
	Post   *node        `json:"post,omitempty"`
	Cond   *node        `json:"cond,omitempty"`
	ElemTy *layout.Type `json:"elem_type,omitempty"`

	FieldNames []string `json:"field_names,omitempty"`
	Elems      []*node  `json:"elems,omitempty"`
	Args       []*node  `json:"args,omitempty"`
	Values     []*node  `json:"values,omitempty"`
	Then       []*node  `json:"then,omitempty"`
	Else       []*node  `json:"else,omitempty"`
	Body       []*node  `json:"body,omitempty"`
}

type functionJSON struct {
	Name       string      `json:"name"`
	Params     []paramJSON `json:"params"`
	ReturnType layout.Type `json:"return_type"`
	Exported   bool        `json:"exported"`
	Body       []*node     `json:"body"`
}

type paramJSON struct {
	Name string      `json:"name"`
	Type layout.Type `json:"type"`
}

type programJSON struct {
	Functions []functionJSON `json:"functions"`
}

var binOpNames = map[BinaryOp]string{
	BinAdd: "add", BinSub: "sub", BinMul: "mul", BinDiv: "div",
	BinEq: "eq", BinNeq: "neq", BinLt: "lt", BinLe: "le", BinGt: "gt", BinGe: "ge",
	BinAnd: "and", BinOr: "or", BinXor: "xor", BinShl: "shl", BinShr: "shr",
}

var binOpByName = func() map[string]BinaryOp {
	m := map[string]BinaryOp{}
	for op, n := range binOpNames {
		m[n] = op
	}
	return m
}()

// MarshalProgram renders a typed AST in the boundary JSON format.
func MarshalProgram(p *Program) ([]byte, error) {
	out := programJSON{Functions: make([]functionJSON, len(p.Functions))}
	for i, f := range p.Functions {
		params := make([]paramJSON, len(f.Params))
		for j, pr := range f.Params {
			params[j] = paramJSON{Name: pr.Name, Type: pr.Type}
		}
		body, err := encodeStmts(f.Body)
		if err != nil {
			return nil, fmt.Errorf("typedast: function %s: %w", f.Name, err)
		}
		out.Functions[i] = functionJSON{
			Name: f.Name, Params: params, ReturnType: f.ReturnType,
			Exported: f.Exported, Body: body,
		}
	}
	return json.Marshal(&out)
}

// UnmarshalProgram parses the boundary JSON format back into a typed AST.
func UnmarshalProgram(data []byte) (*Program, error) {
	var in programJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("typedast: malformed typed-AST input: %w", err)
	}
	p := &Program{Functions: make([]*Function, len(in.Functions))}
	for i, f := range in.Functions {
		params := make([]Param, len(f.Params))
		for j, pr := range f.Params {
			params[j] = Param{Name: pr.Name, Type: pr.Type}
		}
		body, err := decodeStmts(f.Body)
		if err != nil {
			return nil, fmt.Errorf("typedast: function %s: %w", f.Name, err)
		}
		p.Functions[i] = &Function{
			Name: f.Name, Params: params, ReturnType: f.ReturnType,
			Exported: f.Exported, Body: body,
		}
	}
	return p, nil
}

func encodeStmts(stmts []Stmt) ([]*node, error) {
	out := make([]*node, len(stmts))
	for i, s := range stmts {
		n, err := encodeStmt(s)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func encodeStmt(s Stmt) (*node, error) {
	switch st := s.(type) {
	case *ExprStmt:
		x, err := encodeExpr(st.Expr)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "expr", X: x}, nil
	case *LetStmt:
		init, err := encodeExpr(st.Init)
		if err != nil {
			return nil, err
		}
		t := st.Type
		return &node{Kind: "let", Name: st.Name, Type: &t, Init: init}, nil
	case *AssignStmt:
		tgt, err := encodeExpr(st.Target)
		if err != nil {
			return nil, err
		}
		val, err := encodeExpr(st.Value)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "assign", Target: tgt, X: val}, nil
	case *IfStmt:
		cond, err := encodeExpr(st.Cond)
		if err != nil {
			return nil, err
		}
		then, err := encodeStmts(st.Then)
		if err != nil {
			return nil, err
		}
		els, err := encodeStmts(st.Else)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "if", Cond: cond, Then: then, Else: els}, nil
	case *WhileStmt:
		cond, err := encodeExpr(st.Cond)
		if err != nil {
			return nil, err
		}
		body, err := encodeStmts(st.Body)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "while", Cond: cond, Body: body}, nil
	case *LoopStmt:
		body, err := encodeStmts(st.Body)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "loop", Body: body}, nil
	case *ForStmt:
		var init, post *node
		var err error
		if st.Init != nil {
			if init, err = encodeStmt(st.Init); err != nil {
				return nil, err
			}
		}
		if st.Post != nil {
			if post, err = encodeStmt(st.Post); err != nil {
				return nil, err
			}
		}
		cond, err := encodeExpr(st.Cond)
		if err != nil {
			return nil, err
		}
		body, err := encodeStmts(st.Body)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "for", Init: init, Post: post, Cond: cond, Body: body}, nil
	case *BreakStmt:
		return &node{Kind: "break"}, nil
	case *ContinueStmt:
		return &node{Kind: "continue"}, nil
	case *ReturnStmt:
		vals, err := encodeExprs(st.Values)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "return", Values: vals}, nil
	default:
		return nil, fmt.Errorf("unknown statement %T", s)
	}
}

func decodeStmts(nodes []*node) ([]Stmt, error) {
	if nodes == nil {
		return nil, nil
	}
	out := make([]Stmt, len(nodes))
	for i, n := range nodes {
		s, err := decodeStmt(n)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func decodeStmt(n *node) (Stmt, error) {
	switch n.Kind {
	case "expr":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: x}, nil
	case "let":
		if n.Type == nil {
			return nil, fmt.Errorf("let %q missing type", n.Name)
		}
		init, err := decodeExpr(n.Init)
		if err != nil {
			return nil, err
		}
		return &LetStmt{Name: n.Name, Type: *n.Type, Init: init}, nil
	case "assign":
		tgt, err := decodeExpr(n.Target)
		if err != nil {
			return nil, err
		}
		val, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Target: tgt, Value: val}, nil
	case "if":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeStmts(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := decodeStmts(n.Else)
		if err != nil {
			return nil, err
		}
		return &IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmts(n.Body)
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body}, nil
	case "loop":
		body, err := decodeStmts(n.Body)
		if err != nil {
			return nil, err
		}
		return &LoopStmt{Body: body}, nil
	case "for":
		var init, post Stmt
		var err error
		if n.Init != nil {
			if init, err = decodeStmt(n.Init); err != nil {
				return nil, err
			}
		}
		if n.Post != nil {
			if post, err = decodeStmt(n.Post); err != nil {
				return nil, err
			}
		}
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmts(n.Body)
		if err != nil {
			return nil, err
		}
		return &ForStmt{Init: init, Cond: cond, Post: post, Body: body}, nil
	case "break":
		return &BreakStmt{}, nil
	case "continue":
		return &ContinueStmt{}, nil
	case "return":
		vals, err := decodeExprs(n.Values)
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Values: vals}, nil
	default:
		return nil, fmt.Errorf("unknown statement kind %q", n.Kind)
	}
}

func encodeExprs(exprs []Expr) ([]*node, error) {
	out := make([]*node, len(exprs))
	for i, e := range exprs {
		n, err := encodeExpr(e)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func encodeExpr(e Expr) (*node, error) {
	t := e.ExprType()
	switch ex := e.(type) {
	case *LiteralExpr:
		return &node{Kind: "literal", Type: &t, Value: ex.Value}, nil
	case *NameExpr:
		return &node{Kind: "name", Type: &t, Name: ex.Name}, nil
	case *UnaryExpr:
		x, err := encodeExpr(ex.X)
		if err != nil {
			return nil, err
		}
		op := "neg"
		if ex.Op == UnaryNot {
			op = "not"
		}
		return &node{Kind: "unary", Type: &t, Op: op, X: x}, nil
	case *BinaryExpr:
		x, err := encodeExpr(ex.X)
		if err != nil {
			return nil, err
		}
		y, err := encodeExpr(ex.Y)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "binary", Type: &t, Op: binOpNames[ex.Op], X: x, Y: y}, nil
	case *CallExpr:
		args, err := encodeExprs(ex.Args)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "call", Type: &t, Callee: ex.Callee, Args: args}, nil
	case *TupleExpr:
		elems, err := encodeExprs(ex.Elems)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "tuple", Type: &t, Elems: elems}, nil
	case *StructExpr:
		vals, err := encodeExprs(ex.Values)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "struct", Type: &t, FieldNames: ex.FieldNames, Values: vals}, nil
	case *ArrayExpr:
		elems, err := encodeExprs(ex.Elems)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "array", Type: &t, Elems: elems}, nil
	case *FieldExpr:
		base, err := encodeExpr(ex.Base)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "field", Type: &t, Base: base, Field: ex.Field}, nil
	case *IndexExpr:
		base, err := encodeExpr(ex.Base)
		if err != nil {
			return nil, err
		}
		idx, err := encodeExpr(ex.Index)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "index", Type: &t, Base: base, Index: idx}, nil
	case *AddrOfExpr:
		operand, err := encodeExpr(ex.Operand)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "addr_of", Type: &t, X: operand}, nil
	case *NewExpr:
		count, err := encodeExpr(ex.Count)
		if err != nil {
			return nil, err
		}
		et := ex.ElemType
		return &node{Kind: "new", Type: &t, ElemTy: &et, Count: count}, nil
	case *CastExpr:
		x, err := encodeExpr(ex.X)
		if err != nil {
			return nil, err
		}
		return &node{Kind: "cast", Type: &t, X: x}, nil
	default:
		return nil, fmt.Errorf("unknown expression %T", e)
	}
}

func decodeExprs(nodes []*node) ([]Expr, error) {
	if nodes == nil {
		return nil, nil
	}
	out := make([]Expr, len(nodes))
	for i, n := range nodes {
		e, err := decodeExpr(n)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func decodeExpr(n *node) (Expr, error) {
	if n == nil {
		return nil, fmt.Errorf("missing expression node")
	}
	if n.Type == nil {
		return nil, fmt.Errorf("expression node %q missing resolved type", n.Kind)
	}
	base := exprBase{Type: *n.Type}
	switch n.Kind {
	case "literal":
		return &LiteralExpr{exprBase: base, Value: n.Value}, nil
	case "name":
		return &NameExpr{exprBase: base, Name: n.Name}, nil
	case "unary":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		op := UnaryNeg
		if n.Op == "not" {
			op = UnaryNot
		}
		return &UnaryExpr{exprBase: base, Op: op, X: x}, nil
	case "binary":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		y, err := decodeExpr(n.Y)
		if err != nil {
			return nil, err
		}
		op, ok := binOpByName[n.Op]
		if !ok {
			return nil, fmt.Errorf("unknown binary operator %q", n.Op)
		}
		return &BinaryExpr{exprBase: base, Op: op, X: x, Y: y}, nil
	case "call":
		args, err := decodeExprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &CallExpr{exprBase: base, Callee: n.Callee, Args: args}, nil
	case "tuple":
		elems, err := decodeExprs(n.Elems)
		if err != nil {
			return nil, err
		}
		return &TupleExpr{exprBase: base, Elems: elems}, nil
	case "struct":
		vals, err := decodeExprs(n.Values)
		if err != nil {
			return nil, err
		}
		return &StructExpr{exprBase: base, FieldNames: n.FieldNames, Values: vals}, nil
	case "array":
		elems, err := decodeExprs(n.Elems)
		if err != nil {
			return nil, err
		}
		return &ArrayExpr{exprBase: base, Elems: elems}, nil
	case "field":
		b, err := decodeExpr(n.Base)
		if err != nil {
			return nil, err
		}
		return &FieldExpr{exprBase: base, Base: b, Field: n.Field}, nil
	case "index":
		b, err := decodeExpr(n.Base)
		if err != nil {
			return nil, err
		}
		idx, err := decodeExpr(n.Index)
		if err != nil {
			return nil, err
		}
		return &IndexExpr{exprBase: base, Base: b, Index: idx}, nil
	case "addr_of":
		operand, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		name, ok := operand.(*NameExpr)
		if !ok {
			return nil, fmt.Errorf("addr_of operand must be a name")
		}
		return &AddrOfExpr{exprBase: base, Operand: name}, nil
	case "new":
		if n.ElemTy == nil {
			return nil, fmt.Errorf("new node missing element type")
		}
		count, err := decodeExpr(n.Count)
		if err != nil {
			return nil, err
		}
		return &NewExpr{exprBase: base, ElemType: *n.ElemTy, Count: count}, nil
	case "cast":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		return &CastExpr{exprBase: base, X: x}, nil
	default:
		return nil, fmt.Errorf("unknown expression kind %q", n.Kind)
	}
}
