package typedast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/layout"
)

func sampleProgram() *Program {
	lit := func(t layout.Type, v uint64) *LiteralExpr {
		e := &LiteralExpr{Value: v}
		e.Type = t
		return e
	}
	name := func(n string, t layout.Type) *NameExpr {
		e := &NameExpr{Name: n}
		e.Type = t
		return e
	}
	pair := layout.Struct("Pair", []string{"x", "y"}, []layout.Type{layout.Felt, layout.U32})
	mk := &StructExpr{FieldNames: []string{"x", "y"}, Values: []Expr{lit(layout.Felt, 1), lit(layout.U32, 2)}}
	mk.Type = pair
	field := &FieldExpr{Base: name("p", pair), Field: "x"}
	field.Type = layout.Felt
	sum := &BinaryExpr{Op: BinAdd, X: field, Y: name("n", layout.Felt)}
	sum.Type = layout.Felt
	cond := &BinaryExpr{Op: BinEq, X: name("n", layout.Felt), Y: lit(layout.Felt, 0)}
	cond.Type = layout.Bool
	return &Program{Functions: []*Function{
		{
			Name:       "main",
			Params:     []Param{{Name: "n", Type: layout.Felt}},
			ReturnType: layout.Felt,
			Exported:   true,
			Body: []Stmt{
				&LetStmt{Name: "p", Type: pair, Init: mk},
				&IfStmt{
					Cond: cond,
					Then: []Stmt{&ReturnStmt{Values: []Expr{lit(layout.Felt, 0)}}},
				},
				&WhileStmt{
					Cond: cond,
					Body: []Stmt{&BreakStmt{}},
				},
				&ForStmt{
					Init: &LetStmt{Name: "i", Type: layout.Felt, Init: lit(layout.Felt, 0)},
					Cond: cond,
					Post: &AssignStmt{Target: name("i", layout.Felt), Value: lit(layout.Felt, 1)},
					Body: []Stmt{&ContinueStmt{}},
				},
				&ReturnStmt{Values: []Expr{sum}},
			},
		},
	}}
}

func TestProgramJSONRoundTrip(t *testing.T) {
	prog := sampleProgram()
	data, err := MarshalProgram(prog)
	require.NoError(t, err)

	parsed, err := UnmarshalProgram(data)
	require.NoError(t, err)
	require.Equal(t, prog, parsed)

	// A second cycle is byte-stable.
	data2, err := MarshalProgram(parsed)
	require.NoError(t, err)
	require.Equal(t, data, data2)
}

func TestUnmarshalRejectsUntypedExpression(t *testing.T) {
	_, err := UnmarshalProgram([]byte(`{"functions":[{"name":"f","params":[],"return_type":{"Kind":1},"exported":true,"body":[{"kind":"return","values":[{"kind":"literal","value":3}]}]}]}`))
	require.Error(t, err)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalProgram([]byte(`{"functions":[{"name":"f","params":[],"return_type":{"Kind":1},"exported":true,"body":[{"kind":"wat"}]}]}`))
	require.Error(t, err)
}
