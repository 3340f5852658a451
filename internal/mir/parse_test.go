package mir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/testprog"
	"github.com/cairo-m/cairom/internal/typedast"
)

// TestPrintParsePrintIdempotent is the R2 round-trip: rendering a module,
// parsing the text back, and rendering again must reproduce the text
// exactly, both before and after optimization.
func TestPrintParsePrintIdempotent(t *testing.T) {
	progs := map[string]func() *typedast.Program{
		"fib":        testprog.Fib,
		"inPlace":    testprog.InPlaceMutation,
		"structCopy": testprog.StructCopy,
		"arraySum":   testprog.ArraySum,
		"heap":       testprog.HeapAlloc,
		"addressOf":  testprog.AddressOf,
		"tupleRet":   testprog.TupleReturn,
		"tupleIns":   testprog.TupleInsert,
	}
	for name, mk := range progs {
		t.Run(name, func(t *testing.T) {
			m := build(t, mk())
			text := Print(m)
			parsed, err := Parse(text)
			require.NoError(t, err)
			require.Equal(t, text, Print(parsed))
		})
		t.Run(name+"/optimized", func(t *testing.T) {
			m := build(t, mk())
			RunPipeline(m, StandardPipeline())
			text := Print(m)
			parsed, err := Parse(text)
			require.NoError(t, err)
			require.Equal(t, text, Print(parsed))
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("fn broken( {\n}\n")
	require.Error(t, err)

	_, err = Parse("fn f() -> felt {\nblock0:\n  v0 = frobnicate v1\n  return v0\n}\n")
	require.Error(t, err)
}

func TestParseTypeGrammar(t *testing.T) {
	cases := []string{
		"felt", "u32", "bool", "unit",
		"*felt", "**u32",
		"(felt,u32)", "(felt,(u32,bool))",
		"[u32;5]", "[(felt,felt);3]",
		"struct P{a:felt,b:u32}",
		"fn(felt,u32)->bool",
		"fn(fn(felt)->felt)->felt",
	}
	for _, c := range cases {
		ty, err := parseType(c)
		require.NoError(t, err, c)
		require.Equal(t, c, ty.String())
	}
}
