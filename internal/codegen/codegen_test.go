package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/mir"
	"github.com/cairo-m/cairom/internal/testprog"
	"github.com/cairo-m/cairom/internal/typedast"
)

func compile(t *testing.T, prog *typedast.Program) *Program {
	t.Helper()
	oracle := layout.NewOracle()
	m, err := mir.NewBuilder(oracle).Build(prog)
	require.NoError(t, err)
	mir.RunPipeline(m, mir.StandardPipeline())
	p, err := Generate(m, oracle)
	require.NoError(t, err)
	return p
}

// TestInstructionStreamWidths walks every function's body opcode by
// opcode using the fixed width table; the walk must land exactly on the
// next function's start and never step through an unknown opcode.
func TestInstructionStreamWidths(t *testing.T) {
	p := compile(t, testprog.Fib())
	for i, f := range p.Functions {
		end := len(p.Instructions)
		if i+1 < len(p.Functions) {
			end = int(p.Functions[i+1].StartPC)
		}
		pc := int(f.StartPC)
		for pc < end {
			op := Opcode(p.Instructions[pc].Uint32())
			w := op.Width()
			require.NotZero(t, w, "unknown opcode %d at pc %d in %s", p.Instructions[pc].Uint32(), pc, f.Name)
			pc += w
		}
		require.Equal(t, end, pc, "function %s body does not end on an instruction boundary", f.Name)
	}
}

func TestEntrypointsAreExportedOnly(t *testing.T) {
	p := compile(t, testprog.Fib())
	require.Len(t, p.Entrypoints, 1)
	entry, ok := p.FunctionByName("main")
	require.True(t, ok)
	require.Equal(t, "main", entry.Name)
	require.Equal(t, uint32(0), entry.NumArgs)
	require.Equal(t, uint32(1), entry.NumReturns)
	_, ok = p.FunctionByName("fib")
	require.False(t, ok)
}

func TestU32ReturnOccupiesTwoSlots(t *testing.T) {
	p := compile(t, testprog.StructCopy())
	entry, ok := p.FunctionByName("main")
	require.True(t, ok)
	require.Equal(t, uint32(2), entry.NumReturns)
}

// TestDeterministicBuild is round-trip property R1: compiling the same
// source twice yields byte-identical artifacts, and the artifact survives
// a marshal/unmarshal cycle unchanged.
func TestDeterministicBuild(t *testing.T) {
	a := compile(t, testprog.Fib())
	b := compile(t, testprog.Fib())

	aBytes, err := a.Marshal()
	require.NoError(t, err)
	bBytes, err := b.Marshal()
	require.NoError(t, err)
	require.Equal(t, aBytes, bBytes)

	parsed, err := UnmarshalProgram(aBytes)
	require.NoError(t, err)
	reBytes, err := parsed.Marshal()
	require.NoError(t, err)
	require.Equal(t, aBytes, reBytes)
}

func TestUnmarshalRejectsNonCanonicalCells(t *testing.T) {
	_, err := UnmarshalProgram([]byte(`{"functions":[],"instructions":[2147483647],"entrypoints":{}}`))
	require.Error(t, err)
}

func TestUnmarshalRejectsBadEntrypointIndex(t *testing.T) {
	_, err := UnmarshalProgram([]byte(`{"functions":[],"instructions":[],"entrypoints":{"main":3}}`))
	require.Error(t, err)
}

func TestFusedCompareBranchEmitsCompareJump(t *testing.T) {
	p := compile(t, testprog.Fib())
	var sawFused bool
	for pc := 0; pc < len(p.Instructions); {
		op := Opcode(p.Instructions[pc].Uint32())
		if op == OpJEqFpFpImm || op == OpJNeFpFpImm {
			sawFused = true
		}
		pc += op.Width()
	}
	require.True(t, sawFused, "fib's n == 0 tests must lower to fused compare-jumps")
}

func TestCastLowersToCastOpcode(t *testing.T) {
	p := compile(t, testprog.Cast(7))
	var sawCast bool
	for pc := 0; pc < len(p.Instructions); {
		op := Opcode(p.Instructions[pc].Uint32())
		if op == OpCastU32Felt {
			sawCast = true
		}
		pc += op.Width()
	}
	require.True(t, sawCast)
}

func TestGenerateScenarios(t *testing.T) {
	progs := map[string]func() *typedast.Program{
		"structCopy": testprog.StructCopy,
		"inPlace":    testprog.InPlaceMutation,
		"ackermann":  testprog.Ackermann,
		"arraySum":   testprog.ArraySum,
		"heap":       testprog.HeapAlloc,
		"addressOf":  testprog.AddressOf,
		"countLoop":  testprog.CountLoop,
	}
	for name, mk := range progs {
		t.Run(name, func(t *testing.T) {
			p := compile(t, mk())
			require.NotEmpty(t, p.Instructions)
			// Every function body must decode cleanly by widths.
			for i, f := range p.Functions {
				end := len(p.Instructions)
				if i+1 < len(p.Functions) {
					end = int(p.Functions[i+1].StartPC)
				}
				pc := int(f.StartPC)
				for pc < end {
					op := Opcode(p.Instructions[pc].Uint32())
					require.NotZero(t, op.Width(), "pc %d in %s", pc, f.Name)
					pc += op.Width()
				}
				require.Equal(t, end, pc)
			}
		})
	}
}
