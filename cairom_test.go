package cairom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/testprog"
	"github.com/cairo-m/cairom/internal/vm"
)

func TestCompileAndRun(t *testing.T) {
	artifact, err := Compile(testprog.Fib(), nil)
	require.NoError(t, err)
	out, err := Run(artifact, "main", nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{55}, out)
}

func TestParallelOptimizationMatchesSequential(t *testing.T) {
	seq, err := Compile(testprog.Ackermann(), NewRuntimeConfig())
	require.NoError(t, err)
	par, err := Compile(testprog.Ackermann(), NewRuntimeConfig().WithParallelOptimization(true))
	require.NoError(t, err)

	seqBytes, err := seq.Marshal()
	require.NoError(t, err)
	parBytes, err := par.Marshal()
	require.NoError(t, err)
	require.Equal(t, seqBytes, parBytes)
}

func TestConfigCloneSemantics(t *testing.T) {
	base := NewRuntimeConfig()
	derived := base.WithMaxInstructions(1000).WithHeapCap(64)
	require.Equal(t, vm.DefaultLimits(), base.Limits())
	require.Equal(t, uint64(1000), derived.Limits().MaxInstructions)
	require.Equal(t, uint64(64), derived.Limits().HeapCap)
}

func TestRunHonoursInstructionLimit(t *testing.T) {
	artifact, err := Compile(testprog.InfiniteLoop(), nil)
	require.NoError(t, err)
	_, err = Run(artifact, "main", NewRuntimeConfig().WithMaxInstructions(5000))
	require.Error(t, err)
	require.True(t, vm.IsKind(err, vm.KindInstructionLimit))
}

func TestRunRejectsNonFieldArguments(t *testing.T) {
	artifact, err := Compile(testprog.Fib(), nil)
	require.NoError(t, err)
	_, err = Run(artifact, "main", nil, uint64(1)<<40)
	require.Error(t, err)
}

func TestCompileMIR(t *testing.T) {
	text, err := CompileMIR(testprog.Fib())
	require.NoError(t, err)
	require.Contains(t, text, "fn fib(n: felt) -> felt {")
	require.Contains(t, text, "fn main() -> felt {")
}
