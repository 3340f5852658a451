package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cairo-m/cairom/internal/testprog"
	"github.com/cairo-m/cairom/internal/typedast"
)

func writeTypedAST(t *testing.T, prog *typedast.Program) string {
	t.Helper()
	data, err := typedast.MarshalProgram(prog)
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, typedASTFileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return dir
}

func TestCompileThenRun(t *testing.T) {
	srcRoot := writeTypedAST(t, testprog.Fib())
	artifact := filepath.Join(t.TempDir(), "program.json")

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"compile", srcRoot, "-o", artifact}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())
	require.FileExists(t, artifact)

	stdout.Reset()
	stderr.Reset()
	code = doMain([]string{"run", artifact, "--entrypoint", "main"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())
	require.Equal(t, "55\n", stdout.String())
}

func TestRunWithArguments(t *testing.T) {
	// Export fib directly and pass n on the command line.
	prog := testprog.Fib()
	prog.Functions[0].Exported = true
	srcRoot := writeTypedAST(t, prog)
	artifact := filepath.Join(t.TempDir(), "program.json")

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"compile", srcRoot, "-o", artifact}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	stdout.Reset()
	code = doMain([]string{"run", artifact, "--entrypoint", "fib", "-a", "9"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())
	require.Equal(t, "34\n", stdout.String())
}

func TestCompileMissingInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doMain([]string{"compile", filepath.Join(t.TempDir(), "absent.json"), "-o", "out.json"}, &stdout, &stderr)
	require.Equal(t, exitCompile, code)
}

func TestRunTrapExitsWithRuntimeCode(t *testing.T) {
	srcRoot := writeTypedAST(t, testprog.DivByZero())
	artifact := filepath.Join(t.TempDir(), "program.json")

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"compile", srcRoot, "-o", artifact}, &stdout, &stderr)
	require.Equal(t, exitOK, code, "stderr: %s", stderr.String())

	stdout.Reset()
	code = doMain([]string{"run", artifact}, &stdout, &stderr)
	require.Equal(t, exitRuntime, code)
	require.Empty(t, stdout.String())
}

func TestUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitUsage, doMain([]string{"compile"}, &stdout, &stderr))
	require.Equal(t, exitUsage, doMain([]string{"frobnicate"}, &stdout, &stderr))
}
