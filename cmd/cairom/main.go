// Command cairom is the toolchain CLI: compile a resolved typed-AST
// source tree into a program artifact, and run an artifact's entrypoint.
//
//	cairom compile <source-root> -o <artifact.json>
//	cairom run <artifact.json> --entrypoint <name> [-a <value>]...
//
// Exit codes: 0 success, 1 compilation error, 2 runtime error, 64 usage.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cairo-m/cairom"
	"github.com/cairo-m/cairom/internal/codegen"
	"github.com/cairo-m/cairom/internal/typedast"
	"github.com/cairo-m/cairom/internal/vm"
)

const (
	exitOK      = 0
	exitCompile = 1
	exitRuntime = 2
	exitUsage   = 64
)

// typedASTFileName is the file the out-of-scope frontend leaves at the
// source root: the fully-resolved typed AST in the boundary JSON format.
const typedASTFileName = "program.tast.json"

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is main without the process exit, for testing; stdout carries
// program output only, diagnostics go to stderr.
func doMain(args []string, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	root := &cobra.Command{
		Use:           "cairom",
		Short:         "Cairo-M compiler and virtual machine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newCompileCmd(log))
	root.AddCommand(newRunCmd(stdout, log))
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			log.Error(ee.err)
			return ee.code
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	return exitOK
}

// exitErr pins a specific process exit code onto an error as it crosses
// the cobra boundary.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func newCompileCmd(log *logrus.Logger) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile <source-root>",
		Short: "Compile a resolved source tree into a program artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if st, err := os.Stat(src); err == nil && st.IsDir() {
				src = filepath.Join(src, typedASTFileName)
			}
			data, err := os.ReadFile(src)
			if err != nil {
				return &exitErr{code: exitCompile, err: err}
			}
			prog, err := typedast.UnmarshalProgram(data)
			if err != nil {
				return &exitErr{code: exitCompile, err: err}
			}
			artifact, err := cairom.Compile(prog, nil)
			if err != nil {
				return &exitErr{code: exitCompile, err: err}
			}
			out, err := artifact.Marshal()
			if err != nil {
				return &exitErr{code: exitCompile, err: err}
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return &exitErr{code: exitCompile, err: err}
			}
			log.WithFields(logrus.Fields{
				"functions":    len(artifact.Functions),
				"instructions": len(artifact.Instructions),
				"output":       output,
			}).Info("compiled")
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "program.json", "artifact output path")
	return cmd
}

func newRunCmd(stdout io.Writer, log *logrus.Logger) *cobra.Command {
	var entrypoint string
	var rawArgs []string
	cmd := &cobra.Command{
		Use:   "run <artifact.json>",
		Short: "Run a compiled artifact's entrypoint and print its return values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			argValues := make([]uint64, len(rawArgs))
			for i, raw := range rawArgs {
				v, err := strconv.ParseUint(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("argument %q is not a decimal cell value", raw)
				}
				argValues[i] = v
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return &exitErr{code: exitRuntime, err: err}
			}
			artifact, err := codegen.UnmarshalProgram(data)
			if err != nil {
				return &exitErr{code: exitRuntime, err: err}
			}
			rets, err := cairom.Run(artifact, entrypoint, nil, argValues...)
			if err != nil {
				var ve *vm.Error
				if errors.As(err, &ve) {
					log.WithFields(logrus.Fields{
						"kind": ve.Kind.String(),
						"pc":   ve.PC,
						"fp":   ve.FP,
					}).Error("execution trapped")
				}
				return &exitErr{code: exitRuntime, err: err}
			}
			for _, r := range rets {
				fmt.Fprintln(stdout, r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entrypoint, "entrypoint", "main", "exported function to call")
	cmd.Flags().StringArrayVarP(&rawArgs, "arg", "a", nil, "argument cell (repeatable)")
	return cmd
}
