// Package cairom is the public facade over the Cairo-M compilation
// pipeline and virtual machine: typed AST in, compiled program artifact
// out, and an executor that runs an artifact's entrypoint to completion.
// The shape mirrors the split between a runtime's immutable configuration
// and its per-call state.
package cairom

import (
	"fmt"

	"github.com/cairo-m/cairom/internal/codegen"
	"github.com/cairo-m/cairom/internal/felt"
	"github.com/cairo-m/cairom/internal/layout"
	"github.com/cairo-m/cairom/internal/mir"
	"github.com/cairo-m/cairom/internal/typedast"
	"github.com/cairo-m/cairom/internal/vm"
)

// RuntimeConfig carries the policy knobs a run can vary: the VM's
// resource limits and whether the optimizer fans out across functions.
// Each With* method clones, so configs are safely shareable.
type RuntimeConfig struct {
	limits           vm.Limits
	parallelOptimize bool
}

// NewRuntimeConfig returns the default configuration: the documented
// default limits and a sequential optimizer.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{limits: vm.DefaultLimits()}
}

// clone ensures all fields are copied even when the receiver is shared.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithMaxInstructions caps the number of VM dispatch steps.
func (c *RuntimeConfig) WithMaxInstructions(n uint64) *RuntimeConfig {
	ret := c.clone()
	ret.limits.MaxInstructions = n
	return ret
}

// WithMaxMemoryCells caps the VM's flat memory size.
func (c *RuntimeConfig) WithMaxMemoryCells(n uint64) *RuntimeConfig {
	ret := c.clone()
	ret.limits.MaxMemoryCells = n
	return ret
}

// WithHeapCap caps how far the heap bump cursor may advance.
func (c *RuntimeConfig) WithHeapCap(n uint64) *RuntimeConfig {
	ret := c.clone()
	ret.limits.HeapCap = n
	return ret
}

// WithParallelOptimization fans the optimizer pipeline out across
// functions. Purely a throughput knob; never observable in output.
func (c *RuntimeConfig) WithParallelOptimization(on bool) *RuntimeConfig {
	ret := c.clone()
	ret.parallelOptimize = on
	return ret
}

// Limits exposes the configured VM limits.
func (c *RuntimeConfig) Limits() vm.Limits { return c.limits }

// Compile lowers a fully-resolved typed AST through the MIR builder, the
// standard optimization pipeline, and the code generator, producing the
// serialisable program artifact.
func Compile(prog *typedast.Program, cfg *RuntimeConfig) (*codegen.Program, error) {
	if cfg == nil {
		cfg = NewRuntimeConfig()
	}
	oracle := layout.NewOracle()
	b := mir.NewBuilder(oracle)
	module, err := b.Build(prog)
	if err != nil {
		return nil, err
	}
	passes := mir.StandardPipeline()
	if cfg.parallelOptimize {
		if err := mir.RunPipelineParallel(module, passes); err != nil {
			return nil, err
		}
	} else {
		mir.RunPipeline(module, passes)
	}
	return codegen.Generate(module, oracle)
}

// CompileMIR stops the pipeline after optimization and renders the MIR
// module's canonical textual form, for diagnostics and snapshot tooling.
func CompileMIR(prog *typedast.Program) (string, error) {
	oracle := layout.NewOracle()
	b := mir.NewBuilder(oracle)
	module, err := b.Build(prog)
	if err != nil {
		return "", err
	}
	mir.RunPipeline(module, mir.StandardPipeline())
	return mir.Print(module), nil
}

// Run executes an artifact's entrypoint with the given argument cells and
// returns the entry function's return cells.
func Run(p *codegen.Program, entrypoint string, cfg *RuntimeConfig, args ...uint64) ([]uint64, error) {
	if cfg == nil {
		cfg = NewRuntimeConfig()
	}
	felts := make([]felt.Felt, len(args))
	for i, a := range args {
		if a >= uint64(felt.P) {
			return nil, fmt.Errorf("cairom: argument %d (%d) is not a field element", i, a)
		}
		felts[i] = felt.Felt(a)
	}
	engine := vm.NewEngine(p, cfg.limits)
	res, err := engine.Call(entrypoint, felts...)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(res.Returns))
	for i, r := range res.Returns {
		out[i] = uint64(r.Uint32())
	}
	return out, nil
}
