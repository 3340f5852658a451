package codegen

import (
	"github.com/cairo-m/cairom/internal/felt"
)

// FunctionEntry is one function's directory entry in the compiled-program
// artifact.
type FunctionEntry struct {
	Name       string `json:"name"`
	StartPC    uint32 `json:"start_pc"`
	NumArgs    uint32 `json:"num_args"`
	NumReturns uint32 `json:"num_returns"`
}

// Program is the fully-linked compiled artifact: one flat instruction
// stream shared by every function, a directory of function entries, and
// the exported-name -> function-index map.
type Program struct {
	Functions    []FunctionEntry `json:"functions"`
	Instructions []felt.Felt     `json:"instructions"`
	Entrypoints  map[string]int  `json:"entrypoints"`
}

// FunctionByName finds an exported function's FunctionEntry by its source
// name. It looks only in Entrypoints, so functions that are not exported
// are not found.
func (p *Program) FunctionByName(name string) (FunctionEntry, bool) {
	idx, ok := p.Entrypoints[name]
	if !ok {
		return FunctionEntry{}, false
	}
	return p.Functions[idx], true
}
