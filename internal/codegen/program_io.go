package codegen

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/cairo-m/cairom/internal/felt"
)

// Marshal renders the artifact as the on-disk JSON format: function
// directory, flat instruction stream (decimal integers in [0, P)), and
// the exported-name map.
func (p *Program) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalProgram parses an artifact previously produced by Marshal,
// validating that every instruction cell is a canonical field element and
// every entrypoint index is in range.
func UnmarshalProgram(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("codegen: malformed program artifact: %w", err)
	}
	for i, cell := range p.Instructions {
		if cell.Uint32() >= felt.P {
			return nil, fmt.Errorf("codegen: instruction cell %d (%d) is not a field element", i, cell.Uint32())
		}
	}
	for name, idx := range p.Entrypoints {
		if idx < 0 || idx >= len(p.Functions) {
			return nil, fmt.Errorf("codegen: entrypoint %q references function %d of %d", name, idx, len(p.Functions))
		}
	}
	return &p, nil
}
