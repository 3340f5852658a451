package mir

import (
	"fmt"
	"strings"

	"github.com/cairo-m/cairom/internal/layout"
)

// Function owns its block arena and value arena; ids are invalidated only
// on Function destruction.
type Function struct {
	ID   FunctionID
	Name string

	Params     []layout.Type
	ParamNames []string
	ReturnType layout.Type
	Exported   bool

	blocks   []*BasicBlock
	valTypes []layout.Type // dense, indexed by Value
}

// NewFunction allocates a Function whose entry block is block 0.
func NewFunction(id FunctionID, name string, params []layout.Type, paramNames []string, ret layout.Type, exported bool) *Function {
	f := &Function{
		ID: id, Name: name, Params: params, ParamNames: paramNames,
		ReturnType: ret, Exported: exported,
	}
	f.AddBlock() // block 0 == entry
	return f
}

// newValue allocates a fresh dense Value id with an as-yet-unset type
// (set by the caller immediately after, since every MIR instruction knows
// its destination's type at construction time).
func (f *Function) newValue() Value {
	id := Value(len(f.valTypes))
	f.valTypes = append(f.valTypes, layout.Type{})
	return id
}

// NewValue allocates a fresh Value of the given type — the entry point
// builders use when they already know the instruction that will define it.
func (f *Function) NewValue(t layout.Type) Value {
	id := f.newValue()
	f.valTypes[id] = t
	return id
}

// ValueType returns the declared type of v.
func (f *Function) ValueType(v Value) layout.Type { return f.valTypes[v] }

// AddBlock allocates a new, empty BasicBlock and returns it.
func (f *Function) AddBlock() *BasicBlock {
	id := BlockID(len(f.blocks))
	b := newBlock(id, fmt.Sprintf("block%d", id))
	f.blocks = append(f.blocks, b)
	return b
}

// Block returns the block with the given id.
func (f *Function) Block(id BlockID) *BasicBlock { return f.blocks[id] }

// Blocks returns every block, including ones later invalidated by
// optimization passes (check b.Valid before relying on a block).
func (f *Function) Blocks() []*BasicBlock { return f.blocks }

// Entry returns the function's entry block (always block 0).
func (f *Function) Entry() *BasicBlock { return f.blocks[0] }

// TouchesMemory reports whether this function contains any
// FrameAlloc/Load/Store/GetElementPtr/AddressOf instruction, the gate
// for running Mem2Reg at all.
func (f *Function) TouchesMemory() bool {
	for _, b := range f.blocks {
		if !b.Valid {
			continue
		}
		for _, instr := range b.instrs {
			switch instr.Kind {
			case InstFrameAlloc, InstLoad, InstStore, InstGetElementPtr, InstAddressOf:
				return true
			}
		}
	}
	return false
}

// String renders the whole function in canonical textual MIR form.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s(", f.Name)
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = fmt.Sprintf("%s: %s", f.ParamNames[i], p)
	}
	fmt.Fprintf(&sb, "%s) -> %s {\n", strings.Join(parts, ", "), f.ReturnType)
	for _, b := range f.blocks {
		if !b.Valid {
			continue
		}
		sb.WriteString(b.String())
	}
	sb.WriteString("}\n")
	return sb.String()
}

// Module owns every Function in a compilation unit.
type Module struct {
	Functions []*Function
	// Entrypoints maps an exported function's source name to its index in
	// Functions, matching the compiled artifact's entrypoint table.
	Entrypoints map[string]FunctionID
}

// NewModule returns an empty Module ready for functions to be appended.
func NewModule() *Module {
	return &Module{Entrypoints: map[string]FunctionID{}}
}

// AddFunction appends fn to the module, wiring it into Entrypoints if
// exported.
func (m *Module) AddFunction(fn *Function) {
	m.Functions = append(m.Functions, fn)
	if fn.Exported {
		m.Entrypoints[fn.Name] = fn.ID
	}
}

func (m *Module) String() string {
	var sb strings.Builder
	for _, f := range m.Functions {
		sb.WriteString(f.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
