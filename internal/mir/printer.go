package mir

// Print renders a whole module in the canonical textual MIR form used by
// diagnostic output and snapshot tests; Parse reads the same grammar
// back. The per-node String() methods on Instruction, Terminator,
// BasicBlock and Function implement the grammar; Print is the single
// named entry point callers reach for instead of depending on
// Module.String directly.
func Print(m *Module) string { return m.String() }

// PrintFunction renders a single function in the same canonical form.
func PrintFunction(f *Function) string { return f.String() }
