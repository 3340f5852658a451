package mir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cairo-m/cairom/internal/layout"
)

// Parse reads the canonical textual MIR form emitted by Print back into a
// Module. Round-tripping is loss-free over that grammar: Print(Parse(s))
// reproduces s for any s that Print produced. The parser exists for the
// snapshot-test workflow — golden MIR files can be re-ingested and
// re-rendered to verify the grammar stays canonical — not as a user-facing
// frontend, so it is deliberately line-oriented: the printer never splits
// a construct across lines.
func Parse(text string) (*Module, error) {
	p := &parser{lines: strings.Split(text, "\n")}
	m := NewModule()
	for {
		p.skipBlank()
		if p.done() {
			return m, nil
		}
		fn, err := p.parseFunction(FunctionID(len(m.Functions)))
		if err != nil {
			return nil, err
		}
		m.AddFunction(fn)
	}
}

// ParseFunction reads a single printed function.
func ParseFunction(text string) (*Function, error) {
	p := &parser{lines: strings.Split(text, "\n")}
	p.skipBlank()
	return p.parseFunction(0)
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.lines) }

func (p *parser) skipBlank() {
	for !p.done() && strings.TrimSpace(p.lines[p.pos]) == "" {
		p.pos++
	}
}

func (p *parser) next() string {
	l := p.lines[p.pos]
	p.pos++
	return l
}

func (p *parser) errf(format string, args ...interface{}) error {
	return fmt.Errorf("mir parse: line %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) parseFunction(id FunctionID) (*Function, error) {
	header := p.next()
	rest, ok := strings.CutPrefix(header, "fn ")
	if !ok {
		return nil, p.errf("expected function header, got %q", header)
	}
	head, ok := strings.CutSuffix(rest, " {")
	if !ok {
		return nil, p.errf("missing body brace in %q", header)
	}
	// The return type may itself contain parentheses; the signature's
	// closing ") -> " is the last occurrence, since no type in the
	// canonical grammar contains that spaced sequence.
	sig := strings.LastIndex(head, ") -> ")
	if sig < 0 {
		return nil, p.errf("missing return type in %q", header)
	}
	name, paramsRaw, ok := cut(head[:sig], "(")
	if !ok {
		return nil, p.errf("malformed function header %q", header)
	}
	retTy, err := parseType(head[sig+len(") -> "):])
	if err != nil {
		return nil, p.errf("%v", err)
	}

	var paramNames []string
	var paramTypes []layout.Type
	for _, part := range splitTop(paramsRaw) {
		pname, ptyRaw, ok := cut(part, ": ")
		if !ok {
			return nil, p.errf("malformed parameter %q", part)
		}
		pty, err := parseType(ptyRaw)
		if err != nil {
			return nil, p.errf("%v", err)
		}
		paramNames = append(paramNames, pname)
		paramTypes = append(paramTypes, pty)
	}

	fn := NewFunction(id, name, paramTypes, paramNames, retTy, false)
	fn.Entry().Valid = false // re-established by the first printed block
	// Parameter values are ids 0..len(params)-1, matching the builder's
	// own allocation order.
	for _, t := range paramTypes {
		fn.NewValue(t)
	}

	for {
		if p.done() {
			return nil, p.errf("unterminated function %s", name)
		}
		line := p.next()
		if line == "}" {
			return fn, nil
		}
		if err := p.parseBlock(fn, line); err != nil {
			return nil, err
		}
	}
}

// parseBlock consumes a block header line plus the block's body up to
// (not including) the next block header or closing brace.
func (p *parser) parseBlock(fn *Function, header string) error {
	if !strings.HasSuffix(header, ":") {
		return p.errf("expected block header, got %q", header)
	}
	head := strings.TrimSuffix(header, ":")
	nameEnd := strings.IndexByte(head, '(')
	blockName := head
	var paramsRaw string
	if nameEnd >= 0 {
		if !strings.HasSuffix(head, ")") {
			return p.errf("unterminated block parameter list %q", header)
		}
		blockName = head[:nameEnd]
		paramsRaw = head[nameEnd+1 : len(head)-1]
	}
	id, err := blockIDOf(blockName)
	if err != nil {
		return p.errf("%v", err)
	}
	b := p.ensureBlock(fn, id)
	b.Valid = true

	for _, part := range splitTop(paramsRaw) {
		vraw, tyRaw, ok := cut(part, ": ")
		if !ok {
			return p.errf("malformed block parameter %q", part)
		}
		v, err := p.valueOf(fn, vraw)
		if err != nil {
			return err
		}
		ty, err := parseType(tyRaw)
		if err != nil {
			return p.errf("%v", err)
		}
		fn.valTypes[v] = ty
		b.params = append(b.params, blockParam{value: v, typ: ty})
	}

	for {
		if p.done() {
			return p.errf("unterminated block %s", blockName)
		}
		line := p.lines[p.pos]
		if !strings.HasPrefix(line, "  ") {
			if b.hasTerm {
				return nil
			}
			return p.errf("block %s has no terminator", blockName)
		}
		p.pos++
		body := strings.TrimPrefix(line, "  ")
		if isTerminator(body) {
			term, err := p.parseTerminator(fn, body)
			if err != nil {
				return err
			}
			b.term = term
			b.hasTerm = true
			// Terminator is the last instruction of the block.
			return nil
		}
		instr, err := p.parseInstruction(fn, body)
		if err != nil {
			return err
		}
		b.instrs = append(b.instrs, instr)
	}
}

func (p *parser) ensureBlock(fn *Function, id BlockID) *BasicBlock {
	for BlockID(len(fn.blocks)) <= id {
		nb := fn.AddBlock()
		nb.Valid = false
	}
	return fn.blocks[id]
}

func blockIDOf(name string) (BlockID, error) {
	raw, ok := strings.CutPrefix(name, "block")
	if !ok {
		return 0, fmt.Errorf("bad block name %q", name)
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad block name %q", name)
	}
	return BlockID(n), nil
}

func (p *parser) valueOf(fn *Function, raw string) (Value, error) {
	idRaw, ok := strings.CutPrefix(raw, "v")
	if !ok {
		return ValueInvalid, p.errf("bad value %q", raw)
	}
	n, err := strconv.ParseUint(idRaw, 10, 32)
	if err != nil {
		return ValueInvalid, p.errf("bad value %q", raw)
	}
	for uint64(len(fn.valTypes)) <= n {
		fn.newValue()
	}
	return Value(n), nil
}

func isTerminator(body string) bool {
	head, _, _ := cut(body, " ")
	switch head {
	case "return", "jump", "br_bool", "br_op", "unreachable":
		return true
	}
	return body == "return" || body == "unreachable"
}

func (p *parser) parseValueList(fn *Function, raw string) ([]Value, error) {
	inner, ok := strings.CutPrefix(raw, "[")
	if !ok || !strings.HasSuffix(inner, "]") {
		return nil, p.errf("expected value list, got %q", raw)
	}
	inner = strings.TrimSuffix(inner, "]")
	var out []Value
	for _, part := range splitTop(inner) {
		v, err := p.valueOf(fn, part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *parser) parseInstruction(fn *Function, body string) (Instruction, error) {
	var instr Instruction
	instr.Dest = ValueInvalid

	if rest, ok := strings.CutPrefix(body, "// "); ok {
		return NewDebug(rest), nil
	}

	// Optional "(v1, v2) = " or "v1 = " destination prefix.
	if strings.HasPrefix(body, "(") {
		destsRaw, rest, ok := cutTop(body[1:], ") = ")
		if !ok {
			return instr, p.errf("malformed destination list in %q", body)
		}
		for _, part := range splitTop(destsRaw) {
			v, err := p.valueOf(fn, part)
			if err != nil {
				return instr, err
			}
			instr.Dests = append(instr.Dests, v)
		}
		body = rest
	} else if dstRaw, rest, ok := cut(body, " = "); ok && strings.HasPrefix(dstRaw, "v") && !strings.ContainsAny(dstRaw, " ,") {
		v, err := p.valueOf(fn, dstRaw)
		if err != nil {
			return instr, err
		}
		instr.Dest = v
		body = rest
	}

	op, rest, _ := cut(body, " ")
	switch op {
	case "assign":
		instr.Kind = InstAssign
		if strings.HasPrefix(rest, "v") {
			v, err := p.valueOf(fn, rest)
			if err != nil {
				return instr, err
			}
			instr.Src = v
		} else {
			imm, err := strconv.ParseUint(rest, 10, 64)
			if err != nil {
				return instr, p.errf("bad literal %q", rest)
			}
			instr.Imm, instr.HasImm = imm, true
		}
		return instr, nil
	case "neg", "not":
		instr.Kind = InstUnaryOp
		if op == "neg" {
			instr.UOp = OpNeg
		} else {
			instr.UOp = OpNot
		}
		v, err := p.valueOf(fn, rest)
		if err != nil {
			return instr, err
		}
		instr.Src = v
		return instr, nil
	case "make_tuple":
		instr.Kind = InstMakeTuple
		args, err := p.parseValueList(fn, rest)
		if err != nil {
			return instr, err
		}
		instr.Args = args
		return instr, nil
	case "extract_tuple":
		instr.Kind = InstExtractTuple
		parts := splitTop(rest)
		if len(parts) != 2 {
			return instr, p.errf("malformed extract_tuple %q", body)
		}
		v, err := p.valueOf(fn, parts[0])
		if err != nil {
			return instr, err
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil {
			return instr, p.errf("bad tuple index %q", parts[1])
		}
		instr.Src, instr.Index = v, idx
		return instr, nil
	case "insert_tuple":
		instr.Kind = InstInsertTuple
		parts := splitTop(rest)
		if len(parts) != 3 {
			return instr, p.errf("malformed insert_tuple %q", body)
		}
		v, err := p.valueOf(fn, parts[0])
		if err != nil {
			return instr, err
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil {
			return instr, p.errf("bad tuple index %q", parts[1])
		}
		v2, err := p.valueOf(fn, parts[2])
		if err != nil {
			return instr, err
		}
		instr.Src, instr.Index, instr.Src2 = v, idx, v2
		return instr, nil
	case "make_struct":
		instr.Kind = InstMakeStruct
		nameRaw, listRaw, ok := cut(rest, " ")
		if !ok {
			return instr, p.errf("malformed make_struct %q", body)
		}
		srcs, err := p.parseValueList(fn, listRaw)
		if err != nil {
			return instr, err
		}
		instr.AggType = layout.Type{Kind: layout.KindStruct, StructName: nameRaw}
		instr.FieldSrcs = srcs
		return instr, nil
	case "extract_field":
		instr.Kind = InstExtractField
		parts := splitTop(rest)
		if len(parts) != 2 {
			return instr, p.errf("malformed extract_field %q", body)
		}
		v, err := p.valueOf(fn, parts[0])
		if err != nil {
			return instr, err
		}
		instr.Src, instr.Field = v, parts[1]
		return instr, nil
	case "insert_field":
		instr.Kind = InstInsertField
		parts := splitTop(rest)
		if len(parts) != 3 {
			return instr, p.errf("malformed insert_field %q", body)
		}
		v, err := p.valueOf(fn, parts[0])
		if err != nil {
			return instr, err
		}
		v2, err := p.valueOf(fn, parts[2])
		if err != nil {
			return instr, err
		}
		instr.Src, instr.Field, instr.Src2 = v, parts[1], v2
		return instr, nil
	case "frame_alloc":
		instr.Kind = InstFrameAlloc
		parts := splitTop(rest)
		if len(parts) != 2 {
			return instr, p.errf("malformed frame_alloc %q", body)
		}
		ty, err := parseType(parts[0])
		if err != nil {
			return instr, p.errf("%v", err)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return instr, p.errf("bad frame_alloc count %q", parts[1])
		}
		instr.AggType, instr.Count = ty, count
		instr.Type = layout.Pointer(ty)
		return instr, nil
	case "heap_alloc_cells":
		instr.Kind = InstHeapAllocCells
		instr.Src = ValueInvalid
		if strings.HasPrefix(rest, "v") {
			v, err := p.valueOf(fn, rest)
			if err != nil {
				return instr, err
			}
			instr.Src = v
		} else {
			count, err := strconv.Atoi(rest)
			if err != nil {
				return instr, p.errf("bad heap_alloc_cells count %q", rest)
			}
			instr.Count = count
		}
		return instr, nil
	case "load":
		instr.Kind = InstLoad
		parts := splitTop(rest)
		if len(parts) != 2 {
			return instr, p.errf("malformed load %q", body)
		}
		v, err := p.valueOf(fn, parts[0])
		if err != nil {
			return instr, err
		}
		ty, err := parseType(parts[1])
		if err != nil {
			return instr, p.errf("%v", err)
		}
		instr.Src, instr.Type = v, ty
		return instr, nil
	case "store":
		instr.Kind = InstStore
		parts := splitTop(rest)
		if len(parts) != 3 {
			return instr, p.errf("malformed store %q", body)
		}
		v, err := p.valueOf(fn, parts[0])
		if err != nil {
			return instr, err
		}
		v2, err := p.valueOf(fn, parts[1])
		if err != nil {
			return instr, err
		}
		ty, err := parseType(parts[2])
		if err != nil {
			return instr, p.errf("%v", err)
		}
		instr.Src, instr.Src2, instr.Type = v, v2, ty
		return instr, nil
	case "gep":
		instr.Kind = InstGetElementPtr
		parts := splitTop(rest)
		if len(parts) != 3 {
			return instr, p.errf("malformed gep %q", body)
		}
		v, err := p.valueOf(fn, parts[0])
		if err != nil {
			return instr, err
		}
		v2, err := p.valueOf(fn, parts[1])
		if err != nil {
			return instr, err
		}
		ty, err := parseType(parts[2])
		if err != nil {
			return instr, p.errf("%v", err)
		}
		instr.Src, instr.Src2, instr.AggType = v, v2, ty
		instr.Type = layout.Pointer(ty)
		return instr, nil
	case "address_of":
		instr.Kind = InstAddressOf
		v, err := p.valueOf(fn, rest)
		if err != nil {
			return instr, err
		}
		instr.Src = v
		return instr, nil
	case "call":
		instr.Kind = InstCall
		calleeRaw, listRaw, ok := cut(rest, " ")
		if !ok {
			return instr, p.errf("malformed call %q", body)
		}
		idRaw, ok := strings.CutPrefix(calleeRaw, "fn")
		if !ok {
			return instr, p.errf("bad callee %q", calleeRaw)
		}
		id, err := strconv.ParseUint(idRaw, 10, 32)
		if err != nil {
			return instr, p.errf("bad callee %q", calleeRaw)
		}
		args, err := p.parseValueList(fn, listRaw)
		if err != nil {
			return instr, err
		}
		// A single printed destination is still a Call destination list.
		if instr.Dest.Valid() {
			instr.Dests = []Value{instr.Dest}
			instr.Dest = ValueInvalid
		}
		instr.Callee, instr.Args = FunctionID(id), args
		return instr, nil
	case "cast":
		instr.Kind = InstCast
		vRaw, tyRaw, ok := cut(rest, ", ")
		if !ok {
			return instr, p.errf("malformed cast %q", body)
		}
		fromRaw, toRaw, ok := cut(tyRaw, " -> ")
		if !ok {
			return instr, p.errf("malformed cast %q", body)
		}
		v, err := p.valueOf(fn, vRaw)
		if err != nil {
			return instr, err
		}
		from, err := parseType(fromRaw)
		if err != nil {
			return instr, p.errf("%v", err)
		}
		to, err := parseType(toRaw)
		if err != nil {
			return instr, p.errf("%v", err)
		}
		instr.Src, instr.FromType, instr.ToType, instr.Type = v, from, to, to
		return instr, nil
	default:
		// Binary operators print as their bare name.
		for bop, name := range binaryOpIndex() {
			if op == name {
				instr.Kind = InstBinaryOp
				instr.BOp = bop
				parts := splitTop(rest)
				if len(parts) != 2 {
					return instr, p.errf("malformed %s %q", name, body)
				}
				v, err := p.valueOf(fn, parts[0])
				if err != nil {
					return instr, err
				}
				v2, err := p.valueOf(fn, parts[1])
				if err != nil {
					return instr, err
				}
				instr.Src, instr.Src2 = v, v2
				return instr, nil
			}
		}
		return instr, p.errf("unknown instruction %q", body)
	}
}

func binaryOpIndex() map[BinaryOp]string {
	m := map[BinaryOp]string{}
	for i, n := range binaryOpNames {
		m[BinaryOp(i)] = n
	}
	return m
}

func (p *parser) parseEdge(fn *Function, raw string) (Edge, error) {
	nameRaw, argsRaw, ok := cut(raw, "(")
	if !ok || !strings.HasSuffix(argsRaw, ")") {
		return Edge{}, p.errf("malformed edge %q", raw)
	}
	id, err := blockIDOf(nameRaw)
	if err != nil {
		return Edge{}, p.errf("%v", err)
	}
	p.ensureBlock(fn, id)
	var args []Value
	for _, part := range splitTop(strings.TrimSuffix(argsRaw, ")")) {
		v, err := p.valueOf(fn, part)
		if err != nil {
			return Edge{}, err
		}
		args = append(args, v)
	}
	return Edge{Target: id, Args: args}, nil
}

func (p *parser) parseTerminator(fn *Function, body string) (Terminator, error) {
	op, rest, _ := cut(body, " ")
	switch op {
	case "return":
		var vals []Value
		for _, part := range splitTop(rest) {
			v, err := p.valueOf(fn, part)
			if err != nil {
				return Terminator{}, err
			}
			vals = append(vals, v)
		}
		return NewReturn(vals), nil
	case "jump":
		e, err := p.parseEdge(fn, rest)
		if err != nil {
			return Terminator{}, err
		}
		return NewJump(e.Target, e.Args), nil
	case "br_bool":
		condRaw, edgesRaw, ok := cut(rest, ", ")
		if !ok {
			return Terminator{}, p.errf("malformed br_bool %q", body)
		}
		cond, err := p.valueOf(fn, condRaw)
		if err != nil {
			return Terminator{}, err
		}
		edges := splitTop(edgesRaw)
		if len(edges) != 2 {
			return Terminator{}, p.errf("malformed br_bool %q", body)
		}
		then, err := p.parseEdge(fn, edges[0])
		if err != nil {
			return Terminator{}, err
		}
		els, err := p.parseEdge(fn, edges[1])
		if err != nil {
			return Terminator{}, err
		}
		return NewBranchBool(cond, then, els), nil
	case "br_op":
		opRaw, rest2, ok := cut(rest, " ")
		if !ok {
			return Terminator{}, p.errf("malformed br_op %q", body)
		}
		var bop BinaryOp
		found := false
		for i, n := range binaryOpNames {
			if n == opRaw {
				bop, found = BinaryOp(i), true
				break
			}
		}
		if !found {
			return Terminator{}, p.errf("unknown br_op operator %q", opRaw)
		}
		operandsRaw, thenRaw, ok := cut(rest2, ", then ")
		if !ok {
			return Terminator{}, p.errf("malformed br_op %q", body)
		}
		operands := splitTop(operandsRaw)
		if len(operands) != 2 {
			return Terminator{}, p.errf("malformed br_op operands %q", operandsRaw)
		}
		lhs, err := p.valueOf(fn, operands[0])
		if err != nil {
			return Terminator{}, err
		}
		rhs, err := p.valueOf(fn, operands[1])
		if err != nil {
			return Terminator{}, err
		}
		thenEdgeRaw, elseEdgeRaw, ok := cut(thenRaw, ", else ")
		if !ok {
			return Terminator{}, p.errf("malformed br_op %q", body)
		}
		then, err := p.parseEdge(fn, thenEdgeRaw)
		if err != nil {
			return Terminator{}, err
		}
		els, err := p.parseEdge(fn, elseEdgeRaw)
		if err != nil {
			return Terminator{}, err
		}
		return NewBranchOp(bop, lhs, rhs, then, els), nil
	case "unreachable":
		return NewUnreachable(), nil
	default:
		return Terminator{}, p.errf("unknown terminator %q", body)
	}
}

// parseType reads the canonical type grammar produced by layout.Type's
// String method.
func parseType(s string) (layout.Type, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "felt":
		return layout.Felt, nil
	case "u32":
		return layout.U32, nil
	case "bool":
		return layout.Bool, nil
	case "unit":
		return layout.Unit, nil
	}
	switch {
	case strings.HasPrefix(s, "*"):
		elem, err := parseType(s[1:])
		if err != nil {
			return layout.Type{}, err
		}
		return layout.Pointer(elem), nil
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		var elems []layout.Type
		for _, part := range splitTop(s[1 : len(s)-1]) {
			e, err := parseType(part)
			if err != nil {
				return layout.Type{}, err
			}
			elems = append(elems, e)
		}
		return layout.Tuple(elems...), nil
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner := s[1 : len(s)-1]
		i := strings.LastIndexByte(inner, ';')
		if i < 0 {
			return layout.Type{}, fmt.Errorf("malformed array type %q", s)
		}
		elem, err := parseType(inner[:i])
		if err != nil {
			return layout.Type{}, err
		}
		n, err := strconv.Atoi(inner[i+1:])
		if err != nil {
			return layout.Type{}, fmt.Errorf("malformed array length in %q", s)
		}
		return layout.Array(elem, n), nil
	case strings.HasPrefix(s, "struct "):
		rest := strings.TrimPrefix(s, "struct ")
		name, fieldsRaw, ok := cut(rest, "{")
		if !ok || !strings.HasSuffix(fieldsRaw, "}") {
			return layout.Type{}, fmt.Errorf("malformed struct type %q", s)
		}
		var fieldNames []string
		var fieldTypes []layout.Type
		for _, part := range splitTop(strings.TrimSuffix(fieldsRaw, "}")) {
			fname, ftyRaw, ok := cut(part, ":")
			if !ok {
				return layout.Type{}, fmt.Errorf("malformed struct field %q", part)
			}
			fty, err := parseType(ftyRaw)
			if err != nil {
				return layout.Type{}, err
			}
			fieldNames = append(fieldNames, fname)
			fieldTypes = append(fieldTypes, fty)
		}
		return layout.Struct(name, fieldNames, fieldTypes), nil
	case strings.HasPrefix(s, "fn("):
		paramsRaw, retRaw, ok := cutTop(s[3:], ")->")
		if !ok {
			return layout.Type{}, fmt.Errorf("malformed function type %q", s)
		}
		var params []layout.Type
		for _, part := range splitTop(paramsRaw) {
			pt, err := parseType(part)
			if err != nil {
				return layout.Type{}, err
			}
			params = append(params, pt)
		}
		ret, err := parseType(retRaw)
		if err != nil {
			return layout.Type{}, err
		}
		return layout.Func(params, ret), nil
	default:
		return layout.Type{}, fmt.Errorf("unknown type %q", s)
	}
}

// cut is strings.Cut.
func cut(s, sep string) (before, after string, found bool) {
	return strings.Cut(s, sep)
}

// cutTop cuts at the first occurrence of sep that sits at bracket depth
// zero with respect to (), {} and []; the match is checked before the
// current character adjusts the depth, so a sep that begins with a
// closing bracket cuts at the bracket that closes depth zero.
func cutTop(s, sep string) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		if depth == 0 && i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
		switch s[i] {
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			if depth > 0 {
				depth--
			}
		}
	}
	return "", "", false
}

// splitTop splits on "," at bracket depth zero, dropping one space after a
// comma, so both "a, b" and the compact "a,b" of layout.Type's String
// method are split; an empty input yields no parts.
func splitTop(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
				if i+1 < len(s) && s[i+1] == ' ' {
					start = i + 2
					i++
				}
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
