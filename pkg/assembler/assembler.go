// Package assembler turns assembly text (hand-written, or generated by
// pkg/codegen) into a vm.Program: a two-pass assembler (label-then-
// instruction line parsing, a label-collection pass followed by an
// instruction-emission pass), retargeted at this toolchain's
// tagged-operand Instruction instead of a byte-encoded one.
package assembler

import (
	"fmt"
	"strconv"
	"strings"

	"gocpu8086/pkg/diag"
	"gocpu8086/pkg/vm"
)

// operandShape bounds how many operands an opcode takes.
type operandShape struct {
	min, max int
}

var opcodeShapes = map[string]operandShape{
	"HLT": {0, 0}, "NOP": {0, 0}, "RET": {0, 0}, "IRET": {0, 0},
	"CLC": {0, 0}, "STC": {0, 0}, "CMC": {0, 0},

	"PUSH": {1, 1}, "POP": {1, 1}, "NEG": {1, 1}, "NOT": {1, 1},
	"INC": {1, 1}, "DEC": {1, 1}, "MUL": {1, 1}, "DIV": {1, 1}, "MOD": {1, 1},
	"OUT": {1, 1}, "OUTC": {1, 1},

	"MOV": {2, 2}, "ADD": {2, 2}, "ADC": {2, 2}, "SUB": {2, 2}, "SBB": {2, 2},
	"CMP": {2, 2}, "AND": {2, 2}, "OR": {2, 2}, "XOR": {2, 2},
	"IN": {2, 2}, "OUTP": {2, 2},

	"SHL": {1, 2}, "SAL": {1, 2}, "SHR": {1, 2}, "SAR": {1, 2},

	"JMP": {1, 1}, "CALL": {1, 1}, "INT": {1, 1},
	"JE": {1, 1}, "JZ": {1, 1}, "JNE": {1, 1}, "JNZ": {1, 1},
	"JL": {1, 1}, "JNGE": {1, 1}, "JG": {1, 1}, "JNLE": {1, 1},
	"JLE": {1, 1}, "JNG": {1, 1}, "JGE": {1, 1}, "JNL": {1, 1},
	"JC": {1, 1}, "JB": {1, 1}, "JNAE": {1, 1},
	"JNC": {1, 1}, "JAE": {1, 1}, "JNB": {1, 1},
	"JS": {1, 1}, "JNS": {1, 1}, "JO": {1, 1}, "JNO": {1, 1},
}

// Assembler builds a vm.Program from assembly text across two passes.
type Assembler struct {
	labels      map[string]int
	diagnostics []diag.Diagnostic
}

// New returns an Assembler ready to assemble one program.
func New() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

// Assemble is the package-level convenience entry point.
func Assemble(code string) *vm.Program {
	return New().Assemble(code)
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

// Assemble runs both passes and returns the resulting Program, always
// non-nil so a caller can inspect Diagnostics even on failure.
func (a *Assembler) Assemble(code string) *vm.Program {
	lines := strings.Split(code, "\n")
	parsed := make([]parsedLine, len(lines))
	for i, raw := range lines {
		parsed[i] = a.parseLine(raw, i+1)
	}

	a.pass1(parsed)
	instrs := a.pass2(parsed)

	vmDiags := make([]vm.Diagnostic, len(a.diagnostics))
	for i, d := range a.diagnostics {
		vmDiags[i] = vm.Diagnostic{Line: d.Line, Message: d.Message, Severity: vm.Severity(d.Severity)}
	}

	prog := &vm.Program{
		Instructions: instrs,
		Labels:       a.labels,
		Diagnostics:  vmDiags,
	}
	if len(instrs) == 0 || strings.ToUpper(instrs[len(instrs)-1].Opcode) != "HLT" {
		prog.Instructions = append(prog.Instructions, vm.Instruction{
			Opcode:        "HLT",
			SourceAddress: len(prog.Instructions),
			RawText:       "HLT",
		})
	}
	return prog
}

func (a *Assembler) errorf(line int, format string, args ...any) {
	a.diagnostics = append(a.diagnostics, diag.Diagnostic{
		Stage:    "Assembly",
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
		Severity: diag.Error,
	})
}

// pass1 walks every line once to fix each label to its instruction index,
// reporting duplicate labels. Directive-free and size-unbounded, since
// this toolchain's Program is indexed by instruction, not by byte.
func (a *Assembler) pass1(parsed []parsedLine) {
	addr := 0
	for _, p := range parsed {
		for _, lbl := range p.labels {
			key := normalizeLabel(lbl)
			if _, exists := a.labels[key]; exists {
				a.errorf(p.lineNo, "duplicate label %q", lbl)
				continue
			}
			a.labels[key] = addr
		}
		if p.mnemonic != "" {
			addr++
		}
	}
}

// pass2 emits one vm.Instruction per mnemonic line, checking operands
// against the package-level opcodeShapes table.
func (a *Assembler) pass2(parsed []parsedLine) []vm.Instruction {
	var instrs []vm.Instruction
	for _, p := range parsed {
		if p.mnemonic == "" {
			continue
		}
		shape, ok := opcodeShapes[p.mnemonic]
		if !ok {
			a.errorf(p.lineNo, "unknown opcode %q", p.mnemonic)
			instrs = append(instrs, a.placeholderInstruction(p, len(instrs)))
			continue
		}
		if len(p.operands) < shape.min || len(p.operands) > shape.max {
			a.errorf(p.lineNo, "%s expects %s operand(s), got %d", p.mnemonic, operandCountText(shape), len(p.operands))
			instrs = append(instrs, a.placeholderInstruction(p, len(instrs)))
			continue
		}

		ops := make([]vm.Operand, 0, len(p.operands))
		bad := false
		for _, text := range p.operands {
			op, err := a.parseOperand(text, p.lineNo)
			if err != nil {
				a.errorf(p.lineNo, "%s", err)
				bad = true
				continue
			}
			ops = append(ops, op)
		}
		if bad {
			instrs = append(instrs, a.placeholderInstruction(p, len(instrs)))
			continue
		}

		instrs = append(instrs, vm.Instruction{
			Opcode:        p.mnemonic,
			Operands:      ops,
			SourceAddress: len(instrs),
			RawText:       strings.TrimSpace(strings.Join(append([]string{p.mnemonic}, p.operands...), " ")),
		})
	}
	return instrs
}

// placeholderInstruction stands in for a line pass2 rejected (unknown
// opcode or bad operand), so the instruction slice keeps one entry per
// mnemonic line and stays aligned with pass1's addr count. It renders as a
// NOP; the program carries error diagnostics from the rejection and is
// never meant to run, but any label defined after this line still resolves
// to the correct index.
func (a *Assembler) placeholderInstruction(p parsedLine, index int) vm.Instruction {
	return vm.Instruction{
		Opcode:        "NOP",
		SourceAddress: index,
		RawText:       strings.TrimSpace(strings.Join(append([]string{p.mnemonic}, p.operands...), " ")),
	}
}

func operandCountText(shape operandShape) string {
	if shape.min == shape.max {
		return strconv.Itoa(shape.min)
	}
	return fmt.Sprintf("%d-%d", shape.min, shape.max)
}

// parseOperand classifies a single operand token: a register, a memory
// dereference, an immediate literal, or (the catch-all) a label. A
// bareword that is none of the above is always accepted as a label —
// whether it resolves is left to Execute, which already implements the
// JMP-only label-fallback asymmetry for branch operands.
func (a *Assembler) parseOperand(text string, lineNo int) (vm.Operand, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return vm.Operand{}, fmt.Errorf("empty operand on line %d", lineNo)
	}

	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return parseMemoryOperand(text[1:len(text)-1], text, lineNo)
	}

	if vm.IsGeneralRegister(text) {
		return vm.Reg(strings.ToUpper(text)), nil
	}

	if v, ok := vm.ParseImmediateText(text); ok {
		return vm.Imm(int32(v)), nil
	}

	if !isIdentifier(text) {
		return vm.Operand{}, fmt.Errorf("invalid operand %q on line %d", text, lineNo)
	}
	return vm.Lbl(text), nil
}

func parseMemoryOperand(inner, text string, lineNo int) (vm.Operand, error) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return vm.Operand{}, fmt.Errorf("empty memory operand %q on line %d", text, lineNo)
	}

	signIdx := -1
	var signCh byte
	for i := 1; i < len(inner); i++ {
		if inner[i] == '+' || inner[i] == '-' {
			signIdx = i
			signCh = inner[i]
			break
		}
	}

	if signIdx == -1 {
		if vm.IsGeneralRegister(inner) {
			return vm.Mem(strings.ToUpper(inner), true, 0, text), nil
		}
		if v, ok := vm.ParseImmediateText(inner); ok {
			return vm.Mem("", false, int32(v), text), nil
		}
		return vm.Operand{}, fmt.Errorf("invalid memory operand %q on line %d", text, lineNo)
	}

	base := strings.TrimSpace(inner[:signIdx])
	dispText := strings.TrimSpace(inner[signIdx+1:])
	if !vm.IsGeneralRegister(base) {
		return vm.Operand{}, fmt.Errorf("invalid base register %q in memory operand %q on line %d", base, text, lineNo)
	}
	v, ok := vm.ParseImmediateText(dispText)
	if !ok {
		return vm.Operand{}, fmt.Errorf("invalid displacement %q in memory operand %q on line %d", dispText, text, lineNo)
	}
	if signCh == '-' {
		v = -v
	}
	return vm.Mem(strings.ToUpper(base), true, int32(v), text), nil
}

// parseLine splits one source line into its optional label(s), mnemonic,
// and operand tokens, stripping comments first.
func (a *Assembler) parseLine(raw string, lineNo int) parsedLine {
	p := parsedLine{lineNo: lineNo}
	line := stripComment(raw)
	line = strings.TrimSpace(line)
	if line == "" {
		return p
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		label := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(label, " \t") || !isIdentifier(label) {
			break
		}
		p.labels = append(p.labels, label)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p
		}
	}

	line = strings.NewReplacer(",", " ", "[", " [", "]", "] ").Replace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return p
	}

	p.mnemonic = strings.ToUpper(fields[0])
	p.operands = joinBracketedOperands(fields[1:])
	return p
}

// joinBracketedOperands re-merges a memory operand's tokens (split apart
// by the replacer in parseLine) back into one `[...]` operand string.
func joinBracketedOperands(fields []string) []string {
	var out []string
	var pending strings.Builder
	inBrackets := false
	for _, f := range fields {
		if inBrackets {
			pending.WriteString(" ")
			pending.WriteString(f)
			if strings.HasSuffix(f, "]") {
				out = append(out, pending.String())
				pending.Reset()
				inBrackets = false
			}
			continue
		}
		if strings.HasPrefix(f, "[") && !strings.HasSuffix(f, "]") {
			pending.WriteString(f)
			inBrackets = true
			continue
		}
		out = append(out, f)
	}
	if pending.Len() > 0 {
		out = append(out, pending.String())
	}
	return out
}

func stripComment(line string) string {
	cut := -1
	for _, marker := range []string{";", "#", "//"} {
		if idx := strings.Index(line, marker); idx >= 0 && (cut == -1 || idx < cut) {
			cut = idx
		}
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func normalizeLabel(name string) string {
	return strings.ToUpper(name)
}
