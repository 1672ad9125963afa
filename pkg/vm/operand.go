package vm

import "fmt"

// OperandKind tags how an Operand resolves to a runtime value. The
// assembler classifies each operand once, at assembly time, rather than
// re-parsing its source text on every execution, caching a tagged variant
// directly on Instruction.
type OperandKind int

const (
	// OperandRegister names one of the eight general registers.
	OperandRegister OperandKind = iota
	// OperandImmediate holds a literal 16-bit value.
	OperandImmediate
	// OperandMemory is a [REG], [REG±disp], or [disp] dereference.
	OperandMemory
	// OperandLabel is a bareword resolved against the label table at
	// execution time.
	OperandLabel
)

// Operand is a single, already-classified instruction operand.
type Operand struct {
	Kind OperandKind

	// Register holds the register name for OperandRegister, and the base
	// register name for OperandMemory (when HasBase is true).
	Register string
	HasBase  bool

	// Immediate holds the literal value for OperandImmediate, and the
	// displacement (or bare address) for OperandMemory.
	Immediate int32

	// Label holds the bareword text for OperandLabel.
	Label string

	// Text is the original operand text, kept for diagnostics.
	Text string
}

// Reg builds a register operand.
func Reg(name string) Operand { return Operand{Kind: OperandRegister, Register: name, Text: name} }

// Imm builds an immediate operand.
func Imm(v int32) Operand {
	return Operand{Kind: OperandImmediate, Immediate: v, Text: fmt.Sprintf("%d", v)}
}

// Mem builds a memory operand with an optional base register and a
// displacement (or bare address when hasBase is false).
func Mem(base string, hasBase bool, disp int32, text string) Operand {
	return Operand{Kind: OperandMemory, Register: base, HasBase: hasBase, Immediate: disp, Text: text}
}

// Lbl builds a label operand.
func Lbl(name string) Operand { return Operand{Kind: OperandLabel, Label: name, Text: name} }

// EffectiveAddress computes the memory address an OperandMemory operand
// refers to, given the registers in effect before the instruction runs.
func EffectiveAddress(op Operand, regs Registers) (uint16, error) {
	if op.Kind != OperandMemory {
		return 0, fmt.Errorf("operand %q is not a memory operand", op.Text)
	}
	if !op.HasBase {
		return mask16(int64(op.Immediate)), nil
	}
	base, ok := regs.Get(op.Register)
	if !ok {
		return 0, fmt.Errorf("unknown base register %q", op.Register)
	}
	return mask16(int64(base) + int64(op.Immediate)), nil
}

// ResolveOperandValue reads an operand's value given the state in effect
// before an instruction executes. It is exported so callers outside this
// package (the stepper, to capture OUT/OUTC's value ahead of Execute) can
// read an operand the same way the CPU core itself does.
func ResolveOperandValue(op Operand, s CPUState) (uint16, error) {
	return resolveValue(op, &s)
}

// resolveValue reads an operand's value given the state before the instruction
// executes: a register's contents, an immediate's literal value, or the
// word at a memory operand's effective address.
func resolveValue(op Operand, s *CPUState) (uint16, error) {
	switch op.Kind {
	case OperandRegister:
		v, ok := s.Registers.Get(op.Register)
		if !ok {
			return 0, fmt.Errorf("unknown register %q", op.Register)
		}
		return v, nil
	case OperandImmediate:
		return mask16(int64(op.Immediate)), nil
	case OperandMemory:
		addr, err := EffectiveAddress(op, s.Registers)
		if err != nil {
			return 0, err
		}
		return s.ReadWord(addr)
	case OperandLabel:
		return 0, fmt.Errorf("label operand %q used as a value", op.Text)
	}
	return 0, fmt.Errorf("unresolvable operand %q", op.Text)
}

// writeValue writes a value to a register or memory destination operand.
func writeValue(op Operand, s *CPUState, value uint16) error {
	switch op.Kind {
	case OperandRegister:
		if !s.Registers.Set(op.Register, value) {
			return fmt.Errorf("unknown register %q", op.Register)
		}
		return nil
	case OperandMemory:
		addr, err := EffectiveAddress(op, s.Registers)
		if err != nil {
			return err
		}
		return s.WriteWord(addr, value)
	}
	return fmt.Errorf("operand %q is not a writable destination", op.Text)
}

// resolveBranchTarget resolves a Jcc/JMP/CALL operand to an instruction
// index. Label operands consult labels; by design only JMP falls back to
// parsing an unresolved label's text as a literal immediate — every other
// branch opcode treats that as an error.
func resolveBranchTarget(op Operand, labels map[string]int, allowLabelFallback bool) (int, error) {
	switch op.Kind {
	case OperandImmediate:
		return int(mask16(int64(op.Immediate))), nil
	case OperandLabel:
		if idx, ok := labels[normalizeLabel(op.Label)]; ok {
			return idx, nil
		}
		if allowLabelFallback {
			if v, ok := parseImmediateText(op.Label); ok {
				return int(mask16(int64(v))), nil
			}
		}
		return 0, fmt.Errorf("unknown label %q", op.Label)
	}
	return 0, fmt.Errorf("operand %q is not a branch target", op.Text)
}

// normalizeLabel upper-cases a label name; label matching is
// case-insensitive throughout the toolchain.
func normalizeLabel(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
