package vm

import "strings"

// Accesses reports the memory words a single instruction will read and
// write, computed structurally from the instruction's opcode/operands and
// the registers in effect *before* execution, so the stepper never has to
// re-parse operand text or peek at the post-state to build
// memory_reads/memory_writes.
func Accesses(instr Instruction, before CPUState) (reads, writes []uint16, err error) {
	op := strings.ToUpper(instr.Opcode)
	ops := instr.Operands
	regs := before.Registers

	addrOf := func(o Operand) (uint16, bool, error) {
		if o.Kind != OperandMemory {
			return 0, false, nil
		}
		a, e := EffectiveAddress(o, regs)
		return a, true, e
	}

	switch op {
	case "MOV":
		if len(ops) != 2 {
			return nil, nil, nil
		}
		if a, ok, e := addrOf(ops[0]); e != nil {
			return nil, nil, e
		} else if ok {
			writes = append(writes, a)
		}
		if a, ok, e := addrOf(ops[1]); e != nil {
			return nil, nil, e
		} else if ok {
			reads = append(reads, a)
		}

	case "ADD", "ADC", "SUB", "SBB", "CMP", "AND", "OR", "XOR":
		if len(ops) != 2 {
			return nil, nil, nil
		}
		if a, ok, e := addrOf(ops[1]); e != nil {
			return nil, nil, e
		} else if ok {
			reads = append(reads, a)
		}

	case "MUL", "DIV", "MOD", "NEG":
		if len(ops) != 1 {
			return nil, nil, nil
		}
		if a, ok, e := addrOf(ops[0]); e != nil {
			return nil, nil, e
		} else if ok {
			reads = append(reads, a)
		}

	case "PUSH":
		if len(ops) != 1 {
			return nil, nil, nil
		}
		if a, ok, e := addrOf(ops[0]); e != nil {
			return nil, nil, e
		} else if ok {
			reads = append(reads, a)
		}
		if regs.SP >= 2 {
			writes = append(writes, regs.SP-2)
		}

	case "POP":
		if len(ops) != 1 {
			return nil, nil, nil
		}
		reads = append(reads, regs.SP)
		if a, ok, e := addrOf(ops[0]); e != nil {
			return nil, nil, e
		} else if ok {
			writes = append(writes, a)
		}

	case "CALL":
		if regs.SP >= 2 {
			writes = append(writes, regs.SP-2)
		}

	case "RET":
		reads = append(reads, regs.SP)

	case "INT":
		if regs.SP >= 2 {
			writes = append(writes, regs.SP-2)
		}
		if regs.SP >= 4 {
			writes = append(writes, regs.SP-4)
		}
		if len(ops) == 1 {
			if v, e := resolveVector(ops[0], nil); e == nil {
				reads = append(reads, VectorAddress(v))
			}
		}

	case "IRET":
		reads = append(reads, regs.SP, regs.SP+2)

	case "IN":
		if len(ops) == 2 {
			if port, e := resolveValue(ops[1], &before); e == nil {
				reads = append(reads, PortAddress(port))
			}
		}

	case "OUTP":
		if len(ops) == 2 {
			if port, e := resolveValue(ops[0], &before); e == nil {
				writes = append(writes, PortAddress(port))
			}
		}
	}

	return reads, writes, nil
}
