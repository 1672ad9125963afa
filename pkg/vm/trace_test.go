package vm

import "testing"

func TestBuildTraceEntryRecordsRegisterChange(t *testing.T) {
	before := Reset()
	instr := Instruction{Opcode: "MOV", Operands: []Operand{Reg("AX"), Imm(7)}}
	entry := BuildTraceEntry(0, instr, before, nil, nil)

	if entry.After.Registers.AX != 7 {
		t.Fatalf("AX = %d, want 7", entry.After.Registers.AX)
	}
	found := false
	for _, r := range entry.ChangedRegs {
		if r == "AX" {
			found = true
		}
	}
	if !found {
		t.Errorf("ChangedRegs = %v, want to include AX", entry.ChangedRegs)
	}
}

func TestBuildTraceEntryRecordsMemoryDiff(t *testing.T) {
	before := Reset()
	instr := Instruction{Opcode: "MOV", Operands: []Operand{Mem("", false, 0x0100, "[0x0100]"), Imm(42)}}
	entry := BuildTraceEntry(0, instr, before, nil, nil)

	if len(entry.MemoryDiff) != 1 {
		t.Fatalf("MemoryDiff = %+v, want 1 entry", entry.MemoryDiff)
	}
	d := entry.MemoryDiff[0]
	if d.Address != 0x0100 || d.Before != 0 || d.After != 42 {
		t.Errorf("diff = %+v, want address 0x0100, 0->42", d)
	}
}

func TestBuildTraceEntryCapturesSuppliedOutput(t *testing.T) {
	before := Reset()
	before.Registers.AX = 65
	instr := Instruction{Opcode: "OUTC", Operands: []Operand{Reg("AX")}}
	out := &OutputEvent{Kind: "OUTC", Value: 65}
	entry := BuildTraceEntry(0, instr, before, nil, out)

	if entry.Output == nil || entry.Output.Value != 65 {
		t.Errorf("Output = %+v, want captured value 65", entry.Output)
	}
}

func TestBuildTraceEntryCyclesMatchCyclesTable(t *testing.T) {
	before := Reset()
	instr := Instruction{Opcode: "MUL", Operands: []Operand{Reg("BX")}}
	entry := BuildTraceEntry(0, instr, before, nil, nil)
	if entry.Cycles != Cycles(instr) {
		t.Errorf("Cycles = %d, want %d", entry.Cycles, Cycles(instr))
	}
}
