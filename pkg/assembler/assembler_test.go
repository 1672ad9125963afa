package assembler

import (
	"testing"

	"gocpu8086/pkg/vm"
)

func TestSimpleProgramAssembles(t *testing.T) {
	prog := Assemble("MOV AX, 5\nADD AX, 3\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	if len(prog.Instructions) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(prog.Instructions))
	}
	if prog.Instructions[0].Opcode != "MOV" || prog.Instructions[0].Operands[1].Kind != vm.OperandImmediate {
		t.Errorf("instruction 0 = %+v", prog.Instructions[0])
	}
}

func TestLabelsResolveToInstructionIndex(t *testing.T) {
	prog := Assemble("start:\nMOV AX, 1\nJMP start\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	idx, ok := prog.ResolveLabel("start")
	if !ok || idx != 0 {
		t.Errorf("label 'start' = %d,%v, want 0,true", idx, ok)
	}
	jmp := prog.Instructions[1]
	if jmp.Opcode != "JMP" || jmp.Operands[0].Kind != vm.OperandLabel || jmp.Operands[0].Label != "start" {
		t.Errorf("jmp instruction = %+v", jmp)
	}
}

func TestDuplicateLabelIsAnError(t *testing.T) {
	prog := Assemble("a:\nMOV AX, 1\na:\nMOV AX, 2\nHLT\n")
	if !prog.HasErrors() {
		t.Fatalf("expected a duplicate-label diagnostic")
	}
}

func TestUnknownOpcodeIsAnError(t *testing.T) {
	prog := Assemble("FROB AX, 1\nHLT\n")
	if !prog.HasErrors() {
		t.Fatalf("expected an unknown-opcode diagnostic")
	}
}

func TestUnknownOpcodeStillContributesInstructionSlot(t *testing.T) {
	prog := Assemble("MOV AX, 1\nFROB AX, 1\ntarget:\nMOV BX, 2\nHLT\n")
	if !prog.HasErrors() {
		t.Fatalf("expected an unknown-opcode diagnostic")
	}
	if got, want := prog.Labels["TARGET"], 2; got != want {
		t.Fatalf("label TARGET = %d, want %d (unknown opcode line must still occupy a slot)", got, want)
	}
	if len(prog.Instructions) < 3 || prog.Instructions[2].Opcode != "MOV" {
		t.Fatalf("expected the MOV BX, 2 instruction at index 2, got %+v", prog.Instructions)
	}
}

func TestWrongOperandCountIsAnError(t *testing.T) {
	prog := Assemble("MOV AX\nHLT\n")
	if !prog.HasErrors() {
		t.Fatalf("expected a wrong-operand-count diagnostic")
	}
}

func TestMemoryOperandWithBareAddress(t *testing.T) {
	prog := Assemble("MOV AX, [0x0100]\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	op := prog.Instructions[0].Operands[1]
	if op.Kind != vm.OperandMemory || op.HasBase || op.Immediate != 0x0100 {
		t.Errorf("memory operand = %+v", op)
	}
}

func TestMemoryOperandWithBaseAndDisplacement(t *testing.T) {
	prog := Assemble("MOV AX, [BX+4]\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	op := prog.Instructions[0].Operands[1]
	if op.Kind != vm.OperandMemory || !op.HasBase || op.Register != "BX" || op.Immediate != 4 {
		t.Errorf("memory operand = %+v", op)
	}
}

func TestMemoryOperandWithNegativeDisplacement(t *testing.T) {
	prog := Assemble("MOV AX, [BP-2]\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	op := prog.Instructions[0].Operands[1]
	if op.Kind != vm.OperandMemory || op.Register != "BP" || op.Immediate != -2 {
		t.Errorf("memory operand = %+v", op)
	}
}

func TestCommentsAreStripped(t *testing.T) {
	prog := Assemble("MOV AX, 1 ; set ax\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	if len(prog.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(prog.Instructions))
	}
}

func TestTrailingHltIsInsertedWhenMissing(t *testing.T) {
	prog := Assemble("MOV AX, 1\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	last := prog.Instructions[len(prog.Instructions)-1]
	if last.Opcode != "HLT" {
		t.Errorf("last instruction = %+v, want an inserted HLT", last)
	}
}

func TestExistingTrailingHltIsNotDuplicated(t *testing.T) {
	prog := Assemble("MOV AX, 1\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	count := 0
	for _, instr := range prog.Instructions {
		if instr.Opcode == "HLT" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("HLT count = %d, want 1", count)
	}
}

func TestLabelsAreCaseInsensitive(t *testing.T) {
	prog := Assemble("Start:\nMOV AX, 1\nJMP START\nHLT\n")
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	if _, ok := prog.ResolveLabel("start"); !ok {
		t.Errorf("expected case-insensitive label resolution")
	}
}
