package assert

import (
	"testing"

	"gocpu8086/pkg/assembler"
	"gocpu8086/pkg/stepper"
	"gocpu8086/pkg/vm"
)

func runProgram(t *testing.T, asm string) (vm.CPUState, []vm.TraceEntry) {
	t.Helper()
	prog := assembler.Assemble(asm)
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", prog.Diagnostics)
	}
	s := stepper.New(prog)
	if _, err := s.Continue(); err != nil {
		t.Fatalf("continue: %v", err)
	}
	return s.Current(), s.Trace()
}

func TestParseAllFourStatementForms(t *testing.T) {
	script := "REG AX = 5\n# a comment\nMEM [0x0100] = 0x2A\n; also a comment\nOUT 14\nHALTED true\n"
	statements, diags := Parse(script)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(statements) != 4 {
		t.Fatalf("statements = %d, want 4", len(statements))
	}
	if statements[0].Kind != KindReg || statements[0].Register != "AX" || statements[0].Expected != 5 {
		t.Errorf("REG statement = %+v", statements[0])
	}
	if statements[1].Kind != KindMem || statements[1].Address != 0x0100 || statements[1].Expected != 0x2A {
		t.Errorf("MEM statement = %+v", statements[1])
	}
	if statements[2].Kind != KindOut || statements[2].Expected != 14 {
		t.Errorf("OUT statement = %+v", statements[2])
	}
	if statements[3].Kind != KindHalted || !statements[3].Halted {
		t.Errorf("HALTED statement = %+v", statements[3])
	}
}

func TestParseReportsDiagnosticButKeepsGoing(t *testing.T) {
	script := "REG AX 5\nREG BX = 7\n"
	statements, diags := Parse(script)
	if len(diags) != 1 {
		t.Fatalf("diags = %v, want exactly one", diags)
	}
	if len(statements) != 1 || statements[0].Register != "BX" {
		t.Fatalf("statements = %+v, want the well-formed BX line to still parse", statements)
	}
}

func TestRunChecksAgainstFinalState(t *testing.T) {
	final, trace := runProgram(t, "MOV AX, 10\nMOV BX, 0\nLOOP:\nADD BX, AX\nDEC AX\nJNZ LOOP\nOUT BX\nHLT\n")
	statements, diags := Parse("REG AX = 0\nREG BX = 55\nOUT 55\nHALTED true\n")
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	results := Run(statements, final, NumericOutputs(trace))
	if !AllPassed(results) {
		t.Fatalf("results = %+v, want all passing", results)
	}
}

func TestRunFailsOnMismatch(t *testing.T) {
	final, _ := runProgram(t, "MOV AX, 1\nHLT\n")
	statements, _ := Parse("REG AX = 99\n")
	results := Run(statements, final, nil)
	if AllPassed(results) {
		t.Fatalf("expected a failing result")
	}
	if results[0].Message == "" {
		t.Errorf("expected a diagnostic message on failure")
	}
}

func TestRunChecksMemoryWord(t *testing.T) {
	final, _ := runProgram(t, "MOV AX, 0x2A\nMOV [0x0100], AX\nHLT\n")
	statements, _ := Parse("MEM [0x0100] = 42\n")
	results := Run(statements, final, nil)
	if !AllPassed(results) {
		t.Fatalf("results = %+v, want passing", results)
	}
}

func TestNumericOutputsIgnoresCharacterOutput(t *testing.T) {
	_, trace := runProgram(t, "MOV AX, 65\nOUTC AX\nMOV AX, 7\nOUT AX\nHLT\n")
	outputs := NumericOutputs(trace)
	if len(outputs) != 1 || outputs[0] != 7 {
		t.Errorf("NumericOutputs = %v, want [7]", outputs)
	}
}
