package codegen

import (
	"strings"
	"testing"

	"gocpu8086/pkg/lexer"
	"gocpu8086/pkg/parser"
)

func generate(t *testing.T, src string) (string, int) {
	t.Helper()
	tokens, lexDiags := lexer.Lex(src)
	if len(lexDiags) != 0 {
		t.Fatalf("unexpected lex diagnostics: %v", lexDiags)
	}
	prog, parseDiags := parser.Parse(tokens)
	if len(parseDiags) != 0 {
		t.Fatalf("unexpected parse diagnostics: %v", parseDiags)
	}
	asm, diags := Generate(prog)
	return asm, len(diags)
}

func TestGeneratedProgramEndsWithHlt(t *testing.T) {
	asm, errs := generate(t, "x = 1\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	if lines[len(lines)-1] != "HLT" {
		t.Errorf("last line = %q, want HLT", lines[len(lines)-1])
	}
}

func TestAssignmentStoresToVariableSlot(t *testing.T) {
	asm, errs := generate(t, "x = 5\ny = x\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if !strings.Contains(asm, "MOV AX, 5") {
		t.Errorf("expected literal load, got:\n%s", asm)
	}
	if !strings.Contains(asm, "MOV [0x0100], AX") {
		t.Errorf("expected first variable at 0x0100, got:\n%s", asm)
	}
	if !strings.Contains(asm, "MOV AX, [0x0100]") {
		t.Errorf("expected read of x's slot, got:\n%s", asm)
	}
	if !strings.Contains(asm, "MOV [0x0102], AX") {
		t.Errorf("expected second variable at 0x0102, got:\n%s", asm)
	}
}

func TestPrintStringEmitsOutcPerCharacter(t *testing.T) {
	asm, errs := generate(t, `print "hi"`+"\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if !strings.Contains(asm, "MOV AX, 104") || !strings.Contains(asm, "MOV AX, 105") {
		t.Errorf("expected char codes for h (104) and i (105), got:\n%s", asm)
	}
	if strings.Count(asm, "OUTC AX") != 2 {
		t.Errorf("expected 2 OUTC AX instructions, got:\n%s", asm)
	}
}

func TestPrintExprEmitsOut(t *testing.T) {
	asm, errs := generate(t, "print 1 + 2\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if !strings.Contains(asm, "OUT AX") {
		t.Errorf("expected OUT AX, got:\n%s", asm)
	}
	if !strings.Contains(asm, "ADD AX, BX") {
		t.Errorf("expected ADD AX, BX, got:\n%s", asm)
	}
}

func TestIfElseUsesElseAndEndifLabels(t *testing.T) {
	asm, errs := generate(t, "if x > 0\nprint 1\nelse\nprint 0\nend\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	for _, want := range []string{"_else_0:", "_endif_0:", "JLE _else_0"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected %q in:\n%s", want, asm)
		}
	}
}

func TestIfWithoutElseSkipsElseLabel(t *testing.T) {
	asm, errs := generate(t, "if x > 0\nprint 1\nend\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if strings.Contains(asm, "_else_0:") {
		t.Errorf("no else clause should not emit an else label:\n%s", asm)
	}
	if !strings.Contains(asm, "_endif_0:") {
		t.Errorf("expected _endif_0 label:\n%s", asm)
	}
}

func TestWhileLoopBranchesBackToTop(t *testing.T) {
	asm, errs := generate(t, "while x > 0\nx = x - 1\nend\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	for _, want := range []string{"_while_0:", "_endwhile_0:", "JMP _while_0"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected %q in:\n%s", want, asm)
		}
	}
}

func TestForLoopAscendingUsesJg(t *testing.T) {
	asm, errs := generate(t, "for i = 1 to 10\nprint i\nend\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if !strings.Contains(asm, "JG _endfor_0") {
		t.Errorf("expected ascending loop to exit via JG, got:\n%s", asm)
	}
}

func TestForLoopNegativeStepUsesJl(t *testing.T) {
	asm, errs := generate(t, "for i = 10 to 1 step -1\nprint i\nend\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if !strings.Contains(asm, "JL _endfor_0") {
		t.Errorf("expected descending loop to exit via JL, got:\n%s", asm)
	}
}

func TestAndInConditionShortCircuits(t *testing.T) {
	asm, errs := generate(t, "if x > 0 and y > 0\nprint 1\nend\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if strings.Contains(asm, "AND AX, BX") {
		t.Errorf("'and' inside a condition must short-circuit, not compile to bitwise AND:\n%s", asm)
	}
}

func TestAndInExpressionIsBitwise(t *testing.T) {
	asm, errs := generate(t, "x = (1 > 0) and (1 > 0)\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if !strings.Contains(asm, "AND AX, BX") {
		t.Errorf("'and' in expression context should compile to bitwise AND:\n%s", asm)
	}
}

func TestInputReadsPortZero(t *testing.T) {
	asm, errs := generate(t, "input x\n")
	if errs != 0 {
		t.Fatalf("unexpected diagnostics: %d", errs)
	}
	if !strings.Contains(asm, "IN AX, 0") {
		t.Errorf("expected IN AX, 0, got:\n%s", asm)
	}
}

func TestVariableSlotsOutOfMemoryDiagnostic(t *testing.T) {
	var b strings.Builder
	b.WriteString("var v0 = 0\n")
	for i := 1; i < 2100; i++ {
		b.WriteString("var v")
		b.WriteString(itoa(i))
		b.WriteString(" = 0\n")
	}
	_, errs := generate(t, b.String())
	if errs == 0 {
		t.Fatalf("expected an out-of-memory diagnostic once variable slots exhaust RAM")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
