// Package codegen walks a parsed program and emits assembly text for
// pkg/assembler, in a string-builder style (CodeGen.line/CodeGen.comment
// writing into a strings.Builder) targeting this language's own
// instruction set rather than a byte-coded ISA.
package codegen

import (
	"fmt"
	"strings"

	"gocpu8086/pkg/diag"
	"gocpu8086/pkg/parser"
	"gocpu8086/pkg/vm"
)

// CodeGen accumulates assembly text for a single program.
type CodeGen struct {
	out strings.Builder

	vars     map[string]int
	nextSlot int

	idCounter  int // shared by if/while/for: each construct claims one id
	tmpCounter int // internal comparison/short-circuit temporaries

	srcLineCounts map[int]int

	diagnostics []diag.Diagnostic
}

// Generate compiles prog to assembly text.
func Generate(prog *parser.Program) (string, []diag.Diagnostic) {
	cg := &CodeGen{
		vars:          make(map[string]int),
		nextSlot:      vm.VarBase,
		srcLineCounts: make(map[int]int),
	}
	for _, stmt := range prog.Statements {
		cg.genStmt(stmt)
	}
	cg.line("HLT")
	return cg.out.String(), cg.diagnostics
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("; "+format, args...)
}

func (cg *CodeGen) label(name string) {
	cg.line("%s:", name)
}

func (cg *CodeGen) errorf(line int, format string, args ...any) {
	cg.diagnostics = append(cg.diagnostics, diag.Diagnostic{
		Stage:    "Code Generation",
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
		Severity: diag.Error,
	})
}

// srcLabel emits the `_SRC_<line>[_<dup>]:` label that source-mapping
// consumers key off of.
func (cg *CodeGen) srcLabel(line int) {
	count := cg.srcLineCounts[line]
	cg.srcLineCounts[line] = count + 1
	if count == 0 {
		cg.label(fmt.Sprintf("_SRC_%d", line))
	} else {
		cg.label(fmt.Sprintf("_SRC_%d_%d", line, count))
	}
}

// claimID hands out the next id for an if/while/for construct.
func (cg *CodeGen) claimID() int {
	id := cg.idCounter
	cg.idCounter++
	return id
}

func (cg *CodeGen) tmpLabel(prefix string) string {
	id := cg.tmpCounter
	cg.tmpCounter++
	return fmt.Sprintf("_%s_%d", prefix, id)
}

// slotFor returns the RAM address backing name, allocating it on first
// use. Allocation order is first-reference order, per the codegen's
// variable convention.
func (cg *CodeGen) slotFor(name string, line int) int {
	if addr, ok := cg.vars[name]; ok {
		return addr
	}
	addr := cg.nextSlot
	if addr+2 >= 4095 {
		cg.errorf(line, "out of memory: no room left for variable %q", name)
	}
	cg.vars[name] = addr
	cg.nextSlot += 2
	return addr
}

func (cg *CodeGen) genStmts(stmts []parser.Stmt) {
	for _, s := range stmts {
		cg.genStmt(s)
	}
}

func (cg *CodeGen) genStmt(s parser.Stmt) {
	switch n := s.(type) {
	case *parser.VarDeclStmt:
		addr := cg.slotFor(n.Name, n.SourceLine())
		cg.srcLabel(n.SourceLine())
		if n.Value != nil {
			cg.genExpr(n.Value)
			cg.line("MOV [0x%04X], AX", addr)
		} else {
			cg.line("MOV AX, 0")
			cg.line("MOV [0x%04X], AX", addr)
		}

	case *parser.AssignStmt:
		addr := cg.slotFor(n.Name, n.SourceLine())
		cg.srcLabel(n.SourceLine())
		cg.genExpr(n.Value)
		cg.line("MOV [0x%04X], AX", addr)

	case *parser.PrintStmt:
		cg.srcLabel(n.SourceLine())
		if n.String != nil {
			for _, r := range *n.String {
				cg.line("MOV AX, %d", r)
				cg.line("OUTC AX")
			}
			return
		}
		cg.genExpr(n.Value)
		cg.line("OUT AX")

	case *parser.InputStmt:
		addr := cg.slotFor(n.Name, n.SourceLine())
		cg.srcLabel(n.SourceLine())
		cg.line("IN AX, 0")
		cg.line("MOV [0x%04X], AX", addr)

	case *parser.IfStmt:
		cg.genIf(n)

	case *parser.WhileStmt:
		cg.genWhile(n)

	case *parser.ForStmt:
		cg.genFor(n)

	default:
		cg.errorf(s.SourceLine(), "internal: unhandled statement %T", s)
	}
}

func (cg *CodeGen) genIf(n *parser.IfStmt) {
	id := cg.claimID()
	elseLabel := fmt.Sprintf("_else_%d", id)
	endLabel := fmt.Sprintf("_endif_%d", id)

	cg.srcLabel(n.SourceLine())
	if len(n.Else) > 0 {
		cg.genConditionFalseJump(n.Cond, elseLabel)
		cg.genStmts(n.Then)
		cg.line("JMP %s", endLabel)
		cg.label(elseLabel)
		cg.genStmts(n.Else)
	} else {
		cg.genConditionFalseJump(n.Cond, endLabel)
		cg.genStmts(n.Then)
	}
	cg.label(endLabel)
	cg.line("NOP")
}

func (cg *CodeGen) genWhile(n *parser.WhileStmt) {
	id := cg.claimID()
	startLabel := fmt.Sprintf("_while_%d", id)
	endLabel := fmt.Sprintf("_endwhile_%d", id)

	cg.label(startLabel)
	cg.srcLabel(n.SourceLine())
	cg.genConditionFalseJump(n.Cond, endLabel)
	cg.genStmts(n.Body)
	cg.line("JMP %s", startLabel)
	cg.label(endLabel)
	cg.line("NOP")
}

// literalStepValue reports the step clause's value when it is a plain
// numeric literal (optionally negated), and whether it is one at all.
func literalStepValue(e parser.Expr) (int64, bool) {
	switch n := e.(type) {
	case *parser.NumberExpr:
		return n.Value, true
	case *parser.UnaryExpr:
		if n.Op == "-" {
			if v, ok := literalStepValue(n.Operand); ok {
				return -v, true
			}
		}
	}
	return 0, false
}

func (cg *CodeGen) genFor(n *parser.ForStmt) {
	id := cg.claimID()
	startLabel := fmt.Sprintf("_for_%d", id)
	endLabel := fmt.Sprintf("_endfor_%d", id)
	addr := cg.slotFor(n.Var, n.SourceLine())

	cg.srcLabel(n.SourceLine())
	cg.genExpr(n.From)
	cg.line("MOV [0x%04X], AX", addr)

	// JG exits ascending loops (i > to); JL exits descending ones. The
	// choice is a compile-time decision from the step literal's sign; a
	// non-literal step defaults to JL along with a negative literal one.
	branchOp := "JL"
	if n.Step == nil {
		branchOp = "JG"
	} else if v, ok := literalStepValue(n.Step); ok && v >= 0 {
		branchOp = "JG"
	}

	cg.label(startLabel)
	cg.genExpr(n.To)
	cg.line("MOV BX, [0x%04X]", addr)
	cg.line("CMP BX, AX")
	cg.line("%s %s", branchOp, endLabel)

	cg.genStmts(n.Body)

	if n.Step != nil {
		cg.genExpr(n.Step)
		cg.line("MOV BX, AX")
		cg.line("MOV AX, [0x%04X]", addr)
		cg.line("ADD AX, BX")
		cg.line("MOV [0x%04X], AX", addr)
	} else {
		cg.line("MOV AX, [0x%04X]", addr)
		cg.line("INC AX")
		cg.line("MOV [0x%04X], AX", addr)
	}
	cg.line("JMP %s", startLabel)
	cg.label(endLabel)
	cg.line("NOP")
}

// --- conditions: short-circuit and/or, branch-on-false ---

// jccForFalse returns the mnemonic that jumps when the comparison op is
// false, i.e. the negated condition.
func jccForFalse(op string) string {
	switch op {
	case "<":
		return "JGE"
	case ">":
		return "JLE"
	case "<=":
		return "JG"
	case ">=":
		return "JL"
	case "==":
		return "JNE"
	case "!=":
		return "JE"
	}
	return "JMP"
}

// jccForTrue returns the mnemonic that jumps when the comparison op is
// true.
func jccForTrue(op string) string {
	switch op {
	case "<":
		return "JL"
	case ">":
		return "JG"
	case "<=":
		return "JLE"
	case ">=":
		return "JGE"
	case "==":
		return "JE"
	case "!=":
		return "JNE"
	}
	return "JMP"
}

func isComparisonOp(op string) bool {
	switch op {
	case "<", ">", "<=", ">=", "==", "!=":
		return true
	}
	return false
}

// genConditionFalseJump emits code that falls through when e is true and
// jumps to falseLabel when e is false. and/or compile to short-circuit
// branching here; every other expression is evaluated to a 0/1 value in
// AX and compared against zero.
func (cg *CodeGen) genConditionFalseJump(e parser.Expr, falseLabel string) {
	if n, ok := e.(*parser.BinaryExpr); ok {
		switch {
		case n.Op == "and":
			cg.genConditionFalseJump(n.Left, falseLabel)
			cg.genConditionFalseJump(n.Right, falseLabel)
			return
		case n.Op == "or":
			trueLabel := cg.tmpLabel("or_true")
			cg.genConditionTrueJump(n.Left, trueLabel)
			cg.genConditionFalseJump(n.Right, falseLabel)
			cg.label(trueLabel)
			return
		case isComparisonOp(n.Op):
			cg.genExpr(n.Left)
			cg.line("PUSH AX")
			cg.genExpr(n.Right)
			cg.line("MOV BX, AX")
			cg.line("POP AX")
			cg.line("CMP AX, BX")
			cg.line("%s %s", jccForFalse(n.Op), falseLabel)
			return
		}
	}
	cg.genExpr(e)
	cg.line("CMP AX, 0")
	cg.line("JZ %s", falseLabel)
}

// genConditionTrueJump emits code that jumps to trueLabel as soon as e is
// known true, falling through otherwise. It is the mirror of
// genConditionFalseJump, used to short-circuit the left side of `or` and
// the right side of `and` when nested inside a false-jump context.
func (cg *CodeGen) genConditionTrueJump(e parser.Expr, trueLabel string) {
	if n, ok := e.(*parser.BinaryExpr); ok {
		switch {
		case n.Op == "or":
			cg.genConditionTrueJump(n.Left, trueLabel)
			cg.genConditionTrueJump(n.Right, trueLabel)
			return
		case n.Op == "and":
			falseLabel := cg.tmpLabel("and_false")
			cg.genConditionFalseJump(n.Left, falseLabel)
			cg.genConditionTrueJump(n.Right, trueLabel)
			cg.label(falseLabel)
			return
		case isComparisonOp(n.Op):
			cg.genExpr(n.Left)
			cg.line("PUSH AX")
			cg.genExpr(n.Right)
			cg.line("MOV BX, AX")
			cg.line("POP AX")
			cg.line("CMP AX, BX")
			cg.line("%s %s", jccForTrue(n.Op), trueLabel)
			return
		}
	}
	cg.genExpr(e)
	cg.line("CMP AX, 0")
	cg.line("JNZ %s", trueLabel)
}

// --- expressions: always evaluated into AX ---

func (cg *CodeGen) genExpr(e parser.Expr) {
	switch n := e.(type) {
	case *parser.NumberExpr:
		cg.line("MOV AX, %s", n.Text)

	case *parser.BoolExpr:
		if n.Value {
			cg.line("MOV AX, 1")
		} else {
			cg.line("MOV AX, 0")
		}

	case *parser.StringExpr:
		cg.errorf(n.SourceLine(), "a string cannot be used in a numeric expression")
		cg.line("MOV AX, 0")

	case *parser.IdentExpr:
		addr := cg.slotFor(n.Name, n.SourceLine())
		cg.line("MOV AX, [0x%04X]", addr)

	case *parser.UnaryExpr:
		cg.genUnary(n)

	case *parser.BinaryExpr:
		cg.genBinary(n)

	default:
		cg.errorf(e.SourceLine(), "internal: unhandled expression %T", e)
		cg.line("MOV AX, 0")
	}
}

func (cg *CodeGen) genUnary(n *parser.UnaryExpr) {
	switch n.Op {
	case "-":
		cg.genExpr(n.Operand)
		cg.line("NEG AX")
	case "not":
		cg.genExpr(n.Operand)
		cg.line("CMP AX, 0")
		trueLabel := cg.tmpLabel("nottrue")
		endLabel := cg.tmpLabel("notend")
		cg.line("JZ %s", trueLabel)
		cg.line("MOV AX, 0")
		cg.line("JMP %s", endLabel)
		cg.label(trueLabel)
		cg.line("MOV AX, 1")
		cg.label(endLabel)
	default:
		cg.errorf(n.SourceLine(), "internal: unhandled unary operator %q", n.Op)
	}
}

func (cg *CodeGen) genBinary(n *parser.BinaryExpr) {
	if isComparisonOp(n.Op) {
		cg.genExpr(n.Left)
		cg.line("PUSH AX")
		cg.genExpr(n.Right)
		cg.line("MOV BX, AX")
		cg.line("POP AX")
		cg.line("CMP AX, BX")
		trueLabel := cg.tmpLabel("cmptrue")
		endLabel := cg.tmpLabel("cmpend")
		cg.line("%s %s", jccForTrue(n.Op), trueLabel)
		cg.line("MOV AX, 0")
		cg.line("JMP %s", endLabel)
		cg.label(trueLabel)
		cg.line("MOV AX, 1")
		cg.label(endLabel)
		return
	}

	cg.genExpr(n.Left)
	cg.line("PUSH AX")
	cg.genExpr(n.Right)
	cg.line("MOV BX, AX")
	cg.line("POP AX")
	switch n.Op {
	case "+":
		cg.line("ADD AX, BX")
	case "-":
		cg.line("SUB AX, BX")
	case "*":
		cg.line("MUL BX")
	case "/":
		// DIV divides DX:AX; DX only happens to be zero on the first
		// division after reset, so a chained divide needs it cleared
		// explicitly or it picks up the remainder of a previous DIV.
		cg.line("MOV DX, 0")
		cg.line("DIV BX")
	case "%":
		cg.line("MOD BX")
	case "and":
		cg.line("AND AX, BX")
	case "or":
		cg.line("OR AX, BX")
	default:
		cg.errorf(n.SourceLine(), "internal: unhandled binary operator %q", n.Op)
	}
}
