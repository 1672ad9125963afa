// Package parser implements a recursive-descent parser over the lexer's
// token stream, in a hand-written style (one method per
// grammar production, a `(node, ok)` result instead of panicking on the
// first bad token) but with error-recovery: a statement that fails to
// parse is skipped up to the next NEWLINE and the diagnostic is recorded,
// so a single typo in a large program does not blank the whole AST.
package parser

import (
	"fmt"

	"gocpu8086/pkg/diag"
	"gocpu8086/pkg/lexer"
	"gocpu8086/pkg/vm"
)

// Parser holds all mutable state for a single parse of a token stream.
type Parser struct {
	tokens      []lexer.Token
	pos         int
	diagnostics []diag.Diagnostic
}

// Parse runs the parser to completion over tokens and returns the
// resulting Program (always non-nil, possibly with empty tails where a
// construct failed to close) plus any diagnostics collected.
func Parse(tokens []lexer.Token) (*Program, []diag.Diagnostic) {
	p := &Parser{tokens: tokens}
	prog := &Program{}

	p.skipNewlines()
	if p.atKeyword("program") {
		p.advance()
		if p.peek().Kind == lexer.IDENTIFIER {
			prog.Name = p.advance().Value
		} else {
			p.errorf(p.peek(), "expected a program name after 'program'")
		}
		p.skipNewlines()
	}

	for p.peek().Kind != lexer.EOF {
		stmt, ok := p.parseStatement()
		if ok && stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.skipNewlines()
	}

	return prog, p.diagnostics
}

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.pos]
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) atKeyword(kw string) bool {
	tok := p.peek()
	return tok.Kind == lexer.KEYWORD && tok.Value == kw
}

func (p *Parser) atOperator(op string) bool {
	tok := p.peek()
	return tok.Kind == lexer.OPERATOR && tok.Value == op
}

func (p *Parser) atAnyOperator(ops ...string) bool {
	for _, op := range ops {
		if p.atOperator(op) {
			return true
		}
	}
	return false
}

func (p *Parser) expectOperator(op string) bool {
	if p.atOperator(op) {
		p.advance()
		return true
	}
	p.errorf(p.peek(), "expected %q", op)
	return false
}

func (p *Parser) expectKeyword(kw string) bool {
	if p.atKeyword(kw) {
		p.advance()
		return true
	}
	p.errorf(p.peek(), "expected %q", kw)
	return false
}

func (p *Parser) skipNewlines() {
	for p.peek().Kind == lexer.NEWLINE {
		p.advance()
	}
}

func (p *Parser) errorf(tok lexer.Token, format string, args ...any) {
	p.diagnostics = append(p.diagnostics, diag.Diagnostic{
		Stage:    "Parsing",
		Line:     tok.Line,
		Message:  fmt.Sprintf(format, args...),
		Severity: diag.Error,
	})
}

// recover discards tokens up to and including the next NEWLINE (or EOF),
// implementing the grammar's skip-to-next-line error policy.
func (p *Parser) recover() {
	for p.peek().Kind != lexer.NEWLINE && p.peek().Kind != lexer.EOF {
		p.advance()
	}
	if p.peek().Kind == lexer.NEWLINE {
		p.advance()
	}
}

func containsKeyword(stops []string, kw string) bool {
	for _, s := range stops {
		if s == kw {
			return true
		}
	}
	return false
}

// parseBlockUntil parses statements until the next token is a keyword in
// stops or EOF is reached; it never consumes the stop token itself.
func (p *Parser) parseBlockUntil(stops ...string) []Stmt {
	var stmts []Stmt
	p.skipNewlines()
	for {
		tok := p.peek()
		if tok.Kind == lexer.EOF {
			return stmts
		}
		if tok.Kind == lexer.KEYWORD && containsKeyword(stops, tok.Value) {
			return stmts
		}
		stmt, ok := p.parseStatement()
		if ok && stmt != nil {
			stmts = append(stmts, stmt)
		}
		p.skipNewlines()
	}
}

func (p *Parser) parseStatement() (Stmt, bool) {
	tok := p.peek()
	switch {
	case tok.Kind == lexer.KEYWORD && tok.Value == "var":
		return p.parseVarDecl()
	case tok.Kind == lexer.KEYWORD && tok.Value == "if":
		return p.parseIf()
	case tok.Kind == lexer.KEYWORD && tok.Value == "while":
		return p.parseWhile()
	case tok.Kind == lexer.KEYWORD && tok.Value == "for":
		return p.parseFor()
	case tok.Kind == lexer.KEYWORD && tok.Value == "print":
		return p.parsePrint()
	case tok.Kind == lexer.KEYWORD && tok.Value == "input":
		return p.parseInput()
	case tok.Kind == lexer.IDENTIFIER:
		return p.parseAssignment()
	default:
		p.errorf(tok, "expected a statement, got %s %q", tok.Kind, tok.Value)
		p.recover()
		return nil, false
	}
}

func (p *Parser) parseVarDecl() (Stmt, bool) {
	line := p.peek().Line
	p.advance() // 'var'
	if p.peek().Kind != lexer.IDENTIFIER {
		p.errorf(p.peek(), "expected a variable name after 'var'")
		p.recover()
		return nil, false
	}
	name := p.advance().Value
	var value Expr
	if p.atOperator("=") {
		p.advance()
		v, ok := p.parseExpr()
		if !ok {
			p.recover()
			return nil, false
		}
		value = v
	}
	return &VarDeclStmt{baseNode: baseNode{Line: line}, Name: name, Value: value}, true
}

func (p *Parser) parseAssignment() (Stmt, bool) {
	line := p.peek().Line
	name := p.advance().Value
	if !p.expectOperator("=") {
		p.recover()
		return nil, false
	}
	value, ok := p.parseExpr()
	if !ok {
		p.recover()
		return nil, false
	}
	return &AssignStmt{baseNode: baseNode{Line: line}, Name: name, Value: value}, true
}

func (p *Parser) parseIf() (Stmt, bool) {
	line := p.peek().Line
	p.advance() // 'if'
	cond, ok := p.parseExpr()
	if !ok {
		p.recover()
		return nil, false
	}
	if p.atKeyword("then") {
		p.advance()
	}
	thenBody := p.parseBlockUntil("else", "end")
	var elseBody []Stmt
	if p.atKeyword("else") {
		p.advance()
		elseBody = p.parseBlockUntil("end")
	}
	if p.atKeyword("end") {
		p.advance()
	} else {
		p.errorf(p.peek(), "expected 'end' to close 'if'")
	}
	return &IfStmt{baseNode: baseNode{Line: line}, Cond: cond, Then: thenBody, Else: elseBody}, true
}

func (p *Parser) parseWhile() (Stmt, bool) {
	line := p.peek().Line
	p.advance() // 'while'
	cond, ok := p.parseExpr()
	if !ok {
		p.recover()
		return nil, false
	}
	if p.atKeyword("do") {
		p.advance()
	}
	body := p.parseBlockUntil("end")
	if p.atKeyword("end") {
		p.advance()
	} else {
		p.errorf(p.peek(), "expected 'end' to close 'while'")
	}
	return &WhileStmt{baseNode: baseNode{Line: line}, Cond: cond, Body: body}, true
}

func (p *Parser) parseFor() (Stmt, bool) {
	line := p.peek().Line
	p.advance() // 'for'
	if p.peek().Kind != lexer.IDENTIFIER {
		p.errorf(p.peek(), "expected a loop variable name after 'for'")
		p.recover()
		return nil, false
	}
	name := p.advance().Value
	if !p.expectOperator("=") {
		p.recover()
		return nil, false
	}
	from, ok := p.parseExpr()
	if !ok {
		p.recover()
		return nil, false
	}
	if !p.expectKeyword("to") {
		p.recover()
		return nil, false
	}
	to, ok := p.parseExpr()
	if !ok {
		p.recover()
		return nil, false
	}
	var step Expr
	if p.atKeyword("step") {
		p.advance()
		step, ok = p.parseExpr()
		if !ok {
			p.recover()
			return nil, false
		}
	}
	body := p.parseBlockUntil("end")
	if p.atKeyword("end") {
		p.advance()
	} else {
		p.errorf(p.peek(), "expected 'end' to close 'for'")
	}
	return &ForStmt{baseNode: baseNode{Line: line}, Var: name, From: from, To: to, Step: step, Body: body}, true
}

func (p *Parser) parsePrint() (Stmt, bool) {
	line := p.peek().Line
	p.advance() // 'print'
	if p.peek().Kind == lexer.STRING {
		s := p.advance().Value
		return &PrintStmt{baseNode: baseNode{Line: line}, String: &s}, true
	}
	value, ok := p.parseExpr()
	if !ok {
		p.recover()
		return nil, false
	}
	return &PrintStmt{baseNode: baseNode{Line: line}, Value: value}, true
}

func (p *Parser) parseInput() (Stmt, bool) {
	line := p.peek().Line
	p.advance() // 'input'
	if p.peek().Kind != lexer.IDENTIFIER {
		p.errorf(p.peek(), "expected a variable name after 'input'")
		p.recover()
		return nil, false
	}
	name := p.advance().Value
	return &InputStmt{baseNode: baseNode{Line: line}, Name: name}, true
}

// --- expressions, lowest precedence first ---

func (p *Parser) parseExpr() (Expr, bool) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, bool) {
	left, ok := p.parseAnd()
	if !ok {
		return nil, false
	}
	for p.atKeyword("or") {
		line := p.advance().Line
		right, ok := p.parseAnd()
		if !ok {
			return nil, false
		}
		left = &BinaryExpr{baseNode: baseNode{Line: line}, Op: "or", Left: left, Right: right}
	}
	return left, true
}

func (p *Parser) parseAnd() (Expr, bool) {
	left, ok := p.parseCmp()
	if !ok {
		return nil, false
	}
	for p.atKeyword("and") {
		line := p.advance().Line
		right, ok := p.parseCmp()
		if !ok {
			return nil, false
		}
		left = &BinaryExpr{baseNode: baseNode{Line: line}, Op: "and", Left: left, Right: right}
	}
	return left, true
}

func (p *Parser) parseCmp() (Expr, bool) {
	left, ok := p.parseAdd()
	if !ok {
		return nil, false
	}
	for p.atAnyOperator("<", ">", "<=", ">=", "==", "!=") {
		op := p.advance()
		right, ok := p.parseAdd()
		if !ok {
			return nil, false
		}
		left = &BinaryExpr{baseNode: baseNode{Line: op.Line}, Op: op.Value, Left: left, Right: right}
	}
	return left, true
}

func (p *Parser) parseAdd() (Expr, bool) {
	left, ok := p.parseMul()
	if !ok {
		return nil, false
	}
	for p.atAnyOperator("+", "-") {
		op := p.advance()
		right, ok := p.parseMul()
		if !ok {
			return nil, false
		}
		left = &BinaryExpr{baseNode: baseNode{Line: op.Line}, Op: op.Value, Left: left, Right: right}
	}
	return left, true
}

func (p *Parser) parseMul() (Expr, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return nil, false
	}
	for p.atAnyOperator("*", "/", "%") {
		op := p.advance()
		right, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		left = &BinaryExpr{baseNode: baseNode{Line: op.Line}, Op: op.Value, Left: left, Right: right}
	}
	return left, true
}

func (p *Parser) parseUnary() (Expr, bool) {
	tok := p.peek()
	if tok.Kind == lexer.OPERATOR && tok.Value == "-" {
		p.advance()
		operand, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		return &UnaryExpr{baseNode: baseNode{Line: tok.Line}, Op: "-", Operand: operand}, true
	}
	if tok.Kind == lexer.KEYWORD && tok.Value == "not" {
		p.advance()
		operand, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		return &UnaryExpr{baseNode: baseNode{Line: tok.Line}, Op: "not", Operand: operand}, true
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, bool) {
	tok := p.peek()
	switch {
	case tok.Kind == lexer.NUMBER:
		p.advance()
		v, ok := vm.ParseImmediateText(tok.Value)
		if !ok {
			p.errorf(tok, "invalid number literal %q", tok.Value)
			return nil, false
		}
		return &NumberExpr{baseNode: baseNode{Line: tok.Line}, Value: v, Text: tok.Value}, true
	case tok.Kind == lexer.STRING:
		p.advance()
		return &StringExpr{baseNode: baseNode{Line: tok.Line}, Value: tok.Value}, true
	case tok.Kind == lexer.KEYWORD && tok.Value == "true":
		p.advance()
		return &BoolExpr{baseNode: baseNode{Line: tok.Line}, Value: true}, true
	case tok.Kind == lexer.KEYWORD && tok.Value == "false":
		p.advance()
		return &BoolExpr{baseNode: baseNode{Line: tok.Line}, Value: false}, true
	case tok.Kind == lexer.IDENTIFIER:
		p.advance()
		return &IdentExpr{baseNode: baseNode{Line: tok.Line}, Name: tok.Value}, true
	case tok.Kind == lexer.OPERATOR && tok.Value == "(":
		p.advance()
		inner, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		if !p.expectOperator(")") {
			return nil, false
		}
		return inner, true
	default:
		p.errorf(tok, "expected an expression, got %s %q", tok.Kind, tok.Value)
		return nil, false
	}
}
