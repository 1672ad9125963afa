// Package assert implements the line-oriented assertion mini-language
// used to check a run's final state without writing Go: REG/MEM/OUT/
// HALTED statements, checked against a stepper's final CPUState and its
// accumulated output. It follows the same front-end idiom as the rest of
// this toolchain, returning a diagnostic list rather than failing fast on
// the first bad line (pkg/lexer, pkg/parser, pkg/codegen all do the same).
package assert

import (
	"fmt"
	"strconv"
	"strings"

	"gocpu8086/pkg/diag"
	"gocpu8086/pkg/vm"
)

// Kind tags which statement form a Statement is.
type Kind int

const (
	KindReg Kind = iota
	KindMem
	KindOut
	KindHalted
)

// Statement is one parsed assertion.
type Statement struct {
	Kind     Kind
	Line     int
	Register string
	Address  uint16
	Expected int64
	Halted   bool
	Raw      string
}

// Parse reads an assertion script and returns its statements plus any
// diagnostics for malformed lines. Parsing continues past a bad line, the
// same way the lexer and parser keep going to collect every diagnostic in
// one pass rather than stopping at the first one.
func Parse(script string) ([]Statement, []diag.Diagnostic) {
	var statements []Statement
	var diagnostics []diag.Diagnostic

	lines := strings.Split(script, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		text := stripComment(raw)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		stmt, err := parseLine(text, lineNo)
		if err != nil {
			diagnostics = append(diagnostics, diag.Diagnostic{
				Stage: "Assertion", Line: lineNo, Message: err.Error(), Severity: diag.Error,
			})
			continue
		}
		statements = append(statements, stmt)
	}
	return statements, diagnostics
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return line
}

func parseLine(text string, lineNo int) (Statement, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Statement{}, fmt.Errorf("empty statement")
	}
	keyword := strings.ToUpper(fields[0])

	switch keyword {
	case "REG":
		if len(fields) != 4 || fields[2] != "=" {
			return Statement{}, fmt.Errorf("expected REG <name> = <literal>, got %q", text)
		}
		lit, ok := vm.ParseImmediateText(fields[3])
		if !ok {
			return Statement{}, fmt.Errorf("invalid literal %q", fields[3])
		}
		return Statement{Kind: KindReg, Line: lineNo, Register: fields[1], Expected: lit, Raw: text}, nil

	case "MEM":
		if len(fields) != 4 || fields[2] != "=" {
			return Statement{}, fmt.Errorf("expected MEM [<addr>] = <literal>, got %q", text)
		}
		addrText := fields[1]
		if !strings.HasPrefix(addrText, "[") || !strings.HasSuffix(addrText, "]") {
			return Statement{}, fmt.Errorf("expected a bracketed address, got %q", addrText)
		}
		addrText = strings.TrimSuffix(strings.TrimPrefix(addrText, "["), "]")
		addr, ok := vm.ParseImmediateText(addrText)
		if !ok {
			return Statement{}, fmt.Errorf("invalid address %q", addrText)
		}
		lit, ok := vm.ParseImmediateText(fields[3])
		if !ok {
			return Statement{}, fmt.Errorf("invalid literal %q", fields[3])
		}
		return Statement{Kind: KindMem, Line: lineNo, Address: uint16(uint32(addr) & 0xFFFF), Expected: lit, Raw: text}, nil

	case "OUT":
		if len(fields) != 2 {
			return Statement{}, fmt.Errorf("expected OUT <literal>, got %q", text)
		}
		lit, ok := vm.ParseImmediateText(fields[1])
		if !ok {
			return Statement{}, fmt.Errorf("invalid literal %q", fields[1])
		}
		return Statement{Kind: KindOut, Line: lineNo, Expected: lit, Raw: text}, nil

	case "HALTED":
		if len(fields) != 2 {
			return Statement{}, fmt.Errorf("expected HALTED <true|false>, got %q", text)
		}
		halted, err := strconv.ParseBool(strings.ToLower(fields[1]))
		if err != nil {
			return Statement{}, fmt.Errorf("invalid boolean %q", fields[1])
		}
		return Statement{Kind: KindHalted, Line: lineNo, Halted: halted, Raw: text}, nil
	}

	return Statement{}, fmt.Errorf("unknown assertion keyword %q", fields[0])
}

// Result is the outcome of checking one statement.
type Result struct {
	Statement Statement
	Passed    bool
	Message   string
}

// Run checks every statement against final (the machine state at the end
// of a run) and outputs (the sequence of numeric OUT event values
// observed over the run, in order).
func Run(statements []Statement, final vm.CPUState, outputs []int64) []Result {
	results := make([]Result, 0, len(statements))
	for _, stmt := range statements {
		results = append(results, check(stmt, final, outputs))
	}
	return results
}

func check(stmt Statement, final vm.CPUState, outputs []int64) Result {
	want := int64(uint16(uint32(stmt.Expected) & 0xFFFF))

	switch stmt.Kind {
	case KindReg:
		got, ok := final.Registers.Get(stmt.Register)
		if !ok {
			return Result{Statement: stmt, Passed: false, Message: fmt.Sprintf("unknown register %q", stmt.Register)}
		}
		if int64(got) != want {
			return Result{Statement: stmt, Passed: false, Message: fmt.Sprintf("%s = %d, want %d", stmt.Register, got, want)}
		}
		return Result{Statement: stmt, Passed: true}

	case KindMem:
		got, err := final.ReadWord(stmt.Address)
		if err != nil {
			return Result{Statement: stmt, Passed: false, Message: err.Error()}
		}
		if int64(got) != want {
			return Result{Statement: stmt, Passed: false, Message: fmt.Sprintf("[0x%04X] = %d, want %d", stmt.Address, got, want)}
		}
		return Result{Statement: stmt, Passed: true}

	case KindOut:
		for _, v := range outputs {
			if v == want {
				return Result{Statement: stmt, Passed: true}
			}
		}
		return Result{Statement: stmt, Passed: false, Message: fmt.Sprintf("output sequence does not contain %d", want)}

	case KindHalted:
		if final.Halted != stmt.Halted {
			return Result{Statement: stmt, Passed: false, Message: fmt.Sprintf("halted = %v, want %v", final.Halted, stmt.Halted)}
		}
		return Result{Statement: stmt, Passed: true}
	}

	return Result{Statement: stmt, Passed: false, Message: "unrecognized statement kind"}
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// NumericOutputs extracts the numeric (OUT, not OUTC) output sequence
// from a trace, in the order produced, for use with Run.
func NumericOutputs(entries []vm.TraceEntry) []int64 {
	var out []int64
	for _, e := range entries {
		if e.Output != nil && e.Output.Kind == "OUT" {
			out = append(out, int64(e.Output.Value))
		}
	}
	return out
}
