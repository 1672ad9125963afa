// Package cli holds the small amount of plumbing shared by the two
// command-line drivers (cmd/gocpu8086 and cmd/gocpu8086asm): compiling
// source through the full front end, running a program to completion,
// and formatting its output the way the debugger's display contract
// (numeric values as decimal digits, characters accumulated into lines)
// specifies. It is kept out of pkg/ because nothing in the core engine
// depends on it — it exists only to serve the two binaries.
package cli

import (
	"fmt"
	"strings"

	"gocpu8086/pkg/assembler"
	"gocpu8086/pkg/codegen"
	"gocpu8086/pkg/diag"
	"gocpu8086/pkg/lexer"
	"gocpu8086/pkg/parser"
	"gocpu8086/pkg/stepper"
	"gocpu8086/pkg/vm"
)

// CompileResult carries every artifact produced while turning source text
// into an assembled program, so a caller can show intermediate stages
// (e.g. --show-asm) without recompiling.
type CompileResult struct {
	AsmCode     string
	Program     *vm.Program
	Diagnostics []diag.Diagnostic
}

// CompileSource runs src through the lexer, parser, and code generator,
// then assembles the result. Diagnostics from every stage are
// concatenated in pipeline order; the pipeline stops at the first stage
// that reports an error, matching the error-handling design's "halts
// before" rule for each stage.
func CompileSource(src string) CompileResult {
	var all []diag.Diagnostic

	tokens, lexDiags := lexer.Lex(src)
	all = append(all, lexDiags...)
	if diag.HasErrors(lexDiags) {
		return CompileResult{Diagnostics: all}
	}

	prog, parseDiags := parser.Parse(tokens)
	all = append(all, parseDiags...)
	if diag.HasErrors(parseDiags) {
		return CompileResult{Diagnostics: all}
	}

	asmCode, genDiags := codegen.Generate(prog)
	all = append(all, genDiags...)
	if diag.HasErrors(genDiags) {
		return CompileResult{AsmCode: asmCode, Diagnostics: all}
	}

	vmProg := assembler.Assemble(asmCode)
	for _, d := range vmProg.Diagnostics {
		all = append(all, diag.Diagnostic{Stage: "Assembly", Line: d.Line, Message: d.Message, Severity: diag.Severity(d.Severity)})
	}

	return CompileResult{AsmCode: asmCode, Program: vmProg, Diagnostics: all}
}

// RunToCompletion drives a fresh session against prog until it halts, a
// breakpoint fires, or the step cap is hit.
func RunToCompletion(prog *vm.Program) (*stepper.Session, []vm.TraceEntry, error) {
	s := stepper.New(prog)
	entries, err := s.Continue()
	return s, entries, err
}

// FormatOutput renders a trace's output events per the console display
// contract: a numeric OUT event prints as decimal digits followed by a
// newline; an OUTC event's character accumulates into the current line,
// and a character of value 10 terminates that line.
func FormatOutput(entries []vm.TraceEntry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Output == nil {
			continue
		}
		switch e.Output.Kind {
		case "OUT":
			fmt.Fprintf(&b, "%d\n", e.Output.Value)
		case "OUTC":
			if e.Output.Value == 10 {
				b.WriteByte('\n')
			} else {
				b.WriteRune(rune(e.Output.Value))
			}
		}
	}
	return b.String()
}

// FormatDiagnostics renders a diagnostic list one per line, in the
// "stage: line N: severity: message" shape the cmd/ drivers print errors in.
func FormatDiagnostics(diags []diag.Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "%s: line %d: %s: %s\n", d.Stage, d.Line, d.Severity, d.Message)
	}
	return b.String()
}
