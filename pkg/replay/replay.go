// Package replay serializes a stepper.Session to and from a textual JSON
// payload (struct-tagged DTOs, field-by-field restore) as a single
// plain-JSON document rather than a zip archive, addressed by name/version
// fields instead of a fixed archive layout.
package replay

import (
	"encoding/json"
	"fmt"

	"gocpu8086/pkg/assembler"
	"gocpu8086/pkg/codegen"
	"gocpu8086/pkg/diag"
	"gocpu8086/pkg/lexer"
	"gocpu8086/pkg/parser"
	"gocpu8086/pkg/stepper"
	"gocpu8086/pkg/vm"
)

// FormatVersion is written to every exported payload's "version" field.
const FormatVersion = 1

// snapshotInterval is how often Export emits a full-state checkpoint into
// the "snapshots" array, as an optional aid for tools that want to seek
// without replaying from the start. Import never depends on it.
const snapshotInterval = 50

type cpuState struct {
	AX     int64  `json:"ax"`
	BX     int64  `json:"bx"`
	CX     int64  `json:"cx"`
	DX     int64  `json:"dx"`
	SI     int64  `json:"si"`
	DI     int64  `json:"di"`
	SP     int64  `json:"sp"`
	BP     int64  `json:"bp"`
	IP     int64  `json:"ip"`
	FLAGS  int64  `json:"flags"`
	Memory []byte `json:"memory"`
	Halted bool   `json:"halted"`
	Error  string `json:"error,omitempty"`
}

func toCPUState(s vm.CPUState) cpuState {
	return cpuState{
		AX: int64(s.Registers.AX), BX: int64(s.Registers.BX),
		CX: int64(s.Registers.CX), DX: int64(s.Registers.DX),
		SI: int64(s.Registers.SI), DI: int64(s.Registers.DI),
		SP: int64(s.Registers.SP), BP: int64(s.Registers.BP),
		IP: int64(s.Registers.IP), FLAGS: int64(s.Registers.FLAGS),
		Memory: append([]byte(nil), s.Memory[:]...),
		Halted: s.Halted,
		Error:  s.Error,
	}
}

// mask16 clamps an out-of-range or negative imported value into the
// 16-bit word space, the "16-bit masking on import" tolerance a textual
// payload needs since nothing stops a hand-edited file from holding
// values outside uint16's range.
func mask16(v int64) uint16 {
	return uint16(uint32(v) & 0xFFFF)
}

func fromCPUState(d cpuState) vm.CPUState {
	var s vm.CPUState
	s.Registers.AX = mask16(d.AX)
	s.Registers.BX = mask16(d.BX)
	s.Registers.CX = mask16(d.CX)
	s.Registers.DX = mask16(d.DX)
	s.Registers.SI = mask16(d.SI)
	s.Registers.DI = mask16(d.DI)
	s.Registers.SP = mask16(d.SP)
	s.Registers.BP = mask16(d.BP)
	s.Registers.IP = mask16(d.IP)
	s.Registers.FLAGS = mask16(d.FLAGS)
	// Memory normalization: a payload's memory need not be exactly
	// MemorySize bytes; copy bounds itself to whichever is shorter, and
	// the destination array starts zeroed, covering both truncation and
	// padding in one line.
	copy(s.Memory[:], d.Memory)
	s.Halted = d.Halted
	s.Error = d.Error
	return s
}

type outputEvent struct {
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

type memoryWordDiff struct {
	Address int64 `json:"address"`
	Before  int64 `json:"before"`
	After   int64 `json:"after"`
}

type traceEntry struct {
	Step         int              `json:"step"`
	Opcode       string           `json:"opcode"`
	RawText      string           `json:"raw_text"`
	ChangedRegs  []string         `json:"changed_registers"`
	ChangedFlags []string         `json:"changed_flags"`
	MemoryReads  []int64          `json:"memory_reads"`
	MemoryWrites []int64          `json:"memory_writes"`
	MemoryDiff   []memoryWordDiff `json:"memory_diff"`
	Output       *outputEvent     `json:"output,omitempty"`
	Cycles       int              `json:"cycles"`
}

func toTraceEntry(e vm.TraceEntry) traceEntry {
	t := traceEntry{
		Step:         e.Step,
		Opcode:       e.Instruction.Opcode,
		RawText:      e.Instruction.RawText,
		ChangedRegs:  e.ChangedRegs,
		ChangedFlags: e.ChangedFlags,
		Cycles:       e.Cycles,
	}
	for _, a := range e.MemoryReads {
		t.MemoryReads = append(t.MemoryReads, int64(a))
	}
	for _, a := range e.MemoryWrites {
		t.MemoryWrites = append(t.MemoryWrites, int64(a))
	}
	for _, d := range e.MemoryDiff {
		t.MemoryDiff = append(t.MemoryDiff, memoryWordDiff{
			Address: int64(d.Address), Before: int64(d.Before), After: int64(d.After),
		})
	}
	if e.Output != nil {
		t.Output = &outputEvent{Kind: e.Output.Kind, Value: int64(e.Output.Value)}
	}
	return t
}

type snapshot struct {
	Step  int      `json:"step"`
	State cpuState `json:"state"`
}

// Payload is the top-level JSON document a session exports to and
// imports from.
type Payload struct {
	Version        int            `json:"version"`
	CreatedAtMs    int64          `json:"created_at_ms"`
	SourceCode     string         `json:"source_code,omitempty"`
	AsmCode        string         `json:"asm_code,omitempty"`
	Trace          []traceEntry   `json:"trace"`
	Snapshots      []snapshot     `json:"snapshots"`
	SavedSnapshots map[string]int `json:"saved_snapshots"`
	Breakpoints    []int          `json:"breakpoints"`
}

// SnapshotState decodes the CPUState recorded in the i-th entry of the
// payload's "snapshots" array, masking every register to 16 bits and
// normalizing memory to exactly vm.MemorySize bytes. Import never calls it:
// Import rebuilds state by replaying the program.
func (p *Payload) SnapshotState(i int) (vm.CPUState, error) {
	if i < 0 || i >= len(p.Snapshots) {
		return vm.CPUState{}, fmt.Errorf("snapshot index %d out of range [0,%d)", i, len(p.Snapshots))
	}
	return fromCPUState(p.Snapshots[i].State), nil
}

// Export builds a Payload from sess's current timeline and marshals it to
// indented JSON text. createdAtMs is supplied by the caller rather than
// stamped here, since this package must stay deterministic (no wall-clock
// reads) to keep its own tests reproducible.
func Export(sess *stepper.Session, sourceCode, asmCode string, createdAtMs int64) ([]byte, error) {
	trace := sess.Trace()
	p := Payload{
		Version:        FormatVersion,
		CreatedAtMs:    createdAtMs,
		SourceCode:     sourceCode,
		AsmCode:        asmCode,
		Trace:          []traceEntry{},
		Snapshots:      []snapshot{},
		SavedSnapshots: sess.SavedSnapshots(),
		Breakpoints:    sess.Breakpoints(),
	}
	for _, e := range trace {
		p.Trace = append(p.Trace, toTraceEntry(e))
	}
	for i, e := range trace {
		if (i+1)%snapshotInterval == 0 {
			p.Snapshots = append(p.Snapshots, snapshot{Step: e.Step + 1, State: toCPUState(e.After)})
		}
	}
	if len(trace) > 0 {
		last := trace[len(trace)-1]
		if len(p.Snapshots) == 0 || p.Snapshots[len(p.Snapshots)-1].Step != last.Step+1 {
			p.Snapshots = append(p.Snapshots, snapshot{Step: last.Step + 1, State: toCPUState(last.After)})
		}
	}
	return json.MarshalIndent(p, "", "  ")
}

// Import parses a Payload and rebuilds a live session from it. The
// program is reassembled preferentially from asm_code; if asm_code is
// empty, or assembling it produces a hard error, Import falls back to
// recompiling source_code through the full front end (lexer, parser,
// codegen, assembler). The session is then replayed forward by
// re-stepping the reassembled program exactly len(trace) times — the CPU
// core is a pure function of program and instruction count, so this
// reproduces the original run deterministically without needing the
// trace's embedded state to be trusted.
func Import(data []byte) (*stepper.Session, *Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("unmarshal replay payload: %w", err)
	}
	if p.Trace == nil || p.Snapshots == nil || p.Breakpoints == nil {
		return nil, nil, fmt.Errorf("replay payload is missing one of trace, snapshots, or breakpoints")
	}

	prog, err := reassemble(p)
	if err != nil {
		return nil, nil, err
	}

	sess := stepper.New(prog)
	for i := 0; i < len(p.Trace); i++ {
		if _, err := sess.Step(); err != nil {
			return nil, nil, fmt.Errorf("replaying step %d: %w", i, err)
		}
	}

	sess.ImportBreakpoints(p.Breakpoints)
	sess.ImportSavedSnapshots(p.SavedSnapshots)

	return sess, &p, nil
}

// reassemble rebuilds the vm.Program a payload was recorded against,
// preferring asm_code but falling back to recompiling source_code from
// scratch whenever asm_code is absent or fails to assemble cleanly.
func reassemble(p Payload) (*vm.Program, error) {
	if p.AsmCode != "" {
		prog := assembler.Assemble(p.AsmCode)
		if !prog.HasErrors() {
			return prog, nil
		}
		if p.SourceCode == "" {
			return nil, fmt.Errorf("reassembling asm_code produced diagnostics: %v", prog.Diagnostics)
		}
		return compileFromSource(p.SourceCode)
	}
	if p.SourceCode != "" {
		return compileFromSource(p.SourceCode)
	}
	return nil, fmt.Errorf("replay payload has neither asm_code nor source_code")
}

// compileFromSource runs source text through the full front end (lexer,
// parser, codegen, assembler), the same pipeline the CLI drivers use,
// stopping at the first stage that reports a hard error.
func compileFromSource(source string) (*vm.Program, error) {
	tokens, lexDiags := lexer.Lex(source)
	if diag.HasErrors(lexDiags) {
		return nil, fmt.Errorf("recompiling source_code: lexer diagnostics: %v", lexDiags)
	}

	astProg, parseDiags := parser.Parse(tokens)
	if diag.HasErrors(parseDiags) {
		return nil, fmt.Errorf("recompiling source_code: parser diagnostics: %v", parseDiags)
	}

	asmCode, genDiags := codegen.Generate(astProg)
	if diag.HasErrors(genDiags) {
		return nil, fmt.Errorf("recompiling source_code: codegen diagnostics: %v", genDiags)
	}

	prog := assembler.Assemble(asmCode)
	if prog.HasErrors() {
		return nil, fmt.Errorf("recompiling source_code: assembler diagnostics: %v", prog.Diagnostics)
	}
	return prog, nil
}
