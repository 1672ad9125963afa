// Package stepper is the time-travel debugging engine: it drives a
// vm.Program instruction by instruction, keeping an append-only trace so
// execution can be stepped, continued, broken on, watched, and rewound.
// It follows a CPU.Step()/run-loop shape and a snapshot/restore idiom,
// adapted here to a pure, value-typed CPUState instead of a mutable one.
package stepper

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gocpu8086/pkg/vm"
)

// WatchKind selects what a Watchpoint reacts to.
type WatchKind int

const (
	WatchWrite WatchKind = iota
	WatchRead
	WatchChange
)

// Watchpoint fires when an instruction touches any word in
// [Address, Address+Size) in a way matching Kind. WatchChange only fires
// when the word's value actually differs, unlike WatchWrite which fires
// on any write regardless of value.
type Watchpoint struct {
	ID      int
	Address uint16
	Size    uint16
	Kind    WatchKind
}

// WatchHit is one watchpoint firing during a single step.
type WatchHit struct {
	Watchpoint Watchpoint
	Address    uint16
}

// PerformanceRecord is the stepper's running cost bookkeeping. It has no
// effect on correctness; it exists so a caller can show "how hot is this
// program" the way a real profiler would.
type PerformanceRecord struct {
	InstructionsExecuted int
	TotalCycles          int
	SimulatedLoad        float64
}

const emaCoefficient = 0.35

// Session drives one program through time. The zero value is not usable;
// construct with New.
type Session struct {
	Program *vm.Program
	Initial vm.CPUState

	trace []vm.TraceEntry
	// cursor is the number of trace entries "applied" — i.e. the current
	// state is Initial when cursor==0, else trace[cursor-1].After.
	cursor int

	breakpoints map[int]bool
	watchpoints []Watchpoint
	nextWatchID int

	savedSnapshots map[string]int

	perf PerformanceRecord
}

// New starts a session against prog from a freshly reset machine.
func New(prog *vm.Program) *Session {
	return &Session{
		Program:        prog,
		Initial:        vm.Reset(),
		breakpoints:    make(map[int]bool),
		savedSnapshots: make(map[string]int),
	}
}

// Current returns the machine state at the session's cursor.
func (s *Session) Current() vm.CPUState {
	if s.cursor == 0 {
		return s.Initial
	}
	return s.trace[s.cursor-1].After
}

// Trace returns the trace entries up to the cursor. Entries beyond the
// cursor, left over from a rewind, are not included; Seek forward brings
// them back, and the next Step discards them.
func (s *Session) Trace() []vm.TraceEntry {
	return s.trace[:s.cursor]
}

// Step executes exactly one instruction and advances the cursor. If the
// cursor was behind the tip (the caller had stepped back), the trace
// beyond the cursor is discarded first: stepping forward from a rewound
// point starts a new timeline branch rather than replaying the old one.
func (s *Session) Step() (vm.TraceEntry, error) {
	state := s.Current()
	if state.Halted {
		return vm.TraceEntry{}, fmt.Errorf("machine is halted: %s", state.Error)
	}
	if int(state.Registers.IP) >= len(s.Program.Instructions) {
		return vm.TraceEntry{}, fmt.Errorf("instruction pointer 0x%04X is past the end of the program", state.Registers.IP)
	}

	if s.cursor < len(s.trace) {
		s.trace = s.trace[:s.cursor]
	}

	instr := s.Program.Instructions[state.Registers.IP]
	output := captureOutput(instr, state)

	entry := vm.BuildTraceEntry(s.cursor, instr, state, s.Program.Labels, output)
	s.trace = append(s.trace, entry)
	s.cursor++

	s.recordPerformance(entry)

	return entry, nil
}

// captureOutput reads the OUT/OUTC operand's value from the pre-execution
// state, since Execute leaves OUT/OUTC's side effect to the caller.
func captureOutput(instr vm.Instruction, before vm.CPUState) *vm.OutputEvent {
	op := strings.ToUpper(instr.Opcode)
	if op != "OUT" && op != "OUTC" {
		return nil
	}
	if len(instr.Operands) != 1 {
		return nil
	}
	v, err := vm.ResolveOperandValue(instr.Operands[0], before)
	if err != nil {
		return nil
	}
	return &vm.OutputEvent{Kind: op, Value: v}
}

func (s *Session) recordPerformance(entry vm.TraceEntry) {
	s.perf.InstructionsExecuted++
	s.perf.TotalCycles += entry.Cycles

	churn := len(entry.ChangedRegs) + len(entry.ChangedFlags) + len(entry.MemoryDiff)
	cyclePressure := minInt(100, roundInt(float64(entry.Cycles)/18*100))
	churnPressure := minInt(100, churn*12)
	instant := minInt(100, roundInt(0.7*float64(cyclePressure)+0.3*float64(churnPressure)))

	s.perf.SimulatedLoad = s.perf.SimulatedLoad*(1-emaCoefficient) + float64(instant)*emaCoefficient
}

func roundInt(f float64) int { return int(math.Round(f)) }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ReplayScenario re-executes a program for n steps, then seeks back to
// rewindTo and steps forward to n again. It exists mainly to let tests
// assert the state reached by straight-line execution and by a
// seek-then-replay detour are byte-identical, without duplicating that
// stepping dance inline in every caller.
func ReplayScenario(prog *vm.Program, n, rewindTo int) (*Session, error) {
	s := New(prog)
	for i := 0; i < n; i++ {
		if _, err := s.Step(); err != nil {
			return nil, err
		}
	}
	if err := s.Seek(rewindTo); err != nil {
		return nil, err
	}
	for s.cursor < n {
		if _, err := s.Step(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Performance returns a copy of the session's running performance record.
func (s *Session) Performance() PerformanceRecord {
	return s.perf
}

// Continue steps until halted, a breakpoint is hit, a watchpoint fires, or
// vm.MaxStepsPerContinue instructions have run without any of those, in
// which case it returns the exact "Maximum steps exceeded (infinite
// loop?)" diagnostic. A watchpoint match pauses execution after the step
// that triggered it, the same as a breakpoint.
func (s *Session) Continue() ([]vm.TraceEntry, error) {
	var run []vm.TraceEntry
	for i := 0; i < vm.MaxStepsPerContinue; i++ {
		entry, err := s.Step()
		if err != nil {
			return run, err
		}
		run = append(run, entry)
		if entry.After.Halted {
			return run, nil
		}
		if s.breakpoints[int(entry.After.Registers.IP)] {
			return run, nil
		}
		if len(s.CheckWatchpoints(entry)) > 0 {
			return run, nil
		}
	}
	return run, fmt.Errorf("Maximum steps exceeded (infinite loop?)")
}

// StepOver behaves like Step, except when the instruction is a CALL: it
// keeps stepping until control returns to the depth it started at,
// treating the whole call as one logical step. Depth is tracked by
// counting CALL/RET instructions actually executed, so it still
// terminates correctly through recursion. A watchpoint match pauses it
// after the current step, same as a breakpoint would pause Continue.
func (s *Session) StepOver() ([]vm.TraceEntry, error) {
	first, err := s.Step()
	if err != nil {
		return nil, err
	}
	run := []vm.TraceEntry{first}
	if strings.ToUpper(first.Instruction.Opcode) != "CALL" || len(s.CheckWatchpoints(first)) > 0 {
		return run, nil
	}

	depth := 1
	for i := 0; i < vm.MaxStepsPerContinue; i++ {
		if depth == 0 {
			return run, nil
		}
		entry, err := s.Step()
		if err != nil {
			return run, err
		}
		run = append(run, entry)
		switch strings.ToUpper(entry.Instruction.Opcode) {
		case "CALL":
			depth++
		case "RET":
			depth--
		}
		if entry.After.Halted {
			return run, nil
		}
		if len(s.CheckWatchpoints(entry)) > 0 {
			return run, nil
		}
	}
	return run, fmt.Errorf("Maximum steps exceeded (infinite loop?)")
}

// StepBack moves the cursor one step earlier, failing at the start of the
// timeline.
func (s *Session) StepBack() error {
	if s.cursor == 0 {
		return fmt.Errorf("already at the start of the timeline")
	}
	s.cursor--
	return nil
}

// Seek moves the cursor to an arbitrary step count (0 means the initial
// state, before any instruction has run).
func (s *Session) Seek(step int) error {
	if step < 0 || step > len(s.trace) {
		return fmt.Errorf("step %d is out of range [0,%d]", step, len(s.trace))
	}
	s.cursor = step
	return nil
}

// AddBreakpoint arms a breakpoint at an instruction index.
func (s *Session) AddBreakpoint(instructionIndex int) {
	s.breakpoints[instructionIndex] = true
}

// RemoveBreakpoint disarms a breakpoint.
func (s *Session) RemoveBreakpoint(instructionIndex int) {
	delete(s.breakpoints, instructionIndex)
}

// Breakpoints returns the currently armed instruction indices.
func (s *Session) Breakpoints() []int {
	out := make([]int, 0, len(s.breakpoints))
	for idx := range s.breakpoints {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// AddWatchpoint arms a new watchpoint and returns its id.
func (s *Session) AddWatchpoint(address, size uint16, kind WatchKind) int {
	id := s.nextWatchID
	s.nextWatchID++
	s.watchpoints = append(s.watchpoints, Watchpoint{ID: id, Address: address, Size: size, Kind: kind})
	return id
}

// RemoveWatchpoint disarms a watchpoint by id.
func (s *Session) RemoveWatchpoint(id int) {
	for i, w := range s.watchpoints {
		if w.ID == id {
			s.watchpoints = append(s.watchpoints[:i], s.watchpoints[i+1:]...)
			return
		}
	}
}

// CheckWatchpoints reports every watchpoint an already-built TraceEntry
// triggers.
func (s *Session) CheckWatchpoints(entry vm.TraceEntry) []WatchHit {
	var hits []WatchHit
	for _, w := range s.watchpoints {
		switch w.Kind {
		case WatchRead:
			for _, a := range entry.MemoryReads {
				if inRange(a, w.Address, w.Size) {
					hits = append(hits, WatchHit{Watchpoint: w, Address: a})
				}
			}
		case WatchWrite:
			for _, a := range entry.MemoryWrites {
				if inRange(a, w.Address, w.Size) {
					hits = append(hits, WatchHit{Watchpoint: w, Address: a})
				}
			}
		case WatchChange:
			for _, d := range entry.MemoryDiff {
				if inRange(d.Address, w.Address, w.Size) {
					hits = append(hits, WatchHit{Watchpoint: w, Address: d.Address})
				}
			}
		}
	}
	return hits
}

func inRange(addr, base, size uint16) bool {
	return addr >= base && addr < base+size
}

// SaveSnapshot bookmarks the current step under name, for later recall
// with LoadSnapshot, addressed by name rather than by path, holding a
// step index rather than file bytes.
func (s *Session) SaveSnapshot(name string) {
	s.savedSnapshots[name] = s.cursor
}

// LoadSnapshot seeks to a previously saved bookmark.
func (s *Session) LoadSnapshot(name string) error {
	step, ok := s.savedSnapshots[name]
	if !ok {
		return fmt.Errorf("no saved snapshot named %q", name)
	}
	return s.Seek(step)
}

// SavedSnapshots lists the bookmark names currently held.
func (s *Session) SavedSnapshots() map[string]int {
	out := make(map[string]int, len(s.savedSnapshots))
	for k, v := range s.savedSnapshots {
		out[k] = v
	}
	return out
}

// ImportBreakpoints replaces the session's armed breakpoints wholesale, for
// restoring a session that was reconstructed from a saved replay payload.
func (s *Session) ImportBreakpoints(indices []int) {
	s.breakpoints = make(map[int]bool, len(indices))
	for _, idx := range indices {
		s.breakpoints[idx] = true
	}
}

// ImportSavedSnapshots replaces the session's named bookmarks wholesale,
// for restoring a session that was reconstructed from a saved replay
// payload. Bookmarks referring to a step beyond the current trace are
// dropped rather than left dangling.
func (s *Session) ImportSavedSnapshots(bookmarks map[string]int) {
	s.savedSnapshots = make(map[string]int, len(bookmarks))
	for name, step := range bookmarks {
		if step >= 0 && step <= len(s.trace) {
			s.savedSnapshots[name] = step
		}
	}
}
