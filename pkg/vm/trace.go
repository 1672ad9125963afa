package vm

import "sort"

// MemoryWordDiff is one changed memory word, recorded by address rather
// than by byte so it lines up with the word-oriented ReadWord/WriteWord
// API the rest of this package exposes.
type MemoryWordDiff struct {
	Address uint16
	Before  uint16
	After   uint16
}

// OutputEvent is a single OUT/OUTC emission, captured by the stepper
// before Execute runs, since Execute itself is side-effect-free for
// these opcodes.
type OutputEvent struct {
	Kind  string // "OUT" or "OUTC"
	Value uint16
}

// ExecutionSnapshot is a named point in a session's timeline: the full
// machine state after executing Step instructions.
type ExecutionSnapshot struct {
	Step  int
	State CPUState
}

// TraceEntry is one executed instruction's complete record: the state on
// either side of it and everything derived from that difference. Holding
// both Before and After in full (rather than a byte-level diff of a
// separately-stored state stream) keeps StepBack and Seek trivial index
// operations, which matters more for an append-only debugging log than
// the memory it costs on a 4KB machine.
type TraceEntry struct {
	Step         int
	Instruction  Instruction
	Before       CPUState
	After        CPUState
	ChangedRegs  []string
	ChangedFlags []string
	MemoryReads  []uint16
	MemoryWrites []uint16
	MemoryDiff   []MemoryWordDiff
	Output       *OutputEvent
	Cycles       int
}

// BuildTraceEntry executes instr against before and returns the resulting
// TraceEntry. output is supplied by the caller since OUT/OUTC's emitted
// value must be captured from before, ahead of the call to Execute.
func BuildTraceEntry(step int, instr Instruction, before CPUState, labels map[string]int, output *OutputEvent) TraceEntry {
	after := Execute(before, instr, labels)

	reads, writes, err := Accesses(instr, before)
	if err != nil {
		reads, writes = nil, nil
	}

	diff := memoryDiff(before, after, writes)

	return TraceEntry{
		Step:         step,
		Instruction:  instr,
		Before:       before,
		After:        after,
		ChangedRegs:  Diff(before.Registers, after.Registers),
		ChangedFlags: DiffFlags(before.Registers, after.Registers),
		MemoryReads:  reads,
		MemoryWrites: writes,
		MemoryDiff:   diff,
		Output:       output,
		Cycles:       Cycles(instr),
	}
}

// memoryDiff reports the words at addrs whose value changed, capped at
// MemoryDiffCap entries in address order.
func memoryDiff(before, after CPUState, addrs []uint16) []MemoryWordDiff {
	seen := make(map[uint16]bool)
	var diffs []MemoryWordDiff
	sorted := append([]uint16(nil), addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, a := range sorted {
		if seen[a] {
			continue
		}
		seen[a] = true
		bv, errB := before.ReadWord(a)
		av, errA := after.ReadWord(a)
		if errB != nil || errA != nil || bv == av {
			continue
		}
		diffs = append(diffs, MemoryWordDiff{Address: a, Before: bv, After: av})
		if len(diffs) >= MemoryDiffCap {
			break
		}
	}
	return diffs
}
