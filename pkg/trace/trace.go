// Package trace holds the pure, read-only analyses that consume a
// recorded execution trace: branch-prediction accuracy, a small
// direct-mapped cache simulation, load-use hazard counting, and basic
// execution analytics. None of this lives in pkg/stepper, per the
// re-architecture note that cache/branch/hazard analyzers are UI- and
// tooling-facing consumers of a TraceEntry stream, not part of the core
// engine: every function here takes a []vm.TraceEntry and returns a
// plain summary, never mutating its input or reaching back into the
// stepper.
package trace

import (
	"sort"

	"gocpu8086/pkg/vm"
)

// BranchOutcome is one conditional jump's predicted-vs-actual result.
type BranchOutcome struct {
	Step      int
	Address   int
	Taken     bool
	Predicted bool
	Mispredict bool
}

// BranchStats summarizes a predictor's run over a trace.
type BranchStats struct {
	Total        int
	Mispredicts  int
	Outcomes     []BranchOutcome
}

// Accuracy returns the fraction of correctly predicted branches, or 1.0
// when there were none to predict.
func (b BranchStats) Accuracy() float64 {
	if b.Total == 0 {
		return 1.0
	}
	return float64(b.Total-b.Mispredicts) / float64(b.Total)
}

// saturatingCounter is a classic 2-bit up/down predictor: 0-1 predict
// not-taken, 2-3 predict taken.
type saturatingCounter int

func (c saturatingCounter) predictTaken() bool { return c >= 2 }

func (c saturatingCounter) update(taken bool) saturatingCounter {
	if taken {
		if c < 3 {
			c++
		}
	} else if c > 0 {
		c--
	}
	return c
}

// SimulateBranchPredictor runs a per-address 2-bit saturating-counter
// predictor (the same family of predictor real pipelines use) over every
// conditional jump in the trace, seeding each never-seen address weakly
// taken (counter 2), and reports its accuracy.
func SimulateBranchPredictor(entries []vm.TraceEntry) BranchStats {
	counters := make(map[int]saturatingCounter)
	var stats BranchStats

	for _, e := range entries {
		if !vm.IsConditionalJump(e.Instruction.Opcode) {
			continue
		}
		addr := e.Instruction.SourceAddress
		c, ok := counters[addr]
		if !ok {
			c = 2
		}
		predicted := c.predictTaken()
		taken := int(e.After.Registers.IP) != int(e.Before.Registers.IP)+1

		outcome := BranchOutcome{
			Step:       e.Step,
			Address:    addr,
			Taken:      taken,
			Predicted:  predicted,
			Mispredict: predicted != taken,
		}
		stats.Total++
		if outcome.Mispredict {
			stats.Mispredicts++
		}
		stats.Outcomes = append(stats.Outcomes, outcome)
		counters[addr] = c.update(taken)
	}
	return stats
}

// CacheStats summarizes a direct-mapped cache simulation.
type CacheStats struct {
	Hits   int
	Misses int
}

// AccessRatio returns the hit fraction, or 1.0 when there were no
// accesses.
func (c CacheStats) AccessRatio() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 1.0
	}
	return float64(c.Hits) / float64(total)
}

// SimulateCache replays every memory read and write in the trace through
// a direct-mapped cache with lineBytes-byte lines and lineCount lines,
// indexed by word address. It treats reads and writes uniformly (a
// write-allocate, no-write-back model) since the core itself has no
// cache and this exists purely to characterize a program's locality.
func SimulateCache(entries []vm.TraceEntry, lineCount, lineBytes int) CacheStats {
	if lineCount <= 0 {
		lineCount = 1
	}
	if lineBytes <= 0 {
		lineBytes = 1
	}
	tags := make([]int, lineCount)
	valid := make([]bool, lineCount)
	var stats CacheStats

	access := func(addr uint16) {
		line := (int(addr) / lineBytes) % lineCount
		tag := int(addr) / lineBytes / lineCount
		if valid[line] && tags[line] == tag {
			stats.Hits++
			return
		}
		stats.Misses++
		valid[line] = true
		tags[line] = tag
	}

	for _, e := range entries {
		for _, a := range e.MemoryReads {
			access(a)
		}
		for _, a := range e.MemoryWrites {
			access(a)
		}
	}
	return stats
}

// HazardStats counts load-use and write-write data hazards across a
// trace: a load-use hazard is a memory read of an address the previous
// step just wrote, and a write-write hazard is two consecutive steps
// writing the same address without an intervening read — both indicative
// of dependency stalls a pipelined implementation of this ISA would need
// to handle with forwarding or a bubble.
type HazardStats struct {
	LoadUse   int
	WriteWrite int
}

// DetectHazards walks consecutive trace entry pairs looking for the two
// hazard shapes described on HazardStats.
func DetectHazards(entries []vm.TraceEntry) HazardStats {
	var stats HazardStats
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		prevWrites := addressSet(prev.MemoryWrites)
		for _, a := range cur.MemoryReads {
			if prevWrites[a] {
				stats.LoadUse++
				break
			}
		}
		for _, a := range cur.MemoryWrites {
			if prevWrites[a] && !containsAddr(cur.MemoryReads, a) {
				stats.WriteWrite++
				break
			}
		}
	}
	return stats
}

func addressSet(addrs []uint16) map[uint16]bool {
	set := make(map[uint16]bool, len(addrs))
	for _, a := range addrs {
		set[a] = true
	}
	return set
}

func containsAddr(addrs []uint16, want uint16) bool {
	for _, a := range addrs {
		if a == want {
			return true
		}
	}
	return false
}

// ExecutionAnalytics summarizes aggregate statistics over a trace: how
// many times each opcode ran, total cycles charged, and how many steps
// produced output.
type ExecutionAnalytics struct {
	OpcodeCounts map[string]int
	TotalCycles  int
	OutputEvents int
	Steps        int
}

// Analyze builds an ExecutionAnalytics summary over a trace.
func Analyze(entries []vm.TraceEntry) ExecutionAnalytics {
	a := ExecutionAnalytics{OpcodeCounts: make(map[string]int)}
	for _, e := range entries {
		a.Steps++
		a.OpcodeCounts[e.Instruction.Opcode]++
		a.TotalCycles += e.Cycles
		if e.Output != nil {
			a.OutputEvents++
		}
	}
	return a
}

// TopOpcodes returns the n most-executed opcodes, most frequent first,
// breaking ties alphabetically for a stable result.
func (a ExecutionAnalytics) TopOpcodes(n int) []string {
	type count struct {
		op string
		n  int
	}
	counts := make([]count, 0, len(a.OpcodeCounts))
	for op, c := range a.OpcodeCounts {
		counts = append(counts, count{op, c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].op < counts[j].op
	})
	if n > len(counts) {
		n = len(counts)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = counts[i].op
	}
	return out
}
