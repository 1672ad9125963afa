package trace

import (
	"testing"

	"gocpu8086/pkg/assembler"
	"gocpu8086/pkg/stepper"
	"gocpu8086/pkg/vm"
)

func run(t *testing.T, asm string) []vm.TraceEntry {
	t.Helper()
	prog := assembler.Assemble(asm)
	if prog.HasErrors() {
		t.Fatalf("unexpected diagnostics assembling %q: %v", asm, prog.Diagnostics)
	}
	s := stepper.New(prog)
	if _, err := s.Continue(); err != nil {
		t.Fatalf("continue: %v", err)
	}
	return s.Trace()
}

func TestSimulateBranchPredictorTracksLoopBranch(t *testing.T) {
	entries := run(t, "MOV AX, 5\nMOV BX, 0\nloop:\nADD BX, AX\nDEC AX\nJNZ loop\nOUT BX\nHLT\n")
	stats := SimulateBranchPredictor(entries)
	if stats.Total != 5 {
		t.Fatalf("Total = %d, want 5 (one JNZ per loop iteration)", stats.Total)
	}
	// A hot loop branch should settle into a well-predicted pattern after
	// the first iteration or two; require better than chance.
	if stats.Accuracy() < 0.5 {
		t.Errorf("Accuracy = %f, want > 0.5 for a hot loop branch", stats.Accuracy())
	}
}

func TestSimulateBranchPredictorEmptyTraceIsFullyAccurate(t *testing.T) {
	stats := SimulateBranchPredictor(nil)
	if stats.Accuracy() != 1.0 {
		t.Errorf("Accuracy = %f, want 1.0 with no branches", stats.Accuracy())
	}
}

func TestSimulateCacheCountsHitsAndMisses(t *testing.T) {
	entries := run(t, "MOV AX, 1\nMOV [0x0100], AX\nMOV BX, [0x0100]\nMOV CX, [0x0100]\nHLT\n")
	stats := SimulateCache(entries, 8, 2)
	if stats.Misses == 0 {
		t.Errorf("expected at least one cold miss")
	}
	if stats.Hits == 0 {
		t.Errorf("expected repeated reads of the same address to hit")
	}
}

func TestDetectHazardsFindsLoadUse(t *testing.T) {
	entries := run(t, "MOV AX, 1\nMOV [0x0100], AX\nMOV BX, [0x0100]\nHLT\n")
	hazards := DetectHazards(entries)
	if hazards.LoadUse == 0 {
		t.Errorf("expected a load-use hazard between the store and the following load")
	}
}

func TestAnalyzeCountsOpcodesAndOutput(t *testing.T) {
	entries := run(t, "MOV AX, 1\nOUT AX\nHLT\n")
	a := Analyze(entries)
	if a.Steps != 3 {
		t.Fatalf("Steps = %d, want 3", a.Steps)
	}
	if a.OutputEvents != 1 {
		t.Errorf("OutputEvents = %d, want 1", a.OutputEvents)
	}
	if a.OpcodeCounts["MOV"] != 1 || a.OpcodeCounts["HLT"] != 1 {
		t.Errorf("OpcodeCounts = %v", a.OpcodeCounts)
	}
}

func TestTopOpcodesOrdersByFrequencyThenName(t *testing.T) {
	entries := run(t, "MOV AX, 1\nMOV BX, 2\nADD AX, BX\nHLT\n")
	a := Analyze(entries)
	top := a.TopOpcodes(2)
	if len(top) != 2 || top[0] != "MOV" {
		t.Errorf("TopOpcodes(2) = %v, want MOV first", top)
	}
}
