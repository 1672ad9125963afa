// Package vm implements the pure 16-bit CPU core: register/flag/memory
// state and the per-instruction state transition that drives it. Nothing
// in this package mutates shared state — execute produces a new CPUState
// from an old one, exposing CPU state as plain data rather than as
// something the caller reaches in and pokes.
package vm

// MemorySize is the number of addressable bytes of flat RAM.
const MemorySize = 4096

// StackTop is the initial value of SP on reset.
const StackTop = 4094

// VarBase is where compiled variables begin (see pkg/codegen).
const VarBase = 0x0100

// PortBase is the RAM address of port 0's memory-mapped word.
const PortBase = 0x0300

// MaxStepsPerContinue bounds a single Continue/StepOver call.
const MaxStepsPerContinue = 10000

// MemoryDiffCap bounds how many changed words a TraceEntry records.
const MemoryDiffCap = 24

// mask16 truncates a wider integer to the 16-bit word space.
func mask16(v int64) uint16 {
	return uint16(uint32(v) & 0xFFFF)
}
