package vm

// CoreConfig collects the toolchain's tunables into one record. Its values
// mirror the package-level constants (MemorySize, StackTop, VarBase,
// PortBase, MaxStepsPerContinue, MemoryDiffCap), which are what the
// components read. The zero value is not meaningful; use DefaultConfig.
type CoreConfig struct {
	MemorySizeBytes    int
	StackTop           int
	VarBase            int
	PortBase           int
	MaxStepsPerContinue int
	MemoryDiffCap      int
}

// DefaultConfig returns the package constants as a CoreConfig. No
// component takes a CoreConfig as input, so these values cannot be
// overridden per caller.
func DefaultConfig() CoreConfig {
	return CoreConfig{
		MemorySizeBytes:     MemorySize,
		StackTop:            StackTop,
		VarBase:             VarBase,
		PortBase:            PortBase,
		MaxStepsPerContinue: MaxStepsPerContinue,
		MemoryDiffCap:       MemoryDiffCap,
	}
}
