package vm

import "testing"

func TestResetInitialState(t *testing.T) {
	s := Reset()
	if s.Registers.SP != StackTop {
		t.Errorf("SP = %d, want %d", s.Registers.SP, StackTop)
	}
	if s.Registers.AX != 0 || s.Registers.IP != 0 || s.Registers.FLAGS != 0 {
		t.Errorf("every other register should start at zero")
	}
	if s.Halted || s.Error != "" {
		t.Errorf("a fresh state must not be halted")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := Reset()
	s.Memory[10] = 0xAB
	clone := s.Clone()
	clone.Memory[10] = 0xCD
	clone.Registers.AX = 99
	if s.Memory[10] != 0xAB {
		t.Errorf("mutating a clone must not affect the original memory")
	}
	if s.Registers.AX != 0 {
		t.Errorf("mutating a clone must not affect the original registers")
	}
}

func TestReadWriteWordBounds(t *testing.T) {
	s := Reset()
	if err := s.WriteWord(MemorySize-1, 1); err == nil {
		t.Errorf("writing a word that overruns memory should fail")
	}
	if err := s.WriteWord(MemorySize-2, 0xBEEF); err != nil {
		t.Fatalf("unexpected error writing the last valid word: %v", err)
	}
	v, err := s.ReadWord(MemorySize - 2)
	if err != nil || v != 0xBEEF {
		t.Errorf("ReadWord = %#x,%v, want 0xBEEF,nil", v, err)
	}
}

func TestReadWordLittleEndian(t *testing.T) {
	s := Reset()
	s.Memory[0] = 0x34
	s.Memory[1] = 0x12
	v, err := s.ReadWord(0)
	if err != nil || v != 0x1234 {
		t.Errorf("ReadWord = %#x,%v, want 0x1234,nil", v, err)
	}
}

func TestPortAndVectorAddress(t *testing.T) {
	if PortAddress(0) != PortBase {
		t.Errorf("PortAddress(0) = %#x, want %#x", PortAddress(0), PortBase)
	}
	if PortAddress(1) != PortBase+2 {
		t.Errorf("PortAddress(1) = %#x, want %#x", PortAddress(1), PortBase+2)
	}
	if VectorAddress(5) != 10 {
		t.Errorf("VectorAddress(5) = %d, want 10", VectorAddress(5))
	}
}
