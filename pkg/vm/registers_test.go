package vm

import "testing"

func TestGetSetRoundtrip(t *testing.T) {
	var r Registers
	for _, name := range RegisterNames {
		if !r.Set(name, 0x1234) {
			t.Fatalf("Set(%q) reported unknown register", name)
		}
		v, ok := r.Get(name)
		if !ok || v != 0x1234 {
			t.Errorf("Get(%q) = %d,%v, want 0x1234,true", name, v, ok)
		}
	}
	if r.Set("ZZ", 1) {
		t.Errorf("Set on an unknown register should report false")
	}
	if _, ok := r.Get("ZZ"); ok {
		t.Errorf("Get on an unknown register should report false")
	}
}

func TestIsGeneralRegister(t *testing.T) {
	for _, name := range GeneralRegisterNames {
		if !IsGeneralRegister(name) {
			t.Errorf("%s should be a general register", name)
		}
	}
	for _, name := range []string{"IP", "FLAGS", "CS"} {
		if IsGeneralRegister(name) {
			t.Errorf("%s must not be a general register", name)
		}
	}
}

func TestDiffAndDiffFlags(t *testing.T) {
	before := Registers{AX: 1, FLAGS: 0}
	after := before
	after.AX = 2
	after.SetFlag("ZF", true)

	changed := Diff(before, after)
	if len(changed) != 2 { // AX and FLAGS both differ
		t.Errorf("Diff = %v, want 2 entries (AX, FLAGS)", changed)
	}

	flagsChanged := DiffFlags(before, after)
	if len(flagsChanged) != 1 || flagsChanged[0] != "ZF" {
		t.Errorf("DiffFlags = %v, want [ZF]", flagsChanged)
	}
}

func TestSetFlagPreservesOtherBits(t *testing.T) {
	var r Registers
	r.SetFlag("CF", true)
	r.SetFlag("ZF", true)
	r.SetFlag("CF", false)
	if r.Flag("ZF") != true {
		t.Errorf("clearing CF must not disturb ZF")
	}
	if r.Flag("CF") {
		t.Errorf("CF should now be clear")
	}
}
