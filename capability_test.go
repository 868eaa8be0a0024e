package ckernel

import "testing"

func TestCapabilityTableLookup(t *testing.T) {
	info, ok := Capability(AlgDES)
	if !ok {
		t.Fatal("AlgDES should be installed")
	}
	if info.MinKeySize != 8 || info.MaxKeySize != 8 {
		t.Fatalf("DES key size bounds = [%d,%d], want [8,8]", info.MinKeySize, info.MaxKeySize)
	}
	if _, ok := Capability(AlgorithmID(9999)); ok {
		t.Fatal("an unregistered algorithm ID should not be found")
	}
}

func TestCapabilitySelfTestsPass(t *testing.T) {
	for id, info := range capabilityTable {
		if info.SelfTest == nil {
			continue
		}
		if st := info.SelfTest(); !st.OK() {
			t.Fatalf("self-test for %v (%s) failed: %v", id, info.Name, st)
		}
	}
}

func TestDESInitKeyRejectsWrongLength(t *testing.T) {
	info, _ := Capability(AlgDES)
	if _, st := info.InitKey(make([]byte, 7)); st.OK() {
		t.Fatal("a 7-byte key should be rejected for DES")
	}
}

func TestAESInitKeyAcceptsAllThreeSizes(t *testing.T) {
	info, _ := Capability(AlgAES)
	for _, n := range []int{16, 24, 32} {
		if _, st := info.InitKey(make([]byte, n)); !st.OK() {
			t.Fatalf("AES key of length %d should be accepted: %v", n, st)
		}
	}
	if _, st := info.InitKey(make([]byte, 20)); st.OK() {
		t.Fatal("a 20-byte AES key should be rejected")
	}
}
