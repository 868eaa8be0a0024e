package ckernel

import "testing"

func newTestSystemDevice(t *testing.T) (*device, *CSPRNG) {
	t.Helper()
	rng := NewCSPRNG()
	seedUntilReady(t, rng)
	return &device{subtype: SubtypeDevSystem, csprng: rng, alloc: NewAllocator()}, rng
}

func TestDeviceGetRandomAttribute(t *testing.T) {
	dev, _ := newTestSystemDevice(t)
	tok := newGoroutineToken()
	st, data := dev.Handle(Message{Kind: MsgGetAttributeString, Attr: AttrRandom, Num: 16}, tok)
	if !st.OK() {
		t.Fatalf("GET_ATTRIBUTE(RANDOM): %v", st)
	}
	if len(data) != 16 {
		t.Fatalf("got %d random bytes, want 16", len(data))
	}
}

func TestDeviceGetRandomRejectsNonPositiveLength(t *testing.T) {
	dev, _ := newTestSystemDevice(t)
	tok := newGoroutineToken()
	if st, _ := dev.Handle(Message{Kind: MsgGetAttributeString, Attr: AttrRandom, Num: 0}, tok); st.OK() {
		t.Fatal("a zero-length RANDOM request should be rejected")
	}
}

func TestDeviceAddEntropyAndQuality(t *testing.T) {
	rng := NewCSPRNG()
	dev := &device{subtype: SubtypeDevSystem, csprng: rng}
	tok := newGoroutineToken()

	buf := make([]byte, poolSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	if st, _ := dev.Handle(Message{Kind: MsgSetAttributeString, Attr: AttrEntropy, Data: buf}, tok); !st.OK() {
		t.Fatalf("SET_ATTRIBUTE(ENTROPY): %v", st)
	}
	if st, _ := dev.Handle(Message{Kind: MsgSetAttribute, Attr: AttrEntropyQuality, Num: 100}, tok); !st.OK() {
		t.Fatalf("SET_ATTRIBUTE(ENTROPYQUALITY): %v", st)
	}
	if rng.quality == 0 {
		t.Fatal("entropy quality should have increased")
	}
}

func TestDeviceQueryCapability(t *testing.T) {
	dev, _ := newTestSystemDevice(t)
	tok := newGoroutineToken()
	if st, _ := dev.Handle(Message{Kind: MsgDevQueryCapability, Num: int(AlgAES)}, tok); !st.OK() {
		t.Fatalf("DEV_QUERY_CAPABILITY(AES): %v", st)
	}
	if st, _ := dev.Handle(Message{Kind: MsgDevQueryCapability, Num: int(AlgorithmID(9999))}, tok); st.OK() {
		t.Fatal("an unregistered algorithm should report StatusNotAvail")
	}
}

func TestBootstrapSystemWiresFixedHandles(t *testing.T) {
	alloc := NewAllocator()
	table := newObjectTable(8, alloc)
	rng := NewCSPRNG()
	if st := bootstrapSystem(table, alloc, rng); !st.OK() {
		t.Fatalf("bootstrapSystem: %v", st)
	}

	table.mu.Lock()
	sys := table.table[SystemHandle]
	user := table.table[DefaultUserHandle]
	table.mu.Unlock()

	if sys.isFree() || sys.objType != TypeDevice {
		t.Fatal("handle 0 should be the live system device")
	}
	if sys.flags.has(flagInternal) {
		t.Fatal("system device must be externally reachable after bootstrap")
	}
	if user.isFree() || user.objType != TypeUser {
		t.Fatal("handle 1 should be the live default user")
	}
	if user.flags.has(flagInternal) {
		t.Fatal("default user must be externally reachable after bootstrap")
	}
	if !user.hasOwner || user.owner != SystemHandle {
		t.Fatal("default user should be owned by the system device")
	}
}
