package ckernel

import "testing"

func TestAllocatorRejectsOutOfRangeSizes(t *testing.T) {
	a := NewAllocator()
	if _, st := a.Alloc(minAllocSize - 1); st.OK() {
		t.Fatal("Alloc below the floor should fail")
	}
	if _, st := a.Alloc(maxAllocSize + 1); st.OK() {
		t.Fatal("Alloc above the ceiling should fail")
	}
}

func TestAllocatorAllocFreeRoundTrip(t *testing.T) {
	a := NewAllocator()
	buf, st := a.Alloc(32)
	if !st.OK() {
		t.Fatalf("Alloc: %v", st)
	}
	b := buf.Bytes()
	if len(b) != 32 {
		t.Fatalf("Bytes() length = %d, want 32", len(b))
	}
	copy(b, []byte("secret-key-material-goes-here!!"))

	if st := a.Free(buf); !st.OK() {
		t.Fatalf("Free: %v", st)
	}
	if buf.Bytes() != nil {
		t.Fatal("Bytes() should be nil after Free")
	}
}

func TestAllocatorFreeIsIdempotent(t *testing.T) {
	a := NewAllocator()
	buf, _ := a.Alloc(16)
	if st := a.Free(buf); !st.OK() {
		t.Fatalf("first Free: %v", st)
	}
	if st := a.Free(buf); !st.OK() {
		t.Fatalf("second Free on an already-freed buffer should be a no-op OK, got %v", st)
	}
}

func TestAllocatorDetectsCanaryCorruption(t *testing.T) {
	a := NewAllocator()
	buf, _ := a.Alloc(16)
	// Simulate a buffer overrun trampling the header by corrupting the
	// canary directly (the only way to reach it from this package).
	buf.block.canaryA = 0xdeadbeef
	if st := a.Free(buf); st.OK() {
		t.Fatal("Free should refuse a block with a corrupted canary")
	}
}

func TestAllocatorWipesOnFree(t *testing.T) {
	a := NewAllocator()
	buf, _ := a.Alloc(16)
	raw := buf.block
	copy(raw.data, []byte("0123456789abcdef"))
	a.Free(buf)
	for i, b := range raw.data {
		if b != 0 {
			t.Fatalf("byte %d not wiped: %x", i, b)
		}
	}
}

func TestAllocatorSharedPageStaysLockedUntilLastReleaser(t *testing.T) {
	a := NewAllocator()
	locked := map[*byte]bool{}
	a.lockPages = func(d []byte) bool {
		if len(d) == 0 {
			return false
		}
		locked[&d[0]] = true
		return true
	}
	unlockCalls := 0
	a.unlockPage = func([]byte) { unlockCalls++ }

	buf1, _ := a.Alloc(16)
	buf2, _ := a.Alloc(16)
	shared := pagesOverlap(buf1.Bytes(), buf2.Bytes())

	a.Free(buf1)
	if shared && unlockCalls != 0 {
		t.Fatal("a page still shared with a live locked block was unlocked")
	}
	a.Free(buf2)

	if unlockCalls == 0 {
		t.Fatal("expected at least one unlock call across two independent allocations")
	}
}

func TestPagesOverlap(t *testing.T) {
	const pageSize = 4096
	a := make([]byte, pageSize)
	b := make([]byte, pageSize)
	if pagesOverlap(nil, b) {
		t.Fatal("a nil slice should never overlap")
	}
	if !pagesOverlap(a, a) {
		t.Fatal("a slice should overlap itself")
	}
}
