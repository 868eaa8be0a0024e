package ckernel

import "testing"

// seedUntilReady feeds the CSPRNG enough distinct entropy to satisfy
// both the quality floor (the precondition Output enforces) and the
// minimum mix count (which Output would otherwise reach by mixing on
// demand).
func seedUntilReady(t *testing.T, c *CSPRNG) {
	t.Helper()
	for i := 0; i < minMixCount+2; i++ {
		buf := make([]byte, poolSize)
		for j := range buf {
			buf[j] = byte(i*7 + j)
		}
		c.AddEntropy(buf)
	}
	if st := c.AddEntropyQuality(100); !st.OK() {
		t.Fatalf("AddEntropyQuality: %v", st)
	}
	if !c.ready() {
		t.Fatal("CSPRNG should be ready after seeding")
	}
}

func TestCSPRNGRejectsOutputBeforeReady(t *testing.T) {
	c := NewCSPRNG()
	buf := make([]byte, 16)
	if _, st := c.Output(buf); st.OK() {
		t.Fatal("Output should fail before the pool is seeded")
	}
}

func TestCSPRNGOutputAfterSeeding(t *testing.T) {
	c := NewCSPRNG()
	seedUntilReady(t, c)

	buf := make([]byte, 32)
	n, st := c.Output(buf)
	if !st.OK() {
		t.Fatalf("Output: %v", st)
	}
	if n != len(buf) {
		t.Fatalf("Output returned %d bytes, want %d", n, len(buf))
	}

	buf2 := make([]byte, 32)
	if _, st := c.Output(buf2); !st.OK() {
		t.Fatalf("second Output: %v", st)
	}
	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatal("output looks suspiciously all-zero")
	}
}

// TestCSPRNGScenario5SingleDoseOfEntropyYieldsOutput is spec.md §8
// scenario 5: add exactly one 256-byte pool's worth of entropy at
// quality 100 and request 16 bytes — one AddEntropy call only trips one
// mix pass, well under minMixCount, so this exercises outputOnce's
// on-demand mixing rather than requiring the caller to pre-mix like
// seedUntilReady does.
func TestCSPRNGScenario5SingleDoseOfEntropyYieldsOutput(t *testing.T) {
	c := NewCSPRNG()
	entropy := make([]byte, poolSize)
	for i := range entropy {
		entropy[i] = byte(i)
	}
	c.AddEntropy(entropy)
	if st := c.AddEntropyQuality(100); !st.OK() {
		t.Fatalf("AddEntropyQuality: %v", st)
	}

	out := make([]byte, 16)
	if _, st := c.Output(out); !st.OK() {
		t.Fatalf("Output after a single 256-byte entropy dose: %v", st)
	}

	for i := 0; i+4 <= len(entropy); i++ {
		if string(out[:min(4, len(out))]) == string(entropy[i:i+4]) {
			t.Fatal("output matches a 4-byte window of the raw entropy just added")
		}
	}
}

func TestCSPRNGEntropyQualityCapsAtHundred(t *testing.T) {
	c := NewCSPRNG()
	c.AddEntropyQuality(60)
	c.AddEntropyQuality(60)
	if c.quality != 100 {
		t.Fatalf("quality should cap at 100, got %d", c.quality)
	}
}

func TestCSPRNGNonceChangesAcrossCalls(t *testing.T) {
	c := NewCSPRNG()
	a, st := c.Nonce(16)
	if !st.OK() {
		t.Fatalf("Nonce #1: %v", st)
	}
	b, st := c.Nonce(16)
	if !st.OK() {
		t.Fatalf("Nonce #2: %v", st)
	}
	if string(a) == string(b) {
		t.Fatal("successive nonces should differ")
	}
}

func TestCSPRNGNonceRejectsOversize(t *testing.T) {
	c := NewCSPRNG()
	if _, st := c.Nonce(hashSize + 1); st.OK() {
		t.Fatal("Nonce longer than hashSize should be rejected")
	}
}

func TestCSPRNGNotifyForkedForcesReseed(t *testing.T) {
	c := NewCSPRNG()
	seedUntilReady(t, c)
	c.NotifyForked()
	buf := make([]byte, 8)
	if _, st := c.Output(buf); st.OK() {
		t.Fatal("Output immediately after a forced fork notification should require reseeding")
	}
}
