package ckernel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/sha1"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Capability table
//
// Each CapabilityInfo describes one algorithm the kernel's context
// objects can be bound to: key/block/IV sizes and the function values
// that perform key initialisation and the self-test. A table of algorithm-specific
// function pointers plus size bounds; Go expresses the "function
// pointer" fields as func values instead, the natural substitution
// for per-suite algorithm dispatch.

// AlgorithmID names one of the capabilities installed below.
type AlgorithmID int

const (
	AlgNone AlgorithmID = iota
	AlgDES
	AlgAES
	AlgX25519ChaCha20Poly1305
	AlgSHA1
	AlgHMACSHA1
)

// CapabilityInfo is the per-algorithm descriptor. MinKeySize/MaxKeySize
// are in bytes; BlockSize is the cipher block size or, for SHA-1 and
// HMAC-SHA1, the hash block size, and is 0 for the AEAD capability.
type CapabilityInfo struct {
	Algorithm AlgorithmID
	Name      string

	MinKeySize int
	MaxKeySize int
	BlockSize  int
	IVSize     int

	InitKey func(key []byte) (cipher.Block, Status)
	SelfTest func() Status
}

var capabilityTable = map[AlgorithmID]*CapabilityInfo{}

func init() {
	installCapabilities()
}

func installCapabilities() {
	capabilityTable[AlgDES] = &CapabilityInfo{
		Algorithm:  AlgDES,
		Name:       "DES",
		MinKeySize: 8,
		MaxKeySize: 8,
		BlockSize:  des.BlockSize,
		IVSize:     des.BlockSize,
		InitKey: func(key []byte) (cipher.Block, Status) {
			if len(key) != 8 {
				return nil, StatusArgNum1
			}
			b, err := des.NewCipher(key)
			if err != nil {
				return nil, StatusFailed
			}
			return b, StatusOK
		},
		SelfTest: selfTestDES,
	}

	capabilityTable[AlgAES] = &CapabilityInfo{
		Algorithm:  AlgAES,
		Name:       "AES",
		MinKeySize: 16,
		MaxKeySize: 32,
		BlockSize:  aes.BlockSize,
		IVSize:     aes.BlockSize, // CBC IV; context.go only drives AES in CBC mode
		InitKey: func(key []byte) (cipher.Block, Status) {
			if len(key) != 16 && len(key) != 24 && len(key) != 32 {
				return nil, StatusArgNum1
			}
			b, err := aes.NewCipher(key)
			if err != nil {
				return nil, StatusFailed
			}
			return b, StatusOK
		},
		SelfTest: selfTestAES,
	}

	capabilityTable[AlgX25519ChaCha20Poly1305] = &CapabilityInfo{
		Algorithm:  AlgX25519ChaCha20Poly1305,
		Name:       "X25519/ChaCha20-Poly1305",
		MinKeySize: chacha20poly1305.KeySize,
		MaxKeySize: chacha20poly1305.KeySize,
		IVSize:     chacha20poly1305.NonceSize,
		SelfTest:   selfTestX25519ChaCha20Poly1305,
	}

	capabilityTable[AlgSHA1] = &CapabilityInfo{
		Algorithm: AlgSHA1,
		Name:      "SHA-1",
		BlockSize: sha1.BlockSize,
		SelfTest:  selfTestSHA1,
	}

	capabilityTable[AlgHMACSHA1] = &CapabilityInfo{
		Algorithm:  AlgHMACSHA1,
		Name:       "HMAC-SHA1",
		MinKeySize: 1,
		MaxKeySize: 1 << 16,
		BlockSize:  sha1.BlockSize,
		SelfTest:   selfTestHMACSHA1,
	}
}

// Capability looks up the descriptor for id, reporting whether one is
// installed.
func Capability(id AlgorithmID) (*CapabilityInfo, bool) {
	c, ok := capabilityTable[id]
	return c, ok
}

// selfTestDES encrypts one all-zero block under the key 00 01 .. 07 and
// checks that decryption returns the plaintext; it is a round-trip
// check, not a known-answer test.
func selfTestDES() Status {
	key := make([]byte, 8)
	for i := range key {
		key[i] = byte(i)
	}
	b, err := des.NewCipher(key)
	if err != nil {
		return StatusFailed
	}
	pt := make([]byte, des.BlockSize)
	ct := make([]byte, des.BlockSize)
	b.Encrypt(ct, pt)
	rt := make([]byte, des.BlockSize)
	b.Decrypt(rt, ct)
	for i := range pt {
		if pt[i] != rt[i] {
			return StatusFailed
		}
	}
	return StatusOK
}

func selfTestAES() Status {
	key := make([]byte, 16)
	b, err := aes.NewCipher(key)
	if err != nil {
		return StatusFailed
	}
	pt := make([]byte, aes.BlockSize)
	ct := make([]byte, aes.BlockSize)
	b.Encrypt(ct, pt)
	rt := make([]byte, aes.BlockSize)
	b.Decrypt(rt, ct)
	for i := range pt {
		if pt[i] != rt[i] {
			return StatusFailed
		}
	}
	return StatusOK
}

// selfTestX25519ChaCha20Poly1305 exercises GenerateX25519 + wrap/unwrap
// end to end (see mechanism.go), the same generate/seal/open round trip
// any DH-ratchet style suite exercises.
func selfTestX25519ChaCha20Poly1305() Status {
	var seed [64]byte
	r := newDeterministicReader(seed[:])
	alice, st := GenerateX25519(r)
	if !st.OK() {
		return st
	}
	bob, st := GenerateX25519(r)
	if !st.OK() {
		return st
	}
	ct, st := WrapX25519ChaCha20Poly1305(alice, bob.Public[:], []byte("self-test"), nil)
	if !st.OK() {
		return st
	}
	pt, st := UnwrapX25519ChaCha20Poly1305(bob, alice.Public[:], ct, nil)
	if !st.OK() {
		return st
	}
	if string(pt) != "self-test" {
		return StatusFailed
	}
	return StatusOK
}

func selfTestSHA1() Status {
	h := sha1.New()
	h.Write([]byte("abc"))
	sum := h.Sum(nil)
	const want = "\xa9\x99\x3e\x36\x47\x06\x81\x6a\xba\x3e\x25\x71\x78\x50\xc2\x6c\x9c\xd0\xd8\x9d"
	if string(sum) != want {
		return StatusFailed
	}
	return StatusOK
}

func selfTestHMACSHA1() Status {
	mac := hmac.New(sha1.New, []byte("key"))
	mac.Write([]byte("The quick brown fox jumps over the lazy dog"))
	if len(mac.Sum(nil)) != sha1.Size {
		return StatusFailed
	}
	return StatusOK
}

// newDeterministicReader returns an io.Reader that cycles through seed,
// used only to drive the X25519 self-test without touching the kernel
// CSPRNG (which has its own, separate self-test).
func newDeterministicReader(seed []byte) io.Reader {
	return &cyclicReader{seed: seed}
}

type cyclicReader struct {
	seed []byte
	pos  int
}

func (r *cyclicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.seed[r.pos%len(r.seed)]
		r.pos++
	}
	return len(p), nil
}
