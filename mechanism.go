package ckernel

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Mechanism executors
//
// The mechanism ACL (acl_mechanism.go) validates the shape of a
// mechanism invocation; these functions perform it: an HKDF-SHA256
// key-derivation mechanism and an X25519 + ChaCha20-Poly1305 key-wrap
// mechanism.

// DeriveHKDF implements MechDeriveHKDF: expand ikm (keyed by salt) into
// n bytes of output material using HKDF-SHA256.
func DeriveHKDF(ikm, salt, info []byte, n int) ([]byte, Status) {
	if len(ikm) == 0 || n <= 0 {
		return nil, StatusArgValue
	}
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, StatusFailed
	}
	return out, StatusOK
}

// DerivePBKDF2 implements MechDerivePBKDF2, called from
// (*Context).derivePassphraseLocked whenever KEYING_ITERATIONS is
// nonzero at SET_ATTRIBUTE(KEY) time: iterations is the KEYING_ITERATIONS
// value, and the caller's raw key bytes are treated as a passphrase
// rather than loaded directly.
func DerivePBKDF2(password, salt []byte, iterations, n int) ([]byte, Status) {
	if len(password) == 0 || len(salt) == 0 || n <= 0 {
		return nil, StatusArgValue
	}
	if iterations < 1 || iterations > 20000 {
		return nil, StatusArgNum1
	}
	return pbkdf2.Key(password, salt, iterations, n, sha256.New), StatusOK
}

// X25519KeyPair is a (private, public) pair on Curve25519.
type X25519KeyPair struct {
	Private [curve25519.ScalarSize]byte
	Public  [curve25519.PointSize]byte
}

// GenerateX25519 generates a new key pair, reading entropy from r (the
// kernel's CSPRNG in production use).
func GenerateX25519(r io.Reader) (X25519KeyPair, Status) {
	var kp X25519KeyPair
	if _, err := io.ReadFull(r, kp.Private[:]); err != nil {
		return kp, StatusRandom
	}
	kp.Private[0] &= 248
	kp.Private[31] &= 127
	kp.Private[31] |= 64
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, StatusFailed
	}
	copy(kp.Public[:], pub)
	return kp, StatusOK
}

// WrapX25519ChaCha20Poly1305 implements MechWrapX25519Chacha20Poly1305:
// derive a shared secret via X25519, expand it into a ChaCha20-Poly1305
// key with HKDF, and seal plaintext under it — the kernel's one
// concrete wrap mechanism, reusing djb.go's derive/Seal pairing.
func WrapX25519ChaCha20Poly1305(priv X25519KeyPair, peerPublic []byte, plaintext, additionalData []byte) ([]byte, Status) {
	shared, err := curve25519.X25519(priv.Private[:], peerPublic)
	if err != nil {
		return nil, StatusArgValue
	}
	key, st := DeriveHKDF(shared, nil, []byte("ckernel-wrap"), chacha20poly1305.KeySize)
	if !st.OK() {
		return nil, st
	}
	defer wipe(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, StatusFailed
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return aead.Seal(nil, nonce, plaintext, additionalData), StatusOK
}

// UnwrapX25519ChaCha20Poly1305 is the inverse of
// WrapX25519ChaCha20Poly1305.
func UnwrapX25519ChaCha20Poly1305(priv X25519KeyPair, peerPublic []byte, ciphertext, additionalData []byte) ([]byte, Status) {
	shared, err := curve25519.X25519(priv.Private[:], peerPublic)
	if err != nil {
		return nil, StatusArgValue
	}
	key, st := DeriveHKDF(shared, nil, []byte("ckernel-wrap"), chacha20poly1305.KeySize)
	if !st.OK() {
		return nil, st
	}
	defer wipe(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, StatusFailed
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	pt, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, StatusBadData
	}
	return pt, StatusOK
}
