package ckernel

import (
	"crypto/cipher"
	"sync"
)

// Context objects
//
// The one concrete object type needed to drive the kernel end to end:
// a conventional-encryption or PKC context, carrying its own key
// material in secure memory and its own small state machine (no key ->
// key loaded, not-high-state -> high-state once one of the trigger
// attributes, KEY or HIGHSECURITY, is set). Grounded on cryptlib/context/
// ctx_des.c's object lifecycle shape (init -> key load -> encrypt
// dispatch), trimmed to what the kernel needs to exercise rather than a
// full cipher-context implementation (cipher internals are out of scope,
// see the package doc comment's Non-goals).
type Context struct {
	mu sync.Mutex

	alloc *Allocator
	alg   AlgorithmID
	cap   *CapabilityInfo

	mode          int
	key           *SecureBuffer
	iv            []byte
	block         cipher.Block
	kdfIterations int
	kdfSalt       []byte

	pub     X25519KeyPair
	priv    X25519KeyPair
	hasPriv bool

	rng *CSPRNG
}

// NewConventionalContext builds an uninitialised conventional-encryption
// context bound to alg (AlgDES or AlgAES). The returned Context is not
// yet registered with an object table; callers create the object via
// (*Kernel).CreateContext.
func NewConventionalContext(alloc *Allocator, alg AlgorithmID) (*Context, Status) {
	info, ok := Capability(alg)
	if !ok {
		return nil, StatusArgValue
	}
	return &Context{alloc: alloc, alg: alg, cap: info, mode: 1 /* CBC */}, StatusOK
}

// NewPKCContext builds an uninitialised X25519 PKC context. rng supplies
// the entropy GenKey draws from — in production, the kernel's own
// CSPRNG, read directly through this pointer.
func NewPKCContext(alloc *Allocator, rng *CSPRNG) (*Context, Status) {
	info, ok := Capability(AlgX25519ChaCha20Poly1305)
	if !ok {
		return nil, StatusArgValue
	}
	return &Context{alloc: alloc, alg: AlgX25519ChaCha20Poly1305, cap: info, rng: rng}, StatusOK
}

// Handle is the Context's MessageHandler, invoked by the dispatcher with
// the object table lock dropped. It implements the attribute get/set/
// delete behaviour the attribute ACL has already authorised, plus the
// action messages the action ACL has already authorised.
func (c *Context) Handle(msg Message, tok goroutineToken) (Status, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Kind.baseKind() {
	case MsgDestroy:
		if c.key != nil {
			c.alloc.Free(c.key)
			c.key = nil
		}
		wipe(c.iv)
		wipe(c.priv.Private[:])
		return StatusOK, nil

	case MsgGetAttribute:
		return c.getAttribute(msg.Attr)
	case MsgGetAttributeString:
		return c.getAttributeString(msg.Attr)
	case MsgSetAttribute:
		return c.setAttribute(msg.Attr, msg.Num), nil
	case MsgSetAttributeString:
		return c.setAttributeString(msg.Attr, msg.Data), nil
	case MsgDeleteAttribute:
		return c.deleteAttribute(msg.Attr), nil

	case MsgEncrypt:
		return c.encryptDecrypt(msg.Data, true)
	case MsgDecrypt:
		return c.encryptDecrypt(msg.Data, false)
	case MsgGenKey:
		return c.genKey(tok)
	case MsgHash, MsgSign, MsgSigCheck:
		return StatusNotAvail, nil
	default:
		return StatusArgValue, nil
	}
}

func (c *Context) getAttribute(attr AttributeID) (Status, []byte) {
	switch attr {
	case AttrMode:
		return StatusOK, intBytes(c.mode)
	case AttrKeyingIterations:
		return StatusOK, intBytes(c.kdfIterations)
	default:
		return StatusArgValue, nil
	}
}

func (c *Context) getAttributeString(attr AttributeID) (Status, []byte) {
	switch attr {
	case AttrIV:
		if c.iv == nil {
			return StatusNotFound, nil
		}
		return StatusOK, append([]byte(nil), c.iv...)
	default:
		return StatusArgValue, nil
	}
}

func (c *Context) setAttribute(attr AttributeID, num int) Status {
	switch attr {
	case AttrMode:
		c.mode = num
		return StatusOK
	case AttrKeyingIterations:
		c.kdfIterations = num
		return StatusOK
	case AttrStatus:
		// SET_ATTRIBUTE(STATUS, OK) is the conventional "finish
		// initialising" signal; the high-state transition itself is
		// driven by the attribute ACL's trigger flag in the dispatcher's
		// post-dispatch hook (handlingtable.go), not here.
		return StatusOK
	case AttrHighSecurity:
		// The HIGHSECURITY trigger carries no instance data; the ACL's
		// post-dispatch hook moves the object into the high state.
		return StatusOK
	default:
		return StatusArgValue
	}
}

func (c *Context) setAttributeString(attr AttributeID, data []byte) Status {
	switch attr {
	case AttrKey:
		if c.cap.InitKey == nil {
			return StatusArgValue
		}
		if c.kdfIterations > 0 {
			derived, st := c.derivePassphraseLocked(data)
			if !st.OK() {
				return st
			}
			data = derived
		}
		block, st := c.cap.InitKey(data)
		if !st.OK() {
			return st
		}
		if c.key != nil {
			c.alloc.Free(c.key)
		}
		buf, st := c.alloc.Alloc(max(len(data), minAllocSize))
		if !st.OK() {
			return st
		}
		copy(buf.Bytes(), data)
		c.key = buf
		c.block = block
		return StatusOK
	case AttrIV:
		c.iv = append([]byte(nil), data...)
		return StatusOK
	default:
		return StatusArgValue
	}
}

func (c *Context) deleteAttribute(attr AttributeID) Status {
	switch attr {
	case AttrIV:
		wipe(c.iv)
		c.iv = nil
		return StatusOK
	default:
		return StatusArgValue
	}
}

// encryptDecrypt runs CBC mode over data using the loaded key and IV,
// returning the result in a new buffer (data is left unchanged), and
// rejects if no key has been loaded yet — the "DES context
// used before a key is loaded" scenario.
func (c *Context) encryptDecrypt(data []byte, encrypt bool) (Status, []byte) {
	if c.block == nil {
		return StatusNotInited, nil
	}
	bs := c.block.BlockSize()
	if len(data)%bs != 0 {
		return StatusArgNum1, nil
	}
	iv := c.iv
	if len(iv) < bs {
		iv = make([]byte, bs)
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(c.block, iv[:bs]).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(c.block, iv[:bs]).CryptBlocks(out, data)
	}
	return StatusOK, out
}

// genKey generates a fresh X25519 key pair for a PKC context, reading
// entropy directly from the CSPRNG wired into c.rng (the kernel's own
// for contexts made by CreatePKCContext); genKey is only meaningful on a PKC context and fails
// StatusArgValue otherwise.
func (c *Context) genKey(tok goroutineToken) (Status, []byte) {
	if c.alg != AlgX25519ChaCha20Poly1305 {
		return StatusArgValue, nil
	}
	if c.rng == nil {
		return StatusNotAvail, nil
	}
	kp, st := GenerateX25519(c.rng)
	if !st.OK() {
		return st, nil
	}
	c.priv = kp
	c.pub = kp
	c.hasPriv = true
	return StatusOK, append([]byte(nil), kp.Public[:]...)
}

// derivePassphraseLocked stretches data through MechDerivePBKDF2 using
// kdfIterations, the mechanism KEYING_ITERATIONS actually drives: a
// SET_ATTRIBUTE(KEY) on a context with keying iterations set treats data
// as a passphrase rather than raw key bytes. The salt is drawn once
// from the context's RNG (wired for contexts created through the
// kernel, see (*Kernel).CreateContext) and cached in kdfSalt for the
// life of the context; contexts with no RNG wired (direct
// NewConventionalContext use in tests) fall back to a fixed salt.
func (c *Context) derivePassphraseLocked(data []byte) ([]byte, Status) {
	if c.kdfSalt == nil {
		salt := make([]byte, 16)
		if c.rng != nil {
			if _, st := c.rng.Output(salt); !st.OK() {
				return nil, st
			}
		}
		c.kdfSalt = salt
	}
	return DerivePBKDF2(data, c.kdfSalt, c.kdfIterations, len(data))
}

func intBytes(v int) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
