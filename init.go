package ckernel

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kernel init/shutdown
//
// Four-phase staging mirroring cryptlib/kernel/init.c: beginInit (stand
// up the primitive layers), completeInit (bootstrap the system device
// and default user, run self-tests), beginShutdown (stop accepting new
// external messages except the handful Destroy/GetAttribute/RefCount
// needs to unwind cleanly), completeShutdown (tear down every
// remaining object and release the allocator). A single global init
// lock serialises the whole sequence, matching the original's
// krnlBeginInit/krnlCompleteInit pairing.

// Option configures a Kernel at construction using the functional-options
// pattern.
type Option func(*kernelConfig)

type kernelConfig struct {
	tableSize int
	queueCap  int
	logger    zerolog.Logger
	runSelfTest bool
}

// WithInitialTableSize sets the object table's starting size (before
// any LFSR-driven doubling).
func WithInitialTableSize(n int) Option {
	return func(c *kernelConfig) { c.tableSize = n }
}

// WithQueueDepth sets the dispatcher's queue capacity n. The queue
// itself is not bounded by it: n only sets the recursion limit, and a
// message to an object already locked more than n/2 times returns
// StatusTimeout.
func WithQueueDepth(n int) Option {
	return func(c *kernelConfig) { c.queueCap = n }
}

// WithLogger overrides the zerolog.Logger the dispatcher emits
// structured dispatch events to.
func WithLogger(l zerolog.Logger) Option {
	return func(c *kernelConfig) { c.logger = l }
}

// WithoutSelfTest skips the startup self-test suite (selftest.go),
// useful only for tests that want to exercise a half-initialised
// kernel; production callers should never set this.
func WithoutSelfTest() Option {
	return func(c *kernelConfig) { c.runSelfTest = false }
}

// Kernel is the top-level facade: the object table, dispatcher, ACL
// set, allocator, and CSPRNG, wired together and bootstrapped with the
// system device and default user.
type Kernel struct {
	mu sync.Mutex

	table   *objectTable
	acl     *aclSet
	dispatch *Dispatcher
	alloc   *Allocator
	csprng  *CSPRNG

	initDone bool
	shutdown bool

	log zerolog.Logger
}

var globalInitLock sync.Mutex

// New builds and fully initialises a Kernel: beginInit, completeInit,
// and (unless WithoutSelfTest is given) the self-test suite, in one
// call — cryptlib's own callers never see the four phases split apart
// either; krnlInit() runs them back to back, and only the internal
// kernel test harness would want them separately.
func New(opts ...Option) (*Kernel, Status) {
	globalInitLock.Lock()
	defer globalInitLock.Unlock()

	cfg := kernelConfig{
		tableSize:   defaultTableSize,
		queueCap:    defaultQueueDepth,
		logger:      zerolog.New(os.Stderr).With().Timestamp().Logger(),
		runSelfTest: true,
	}
	for _, o := range opts {
		o(&cfg)
	}

	k := &Kernel{log: cfg.logger}
	if st := k.beginInit(cfg); !st.OK() {
		return nil, st
	}
	if st := k.completeInit(cfg); !st.OK() {
		return nil, st
	}
	return k, StatusOK
}

// beginInit stands up the primitive layers: allocator, ACL set,
// object table, CSPRNG, dispatcher. No object exists yet.
func (k *Kernel) beginInit(cfg kernelConfig) Status {
	k.alloc = NewSystemAllocator()
	k.acl = newACLSet(time.Now())
	k.table = newObjectTable(cfg.tableSize, k.alloc)
	k.csprng = NewCSPRNG()
	k.dispatch = newDispatcher(k.table, k.acl, k.log, cfg.queueCap, &k.shutdown)
	return StatusOK
}

// completeInit bootstraps the system device and default user, then (if
// requested) runs the self-test suite; only after this returns OK is
// the kernel considered live.
func (k *Kernel) completeInit(cfg kernelConfig) Status {
	if st := bootstrapSystem(k.table, k.alloc, k.csprng); !st.OK() {
		return st
	}
	if cfg.runSelfTest {
		if st := runSelfTests(k); !st.OK() {
			return st
		}
	}
	k.mu.Lock()
	k.initDone = true
	k.mu.Unlock()
	return StatusOK
}

// Send routes msg through the kernel's dispatcher — the one path every
// operation, external or internal, funnels through.
func (k *Kernel) Send(msg Message) (Status, []byte) {
	return k.dispatch.Send(msg)
}

// CreateContext creates a new conventional-encryption context bound to
// alg, owned by owner, and registers it with the object table.
func (k *Kernel) CreateContext(alg AlgorithmID, owner Handle) (Handle, Status) {
	ctx, st := NewConventionalContext(k.alloc, alg)
	if !st.OK() {
		return 0, st
	}
	ctx.rng = k.csprng
	return k.table.Create(CreateParams{
		Type:     TypeContext,
		Subtype:  SubtypeCtxConventional,
		Owner:    owner,
		HasOwner: true,
		Perms:    defaultActionPerms(),
		Instance: ctx,
		Handler:  ctx.Handle,
	})
}

// CreatePKCContext creates a new X25519 PKC context wired to the
// kernel's own CSPRNG for GenKey.
func (k *Kernel) CreatePKCContext(owner Handle) (Handle, Status) {
	ctx, st := NewPKCContext(k.alloc, k.csprng)
	if !st.OK() {
		return 0, st
	}
	return k.table.Create(CreateParams{
		Type:     TypeContext,
		Subtype:  SubtypeCtxPKC,
		Owner:    owner,
		HasOwner: true,
		Perms:    defaultActionPerms(),
		Instance: ctx,
		Handler:  ctx.Handle,
	})
}

// SetActionPermission grants or restricts one action kind on an
// already-created, not-yet-high-state object — the usual way a
// creator widens a fresh context's permissions from LevelNone before
// handing the handle to external code.
func (k *Kernel) SetActionPermission(h Handle, kind ActionKind, level ActionLevel) Status {
	k.table.mu.Lock()
	defer k.table.mu.Unlock()
	o, st := k.table.validate(h, TypeNone)
	if !st.OK() {
		return st
	}
	o.perms[kind] = level
	return StatusOK
}

// MarkInitialised clears flagNotInited and flagInternal on h, the step
// a creator takes once instance data is fully populated: until this
// runs, DESTROY on h is
// deferred rather than applied immediately (see objectTable.Destroy),
// and the object is unreachable by any external message at all. A
// DESTROY deferred that way is carried out here.
func (k *Kernel) MarkInitialised(h Handle) Status {
	k.table.mu.Lock()
	o, st := k.table.validate(h, TypeNone)
	if !st.OK() {
		k.table.mu.Unlock()
		return st
	}
	o.flags &^= flagNotInited | flagInternal
	signalled := o.flags.has(flagSignalled)
	k.table.mu.Unlock()
	if signalled {
		return k.table.Destroy(h, newGoroutineToken())
	}
	return StatusOK
}

// CSPRNG exposes the kernel's random generator directly for callers
// that need a raw io.Reader rather than routing every byte through
// GET_ATTRIBUTE(RANDOM) on the system device (both paths share the
// same underlying generator and FIPS-140 continuous tests).
func (k *Kernel) CSPRNG() *CSPRNG { return k.csprng }

// beginShutdown stops the dispatcher from accepting new external
// messages other than the handful still needed to unwind (Destroy,
// ref-counting, GetAttribute), matching init.c's krnlBeginShutdown.
func (k *Kernel) beginShutdown() {
	k.mu.Lock()
	k.shutdown = true
	k.mu.Unlock()
}

// completeShutdown destroys every remaining live object (including the
// default user and system device, last) and releases the allocator's
// bookkeeping. Safe to call only after beginShutdown.
func (k *Kernel) completeShutdown() Status {
	k.table.mu.Lock()
	handles := make([]Handle, 0, len(k.table.table))
	for i := range k.table.table {
		if !k.table.table[i].isFree() {
			handles = append(handles, Handle(i))
		}
	}
	k.table.mu.Unlock()

	for _, h := range handles {
		if h == SystemHandle || h == DefaultUserHandle {
			continue
		}
		_ = k.table.Destroy(h, newGoroutineToken())
	}
	_ = k.table.Destroy(DefaultUserHandle, newGoroutineToken())
	_ = k.table.Destroy(SystemHandle, newGoroutineToken())

	k.table.mu.Lock()
	k.table.shutdown = true
	k.table.mu.Unlock()
	return StatusOK
}

// Shutdown runs beginShutdown and completeShutdown back to back, the
// same collapsing New applies to the init side.
func (k *Kernel) Shutdown() Status {
	globalInitLock.Lock()
	defer globalInitLock.Unlock()
	k.beginShutdown()
	return k.completeShutdown()
}
