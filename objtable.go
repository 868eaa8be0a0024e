package ckernel

import (
	"sync"
)

// Object table
//
// Handle -> object-record mapping. Apart from the fixed singleton
// handles below firstDynamicHandle, handles are assigned from an LFSR
// sequence rather than sequentially — a deliberate defence against
// callers assuming fixed handle values — and the table doubles in size,
// bounded by MaxObjects, when the LFSR exhausts the current table
// without finding a free slot. Grounded on cryptlib/kernel/objects.c,
// down to the literal 16-entry polynomial table used to pick the next
// LFSR feedback polynomial after each doubling.
var lfsrPolyTable = [16]uint32{
	0x83, 0x11D, 0x211, 0x409,
	0x805, 0x1053, 0x201B, 0x402B,
	0x8003, 0x1002D, 0x20009, 0x40027,
	0x80027, 0x100009, 0x200005, 0x400003,
}

const (
	defaultTableSize = 128
	// MaxObjects bounds the object table to defend against runaway
	// object creation and DoS via handle exhaustion.
	MaxObjects = 1 << 16
)

type objectTable struct {
	mu        sync.Mutex
	table     []object
	lfsrValue uint32
	lfsrMask  uint32
	lfsrPoly  uint32
	nextID    uint32
	shutdown  bool

	alloc *Allocator
}

func newObjectTable(initialSize int, alloc *Allocator) *objectTable {
	if initialSize <= 0 {
		initialSize = defaultTableSize
	}
	mask := uint32(1)
	for int(mask) < initialSize {
		mask <<= 1
	}
	return &objectTable{
		table:     make([]object, mask),
		lfsrMask:  mask,
		lfsrPoly:  lfsrPolyTable[0],
		lfsrValue: seedLFSR(),
		alloc:     alloc,
	}
}

// seedLFSR picks a non-zero initial LFSR state derived from
// wall-clock time. The LFSR must never start at zero (a
// zero state never advances), so the low bit is forced to 1.
func seedLFSR() uint32 {
	v := uint32(wallClockNanos()) | 1
	return v
}

// findFreeSlot steps the LFSR up to len(t.table) times, taking the
// first free slot at or above firstDynamicHandle that it lands on. The
// LFSR steps can revisit some slots and miss others, so when they find
// nothing a linear scan of the dynamic range decides whether the table
// is really full.
func (t *objectTable) findFreeSlot() (int, bool) {
	size := uint32(len(t.table))
	for i := uint32(0); i < size; i++ {
		// Advance: multiply by x and reduce by the polynomial.
		if t.lfsrValue&1 != 0 {
			t.lfsrValue = (t.lfsrValue >> 1) ^ t.lfsrPoly
		} else {
			t.lfsrValue >>= 1
		}
		idx := t.lfsrValue % size
		if idx >= firstDynamicHandle && t.table[idx].isFree() {
			return int(idx), true
		}
	}
	for idx := firstDynamicHandle; idx < len(t.table); idx++ {
		if t.table[idx].isFree() {
			return idx, true
		}
	}
	return 0, false
}

// expand doubles the table (bounded by MaxObjects) and advances to the
// next LFSR polynomial from lfsrPolyTable, matching
// objects.c:expandObjectTable.
func (t *objectTable) expand() Status {
	newSize := len(t.table) * 2
	if newSize > MaxObjects {
		return StatusMemory
	}
	newTable := make([]object, newSize)
	copy(newTable, t.table)
	t.table = newTable
	t.lfsrMask <<= 1
	for _, p := range lfsrPolyTable {
		if p > t.lfsrPoly {
			t.lfsrPoly = p
			break
		}
	}
	return StatusOK
}

// CreateParams bundles the arguments to Create, mirroring
// krnlCreateObject's parameter list.
type CreateParams struct {
	Type     ObjectType
	Subtype  Subtype
	Owner    Handle
	HasOwner bool
	Perms    actionPerms
	Handler  MessageHandler
	// ForwardCount/UsageCount default to -1 (unlimited) if left zero;
	// callers that want "zero = finite zero" must set them explicitly
	// via SET_ATTRIBUTE after creation, matching the original's
	// "object starts unrestricted, attributes narrow it" model.
	ForwardCount int
	UsageCount   int

	// Instance is the object's private instance data (a *Context, *device,
	// ...). It must be non-nil: isFree() uses a nil instance to recognise
	// an unused slot, so a nil Instance here would make the new object
	// indistinguishable from a free one.
	Instance any
}

// Create allocates a handle, fills a fresh record marked internal and
// not-yet-initialised, and returns the new handle. While any of the
// fixed handles below firstDynamicHandle is free, the lowest free one
// is used (so the first two objects created are SystemHandle and
// DefaultUserHandle); every other handle comes from the LFSR. The caller's
// constructor (the object's own message handler, invoked via the
// dispatcher's CREATE_OBJECT path) is responsible for populating
// instance data before the object can leave the not-initialised state.
func (t *objectTable) Create(p CreateParams) (Handle, Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.shutdown {
		return 0, StatusPermission
	}
	if p.Instance == nil {
		return 0, StatusArgValue
	}

	idx, ok := -1, false
	for h := 0; h < firstDynamicHandle && h < len(t.table); h++ {
		if t.table[h].isFree() {
			idx, ok = h, true
			break
		}
	}
	if !ok {
		idx, ok = t.findFreeSlot()
	}
	if !ok {
		if st := t.expand(); !st.OK() {
			return 0, st
		}
		idx, ok = t.findFreeSlot()
		if !ok {
			return 0, StatusMemory
		}
	}

	t.nextID++
	if t.nextID == 0 {
		// Wrap: the counter restarts at firstDynamicHandle, above the
		// system-object range, so the zero ID is never handed out.
		t.nextID = uint32(firstDynamicHandle)
	}

	perms := p.Perms
	forward := p.ForwardCount
	if forward == 0 {
		forward = -1
	}
	usage := p.UsageCount
	if usage == 0 {
		usage = -1
	}

	t.table[idx] = object{
		handle:     Handle(idx),
		objType:    p.Type,
		subType:    p.Subtype,
		instance:   p.Instance,
		flags:      flagInternal | flagNotInited,
		perms:      perms,
		uniqueID:   t.nextID,
		forwardCnt: forward,
		usageCnt:   usage,
		owner:      p.Owner,
		hasOwner:   p.HasOwner,
		handler:    p.Handler,
	}
	return Handle(idx), StatusOK
}

// CheckKind selects the access policy applied by Acquire/Release.
type CheckKind int

const (
	CheckExtAccess CheckKind = iota // cert/hardware-device extension copy, tied-context ops
	CheckKeyAccess                  // context key export/import
	CheckSuspend                    // system/user object temporarily yielded during slow work
)

// Acquire validates the handle and (unless expectType is TypeNone) its
// type, blocking via objectWait if the object is busy, then bumps
// lockCount and returns a pointer usable for the duration of one
// external access. Ownership is not checked, and kind does not change
// what Acquire does.
func (t *objectTable) Acquire(h Handle, expectType ObjectType, kind CheckKind, tok goroutineToken) (*object, Status) {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return nil, StatusPermission
	}
	o, st := t.validate(h, expectType)
	if !st.OK() {
		t.mu.Unlock()
		return nil, st
	}

	if o.flags.has(flagBusy) && o.lockOwner != tok {
		snapshot := o.uniqueID
		t.mu.Unlock()
		res := objectWait(snapshot, func() (bool, uint32, bool) {
			t.mu.Lock()
			defer t.mu.Unlock()
			cur := &t.table[h]
			if cur.isFree() {
				return false, 0, false
			}
			return cur.flags.has(flagBusy), cur.uniqueID, true
		})
		t.mu.Lock()
		switch res {
		case waitSignalled:
			t.mu.Unlock()
			return nil, StatusSignalled
		case waitTimedOut:
			t.mu.Unlock()
			return nil, StatusTimeout
		}
		o, st = t.validate(h, expectType)
		if !st.OK() {
			t.mu.Unlock()
			return nil, st
		}
	}

	switch kind {
	case CheckSuspend:
		// Suspend temporarily zeros lockCount elsewhere (see Suspend);
		// a plain Acquire under CheckSuspend just bumps as normal.
	}

	o.lockCount++
	o.lockOwner = tok
	t.mu.Unlock()
	return o, StatusOK
}

// Release mirrors Acquire: decrements lockCount (never below zero) for
// every kind. A count zeroed by Suspend is restored by Resume, not here.
func (t *objectTable) Release(h Handle, kind CheckKind) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) < 0 || int(h) >= len(t.table) || t.table[h].isFree() {
		return StatusArgObject
	}
	o := &t.table[h]
	if o.lockCount > 0 {
		o.lockCount--
	}
	return StatusOK
}

// Suspend temporarily zeros an object's lockCount so another thread may
// acquire it during long-running work; the returned token must be passed
// to Resume to restore the prior count. Used only for the system/user
// object.
func (t *objectTable) Suspend(h Handle) (prior int, st Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) < 0 || int(h) >= len(t.table) || t.table[h].isFree() {
		return 0, StatusArgObject
	}
	o := &t.table[h]
	prior = o.lockCount
	o.lockCount = 0
	return prior, StatusOK
}

// Resume restores a lockCount previously zeroed by Suspend.
func (t *objectTable) Resume(h Handle, prior int) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(h) < 0 || int(h) >= len(t.table) || t.table[h].isFree() {
		return StatusArgObject
	}
	t.table[h].lockCount = prior
	return StatusOK
}

// validate checks handle range, liveness, and (if expectType != TypeNone)
// type; must be called with t.mu held.
func (t *objectTable) validate(h Handle, expectType ObjectType) (*object, Status) {
	if int(h) < 0 || int(h) >= len(t.table) {
		return nil, StatusArgObject
	}
	o := &t.table[h]
	if o.isFree() {
		return nil, StatusArgObject
	}
	if expectType != TypeNone && o.objType != expectType {
		return nil, StatusArgObject
	}
	return o, StatusOK
}

// Destroy is the message-dispatcher callback for DESTROY: decrements
// dependent-object reference counts, sets flagSignalled, invokes the
// handler's destroy case, scrubs and frees instance data, and finally
// frees the slot.
func (t *objectTable) Destroy(h Handle, tok goroutineToken) Status {
	t.mu.Lock()
	o, st := t.validate(h, TypeNone)
	if !st.OK() {
		t.mu.Unlock()
		return st
	}

	if o.flags.has(flagNotInited) {
		// Still under construction: defer actual destruction until the
		// creator calls Kernel.MarkInitialised; just mark signalled.
		o.flags |= flagSignalled
		t.mu.Unlock()
		return StatusOK
	}

	handler := o.handler
	dep, hasDep := o.dependent, o.hasDepend
	t.mu.Unlock()

	if handler != nil {
		_, _ = handler(Message{Kind: MsgDestroy}, tok)
	}
	if hasDep {
		t.decRef(dep)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	o2, st2 := t.validate(h, TypeNone)
	if !st2.OK() {
		return st2
	}
	o2.flags |= flagSignalled
	t.table[h] = objectTemplate
	return StatusOK
}

// decRef decrements a dependent object's reference count, destroying it
// in turn once the count reaches zero: destroying a controlling
// object cascades to whatever depends on it.
func (t *objectTable) decRef(h Handle) {
	t.mu.Lock()
	if int(h) < 0 || int(h) >= len(t.table) || t.table[h].isFree() {
		t.mu.Unlock()
		return
	}
	o := &t.table[h]
	o.refCount--
	destroy := o.refCount <= 0
	t.mu.Unlock()
	if destroy {
		_ = t.Destroy(h, newGoroutineToken())
	}
}

// IncRef/DecRef implement the kernel-owned INC_REFCOUNT/DEC_REFCOUNT
// messages (handled entirely inside the table, never reaching the
// object's own handler — see dispatch.go's kernel-handler path).
func (t *objectTable) IncRef(h Handle) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, st := t.validate(h, TypeNone)
	if !st.OK() {
		return st
	}
	o.refCount++
	return StatusOK
}

func (t *objectTable) DecRef(h Handle) Status {
	t.mu.Lock()
	o, st := t.validate(h, TypeNone)
	if !st.OK() {
		t.mu.Unlock()
		return st
	}
	o.refCount--
	destroy := o.refCount <= 0
	t.mu.Unlock()
	if destroy {
		return t.Destroy(h, newGoroutineToken())
	}
	return StatusOK
}

// SetDependent implements SET_DEPENDENT, rejecting any assignment that
// would create a cycle when traced three hops deep: the dependent-object
// graph must stay acyclic with depth <= 3.
func (t *objectTable) SetDependent(h, dep Handle, isDevice bool) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, st := t.validate(h, TypeNone)
	if !st.OK() {
		return st
	}
	if _, st := t.validate(dep, TypeNone); !st.OK() {
		return st
	}
	cur := dep
	for depth := 0; depth < 3; depth++ {
		if cur == h {
			return StatusArgValue
		}
		d, hasD := t.table[cur].dependent, t.table[cur].hasDepend
		if !hasD {
			break
		}
		cur = d
	}
	if cur == h {
		return StatusArgValue
	}
	if isDevice {
		o.depDevice, o.hasDepDev = dep, true
	} else {
		o.dependent, o.hasDepend = dep, true
	}
	return StatusOK
}

// GetDependent implements GET_DEPENDENT.
func (t *objectTable) GetDependent(h Handle, isDevice bool) (Handle, Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, st := t.validate(h, TypeNone)
	if !st.OK() {
		return 0, st
	}
	if isDevice {
		if !o.hasDepDev {
			return 0, StatusNotFound
		}
		return o.depDevice, StatusOK
	}
	if !o.hasDepend {
		return 0, StatusNotFound
	}
	return o.dependent, StatusOK
}

// Clone shallow-copies an object's instance data onto a new handle,
// flagged aliased/cloned so both handles share the same underlying
// instance; no copy-on-write split is ever performed. This is the
// SUPPLEMENTED FEATURES addition documented in SPEC_FULL.md, grounded on
// kernel.h's isAliasedObject/isClonedObject macros.
func (t *objectTable) Clone(h Handle) (Handle, Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	src, st := t.validate(h, TypeNone)
	if !st.OK() {
		return 0, st
	}

	idx, ok := t.findFreeSlot()
	if !ok {
		if st := t.expand(); !st.OK() {
			return 0, st
		}
		idx, ok = t.findFreeSlot()
		if !ok {
			return 0, StatusMemory
		}
	}
	t.nextID++

	clone := *src
	clone.handle = Handle(idx)
	clone.uniqueID = t.nextID
	clone.flags |= flagAliased | flagCloned
	clone.lockCount = 0
	src.flags |= flagAliased
	t.table[idx] = clone
	return Handle(idx), StatusOK
}
