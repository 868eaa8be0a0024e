package ckernel

import (
	"errors"
	"runtime"
	"sync"
)

// Secure allocator
//
// Two operations: Alloc (fails with StatusMemory below a fixed floor,
// above a fixed ceiling, or when host resources are exhausted) and Free.
// Blocks are linked into a process-wide list so a watchdog could walk it
// touching every page to keep them resident; this package does not run
// such a watchdog itself (no host integration point is in scope) but
// keeps the list so one could be added without changing this file.
//
// Grounded on cryptlib/kernel/sec_mem.c (krnlMemalloc/krnlMemfree), down
// to the canary values and the min/max allocation bounds.

const (
	minAllocSize = 8
	maxAllocSize = 65536

	canaryStart uint32 = 0xC0EDBABE
	canaryEnd   uint32 = 0x36DD2436
)

var errCanaryMismatch = errors.New("ckernel: secure memory canary mismatch")

// secureBlock is one allocation's bookkeeping, analogous to
// sec_mem.c's MEMLOCK_INFO header. Unlike the C original we don't place
// this inline before the user buffer (Go gives no portable way to do
// that safely); instead the allocator hands back a *SecureBuffer
// wrapping both the header and the data so Free can still find it in
// O(1) without a linear scan, while the list exists purely for
// accounting/parity with the original design.
type secureBlock struct {
	prev, next *secureBlock
	size       int
	locked     bool
	canaryA    uint32
	canaryB    uint32
	data       []byte
	freed      bool
}

// SecureBuffer is a page-locked-if-possible, canary-protected allocation
// returned by (*Allocator).Alloc. Only material that must never be
// written to a paging file — keying data, pool state, sensitive
// intermediates — should use this instead of a plain make([]byte, n).
type SecureBuffer struct {
	block *secureBlock
}

// Bytes returns the usable region of the buffer. The returned slice is
// only valid until Free is called.
func (b *SecureBuffer) Bytes() []byte {
	if b == nil || b.block == nil {
		return nil
	}
	return b.block.data
}

// Allocator is the process-wide secure memory allocator: a doubly linked
// list of live SecureBuffers guarded by a single mutex.
type Allocator struct {
	mu         sync.Mutex
	head, tail *secureBlock
	lockPages  func(data []byte) (locked bool)
	unlockPage func(data []byte)
}

// NewAllocator constructs an Allocator. lockPages/unlockPage are injected
// so tests and non-Unix builds can run without real mlock/munlock
// syscalls; see secmem_unix.go for the production wiring.
func NewAllocator() *Allocator {
	return &Allocator{
		lockPages: func([]byte) bool { return false },
		unlockPage: func([]byte) {
		},
	}
}

// Alloc allocates size bytes of secure memory.
func (a *Allocator) Alloc(size int) (*SecureBuffer, Status) {
	if size < minAllocSize || size > maxAllocSize {
		return nil, StatusMemory
	}

	blk := &secureBlock{
		size:    size,
		canaryA: canaryStart,
		canaryB: canaryEnd,
		data:    make([]byte, size),
	}
	blk.locked = a.lockPages(blk.data)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.head == nil {
		a.head, a.tail = blk, blk
	} else {
		a.tail.next = blk
		blk.prev = a.tail
		a.tail = blk
	}

	return &SecureBuffer{block: blk}, StatusOK
}

// Free validates the block, unlinks it from the allocator's list,
// unlocks any page it holds exclusively, scrubs it, and releases it.
// Free is a no-op on an already-freed or nil buffer.
func (a *Allocator) Free(b *SecureBuffer) Status {
	if b == nil || b.block == nil || b.block.freed {
		return StatusOK
	}
	blk := b.block

	if blk.canaryA != canaryStart || blk.canaryB != canaryEnd {
		// Validation failure: abort safely without freeing, matching
		// the original's refusal to unlink a corrupted block.
		return StatusBadData
	}
	if blk.size < minAllocSize || blk.size > maxAllocSize {
		return StatusBadData
	}

	a.mu.Lock()
	if blk.prev != nil {
		blk.prev.next = blk.next
	} else {
		a.head = blk.next
	}
	if blk.next != nil {
		blk.next.prev = blk.prev
	} else {
		a.tail = blk.prev
	}

	if blk.locked {
		if !a.pageSharedLocked(blk) {
			a.unlockPage(blk.data)
		}
	}
	a.mu.Unlock()

	wipeBlock(blk)
	blk.freed = true
	b.block = nil
	return StatusOK
}

// pageSharedLocked reports whether any other block still on the list
// overlaps a page spanned by blk — OS page locking is reference-count-
// less and per-page, so the page must stay locked until no locked block
// shares it. Must be called with a.mu held.
func (a *Allocator) pageSharedLocked(blk *secureBlock) bool {
	for cur := a.head; cur != nil; cur = cur.next {
		if cur == blk || !cur.locked {
			continue
		}
		if pagesOverlap(blk.data, cur.data) {
			return true
		}
	}
	return false
}

func pagesOverlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	const pageSize = 4096
	aStart, aEnd := pageRange(a, pageSize)
	bStart, bEnd := pageRange(b, pageSize)
	return aStart <= bEnd && bStart <= aEnd
}

func pageRange(data []byte, pageSize uintptr) (start, end uintptr) {
	p := sliceAddr(data)
	start = p &^ (pageSize - 1)
	end = (p + uintptr(len(data)) - 1) &^ (pageSize - 1)
	return
}

//go:noinline
func wipeBlock(blk *secureBlock) {
	for i := range blk.data {
		blk.data[i] = 0
	}
	blk.canaryA, blk.canaryB = 0, 0
	runtime.KeepAlive(blk.data)
}

// wipe zeroes p in place: a noinline loop plus KeepAlive so the
// compiler can't prove the store dead and elide it.
//
//go:noinline
func wipe(p []byte) {
	for i := range p {
		p[i] = 0
	}
	runtime.KeepAlive(p)
}
