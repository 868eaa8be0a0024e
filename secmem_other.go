//go:build !unix

package ckernel

// NewSystemAllocator returns a plain Allocator on platforms without a
// page-locking syscall binding; every allocation is unlocked, which is
// always a legal outcome per sec_mem.c (locked is best-effort, never a
// correctness requirement).
func NewSystemAllocator() *Allocator {
	return NewAllocator()
}
