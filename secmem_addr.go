package ckernel

import "unsafe"

// sliceAddr returns the address of a byte slice's backing array, used
// only to compute which OS pages a secure allocation spans.
func sliceAddr(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&data[0]))
}
