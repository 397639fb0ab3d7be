package negotiate

import "unsafe"

// nativeLittleEndian detects the running process's byte order at runtime,
// the same test used by Go's own x/sys/cpu and countless wire-protocol
// implementations in the ecosystem.
func nativeLittleEndian() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}
