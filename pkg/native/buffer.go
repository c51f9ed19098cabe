package native

import "unsafe"

// copyBuffer copies n bytes at p into Go memory. p must address at least n
// readable bytes for the duration of the call. Sizes are not narrowed to a
// C int, so buffers of 2 GiB and more copy whole.
func copyBuffer(p Pointer, n uint) []byte {
	if p == 0 || n == 0 {
		return []byte{}
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
	out := make([]byte, n)
	copy(out, src)
	return out
}
