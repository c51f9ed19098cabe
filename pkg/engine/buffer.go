package engine

import "github.com/nitely/v8-cffi/pkg/native"

// outputBuffer owns a library-allocated buffer written by RunScript. The
// library fills ptr and n; release hands the memory back exactly once.
type outputBuffer struct {
	lib      native.Library
	ptr      native.Pointer
	n        uint
	acquired bool
}

func (b *outputBuffer) acquire() error {
	if b.acquired {
		return violation("buffer", "acquire", StateAlive, "buffer already acquired")
	}
	b.ptr, b.n = 0, 0
	b.acquired = true
	return nil
}

func (b *outputBuffer) release() error {
	if !b.acquired {
		return violation("buffer", "release", StateUnset, "buffer already released")
	}
	if b.ptr != 0 {
		b.lib.Free(b.ptr)
	}
	b.ptr, b.n = 0, 0
	b.acquired = false
	return nil
}

// bytes copies the buffer contents into Go memory.
func (b *outputBuffer) bytes() []byte {
	if b.ptr == 0 || b.n == 0 {
		return nil
	}
	return b.lib.GoBytes(b.ptr, b.n)
}
