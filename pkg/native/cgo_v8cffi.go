//go:build cgo && v8cffi

package native

/*
#cgo LDFLAGS: -lv8cffi
#include <stdlib.h>
#include <v8cffi.h>
*/
import "C"
import "unsafe"

func init() {
	Register("v8cffi", func() (Library, error) { return cgoLibrary{}, nil })
}

// cgoLibrary forwards every call to libv8cffi.
type cgoLibrary struct{}

// bytesPtr returns a C view of b, or nil for an empty slice. The slice must
// not hold Go pointers and must outlive the call.
func bytesPtr(b []byte) *C.char {
	if len(b) == 0 {
		return nil
	}
	return (*C.char)(unsafe.Pointer(&b[0]))
}

func (cgoLibrary) PlatformNew(out *Handle, natives, snapshot []byte) Status {
	var p *C.v8cffi_platform_t
	code := C.v8cffi_platform_new(&p,
		bytesPtr(natives), C.size_t(len(natives)),
		bytesPtr(snapshot), C.size_t(len(snapshot)))
	if Status(code) == StatusOK {
		*out = Handle(unsafe.Pointer(p))
	}
	return Status(code)
}

func (cgoLibrary) PlatformFree(h Handle) {
	C.v8cffi_platform_free((*C.v8cffi_platform_t)(unsafe.Pointer(h)))
}

func (cgoLibrary) VMNew(out *Handle) Status {
	var vm *C.v8cffi_vm_t
	code := C.v8cffi_vm_new(&vm)
	if Status(code) == StatusOK {
		*out = Handle(unsafe.Pointer(vm))
	}
	return Status(code)
}

func (cgoLibrary) VMFree(h Handle) {
	C.v8cffi_vm_free((*C.v8cffi_vm_t)(unsafe.Pointer(h)))
}

func (cgoLibrary) ContextNew(out *Handle, vm Handle) Status {
	var ctx *C.v8cffi_context_t
	code := C.v8cffi_context_new(&ctx, (*C.v8cffi_vm_t)(unsafe.Pointer(vm)))
	if Status(code) == StatusOK {
		*out = Handle(unsafe.Pointer(ctx))
	}
	return Status(code)
}

func (cgoLibrary) ContextFree(h Handle) {
	C.v8cffi_context_free((*C.v8cffi_context_t)(unsafe.Pointer(h)))
}

func (cgoLibrary) RunScript(ctx Handle, source, identifier []byte,
	output *Pointer, outputLen *uint,
	errOut *Pointer, errLen *uint) Status {
	var (
		outBuf *C.char
		outLen C.size_t
		errBuf *C.char
		errN   C.size_t
	)
	code := C.v8cffi_run_script(
		(*C.v8cffi_context_t)(unsafe.Pointer(ctx)),
		bytesPtr(source), C.size_t(len(source)),
		bytesPtr(identifier), C.size_t(len(identifier)),
		&outBuf, &outLen,
		&errBuf, &errN)

	// Buffers are reported whatever the status so the caller can free them.
	*output = Pointer(unsafe.Pointer(outBuf))
	*outputLen = uint(outLen)
	*errOut = Pointer(unsafe.Pointer(errBuf))
	*errLen = uint(errN)
	return Status(code)
}

func (cgoLibrary) Free(p Pointer) {
	C.v8cffi_free(unsafe.Pointer(p))
}

func (cgoLibrary) GoBytes(p Pointer, n uint) []byte {
	return copyBuffer(p, n)
}
