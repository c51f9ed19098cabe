// Package native describes the foreign boundary between Go and a script
// engine library.
//
// The boundary mirrors the libv8cffi C ABI one-to-one: three opaque handle
// kinds (platform, VM, context), a status code per call, and output buffers
// that the library allocates and the caller must hand back through
// [Library.Free]. Nothing in this package tracks lifecycle; that is the job
// of package engine.
//
// # Libraries
//
// Implementations register themselves by name and are opened with [Open]:
//
//	import _ "github.com/nitely/v8-cffi/pkg/native/embedded"
//
//	lib, err := native.Open("embedded")
//
// The "embedded" library runs scripts in-process and needs no native
// toolchain. The "v8cffi" library is a cgo binding to libv8cffi and is only
// compiled with the v8cffi build tag:
//
//	go build -tags v8cffi ./...
//
// # Buffers
//
// RunScript writes up to two library-owned buffers (result and diagnostic).
// Each non-zero [Pointer] must be passed to [Library.Free] exactly once.
// [Library.GoBytes] copies a buffer into Go memory without freeing it.
package native
