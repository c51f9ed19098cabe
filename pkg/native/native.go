package native

import "fmt"

// Status is the result code returned by every fallible library call.
type Status int32

// Status codes. The numeric values are part of the ABI.
const (
	StatusOK           Status = 0
	StatusOutOfMemory  Status = 1
	StatusJSError      Status = 2
	StatusUnknownError Status = 3
)

// String returns the ABI name of the status code.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusOutOfMemory:
		return "OUT_OF_MEMORY"
	case StatusJSError:
		return "JS_ERROR"
	case StatusUnknownError:
		return "UNKNOWN_ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Handle is an opaque reference to a platform, VM or context owned by a
// library. The zero Handle is never valid.
type Handle uintptr

// Pointer is an opaque reference to a library-owned output buffer.
// The zero Pointer means no buffer was written.
type Pointer uintptr

// Library is the foreign ABI consumed by package engine.
//
// Methods returning Status leave their out parameters untouched unless the
// status is StatusOK, with one exception: RunScript may fill the error
// buffer when it reports a failure.
type Library interface {
	// PlatformNew initializes the process-wide platform from the two blob
	// payloads. Either payload may be empty.
	PlatformNew(out *Handle, natives, snapshot []byte) Status
	PlatformFree(h Handle)

	VMNew(out *Handle) Status
	VMFree(h Handle)

	ContextNew(out *Handle, vm Handle) Status
	ContextFree(h Handle)

	// RunScript compiles and runs source inside ctx. On StatusOK the result
	// coerced to a UTF-8 string is written to output. On StatusJSError the
	// diagnostic is written to errOut.
	RunScript(ctx Handle, source, identifier []byte,
		output *Pointer, outputLen *uint,
		errOut *Pointer, errLen *uint) Status

	// Free releases a buffer written by RunScript.
	Free(p Pointer)

	// GoBytes copies n bytes of the buffer at p into a new slice.
	GoBytes(p Pointer, n uint) []byte
}
