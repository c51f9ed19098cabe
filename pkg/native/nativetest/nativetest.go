// Package nativetest provides a scriptable native.Library that records every
// handle and buffer it hands out, so tests can assert that nothing leaks.
package nativetest

import (
	"sync"

	"github.com/nitely/v8-cffi/pkg/native"
)

// Kind identifies what a handle refers to.
type Kind int

const (
	KindPlatform Kind = iota + 1
	KindVM
	KindContext
)

// Result is what a ScriptFunc reports for one RunScript call.
type Result struct {
	Output     string
	Diagnostic string
	Status     native.Status
}

// ScriptFunc decides the outcome of RunScript.
type ScriptFunc func(source, identifier string) Result

// Echo returns the source as the result.
func Echo(source, _ string) Result {
	return Result{Output: source}
}

// Library is a fake native.Library. Set the exported fields before handing
// it to the code under test; they are read without locking.
type Library struct {
	PlatformStatus native.Status
	VMStatus       native.Status
	ContextStatus  native.Status
	Script         ScriptFunc

	mu          sync.Mutex
	next        uintptr
	handles     map[native.Handle]Kind
	buffers     map[native.Pointer][]byte
	allocated   int
	doubleFrees int
	runs        int
	platforms   int
	lastNatives []byte
	lastSnap    []byte
}

// New returns a Library that echoes every script.
func New() *Library {
	return &Library{
		Script:  Echo,
		handles: make(map[native.Handle]Kind),
		buffers: make(map[native.Pointer][]byte),
	}
}

var _ native.Library = (*Library)(nil)

func (l *Library) newHandle(kind Kind) native.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	h := native.Handle(l.next)
	l.handles[h] = kind
	return h
}

func (l *Library) freeHandle(h native.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handles, h)
}

func (l *Library) alloc(s string) native.Pointer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	p := native.Pointer(l.next)
	l.buffers[p] = []byte(s)
	l.allocated++
	return p
}

func (l *Library) PlatformNew(out *native.Handle, natives, snapshot []byte) native.Status {
	l.mu.Lock()
	l.lastNatives = append([]byte(nil), natives...)
	l.lastSnap = append([]byte(nil), snapshot...)
	l.platforms++
	l.mu.Unlock()
	if l.PlatformStatus != native.StatusOK {
		return l.PlatformStatus
	}
	*out = l.newHandle(KindPlatform)
	return native.StatusOK
}

func (l *Library) PlatformFree(h native.Handle) { l.freeHandle(h) }

func (l *Library) VMNew(out *native.Handle) native.Status {
	if l.VMStatus != native.StatusOK {
		return l.VMStatus
	}
	*out = l.newHandle(KindVM)
	return native.StatusOK
}

func (l *Library) VMFree(h native.Handle) { l.freeHandle(h) }

func (l *Library) ContextNew(out *native.Handle, _ native.Handle) native.Status {
	if l.ContextStatus != native.StatusOK {
		return l.ContextStatus
	}
	*out = l.newHandle(KindContext)
	return native.StatusOK
}

func (l *Library) ContextFree(h native.Handle) { l.freeHandle(h) }

func (l *Library) RunScript(_ native.Handle, source, identifier []byte,
	output *native.Pointer, outputLen *uint,
	errOut *native.Pointer, errLen *uint) native.Status {
	l.mu.Lock()
	l.runs++
	l.mu.Unlock()

	res := l.Script(string(source), string(identifier))
	if res.Output != "" {
		*output = l.alloc(res.Output)
		*outputLen = uint(len(res.Output))
	}
	if res.Diagnostic != "" {
		*errOut = l.alloc(res.Diagnostic)
		*errLen = uint(len(res.Diagnostic))
	}
	return res.Status
}

func (l *Library) Free(p native.Pointer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buffers[p]; !ok {
		l.doubleFrees++
		return
	}
	delete(l.buffers, p)
}

func (l *Library) GoBytes(p native.Pointer, n uint) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buffers[p]
	if uint(len(b)) < n {
		n = uint(len(b))
	}
	return append([]byte(nil), b[:n]...)
}

// Outstanding returns the number of buffers not yet freed.
func (l *Library) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffers)
}

// Allocated returns the total number of buffers ever handed out.
func (l *Library) Allocated() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocated
}

// DoubleFrees counts Free calls on unknown or already freed pointers.
func (l *Library) DoubleFrees() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doubleFrees
}

// PlatformNews returns the number of PlatformNew calls, failed ones included.
func (l *Library) PlatformNews() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.platforms
}

// Runs returns the number of RunScript calls.
func (l *Library) Runs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runs
}

// Live returns the number of live handles of the given kind.
func (l *Library) Live(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, k := range l.handles {
		if k == kind {
			n++
		}
	}
	return n
}

// Blobs returns the payloads passed to the last PlatformNew call.
func (l *Library) Blobs() (natives, snapshot []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastNatives, l.lastSnap
}
