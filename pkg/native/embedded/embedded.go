// Package embedded implements native.Library in-process on top of goja.
//
// It follows the same contract as libv8cffi: opaque handles, status codes,
// library-owned output buffers and the same diagnostic layout, so package
// engine cannot tell the two apart. Each context owns its own goja runtime.
// Contexts created from the same VM share the VM's execution lock, so at
// most one script runs per VM at a time.
//
// The natives and snapshot payloads are treated as prelude scripts run in
// every new context. Payloads that are not valid UTF-8 (real V8 startup
// blobs) are accepted and ignored.
package embedded

import (
	"sync"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/nitely/v8-cffi/pkg/native"
)

// Name is the registry name of this library.
const Name = "embedded"

func init() {
	native.Register(Name, func() (native.Library, error) { return New(), nil })
}

// Option configures a Library.
type Option func(*Library)

// WithMaxOutput caps the size of a result buffer. Larger results fail with
// StatusOutOfMemory. Zero means no limit.
func WithMaxOutput(n int) Option {
	return func(l *Library) { l.maxOutput = n }
}

// WithMaxCallStackSize bounds script recursion depth. Exceeding it raises a
// RangeError inside the script.
func WithMaxCallStackSize(n int) Option {
	return func(l *Library) { l.maxStack = n }
}

const defaultMaxCallStackSize = 8192

type platform struct {
	prelude []*goja.Program
}

type vm struct {
	mu sync.Mutex
}

type jsContext struct {
	vm *vm
	rt *goja.Runtime
}

// Library is an in-process script engine. The zero value is not usable;
// create one with New.
type Library struct {
	maxOutput int
	maxStack  int

	mu       sync.Mutex
	next     uintptr
	platform native.Handle
	objects  map[native.Handle]any
	buffers  map[native.Pointer][]byte
}

var _ native.Library = (*Library)(nil)

// New creates a Library.
func New(opts ...Option) *Library {
	l := &Library{
		maxStack: defaultMaxCallStackSize,
		objects:  make(map[native.Handle]any),
		buffers:  make(map[native.Pointer][]byte),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) put(obj any) native.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	h := native.Handle(l.next)
	l.objects[h] = obj
	return h
}

func (l *Library) get(h native.Handle) any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.objects[h]
}

func (l *Library) drop(h native.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.objects, h)
	if h == l.platform {
		l.platform = 0
	}
}

func (l *Library) currentPlatform() *platform {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.platform == 0 {
		return nil
	}
	p, _ := l.objects[l.platform].(*platform)
	return p
}

// PlatformNew compiles the prelude payloads. Only one platform may be live
// per Library.
func (l *Library) PlatformNew(out *native.Handle, natives, snapshot []byte) native.Status {
	if l.currentPlatform() != nil {
		return native.StatusUnknownError
	}

	p := &platform{}
	for i, blob := range [][]byte{natives, snapshot} {
		if len(blob) == 0 || !utf8.Valid(blob) {
			continue
		}
		prg, err := goja.Compile(blobNames[i], string(blob), false)
		if err != nil {
			return native.StatusUnknownError
		}
		p.prelude = append(p.prelude, prg)
	}

	h := l.put(p)
	l.mu.Lock()
	l.platform = h
	l.mu.Unlock()
	*out = h
	return native.StatusOK
}

var blobNames = [...]string{"<natives>", "<snapshot>"}

func (l *Library) PlatformFree(h native.Handle) { l.drop(h) }

func (l *Library) VMNew(out *native.Handle) native.Status {
	if l.currentPlatform() == nil {
		return native.StatusUnknownError
	}
	*out = l.put(&vm{})
	return native.StatusOK
}

func (l *Library) VMFree(h native.Handle) { l.drop(h) }

func (l *Library) ContextNew(out *native.Handle, vmh native.Handle) native.Status {
	v, ok := l.get(vmh).(*vm)
	if !ok {
		return native.StatusUnknownError
	}
	p := l.currentPlatform()
	if p == nil {
		return native.StatusUnknownError
	}

	rt := goja.New()
	rt.SetMaxCallStackSize(l.maxStack)

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, prg := range p.prelude {
		if _, err := rt.RunProgram(prg); err != nil {
			return native.StatusUnknownError
		}
	}

	*out = l.put(&jsContext{vm: v, rt: rt})
	return native.StatusOK
}

func (l *Library) ContextFree(h native.Handle) { l.drop(h) }

// RunScript runs source under the VM lock of the context's VM.
func (l *Library) RunScript(ctxh native.Handle, source, identifier []byte,
	output *native.Pointer, outputLen *uint,
	errOut *native.Pointer, errLen *uint) (status native.Status) {
	c, ok := l.get(ctxh).(*jsContext)
	if !ok {
		return native.StatusUnknownError
	}

	c.vm.mu.Lock()
	defer c.vm.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			status = native.StatusUnknownError
		}
	}()

	res := run(c.rt, string(source), string(identifier))
	if res.status != native.StatusOK {
		if res.diagnostic != "" {
			*errOut = l.alloc(res.diagnostic)
			*errLen = uint(len(res.diagnostic))
		}
		return res.status
	}
	if l.maxOutput > 0 && len(res.output) > l.maxOutput {
		return native.StatusOutOfMemory
	}
	*output = l.alloc(res.output)
	*outputLen = uint(len(res.output))
	return native.StatusOK
}

func (l *Library) alloc(s string) native.Pointer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	p := native.Pointer(l.next)
	l.buffers[p] = []byte(s)
	return p
}

// Free releases a buffer. Unknown pointers are ignored.
func (l *Library) Free(p native.Pointer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buffers, p)
}

func (l *Library) GoBytes(p native.Pointer, n uint) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buffers[p]
	if uint(len(b)) < n {
		n = uint(len(b))
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Buffers returns the number of buffers not yet freed.
func (l *Library) Buffers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffers)
}
