package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/nitely/v8-cffi/pkg/metrics"
	"github.com/nitely/v8-cffi/pkg/native"
	"github.com/nitely/v8-cffi/pkg/native/embedded"
	"github.com/nitely/v8-cffi/pkg/native/nativetest"
	"github.com/nitely/v8-cffi/pkg/storage"
)

// =============================================================================
// Run
// =============================================================================

func TestRunCoercesToString(t *testing.T) {
	_, _, scope := mustSetUpScope(t, embedded.New())
	tests := []struct {
		source string
		want   string
	}{
		{"Math.max(10, 20);", "20"},
		{"'áéíóú'", "áéíóú"},
		{"var foo = 'foo';", "undefined"},
		{"({}).toString()", "[object Object]"},
	}
	for _, tt := range tests {
		got, err := scope.Run(tt.source, "")
		if err != nil {
			t.Errorf("Run(%q) error: %v", tt.source, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Run(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestRunScriptErrors(t *testing.T) {
	_, _, scope := mustSetUpScope(t, embedded.New())
	for _, src := range []string{"baz", "function[]();", "throw new Error('x')"} {
		_, err := scope.Run(src, "")
		if !errors.Is(err, ErrScript) {
			t.Errorf("Run(%q) = %v, want ErrScript", src, err)
			continue
		}
		var e *Error
		errors.As(err, &e)
		if !strings.HasPrefix(e.Message, "<anonymous>:") {
			t.Errorf("Run(%q) diagnostic = %q, want <anonymous>: prefix", src, e.Message)
		}
	}
}

func TestRunIdentifierInDiagnostic(t *testing.T) {
	_, _, scope := mustSetUpScope(t, embedded.New())
	_, err := scope.Run("\n\nbaz", "lib/util.js")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Run = %v, want *Error", err)
	}
	first := strings.SplitN(e.Message, "\n", 2)[0]
	if first != "lib/util.js:3" {
		t.Errorf("first diagnostic line = %q, want lib/util.js:3", first)
	}
}

func TestRunScopesIsolated(t *testing.T) {
	_, vm, scope := mustSetUpScope(t, embedded.New())
	scope.Run("var foo = 'foo';", "")

	other := vm.NewScope()
	other.SetUp()
	defer other.TearDown()
	if got, _ := other.Run("typeof foo", ""); got != "undefined" {
		t.Errorf("typeof foo in other scope = %q, want undefined", got)
	}
	if got, _ := scope.Run("foo", ""); got != "foo" {
		t.Errorf("foo in first scope = %q", got)
	}
}

func TestRunRequiresAlive(t *testing.T) {
	lib := nativetest.New()
	_, vm, scope := mustSetUpScope(t, lib)
	scope.TearDown()

	if _, err := scope.Run("1", ""); !errors.Is(err, ErrScopeNotAlive) {
		t.Errorf("Run on torn down scope = %v, want ErrScopeNotAlive", err)
	}
	if _, err := vm.NewScope().Run("1", ""); !isViolation(err) {
		t.Errorf("Run on unset scope = %v, want contract violation", err)
	}
	if lib.Runs() != 0 {
		t.Error("library should not be called")
	}
}

func TestRunInvalidUTF8(t *testing.T) {
	lib := nativetest.New()
	_, _, scope := mustSetUpScope(t, lib)

	if _, err := scope.Run("'\xff'", ""); !isViolation(err) {
		t.Errorf("Run(invalid source) = %v, want contract violation", err)
	}
	if _, err := scope.Run("1", "\xfe"); !isViolation(err) {
		t.Errorf("Run(invalid identifier) = %v, want contract violation", err)
	}
	if _, err := scope.RunBytes([]byte{0xff}, ""); !isViolation(err) {
		t.Errorf("RunBytes(invalid) = %v, want contract violation", err)
	}
	if lib.Runs() != 0 {
		t.Error("library should not be called")
	}
}

func TestRunInvalidUTF8Output(t *testing.T) {
	lib := nativetest.New()
	lib.Script = func(string, string) nativetest.Result {
		return nativetest.Result{Output: "\xff\xfe"}
	}
	_, _, scope := mustSetUpScope(t, lib)

	if _, err := scope.Run("x", ""); !errors.Is(err, ErrUnknown) {
		t.Errorf("Run = %v, want ErrUnknown", err)
	}
	if lib.Outstanding() != 0 {
		t.Error("output buffer leaked")
	}
}

func TestRunDefaultIdentifier(t *testing.T) {
	lib := nativetest.New()
	var seen string
	lib.Script = func(_, identifier string) nativetest.Result {
		seen = identifier
		return nativetest.Result{Output: "ok"}
	}
	_, _, scope := mustSetUpScope(t, lib)

	scope.Run("x", "")
	if seen != DefaultIdentifier {
		t.Errorf("identifier = %q, want %q", seen, DefaultIdentifier)
	}
	scope.Run("x", "named.js")
	if seen != "named.js" {
		t.Errorf("identifier = %q, want named.js", seen)
	}
}

func TestRunStatusMapping(t *testing.T) {
	tests := []struct {
		result nativetest.Result
		want   error
	}{
		{nativetest.Result{Status: native.StatusOutOfMemory}, ErrMemory},
		{nativetest.Result{Status: native.StatusJSError, Diagnostic: "a:1\nboom"}, ErrScript},
		{nativetest.Result{Status: native.StatusUnknownError}, ErrUnknown},
		{nativetest.Result{Status: native.Status(99)}, ErrUnknown},
	}
	for _, tt := range tests {
		lib := nativetest.New()
		res := tt.result
		lib.Script = func(string, string) nativetest.Result { return res }
		_, _, scope := mustSetUpScope(t, lib)

		if _, err := scope.Run("x", ""); !errors.Is(err, tt.want) {
			t.Errorf("status %v: Run = %v, want %v", res.Status, err, tt.want)
		}
	}
}

// =============================================================================
// Buffer discipline
// =============================================================================

func TestRunReleasesBuffers(t *testing.T) {
	outcomes := []nativetest.Result{
		{Output: "fine"},
		{Status: native.StatusJSError, Diagnostic: "x:1\n    x\n    ^\nError"},
		{Status: native.StatusOutOfMemory},
		{Status: native.StatusJSError, Output: "partial", Diagnostic: "both buffers"},
		{Status: native.StatusUnknownError, Diagnostic: "stray"},
	}
	lib := nativetest.New()
	var i int
	lib.Script = func(string, string) nativetest.Result {
		r := outcomes[i%len(outcomes)]
		i++
		return r
	}
	_, _, scope := mustSetUpScope(t, lib)

	for range outcomes {
		scope.Run("x", "")
	}
	if n := lib.Outstanding(); n != 0 {
		t.Errorf("%d buffers outstanding", n)
	}
	if n := lib.DoubleFrees(); n != 0 {
		t.Errorf("%d double frees", n)
	}
	if lib.Allocated() == 0 {
		t.Error("expected some allocations")
	}
}

// =============================================================================
// LoadSources
// =============================================================================

func TestLoadSources(t *testing.T) {
	store := storage.NewMem(map[string]string{
		"a.js": "var order = ['a'];",
		"b.js": "order.push('b');",
		"c.js": "order.push('c');",
	})
	_, _, scope := mustSetUpScope(t, embedded.New(), WithStore(store))

	if err := scope.LoadSources(context.Background(), []string{"a.js", "b.js", "c.js"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := scope.Run("order.join(',')", ""); got != "a,b,c" {
		t.Errorf("order = %q, want a,b,c", got)
	}
}

func TestLoadSourcesStopsAtScriptError(t *testing.T) {
	store := storage.NewMem(map[string]string{
		"a.js": "var loaded = ['a'];",
		"b.js": "loaded.push('b'); undefinedThing;",
		"c.js": "loaded.push('c');",
	})
	_, _, scope := mustSetUpScope(t, embedded.New(), WithStore(store))

	err := scope.LoadSources(context.Background(), []string{"a.js", "b.js", "c.js"})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindScript {
		t.Fatalf("LoadSources = %v, want script error", err)
	}
	if !strings.HasPrefix(e.Message, "b.js:1") {
		t.Errorf("diagnostic = %q, want b.js:1 prefix", e.Message)
	}
	if got, _ := scope.Run("loaded.join(',')", ""); got != "a,b" {
		t.Errorf("loaded = %q, want a,b (no rollback, c not run)", got)
	}
}

func TestLoadSourcesIOError(t *testing.T) {
	lib := nativetest.New()
	store := storage.NewMem(map[string]string{"a.js": "1"})
	_, _, scope := mustSetUpScope(t, lib, WithStore(store))

	err := scope.LoadSources(context.Background(), []string{"a.js", "missing.js", "a.js"})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadSources = %v, want os.ErrNotExist", err)
	}
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) || pathErr.Path != "missing.js" {
		t.Errorf("LoadSources error = %#v, want *fs.PathError for missing.js", err)
	}
	if errors.Is(err, ErrContractViolation) || errors.Is(err, ErrScript) {
		t.Error("I/O errors must propagate unwrapped")
	}
	if lib.Runs() != 1 {
		t.Errorf("runs = %d, want 1", lib.Runs())
	}
}

func TestLoadSourcesScopeStore(t *testing.T) {
	lib := nativetest.New()
	env := mustSetUpEnv(t, lib, WithStore(storage.NewMem(nil)))
	vm := env.NewMachine()
	vm.SetUp()
	scope := vm.NewScope(WithSourceStore(storage.NewMem(map[string]string{"x.js": "1"})))
	scope.SetUp()

	if err := scope.LoadSources(context.Background(), []string{"x.js"}); err != nil {
		t.Errorf("LoadSources with scope store: %v", err)
	}
}

func TestLoadSourcesCanceled(t *testing.T) {
	lib := nativetest.New()
	_, _, scope := mustSetUpScope(t, lib, WithStore(storage.NewMem(map[string]string{"a.js": "1"})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := scope.LoadSources(ctx, []string{"a.js"}); !errors.Is(err, context.Canceled) {
		t.Errorf("LoadSources = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Concurrency and metrics
// =============================================================================

func TestRunConcurrent(t *testing.T) {
	_, _, scope := mustSetUpScope(t, embedded.New())
	scope.Run("var foo = 'foo!';", "")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := scope.Run("foo", ""); err != nil || got != "foo!" {
				t.Errorf("Run = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()
}

func TestRunRecordsMetrics(t *testing.T) {
	c := metrics.NewCollector("test")
	_, _, scope := mustSetUpScope(t, embedded.New(), WithMetrics(c))

	scope.Run("1", "")
	scope.Run("baz", "")

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != "test_script_runs_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	if total != 2 {
		t.Errorf("runs_total = %v, want 2", total)
	}
}
