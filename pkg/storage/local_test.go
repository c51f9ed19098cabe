package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLocalRoundTrip(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	const src = "function add(a, b) { return a + b; }"
	if err := WriteFile(ctx, s, "lib/math.js", []byte(src)); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(ctx, s, "lib/math.js")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != src {
		t.Fatalf("got %q, want %q", got, src)
	}
}

func TestLocalReadNotExist(t *testing.T) {
	s := newTestLocal(t)

	_, err := ReadFile(context.Background(), s, "no-such-file.js")
	if !os.IsNotExist(err) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLocalExistsAndDelete(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "a.js"); err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	if err := WriteFile(ctx, s, "a.js", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Exists(ctx, "a.js"); err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "a.js"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a.js"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
}

func TestLocalWriteTruncates(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	WriteFile(ctx, s, "f.js", []byte("long content here"))
	WriteFile(ctx, s, "f.js", []byte("short"))

	got, err := ReadFile(ctx, s, "f.js")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "short" {
		t.Fatalf("got %q, want %q", got, "short")
	}
}

func TestNewLocalCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory")
	}
}

func TestOSUsesHostPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.js")
	if err := os.WriteFile(path, []byte("1 + 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := OS()
	if s.Root() != "" {
		t.Fatalf("Root() = %q, want empty", s.Root())
	}
	got, err := ReadFile(context.Background(), s, filepath.ToSlash(path))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "1 + 1" {
		t.Fatalf("got %q", got)
	}
}
