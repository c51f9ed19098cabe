package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestRenderDiagnostic(t *testing.T) {
	s := NewStyles(DefaultTheme)
	msg := "foo.js:1\nthrow new Error('x')\n^^^^^\nError: x\n    at foo.js:1:1\n"

	out := s.RenderDiagnostic("ScriptError", msg)
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6:\n%s", len(lines), out)
	}
	for i, want := range []string{"ScriptError", "foo.js:1", "throw new Error('x')", "^^^^^", "Error: x", "at foo.js:1:1"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	s := NewStyles(DefaultTheme)
	out := s.RenderSummary("bench", []Row{
		{Label: "runs", Value: "10"},
		{Label: "rate", Value: strings.Repeat("x", 100)},
	}, 30)

	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "10") {
		t.Errorf("missing value: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "…") {
		t.Errorf("long value not truncated: %q", lines[2])
	}
	if w := lipgloss.Width(lines[2]); w > 30 {
		t.Errorf("row width = %d, want <= 30", w)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		s     string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"你好世界", 4, "你好"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncateString(tt.s, tt.width); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.s, tt.width, got, tt.want)
		}
	}
}
