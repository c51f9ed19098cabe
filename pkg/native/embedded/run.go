package embedded

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/nitely/v8-cffi/pkg/native"
)

type result struct {
	output     string
	diagnostic string
	status     native.Status
}

func run(rt *goja.Runtime, source, identifier string) result {
	prg, err := goja.Compile(identifier, source, false)
	if err != nil {
		return result{
			diagnostic: compileDiagnostic(err, source, identifier),
			status:     native.StatusJSError,
		}
	}

	v, err := rt.RunProgram(prg)
	if err != nil {
		return runtimeFailure(err, source, identifier)
	}

	out, exc := stringify(v)
	if exc != nil {
		return runtimeFailure(exc, source, identifier)
	}
	return result{output: out}
}

func runtimeFailure(err error, source, identifier string) result {
	switch e := err.(type) {
	case *goja.Exception:
		return result{
			diagnostic: exceptionDiagnostic(e, source, identifier),
			status:     native.StatusJSError,
		}
	case *goja.InterruptedError:
		return result{status: native.StatusUnknownError}
	default:
		return result{
			diagnostic: traceBack(identifier, 0, 0, source, err.Error()),
			status:     native.StatusJSError,
		}
	}
}

// stringify coerces a completion value to a string the way String(v) does.
// A throwing toString surfaces as an exception.
func stringify(v goja.Value) (s string, exc *goja.Exception) {
	if v == nil {
		return "undefined", nil
	}
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*goja.Exception)
			if !ok {
				panic(r)
			}
			exc = e
		}
	}()
	return v.String(), nil
}

var (
	// "<name>: Line 1:9 Unexpected token [ (and 1 more errors)"
	compilePosRe = regexp.MustCompile(`(?:\S+: )?Line (\d+):(\d+) `)
	// "\tat foo (<name>:3:7(12))" or "\tat <name>:1:1(0)"
	framePosRe = regexp.MustCompile(`^\s*at (?:.* \()?(.*):(\d+):(\d+)\(\d+\)\)?$`)
)

func compileDiagnostic(err error, source, identifier string) string {
	msg := err.Error()
	line, col := 0, 0
	if m := compilePosRe.FindStringSubmatchIndex(msg); m != nil {
		line, _ = strconv.Atoi(msg[m[2]:m[3]])
		col, _ = strconv.Atoi(msg[m[4]:m[5]])
		msg = msg[:m[0]] + msg[m[1]:]
	}
	return traceBack(identifier, line, col, source, msg)
}

func exceptionDiagnostic(exc *goja.Exception, source, identifier string) string {
	full := strings.TrimRight(exc.String(), "\n")
	lines := strings.Split(full, "\n")

	// Position comes from the innermost frame in this script, falling back
	// to the innermost frame overall.
	line, col := 0, 0
	found := false
	for _, l := range lines[1:] {
		m := framePosRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if !found || m[1] == identifier {
			line, _ = strconv.Atoi(m[2])
			col, _ = strconv.Atoi(m[3])
			found = true
		}
		if m[1] == identifier {
			break
		}
	}

	for i := 1; i < len(lines); i++ {
		lines[i] = "    " + strings.TrimLeft(lines[i], "\t ")
	}
	return traceBack(identifier, line, col, source, strings.Join(lines, "\n"))
}

// maxDisplayLine is the longest source line echoed in a diagnostic.
const maxDisplayLine = 240

// traceBack renders
//
//	<identifier>:<line>
//	    <source line>
//	    <carets>
//	<stack>
func traceBack(identifier string, line, col int, source, stack string) string {
	var b strings.Builder
	b.WriteString(identifier)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(line))
	b.WriteByte('\n')

	src := sourceLine(source, line)
	if len(src) <= maxDisplayLine {
		b.WriteString("    ")
		b.WriteString(src)
		b.WriteString("\n    ")
		b.WriteString(carets(src, col))
	} else {
		b.WriteString("    ~Line too long to display.")
	}
	b.WriteByte('\n')
	b.WriteString(stack)
	return b.String()
}

func sourceLine(source string, line int) string {
	if line < 1 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[line-1], "\r")
}

// carets underlines the token starting at the 1-based column col.
func carets(src string, col int) string {
	runes := []rune(src)
	start := col - 1
	if start < 0 || start >= len(runes) {
		return ""
	}
	end := start + 1
	for end < len(runes) && isIdentRune(runes[end]) && isIdentRune(runes[start]) {
		end++
	}
	return strings.Repeat(" ", start) + strings.Repeat("^", end-start)
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r > 0x7f
}
