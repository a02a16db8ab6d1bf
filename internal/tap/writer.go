// Package tap writes and parses Test Anything Protocol version 13 streams.
package tap

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v2"
)

// Version is the TAP version emitted by Writer.
const Version = 13

// Result is one test line.
type Result struct {
	OK          bool
	Description string
	// Directive is "SKIP ..." or "TODO ..." without the leading '#'.
	Directive string
	// Diagnostics is rendered as a YAML block under the test line.
	Diagnostics yaml.MapSlice
}

// Writer emits a TAP stream. Write errors are sticky and reported by Err.
type Writer struct {
	w      io.Writer
	count  int
	failed int
	bailed bool
	err    error
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (t *Writer) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

// Header writes the version line.
func (t *Writer) Header() {
	t.printf("TAP version %d\n", Version)
}

// Plan writes the "1..n" line.
func (t *Writer) Plan(n int) {
	t.printf("1..%d\n", n)
}

// Comment writes a "# ..." line per line of the formatted text.
func (t *Writer) Comment(format string, args ...any) {
	for _, line := range strings.Split(fmt.Sprintf(format, args...), "\n") {
		t.printf("# %s\n", line)
	}
}

// Ok writes a passing or failing test line and returns ok.
func (t *Writer) Ok(ok bool, description string) bool {
	t.Result(Result{OK: ok, Description: description})
	return ok
}

// Result writes a test line, numbered in sequence, and its diagnostics.
func (t *Writer) Result(r Result) {
	t.count++
	status := "ok"
	if !r.OK {
		status = "not ok"
		if !isTodo(r.Directive) {
			t.failed++
		}
	}

	line := fmt.Sprintf("%s %d", status, t.count)
	if d := escape(r.Description); d != "" {
		line += " - " + d
	}
	if r.Directive != "" {
		line += " # " + oneLine(r.Directive)
	}
	t.printf("%s\n", line)

	if len(r.Diagnostics) > 0 {
		t.yamlBlock(r.Diagnostics)
	}
}

func (t *Writer) yamlBlock(diag yaml.MapSlice) {
	out, err := yaml.Marshal(diag)
	if err != nil {
		t.Comment("diagnostics: %v", err)
		return
	}
	t.printf("  ---\n")
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		t.printf("  %s\n", line)
	}
	t.printf("  ...\n")
}

// BailOut writes the "Bail out!" line. Further results are still numbered
// but a consumer stops reading here.
func (t *Writer) BailOut(reason string) {
	t.bailed = true
	if reason == "" {
		t.printf("Bail out!\n")
		return
	}
	t.printf("Bail out! %s\n", oneLine(reason))
}

// Count returns the number of test lines written.
func (t *Writer) Count() int { return t.count }

// Failed returns the number of failing, non-TODO test lines written.
func (t *Writer) Failed() int { return t.failed }

// BailedOut reports whether BailOut was called.
func (t *Writer) BailedOut() bool { return t.bailed }

// Err returns the first write error.
func (t *Writer) Err() error { return t.err }

func isTodo(directive string) bool {
	return len(directive) >= 4 && strings.EqualFold(directive[:4], "todo")
}

// escape makes a description safe for a test line: one line, no bare '#'.
func escape(s string) string {
	s = oneLine(s)
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "#", `\#`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
