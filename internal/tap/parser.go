package tap

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// TestResult represents the outcome of a single test line.
type TestResult struct {
	Number      int
	Description string
	Passed      bool
	Skipped     bool
	TODO        bool
	Directive   string
	// Diagnostics holds the YAML block following the line, if any.
	Diagnostics map[string]any
}

// TestSuite represents a parsed TAP stream.
type TestSuite struct {
	Name      string
	Version   int
	PlanCount int // Expected test count from "1..N"
	Results   []TestResult
	Comments  []string
	BailedOut bool
	BailOut   string
}

// Summary returns pass/fail counts. Failing TODO tests count as todo only.
func (s *TestSuite) Summary() (passed, failed, skipped, todo int) {
	for _, r := range s.Results {
		switch {
		case r.Skipped:
			skipped++
		case r.TODO:
			todo++
		case r.Passed:
			passed++
		default:
			failed++
		}
	}
	return
}

// Success returns true if no test failed, the stream did not bail out and
// the plan was honored.
func (s *TestSuite) Success() bool {
	_, failed, _, _ := s.Summary()
	if failed > 0 || s.BailedOut {
		return false
	}
	return s.PlanCount == 0 || s.PlanCount == len(s.Results)
}

// Failures returns the failing, non-TODO results.
func (s *TestSuite) Failures() []TestResult {
	var out []TestResult
	for _, r := range s.Results {
		if !r.Passed && !r.TODO && !r.Skipped {
			out = append(out, r)
		}
	}
	return out
}

// TAP line regexes
var (
	versionRe = regexp.MustCompile(`^TAP version (\d+)`)
	planRe    = regexp.MustCompile(`^1\.\.(\d+)`)
	resultRe  = regexp.MustCompile(`^(ok|not ok)\b\s*(\d+)?\s*(?:-\s*)?(.*)`)
	diagRe    = regexp.MustCompile(`^#\s?(.*)`)
	bailRe    = regexp.MustCompile(`^Bail out!\s*(.*)`)
	skipRe    = regexp.MustCompile(`(?i)^skip`)
	todoRe    = regexp.MustCompile(`(?i)^todo`)
)

// Parser reads TAP output and produces TestSuite results.
type Parser struct {
	reader io.Reader
	name   string
}

// NewParser creates a TAP parser. name labels the suite in summaries.
func NewParser(r io.Reader, name string) *Parser {
	return &Parser{reader: r, name: name}
}

// Parse reads TAP output and returns a TestSuite.
func (p *Parser) Parse() (*TestSuite, error) {
	suite := &TestSuite{Name: p.name}
	scanner := bufio.NewScanner(p.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	testNum := 0
	var block []string
	inBlock := false

	for scanner.Scan() {
		line := scanner.Text()

		if inBlock {
			if strings.TrimSpace(line) == "..." {
				inBlock = false
				if n := len(suite.Results); n > 0 {
					suite.Results[n-1].Diagnostics = parseBlock(block)
				}
				block = nil
			} else {
				block = append(block, line)
			}
			continue
		}
		if strings.TrimSpace(line) == "---" && len(suite.Results) > 0 {
			inBlock = true
			continue
		}

		if m := versionRe.FindStringSubmatch(line); m != nil {
			suite.Version, _ = strconv.Atoi(m[1])
			continue
		}

		if m := planRe.FindStringSubmatch(line); m != nil {
			if count, err := strconv.Atoi(m[1]); err == nil {
				suite.PlanCount = count
			}
			continue
		}

		if m := bailRe.FindStringSubmatch(line); m != nil {
			suite.BailedOut = true
			suite.BailOut = m[1]
			break
		}

		if m := resultRe.FindStringSubmatch(line); m != nil {
			testNum++
			num := testNum
			if m[2] != "" {
				if n, err := strconv.Atoi(m[2]); err == nil {
					num = n
					testNum = n
				}
			}

			desc, directive := splitDirective(m[3])
			suite.Results = append(suite.Results, TestResult{
				Number:      num,
				Description: desc,
				Passed:      m[1] == "ok",
				Skipped:     skipRe.MatchString(directive),
				TODO:        todoRe.MatchString(directive),
				Directive:   directive,
			})
			continue
		}

		if m := diagRe.FindStringSubmatch(line); m != nil {
			suite.Comments = append(suite.Comments, m[1])
		}
	}

	if err := scanner.Err(); err != nil {
		return suite, fmt.Errorf("scan error: %w", err)
	}
	return suite, nil
}

// splitDirective separates "desc # directive" at the first unescaped '#'
// and unescapes the description.
func splitDirective(s string) (desc, directive string) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case c == '#':
			return strings.TrimSpace(b.String()), strings.TrimSpace(s[i+1:])
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String()), ""
}

func parseBlock(lines []string) map[string]any {
	indent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " "))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	var b strings.Builder
	for _, l := range lines {
		if len(l) >= indent && indent > 0 {
			l = l[indent:]
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}

	var raw any
	if err := yaml.Unmarshal([]byte(b.String()), &raw); err != nil {
		return map[string]any{"unparsed": b.String()}
	}
	m, ok := normalize(raw).(map[string]any)
	if !ok {
		return map[string]any{"value": normalize(raw)}
	}
	return m
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	}
	return v
}

// FormatSummary returns a human-readable summary.
func (s *TestSuite) FormatSummary() string {
	passed, failed, skipped, todo := s.Summary()
	total := len(s.Results)

	status := "✅ PASS"
	if !s.Success() {
		status = "❌ FAIL"
	}

	out := fmt.Sprintf("%s %s: %d/%d passed, %d failed, %d skipped, %d todo",
		status, s.Name, passed, total, failed, skipped, todo)
	if s.PlanCount != 0 && s.PlanCount != total {
		out += fmt.Sprintf(" (planned %d)", s.PlanCount)
	}
	if s.BailedOut {
		out += " (bailed out: " + s.BailOut + ")"
	}
	return out
}
