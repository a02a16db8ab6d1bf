// Package history keeps a rolling record of assertion outcomes across runs
// so flaky helper behavior shows up.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"grimm.is/adderprobe/internal/clock"
	"grimm.is/adderprobe/internal/logging"
)

const (
	DefaultMaxRuns  = 20
	HistoryFileName = "run-history.json"
	FlakyThreshold  = 0.9 // Assertions passing < 90% are considered flaky
)

// Status of one assertion in one run.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusSkip = "skip"
)

// RunMetadata stores high-level info about a run.
type RunMetadata struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	BailedOut bool          `json:"bailed_out,omitempty"`
	Helper    string        `json:"helper,omitempty"`
}

// Execution is one outcome of an assertion.
type Execution struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// Stats holds the executions of one assertion, oldest first.
type Stats struct {
	Name       string      `json:"name"`
	Executions []Execution `json:"executions"`
}

// Outcome is what a run reports for one assertion.
type Outcome struct {
	Name    string
	Status  string
	Message string
}

// History tracks assertion results keyed by TAP description.
type History struct {
	RunMeta []RunMetadata     `json:"run_meta"`
	Tests   map[string]*Stats `json:"tests"`
	MaxRuns int               `json:"max_runs"`
}

// Health is the computed view of one assertion's record.
type Health struct {
	Name       string
	PassCount  int
	FailCount  int
	SkipCount  int
	TotalRuns  int
	PassRate   float64
	LastRun    time.Time
	LastStatus string
	Grade      string // A, B, C, D, F
	Streak     int    // Current streak of passes
}

func empty() *History {
	return &History{MaxRuns: DefaultMaxRuns, Tests: make(map[string]*Stats)}
}

// Load loads history from dir. A missing file yields an empty history; an
// unreadable one is logged and replaced.
func Load(dir string) (*History, error) {
	path := filepath.Join(dir, HistoryFileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		logging.WithComponent("history").Warn("failed to parse history, starting fresh", "path", path, "error", err)
		return empty(), nil
	}
	if h.MaxRuns == 0 {
		h.MaxRuns = DefaultMaxRuns
	}
	if h.Tests == nil {
		h.Tests = make(map[string]*Stats)
	}
	return &h, nil
}

// Save prunes old runs and writes history to dir.
func (h *History) Save(dir string) error {
	if len(h.RunMeta) > h.MaxRuns {
		h.RunMeta = h.RunMeta[len(h.RunMeta)-h.MaxRuns:]
	}
	for _, stats := range h.Tests {
		if len(stats.Executions) > h.MaxRuns {
			stats.Executions = stats.Executions[len(stats.Executions)-h.MaxRuns:]
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Write then rename so an interrupted save keeps the previous file.
	path := filepath.Join(dir, HistoryFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// AddRun records a run and the outcome of each of its assertions.
func (h *History) AddRun(meta RunMetadata, outcomes []Outcome) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = clock.Now()
	}
	meta.Passed, meta.Failed, meta.Skipped = 0, 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case StatusPass:
			meta.Passed++
		case StatusFail:
			meta.Failed++
		default:
			meta.Skipped++
		}
	}
	h.RunMeta = append(h.RunMeta, meta)

	for _, o := range outcomes {
		stats, ok := h.Tests[o.Name]
		if !ok {
			stats = &Stats{Name: o.Name}
			h.Tests[o.Name] = stats
		}
		stats.Executions = append(stats.Executions, Execution{
			RunID:     meta.RunID,
			Timestamp: meta.Timestamp,
			Status:    o.Status,
			Message:   o.Message,
		})
	}
}

// GetStreak returns the current passing streak of an assertion.
func (h *History) GetStreak(name string) int {
	stats, ok := h.Tests[name]
	if !ok {
		return 0
	}
	return streak(stats.Executions)
}

func streak(execs []Execution) int {
	n := 0
	for i := len(execs) - 1; i >= 0; i-- {
		if execs[i].Status != StatusPass {
			break
		}
		n++
	}
	return n
}

func grade(rate float64, runs int) string {
	switch {
	case runs == 0:
		return "?"
	case rate >= 0.95:
		return "A"
	case rate >= 0.80:
		return "B"
	case rate >= 0.50:
		return "C"
	case rate >= 0.20:
		return "D"
	}
	return "F"
}

var gradeOrder = map[string]int{"F": 0, "D": 1, "C": 2, "?": 3, "B": 4, "A": 5}

// CalculateHealth returns per-assertion health, worst first.
func (h *History) CalculateHealth() []Health {
	health := make([]Health, 0, len(h.Tests))
	for name, stats := range h.Tests {
		hs := Health{Name: name}
		for _, e := range stats.Executions {
			hs.TotalRuns++
			switch e.Status {
			case StatusPass:
				hs.PassCount++
			case StatusFail:
				hs.FailCount++
			default:
				hs.SkipCount++
			}
		}
		hs.Streak = streak(stats.Executions)
		if n := len(stats.Executions); n > 0 {
			hs.LastRun = stats.Executions[n-1].Timestamp
			hs.LastStatus = stats.Executions[n-1].Status
		}
		if hs.TotalRuns > 0 {
			hs.PassRate = float64(hs.PassCount) / float64(hs.TotalRuns)
		}
		hs.Grade = grade(hs.PassRate, hs.TotalRuns)
		health = append(health, hs)
	}

	sort.Slice(health, func(i, j int) bool {
		gi, gj := gradeOrder[health[i].Grade], gradeOrder[health[j].Grade]
		if gi != gj {
			return gi < gj
		}
		if health[i].PassRate != health[j].PassRate {
			return health[i].PassRate < health[j].PassRate
		}
		return health[i].Name < health[j].Name
	})
	return health
}

// Flaky returns assertions that both passed and failed, worst first.
func (h *History) Flaky() []Health {
	var out []Health
	for _, hs := range h.CalculateHealth() {
		if hs.PassCount > 0 && hs.FailCount > 0 && hs.PassRate < FlakyThreshold {
			out = append(out, hs)
		}
	}
	return out
}

// PrintFlakyReport writes the flaky assertions to w.
func (h *History) PrintFlakyReport(w io.Writer) {
	for _, s := range h.Flaky() {
		status := "flaky"
		if s.PassRate >= 0.8 {
			status = "occasional fail"
		} else if s.PassRate < 0.5 {
			status = "mostly failing"
		}
		fmt.Fprintf(w, "  %-60s %d/%d pass (%s)\n", s.Name, s.PassCount, s.TotalRuns, status)
	}
}

// PrintSummary writes a table of the limit worst assertions (all if limit <= 0).
func (h *History) PrintSummary(w io.Writer, limit int) {
	fmt.Fprintf(w, "%-60s %-5s %-10s %-7s %-20s %-6s\n", "Assertion", "Grade", "Pass/Run", "Rate", "Last Run", "Streak")
	for i, t := range h.CalculateHealth() {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintf(w, "%-60s %-5s %-10s %-7s %-20s %-6d\n",
			truncate(t.Name, 60), t.Grade,
			fmt.Sprintf("%d/%d", t.PassCount, t.TotalRuns),
			fmt.Sprintf("%.0f%%", t.PassRate*100),
			t.LastRun.Format("2006-01-02 15:04:05"),
			t.Streak)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
