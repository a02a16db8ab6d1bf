package history

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/adderprobe/internal/clock"
)

func outcomes(statuses map[string]string) []Outcome {
	var out []Outcome
	for name, st := range statuses {
		out = append(out, Outcome{Name: name, Status: st})
	}
	return out
}

func TestLoadMissing(t *testing.T) {
	h, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRuns, h.MaxRuns)
	assert.Empty(t, h.Tests)
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFileName), []byte("{nope"), 0o644))
	h, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, h.RunMeta)
}

func TestAddRunAndHealth(t *testing.T) {
	restore := clock.Use(clock.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	defer restore()

	h, err := Load(t.TempDir())
	require.NoError(t, err)

	h.AddRun(RunMetadata{RunID: "r1"}, outcomes(map[string]string{"stable": StatusPass, "flaky": StatusPass, "broken": StatusFail}))
	h.AddRun(RunMetadata{RunID: "r2"}, outcomes(map[string]string{"stable": StatusPass, "flaky": StatusFail, "broken": StatusFail}))
	h.AddRun(RunMetadata{RunID: "r3"}, outcomes(map[string]string{"stable": StatusPass, "flaky": StatusPass, "broken": StatusFail}))

	require.Len(t, h.RunMeta, 3)
	assert.Equal(t, 2, h.RunMeta[0].Passed)
	assert.Equal(t, 1, h.RunMeta[0].Failed)
	assert.Equal(t, 2, h.RunMeta[1].Failed)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), h.RunMeta[2].Timestamp)

	assert.Equal(t, 3, h.GetStreak("stable"))
	assert.Equal(t, 1, h.GetStreak("flaky"))
	assert.Equal(t, 0, h.GetStreak("broken"))
	assert.Equal(t, 0, h.GetStreak("unknown"))

	health := h.CalculateHealth()
	require.Len(t, health, 3)
	assert.Equal(t, "broken", health[0].Name)
	assert.Equal(t, "F", health[0].Grade)
	assert.Equal(t, "flaky", health[1].Name)
	assert.Equal(t, "C", health[1].Grade)
	assert.Equal(t, "stable", health[2].Name)
	assert.Equal(t, "A", health[2].Grade)

	flaky := h.Flaky()
	require.Len(t, flaky, 1)
	assert.Equal(t, "flaky", flaky[0].Name)

	var buf bytes.Buffer
	h.PrintFlakyReport(&buf)
	assert.Contains(t, buf.String(), "2/3 pass (flaky)")

	buf.Reset()
	h.PrintSummary(&buf, 1)
	assert.Contains(t, buf.String(), "broken")
	assert.NotContains(t, buf.String(), "stable")
}

func TestSavePrunes(t *testing.T) {
	dir := t.TempDir()
	h, err := Load(dir)
	require.NoError(t, err)
	h.MaxRuns = 2

	for _, id := range []string{"a", "b", "c"} {
		h.AddRun(RunMetadata{RunID: id}, []Outcome{{Name: "x", Status: StatusPass}})
	}
	require.NoError(t, h.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, loaded.RunMeta, 2)
	assert.Equal(t, "b", loaded.RunMeta[0].RunID)
	assert.Len(t, loaded.Tests["x"].Executions, 2)
	assert.Equal(t, 2, loaded.MaxRuns)
}

func TestGrade(t *testing.T) {
	assert.Equal(t, "?", grade(0, 0))
	assert.Equal(t, "A", grade(1, 3))
	assert.Equal(t, "B", grade(0.8, 5))
	assert.Equal(t, "D", grade(0.2, 5))
	assert.Equal(t, "F", grade(0.1, 10))
}
