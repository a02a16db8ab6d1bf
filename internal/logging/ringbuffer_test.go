package logging

import (
	"fmt"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)
	if rb.Count() != 0 || len(rb.GetAll()) != 0 {
		t.Fatal("new buffer should be empty")
	}

	for i := 0; i < 5; i++ {
		rb.Add(Entry{Source: "helper", Message: fmt.Sprintf("line %d", i)})
	}

	if rb.Count() != 3 {
		t.Errorf("Count = %d, want 3", rb.Count())
	}

	all := rb.GetAll()
	for i, want := range []string{"line 2", "line 3", "line 4"} {
		if all[i].Message != want {
			t.Errorf("GetAll()[%d] = %q, want %q", i, all[i].Message, want)
		}
	}

	last := rb.GetLast(2)
	if len(last) != 2 || last[0].Message != "line 3" || last[1].Message != "line 4" {
		t.Errorf("GetLast(2) = %+v", last)
	}
	if got := rb.GetLast(10); len(got) != 3 {
		t.Errorf("GetLast(10) returned %d entries", len(got))
	}

	rb.Add(Entry{Source: "orchestrator", Message: "other"})
	if got := rb.GetBySource("helper", 0); len(got) != 2 {
		t.Errorf("GetBySource(helper) = %d entries, want 2", len(got))
	}
	if got := rb.GetBySource("helper", 1); len(got) != 1 || got[0].Message != "line 3" {
		t.Errorf("GetBySource limit = %+v", got)
	}

	rb.Clear()
	if rb.Count() != 0 {
		t.Error("Clear did not empty the buffer")
	}
}

func TestLevelName(t *testing.T) {
	cases := map[Level]string{
		LevelDebug:     "debug",
		LevelInfo:      "info",
		LevelWarn:      "warn",
		LevelError:     "error",
		LevelError + 4: "error",
	}
	for lvl, want := range cases {
		if got := LevelName(lvl); got != want {
			t.Errorf("LevelName(%v) = %q, want %q", lvl, got, want)
		}
	}
}
