package timeouts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFactor(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"", 0, false},
		{"2.5", 2.5, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"fast", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseFactor(tt.in)
		assert.Equal(t, tt.ok, ok, "parseFactor(%q)", tt.in)
		assert.Equal(t, tt.want, got, "parseFactor(%q)", tt.in)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, clamp(0.2))
	assert.Equal(t, 3.0, clamp(3.0))
	assert.Equal(t, 10.0, clamp(42))
}

func TestScale(t *testing.T) {
	t.Setenv(FactorEnv(), "2")
	// Scale may already have calibrated from another test; both paths are >= 1x.
	assert.Equal(t, time.Duration(0), Scale(0))
	assert.GreaterOrEqual(t, Scale(time.Second), time.Second)
	assert.GreaterOrEqual(t, GetFactor(), 1.0)
	assert.NotEmpty(t, GetFactorString())
}

func TestFactorEnv(t *testing.T) {
	assert.Equal(t, "ADDERPROBE_TIMEOUT_FACTOR", FactorEnv())
}
