// Package timeouts scales wall-clock budgets to the speed of the host.
//
// The run timeout is off by default; when one is configured it is passed
// through Scale so slow CI machines get proportionally more time.
package timeouts

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"grimm.is/adderprobe/internal/brand"
)

var (
	factor float64 = 1.0
	once   sync.Once
)

const (
	// calibrationIterations is the work volume of the CPU probe.
	calibrationIterations = 500_000

	// ReferenceDuration is the probe time on a reference developer machine.
	ReferenceDuration = 32 * time.Millisecond

	minFactor = 1.0
	maxFactor = 10.0
)

// FactorEnv is the environment variable that forces the scaling factor.
func FactorEnv() string {
	return brand.EnvVar("TIMEOUT_FACTOR")
}

// Scale accepts a base duration and returns the adjusted duration.
// Zero stays zero, meaning "no timeout".
func Scale(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	ensureCalibrated()
	return time.Duration(float64(base) * factor)
}

// GetFactor returns the current scaling multiplier.
func GetFactor() float64 {
	ensureCalibrated()
	return factor
}

// GetFactorString returns the factor formatted for logs and env vars.
func GetFactorString() string {
	return fmt.Sprintf("%.2f", GetFactor())
}

func ensureCalibrated() {
	once.Do(func() {
		if f, ok := parseFactor(os.Getenv(FactorEnv())); ok {
			factor = f
			return
		}

		start := time.Now()
		cpuBenchmark(calibrationIterations)
		factor = clamp(float64(time.Since(start)) / float64(ReferenceDuration))
	})
}

func parseFactor(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

// clamp keeps a measured factor between 1x and 10x.
func clamp(f float64) float64 {
	if f < minFactor {
		return minFactor
	}
	if f > maxFactor {
		return maxFactor
	}
	return f
}

// cpuBenchmark hashes a small dataset repeatedly.
func cpuBenchmark(n int) {
	data := []byte("adderprobe-calibration-workload")
	for i := 0; i < n; i++ {
		h := sha256.New()
		h.Write(data)
		h.Write([]byte{byte(i)})
		_ = h.Sum(nil)
	}
}
