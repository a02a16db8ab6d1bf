// Package metrics exposes run statistics in Prometheus form. A run writes
// them to a node-exporter textfile; nothing is served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Directions for frame counters.
const (
	Sent     = "sent"
	Received = "received"
)

// Stages for assertion counters.
const (
	StageResponse = "response"
	StageStorage  = "storage"
)

// Registry holds the metrics of one run.
type Registry struct {
	reg *prometheus.Registry

	Frames     *prometheus.CounterVec
	FrameBytes *prometheus.CounterVec
	Assertions *prometheus.CounterVec

	RunDuration    prometheus.Gauge
	RunTimestamp   prometheus.Gauge
	BailedOut      prometheus.Gauge
	HelperExitCode prometheus.Gauge
}

// New creates a registry with all run metrics registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	factory := promauto.With(r.reg)

	r.Frames = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "adderprobe_frames_total",
		Help: "Frames exchanged with the helper",
	}, []string{"direction"})

	r.FrameBytes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "adderprobe_frame_bytes_total",
		Help: "Bytes exchanged with the helper, headers included",
	}, []string{"direction"})

	r.Assertions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "adderprobe_assertions_total",
		Help: "Assertions evaluated, by stage and result",
	}, []string{"stage", "result"})

	r.RunDuration = factory.NewGauge(prometheus.GaugeOpts{
		Name: "adderprobe_run_duration_seconds",
		Help: "Wall-clock duration of the last run",
	})

	r.RunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Name: "adderprobe_run_timestamp_seconds",
		Help: "Unix timestamp of the end of the last run",
	})

	r.BailedOut = factory.NewGauge(prometheus.GaugeOpts{
		Name: "adderprobe_run_bailed_out",
		Help: "1 if the last run bailed out",
	})

	r.HelperExitCode = factory.NewGauge(prometheus.GaugeOpts{
		Name: "adderprobe_helper_exit_code",
		Help: "Exit status of the helper in the last run, -1 if it was killed",
	})

	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveFrame counts one frame of n bytes.
func (r *Registry) ObserveFrame(direction string, n int) {
	r.Frames.WithLabelValues(direction).Inc()
	r.FrameBytes.WithLabelValues(direction).Add(float64(n))
}

// ObserveAssertion counts one assertion outcome.
func (r *Registry) ObserveAssertion(stage string, ok bool) {
	result := "pass"
	if !ok {
		result = "fail"
	}
	r.Assertions.WithLabelValues(stage, result).Inc()
}

// Finish records the end of a run.
func (r *Registry) Finish(end time.Time, duration time.Duration, bailedOut bool, exitCode int) {
	r.RunDuration.Set(duration.Seconds())
	r.RunTimestamp.Set(float64(end.Unix()))
	if bailedOut {
		r.BailedOut.Set(1)
	} else {
		r.BailedOut.Set(0)
	}
	r.HelperExitCode.Set(float64(exitCode))
}

// WriteTextfile writes the metrics in the text exposition format, atomically.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
