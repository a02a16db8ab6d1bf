package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"grimm.is/adderprobe/internal/brand"
)

// Variables the Arcollect tooling itself understands.
const (
	HelperPathEnv = "ARCOLLECT_WEBEXT_ADDER_PATH"
	DataHomeEnv   = "ARCOLLECT_DATA_HOME"
	XDGDataHome   = "XDG_DATA_HOME"
)

// FromEnv returns the defaults with the process environment applied.
func FromEnv() *Config {
	cfg := Default()
	cfg.ApplyEnv(os.LookupEnv)
	return cfg
}

// ApplyEnv layers the environment over c.
//
// The Arcollect variables fill in the helper path and state root when c
// leaves them at their defaults. ADDERPROBE_* variables always win.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(name string) string {
		v, _ := lookup(name)
		return v
	}

	if c.HelperPath == "" {
		c.HelperPath = get(HelperPathEnv)
	}
	if c.StateRoot == "" || c.StateRoot == DefaultStateRoot() {
		if v := get(DataHomeEnv); v != "" {
			c.StateRoot = v
			c.xdgStateRoot = false
		} else if v := get(XDGDataHome); v != "" {
			c.StateRoot = filepath.Join(v, "arcollect")
			c.xdgStateRoot = true
		}
	}

	setString(&c.HelperPath, get(brand.EnvVar("HELPER_PATH")))
	if v := get(brand.EnvVar("STATE_ROOT")); v != "" {
		c.StateRoot = v
		c.xdgStateRoot = false
	}
	setString(&c.InputMode, get(brand.EnvVar("INPUT_MODE")))
	setString(&c.Timeout, get(brand.EnvVar("TIMEOUT")))
	setString(&c.MetricsFile, get(brand.EnvVar("METRICS_FILE")))
	setString(&c.HistoryDir, get(brand.EnvVar("HISTORY_DIR")))
	setString(&c.LogLevel, get(brand.EnvVar("LOG_LEVEL")))
	if v, err := strconv.ParseUint(strings.TrimSpace(get(brand.EnvVar("MAX_PAYLOAD"))), 10, 32); err == nil && v > 0 {
		c.MaxPayload = uint32(v)
	}
	if v, ok := envBool(get(brand.EnvVar("LOG_JSON"))); ok {
		c.LogJSON = v
	}
	if v, ok := envBool(get(brand.EnvVar("ROW_COUNTS"))); ok {
		c.RowCounts = v
	}
	if v := get(brand.EnvVar("FIXTURES")); v != "" {
		c.Fixtures = filepath.SplitList(v)
	}
}

func envBool(s string) (bool, bool) {
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return v, true
}
