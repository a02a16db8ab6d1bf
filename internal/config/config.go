// Package config holds the settings of an adderprobe run.
//
// Settings come from an HCL or JSON file, then the environment, then
// command-line flags, each layer overriding the previous one.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/logging"
)

// Input modes for the helper's stdin.
const (
	InputFile = "file"
	InputPipe = "pipe"
)

// Config is the full run configuration.
type Config struct {
	// HelperPath is the webext-adder executable.
	HelperPath string `hcl:"helper_path,optional" json:"helper_path,omitempty"`
	// StateRoot is the helper's data home. It is wiped at the start of every run.
	StateRoot string `hcl:"state_root,optional" json:"state_root,omitempty"`
	// InputMode is "file" (payload file on stdin) or "pipe".
	InputMode string `hcl:"input_mode,optional" json:"input_mode,omitempty"`
	// SendTerminator appends a zero-length frame after the last request.
	SendTerminator bool `hcl:"send_terminator,optional" json:"send_terminator,omitempty"`
	// Timeout bounds the whole helper run, as a Go duration. Empty means none.
	Timeout string `hcl:"timeout,optional" json:"timeout,omitempty"`
	// MaxPayload is the largest response frame accepted, in bytes. Zero
	// keeps the decoder default.
	MaxPayload uint32 `hcl:"max_payload,optional" json:"max_payload,omitempty"`

	// Fixtures lists test-set and suite files.
	Fixtures []string `hcl:"fixtures,optional" json:"fixtures,omitempty"`
	// BuiltinSuites runs the built-in step suites. Defaults to true.
	BuiltinSuites *bool `hcl:"builtin_suites,optional" json:"builtin_suites,omitempty"`
	// Suites restricts the built-in suites to these names.
	Suites []string `hcl:"suites,optional" json:"suites,omitempty"`
	// RowCounts adds table row-count assertions.
	RowCounts bool `hcl:"row_counts,optional" json:"row_counts,omitempty"`

	MetricsFile string `hcl:"metrics_file,optional" json:"metrics_file,omitempty"`
	HistoryDir  string `hcl:"history_dir,optional" json:"history_dir,omitempty"`

	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`
	LogJSON  bool   `hcl:"log_json,optional" json:"log_json,omitempty"`

	// xdgStateRoot is set while StateRoot is the one derived from
	// XDG_DATA_HOME, i.e. the user's own collection.
	xdgStateRoot bool
}

// StateRootFromXDG reports whether StateRoot was derived from
// XDG_DATA_HOME rather than named explicitly.
func (c *Config) StateRootFromXDG() bool {
	return c.xdgStateRoot
}

// Default returns a Config with every default applied.
func Default() *Config {
	builtin := true
	return &Config{
		StateRoot:     DefaultStateRoot(),
		InputMode:     InputFile,
		BuiltinSuites: &builtin,
		LogLevel:      "info",
	}
}

// DefaultStateRoot is used when neither a file nor the environment names one.
func DefaultStateRoot() string {
	return filepath.Join(brand.GetStateDir(), "arcollect")
}

// UseBuiltinSuites reports whether the built-in step suites run.
func (c *Config) UseBuiltinSuites() bool {
	return c.BuiltinSuites == nil || *c.BuiltinSuites
}

// RunTimeout parses Timeout. Zero means no timeout.
func (c *Config) RunTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout: negative duration %s", c.Timeout)
	}
	return d, nil
}

// Merge copies every field set in o over c.
func (c *Config) Merge(o *Config) {
	if o == nil {
		return
	}
	setString(&c.HelperPath, o.HelperPath)
	if o.StateRoot != "" {
		c.StateRoot = o.StateRoot
		c.xdgStateRoot = false
	}
	setString(&c.InputMode, o.InputMode)
	if o.MaxPayload > 0 {
		c.MaxPayload = o.MaxPayload
	}
	setString(&c.Timeout, o.Timeout)
	setString(&c.MetricsFile, o.MetricsFile)
	setString(&c.HistoryDir, o.HistoryDir)
	setString(&c.LogLevel, o.LogLevel)
	if o.SendTerminator {
		c.SendTerminator = true
	}
	if o.RowCounts {
		c.RowCounts = true
	}
	if o.LogJSON {
		c.LogJSON = true
	}
	if o.BuiltinSuites != nil {
		v := *o.BuiltinSuites
		c.BuiltinSuites = &v
	}
	if len(o.Fixtures) > 0 {
		c.Fixtures = append([]string(nil), o.Fixtures...)
	}
	if len(o.Suites) > 0 {
		c.Suites = append([]string(nil), o.Suites...)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HelperPath == "" {
		errs = append(errs, fmt.Errorf("helper_path is not set (set ARCOLLECT_WEBEXT_ADDER_PATH or pass -helper)"))
	}
	if c.StateRoot == "" {
		errs = append(errs, errors.New("state_root is not set"))
	} else if filepath.Clean(c.StateRoot) == "/" {
		errs = append(errs, errors.New("state_root must not be /"))
	}
	switch c.InputMode {
	case InputFile, InputPipe:
	default:
		errs = append(errs, fmt.Errorf("input_mode %q is not %q or %q", c.InputMode, InputFile, InputPipe))
	}
	if _, err := c.RunTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !c.UseBuiltinSuites() && len(c.Fixtures) == 0 {
		errs = append(errs, errors.New("nothing to run: builtin suites disabled and no fixtures given"))
	}
	return errors.Join(errs...)
}
