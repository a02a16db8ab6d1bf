package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// HCL renders c as an HCL config file. Unset optional fields are omitted.
func (c *Config) HCL() []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	setStr := func(name, v string) {
		if v != "" {
			body.SetAttributeValue(name, cty.StringVal(v))
		}
	}
	setBool := func(name string, v bool) {
		if v {
			body.SetAttributeValue(name, cty.BoolVal(v))
		}
	}

	setStr("helper_path", c.HelperPath)
	setStr("state_root", c.StateRoot)
	setStr("input_mode", c.InputMode)
	setBool("send_terminator", c.SendTerminator)
	setStr("timeout", c.Timeout)
	if c.MaxPayload > 0 {
		body.SetAttributeValue("max_payload", cty.NumberUIntVal(uint64(c.MaxPayload)))
	}
	if len(c.Fixtures) > 0 {
		body.SetAttributeValue("fixtures", stringList(c.Fixtures))
	}
	if c.BuiltinSuites != nil {
		body.SetAttributeValue("builtin_suites", cty.BoolVal(*c.BuiltinSuites))
	}
	if len(c.Suites) > 0 {
		body.SetAttributeValue("suites", stringList(c.Suites))
	}
	setBool("row_counts", c.RowCounts)
	setStr("metrics_file", c.MetricsFile)
	setStr("history_dir", c.HistoryDir)
	setStr("log_level", c.LogLevel)
	setBool("log_json", c.LogJSON)

	return append([]byte(stateRootWarning), hclwrite.Format(f.Bytes())...)
}

const stateRootWarning = `# state_root is deleted and recreated at the start of every run.
# Never point it at a real Arcollect collection.

`

// SaveHCL writes c to path, replacing it atomically.
func (c *Config) SaveHCL(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".hcl") {
		return fmt.Errorf("%s: config files are written as .hcl", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, c.HCL(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func stringList(ss []string) cty.Value {
	if len(ss) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(ss))
	for i, s := range ss {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}
