// Package brand provides centralized naming constants for adderprobe.
//
// The identity is loaded from brand.json at compile time via go:embed so
// scripts and docs generators can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all naming information
type Brand struct {
	Name              string `json:"name"`
	LowerName         string `json:"lowerName"`
	Vendor            string `json:"vendor"`
	Website           string `json:"website"`
	Repository        string `json:"repository"`
	Description       string `json:"description"`
	Tagline           string `json:"tagline"`
	ConfigEnvPrefix   string `json:"configEnvPrefix"`
	DefaultConfigDir  string `json:"defaultConfigDir"`
	DefaultStateDir   string `json:"defaultStateDir"`
	DefaultHistoryDir string `json:"defaultHistoryDir"`
	BinaryName        string `json:"binaryName"`
	HelperArgv0       string `json:"helperArgv0"`
	ConfigFileName    string `json:"configFileName"`
	Copyright         string `json:"copyright"`
	License           string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Vendor = b.Vendor
	Website = b.Website
	Repository = b.Repository
	Description = b.Description
	Tagline = b.Tagline
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultHistoryDir = b.DefaultHistoryDir
	BinaryName = b.BinaryName
	HelperArgv0 = b.HelperArgv0
	ConfigFileName = b.ConfigFileName
	Copyright = b.Copyright
	License = b.License
}

// Exported variables for convenience
var (
	Name              string
	LowerName         string
	Vendor            string
	Website           string
	Repository        string
	Description       string
	Tagline           string
	ConfigEnvPrefix   string
	DefaultConfigDir  string
	DefaultStateDir   string
	DefaultHistoryDir string
	BinaryName        string
	HelperArgv0       string
	ConfigFileName    string
	Copyright         string
	License           string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// EnvVar returns the prefixed environment variable name, e.g. ADDERPROBE_STATE_DIR.
func EnvVar(suffix string) string {
	return ConfigEnvPrefix + "_" + suffix
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: ADDERPROBE_STATE_DIR > ADDERPROBE_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(EnvVar("STATE_DIR")); dir != "" {
		return dir
	}
	if prefix := os.Getenv(EnvVar("PREFIX")); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// GetHistoryDir returns the run history directory, checking env vars first.
// Priority: ADDERPROBE_HISTORY_DIR > ADDERPROBE_PREFIX/history > DefaultHistoryDir
func GetHistoryDir() string {
	if dir := os.Getenv(EnvVar("HISTORY_DIR")); dir != "" {
		return dir
	}
	if prefix := os.Getenv(EnvVar("PREFIX")); prefix != "" {
		return filepath.Join(prefix, "history")
	}
	return DefaultHistoryDir
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: ADDERPROBE_CONFIG_DIR > ADDERPROBE_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(EnvVar("CONFIG_DIR")); dir != "" {
		return dir
	}
	if prefix := os.Getenv(EnvVar("PREFIX")); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
