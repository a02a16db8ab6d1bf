package brand

import (
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if HelperArgv0 != "arcollect-webext-adder" {
		t.Errorf("HelperArgv0 = %q", HelperArgv0)
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("STATE_DIR"); got != "ADDERPROBE_STATE_DIR" {
		t.Errorf("EnvVar() = %q", got)
	}
}

func TestGetDirectories(t *testing.T) {
	t.Setenv(EnvVar("PREFIX"), "")
	t.Setenv(EnvVar("CONFIG_DIR"), "")
	t.Setenv(EnvVar("STATE_DIR"), "")
	t.Setenv(EnvVar("HISTORY_DIR"), "")

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}
	if GetHistoryDir() != DefaultHistoryDir {
		t.Errorf("Expected default history dir %s, got %s", DefaultHistoryDir, GetHistoryDir())
	}

	// Prefix
	t.Setenv(EnvVar("PREFIX"), "/tmp/adderprobe")
	if GetConfigDir() != "/tmp/adderprobe/config" {
		t.Errorf("Expected prefix config dir, got %s", GetConfigDir())
	}
	if GetStateDir() != "/tmp/adderprobe/state" {
		t.Errorf("Expected prefix state dir, got %s", GetStateDir())
	}
	if GetConfigPath() != "/tmp/adderprobe/config/"+ConfigFileName {
		t.Errorf("Expected prefixed config path, got %s", GetConfigPath())
	}

	// Direct override wins
	t.Setenv(EnvVar("CONFIG_DIR"), "/custom/config")
	if GetConfigDir() != "/custom/config" {
		t.Errorf("Expected custom config dir, got %s", GetConfigDir())
	}
}
