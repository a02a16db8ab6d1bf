package testutil

import (
	"os"
	"os/exec"
	"testing"

	"grimm.is/adderprobe/internal/brand"
)

// RealHelperEnv names the webext-adder binary used by integration tests.
var RealHelperEnv = brand.EnvVar("REAL_HELPER")

// RequireHelper skips the test unless a real webext-adder binary is
// configured and executable. It returns the resolved path.
func RequireHelper(t *testing.T) string {
	t.Helper()
	path := os.Getenv(RealHelperEnv)
	if path == "" {
		t.Skipf("Skipping test: requires %s", RealHelperEnv)
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		t.Skipf("Skipping test: %s=%q is not executable: %v", RealHelperEnv, path, err)
	}
	return resolved
}
