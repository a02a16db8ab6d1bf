package cmd

import (
	"os"

	"grimm.is/adderprobe/internal/brand"
)

// RunVersion prints the version.
func RunVersion() {
	Printer.Fprintf(os.Stdout, "%s version %s\n", brand.Name, brand.Version)
	if brand.GitCommit != "unknown" {
		Printer.Fprintf(os.Stdout, "  commit %s, built %s\n", brand.GitCommit, brand.BuildTime)
	}
}
