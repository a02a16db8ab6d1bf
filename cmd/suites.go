package cmd

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/adderprobe/internal/fixture"
)

// RunSuites lists the built-in suites.
func RunSuites(args []string) error {
	fs := flag.NewFlagSet("suites", flag.ExitOnError)
	verbose := fs.Bool("v", false, "List the steps of each suite")
	fs.Parse(args)

	for _, s := range fixture.Builtin() {
		Printer.Fprintf(os.Stdout, "%-24s %d steps\n", s.Name, len(s.Steps))
		if !*verbose {
			continue
		}
		for _, step := range s.Steps {
			expect := "reject"
			if ok, _ := step[fixture.MetaSuccess].(bool); ok {
				expect = "accept"
			}
			fmt.Fprintf(os.Stdout, "  %-6s %v\n", expect, step[fixture.MetaName])
		}
	}
	return nil
}
