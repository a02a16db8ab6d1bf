package cmd

import (
	"flag"
	"os"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/history"
)

// RunHistory prints the recorded run history and the flaky assertions.
func RunHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dir := fs.String("dir", brand.GetHistoryDir(), "History directory")
	limit := fs.Int("limit", 20, "Number of assertions to list")
	flaky := fs.Bool("flaky", false, "Only list flaky assertions")
	fs.Parse(args)

	h, err := history.Load(*dir)
	if err != nil {
		return err
	}
	out := os.Stdout
	if len(h.RunMeta) == 0 {
		Printer.Fprintf(out, "No run history in %s\n", *dir)
		return nil
	}

	Printer.Fprintf(out, "Runs recorded: %d, assertions tracked: %d\n", len(h.RunMeta), len(h.Tests))
	if !*flaky {
		h.PrintSummary(out, *limit)
	}
	if len(h.Flaky()) == 0 {
		Printer.Fprintf(out, "No flaky assertions.\n")
		return nil
	}
	Printer.Fprintf(out, "Flaky assertions:\n")
	h.PrintFlakyReport(out)
	return nil
}
