package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/tap"
)

// RunReport summarizes a saved TAP stream. It returns ErrFailed when the
// stream records a failure, a bail-out or a broken plan.
func RunReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	quiet := fs.Bool("q", false, "Print a one-line summary only")
	fs.Usage = func() {
		Printer.Fprintf(fs.Output(), "Usage: %s report [options] [file]\n", brand.BinaryName)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	var in io.Reader = os.Stdin
	name := "stdin"
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in, name = f, fs.Arg(0)
	}

	suite, err := tap.NewParser(in, name).Parse()
	if err != nil {
		return err
	}
	printReport(os.Stdout, suite, *quiet)
	if !suite.Success() {
		return ErrFailed
	}
	return nil
}

func printReport(out io.Writer, suite *tap.TestSuite, quiet bool) {
	if quiet {
		fmt.Fprintln(out, suite.FormatSummary())
		return
	}

	passed, failed, skipped, todo := suite.Summary()
	total := suite.PlanCount
	if total == 0 {
		total = len(suite.Results)
	}
	ok := suite.Success()

	printStyled(out, statusStyle(ok, suite.BailedOut), "%d of %d assertions passed\n", passed, total)
	if failed+skipped+todo > 0 {
		printStyled(out, styleMuted, "%d failed, %d skipped, %d todo\n", failed, skipped, todo)
	}
	if suite.BailedOut {
		printStyled(out, styleWarn, "Bailed out: %s\n", suite.BailOut)
	}
	failures := suite.Failures()
	if len(failures) == 0 {
		return
	}
	Printer.Fprintf(out, "Failures:\n")
	for _, r := range failures {
		Printer.Fprintf(out, "  %d - %s\n", r.Number, r.Description)
		if msg, ok := r.Diagnostics["message"]; ok {
			Printer.Fprintf(out, "      %v\n", msg)
		}
		if mm, ok := r.Diagnostics["mismatches"].([]any); ok {
			for _, m := range mm {
				Printer.Fprintf(out, "      %v\n", m)
			}
		}
	}
}
