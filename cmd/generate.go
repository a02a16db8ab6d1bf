package cmd

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/fixture"
)

// RunGenerate writes the request stream of the selected cases to a file
// (or stdout with -o -), ready to be fed to the helper by hand.
func RunGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	output := fs.String("o", "payload.bin", "Output file, - for stdout")
	terminator := fs.Bool("terminator", false, "Append a zero-length frame")
	noBuiltin := fs.Bool("no-builtin", false, "Skip the built-in suites")
	var suites stringList
	fs.Var(&suites, "suite", "Include only this built-in suite (repeatable)")
	fs.Usage = func() {
		Printer.Fprintf(fs.Output(), "Usage: %s generate [options] [fixture...]\n", brand.BinaryName)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cases, err := loadCases(!*noBuiltin, suites, fs.Args())
	if err != nil {
		return err
	}
	n, err := writePayload(*output, cases, *terminator)
	if err != nil {
		return err
	}
	name := *output
	if name == "-" {
		name = "stdout"
	}
	Printer.Fprintf(os.Stderr, "Wrote %d frames (%d bytes) to %s\n", len(cases), n, name)
	return nil
}

func writePayload(path string, cases []fixture.Case, terminator bool) (int64, error) {
	if path == "-" {
		return fixture.WritePayload(os.Stdout, cases, terminator)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := fixture.WritePayload(tmp, cases, terminator)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, os.Rename(tmp.Name(), path)
}

