// Package cmd implements the adderprobe subcommands. Each Run* function
// parses its own flags and returns an error for main to report.
package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"grimm.is/adderprobe/internal/config"
	"grimm.is/adderprobe/internal/fixture"
	"grimm.is/adderprobe/internal/i18n"
	"grimm.is/adderprobe/internal/logging"
)

// Printer is the localized printer for CLI output.
var Printer = i18n.NewCLIPrinter()

// ErrFailed reports that a run or report finished with failing assertions.
// It carries no message of its own; the TAP stream already says why.
var ErrFailed = errors.New("assertions failed")

// tailSize bounds the log records kept for bail-out diagnostics.
const tailSize = 256

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// setupLogging installs the default logger for cfg and returns the buffer
// it tees into.
func setupLogging(cfg *config.Config, out io.Writer) (*logging.Logger, *logging.RingBuffer, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	tail := logging.NewRingBuffer(tailSize)
	logger := logging.New(logging.Config{
		Level:  level,
		Output: out,
		JSON:   cfg.LogJSON,
		Tee:    tail,
	})
	logging.SetDefault(logger)
	return logger, tail, nil
}

// selectSuites returns the built-in suites named in names, or all of them.
func selectSuites(names []string) ([]fixture.Suite, error) {
	if len(names) == 0 {
		return fixture.Builtin(), nil
	}
	suites := make([]fixture.Suite, 0, len(names))
	for _, n := range names {
		s, ok := fixture.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown suite %q (see %s suites)", n, os.Args[0])
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// loadCases builds the run's cases: selected built-in suites and every
// suite in the fixture files, sorted by name, then the test sets.
func loadCases(builtin bool, suiteNames, fixtures []string) ([]fixture.Case, error) {
	set, err := fixture.Load(fixtures...)
	if err != nil {
		return nil, err
	}
	if builtin {
		suites, err := selectSuites(suiteNames)
		if err != nil {
			return nil, err
		}
		set.Suites = append(suites, set.Suites...)
	}
	cases, err := set.Cases()
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, errors.New("no cases: enable the built-in suites or pass fixture files")
	}
	return cases, nil
}

// visited returns the names of the flags set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
