package main

import (
	"errors"
	"os"

	"grimm.is/adderprobe/cmd"
	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	args := os.Args[1:]
	command := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "run":
		err = cmd.RunProbe(args)
	case "generate":
		err = cmd.RunGenerate(args)
	case "decode":
		err = cmd.RunDecode(args)
	case "suites":
		err = cmd.RunSuites(args)
	case "report":
		err = cmd.RunReport(args)
	case "history":
		err = cmd.RunHistory(args)
	case "config":
		err = cmd.RunConfig(args)
	case "version":
		cmd.RunVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(2)
	}

	if errors.Is(err, cmd.ErrFailed) {
		os.Exit(1)
	}
	if err != nil {
		printer.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func printUsage() {
	printer.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", brand.BinaryName)
	printer.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range []struct{ name, desc string }{
		{"run", "Feed the cases to the helper and check the results (default)"},
		{"generate", "Write the request frames to a payload file"},
		{"decode", "Pretty-print a frame stream"},
		{"suites", "List the built-in suites"},
		{"report", "Summarize a saved TAP stream"},
		{"history", "Show the run history and flaky assertions"},
		{"config", "Write, show or check a configuration file"},
		{"version", "Print the version"},
	} {
		printer.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.desc)
	}
}
