package cmd

import (
	"errors"
	"flag"
	"os"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/config"
)

// RunConfig handles "config init", "config show" and "config check".
func RunConfig(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: " + brand.BinaryName + " config <init|show|check> [options]")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("config "+sub, flag.ExitOnError)
	path := fs.String("c", brand.GetConfigPath(), "Configuration file")
	fs.Parse(rest)
	if fs.NArg() > 0 {
		*path = fs.Arg(0)
	}

	switch sub {
	case "init":
		cfg := config.FromEnv()
		if err := cfg.SaveHCL(*path); err != nil {
			return err
		}
		Printer.Fprintf(os.Stderr, "Wrote %s\n", *path)
		return nil

	case "show":
		cfg, err := loadConfigOrEnv(*path, visited(fs)["c"] || fs.NArg() > 0)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(cfg.HCL())
		return err

	case "check":
		cfg, err := config.LoadFile(*path)
		if err != nil {
			return err
		}
		cfg.ApplyEnv(os.LookupEnv)
		if err := cfg.Validate(); err != nil {
			return err
		}
		Printer.Fprintf(os.Stdout, "Configuration valid: %s\n", *path)
		return nil
	}
	return errors.New("unknown config subcommand: " + sub)
}

// loadConfigOrEnv loads path when explicit or present, and applies the
// environment either way.
func loadConfigOrEnv(path string, explicit bool) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil || explicit {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}
