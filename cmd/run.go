package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/config"
	"grimm.is/adderprobe/internal/orchestrator"
)

// RunProbe runs the cases against the helper and writes TAP on stdout.
// It returns ErrFailed when an assertion failed or the run bailed out.
func RunProbe(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", os.Getenv(brand.EnvVar("CONFIG")), "Configuration file (HCL or JSON)")
	fs.StringVar(configFile, "c", *configFile, "Configuration file (short)")
	helperPath := fs.String("helper", "", "webext-adder executable (default $"+config.HelperPathEnv+")")
	stateRoot := fs.String("state-root", "", "Helper data home, wiped before the run (default $"+config.DataHomeEnv+")")
	mode := fs.String("mode", "", "Helper stdin: file or pipe")
	terminator := fs.Bool("terminator", false, "Send a zero-length frame after the last request")
	timeout := fs.String("timeout", "", "Kill the helper after this long, e.g. 2m (default: no timeout)")
	maxPayload := fs.Uint("max-payload", 0, "Largest response frame accepted, in bytes (default 64 MiB)")
	rowCounts := fs.Bool("row-counts", false, "Check table row counts against the requests")
	noBuiltin := fs.Bool("no-builtin", false, "Skip the built-in suites")
	var suites stringList
	fs.Var(&suites, "suite", "Run only this built-in suite (repeatable)")
	metricsFile := fs.String("metrics-file", "", "Write run metrics to this node-exporter textfile")
	historyDir := fs.String("history-dir", "", "Record outcomes in this directory")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logJSON := fs.Bool("log-json", false, "Log as JSON")
	fs.Usage = func() {
		Printer.Fprintf(fs.Output(), "Usage: %s run [options] [fixture...]\n", brand.BinaryName)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.LookupEnv)

	set := visited(fs)
	flagCfg := &config.Config{
		HelperPath:     *helperPath,
		StateRoot:      *stateRoot,
		InputMode:      *mode,
		SendTerminator: *terminator,
		Timeout:        *timeout,
		RowCounts:      *rowCounts,
		Suites:         suites,
		MetricsFile:    *metricsFile,
		HistoryDir:     *historyDir,
		LogLevel:       *logLevel,
		LogJSON:        *logJSON,
	}
	if *maxPayload > math.MaxUint32 {
		return fmt.Errorf("-max-payload %d exceeds %d", *maxPayload, uint32(math.MaxUint32))
	}
	flagCfg.MaxPayload = uint32(*maxPayload)
	if set["no-builtin"] {
		builtin := !*noBuiltin
		flagCfg.BuiltinSuites = &builtin
	}
	cfg.Merge(flagCfg)
	cfg.Fixtures = append(cfg.Fixtures, fs.Args()...)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, tail, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}

	if cfg.StateRootFromXDG() {
		logger.Warn("state root derived from "+config.XDGDataHome+" is your Arcollect collection and will be wiped; pass -state-root to use a scratch directory",
			"path", cfg.StateRoot)
	}

	cases, err := loadCases(cfg.UseBuiltinSuites(), cfg.Suites, cfg.Fixtures)
	if err != nil {
		return err
	}
	runTimeout, err := cfg.RunTimeout()
	if err != nil {
		return err
	}

	o, err := orchestrator.New(orchestrator.Config{
		HelperPath:     cfg.HelperPath,
		StateRoot:      cfg.StateRoot,
		InputMode:      cfg.InputMode,
		SendTerminator: cfg.SendTerminator,
		Timeout:        runTimeout,
		RowCounts:      cfg.RowCounts,
		MaxPayload:     cfg.MaxPayload,
		Cases:          cases,
		Output:         os.Stdout,
		Logger:         logger,
		Tail:           tail,
		MetricsFile:    cfg.MetricsFile,
		HistoryDir:     cfg.HistoryDir,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := o.Run(ctx)
	printRunSummary(res, err)

	var bail *orchestrator.BailOutError
	if err != nil && !errors.As(err, &bail) {
		return err
	}
	if !res.OK() {
		return ErrFailed
	}
	return nil
}

func printRunSummary(res *orchestrator.Result, runErr error) {
	out := os.Stderr
	printStyled(out, statusStyle(res.OK(), res.BailedOut), "%d of %d assertions passed\n", res.Passed, res.Planned)
	if res.Failed > 0 {
		printStyled(out, styleBad, "%d failed, %d skipped, %d todo\n", res.Failed, 0, 0)
	}
	if res.BailedOut && runErr != nil {
		printStyled(out, styleWarn, "Bailed out: %s\n", runErr)
	}
	printStyled(out, styleMuted, "Run %s took %s\n", res.RunID, res.Duration.Round(time.Millisecond))
}
