// Package orchestrator drives one verification run of the webext-adder
// helper: wipe the state root, send every case, read one response per
// case, assert the responses and then the stored collection, reporting
// all of it as TAP.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"grimm.is/adderprobe/internal/clock"
	"grimm.is/adderprobe/internal/fixture"
	"grimm.is/adderprobe/internal/helper"
	"grimm.is/adderprobe/internal/history"
	"grimm.is/adderprobe/internal/logging"
	"grimm.is/adderprobe/internal/metrics"
	"grimm.is/adderprobe/internal/protocol"
	"grimm.is/adderprobe/internal/storecheck"
	"grimm.is/adderprobe/internal/tap"
	"grimm.is/adderprobe/internal/timeouts"
	"grimm.is/adderprobe/internal/wire"
)

// Input modes, matching the config values.
const (
	InputFile = "file"
	InputPipe = "pipe"
)

// stderrTail is how many helper stderr lines a bail-out reports.
const stderrTail = 20

// Config describes a run.
type Config struct {
	HelperPath string
	// HelperEnv is appended to the helper's environment.
	HelperEnv []string
	// StateRoot is the helper's data home. Run deletes it first.
	StateRoot string
	// InputMode is InputFile (default) or InputPipe.
	InputMode      string
	SendTerminator bool
	// Timeout bounds the helper run after scaling. Zero means none.
	Timeout time.Duration
	// RowCounts adds one row-count assertion per collection table.
	RowCounts bool
	// MaxPayload bounds response frames. Zero keeps wire.DefaultMaxPayload.
	MaxPayload uint32
	Cases     []fixture.Case

	// Output receives the TAP stream. Defaults to os.Stdout.
	Output io.Writer
	Logger *logging.Logger
	// Tail holds recent log records, helper stderr included. Bail-outs
	// print the helper's last lines from it.
	Tail *logging.RingBuffer

	MetricsFile string
	HistoryDir  string
	// RunID defaults to a random UUID.
	RunID string
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Planned   int
	Passed    int
	Failed    int
	BailedOut bool
	// HelperExitCode is -1 when the helper never exited normally.
	HelperExitCode int
	Duration       time.Duration
	Outcomes       []history.Outcome
}

// OK reports whether every planned assertion ran and passed.
func (r *Result) OK() bool {
	return !r.BailedOut && r.Failed == 0 && r.Passed == r.Planned
}

// Orchestrator runs the cases of a Config.
type Orchestrator struct {
	cfg     Config
	logger  *logging.Logger
	tap     *tap.Writer
	metrics *metrics.Registry

	outcomes []history.Outcome
	passed   int
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.HelperPath == "" {
		return nil, errors.New("helper path is empty")
	}
	if cfg.StateRoot == "" {
		return nil, errors.New("state root is empty")
	}
	abs, err := filepath.Abs(cfg.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("state root: %w", err)
	}
	if abs == string(filepath.Separator) {
		return nil, errors.New("refusing to use / as state root")
	}
	cfg.StateRoot = abs

	switch cfg.InputMode {
	case "":
		cfg.InputMode = InputFile
	case InputFile, InputPipe:
	default:
		return nil, fmt.Errorf("unknown input mode %q", cfg.InputMode)
	}
	if len(cfg.Cases) == 0 {
		return nil, errors.New("no cases to run")
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}

	return &Orchestrator{
		cfg:     cfg,
		logger:  cfg.Logger.WithComponent("orchestrator"),
		tap:     tap.NewWriter(cfg.Output),
		metrics: metrics.New(),
	}, nil
}

// Metrics exposes the run's metrics registry.
func (o *Orchestrator) Metrics() *metrics.Registry { return o.metrics }

// Plan returns the number of assertions a run makes when nothing bails out.
func (o *Orchestrator) Plan() int {
	n := len(o.cfg.Cases)
	for _, c := range o.cfg.Cases {
		switch {
		case c.CheckStorage():
			n += storecheck.Count(c.Request)
		case !c.Expect && c.Request != nil:
			n += len(c.Request.ArtAccLinks)
		}
	}
	if o.cfg.RowCounts {
		n += len(storecheck.CountedTables)
	}
	return n
}

// PayloadPath is where file-mode runs write the request stream: next to
// the state root, so wiping the root keeps it. The file is removed once the
// helper has answered everything and exited cleanly; otherwise it is kept
// for the command line printed in the TAP stream.
func (o *Orchestrator) PayloadPath() string {
	return filepath.Join(filepath.Dir(o.cfg.StateRoot), "payload-"+o.cfg.RunID+".bin")
}

// Run performs the run. A fatal failure is returned as a *BailOutError after
// the TAP stream has been closed with "Bail out!". Assertion failures are
// not errors; see Result.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := clock.Now()
	res := &Result{RunID: o.cfg.RunID, Planned: o.Plan(), HelperExitCode: -1}

	o.logger.Info("run starting", "run_id", o.cfg.RunID, "cases", len(o.cfg.Cases), "plan", res.Planned)
	o.tap.Header()
	o.tap.Plan(res.Planned)

	err := o.run(ctx, res)

	var b *BailOutError
	if errors.As(err, &b) {
		o.bailOut(b)
		res.BailedOut = true
	}
	if werr := o.tap.Err(); werr != nil && err == nil {
		err = bail(StageReport, werr)
		res.BailedOut = true
	}

	res.Duration = clock.Since(start)
	res.Passed = o.passed
	res.Failed = o.tap.Failed()
	res.Outcomes = o.outcomes

	o.finish(res, start)
	o.logger.Info("run finished", "run_id", o.cfg.RunID, "passed", res.Passed, "failed", res.Failed,
		"bailed_out", res.BailedOut, "duration", res.Duration)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, res *Result) error {
	if err := o.setup(); err != nil {
		return bail(StageSetup, err)
	}

	frames, err := o.encode()
	if err != nil {
		return bail(StageTransmit, err)
	}

	runCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeouts.Scale(o.cfg.Timeout))
		defer cancel()
	}

	proc, err := o.transmit(runCtx, frames)
	if err != nil {
		return bail(StageTransmit, err)
	}

	docs, err := proc.Collect(len(o.cfg.Cases), func(_ protocol.Document, size int64) {
		o.metrics.ObserveFrame(metrics.Received, int(size))
	})
	if err != nil {
		_ = proc.Kill()
		res.HelperExitCode, _ = proc.Wait()
		if ctxErr := runCtx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", err, ctxErr)
		}
		return bail(StageCollect, err)
	}

	code, err := proc.Wait()
	res.HelperExitCode = code
	if err != nil {
		o.logger.Warn("helper wait", "error", err)
	}
	if code != 0 {
		o.tap.Comment("helper exited with status %d", code)
		o.logger.Warn("helper exited with nonzero status", "code", code)
	} else {
		o.removePayload()
	}
	o.tap.Comment("Fed webext-adder")

	o.assertResponses(docs)
	return o.assertStorage(ctx)
}

// removePayload deletes the payload file of a file-mode run.
func (o *Orchestrator) removePayload() {
	if o.cfg.InputMode != InputFile {
		return
	}
	if err := os.Remove(o.PayloadPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("remove payload", "path", o.PayloadPath(), "error", err)
	}
}

// setup wipes and recreates the state root.
func (o *Orchestrator) setup() error {
	o.logger.Warn("wiping state root", "path", o.cfg.StateRoot)
	if err := os.RemoveAll(o.cfg.StateRoot); err != nil {
		return fmt.Errorf("remove state root: %w", err)
	}
	if err := os.MkdirAll(o.cfg.StateRoot, 0o755); err != nil {
		return fmt.Errorf("create state root: %w", err)
	}
	o.logger.Debug("state root ready", "path", o.cfg.StateRoot)
	return nil
}

// encode builds the request stream, one frame per case.
func (o *Orchestrator) encode() ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range o.cfg.Cases {
		frame, err := wire.Encode(c.Document)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Description(), err)
		}
		buf.Write(frame)
		o.metrics.ObserveFrame(metrics.Sent, len(frame))
	}
	if o.cfg.SendTerminator {
		buf.Write(wire.Terminator())
	}
	return buf.Bytes(), nil
}

// transmit starts the helper and delivers the whole request stream.
func (o *Orchestrator) transmit(ctx context.Context, frames []byte) (*helper.Process, error) {
	opts := helper.Options{
		Path:       o.cfg.HelperPath,
		DataHome:   o.cfg.StateRoot,
		Env:        o.cfg.HelperEnv,
		MaxPayload: o.cfg.MaxPayload,
		Logger:     o.cfg.Logger,
	}
	if o.cfg.InputMode == InputFile {
		opts.PayloadFile = o.PayloadPath()
		if err := os.WriteFile(opts.PayloadFile, frames, 0o644); err != nil {
			return nil, fmt.Errorf("write payload: %w", err)
		}
	}

	o.tap.Comment("Feeding webext-adder")
	o.tap.Comment("%s", helper.CommandLine(opts))

	proc, err := helper.Start(ctx, opts)
	if err != nil {
		return nil, err
	}
	if o.cfg.InputMode == InputPipe {
		// All requests go out before any response is read.
		if _, err := proc.Send(frames); err != nil {
			_ = proc.Kill()
			_, _ = proc.Wait()
			return nil, fmt.Errorf("write helper stdin: %w", err)
		}
		if err := proc.CloseInput(); err != nil {
			_ = proc.Kill()
			_, _ = proc.Wait()
			return nil, fmt.Errorf("close helper stdin: %w", err)
		}
	}
	o.logger.Info("requests sent", "frames", len(o.cfg.Cases), "bytes", len(frames), "mode", o.cfg.InputMode)
	return proc, nil
}

func (o *Orchestrator) bailOut(b *BailOutError) {
	if o.cfg.Tail != nil {
		for _, e := range lastLines(o.cfg.Tail, stderrTail) {
			o.tap.Comment("helper: %s", e.Message)
		}
	}
	o.tap.BailOut(b.Error())
	o.logger.Error("bailed out", "stage", string(b.Stage), "error", b.Err)
}

// lastLines returns the newest n helper stderr records in order.
func lastLines(rb *logging.RingBuffer, n int) []logging.Entry {
	var lines []logging.Entry
	for _, e := range rb.GetBySource("helper", 0) {
		if e.Extra["stream"] == "stderr" {
			lines = append(lines, e)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// finish records metrics and history. Failures here are logged only.
func (o *Orchestrator) finish(res *Result, start time.Time) {
	o.metrics.Finish(start.Add(res.Duration), res.Duration, res.BailedOut, res.HelperExitCode)
	if o.cfg.MetricsFile != "" {
		if err := o.metrics.WriteTextfile(o.cfg.MetricsFile); err != nil {
			o.logger.Warn("metrics not written", "error", err)
		}
	}

	if o.cfg.HistoryDir == "" {
		return
	}
	h, err := history.Load(o.cfg.HistoryDir)
	if err != nil {
		o.logger.Warn("history not loaded", "error", err)
		return
	}
	h.AddRun(history.RunMetadata{
		RunID:     res.RunID,
		Timestamp: start,
		Duration:  res.Duration,
		BailedOut: res.BailedOut,
		Helper:    o.cfg.HelperPath,
	}, res.Outcomes)
	if err := h.Save(o.cfg.HistoryDir); err != nil {
		o.logger.Warn("history not saved", "error", err)
	}
}
