// Package helper runs the web-ext adder under test and reads its framed
// responses.
//
// The helper reads requests on stdin, writes one response frame per
// request on stdout and prints diagnostics on stderr. Stdin is either a
// pre-built payload file or a pipe the caller writes through Send.
package helper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/logging"
	"grimm.is/adderprobe/internal/protocol"
	"grimm.is/adderprobe/internal/wire"
)

// DataHomeEnv points the helper at the collection it writes to.
const DataHomeEnv = "ARCOLLECT_DATA_HOME"

// waitDelay bounds how long Wait lingers on open pipes once the process
// has been killed.
const waitDelay = 2 * time.Second

var (
	// ErrNotStarted is returned when a Process is used before Start.
	ErrNotStarted = errors.New("helper not started")
	// ErrFileInput is returned by Send when stdin is a payload file.
	ErrFileInput = errors.New("helper stdin is a payload file")
)

// Options describe how to launch the helper.
type Options struct {
	// Path is the helper executable.
	Path string
	// Argv0 overrides argv[0]; defaults to the helper's canonical name.
	Argv0 string
	// DataHome is exported as ARCOLLECT_DATA_HOME.
	DataHome string
	// Env holds extra KEY=VALUE pairs appended after the parent environment.
	Env []string
	// PayloadFile, when set, is connected to stdin. Otherwise stdin is a pipe.
	PayloadFile string
	// MaxPayload bounds response frames; zero keeps the wire default.
	MaxPayload uint32
	Logger     *logging.Logger
}

// Process is a running helper.
type Process struct {
	opts   Options
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	dec    *wire.Decoder
	logger *logging.Logger

	pumps errgroup.Group

	closeOnce sync.Once
	closeErr  error
	waitOnce  sync.Once
	waitErr   error
	exitCode  int
}

// Start launches the helper. Cancelling ctx kills it along with anything
// it spawned.
func Start(ctx context.Context, opts Options) (*Process, error) {
	if opts.Path == "" {
		return nil, errors.New("helper path is empty")
	}
	if opts.DataHome == "" {
		return nil, errors.New("helper data home is empty")
	}
	if opts.Argv0 == "" {
		opts.Argv0 = brand.HelperArgv0
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	cmd := exec.CommandContext(ctx, opts.Path)
	cmd.Args = []string{opts.Argv0}
	cmd.Env = Environ(opts.DataHome, opts.Env)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	p := &Process{
		opts:     opts,
		cmd:      cmd,
		logger:   logger.WithComponent("helper"),
		exitCode: -1,
	}

	var input *os.File
	if opts.PayloadFile != "" {
		f, err := os.Open(opts.PayloadFile)
		if err != nil {
			return nil, fmt.Errorf("open payload: %w", err)
		}
		input = f
		cmd.Stdin = f
	} else {
		w, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		p.stdin = w
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeFile(input)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closeFile(input)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		closeFile(input)
		return nil, fmt.Errorf("start %s: %w", opts.Path, err)
	}
	// The child holds its own descriptor.
	closeFile(input)

	p.stdout = stdout
	p.dec = wire.NewDecoder(stdout)
	if opts.MaxPayload > 0 {
		p.dec.MaxPayload = opts.MaxPayload
	}
	p.pumps.Go(func() error { return p.pumpStderr(stderr) })

	p.logger.Debug("started", "pid", cmd.Process.Pid, "cmdline", p.CommandLine())
	return p, nil
}

func closeFile(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

// Environ returns the parent environment with the data home and extra
// pairs appended. Later entries win.
func Environ(dataHome string, extra []string) []string {
	env := os.Environ()
	env = append(env, DataHomeEnv+"="+dataHome)
	return append(env, extra...)
}

func (p *Process) pumpStderr(r io.Reader) error {
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		p.logger.Info(line, "stream", "stderr")
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("read helper stderr: %w", err)
	}
	return nil
}

// Pid returns the helper's process id.
func (p *Process) Pid() int {
	if p == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Send writes payload to the helper's stdin pipe.
func (p *Process) Send(payload []byte) (int, error) {
	if p.stdin == nil {
		return 0, ErrFileInput
	}
	return p.stdin.Write(payload)
}

// CloseInput closes the stdin pipe so the helper sees end of input.
// It is a no-op in payload file mode.
func (p *Process) CloseInput() error {
	if p.stdin == nil {
		return nil
	}
	p.closeOnce.Do(func() { p.closeErr = p.stdin.Close() })
	return p.closeErr
}

// Read reads one response frame.
func (p *Process) Read() (protocol.Document, error) {
	if p.dec == nil {
		return nil, ErrNotStarted
	}
	return p.dec.DecodeOne()
}

// Collect reads n response frames, calling each (when non-nil) with every
// document and its frame size. It stops at the first error and returns
// what it decoded so far. A clean end of stream before n frames is reported
// as a *PrematureEOFError.
func (p *Process) Collect(n int, each func(doc protocol.Document, size int64)) ([]protocol.Document, error) {
	docs := make([]protocol.Document, 0, n)
	for len(docs) < n {
		before := p.Received()
		doc, err := p.Read()
		if errors.Is(err, io.EOF) {
			return docs, &PrematureEOFError{Expected: n, Got: len(docs)}
		}
		if err != nil {
			return docs, err
		}
		if each != nil {
			each(doc, p.Received()-before)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Received returns how many bytes have been read from stdout.
func (p *Process) Received() int64 {
	if p.dec == nil {
		return 0
	}
	return p.dec.Offset()
}

// Kill terminates the helper and its process group.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	return killProcessGroup(p.cmd)
}

// Wait closes stdin, drains stderr and waits for the helper to exit.
// The exit code is -1 when the process was killed by a signal.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		_ = p.CloseInput()
		pumpErr := p.pumps.Wait()
		err := p.cmd.Wait()
		if p.cmd.ProcessState != nil {
			p.exitCode = p.cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// A nonzero status is reported through the exit code.
			err = nil
		}
		p.waitErr = errors.Join(err, pumpErr)
		p.logger.Debug("exited", "pid", p.Pid(), "code", p.exitCode)
	})
	return p.exitCode, p.waitErr
}

// CommandLine renders an equivalent shell invocation for diagnostics.
func (p *Process) CommandLine() string {
	return CommandLine(p.opts)
}

// CommandLine renders a shell invocation equivalent to starting the helper
// with opts.
func CommandLine(opts Options) string {
	var b strings.Builder
	b.WriteString(DataHomeEnv)
	b.WriteByte('=')
	b.WriteString(shellQuote(opts.DataHome))
	for _, kv := range opts.Env {
		b.WriteByte(' ')
		if k, v, ok := strings.Cut(kv, "="); ok {
			b.WriteString(k + "=" + shellQuote(v))
		} else {
			b.WriteString(shellQuote(kv))
		}
	}
	b.WriteByte(' ')
	b.WriteString(shellQuote(opts.Path))
	if opts.PayloadFile != "" {
		b.WriteString(" < ")
		b.WriteString(shellQuote(opts.PayloadFile))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PrematureEOFError reports that the helper closed stdout before
// answering every request.
type PrematureEOFError struct {
	Expected int
	Got      int
}

func (e *PrematureEOFError) Error() string {
	return fmt.Sprintf("helper closed stdout after %d of %d responses", e.Got, e.Expected)
}

// Is lets errors.Is match io.ErrUnexpectedEOF.
func (e *PrematureEOFError) Is(target error) bool {
	return target == io.ErrUnexpectedEOF
}
