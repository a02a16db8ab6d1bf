package fakeadder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"grimm.is/adderprobe/internal/wire"
)

// Environment understood by Main.
const (
	// EnvEnable makes a test binary act as the helper (see Requested).
	EnvEnable = "ADDERPROBE_FAKE_ADDER"
	// EnvMode selects a misbehavior: "exit-after:N" stops after N
	// responses, "garbage" answers with half a frame, "leak-links" keeps
	// the artwork/account links of rejected requests.
	EnvMode = "ADDERPROBE_FAKE_ADDER_MODE"
	// DataHomeEnv is where the real helper finds its collection.
	DataHomeEnv = "ARCOLLECT_DATA_HOME"
)

// ErrStopped is returned by Serve when an exit-after limit is reached.
var ErrStopped = errors.New("fake adder stopped early")

// Options tweak Serve.
type Options struct {
	// Limited makes Serve stop after ExitAfter responses.
	Limited   bool
	ExitAfter int
	// Garbage makes the first response a truncated frame.
	Garbage bool
	// LeakLinks stores the links of rejected requests anyway.
	LeakLinks bool
}

// ParseMode parses the EnvMode value.
func ParseMode(mode string) (Options, error) {
	var o Options
	switch {
	case mode == "":
	case mode == "garbage":
		o.Garbage = true
	case mode == "leak-links":
		o.LeakLinks = true
	case strings.HasPrefix(mode, "exit-after:"):
		n, err := strconv.Atoi(strings.TrimPrefix(mode, "exit-after:"))
		if err != nil || n < 0 {
			return o, fmt.Errorf("bad %s %q", EnvMode, mode)
		}
		o.Limited, o.ExitAfter = true, n
	default:
		return o, fmt.Errorf("unknown %s %q", EnvMode, mode)
	}
	return o, nil
}

// Serve answers one frame per request read from r until end of input or a
// zero-length frame. Failures are also reported on stderr.
func Serve(ctx context.Context, r io.Reader, w io.Writer, stderr io.Writer, store *Store, opts Options) error {
	dec := wire.NewDecoder(r)
	answered := 0
	for {
		if opts.Limited && answered >= opts.ExitAfter {
			return ErrStopped
		}

		payload, err := dec.DecodeRaw()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return nil
		}

		if opts.Garbage {
			frame, _ := wire.Encode(map[string]any{"success": true})
			_, err := w.Write(frame[:len(frame)-2])
			return err
		}

		doc, err := wire.Unmarshal(payload)
		if err != nil {
			fmt.Fprintln(stderr, "JSON parse error.")
			return err
		}
		resp := store.Add(ctx, doc)
		if !resp.Success {
			fmt.Fprintln(stderr, "Addition failed:", resp.ReasonText())
			if opts.LeakLinks {
				if err := store.LeakLinks(ctx, doc); err != nil {
					return err
				}
			}
		}
		if err := wire.Write(w, resp.Document()); err != nil {
			return err
		}
		answered++
	}
}

// Requested reports whether the current process was started as the fake helper.
func Requested() bool {
	return os.Getenv(EnvEnable) != ""
}

// Main runs the fake helper on the process's standard streams and returns
// the exit status. Test binaries call it from TestMain when Requested.
func Main() int {
	dataHome := os.Getenv(DataHomeEnv)
	if dataHome == "" {
		fmt.Fprintln(os.Stderr, DataHomeEnv, "is not set")
		return 2
	}
	opts, err := ParseMode(os.Getenv(EnvMode))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	store, err := OpenStore(dataHome)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer store.Close()

	if err := Serve(context.Background(), os.Stdin, os.Stdout, os.Stderr, store, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
