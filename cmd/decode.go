package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"

	"grimm.is/adderprobe/internal/brand"
	"grimm.is/adderprobe/internal/wire"
)

// RunDecode pretty-prints a frame stream: a payload file, or a capture of
// the helper's stdout.
func RunDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	maxPayload := fs.Uint("max-payload", wire.DefaultMaxPayload, "Largest frame accepted, in bytes")
	raw := fs.Bool("raw", false, "Print payloads as received instead of indenting them")
	fs.Usage = func() {
		Printer.Fprintf(fs.Output(), "Usage: %s decode [options] [file]\n", brand.BinaryName)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	var in io.Reader = os.Stdin
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	return decodeStream(os.Stdout, in, uint32(*maxPayload), *raw)
}

func decodeStream(out io.Writer, in io.Reader, maxPayload uint32, raw bool) error {
	dec := wire.NewDecoder(in)
	dec.MaxPayload = maxPayload
	for {
		payload, err := dec.DecodeRaw()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			Printer.Fprintf(out, "%d frames decoded\n", dec.Frames())
			return err
		}

		Printer.Fprintf(out, "Frame %d (%d bytes):\n", dec.Frames()-1, len(payload))
		if len(payload) == 0 {
			continue
		}
		if _, err := wire.Unmarshal(payload); err != nil {
			Printer.Fprintf(out, "%d frames decoded\n", dec.Frames()-1)
			return &wire.FrameError{Kind: wire.KindMalformedPayload, Frame: dec.Frames() - 1, Offset: dec.Offset() - int64(len(payload)) - wire.HeaderSize, Err: err}
		}
		if raw {
			out.Write(payload)
			io.WriteString(out, "\n")
			continue
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		out.Write(buf.Bytes())
	}
	Printer.Fprintf(out, "%d frames decoded\n", dec.Frames())
	return nil
}
