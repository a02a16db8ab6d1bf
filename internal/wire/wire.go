// Package wire implements the length-prefixed JSON framing spoken by the
// webext-adder helper.
//
// A frame is a uint32 length in native byte order followed by exactly that
// many bytes of UTF-8 JSON. There is no magic, padding or terminator; the
// helper stops at end of input or on a zero-length frame.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"grimm.is/adderprobe/internal/protocol"
)

// HeaderSize is the size of the length prefix.
const HeaderSize = 4

// DefaultMaxPayload bounds the payload size a Decoder will allocate.
const DefaultMaxPayload = 64 << 20

// ByteOrder is the byte order of the length prefix. The helper reads it as a
// host integer, so producer and consumer must share a platform.
var ByteOrder = binary.NativeEndian

// maxPayload is a variable so tests can exercise the size check without
// allocating 4 GiB.
var maxPayload uint64 = math.MaxUint32

// Marshal serializes v to the payload form: compact JSON with sorted map
// keys and no HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, &EncodingError{Reason: "value is not representable in JSON", Err: err}
	}
	// Encoder always terminates with a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Frame prepends the length header to payload.
func Frame(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > maxPayload {
		return nil, &EncodingError{Reason: fmt.Sprintf("payload of %d bytes exceeds the %d byte limit", len(payload), maxPayload)}
	}
	out := make([]byte, HeaderSize+len(payload))
	ByteOrder.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Encode serializes v and returns it as a single frame.
func Encode(v any) ([]byte, error) {
	payload, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(payload)
}

// Write encodes v and writes the frame with a single Write call.
func Write(w io.Writer, v any) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Terminator returns the zero-length frame the helper treats as "quit".
func Terminator() []byte {
	return make([]byte, HeaderSize)
}

// Decoder reads frames from a stream.
type Decoder struct {
	r io.Reader
	// MaxPayload bounds the length a header may announce.
	MaxPayload uint32

	offset int64
	frames int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, MaxPayload: DefaultMaxPayload}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int64 { return d.offset }

// Frames returns the number of complete frames read so far.
func (d *Decoder) Frames() int { return d.frames }

// DecodeRaw reads one frame and returns its payload without parsing it.
// A clean end of stream at a frame boundary returns io.EOF.
func (d *Decoder) DecodeRaw() ([]byte, error) {
	start := d.offset

	var hdr [HeaderSize]byte
	n, err := io.ReadFull(d.r, hdr[:])
	d.offset += int64(n)
	switch {
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, &FrameError{Kind: KindTruncatedHeader, Frame: d.frames, Offset: start, Expected: HeaderSize, Got: uint64(n)}
	case err != nil:
		return nil, fmt.Errorf("read frame %d header: %w", d.frames, err)
	}

	size := ByteOrder.Uint32(hdr[:])
	if d.MaxPayload > 0 && size > d.MaxPayload {
		return nil, &FrameError{Kind: KindOversizedFrame, Frame: d.frames, Offset: start, Expected: uint64(d.MaxPayload), Got: uint64(size)}
	}

	payload := make([]byte, size)
	n, err = io.ReadFull(d.r, payload)
	d.offset += int64(n)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &FrameError{Kind: KindTruncatedPayload, Frame: d.frames, Offset: start, Expected: uint64(size), Got: uint64(n)}
	}
	if err != nil {
		return nil, fmt.Errorf("read frame %d payload: %w", d.frames, err)
	}

	d.frames++
	return payload, nil
}

// DecodeOne reads one frame and parses it as a JSON object.
func (d *Decoder) DecodeOne() (protocol.Document, error) {
	start := d.offset
	payload, err := d.DecodeRaw()
	if err != nil {
		return nil, err
	}
	doc, err := Unmarshal(payload)
	if err != nil {
		return nil, &FrameError{Kind: KindMalformedPayload, Frame: d.frames - 1, Offset: start, Err: err}
	}
	return doc, nil
}

// Unmarshal parses a payload as a single UTF-8 JSON object.
func Unmarshal(payload []byte) (protocol.Document, error) {
	if !utf8.Valid(payload) {
		return nil, errors.New("payload is not valid UTF-8")
	}
	var v any
	if err := protocol.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is a JSON %s, not an object", jsonKind(v))
	}
	return protocol.Document(obj), nil
}

// DecodeOne reads a single frame from r.
func DecodeOne(r io.Reader) (protocol.Document, error) {
	return NewDecoder(r).DecodeOne()
}

// DecodeAll reads frames until end of stream at a frame boundary.
// On error it returns the documents decoded so far alongside the error.
func DecodeAll(r io.Reader) ([]protocol.Document, error) {
	dec := NewDecoder(r)
	var docs []protocol.Document
	for {
		doc, err := dec.DecodeOne()
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}
