package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against a *FrameError.
var (
	ErrTruncatedHeader  = errors.New("truncated frame header")
	ErrTruncatedPayload = errors.New("truncated frame payload")
	ErrMalformedPayload = errors.New("malformed frame payload")
	ErrOversizedFrame   = errors.New("oversized frame")
)

// Kind classifies a decoding failure.
type Kind int

const (
	KindTruncatedHeader Kind = iota + 1
	KindTruncatedPayload
	KindMalformedPayload
	KindOversizedFrame
)

func (k Kind) sentinel() error {
	switch k {
	case KindTruncatedHeader:
		return ErrTruncatedHeader
	case KindTruncatedPayload:
		return ErrTruncatedPayload
	case KindMalformedPayload:
		return ErrMalformedPayload
	case KindOversizedFrame:
		return ErrOversizedFrame
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FrameError describes a frame that could not be decoded.
type FrameError struct {
	Kind Kind
	// Frame is the zero-based index of the frame in the stream.
	Frame int
	// Offset is the stream offset where the frame starts.
	Offset int64
	// Expected and Got are byte counts for truncations and oversized frames.
	Expected uint64
	Got      uint64
	// Err is the underlying parse error for malformed payloads.
	Err error
}

func (e *FrameError) Error() string {
	msg := fmt.Sprintf("frame %d at offset %d: %s", e.Frame, e.Offset, e.Kind)
	switch e.Kind {
	case KindTruncatedHeader, KindTruncatedPayload:
		msg += fmt.Sprintf(" (expected %d bytes, got %d)", e.Expected, e.Got)
	case KindOversizedFrame:
		msg += fmt.Sprintf(" (%d bytes, limit %d)", e.Got, e.Expected)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the sentinel for e's Kind.
func (e *FrameError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *FrameError) Unwrap() error { return e.Err }

// EncodingError is returned when a value cannot be framed.
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return "encode frame: " + e.Reason + ": " + e.Err.Error()
	}
	return "encode frame: " + e.Reason
}

func (e *EncodingError) Unwrap() error { return e.Err }
