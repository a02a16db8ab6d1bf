package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// ErrTrailingData is returned when bytes follow the decoded JSON value.
var ErrTrailingData = errors.New("trailing data after the JSON value")

// Unmarshal decodes exactly one JSON value from b into v. Numbers decoded
// into interface values are kept as json.Number, so integers beyond 2^53
// survive a round trip.
func Unmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return ErrTrailingData
	}
	return nil
}
