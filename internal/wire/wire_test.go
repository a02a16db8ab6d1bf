package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/adderprobe/internal/protocol"
)

var sampleDocs = []protocol.Document{
	{},
	{"artworks": []any{}},
	{"artworks": map[string]any{}},
	{"platform": "Reject bad scheme", "artworks": []any{map[string]any{"source": "dummy", "data": "ftp://example.com"}}},
	{"title": "日本語 テキスト", "emoji": "🎨", "html": "<a href='x'>&amp;</a>"},
	{"n": json.Number("1.5"), "big": json.Number("9007199254740993"), "neg": json.Number("-3"), "null": nil, "t": true, "nested": map[string]any{"a": []any{json.Number("1"), "b", nil}}},
}

func TestRoundTrip(t *testing.T) {
	for _, doc := range sampleDocs {
		frame, err := Encode(doc)
		require.NoError(t, err)

		got, err := DecodeOne(bytes.NewReader(frame))
		require.NoError(t, err)
		if diff := cmp.Diff(doc, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestHeaderMatchesPayloadLength(t *testing.T) {
	for _, doc := range sampleDocs {
		frame, err := Encode(doc)
		require.NoError(t, err)

		n := ByteOrder.Uint32(frame[:HeaderSize])
		payload := frame[HeaderSize:]
		assert.Equal(t, int(n), len(payload))

		again, err := Marshal(doc)
		require.NoError(t, err)
		assert.Equal(t, payload, again, "encoding must be deterministic")
	}
}

func TestEncodeSortsKeysWithoutHTMLEscaping(t *testing.T) {
	payload, err := Marshal(protocol.Document{"b": 1, "a": "<&>"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<&>","b":1}`, string(payload))
}

func TestFramesStayInOrder(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, Write(&stream, protocol.Document{"i": 1.0}))
	require.NoError(t, Write(&stream, protocol.Document{"i": 2.0}))

	docs, err := DecodeAll(&stream)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, json.Number("1"), docs[0]["i"])
	assert.Equal(t, json.Number("2"), docs[1]["i"])
}

func TestLargeIntegersSurvive(t *testing.T) {
	for _, payload := range []string{
		`{"id":9007199254740993}`,
		`{"accounts":[{"id":700000000000000001}],"n":-9223372036854775808}`,
		`{"f":1e400}`,
	} {
		frame, err := Frame([]byte(payload))
		require.NoError(t, err)

		doc, err := DecodeOne(bytes.NewReader(frame))
		require.NoError(t, err)

		again, err := Marshal(doc)
		require.NoError(t, err)
		assert.Equal(t, payload, string(again))
	}
}

func TestEveryPrefixIsTruncated(t *testing.T) {
	frame, err := Encode(protocol.Document{"platform": "Example", "artworks": []any{}})
	require.NoError(t, err)

	for cut := 1; cut < len(frame); cut++ {
		_, err := DecodeOne(bytes.NewReader(frame[:cut]))
		require.Error(t, err, "prefix of %d bytes", cut)

		var fe *FrameError
		require.True(t, errors.As(err, &fe), "prefix of %d bytes: %v", cut, err)
		if cut < HeaderSize {
			assert.ErrorIs(t, err, ErrTruncatedHeader)
			assert.Equal(t, uint64(cut), fe.Got)
		} else {
			assert.ErrorIs(t, err, ErrTruncatedPayload)
			assert.Equal(t, uint64(cut-HeaderSize), fe.Got)
			assert.Equal(t, uint64(len(frame)-HeaderSize), fe.Expected)
		}
	}
}

func TestEmptyStreamIsEOF(t *testing.T) {
	_, err := DecodeOne(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)

	docs, err := DecodeAll(bytes.NewReader(nil))
	assert.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDecodeAllReportsTrailingPartialFrame(t *testing.T) {
	first, err := Encode(protocol.Document{"success": true})
	require.NoError(t, err)
	var stream bytes.Buffer
	stream.Write(first)
	second, err := Encode(protocol.Document{"success": false, "reason": "x"})
	require.NoError(t, err)
	stream.Write(second[:len(second)-1])

	docs, err := DecodeAll(&stream)
	assert.ErrorIs(t, err, ErrTruncatedPayload)
	require.Len(t, docs, 1)
	assert.Equal(t, true, docs[0]["success"])

	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Frame)
	assert.Equal(t, int64(len(first)), fe.Offset)
}

func TestMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"syntax", []byte(`{"success":`)},
		{"trailing", []byte(`{"success":true} {}`)},
		{"array", []byte(`[1,2]`)},
		{"string", []byte(`"ok"`)},
		{"null", []byte(`null`)},
		{"invalid utf8", []byte{'{', '"', 0xff, '"', ':', '1', '}'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Frame(tt.payload)
			require.NoError(t, err)

			_, err = DecodeOne(bytes.NewReader(frame))
			assert.ErrorIs(t, err, ErrMalformedPayload)
			assert.NotErrorIs(t, err, ErrTruncatedPayload)
		})
	}
}

func TestOversizedFrame(t *testing.T) {
	hdr := make([]byte, HeaderSize)
	ByteOrder.PutUint32(hdr, math.MaxUint32)

	dec := NewDecoder(bytes.NewReader(hdr))
	_, err := dec.DecodeRaw()
	assert.ErrorIs(t, err, ErrOversizedFrame)

	ByteOrder.PutUint32(hdr, 5)
	dec = NewDecoder(bytes.NewReader(hdr))
	dec.MaxPayload = 4
	_, err = dec.DecodeRaw()
	assert.ErrorIs(t, err, ErrOversizedFrame)
}

func TestEncodingErrors(t *testing.T) {
	for name, v := range map[string]any{
		"nan":     protocol.Document{"x": math.NaN()},
		"inf":     protocol.Document{"x": math.Inf(1)},
		"channel": protocol.Document{"x": make(chan int)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(v)
			var ee *EncodingError
			assert.ErrorAs(t, err, &ee)
		})
	}

	old := maxPayload
	maxPayload = 3
	defer func() { maxPayload = old }()

	_, err := Encode(protocol.Document{})
	assert.NoError(t, err, "2-byte payload fits")
	_, err = Encode(protocol.Document{"a": 1})
	var ee *EncodingError
	assert.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Error(), "exceeds")
}

func TestTerminator(t *testing.T) {
	term := Terminator()
	assert.Len(t, term, HeaderSize)
	assert.Equal(t, uint32(0), ByteOrder.Uint32(term))

	payload, err := NewDecoder(bytes.NewReader(term)).DecodeRaw()
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestDecoderCounters(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, Write(&stream, protocol.Document{}))
	require.NoError(t, Write(&stream, protocol.Document{}))
	total := int64(stream.Len())

	dec := NewDecoder(&stream)
	for {
		if _, err := dec.DecodeOne(); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}
	assert.Equal(t, 2, dec.Frames())
	assert.Equal(t, total, dec.Offset())
}

func TestFrameErrorMessage(t *testing.T) {
	err := &FrameError{Kind: KindTruncatedPayload, Frame: 2, Offset: 40, Expected: 10, Got: 3}
	assert.True(t, strings.Contains(err.Error(), "frame 2 at offset 40"))
	assert.True(t, strings.Contains(err.Error(), "expected 10 bytes, got 3"))
	assert.False(t, errors.Is(err, ErrTruncatedHeader))
}
