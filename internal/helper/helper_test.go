package helper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"grimm.is/adderprobe/internal/logging"
	"grimm.is/adderprobe/internal/protocol"
	"grimm.is/adderprobe/internal/testutil/fakeadder"
	"grimm.is/adderprobe/internal/wire"
)

func TestMain(m *testing.M) {
	if fakeadder.Requested() {
		os.Exit(fakeadder.Main())
	}
	goleak.VerifyTestMain(m)
}

// fakeOptions launches this test binary as the helper.
func fakeOptions(t *testing.T, mode string) Options {
	t.Helper()
	env := []string{fakeadder.EnvEnable + "=1"}
	if mode != "" {
		env = append(env, fakeadder.EnvMode+"="+mode)
	}
	return Options{
		Path:     os.Args[0],
		DataHome: t.TempDir(),
		Env:      env,
		Logger:   logging.Discard(),
	}
}

func request(source string) protocol.Document {
	return protocol.Document{
		"platform": "example.com",
		"artworks": []any{map[string]any{
			"source": source,
			"data":   "data:text/plain;base64,aGVsbG8gd29ybGQ=",
		}},
	}
}

func payload(t *testing.T, docs ...protocol.Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, d := range docs {
		require.NoError(t, wire.Write(&buf, d))
	}
	return buf.Bytes()
}

func TestPipeMode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := Start(ctx, fakeOptions(t, ""))
	require.NoError(t, err)

	data := payload(t, request("https://example.com/1"), protocol.Document{"platform": "p", "artworks": map[string]any{}})
	n, err := p.Send(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, p.CloseInput())

	var sizes []int64
	docs, err := p.Collect(2, func(_ protocol.Document, size int64) { sizes = append(sizes, size) })
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Len(t, sizes, 2)
	assert.Equal(t, p.Received(), sizes[0]+sizes[1])
	assert.Equal(t, true, docs[0]["success"])
	assert.Equal(t, false, docs[1]["success"])
	assert.Greater(t, p.Received(), int64(0))

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestFileMode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := fakeOptions(t, "")
	opts.PayloadFile = filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(opts.PayloadFile, payload(t, request("https://example.com/1")), 0o644))

	p, err := Start(ctx, opts)
	require.NoError(t, err)

	_, err = p.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrFileInput)

	docs, err := p.Collect(1, nil)
	require.NoError(t, err)
	assert.Equal(t, true, docs[0]["success"])

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	assert.FileExists(t, filepath.Join(opts.DataHome, fakeadder.DatabaseFile))
}

func TestPrematureEOF(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := Start(ctx, fakeOptions(t, "exit-after:1"))
	require.NoError(t, err)
	_, err = p.Send(payload(t, request("https://example.com/1"), request("https://example.com/2")))
	require.NoError(t, err)
	require.NoError(t, p.CloseInput())

	docs, err := p.Collect(2, nil)
	assert.Len(t, docs, 1)
	var eof *PrematureEOFError
	require.ErrorAs(t, err, &eof)
	assert.Equal(t, 2, eof.Expected)
	assert.Equal(t, 1, eof.Got)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	code, _ := p.Wait()
	assert.Equal(t, 1, code)
}

func TestGarbageResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := Start(ctx, fakeOptions(t, "garbage"))
	require.NoError(t, err)
	_, err = p.Send(payload(t, request("https://example.com/1")))
	require.NoError(t, err)
	require.NoError(t, p.CloseInput())

	_, err = p.Collect(1, nil)
	assert.ErrorIs(t, err, wire.ErrTruncatedPayload)

	_, err = p.Wait()
	assert.NoError(t, err)
}

func TestStderrIsLogged(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rb := logging.NewRingBuffer(16)
	opts := fakeOptions(t, "")
	opts.Logger = logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard, Tee: rb})

	p, err := Start(ctx, opts)
	require.NoError(t, err)
	_, err = p.Send(payload(t, protocol.Document{"platform": "p", "artworks": map[string]any{}}))
	require.NoError(t, err)
	require.NoError(t, p.CloseInput())
	_, err = p.Collect(1, nil)
	require.NoError(t, err)
	_, err = p.Wait()
	require.NoError(t, err)

	var lines []string
	for _, e := range rb.GetBySource("helper", 0) {
		if e.Extra["stream"] == "stderr" {
			lines = append(lines, e.Message)
		}
	}
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "Addition failed:"), lines[0])
}

func TestDeadlineKills(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	p, err := Start(ctx, fakeOptions(t, ""))
	require.NoError(t, err)

	// Stdin stays open, so the helper blocks until the deadline kills it.
	_, err = p.Collect(1, nil)
	var eof *PrematureEOFError
	require.ErrorAs(t, err, &eof)

	code, err := p.Wait()
	assert.Equal(t, -1, code)
	assert.True(t, err == nil || errors.Is(err, context.DeadlineExceeded), "unexpected error: %v", err)
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Start(ctx, Options{DataHome: t.TempDir()})
	assert.Error(t, err)

	_, err = Start(ctx, Options{Path: os.Args[0]})
	assert.Error(t, err)

	_, err = Start(ctx, Options{Path: filepath.Join(t.TempDir(), "missing"), DataHome: t.TempDir(), Logger: logging.Discard()})
	assert.Error(t, err)

	_, err = Start(ctx, Options{Path: os.Args[0], DataHome: t.TempDir(), PayloadFile: filepath.Join(t.TempDir(), "missing"), Logger: logging.Discard()})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCommandLine(t *testing.T) {
	got := CommandLine(Options{
		Path:        "/usr/bin/arcollect-webext-adder",
		DataHome:    "/tmp/it's here",
		PayloadFile: "/tmp/payload.bin",
	})
	assert.Equal(t, `ARCOLLECT_DATA_HOME='/tmp/it'\''s here' '/usr/bin/arcollect-webext-adder' < '/tmp/payload.bin'`, got)

	got = CommandLine(Options{Path: "adder", DataHome: "/d", Env: []string{"A=b c"}})
	assert.Equal(t, `ARCOLLECT_DATA_HOME='/d' A='b c' 'adder'`, got)
}

func TestEnviron(t *testing.T) {
	env := Environ("/data", []string{"X=1"})
	require.GreaterOrEqual(t, len(env), 2)
	assert.Equal(t, "X=1", env[len(env)-1])
	assert.Equal(t, DataHomeEnv+"=/data", env[len(env)-2])
}
