package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture builds a u8 capture of quiet (127, 128) pairs around a loud (0, 255) burst.
func capture(quietBefore, loud, quietAfter int) []byte {
	quiet := []byte{127, 128}
	var b []byte
	b = append(b, bytes.Repeat(quiet, quietBefore)...)
	b = append(b, bytes.Repeat([]byte{0, 255}, loud)...)
	b = append(b, bytes.Repeat(quiet, quietAfter)...)
	return b
}

func writeCapture(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stderr bytes.Buffer
	c, err := NewConfigFromCLI(args, &stderr)
	if err != nil {
		return stderr.String(), err
	}

	var out bytes.Buffer
	err = Run(context.Background(), c, slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	return out.String(), err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestRun_Interval(t *testing.T) {
	path := writeCapture(t, capture(8, 8, 8))

	out, err := run(t, "-chunk", "16", path, "1")
	require.NoError(t, err)
	assert.Equal(t, "start=8 end=16", lastLine(out))
}

func TestRun_RunsToEOF(t *testing.T) {
	path := writeCapture(t, capture(4, 12, 0))

	out, err := run(t, "-chunk", "8", path, "1")
	require.NoError(t, err)
	assert.Equal(t, "start=4 end=16 (EOF)", lastLine(out))
}

func TestRun_Quiet(t *testing.T) {
	path := writeCapture(t, capture(64, 0, 0))

	out, err := run(t, path, "1")
	require.NoError(t, err)
	assert.Equal(t, "start=none end=none", lastLine(out))
}

func TestRun_Verbose(t *testing.T) {
	path := writeCapture(t, capture(8, 8, 8))

	out, err := run(t, "-verbose", "-chunk", "16", path, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "JAMMING"))
	assert.Equal(t, 2, strings.Count(out, "quiet"))
}

func TestRun_MissingCapture(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.bin"), "1")
	assert.ErrorContains(t, err, "capture not found")
}

func TestNewConfigFromCLI(t *testing.T) {
	c, err := NewConfigFromCLI([]string{"-chunk", "64KiB", "-verbose", "file.bin", "5000.0"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "file.bin", c.Path)
	assert.Equal(t, 5000.0, c.Threshold)
	assert.Equal(t, 64*1024, c.ChunkSize)
	assert.True(t, c.Verbose)

	c, err = NewConfigFromCLI([]string{"file.bin", "0.5"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 128*1024, c.ChunkSize)
	assert.False(t, c.Verbose)
}

func TestNewConfigFromCLI_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"file.bin"},
		{"file.bin", "loud"},
		{"file.bin", "-1"},
		{"-chunk", "3", "file.bin", "1"},
		{"-chunk", "lots", "file.bin", "1"},
		{"file.bin", "1", "extra"},
	} {
		var stderr bytes.Buffer
		_, err := NewConfigFromCLI(args, &stderr)
		assert.Error(t, err, "args %v", args)
		assert.Contains(t, stderr.String(), "Usage: jamcheck", "args %v", args)
	}
}
