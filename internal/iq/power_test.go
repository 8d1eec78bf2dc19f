package iq

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture builds an interleaved u8 capture of n pairs with every byte set to level.
func capture(n int, level byte) []byte {
	return bytes.Repeat([]byte{level}, 2*n)
}

func writeCapture(t *testing.T, p []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, p, 0o644))
	return path
}

func uptr(v uint64) *uint64 {
	return &v
}

func TestMeanPower_Centered(t *testing.T) {
	// 255 - 127.5 = 127.5 on both components: |z|² = 2 * 127.5²
	power, pairs := MeanPower(capture(4, 255), Centered)
	assert.Equal(t, 4, pairs)
	assert.InDelta(t, 2*127.5*127.5, power, 1e-9)

	// trailing odd byte is ignored
	power, pairs = MeanPower(append(capture(1, 128), 255), Centered)
	assert.Equal(t, 1, pairs)
	assert.InDelta(t, 0.5, power, 1e-9)

	_, pairs = MeanPower([]byte{200}, Centered)
	assert.Zero(t, pairs)
}

func TestConvention_Component(t *testing.T) {
	assert.Equal(t, -1.0, SignedNative.Component(0xff))
	assert.Equal(t, 127.0, SignedNative.Component(0x7f))
	assert.Equal(t, 0.5, Centered.Component(128))
	assert.InDelta(t, 1.0, UnsignedNormalized.Component(255), 1e-12)
	assert.Error(t, Convention("float32").Validate())
}

func TestAnalyzer_ShortCaptures(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		threshold float64
		want      JammingInterval
	}{
		{
			name:      "empty capture",
			data:      nil,
			threshold: 10,
			want:      JammingInterval{},
		},
		{
			name:      "single odd byte",
			data:      []byte{255},
			threshold: 10,
			want:      JammingInterval{},
		},
		{
			name:      "quiet capture never crosses threshold",
			data:      capture(1000, 128),
			threshold: 10,
			want:      JammingInterval{},
		},
		{
			name:      "jamming from the first sample",
			data:      capture(1000, 250),
			threshold: 10,
			want:      JammingInterval{Start: uptr(0), End: uptr(1000), RunsToEOF: true},
		},
		{
			name:      "odd trailing byte does not count as a sample",
			data:      append(capture(1000, 250), 250),
			threshold: 10,
			want:      JammingInterval{Start: uptr(0), End: uptr(1000), RunsToEOF: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewAnalyzer(tc.threshold)
			require.NoError(t, err)

			got, err := a.Analyze(bytes.NewReader(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAnalyzer_Transitions(t *testing.T) {
	const pairsPerChunk = 8

	quiet := capture(pairsPerChunk, 128)
	loud := capture(pairsPerChunk, 250)

	tests := []struct {
		name   string
		chunks [][]byte
		want   JammingInterval
	}{
		{
			name:   "onset in the middle and runs to EOF",
			chunks: [][]byte{quiet, quiet, loud, loud},
			want:   JammingInterval{Start: uptr(16), End: uptr(32), RunsToEOF: true},
		},
		{
			name:   "onset and end inside the capture",
			chunks: [][]byte{quiet, loud, loud, quiet, quiet},
			want:   JammingInterval{Start: uptr(8), End: uptr(24)},
		},
		{
			name:   "last onset wins",
			chunks: [][]byte{loud, quiet, quiet, loud, quiet},
			want:   JammingInterval{Start: uptr(24), End: uptr(32)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var reports []ChunkReport
			a, err := NewAnalyzer(100,
				WithChunkSize(2*pairsPerChunk),
				WithChunkObserver(func(r ChunkReport) { reports = append(reports, r) }))
			require.NoError(t, err)

			got, err := a.Analyze(bytes.NewReader(bytes.Join(tc.chunks, nil)))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			require.Len(t, reports, len(tc.chunks))
			for i, r := range reports {
				assert.Equal(t, uint64(i*pairsPerChunk), r.Offset)
				assert.Equal(t, pairsPerChunk, r.Samples)
			}
		})
	}
}

func TestAnalyzer_InvalidChunkSize(t *testing.T) {
	for _, size := range []int{0, 1, 3, -2} {
		_, err := NewAnalyzer(1, WithChunkSize(size))
		assert.Error(t, err, "chunk size %d", size)
	}
}

type failingReader struct {
	data []byte
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.ErrClosedPipe
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestAnalyzer_ReadFailure(t *testing.T) {
	a, err := NewAnalyzer(10, WithChunkSize(4))
	require.NoError(t, err)

	got, err := a.Analyze(&failingReader{data: capture(8, 250)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRead))
	assert.Equal(t, JammingInterval{}, got)
}

func TestAnalyzeJamming_File(t *testing.T) {
	data := append(capture(DefaultChunkSize/2, 128), capture(DefaultChunkSize/2, 0)...)
	path := writeCapture(t, data)

	got := AnalyzeJamming(path, 1000)
	require.True(t, got.Detected())
	assert.Equal(t, uint64(DefaultChunkSize/2), *got.Start)
	assert.Equal(t, uint64(DefaultChunkSize), *got.End)
	assert.True(t, got.RunsToEOF)
}

func TestAnalyzeJamming_MissingFileCollapses(t *testing.T) {
	got := AnalyzeJamming(filepath.Join(t.TempDir(), "missing.bin"), 1)
	assert.Nil(t, got.Start)
	assert.Nil(t, got.End)

	a, err := NewAnalyzer(1)
	require.NoError(t, err)
	_, err = a.AnalyzeFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, ErrOpen)
}

func TestParseChunkSize(t *testing.T) {
	n, err := ParseChunkSize("128KiB")
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, n)

	n, err = ParseChunkSize("4096")
	require.NoError(t, err)
	assert.Equal(t, 4096, n)

	_, err = ParseChunkSize("3")
	assert.Error(t, err)

	_, err = ParseChunkSize("lots")
	assert.Error(t, err)
}

func TestJammingInterval_String(t *testing.T) {
	assert.Equal(t, "start=none end=none", JammingInterval{}.String())
	assert.Equal(t, "start=5 end=9 (EOF)", JammingInterval{Start: uptr(5), End: uptr(9), RunsToEOF: true}.String())
}
