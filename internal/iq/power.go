package iq

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultChunkSize is the number of bytes analysed per power measurement.
	DefaultChunkSize = 128 * 1024
)

var (
	// ErrOpen is returned when the capture file cannot be opened
	ErrOpen = errors.New("cannot open capture")

	// ErrRead is returned when reading the capture fails mid-scan
	ErrRead = errors.New("cannot read capture")
)

// JammingInterval is the detected jamming span of a capture, in logical (I, Q) samples.
// Start is nil when jamming was never detected. End is nil while no end was observed;
// when jamming is still active at EOF, End is the EOF offset and RunsToEOF is set.
type JammingInterval struct {
	Start     *uint64 `json:"start_sample"`
	End       *uint64 `json:"end_sample"`
	RunsToEOF bool    `json:"runs_to_eof"`
}

// Detected reports whether the capture ever crossed the power threshold
func (j JammingInterval) Detected() bool {
	return j.Start != nil
}

func (j JammingInterval) String() string {
	start, end := "none", "none"
	if j.Start != nil {
		start = strconv.FormatUint(*j.Start, 10)
	}
	if j.End != nil {
		end = strconv.FormatUint(*j.End, 10)
		if j.RunsToEOF {
			end += " (EOF)"
		}
	}
	return fmt.Sprintf("start=%s end=%s", start, end)
}

// ChunkReport describes the power measured over one chunk of the capture
type ChunkReport struct {
	Offset  uint64  // Logical sample offset of the first pair in the chunk
	Samples int     // Number of whole (I, Q) pairs in the chunk
	Power   float64 // Mean |z|² of centered samples
	Jamming bool    // Whether Power exceeded the threshold
}

// WithLogger sets the logger for the analyzer
func WithLogger(logger *slog.Logger) func(a *Analyzer) {
	return func(a *Analyzer) {
		a.logger = logger.With(slog.String("component", "power-analyzer"))
	}
}

// WithChunkSize sets the number of bytes read per power measurement
func WithChunkSize(size int) func(a *Analyzer) {
	return func(a *Analyzer) {
		a.chunkSize = size
	}
}

// WithChunkObserver registers a callback invoked with every analysed chunk
func WithChunkObserver(fn func(ChunkReport)) func(a *Analyzer) {
	return func(a *Analyzer) {
		a.observer = fn
	}
}

// Analyzer streams an IQ capture in fixed-size chunks and tracks the jamming on/off state
// from the mean power of each chunk.
type Analyzer struct {
	threshold float64
	chunkSize int
	observer  func(ChunkReport)
	logger    *slog.Logger
}

// NewAnalyzer creates an Analyzer with the given power threshold, in squared centered amplitude
// units. The chunk size must be a positive even number of bytes.
func NewAnalyzer(threshold float64, options ...func(a *Analyzer)) (*Analyzer, error) {
	a := Analyzer{
		threshold: threshold,
		chunkSize: DefaultChunkSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	if a.chunkSize < 2 || a.chunkSize%2 != 0 {
		return nil, fmt.Errorf("invalid chunk size: %d bytes, must be a positive even number", a.chunkSize)
	}

	return &a, nil
}

// ParseChunkSize parses human readable sizes like "128KiB" or "131072".
func ParseChunkSize(s string) (int, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parsing chunk size: %w", err)
	}
	if n < 2 || n%2 != 0 || n > 1<<30 {
		return 0, fmt.Errorf("invalid chunk size: %s", s)
	}
	return int(n), nil
}

// Threshold returns the configured power threshold
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// AnalyzeFile opens the capture at path and analyses it.
func (a *Analyzer) AnalyzeFile(path string) (JammingInterval, error) {
	f, err := os.Open(path)
	if err != nil {
		return JammingInterval{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	if stat, err := f.Stat(); err == nil {
		a.logger.Debug("analysing capture",
			slog.String("path", path),
			slog.String("size", humanize.IBytes(uint64(stat.Size()))),
			slog.String("chunk", humanize.IBytes(uint64(a.chunkSize))))
	}

	return a.Analyze(f)
}

// Analyze reads r to EOF chunk by chunk and returns the detected jamming interval.
// Offsets are counted in logical samples from the start of r. A read failure discards
// any partial result and is returned wrapped in ErrRead.
func (a *Analyzer) Analyze(r io.Reader) (JammingInterval, error) {
	var (
		interval  JammingInterval
		jamming   bool
		processed uint64
	)

	buf := make([]byte, a.chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			if errors.Is(err, io.EOF) {
				break
			}
			return JammingInterval{}, fmt.Errorf("%w at sample %d: %w", ErrRead, processed, err)
		}

		chunk := buf[:n-n%2] // drop a trailing odd byte
		power, pairs := MeanPower(chunk, Centered)
		if pairs > 0 {
			now := power > a.threshold
			switch {
			case now && !jamming:
				start := processed
				interval.Start = &start

			case !now && jamming:
				end := processed
				interval.End = &end
			}

			if a.observer != nil {
				a.observer(ChunkReport{Offset: processed, Samples: pairs, Power: power, Jamming: now})
			}

			jamming = now
			processed += uint64(pairs)
		}

		if errors.Is(err, io.ErrUnexpectedEOF) {
			break // short final chunk
		}
	}

	if jamming && interval.Start != nil {
		end := processed
		interval.End = &end
		interval.RunsToEOF = true
	}

	return interval, nil
}

// AnalyzeJamming analyses the capture at path. Any failure collapses into an empty
// interval; the cause is only logged.
func AnalyzeJamming(path string, threshold float64, options ...func(a *Analyzer)) JammingInterval {
	a, err := NewAnalyzer(threshold, options...)
	if err != nil {
		slog.Default().Error(err.Error(), slog.String("path", path))
		return JammingInterval{}
	}

	interval, err := a.AnalyzeFile(path)
	if err != nil {
		a.logger.Error(fmt.Sprintf("jamming analysis failed: %s", err.Error()), slog.String("path", path))
		return JammingInterval{}
	}

	return interval
}
