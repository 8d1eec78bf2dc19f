package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/jamming-locator/internal/iq"
)

// Run analyses the capture and prints the jamming interval to out
func Run(_ context.Context, config *Config, logger *slog.Logger, out io.Writer) error {
	stat, err := os.Stat(config.Path)
	if err != nil {
		return fmt.Errorf("capture not found: %w", err)
	}
	if stat.IsDir() {
		return fmt.Errorf("capture '%s' is a directory", config.Path)
	}

	_, _ = fmt.Fprintf(out, "capture %s (%s), threshold %g\n", config.Path, humanize.IBytes(uint64(stat.Size())), config.Threshold)

	histogram := iq.NewPowerHistogram()

	options := []func(a *iq.Analyzer){
		iq.WithLogger(logger),
		iq.WithChunkSize(config.ChunkSize),
	}
	if config.Verbose {
		options = append(options, iq.WithChunkObserver(func(r iq.ChunkReport) {
			histogram.Observe(r)

			state := "quiet"
			if r.Jamming {
				state = "JAMMING"
			}
			_, _ = fmt.Fprintf(out, "sample %12s  power %12.4f (%6.1f dB)  %s\n",
				humanize.Comma(int64(r.Offset)), r.Power, iq.ToDB(r.Power), state)
		}))
	}

	interval := iq.AnalyzeJamming(config.Path, config.Threshold, options...)

	if config.Verbose {
		if bounds, ok := histogram.Bounds(); ok {
			_, _ = fmt.Fprintf(out, "chunks %s  power min %.1f dB  max %.1f dB  mean %.1f dB\n",
				humanize.Comma(int64(bounds.Count)), bounds.Min, bounds.Max, bounds.Mean)
		}
	}

	_, _ = fmt.Fprintln(out, interval.String())
	return nil
}

